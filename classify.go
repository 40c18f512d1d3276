package cymo

import "github.com/gabriel-vasile/mimetype"

// sniffLen is how much of a file is sampled to pick the transfer mode.
const sniffLen = 512

// TransferMode selects the FTP representation type for a file.
type TransferMode int

const (
	// Binary sends the file byte for byte (TYPE I).
	Binary TransferMode = iota

	// Text sends the file as ASCII (TYPE A) with CRLF line endings.
	Text
)

func (m TransferMode) String() string {
	if m == Text {
		return "text"
	}
	return "binary"
}

// Classifier picks a transfer mode from the first bytes of a file.
type Classifier interface {
	Classify(prefix []byte) TransferMode
}

// MIMEClassifier detects the MIME type of the prefix and reports Text for
// text/plain and every type derived from it (HTML, JSON, CSV, ...).
type MIMEClassifier struct{}

func (MIMEClassifier) Classify(prefix []byte) TransferMode {
	for m := mimetype.Detect(prefix); m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return Text
		}
	}
	return Binary
}

// FixedClassifier ignores the content and always returns its mode.
type FixedClassifier TransferMode

func (f FixedClassifier) Classify([]byte) TransferMode {
	return TransferMode(f)
}
