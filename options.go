package cymo

import (
	"errors"
	"log/slog"

	"github.com/go-git/go-billy/v5"
)

// Option configures an Uploader.
type Option func(*Uploader) error

// WithLogger sets the logger for the run, its sessions and the default FTP
// dialer. Logging is discarded by default.
func WithLogger(logger *slog.Logger) Option {
	return func(u *Uploader) error {
		if logger != nil {
			u.logger = logger
		}
		return nil
	}
}

// WithDialer replaces the FTP dialer, typically with a fake in tests.
func WithDialer(d Dialer) Option {
	return func(u *Uploader) error {
		if d == nil {
			return errors.New("nil dialer")
		}
		u.dialer = d
		return nil
	}
}

// WithFilesystem reads the local tree from fs instead of the OS
// filesystem. Config.LocalRoot is then a path inside fs.
func WithFilesystem(fs billy.Filesystem) Option {
	return func(u *Uploader) error {
		if fs == nil {
			return errors.New("nil filesystem")
		}
		u.fs = fs
		return nil
	}
}

// WithEnumerator replaces the default TreeEnumerator.
func WithEnumerator(e Enumerator) Option {
	return func(u *Uploader) error {
		if e == nil {
			return errors.New("nil enumerator")
		}
		u.enumerator = e
		return nil
	}
}

// WithClassifier replaces the MIME based text/binary detection.
func WithClassifier(c Classifier) Option {
	return func(u *Uploader) error {
		if c == nil {
			return errors.New("nil classifier")
		}
		u.classifier = c
		return nil
	}
}

// WithObserver registers progress hooks. A nil observer is ignored.
func WithObserver(o Observer) Option {
	return func(u *Uploader) error {
		if o != nil {
			u.observer = o
		}
		return nil
	}
}
