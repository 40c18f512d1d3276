package ftp

import (
	"fmt"
	"io"
)

// Store uploads data from an io.Reader to the remote path in binary mode
// (TYPE I).
//
// Example:
//
//	file, err := os.Open("local.bin")
//	if err != nil {
//	    return err
//	}
//	defer file.Close()
//
//	err = client.Store("remote.bin", file)
func (c *Client) Store(remotePath string, r io.Reader) error {
	if err := c.Type("I"); err != nil {
		return fmt.Errorf("failed to set binary mode: %w", err)
	}
	return c.store(remotePath, r)
}

// StoreText uploads data in ASCII mode (TYPE A). Bare LF line endings are
// sent as CRLF; existing CRLF pairs are left alone.
func (c *Client) StoreText(remotePath string, r io.Reader) error {
	if err := c.Type("A"); err != nil {
		return fmt.Errorf("failed to set ascii mode: %w", err)
	}
	return c.store(remotePath, newCRLFReader(r))
}

func (c *Client) store(remotePath string, r io.Reader) error {
	dataConn, err := c.cmdDataConn("STOR", remotePath)
	if err != nil {
		return err
	}

	_, copyErr := io.Copy(dataConn, r)

	// Always finish the data connection so the control channel stays in sync.
	finishErr := c.finishDataConn("STOR", dataConn)

	if copyErr != nil {
		return fmt.Errorf("upload failed: %w", copyErr)
	}
	return finishErr
}

// crlfReader converts bare LF to CRLF on the fly.
type crlfReader struct {
	r       io.Reader
	scratch [4096]byte
	out     []byte
	pending []byte
	prevCR  bool
	err     error
}

func newCRLFReader(r io.Reader) *crlfReader {
	return &crlfReader{r: r}
}

func (a *crlfReader) Read(p []byte) (int, error) {
	for len(a.pending) == 0 {
		if a.err != nil {
			return 0, a.err
		}

		n, err := a.r.Read(a.scratch[:])
		a.err = err
		a.out = a.out[:0]
		for _, b := range a.scratch[:n] {
			if b == '\n' && !a.prevCR {
				a.out = append(a.out, '\r')
			}
			a.out = append(a.out, b)
			a.prevCR = b == '\r'
		}
		a.pending = a.out
	}

	n := copy(p, a.pending)
	a.pending = a.pending[n:]
	return n, nil
}
