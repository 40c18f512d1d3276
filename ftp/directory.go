package ftp

import (
	"fmt"
	"strings"
)

// ChangeDir changes the current working directory.
// A missing directory yields a *ProtocolError matching fs.ErrNotExist.
func (c *Client) ChangeDir(path string) error {
	_, err := c.expect2xx("CWD", path)
	return err
}

// CurrentDir returns the current working directory.
func (c *Client) CurrentDir() (string, error) {
	resp, err := c.expect2xx("PWD")
	if err != nil {
		return "", err
	}
	return parsePWD(resp.Message)
}

// parsePWD extracts the quoted path of a 257 reply. Embedded quotes are
// doubled per RFC 959: 257 "/a ""b""" is current directory.
func parsePWD(msg string) (string, error) {
	start := strings.IndexByte(msg, '"')
	if start == -1 {
		return "", fmt.Errorf("invalid PWD response: %s", msg)
	}

	var b strings.Builder
	for i := start + 1; i < len(msg); i++ {
		if msg[i] != '"' {
			b.WriteByte(msg[i])
			continue
		}
		if i+1 < len(msg) && msg[i+1] == '"' {
			b.WriteByte('"')
			i++
			continue
		}
		return b.String(), nil
	}
	return "", fmt.Errorf("invalid PWD response: %s", msg)
}

// MakeDir creates a new directory.
func (c *Client) MakeDir(path string) error {
	_, err := c.expect2xx("MKD", path)
	return err
}
