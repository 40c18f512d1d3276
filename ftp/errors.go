package ftp

import (
	"fmt"
	"io/fs"
)

// ProtocolError represents an FTP protocol error with the command that was
// sent and the reply the server gave.
type ProtocolError struct {
	// Command is the FTP command that was sent (e.g., "MKD")
	Command string

	// Response is the reply text received from the server
	Response string

	// Code is the numeric FTP reply code (e.g., 550)
	Code int
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("ftp: %s failed: %s (code %d)", e.Command, e.Response, e.Code)
}

// Is reports whether the reply means the target path does not exist.
// Servers answer 550 for a missing file or directory, so errors.Is(err,
// fs.ErrNotExist) holds for those replies.
func (e *ProtocolError) Is(target error) bool {
	return target == fs.ErrNotExist && e.Code == 550
}

func newProtocolError(command string, resp *Response) *ProtocolError {
	return &ProtocolError{
		Command:  command,
		Response: resp.Message,
		Code:     resp.Code,
	}
}
