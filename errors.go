package cymo

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is wrapped by every Config validation error.
var ErrInvalidConfig = errors.New("cymo: invalid config")

// Session stages that can fail a whole share.
const (
	StageConnect    = "connect"
	StageLogin      = "login"
	StageRemoteRoot = "remote root"
)

// SessionError means a session could not be established. Every task of the
// worker's share is failed with it.
type SessionError struct {
	// Worker is the 1-based worker index
	Worker int

	// Stage is one of StageConnect, StageLogin or StageRemoteRoot
	Stage string

	Err error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("cymo: worker %d: %s: %v", e.Worker, e.Stage, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// TransferError is the terminal error of a task that was not uploaded.
type TransferError struct {
	Task   UploadTask
	Worker int

	// Attempts is how many upload attempts were made. It is zero when the
	// session failed or the run was canceled before the task was tried.
	Attempts int

	Err error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("cymo: %s: %d attempt(s): %v", e.Task.RelPath, e.Attempts, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}
