package cymo

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/go-git/go-billy/v5"

	"github.com/gonzalop/cymo/ftp"
)

// SessionState is the lifecycle position of an upload session.
type SessionState int

const (
	StateDisconnected SessionState = iota
	StateConnecting
	StateAuthenticated
	StateReady
	StateMirroring
	StateTransferring
	StateIdle
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateReady:
		return "ready"
	case StateMirroring:
		return "mirroring"
	case StateTransferring:
		return "transferring"
	case StateIdle:
		return "idle"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("SessionState(%d)", int(s))
	}
}

// SessionOutcome is what one worker contributes to the report.
type SessionOutcome struct {
	Worker   int
	Uploaded int
	Bytes    int64

	// Failures lists the tasks that were not uploaded, in share order.
	Failures []*TransferError

	// Err is the *SessionError when the session could not be established.
	Err error
}

// session uploads one share over one connection.
type session struct {
	worker     int
	cfg        Config
	dialer     Dialer
	fs         billy.Filesystem
	classifier Classifier
	observer   Observer
	logger     *slog.Logger

	// tick is the countdown interval while waiting to retry.
	tick time.Duration

	state  SessionState
	conn   Conn
	mirror *DirectoryMirror
}

func (s *session) setState(state SessionState) {
	if s.state == state {
		return
	}
	s.logger.Debug("session state", "from", s.state.String(), "state", state.String())
	s.state = state
}

// run processes every task of the share and always returns an outcome
// accounting for each of them.
func (s *session) run(ctx context.Context, tasks []UploadTask) SessionOutcome {
	out := SessionOutcome{Worker: s.worker}
	s.observer.SessionStarted(s.worker, len(tasks))
	s.logger.Debug("session starting", "files", len(tasks))

	if err := s.open(ctx); err != nil {
		s.logger.Debug("session failed", "error", err)
		s.observer.SessionFailed(s.worker, err)
		out.Err = err
		s.failAll(&out, tasks, err)
		s.close()
		return out
	}
	defer s.close()

	for i, task := range tasks {
		if err := ctx.Err(); err != nil {
			s.failAll(&out, tasks[i:], err)
			break
		}

		n, err := s.transfer(ctx, task)
		if err != nil {
			s.logger.Debug("upload failed", "path", task.RelPath, "attempts", err.Attempts, "error", err.Err)
			out.Failures = append(out.Failures, err)
			s.observer.FileFailed(s.worker, err)
			continue
		}
		out.Uploaded++
		out.Bytes += n
	}

	s.logger.Info("session finished",
		"uploaded", out.Uploaded,
		"failed", len(out.Failures),
		"bytes", out.Bytes,
		"dirs_created", s.mirror.Created(),
	)
	return out
}

func (s *session) failAll(out *SessionOutcome, tasks []UploadTask, err error) {
	for _, task := range tasks {
		terr := &TransferError{Task: task, Worker: s.worker, Err: err}
		out.Failures = append(out.Failures, terr)
		s.observer.FileFailed(s.worker, terr)
	}
}

// open connects, logs in and enters the remote root.
func (s *session) open(ctx context.Context) error {
	s.setState(StateConnecting)
	conn, err := s.dialer.Dial(ctx, s.cfg.Addr())
	if err != nil {
		return &SessionError{Worker: s.worker, Stage: StageConnect, Err: err}
	}
	s.conn = conn
	if w, ok := conn.(interface{ Welcome() string }); ok {
		s.logger.Info("connected", "server", s.cfg.Addr(), "welcome", w.Welcome())
	}

	if s.cfg.Username != "" {
		if err := conn.Login(s.cfg.Username, s.cfg.Password); err != nil {
			return &SessionError{Worker: s.worker, Stage: StageLogin, Err: err}
		}
	}
	s.setState(StateAuthenticated)

	if err := conn.ChangeDir(s.cfg.RemoteRoot); err != nil {
		return &SessionError{Worker: s.worker, Stage: StageRemoteRoot, Err: err}
	}
	root, err := conn.CurrentDir()
	if err != nil {
		return &SessionError{Worker: s.worker, Stage: StageRemoteRoot, Err: err}
	}
	s.mirror = NewDirectoryMirror(root)
	s.setState(StateReady)
	return nil
}

func (s *session) close() {
	if s.conn != nil {
		if err := s.conn.Quit(); err != nil {
			s.logger.Debug("quit failed", "error", err)
		}
		s.conn = nil
	}
	s.setState(StateClosed)
}

// transfer uploads task with up to RetryLimit retries.
func (s *session) transfer(ctx context.Context, task UploadTask) (int64, *TransferError) {
	attempts := s.cfg.RetryLimit + 1

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			s.observer.RetryScheduled(s.worker, task, attempt, s.cfg.RetryDelay, err)
			if werr := s.wait(ctx, task); werr != nil {
				return 0, &TransferError{Task: task, Worker: s.worker, Attempts: attempt - 1, Err: werr}
			}
		}

		var n int64
		var mode TransferMode
		n, mode, err = s.upload(task)
		if err == nil {
			s.logger.Debug("uploaded", "path", task.RelPath, "bytes", n, "mode", mode.String(), "attempt", attempt)
			s.observer.FileUploaded(s.worker, task, n, mode)
			return n, nil
		}
		s.logger.Debug("attempt failed", "path", task.RelPath, "attempt", attempt, "error", err)
	}
	return 0, &TransferError{Task: task, Worker: s.worker, Attempts: attempts, Err: err}
}

// wait sleeps RetryDelay, reporting the remaining time every tick.
func (s *session) wait(ctx context.Context, task UploadTask) error {
	remaining := s.cfg.RetryDelay
	for remaining > 0 {
		s.observer.RetryCountdown(s.worker, task, remaining)

		step := min(s.tick, remaining)
		timer := time.NewTimer(step)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		remaining -= step
	}
	return nil
}

// upload makes a single attempt: mirror the parent, sniff, store.
func (s *session) upload(task UploadTask) (int64, TransferMode, error) {
	s.setState(StateMirroring)
	if err := s.mirror.Ensure(s.conn, task.Dir()); err != nil {
		s.setState(StateIdle)
		return 0, Binary, err
	}

	s.setState(StateTransferring)
	defer s.setState(StateIdle)

	f, err := s.fs.Open(task.Path)
	if err != nil {
		return 0, Binary, fmt.Errorf("open %s: %w", task.Path, err)
	}
	defer f.Close()

	br := bufio.NewReaderSize(f, sniffLen)
	prefix, err := br.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, Binary, fmt.Errorf("read %s: %w", task.Path, err)
	}
	mode := s.classifier.Classify(prefix)

	pr := &ftp.ProgressReader{Reader: br}
	if err := s.conn.Store(task.Name(), pr, mode); err != nil {
		return pr.Total(), mode, fmt.Errorf("store %s: %w", s.mirror.Target(task.RelPath), err)
	}
	return pr.Total(), mode, nil
}
