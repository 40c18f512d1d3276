// Package ftptest runs an in-process FTP server for tests.
//
// The server implements the subset of RFC 959 an uploader exercises (USER,
// PASS, PWD, CWD, MKD, TYPE, PASV, EPSV, STOR, NOOP, QUIT) on top of a
// go-billy filesystem, records every command it receives, and can inject
// failures for chosen commands:
//
//	srv := ftptest.Run(t,
//	    ftptest.WithCredentials("alice", "secret"),
//	    ftptest.WithFault(func(cmd, path string) error {
//	        if cmd == "STOR" && path == "/up/flaky.bin" {
//	            return errors.New("disk full")
//	        }
//	        return nil
//	    }),
//	)
//	client, _ := ftp.Dial(srv.Addr())
package ftptest

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
)

// ErrServerClosed is returned by Serve after Close.
var ErrServerClosed = errors.New("ftptest: server closed")

// Fault decides whether a command should fail. cmd is the upper-case verb
// and path the absolute remote path it targets (empty for commands without
// a path). A non-nil error makes the server reject the command.
type Fault func(cmd, path string) error

// Command is one control channel command as received by the server.
type Command struct {
	Session string
	Name    string
	Arg     string
}

// Upload describes a completed STOR.
type Upload struct {
	Path string
	Type string
	Size int64
}

// Server is an FTP server serving a billy.Filesystem.
type Server struct {
	fs     billy.Filesystem
	fsMu   sync.Mutex
	logger *slog.Logger

	// user and pass, when user is set, are the only accepted credentials
	// and commands other than USER/PASS/QUIT require a login.
	user string
	pass string

	maxConnections int
	fault          Fault

	activeConns atomic.Int32
	inShutdown  atomic.Bool

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	commands []Command
	uploads  []Upload
	wg       sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithFilesystem serves fs instead of a fresh in-memory filesystem.
func WithFilesystem(fs billy.Filesystem) Option {
	return func(s *Server) {
		s.fs = fs
	}
}

// WithCredentials requires a login with the given user and password.
// Without it the server accepts commands from unauthenticated sessions.
func WithCredentials(user, pass string) Option {
	return func(s *Server) {
		s.user = user
		s.pass = pass
	}
}

// WithLogger sets the server logger. Logging is discarded by default.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMaxConnections rejects sessions beyond n concurrent ones with a 421
// greeting. Zero means no limit.
func WithMaxConnections(n int) Option {
	return func(s *Server) {
		s.maxConnections = n
	}
}

// WithFault installs a failure injector consulted before CWD, MKD and STOR.
func WithFault(fault Fault) Option {
	return func(s *Server) {
		s.fault = fault
	}
}

// NewServer creates a server. Call Serve or Start to accept connections.
func NewServer(options ...Option) *Server {
	s := &Server{
		fs:     memfs.New(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		conns:  make(map[net.Conn]struct{}),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Run starts a server on a loopback port and closes it when tb finishes.
func Run(tb testing.TB, options ...Option) *Server {
	tb.Helper()

	s := NewServer(options...)
	if err := s.Start(); err != nil {
		tb.Fatalf("ftptest: start: %v", err)
	}
	tb.Cleanup(func() { _ = s.Close() })
	return s
}

// Start listens on 127.0.0.1:0 and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	go func() { _ = s.Serve(ln) }()
	return nil
}

// Serve accepts connections on l until Close is called.
func (s *Server) Serve(l net.Listener) error {
	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()

	for {
		conn, err := l.Accept()
		if err != nil {
			if s.inShutdown.Load() {
				return ErrServerClosed
			}
			s.logger.Error("accept error", "error", err)
			return err
		}

		if !s.trackConnection(conn, true) {
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.trackConnection(conn, false)
			s.handleSession(conn)
		}()
	}
}

// Addr returns the address the server listens on.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close stops the listener, closes every session and waits for them.
func (s *Server) Close() error {
	s.inShutdown.Store(true)

	s.mu.Lock()
	ln := s.listener
	conns := s.conns
	s.conns = make(map[net.Conn]struct{})
	s.mu.Unlock()

	var err error
	if ln != nil {
		err = ln.Close()
	}
	for conn := range conns {
		conn.Close()
	}
	s.wg.Wait()
	return err
}

// FS returns the served filesystem.
func (s *Server) FS() billy.Filesystem {
	return s.fs
}

// Commands returns a copy of every command received so far, in arrival
// order across all sessions. PASS arguments are masked.
func (s *Server) Commands() []Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Command(nil), s.commands...)
}

// CommandsNamed returns the arguments of every received command with the
// given verb, in arrival order.
func (s *Server) CommandsNamed(name string) []string {
	var args []string
	for _, c := range s.Commands() {
		if c.Name == name {
			args = append(args, c.Arg)
		}
	}
	return args
}

// Uploads returns every completed STOR.
func (s *Server) Uploads() []Upload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Upload(nil), s.uploads...)
}

func (s *Server) record(c Command) {
	s.mu.Lock()
	s.commands = append(s.commands, c)
	s.mu.Unlock()
}

func (s *Server) recordUpload(u Upload) {
	s.mu.Lock()
	s.uploads = append(s.uploads, u)
	s.mu.Unlock()
}

// trackConnection returns false if the server is shutting down.
func (s *Server) trackConnection(conn net.Conn, add bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !add {
		delete(s.conns, conn)
		return true
	}
	if s.inShutdown.Load() {
		conn.Close()
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) handleSession(conn net.Conn) {
	if s.maxConnections > 0 && s.activeConns.Load() >= int32(s.maxConnections) {
		s.logger.Warn("connection_rejected",
			"remote_addr", conn.RemoteAddr().String(),
			"reason", "global_limit_reached",
			"limit", s.maxConnections,
		)
		fmt.Fprintf(conn, "421 Too many users, sorry.\r\n")
		conn.Close()
		return
	}

	s.activeConns.Add(1)
	defer s.activeConns.Add(-1)

	newSession(s, conn).serve()
}

func (s *Server) checkFault(cmd, path string) error {
	if s.fault == nil {
		return nil
	}
	return s.fault(cmd, path)
}
