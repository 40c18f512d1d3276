package ftp

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"
)

// Client represents an FTP client connection.
type Client struct {
	// conn is the control channel
	conn net.Conn

	// reader is a buffered reader for the control channel
	reader *bufio.Reader

	// tlsConfig is the TLS configuration (if TLS is enabled)
	tlsConfig *tls.Config

	// tlsMode indicates whether TLS is disabled, explicit, or implicit
	tlsMode tlsMode

	// timeout bounds dialing and every control/data read or write
	timeout time.Duration

	logger *slog.Logger
	dialer *net.Dialer

	host string
	port string

	// welcome is the greeting text sent by the server on connect
	welcome string

	// disableEPSV forces PASV for data connections
	disableEPSV bool

	// currentType tracks the transfer type to avoid redundant TYPE commands
	currentType string

	// mu serializes control channel exchanges
	mu sync.Mutex
}

// Dial connects to an FTP server at the given address ("host:port").
//
// Example:
//
//	client, err := ftp.Dial("ftp.example.com:21")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Quit()
func Dial(addr string, options ...Option) (*Client, error) {
	return DialContext(context.Background(), addr, options...)
}

// DialContext is like Dial but aborts the connection attempt when ctx is
// done before the greeting has been read.
func DialContext(ctx context.Context, addr string, options ...Option) (*Client, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid address: %w", err)
	}

	c := &Client{
		host:    host,
		port:    port,
		timeout: 30 * time.Second,
		tlsMode: tlsModeNone,
		dialer:  &net.Dialer{},
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range options {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	dialer := *c.dialer
	dialer.Timeout = c.timeout
	c.dialer = &dialer

	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// connect establishes the control connection and handles the greeting.
func (c *Client) connect(ctx context.Context) error {
	addr := net.JoinHostPort(c.host, c.port)
	c.logger.Debug("connecting to ftp server", "addr", addr, "tls_mode", c.tlsMode)

	conn, err := c.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	if c.tlsMode == tlsModeImplicit {
		tlsConn, err := c.handshake(conn)
		if err != nil {
			conn.Close()
			return err
		}
		conn = tlsConn
	}

	c.conn = conn
	c.reader = bufio.NewReader(conn)

	// The dialer honours ctx only until the TCP handshake; the greeting
	// wait is bounded by the timeout and by ctx through this watcher.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	c.mu.Lock()
	resp, err := c.readReply()
	c.mu.Unlock()
	if err != nil {
		conn.Close()
		if ctx.Err() != nil {
			return fmt.Errorf("failed to read greeting: %w", ctx.Err())
		}
		return fmt.Errorf("failed to read greeting: %w", err)
	}

	if resp.Code != 220 {
		conn.Close()
		return newProtocolError("CONNECT", resp)
	}
	c.welcome = resp.Message

	if c.tlsMode == tlsModeExplicit {
		if err := c.upgradeToTLS(); err != nil {
			c.conn.Close()
			return err
		}
	}

	return nil
}

// handshake wraps conn in a TLS client and completes the handshake.
func (c *Client) handshake(conn net.Conn) (*tls.Conn, error) {
	tlsConn := tls.Client(conn, c.tlsConfig)
	if c.timeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
			return nil, fmt.Errorf("failed to set deadline: %w", err)
		}
	}
	if err := tlsConn.Handshake(); err != nil {
		return nil, fmt.Errorf("TLS handshake failed: %w", err)
	}
	c.logger.Debug("TLS handshake complete", "mode", c.tlsMode)
	return tlsConn, nil
}

// upgradeToTLS upgrades the control connection using AUTH TLS and protects
// the data channel with PBSZ/PROT.
func (c *Client) upgradeToTLS() error {
	if _, err := c.expectCode(234, "AUTH", "TLS"); err != nil {
		return fmt.Errorf("AUTH TLS failed: %w", err)
	}

	tlsConn, err := c.handshake(c.conn)
	if err != nil {
		return err
	}
	c.conn = tlsConn
	c.reader = bufio.NewReader(tlsConn)

	if _, err := c.expectCode(200, "PBSZ", "0"); err != nil {
		return fmt.Errorf("PBSZ failed: %w", err)
	}
	if _, err := c.expectCode(200, "PROT", "P"); err != nil {
		return fmt.Errorf("PROT failed: %w", err)
	}
	return nil
}

// Welcome returns the greeting message the server sent on connect.
func (c *Client) Welcome() string {
	return c.welcome
}

// Login authenticates with the FTP server using the provided username and password.
func (c *Client) Login(username, password string) error {
	resp, err := c.sendCommand("USER", username)
	if err != nil {
		return err
	}

	// 230: no password required
	if resp.Code == 230 {
		return nil
	}
	if resp.Code != 331 {
		return newProtocolError("USER", resp)
	}

	if _, err := c.expectCode(230, "PASS", password); err != nil {
		return err
	}
	return nil
}

// Type sets the transfer type ("I" for binary, "A" for ASCII).
// The command is skipped when the session is already in that type.
func (c *Client) Type(transferType string) error {
	if c.currentType == transferType {
		return nil
	}
	if _, err := c.expectCode(200, "TYPE", transferType); err != nil {
		return err
	}
	c.currentType = transferType
	return nil
}

// Quit sends QUIT and closes the control connection.
func (c *Client) Quit() error {
	if c.conn == nil {
		return nil
	}

	// Errors are ignored; the connection is closed either way.
	_, _ = c.sendCommand("QUIT")

	err := c.conn.Close()
	c.conn = nil
	return err
}
