package cymo

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Defaults applied by New to zero-valued Config fields.
const (
	DefaultPort       = 21
	DefaultRetryDelay = 5 * time.Second
	DefaultTimeout    = 30 * time.Second
)

// TLS modes accepted in Config.TLS.
const (
	TLSNone     = ""
	TLSExplicit = "explicit"
	TLSImplicit = "implicit"
)

// Config is the immutable description of one upload run. It is built once
// (by the CLI or by a library caller) and shared read-only by every session.
type Config struct {
	// Server is the FTP server host name or IP address.
	Server string

	// Port is the control port. Zero means DefaultPort.
	Port int

	// Username and Password authenticate each session. An empty Username
	// skips the login step.
	Username string
	Password string

	// RemoteRoot is the remote directory the local tree is mirrored into.
	RemoteRoot string

	// LocalRoot is the directory (or single file) to upload.
	LocalRoot string

	// RetryLimit is the number of extra attempts per file after the first.
	RetryLimit int

	// RetryDelay is the wait between attempts. Zero means DefaultRetryDelay.
	RetryDelay time.Duration

	// Workers is the number of concurrent sessions. Zero means one per CPU.
	// The effective count never exceeds the number of files.
	Workers int

	// Timeout bounds dialing and each control or data channel operation.
	// Zero means DefaultTimeout.
	Timeout time.Duration

	// TLS selects FTPS: TLSNone, TLSExplicit or TLSImplicit.
	TLS string

	// InsecureSkipVerify disables server certificate verification.
	InsecureSkipVerify bool

	// DisableEPSV makes sessions use PASV for data connections.
	DisableEPSV bool
}

// withDefaults returns a copy of c with zero fields set to their defaults.
func (c Config) withDefaults() Config {
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}

// Validate reports the first problem with c. Errors wrap ErrInvalidConfig.
// Zero values that have defaults are accepted.
func (c Config) Validate() error {
	switch {
	case c.Server == "":
		return invalidConfig("server is required")
	case c.RemoteRoot == "":
		return invalidConfig("remote root is required")
	case c.LocalRoot == "":
		return invalidConfig("local root is required")
	case c.Port < 0 || c.Port > 65535:
		return invalidConfig("port %d out of range", c.Port)
	case c.RetryLimit < 0:
		return invalidConfig("retry limit must not be negative")
	case c.RetryDelay < 0:
		return invalidConfig("retry delay must not be negative")
	case c.Workers < 0:
		return invalidConfig("workers must not be negative")
	case c.Timeout < 0:
		return invalidConfig("timeout must not be negative")
	}

	switch c.TLS {
	case TLSNone, TLSExplicit, TLSImplicit:
	default:
		return invalidConfig("unknown TLS mode %q", c.TLS)
	}
	return nil
}

// Addr returns the "host:port" control address.
func (c Config) Addr() string {
	port := c.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(c.Server, strconv.Itoa(port))
}

func invalidConfig(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...)
}
