package cymo

import (
	"context"
	"crypto/tls"
	"io"
	"log/slog"

	"github.com/gonzalop/cymo/ftp"
)

// Dialer opens transport connections. One connection serves one session.
type Dialer interface {
	Dial(ctx context.Context, addr string) (Conn, error)
}

// Conn is the set of remote operations a session needs.
//
// ChangeDir must return an error matching fs.ErrNotExist when the
// directory does not exist; the directory mirror relies on it to decide
// when to create directories.
type Conn interface {
	Login(username, password string) error
	ChangeDir(path string) error
	CurrentDir() (string, error)
	MakeDir(path string) error
	Store(name string, r io.Reader, mode TransferMode) error
	Quit() error
}

// FTPDialer dials FTP servers with the ftp package.
type FTPDialer struct {
	options []ftp.Option
}

// NewFTPDialer returns a dialer configured from cfg (timeout, TLS mode,
// certificate verification, EPSV). Protocol traffic is logged at debug
// level through logger.
func NewFTPDialer(cfg Config, logger *slog.Logger) *FTPDialer {
	cfg = cfg.withDefaults()

	opts := []ftp.Option{
		ftp.WithTimeout(cfg.Timeout),
		ftp.WithLogger(logger),
	}

	tlsConfig := &tls.Config{
		ServerName:         cfg.Server,
		InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // opt-in
	}
	switch cfg.TLS {
	case TLSExplicit:
		opts = append(opts, ftp.WithExplicitTLS(tlsConfig))
	case TLSImplicit:
		opts = append(opts, ftp.WithImplicitTLS(tlsConfig))
	}

	if cfg.DisableEPSV {
		opts = append(opts, ftp.WithDisableEPSV())
	}
	return &FTPDialer{options: opts}
}

// Dial implements Dialer.
func (d *FTPDialer) Dial(ctx context.Context, addr string) (Conn, error) {
	client, err := ftp.DialContext(ctx, addr, d.options...)
	if err != nil {
		return nil, err
	}
	return &ftpConn{Client: client}, nil
}

type ftpConn struct {
	*ftp.Client
}

func (c *ftpConn) Store(name string, r io.Reader, mode TransferMode) error {
	if mode == Text {
		return c.Client.StoreText(name, r)
	}
	return c.Client.Store(name, r)
}
