// Command cymo uploads a local directory tree to an FTP server over several
// concurrent sessions.
//
//	cymo -s ftp.example.com -u deploy -r /var/www -l ./public -t 4 --retry 2
//
// Settings can also come from a YAML file given with --config; flags on the
// command line take precedence over the file. The password may be supplied
// through CYMO_PASSWORD.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"

	"github.com/gonzalop/cymo"
)

// CLI holds the command line.
type CLI struct {
	Config kong.ConfigFlag `short:"c" help:"Read settings from a YAML file." placeholder:"FILE"`

	Server   string `short:"s" help:"FTP server host."`
	Port     int    `default:"21" help:"FTP control port."`
	User     string `short:"u" help:"Login name. Empty means no login."`
	Password string `short:"p" env:"CYMO_PASSWORD" help:"Login password."`

	Remote string `short:"r" help:"Remote directory to upload into."`
	Local  string `short:"l" help:"Local directory or file to upload."`

	Workers    int           `short:"t" default:"0" help:"Concurrent sessions. 0 means one per CPU."`
	Retry      int           `default:"0" help:"Extra attempts per failed file."`
	RetryDelay time.Duration `default:"5s" help:"Wait between attempts."`
	Timeout    time.Duration `default:"30s" help:"Network timeout."`

	TLS         string `name:"tls" enum:"none,explicit,implicit" default:"none" help:"FTPS mode (${enum})."`
	Insecure    bool   `help:"Skip server certificate verification."`
	DisableEPSV bool   `name:"disable-epsv" help:"Use PASV instead of EPSV."`

	LogLevel string `enum:"debug,info,warn,error" default:"info" help:"Log level (${enum})."`
}

func main() {
	var cli CLI
	parser, err := newParser(&cli)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	_, err = parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	logger, err := newLogger(os.Stderr, cli.LogLevel)
	parser.FatalIfErrorf(err)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = cli.Run(ctx, os.Stdout, logger)
	stop()
	if err != nil {
		logger.Error("upload aborted", "error", err)
		os.Exit(1)
	}
}

func newParser(cli *CLI, options ...kong.Option) (*kong.Kong, error) {
	return kong.New(cli, append([]kong.Option{
		kong.Name("cymo"),
		kong.Description("Upload a directory tree to an FTP server over concurrent sessions."),
		kong.UsageOnError(),
		kong.Configuration(yamlConfig),
	}, options...)...)
}

func newLogger(w io.Writer, level string) (*log.Logger, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "2006-01-02 15:04:05",
		Level:           lvl,
	}), nil
}

// Settings converts the command line into a run configuration.
func (c *CLI) Settings() cymo.Config {
	tls := c.TLS
	if tls == "none" {
		tls = cymo.TLSNone
	}
	return cymo.Config{
		Server:             c.Server,
		Port:               c.Port,
		Username:           c.User,
		Password:           c.Password,
		RemoteRoot:         c.Remote,
		LocalRoot:          c.Local,
		RetryLimit:         c.Retry,
		RetryDelay:         c.RetryDelay,
		Workers:            c.Workers,
		Timeout:            c.Timeout,
		TLS:                tls,
		InsecureSkipVerify: c.Insecure,
		DisableEPSV:        c.DisableEPSV,
	}
}

// Run uploads and prints the summary to out. Partial failure is reported,
// not returned; only an invalid configuration or an unreadable local root
// is an error.
func (c *CLI) Run(ctx context.Context, out io.Writer, logger *log.Logger) error {
	report, err := cymo.Run(ctx, c.Settings(),
		cymo.WithLogger(slog.New(logger)),
		cymo.WithObserver(consoleObserver{logger: logger}),
	)
	if err != nil {
		return err
	}
	printReport(out, report)
	return nil
}

func printReport(w io.Writer, r *cymo.Report) {
	fmt.Fprintf(w, "run %s finished in %s with %d worker(s)\n", r.RunID, r.Elapsed.Round(time.Millisecond), r.Workers)
	fmt.Fprintf(w, "found: %d  uploaded: %d  failed: %d  bytes: %d\n", r.Found, r.Uploaded, r.Failed, r.Bytes)
	for _, err := range r.SessionErrors {
		fmt.Fprintf(w, "  session: %v\n", err)
	}
	for _, f := range r.Failures {
		fmt.Fprintf(w, "  failed: %s (worker %d, %d attempt(s)): %v\n", f.Task.RelPath, f.Worker, f.Attempts, f.Err)
	}
}
