package cymo

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Uploader runs uploads for one Config.
type Uploader struct {
	cfg        Config
	logger     *slog.Logger
	dialer     Dialer
	fs         billy.Filesystem
	root       string
	enumerator Enumerator
	classifier Classifier
	observer   Observer

	// tick is the retry countdown interval.
	tick time.Duration
}

// New validates cfg and returns an Uploader. Zero Config fields that have
// defaults are filled in.
func New(cfg Config, options ...Option) (*Uploader, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	u := &Uploader{
		cfg:        cfg,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		classifier: MIMEClassifier{},
		observer:   NopObserver{},
		tick:       time.Second,
	}
	for _, opt := range options {
		if err := opt(u); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if u.fs == nil {
		abs, err := filepath.Abs(cfg.LocalRoot)
		if err != nil {
			return nil, fmt.Errorf("local root %q: %w", cfg.LocalRoot, err)
		}
		// Rooted at the parent so a file root keeps its name.
		u.fs = osfs.New(filepath.Dir(abs))
		u.root = filepath.Base(abs)
	} else {
		u.root = cfg.LocalRoot
	}

	if u.dialer == nil {
		u.dialer = NewFTPDialer(cfg, u.logger)
	}
	if u.enumerator == nil {
		u.enumerator = NewTreeEnumerator(u.fs, u.logger)
	}
	return u, nil
}

// Run is a shorthand for New followed by Uploader.Run.
func Run(ctx context.Context, cfg Config, options ...Option) (*Report, error) {
	u, err := New(cfg, options...)
	if err != nil {
		return nil, err
	}
	return u.Run(ctx)
}

// Config returns the effective configuration, defaults included.
func (u *Uploader) Config() Config {
	return u.cfg
}

// Run enumerates the local root, splits the files across the workers and
// uploads them. Per-file and per-session failures are reported in the
// Report, not as an error; Run fails only when the local root cannot be
// enumerated.
//
// Canceling ctx stops each worker before its next file or retry wait. Tasks
// not attempted are reported as failed with the context error.
func (u *Uploader) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	report := &Report{RunID: uuid.New()}
	logger := u.logger.With("run_id", report.RunID.String())

	seq, err := u.enumerator.Enumerate(u.root)
	if err != nil {
		return nil, fmt.Errorf("cymo: enumerate: %w", err)
	}
	tasks := slices.Collect(seq)
	report.Found = len(tasks)

	if len(tasks) == 0 {
		report.Elapsed = time.Since(start)
		logger.Info("nothing to upload", "local_root", u.cfg.LocalRoot)
		return report, nil
	}

	workers := WorkerCount(u.cfg.Workers, len(tasks))
	report.Workers = workers
	logger.Info("upload starting",
		"files", len(tasks),
		"workers", workers,
		"server", u.cfg.Addr(),
		"remote_root", u.cfg.RemoteRoot,
	)

	// One queue per worker, each holding exactly that worker's share.
	shares := Partition(tasks, workers)
	queues := make([]chan WorkShare, len(shares))
	for i, share := range shares {
		queues[i] = make(chan WorkShare, 1)
		queues[i] <- share
		close(queues[i])
	}

	var t tally
	var g errgroup.Group
	for _, queue := range queues {
		g.Go(func() error {
			for share := range queue {
				s := u.newSession(share.Worker, logger)
				t.merge(s.run(ctx, share.Tasks))
			}
			return nil
		})
	}
	_ = g.Wait()

	t.fill(report)
	report.Elapsed = time.Since(start)

	logger.Info("upload finished",
		"found", report.Found,
		"uploaded", report.Uploaded,
		"failed", report.Failed,
		"bytes", report.Bytes,
		"elapsed", report.Elapsed.Round(time.Millisecond).String(),
	)
	return report, nil
}

func (u *Uploader) newSession(worker int, logger *slog.Logger) *session {
	return &session{
		worker:     worker,
		cfg:        u.cfg,
		dialer:     u.dialer,
		fs:         u.fs,
		classifier: u.classifier,
		observer:   u.observer,
		logger:     logger.With("worker", worker),
		tick:       u.tick,
	}
}
