package cymo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"path"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/require"
)

// fakeRemote is an in-memory remote filesystem shared by fake connections.
type fakeRemote struct {
	mu    sync.Mutex
	dirs  map[string]bool
	files map[string][]byte
	modes map[string]TransferMode
	calls []string

	// storeFailures makes the next n stores of a remote path fail.
	storeFailures map[string]int
	// cwdErrors makes CWD of a path fail with the given error.
	cwdErrors map[string]error
	// loginErr is returned by every Login.
	loginErr error
}

func newFakeRemote(dirs ...string) *fakeRemote {
	r := &fakeRemote{
		dirs:          map[string]bool{"/": true},
		files:         map[string][]byte{},
		modes:         map[string]TransferMode{},
		storeFailures: map[string]int{},
		cwdErrors:     map[string]error{},
	}
	for _, d := range dirs {
		r.dirs[d] = true
	}
	return r
}

func (r *fakeRemote) record(format string, args ...any) {
	r.calls = append(r.calls, fmt.Sprintf(format, args...))
}

// Calls returns the recorded operations, e.g. "MKD /up/a".
func (r *fakeRemote) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *fakeRemote) count(op string) int {
	n := 0
	for _, c := range r.Calls() {
		if len(c) >= len(op) && c[:len(op)] == op {
			n++
		}
	}
	return n
}

func (r *fakeRemote) File(p string) ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	data, ok := r.files[p]
	return data, ok
}

// fakeDialer hands out fakeConns. failDials makes the listed dial attempts
// (1-based, in call order) fail.
type fakeDialer struct {
	remote *fakeRemote

	mu        sync.Mutex
	dials     int
	failDials map[int]error
	conns     []*fakeConn
}

func (d *fakeDialer) Dial(_ context.Context, addr string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if err, ok := d.failDials[d.dials]; ok {
		return nil, err
	}
	c := &fakeConn{remote: d.remote, cwd: "/"}
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

type fakeConn struct {
	remote *fakeRemote
	cwd    string
	quit   bool
}

func (c *fakeConn) abs(p string) string {
	if path.IsAbs(p) {
		return path.Clean(p)
	}
	return path.Join(c.cwd, p)
}

func (c *fakeConn) Login(username, password string) error {
	c.remote.mu.Lock()
	defer c.remote.mu.Unlock()
	c.remote.record("USER %s", username)
	return c.remote.loginErr
}

func (c *fakeConn) ChangeDir(p string) error {
	c.remote.mu.Lock()
	defer c.remote.mu.Unlock()
	target := c.abs(p)
	c.remote.record("CWD %s", target)
	if err, ok := c.remote.cwdErrors[target]; ok {
		return err
	}
	if !c.remote.dirs[target] {
		return &fs.PathError{Op: "cwd", Path: target, Err: fs.ErrNotExist}
	}
	c.cwd = target
	return nil
}

func (c *fakeConn) CurrentDir() (string, error) {
	c.remote.mu.Lock()
	defer c.remote.mu.Unlock()
	c.remote.record("PWD")
	return c.cwd, nil
}

func (c *fakeConn) MakeDir(p string) error {
	c.remote.mu.Lock()
	defer c.remote.mu.Unlock()
	target := c.abs(p)
	c.remote.record("MKD %s", target)
	if c.remote.dirs[target] {
		return fmt.Errorf("%s: %w", target, fs.ErrExist)
	}
	if !c.remote.dirs[path.Dir(target)] {
		return &fs.PathError{Op: "mkd", Path: target, Err: fs.ErrNotExist}
	}
	c.remote.dirs[target] = true
	return nil
}

func (c *fakeConn) Store(name string, r io.Reader, mode TransferMode) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	c.remote.mu.Lock()
	defer c.remote.mu.Unlock()
	target := c.abs(name)
	c.remote.record("STOR %s", target)
	if n := c.remote.storeFailures[target]; n > 0 {
		c.remote.storeFailures[target] = n - 1
		return errors.New("451 transfer aborted")
	}
	c.remote.files[target] = data
	c.remote.modes[target] = mode
	return nil
}

func (c *fakeConn) Quit() error {
	c.remote.mu.Lock()
	defer c.remote.mu.Unlock()
	c.remote.record("QUIT")
	c.quit = true
	return nil
}

// recordingObserver keeps every event for assertions.
type recordingObserver struct {
	NopObserver

	mu         sync.Mutex
	started    []int
	failed     []int
	uploaded   []string
	fileFailed []string
	retries    []int
	countdowns int
}

func (o *recordingObserver) SessionStarted(worker, _ int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, worker)
}

func (o *recordingObserver) SessionFailed(worker int, _ error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed = append(o.failed, worker)
}

func (o *recordingObserver) FileUploaded(_ int, task UploadTask, _ int64, _ TransferMode) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.uploaded = append(o.uploaded, task.RelPath)
}

func (o *recordingObserver) FileFailed(_ int, err *TransferError) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fileFailed = append(o.fileFailed, err.Task.RelPath)
}

func (o *recordingObserver) RetryScheduled(_ int, _ UploadTask, attempt int, _ time.Duration, _ error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.retries = append(o.retries, attempt)
}

func (o *recordingObserver) RetryCountdown(int, UploadTask, time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.countdowns++
}

// newTree builds an in-memory local tree from path -> content.
func newTree(t *testing.T, files map[string]string) billy.Filesystem {
	t.Helper()
	tree := memfs.New()
	require.NoError(t, tree.MkdirAll("site", 0o755))
	for name, content := range files {
		require.NoError(t, util.WriteFile(tree, path.Join("site", name), []byte(content), 0o644))
	}
	return tree
}

func testConfig() Config {
	return Config{
		Server:     "ftp.example.com",
		Username:   "deploy",
		Password:   "secret",
		LocalRoot:  "site",
		RemoteRoot: "/up",
		RetryDelay: 10 * time.Millisecond,
	}
}

// enumeratorFunc adapts a function returning a task list to Enumerator.
type enumeratorFunc func(root string) ([]UploadTask, error)

func (f enumeratorFunc) Enumerate(root string) (iter.Seq[UploadTask], error) {
	tasks, err := f(root)
	if err != nil {
		return nil, err
	}
	return slices.Values(tasks), nil
}
