package cymo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestUploader(t *testing.T, cfg Config, files map[string]string, remote *fakeRemote, opts ...Option) (*Uploader, *fakeDialer) {
	t.Helper()
	dialer := &fakeDialer{remote: remote}
	opts = append([]Option{WithFilesystem(newTree(t, files)), WithDialer(dialer)}, opts...)
	u, err := New(cfg, opts...)
	require.NoError(t, err)
	u.tick = 10 * time.Millisecond
	return u, dialer
}

func TestSession_RetryBound(t *testing.T) {
	remote := newFakeRemote("/up")
	remote.storeFailures["/up/bad.bin"] = 1000

	cfg := testConfig()
	cfg.RetryLimit = 2
	obs := &recordingObserver{}
	u, _ := newTestUploader(t, cfg, map[string]string{"bad.bin": "x", "good.bin": "y"}, remote, WithObserver(obs))

	report, err := u.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, remote.count("STOR /up/bad.bin"))
	assert.Equal(t, 1, report.Uploaded)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "bad.bin", report.Failures[0].Task.RelPath)
	assert.Equal(t, 3, report.Failures[0].Attempts)
	assert.Equal(t, []int{2, 3}, obs.retries)
	assert.Equal(t, []string{"bad.bin"}, obs.fileFailed)
}

func TestSession_SucceedsOnThirdAttempt(t *testing.T) {
	remote := newFakeRemote("/up")
	remote.storeFailures["/up/flaky.txt"] = 2

	cfg := testConfig()
	cfg.RetryLimit = 2
	u, _ := newTestUploader(t, cfg, map[string]string{"flaky.txt": "hello\n"}, remote)

	report, err := u.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, remote.count("STOR /up/flaky.txt"))
	assert.Equal(t, 1, report.Uploaded)
	assert.Zero(t, report.Failed)
	data, ok := remote.File("/up/flaky.txt")
	require.True(t, ok)
	assert.Equal(t, "hello\n", string(data))
}

func TestSession_NoRetryByDefault(t *testing.T) {
	remote := newFakeRemote("/up")
	remote.storeFailures["/up/a.bin"] = 1

	u, _ := newTestUploader(t, testConfig(), map[string]string{"a.bin": "x"}, remote)
	report, err := u.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, remote.count("STOR"))
	assert.Equal(t, 1, report.Failed)
}

func TestSession_RetryCountdown(t *testing.T) {
	remote := newFakeRemote("/up")
	remote.storeFailures["/up/a.bin"] = 1

	cfg := testConfig()
	cfg.RetryLimit = 1
	cfg.RetryDelay = 35 * time.Millisecond
	obs := &recordingObserver{}
	u, _ := newTestUploader(t, cfg, map[string]string{"a.bin": "x"}, remote, WithObserver(obs))

	report, err := u.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Uploaded)

	// 35ms in 10ms ticks: 35, 25, 15, 5.
	assert.Equal(t, 4, obs.countdowns)
}

func TestSession_LoginFailureFailsShare(t *testing.T) {
	remote := newFakeRemote("/up")
	remote.loginErr = errors.New("530 login incorrect")

	cfg := testConfig()
	cfg.Workers = 1
	obs := &recordingObserver{}
	u, _ := newTestUploader(t, cfg, map[string]string{"a": "1", "b": "2"}, remote, WithObserver(obs))

	report, err := u.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Failed)
	assert.Zero(t, report.Uploaded)
	assert.Zero(t, remote.count("STOR"))
	assert.Equal(t, 1, remote.count("QUIT"), "a failed session still closes its connection")

	require.Len(t, report.SessionErrors, 1)
	var serr *SessionError
	require.ErrorAs(t, report.SessionErrors[0], &serr)
	assert.Equal(t, StageLogin, serr.Stage)
	assert.Equal(t, 1, serr.Worker)

	for _, f := range report.Failures {
		assert.Zero(t, f.Attempts)
		assert.ErrorIs(t, f, remote.loginErr)
	}
	assert.Equal(t, []int{1}, obs.failed)
}

func TestSession_AnonymousSkipsLogin(t *testing.T) {
	remote := newFakeRemote("/up")
	remote.loginErr = errors.New("should not be called")

	cfg := testConfig()
	cfg.Username, cfg.Password = "", ""
	u, _ := newTestUploader(t, cfg, map[string]string{"a": "1"}, remote)

	report, err := u.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Uploaded)
	assert.Zero(t, remote.count("USER"))
}

func TestSession_MissingRemoteRoot(t *testing.T) {
	remote := newFakeRemote()

	u, _ := newTestUploader(t, testConfig(), map[string]string{"a": "1"}, remote)
	report, err := u.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.SessionErrors, 1)
	var serr *SessionError
	require.ErrorAs(t, report.SessionErrors[0], &serr)
	assert.Equal(t, StageRemoteRoot, serr.Stage)
	assert.Equal(t, 1, report.Failed)
}

func TestSession_CanceledBeforeStart(t *testing.T) {
	remote := newFakeRemote("/up")
	u, _ := newTestUploader(t, testConfig(), map[string]string{"a": "1", "b": "2", "c": "3"}, remote)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := u.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Found)
	assert.Equal(t, 3, report.Failed)
	assert.Zero(t, remote.count("STOR"))
	for _, f := range report.Failures {
		assert.ErrorIs(t, f, context.Canceled)
	}
}

// cancelOnRetry cancels the run as soon as a retry is scheduled.
type cancelOnRetry struct {
	NopObserver
	cancel context.CancelFunc
}

func (c cancelOnRetry) RetryScheduled(int, UploadTask, int, time.Duration, error) {
	c.cancel()
}

func TestSession_CanceledDuringBackoff(t *testing.T) {
	remote := newFakeRemote("/up")
	remote.storeFailures["/up/a"] = 1

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := testConfig()
	cfg.Workers = 1
	cfg.RetryLimit = 5
	cfg.RetryDelay = time.Hour
	u, _ := newTestUploader(t, cfg, map[string]string{"a": "1", "b": "2"}, remote,
		WithObserver(cancelOnRetry{cancel: cancel}))

	report, err := u.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Failed)
	assert.Equal(t, report.Found, report.Uploaded+report.Failed)
	require.Len(t, report.Failures, 2)
	assert.Equal(t, 1, report.Failures[0].Attempts)
	assert.ErrorIs(t, report.Failures[0], context.Canceled)
	assert.Zero(t, report.Failures[1].Attempts)
}

func TestSession_LocalReadErrorIsRetried(t *testing.T) {
	remote := newFakeRemote("/up")

	cfg := testConfig()
	cfg.RetryLimit = 1
	u, _ := newTestUploader(t, cfg, map[string]string{"a": "1"}, remote)

	// Remove the local file after enumeration by wrapping the enumerator.
	tree := u.fs
	inner := u.enumerator
	u.enumerator = enumeratorFunc(func(root string) ([]UploadTask, error) {
		seq, err := inner.Enumerate(root)
		if err != nil {
			return nil, err
		}
		var tasks []UploadTask
		for task := range seq {
			tasks = append(tasks, task)
		}
		require.NoError(t, tree.Remove("site/a"))
		return tasks, nil
	})

	report, err := u.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, 2, report.Failures[0].Attempts)
	assert.Contains(t, report.Failures[0].Error(), "open site/a")
}

func TestSessionStateString(t *testing.T) {
	states := map[SessionState]string{
		StateDisconnected:  "disconnected",
		StateConnecting:    "connecting",
		StateAuthenticated: "authenticated",
		StateReady:         "ready",
		StateMirroring:     "mirroring",
		StateTransferring:  "transferring",
		StateIdle:          "idle",
		StateClosed:        "closed",
		SessionState(99):   "SessionState(99)",
	}
	for state, want := range states {
		assert.Equal(t, want, state.String())
	}
}
