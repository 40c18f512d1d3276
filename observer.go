package cymo

import "time"

// Observer receives progress events from the sessions. Methods are called
// on the worker goroutines, concurrently across workers, and must not block.
type Observer interface {
	// SessionStarted is called when a worker begins with its share.
	SessionStarted(worker, files int)

	// SessionFailed is called when a session cannot be established.
	SessionFailed(worker int, err error)

	// FileUploaded is called after a successful store.
	FileUploaded(worker int, task UploadTask, bytes int64, mode TransferMode)

	// FileFailed is called once per task that ends up in the report's
	// failure list.
	FileFailed(worker int, err *TransferError)

	// RetryScheduled is called after a failed attempt that will be retried.
	RetryScheduled(worker int, task UploadTask, attempt int, delay time.Duration, err error)

	// RetryCountdown ticks once per second while waiting to retry.
	RetryCountdown(worker int, task UploadTask, remaining time.Duration)
}

// NopObserver ignores every event. Embed it to implement a subset.
type NopObserver struct{}

func (NopObserver) SessionStarted(int, int) {}
func (NopObserver) SessionFailed(int, error) {}
func (NopObserver) FileUploaded(int, UploadTask, int64, TransferMode) {}
func (NopObserver) FileFailed(int, *TransferError) {}
func (NopObserver) RetryScheduled(int, UploadTask, int, time.Duration, error) {}
func (NopObserver) RetryCountdown(int, UploadTask, time.Duration) {}
