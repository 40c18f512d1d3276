package main

import (
	"time"

	"github.com/charmbracelet/log"

	"github.com/gonzalop/cymo"
)

// consoleObserver prints per-file progress and the retry countdown.
type consoleObserver struct {
	logger *log.Logger
}

func (o consoleObserver) SessionStarted(worker, files int) {
	o.logger.Info("session started", "worker", worker, "files", files)
}

func (o consoleObserver) SessionFailed(worker int, err error) {
	o.logger.Error("session failed", "worker", worker, "error", err)
}

func (o consoleObserver) FileUploaded(worker int, task cymo.UploadTask, bytes int64, mode cymo.TransferMode) {
	o.logger.Info("uploaded", "worker", worker, "path", task.RelPath, "bytes", bytes, "mode", mode)
}

func (o consoleObserver) FileFailed(worker int, err *cymo.TransferError) {
	o.logger.Error("giving up", "worker", worker, "path", err.Task.RelPath, "attempts", err.Attempts, "error", err.Err)
}

func (o consoleObserver) RetryScheduled(worker int, task cymo.UploadTask, attempt int, delay time.Duration, err error) {
	o.logger.Warn("upload failed", "worker", worker, "path", task.RelPath, "next_attempt", attempt, "delay", delay, "error", err)
}

func (o consoleObserver) RetryCountdown(worker int, task cymo.UploadTask, remaining time.Duration) {
	o.logger.Info("retrying in "+remaining.Round(time.Second).String(), "worker", worker, "path", task.RelPath)
}
