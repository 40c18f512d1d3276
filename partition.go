package cymo

import "runtime"

// WorkShare is the contiguous run of tasks assigned to one worker.
type WorkShare struct {
	// Worker is the 1-based worker index.
	Worker int
	Tasks  []UploadTask
}

// WorkerCount returns how many sessions to run for the given number of
// tasks. requested <= 0 means one per CPU. The result is at least 1 and
// never more than tasks when tasks > 0.
func WorkerCount(requested, tasks int) int {
	n := requested
	if n <= 0 {
		n = runtime.NumCPU()
	}
	if tasks > 0 && n > tasks {
		n = tasks
	}
	return max(n, 1)
}

// Partition splits tasks into workers contiguous shares whose sizes differ
// by at most one, larger shares first. Concatenating the shares in order
// gives back tasks. No tasks yields no shares; workers < 1 is treated as 1.
func Partition(tasks []UploadTask, workers int) []WorkShare {
	if len(tasks) == 0 {
		return nil
	}
	workers = max(workers, 1)

	quotient, remainder := len(tasks)/workers, len(tasks)%workers
	shares := make([]WorkShare, 0, workers)
	start := 0
	for i := range workers {
		size := quotient
		if i < remainder {
			size++
		}
		shares = append(shares, WorkShare{
			Worker: i + 1,
			Tasks:  tasks[start : start+size : start+size],
		})
		start += size
	}
	return shares
}
