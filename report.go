package cymo

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Report summarizes a run. Uploaded + Failed always equals Found.
type Report struct {
	RunID    uuid.UUID
	Found    int
	Uploaded int
	Failed   int
	Bytes    int64
	Workers  int
	Elapsed  time.Duration

	// Failures lists the tasks that were not uploaded, ordered by worker
	// and then by position in the worker's share.
	Failures []*TransferError

	// SessionErrors holds one *SessionError per worker whose session could
	// not be established, ordered by worker.
	SessionErrors []error
}

// OK reports whether every found file was uploaded.
func (r *Report) OK() bool {
	return r.Failed == 0
}

// tally collects session outcomes from the workers.
type tally struct {
	mu       sync.Mutex
	outcomes []SessionOutcome
}

func (t *tally) merge(out SessionOutcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.outcomes = append(t.outcomes, out)
}

// fill adds the merged outcomes to r. Workers must have finished.
func (t *tally) fill(r *Report) {
	t.mu.Lock()
	defer t.mu.Unlock()

	slices.SortFunc(t.outcomes, func(a, b SessionOutcome) int {
		return cmp.Compare(a.Worker, b.Worker)
	})
	for _, out := range t.outcomes {
		r.Uploaded += out.Uploaded
		r.Bytes += out.Bytes
		r.Failed += len(out.Failures)
		r.Failures = append(r.Failures, out.Failures...)
		if out.Err != nil {
			r.SessionErrors = append(r.SessionErrors, out.Err)
		}
	}
}
