// Package dispatch implements the gateway's worker pool: distributing
// parsed requests across N worker processes, admission control on each
// worker's bounded queue, least-loaded dispatch with a pid tie-break, and
// the per-call gateway timeout.
package dispatch

import "github.com/flickpp/casket/internal/pyexec"

// Worker tracks one worker process's admission state: its bounded queue
// capacity (CASKET_MAX_REQUESTS) and how many requests are outstanding
// right now. The thread pool and interpreter living inside the process
// are opaque beyond the Executor interface. Outstanding is mutated only
// by the owning Pool, which serializes access with its own mutex: the
// same sole-mutator discipline the connection manager uses for its
// streams counter.
type Worker struct {
	Executor    pyexec.Executor
	Capacity    int
	Outstanding int

	// respawning is true while a Respawn for this worker is in flight,
	// guarded by the owning Pool's mutex. It dedups concurrent acquire()
	// calls that all notice the same dead worker at once.
	respawning bool
}

// NewWorker wraps an already-started Executor with admission bookkeeping.
func NewWorker(ex pyexec.Executor, capacity int) *Worker {
	return &Worker{Executor: ex, Capacity: capacity}
}

func (w *Worker) Pid() int { return w.Executor.Pid() }

func (w *Worker) hasCapacity() bool {
	return w.Outstanding < w.Capacity
}
