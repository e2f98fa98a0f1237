package dispatch

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/flickpp/casket/internal/casketlog"
	"github.com/flickpp/casket/internal/pyexec"
	"github.com/flickpp/casket/internal/wire"
)

// Spawner starts one new worker process and returns its Executor. The
// dispatcher calls it at startup for each of CASKET_NUM_WORKERS and
// again, from Respawn, whenever a worker's IPC connection dies.
type Spawner func() (pyexec.Executor, error)

// Outcome classifies how a Dispatch call ended, for logging and for the
// connection manager's keep-alive decision.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeSaturated
	OutcomeGatewayTimeout
	OutcomeApplicationError
	OutcomeIPCFailure
)

// Result is what Dispatch hands back to the connection manager: the
// response to write, plus enough metadata to log and decide keep-alive.
type Result struct {
	Response *wire.Response
	Outcome  Outcome
	ExcType  string // set on OutcomeApplicationError
}

// Pool is the gateway's view of every worker process: least-loaded
// dispatch with a lowest-pid tie-break, and capacity-aware admission
// that answers 503 only once no worker has spare room.
type Pool struct {
	mu      sync.Mutex
	workers []*Worker
	spawn   Spawner
	log     casketlog.Logger
	seq     atomic.Uint64

	returnStacktrace bool
	gatewayTimeout   time.Duration
}

// New starts numWorkers via spawn, each with the given per-worker queue
// capacity, and returns the assembled pool.
func New(numWorkers, capacity int, spawn Spawner, log casketlog.Logger, gatewayTimeout time.Duration, returnStacktrace bool) (*Pool, error) {
	p := &Pool{
		spawn:            spawn,
		log:              log,
		gatewayTimeout:   gatewayTimeout,
		returnStacktrace: returnStacktrace,
	}
	for i := 0; i < numWorkers; i++ {
		ex, err := spawn()
		if err != nil {
			return nil, err
		}
		p.workers = append(p.workers, NewWorker(ex, capacity))
	}
	return p, nil
}

// acquire picks the least-loaded worker with spare capacity, ties broken
// by lowest pid, and reserves a slot on it. Returns nil if every worker
// is at capacity or dead. A worker found dead here (whether or not a
// Submit against it ever failed) kicks off its own respawn so a crash
// doesn't permanently shrink the pool.
func (p *Pool) acquire() *Worker {
	p.mu.Lock()
	defer p.mu.Unlock()

	var best *Worker
	for _, w := range p.workers {
		if w.Executor.Dead() {
			go p.Respawn(w)
			continue
		}
		if !w.hasCapacity() {
			continue
		}
		if best == nil || w.Outstanding < best.Outstanding ||
			(w.Outstanding == best.Outstanding && w.Pid() < best.Pid()) {
			best = w
		}
	}
	if best != nil {
		best.Outstanding++
	}
	return best
}

func (p *Pool) release(w *Worker) {
	p.mu.Lock()
	w.Outstanding--
	p.mu.Unlock()
}

// Respawn replaces dead in place with a freshly spawned worker,
// preserving its slot (and thus its queue capacity) in the pool. Safe to
// call concurrently for the same worker: only the first caller actually
// spawns, and a failed spawn clears the in-flight flag so a later
// acquire() or Dispatch retries instead of leaving the slot dead forever.
func (p *Pool) Respawn(dead *Worker) error {
	p.mu.Lock()
	if dead.respawning {
		p.mu.Unlock()
		return nil
	}
	dead.respawning = true
	p.mu.Unlock()

	ex, err := p.spawn()
	if err != nil {
		p.mu.Lock()
		dead.respawning = false
		p.mu.Unlock()
		p.log.ErrorErr("worker respawn failed", err.Error(), nil)
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for i, w := range p.workers {
		if w == dead {
			p.workers[i] = NewWorker(ex, dead.Capacity)
			return nil
		}
	}
	p.workers = append(p.workers, NewWorker(ex, dead.Capacity))
	return nil
}

// NextSeq hands out the monotonically increasing sequence number used to
// correlate a RequestEnvelope with its eventual response frames.
func (p *Pool) NextSeq() uint64 { return p.seq.Add(1) }
