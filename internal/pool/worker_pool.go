// Package pool provides the bounded worker pool for blocking tasks.
//
// Blocking work — sandboxed code execution, OCR, synchronous clipboard
// access — runs here instead of on the event loop. The pool holds a fixed
// number of workers and a bounded queue; once the queue is full further
// submissions are rejected immediately rather than queuing unbounded.
package pool

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/textflow/types"
)

// Sentinel errors returned by Submit.
var (
	ErrPoolClosed    = types.NewError(types.ErrEngineClosed, "worker pool is closed")
	ErrPoolSaturated = types.NewError(types.ErrPoolSaturated, "worker pool queue is full")
)

// errTimedOut resolves futures whose deadline elapsed.
var errTimedOut = types.NewError(types.ErrTimeout, "blocking task timed out")

// BlockingFunc is a unit of blocking work.
type BlockingFunc func() (any, error)

// Config configures the pool.
type Config struct {
	// Size is the number of workers.
	Size int
	// QueueSize is the pending-task bound beyond running workers.
	QueueSize int
	// ShutdownGrace bounds how long Shutdown waits for running workers.
	ShutdownGrace time.Duration
}

// DefaultConfig returns defaults sized for a single-user desktop session.
func DefaultConfig() Config {
	return Config{
		Size:          4,
		QueueSize:     16,
		ShutdownGrace: 5 * time.Second,
	}
}

// WorkerPool executes blocking tasks on a fixed set of workers.
type WorkerPool struct {
	taskQueue chan *task
	closed    atomic.Bool
	wg        sync.WaitGroup
	grace     time.Duration
	logger    *zap.Logger

	// Metrics
	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64
	timedOut  atomic.Int64
}

type task struct {
	fn     BlockingFunc
	future *Future
}

// New creates a pool and starts its workers.
func New(cfg Config, logger *zap.Logger) *WorkerPool {
	if cfg.Size <= 0 {
		cfg.Size = DefaultConfig().Size
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = DefaultConfig().ShutdownGrace
	}

	p := &WorkerPool{
		taskQueue: make(chan *task, cfg.QueueSize),
		grace:     cfg.ShutdownGrace,
		logger:    logger.With(zap.String("component", "worker_pool")),
	}

	p.wg.Add(cfg.Size)
	for i := 0; i < cfg.Size; i++ {
		go p.worker()
	}

	return p
}

// Submit schedules a blocking function and returns its future.
//
// A full queue rejects immediately with POOL_SATURATED. A positive timeout
// resolves the future with TIMEOUT when it elapses; the timeout is
// best-effort only — the underlying blocking call is NOT interrupted and
// keeps occupying its worker until it returns on its own.
func (p *WorkerPool) Submit(fn BlockingFunc, timeout time.Duration) (*Future, error) {
	if p.closed.Load() {
		return nil, ErrPoolClosed
	}

	f := newFuture()
	if timeout > 0 {
		timer := time.AfterFunc(timeout, func() {
			if f.resolve(nil, errTimedOut) {
				p.timedOut.Add(1)
				p.logger.Warn("blocking task timed out; worker remains occupied",
					zap.Duration("timeout", timeout))
			}
		})
		f.timer = timer
	}

	select {
	case p.taskQueue <- &task{fn: fn, future: f}:
		p.submitted.Add(1)
		return f, nil
	default:
		if f.timer != nil {
			f.timer.Stop()
		}
		p.rejected.Add(1)
		return nil, ErrPoolSaturated
	}
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()

	for t := range p.taskQueue {
		value, err := p.run(t.fn)
		if t.future.resolve(value, err) {
			if err != nil {
				p.failed.Add(1)
			} else {
				p.completed.Add(1)
			}
		}
	}
}

func (p *WorkerPool) run(fn BlockingFunc) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("blocking task panicked", zap.Any("panic", r))
			err = types.NewError(types.ErrUpstreamError, "blocking task panicked")
		}
	}()
	return fn()
}

// Shutdown stops accepting work, waits up to the configured grace period
// for queued and running tasks, then abandons any still-running workers
// rather than blocking process exit indefinitely.
func (p *WorkerPool) Shutdown() {
	if p.closed.Swap(true) {
		return
	}
	close(p.taskQueue)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Debug("worker pool drained")
	case <-time.After(p.grace):
		p.logger.Warn("worker pool shutdown grace elapsed; abandoning workers",
			zap.Duration("grace", p.grace))
	}
}

// Stats returns pool counters.
func (p *WorkerPool) Stats() Stats {
	return Stats{
		Queued:    len(p.taskQueue),
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Rejected:  p.rejected.Load(),
		TimedOut:  p.timedOut.Load(),
	}
}

// Stats contains pool counters.
type Stats struct {
	Queued    int   `json:"queued"`
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Rejected  int64 `json:"rejected"`
	TimedOut  int64 `json:"timed_out"`
}
