// Package loop provides the event loop bridge.
//
// One loop runs for the process lifetime on a dedicated goroutine and
// bridges synchronous callers into asynchronous work, removing the
// per-call cost of spinning schedulers up and down. Tasks are isolated:
// a panicking task resolves only its own handle and never takes the
// loop down with it. Blocking segments belong on the worker pool, not
// here.
package loop

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/textflow/types"
)

// ErrLoopClosed rejects submissions after shutdown began.
var ErrLoopClosed = types.NewError(types.ErrEngineClosed, "event loop is closed")

// Task is a unit of asynchronous work. The supplied context is cancelled
// by Handle.Cancel and by loop shutdown; tasks observe it at every
// suspension point and release held connections promptly when it fires.
type Task func(ctx context.Context) (any, error)

// Config configures the loop.
type Config struct {
	// QueueSize is the submission queue depth.
	QueueSize int
	// ShutdownGrace bounds how long Shutdown waits for outstanding tasks
	// before force-cancelling them.
	ShutdownGrace time.Duration
}

// DefaultConfig returns loop defaults.
func DefaultConfig() Config {
	return Config{
		QueueSize:     32,
		ShutdownGrace: 10 * time.Second,
	}
}

// Loop is the process-lifetime scheduler bridge.
type Loop struct {
	submissions chan *submission
	closed      atomic.Bool
	tasks       sync.WaitGroup
	grace       time.Duration
	logger      *zap.Logger

	// baseCtx parents every task context; cancelBase force-terminates
	// all outstanding tasks when the shutdown grace elapses.
	baseCtx    context.Context
	cancelBase context.CancelFunc

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	panicked  atomic.Int64
}

type submission struct {
	task   Task
	handle *Handle
}

// New creates the loop and starts its dispatch goroutine.
func New(cfg Config, logger *zap.Logger) *Loop {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = DefaultConfig().ShutdownGrace
	}

	baseCtx, cancelBase := context.WithCancel(context.Background())
	l := &Loop{
		submissions: make(chan *submission, cfg.QueueSize),
		grace:       cfg.ShutdownGrace,
		logger:      logger.With(zap.String("component", "event_loop")),
		baseCtx:     baseCtx,
		cancelBase:  cancelBase,
	}

	go l.run()
	return l
}

// Submit schedules a task and returns its handle.
func (l *Loop) Submit(task Task) (*Handle, error) {
	if l.closed.Load() {
		return nil, ErrLoopClosed
	}

	ctx, cancel := context.WithCancel(l.baseCtx)
	h := &Handle{ctx: ctx, cancel: cancel, done: make(chan struct{})}

	select {
	case l.submissions <- &submission{task: task, handle: h}:
		l.submitted.Add(1)
		return h, nil
	default:
		cancel()
		return nil, types.NewError(types.ErrPoolSaturated, "event loop submission queue is full")
	}
}

// run is the dispatch loop. It lives on its own goroutine for the
// process lifetime and only starts tasks; it never executes them inline,
// so one slow task cannot delay the next submission.
func (l *Loop) run() {
	for sub := range l.submissions {
		l.tasks.Add(1)
		go l.execute(sub)
	}
}

func (l *Loop) execute(sub *submission) {
	defer l.tasks.Done()
	defer sub.handle.cancel()

	defer func() {
		if r := recover(); r != nil {
			l.panicked.Add(1)
			l.logger.Error("task panicked", zap.Any("panic", r))
			sub.handle.complete(nil, types.NewError(types.ErrUpstreamError, "task panicked"))
		}
	}()

	value, err := sub.task(sub.handle.ctx)
	if err != nil {
		l.failed.Add(1)
	} else {
		l.completed.Add(1)
	}
	sub.handle.complete(value, err)
}

// Shutdown stops accepting submissions, gives outstanding tasks the
// configured grace period to unwind, then force-cancels whatever is left.
func (l *Loop) Shutdown() {
	if l.closed.Swap(true) {
		return
	}
	close(l.submissions)

	done := make(chan struct{})
	go func() {
		l.tasks.Wait()
		close(done)
	}()

	select {
	case <-done:
		l.logger.Debug("event loop drained")
	case <-time.After(l.grace):
		// Cooperative tasks unwind at their next suspension point;
		// anything still stuck is abandoned rather than waited on.
		l.logger.Warn("event loop shutdown grace elapsed; force-cancelling tasks",
			zap.Duration("grace", l.grace))
	}
	l.cancelBase()
}

// Stats returns loop counters.
func (l *Loop) Stats() Stats {
	return Stats{
		Queued:    len(l.submissions),
		Submitted: l.submitted.Load(),
		Completed: l.completed.Load(),
		Failed:    l.failed.Load(),
		Panicked:  l.panicked.Load(),
	}
}

// Stats contains loop counters.
type Stats struct {
	Queued    int   `json:"queued"`
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Panicked  int64 `json:"panicked"`
}
