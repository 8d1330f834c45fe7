package pool

import (
	"context"
	"sync"
	"time"
)

// Future is the eventual result of a submitted blocking task.
// It resolves exactly once: with the task's value, its error, or TIMEOUT.
type Future struct {
	once  sync.Once
	done  chan struct{}
	value any
	err   error
	timer *time.Timer
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// resolve sets the outcome. Returns false if the future was already
// resolved (e.g. the deadline fired before the task finished).
func (f *Future) resolve(value any, err error) bool {
	resolved := false
	f.once.Do(func() {
		f.value = value
		f.err = err
		if f.timer != nil {
			f.timer.Stop()
		}
		close(f.done)
		resolved = true
	})
	return resolved
}

// Done returns a channel closed when the future resolves.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Get waits for resolution or ctx expiry.
func (f *Future) Get(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
