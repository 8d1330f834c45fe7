package loop

import (
	"context"
	"sync"
)

// Handle exposes the result, error, and cancellation of a submitted task.
type Handle struct {
	ctx    context.Context
	cancel context.CancelFunc

	once  sync.Once
	done  chan struct{}
	value any
	err   error
}

// Cancel requests cooperative cancellation. The task observes it at its
// next suspension point; completion of the cancellation is not awaited.
func (h *Handle) Cancel() {
	h.cancel()
}

// Done returns a channel closed when the task finishes.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Result waits for the task and returns its outcome, or ctx's error if
// the caller gives up first.
func (h *Handle) Result(ctx context.Context) (any, error) {
	select {
	case <-h.done:
		return h.value, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Handle) complete(value any, err error) {
	h.once.Do(func() {
		h.value = value
		h.err = err
		close(h.done)
	})
}
