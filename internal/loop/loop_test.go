package loop

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/textflow/types"
)

func newTestLoop(t *testing.T, cfg Config) *Loop {
	t.Helper()
	l := New(cfg, zap.NewNop())
	t.Cleanup(l.Shutdown)
	return l
}

func TestLoop_SubmitAndResult(t *testing.T) {
	l := newTestLoop(t, Config{})

	h, err := l.Submit(func(ctx context.Context) (any, error) {
		return "done", nil
	})
	require.NoError(t, err)

	value, err := h.Result(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "done", value)
}

func TestLoop_TaskError(t *testing.T) {
	l := newTestLoop(t, Config{})

	wantErr := errors.New("upstream exploded")
	h, err := l.Submit(func(ctx context.Context) (any, error) {
		return nil, wantErr
	})
	require.NoError(t, err)

	_, err = h.Result(context.Background())
	assert.ErrorIs(t, err, wantErr)
}

func TestLoop_CancelIsCooperative(t *testing.T) {
	l := newTestLoop(t, Config{})

	entered := make(chan struct{})
	h, err := l.Submit(func(ctx context.Context) (any, error) {
		close(entered)
		<-ctx.Done() // suspension point
		return nil, types.NewError(types.ErrCancelled, "task cancelled").WithCause(ctx.Err())
	})
	require.NoError(t, err)

	<-entered
	h.Cancel()

	_, err = h.Result(context.Background())
	assert.True(t, types.IsCancelled(err))
}

func TestLoop_PanicIsolatedToOwnHandle(t *testing.T) {
	l := newTestLoop(t, Config{})

	bad, err := l.Submit(func(ctx context.Context) (any, error) {
		panic("task bug")
	})
	require.NoError(t, err)

	_, err = bad.Result(context.Background())
	require.Error(t, err)

	// The loop keeps dispatching after a task panic.
	good, err := l.Submit(func(ctx context.Context) (any, error) {
		return "alive", nil
	})
	require.NoError(t, err)

	value, err := good.Result(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alive", value)
	assert.Equal(t, int64(1), l.Stats().Panicked)
}

func TestLoop_ConcurrentTasksDoNotSerialize(t *testing.T) {
	l := newTestLoop(t, Config{})

	gate := make(chan struct{})

	slow, err := l.Submit(func(ctx context.Context) (any, error) {
		<-gate
		return "slow", nil
	})
	require.NoError(t, err)

	fast, err := l.Submit(func(ctx context.Context) (any, error) {
		return "fast", nil
	})
	require.NoError(t, err)

	// The fast task completes while the slow one is still suspended.
	value, err := fast.Result(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fast", value)

	close(gate)
	value, err = slow.Result(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "slow", value)
}

func TestLoop_SubmitAfterShutdown(t *testing.T) {
	l := New(Config{}, zap.NewNop())
	l.Shutdown()

	_, err := l.Submit(func(ctx context.Context) (any, error) { return nil, nil })
	assert.ErrorIs(t, err, ErrLoopClosed)
}

func TestLoop_ShutdownCancelsOutstandingTasks(t *testing.T) {
	l := New(Config{ShutdownGrace: 20 * time.Millisecond}, zap.NewNop())

	entered := make(chan struct{})
	h, err := l.Submit(func(ctx context.Context) (any, error) {
		close(entered)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	require.NoError(t, err)
	<-entered

	start := time.Now()
	l.Shutdown()
	assert.Less(t, time.Since(start), time.Second)

	_, err = h.Result(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
}
