package stream

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/BaSui01/textflow/types"
)

func newTestAssembler(chunkSize int) *Assembler {
	return New(Config{ChunkSize: chunkSize}, zap.NewNop())
}

// feed returns a channel pre-loaded with the given fragments. When done is
// true a terminal marker follows the last fragment; otherwise the channel
// just closes, simulating a dropped connection.
func feed(fragments []string, done bool) <-chan types.StreamChunk {
	ch := make(chan types.StreamChunk, len(fragments)+1)
	for _, f := range fragments {
		ch <- types.StreamChunk{Content: f}
	}
	if done {
		ch <- types.StreamChunk{Done: true}
	}
	close(ch)
	return ch
}

func TestAssembler_HelloWorld(t *testing.T) {
	a := newTestAssembler(0)

	var deltas []string
	aggregate, err := a.Run(context.Background(), feed([]string{"He", "llo", " world"}, true), func(d string) {
		deltas = append(deltas, d)
	})

	require.NoError(t, err)
	assert.Equal(t, "Hello world", aggregate)
	assert.Equal(t, "Hello world", strings.Join(deltas, ""))
	assert.Equal(t, []string{"He", "llo", " world"}, deltas, "default policy flushes per fragment")
}

func TestAssembler_BatchedFlush(t *testing.T) {
	a := newTestAssembler(6)

	var deltas []string
	aggregate, err := a.Run(context.Background(), feed([]string{"ab", "cd", "ef", "gh"}, true), func(d string) {
		deltas = append(deltas, d)
	})

	require.NoError(t, err)
	assert.Equal(t, "abcdefgh", aggregate)
	assert.Equal(t, []string{"abcdef", "gh"}, deltas, "deltas accumulate until the threshold, final flush on terminal")
}

func TestAssembler_IncompleteStream(t *testing.T) {
	a := newTestAssembler(0)

	var deltas []string
	_, err := a.Run(context.Background(), feed([]string{"partial ", "answer"}, false), func(d string) {
		deltas = append(deltas, d)
	})

	require.Error(t, err)
	var e *types.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, types.ErrIncompleteStream, e.Code)
	assert.Equal(t, "partial answer", e.Partial)
}

func TestAssembler_IncompleteStreamKeepsUnflushedInPartial(t *testing.T) {
	// Threshold larger than the input: nothing was flushed, but the
	// partial must still carry everything assembled.
	a := newTestAssembler(1024)

	emitted := 0
	_, err := a.Run(context.Background(), feed([]string{"buffered"}, false), func(string) {
		emitted++
	})

	var e *types.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, types.ErrIncompleteStream, e.Code)
	assert.Equal(t, "buffered", e.Partial)
	assert.Zero(t, emitted)
}

func TestAssembler_SplitMultiByteRune(t *testing.T) {
	a := newTestAssembler(0)

	// "héllo" with the two-byte é split across fragments.
	raw := []byte("héllo")
	fragments := []string{string(raw[:2]), string(raw[2:])}

	aggregate, err := a.Run(context.Background(), feed(fragments, true), func(string) {})
	require.NoError(t, err)
	assert.Equal(t, "héllo", aggregate)
}

func TestAssembler_MalformedFragment(t *testing.T) {
	a := newTestAssembler(0)

	_, err := a.Run(context.Background(), feed([]string{"ok", "\xff\xfe"}, true), func(string) {})

	var e *types.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, types.ErrUpstreamError, e.Code)
}

func TestAssembler_TerminalInsideMultiByteSequence(t *testing.T) {
	a := newTestAssembler(0)

	raw := []byte("é")
	_, err := a.Run(context.Background(), feed([]string{string(raw[:1])}, true), func(string) {})

	var e *types.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, types.ErrUpstreamError, e.Code)
}

func TestAssembler_TransportError(t *testing.T) {
	a := newTestAssembler(0)

	ch := make(chan types.StreamChunk, 2)
	ch <- types.StreamChunk{Content: "some "}
	ch <- types.StreamChunk{Err: types.NewError(types.ErrRateLimited, "429").WithRetryable(true)}
	close(ch)

	_, err := a.Run(context.Background(), ch, func(string) {})

	var e *types.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, types.ErrRateLimited, e.Code)
	assert.Equal(t, "some ", e.Partial)
}

func TestAssembler_Cancellation(t *testing.T) {
	a := newTestAssembler(1024)

	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan types.StreamChunk)

	emitted := 0
	done := make(chan struct{})
	var runErr error
	go func() {
		defer close(done)
		_, runErr = a.Run(ctx, ch, func(string) { emitted++ })
	}()

	ch <- types.StreamChunk{Content: "never flushed"}
	cancel()
	<-done

	require.Error(t, runErr)
	assert.True(t, types.IsCancelled(runErr))
	assert.True(t, errors.Is(runErr, context.Canceled))
	assert.Zero(t, emitted, "buffered-but-unflushed text is discarded on cancel")
}

func TestAssembler_DeltasConcatenateToAggregate(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		text := rapid.String().Draw(t, "text")
		chunkSize := rapid.IntRange(0, 32).Draw(t, "chunkSize")

		// Split the text at arbitrary byte boundaries; split runes must
		// reassemble transparently.
		raw := []byte(text)
		var fragments []string
		for len(raw) > 0 {
			n := rapid.IntRange(1, len(raw)).Draw(t, "cut")
			fragments = append(fragments, string(raw[:n]))
			raw = raw[n:]
		}

		a := newTestAssembler(chunkSize)
		var joined strings.Builder
		aggregate, err := a.Run(context.Background(), feed(fragments, true), func(d string) {
			joined.WriteString(d)
		})

		if err != nil {
			t.Fatalf("assembly failed: %v", err)
		}
		if aggregate != text {
			t.Fatalf("aggregate %q != input %q", aggregate, text)
		}
		if joined.String() != text {
			t.Fatalf("joined deltas %q != input %q", joined.String(), text)
		}
	})
}
