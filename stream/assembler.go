// Package stream provides the stream assembler.
//
// The assembler consumes the ordered fragment sequence produced by the
// upstream transport and turns it into text deltas plus a final aggregate.
// It trusts transport ordering and never reorders, but fails on malformed
// input such as invalid or truncated UTF-8 sequences.
package stream

import (
	"context"

	"go.uber.org/zap"

	"github.com/BaSui01/textflow/types"
)

// Config configures delta flushing.
type Config struct {
	// ChunkSize batches deltas until this many bytes accumulate before
	// flushing. Values <= 1 flush per fragment (lowest latency). This is
	// a latency/throughput trade-off only, never a correctness concern.
	ChunkSize int
}

// Assembler reassembles raw fragments into ordered deltas and an aggregate.
// An Assembler is stateless across runs; each Run handles one request.
type Assembler struct {
	flushThreshold int
	logger         *zap.Logger
}

// New creates an assembler.
func New(cfg Config, logger *zap.Logger) *Assembler {
	threshold := cfg.ChunkSize
	if threshold < 1 {
		threshold = 1
	}
	return &Assembler{
		flushThreshold: threshold,
		logger:         logger.With(zap.String("component", "assembler")),
	}
}

// Run consumes fragments until a terminal marker and returns the aggregate.
// Every flushed delta is passed to emit before Run returns; concatenating
// all deltas yields exactly the returned aggregate.
//
// A chunk with Done set (or carried by transport close through the
// producing goroutine) triggers the final flush. A channel that closes
// without a terminal marker yields INCOMPLETE_STREAM carrying the partial
// text assembled so far. On context cancellation Run stops reading,
// discards buffered-but-unflushed text, and returns CANCELLED; the
// transport is closed by the ctx-aware producer.
func (a *Assembler) Run(ctx context.Context, chunks <-chan types.StreamChunk, emit func(delta string)) (string, error) {
	var (
		aggregate []byte
		pending   []byte // validated but not yet flushed
		carry     []byte // trailing bytes of a split multi-byte sequence
	)

	flush := func() {
		if len(pending) == 0 {
			return
		}
		emit(string(pending))
		pending = pending[:0]
	}

	for {
		select {
		case <-ctx.Done():
			a.logger.Debug("assembly cancelled",
				zap.Int("assembled_bytes", len(aggregate)))
			return "", types.NewError(types.ErrCancelled, "stream assembly cancelled").
				WithCause(ctx.Err())

		case chunk, ok := <-chunks:
			if !ok {
				// Transport ended without a terminal marker.
				partial := string(aggregate) + string(pending)
				a.logger.Warn("stream ended without terminal marker",
					zap.Int("partial_bytes", len(partial)))
				return "", types.NewError(types.ErrIncompleteStream, "stream ended without terminal marker").
					WithPartial(partial)
			}

			if chunk.Err != nil {
				partial := string(aggregate) + string(pending)
				if e, ok := chunk.Err.(*types.Error); ok {
					return "", e.WithPartial(partial)
				}
				return "", types.NewError(types.ErrUpstreamError, "stream transport failed").
					WithCause(chunk.Err).
					WithPartial(partial)
			}

			if chunk.Content != "" {
				valid, rest, err := validUTF8Prefix(append(carry, chunk.Content...))
				if err != nil {
					return "", err
				}
				carry = rest
				pending = append(pending, valid...)
				aggregate = append(aggregate, valid...)
				if len(pending) >= a.flushThreshold {
					flush()
				}
			}

			if chunk.Done {
				if len(carry) > 0 {
					return "", types.NewError(types.ErrUpstreamError,
						"stream ended inside a multi-byte sequence")
				}
				flush()
				return string(aggregate), nil
			}
		}
	}
}
