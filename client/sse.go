package client

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/textflow/types"
)

// readStream parses the SSE response body into ordered chunks.
//
// Each "data:" line carries a JSON delta; "data: [DONE]" is the terminal
// marker and produces a Done chunk before the channel closes. EOF without
// the marker closes the channel directly — the assembler treats that as
// an incomplete stream. On ctx cancellation the goroutine closes the
// body and stops without emitting further chunks.
func (c *Client) readStream(ctx context.Context, resp *http.Response) <-chan types.StreamChunk {
	ch := make(chan types.StreamChunk)
	go func() {
		defer resp.Body.Close()
		defer close(ch)

		reader := bufio.NewReader(resp.Body)
		for {
			if ctx.Err() != nil {
				return
			}

			line, err := reader.ReadString('\n')
			if err != nil {
				if err != io.EOF && ctx.Err() == nil {
					select {
					case <-ctx.Done():
					case ch <- types.StreamChunk{Err: types.NewError(types.ErrUpstreamError, "stream read failed").
						WithCause(err).
						WithRetryable(true)}:
					}
				}
				// EOF without the terminal marker: plain close.
				return
			}

			line = strings.TrimSpace(line)
			if line == "" || !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				select {
				case <-ctx.Done():
				case ch <- types.StreamChunk{Done: true}:
				}
				return
			}

			var delta chatStreamResponse
			if err := json.Unmarshal([]byte(data), &delta); err != nil {
				c.logger.Warn("dropping undecodable stream event", zap.Error(err))
				select {
				case <-ctx.Done():
				case ch <- types.StreamChunk{Err: types.NewError(types.ErrUpstreamError, "undecodable stream event").
					WithCause(err)}:
				}
				return
			}

			for _, choice := range delta.Choices {
				if choice.Delta == nil || choice.Delta.Content == "" {
					continue
				}
				select {
				case <-ctx.Done():
					return
				case ch <- types.StreamChunk{Content: choice.Delta.Content}:
				}
			}
		}
	}()
	return ch
}
