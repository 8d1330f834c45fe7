// Package client provides the upstream AI client.
//
// The client speaks the OpenAI-compatible chat completions protocol and
// delivers the response as an ordered fragment stream over SSE. The
// terminal marker is the "data: [DONE]" sentinel; a connection that
// closes without it is surfaced to the assembler as an incomplete
// stream by closing the chunk channel without a Done chunk.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/textflow/internal/tlsutil"
	"github.com/BaSui01/textflow/types"
)

// Config configures the upstream client.
type Config struct {
	// BaseURL of the OpenAI-compatible API, e.g. "https://api.openai.com/v1".
	BaseURL string
	// APIKey sent as a Bearer token.
	APIKey string
	// Model used when the request does not name one.
	Model string
	// Timeout bounds the wait for response headers; the streaming body
	// itself is bounded only by the request context.
	Timeout time.Duration
	// RateLimit caps client-side requests per second; 0 disables it.
	RateLimit float64
	// Temperature is the sampling temperature.
	Temperature float32
	// MaxTokens caps the completion length; 0 defers to upstream.
	MaxTokens int
}

// Client streams chat completions from an OpenAI-compatible endpoint.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// New creates an upstream client.
func New(cfg Config, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}

	return &Client{
		cfg:     cfg,
		http:    tlsutil.StreamingHTTPClient(timeout),
		limiter: limiter,
		logger:  logger.With(zap.String("component", "client")),
	}
}

type chatRequest struct {
	Model       string          `json:"model"`
	Messages    []types.Message `json:"messages"`
	Temperature float32         `json:"temperature,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Stream      bool            `json:"stream"`
}

type chatStreamResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int    `json:"index"`
		FinishReason string `json:"finish_reason"`
		Delta        *struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Stream issues a streaming chat completion and returns the ordered
// fragment channel. The channel is closed when the stream ends; a Done
// chunk precedes the close only if the terminal marker arrived. Cancel
// the context to abort: the reading goroutine closes the connection at
// its next read.
func (c *Client) Stream(ctx context.Context, model string, messages []types.Message) (<-chan types.StreamChunk, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, types.NewError(types.ErrCancelled, "rate limiter wait aborted").WithCause(err)
		}
	}

	if model == "" {
		model = c.cfg.Model
	}

	body := chatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
		Stream:      true,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	c.logger.Debug("issuing upstream request",
		zap.String("model", model),
		zap.Int("messages", len(messages)))

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, types.NewError(types.ErrCancelled, "request cancelled").WithCause(ctx.Err())
		}
		return nil, types.NewError(types.ErrUpstreamError, "upstream request failed").
			WithCause(err).
			WithRetryable(true)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, mapHTTPError(resp.StatusCode, readErrorMessage(resp.Body))
	}

	return c.readStream(ctx, resp), nil
}
