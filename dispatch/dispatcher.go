// Package dispatch provides the request dispatcher.
//
// The dispatcher is the engine's entry point. It maps function types to
// registered handlers, computes request fingerprints, serves cache hits,
// coalesces identical concurrent requests onto a single upstream call,
// cancels a session's previous request when a new one arrives, and fans
// terminal results out to every attached subscriber.
//
// Coalescing is an explicit fan-out: the first caller for a fingerprint
// becomes the owner issuing the upstream call, later callers attach as
// listeners, and the owner alone tears the in-flight entry down on
// completion or cancellation, so no orphaned entries outlive a request.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/textflow/cache"
	"github.com/BaSui01/textflow/internal/loop"
	"github.com/BaSui01/textflow/internal/metrics"
	"github.com/BaSui01/textflow/stream"
	"github.com/BaSui01/textflow/types"
)

// ErrDispatcherClosed rejects dispatches after Close.
var ErrDispatcherClosed = types.NewError(types.ErrEngineClosed, "dispatcher is closed")

// Upstream is the AI-client collaborator: an ordered fragment stream
// with an explicit or implicit (connection-close) terminal signal,
// cancelled through the request context.
type Upstream interface {
	Stream(ctx context.Context, model string, messages []types.Message) (<-chan types.StreamChunk, error)
}

// Handler renders the upstream prompt for one function type.
type Handler interface {
	BuildPrompt(req types.Request) ([]types.Message, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(req types.Request) ([]types.Message, error)

// BuildPrompt implements Handler.
func (f HandlerFunc) BuildPrompt(req types.Request) ([]types.Message, error) {
	return f(req)
}

// Dispatcher orchestrates request lifecycles. All mutations of the
// in-flight table and session state run under a single mutex.
type Dispatcher struct {
	mu       sync.Mutex
	handlers map[types.FunctionType]Handler
	inflight map[types.Fingerprint]*inFlight
	sessions map[string]*session

	upstream  Upstream
	loop      *loop.Loop
	assembler *stream.Assembler
	cache     *cache.ResponseCache // nil when caching is disabled
	metrics   *metrics.Collector
	logger    *zap.Logger
	closed    atomic.Bool
}

// inFlight is one outstanding upstream call and its attached subscribers.
type inFlight struct {
	fingerprint types.Fingerprint
	function    types.FunctionType
	started     time.Time
	subscribers []*subscriber

	// handle is set shortly after submission; cancelRequested covers
	// a supersession arriving in that window.
	handle          *loop.Handle
	cancelRequested bool
}

// session tracks one interaction context: its generation counter and the
// in-flight request it most recently started or joined.
type session struct {
	generation uint64
	current    *inFlight
}

// New creates a dispatcher. cache may be nil to disable caching.
func New(upstream Upstream, lp *loop.Loop, assembler *stream.Assembler, respCache *cache.ResponseCache, collector *metrics.Collector, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		handlers:  make(map[types.FunctionType]Handler),
		inflight:  make(map[types.Fingerprint]*inFlight),
		sessions:  make(map[string]*session),
		upstream:  upstream,
		loop:      lp,
		assembler: assembler,
		cache:     respCache,
		metrics:   collector,
		logger:    logger.With(zap.String("component", "dispatcher")),
	}
}

// Register binds a handler to a function type, overwriting any existing
// binding for that type.
func (d *Dispatcher) Register(functionType types.FunctionType, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[functionType] = handler
	d.logger.Info("registered function handler", zap.String("function", string(functionType)))
}

// Dispatch starts (or joins, or answers from cache) a unit of work and
// returns the caller's subscription.
//
// UNKNOWN_FUNCTION and submission failures surface synchronously; all
// other outcomes arrive as subscription events.
func (d *Dispatcher) Dispatch(req types.Request) (*Subscription, error) {
	if d.closed.Load() {
		return nil, ErrDispatcherClosed
	}

	d.mu.Lock()
	handler, ok := d.handlers[req.FunctionType]
	d.mu.Unlock()
	if !ok {
		return nil, types.NewError(types.ErrUnknownFunction,
			fmt.Sprintf("no handler registered for %q", req.FunctionType))
	}

	messages, err := handler.BuildPrompt(req)
	if err != nil {
		if _, ok := err.(*types.Error); ok {
			return nil, err
		}
		return nil, types.NewError(types.ErrInvalidRequest, "prompt rendering failed").WithCause(err)
	}

	fp := Fingerprint(req.SessionID, req.FunctionType, req.ModelID, messages)

	d.mu.Lock()
	sess := d.sessions[req.SessionID]
	if sess == nil {
		sess = &session{}
		d.sessions[req.SessionID] = sess
	}
	sess.generation++
	gen := sess.generation

	if d.cache != nil {
		if text, ok := d.cache.Get(fp); ok {
			d.metrics.RecordCacheHit()
			d.metrics.RecordDispatch(string(req.FunctionType), "cache_hit", 0)
			d.mu.Unlock()

			d.logger.Debug("cache hit", zap.String("fingerprint", string(fp)))
			events := make(chan types.Event, 1)
			events <- types.Event{Kind: types.EventComplete, Text: text, Generation: gen}
			close(events)
			return &Subscription{fingerprint: fp, generation: gen, events: events}, nil
		}
		d.metrics.RecordCacheMiss()
	}

	// A new unit of work supersedes the session's previous one. An
	// identical fingerprint is the same unit of work and joins instead.
	if sess.current != nil && sess.current.fingerprint != fp {
		d.supersedeLocked(req.SessionID, sess.current)
		sess.current = nil
	}

	sub := &subscriber{
		sessionID:  req.SessionID,
		generation: gen,
		events:     make(chan types.Event, subscriberBuffer),
	}

	if entry, ok := d.inflight[fp]; ok {
		entry.subscribers = append(entry.subscribers, sub)
		sess.current = entry
		d.metrics.RecordCoalesced()
		d.mu.Unlock()

		d.logger.Debug("joined in-flight request", zap.String("fingerprint", string(fp)))
		return d.newSubscription(entry, sub), nil
	}

	entry := &inFlight{
		fingerprint: fp,
		function:    req.FunctionType,
		started:     time.Now(),
		subscribers: []*subscriber{sub},
	}
	d.inflight[fp] = entry
	sess.current = entry
	d.metrics.InFlightStarted()
	d.mu.Unlock()

	handle, err := d.loop.Submit(func(ctx context.Context) (any, error) {
		return nil, d.run(ctx, entry, req.ModelID, messages)
	})
	if err != nil {
		d.teardown(entry)
		d.metrics.RecordDispatch(string(req.FunctionType), "error", 0)
		return nil, err
	}

	d.mu.Lock()
	entry.handle = handle
	if entry.cancelRequested {
		handle.Cancel()
	}
	d.mu.Unlock()

	d.logger.Debug("started upstream request",
		zap.String("fingerprint", string(fp)),
		zap.String("function", string(req.FunctionType)))
	return d.newSubscription(entry, sub), nil
}

func (d *Dispatcher) newSubscription(entry *inFlight, sub *subscriber) *Subscription {
	return &Subscription{
		fingerprint: entry.fingerprint,
		generation:  sub.generation,
		events:      sub.events,
		cancel:      func() { d.detach(entry, sub) },
	}
}

// run is the owner task for one in-flight entry. It alone tears the
// entry down, on every path.
func (d *Dispatcher) run(ctx context.Context, entry *inFlight, modelID string, messages []types.Message) error {
	chunks, err := d.upstream.Stream(ctx, modelID, messages)
	if err != nil {
		d.finish(ctx, entry, "", err)
		return err
	}

	aggregate, err := d.assembler.Run(ctx, chunks, func(delta string) {
		d.broadcastDelta(entry, delta)
	})
	d.finish(ctx, entry, aggregate, err)
	return err
}

// finish stores the result, notifies subscribers, and removes the entry.
func (d *Dispatcher) finish(ctx context.Context, entry *inFlight, aggregate string, err error) {
	elapsed := time.Since(entry.started)
	outcome := "complete"

	var terminal types.Event
	switch {
	case err == nil:
		// Only complete aggregates reach the cache; cancelled and
		// partial results never do.
		if d.cache != nil {
			d.cache.Put(entry.fingerprint, aggregate)
		}
		terminal = types.Event{Kind: types.EventComplete, Text: aggregate}

	case types.IsCancelled(err) || ctx.Err() != nil:
		outcome = "cancelled"
		terminal = types.Event{Kind: types.EventCancelled}

	default:
		outcome = "error"
		e, ok := err.(*types.Error)
		if !ok {
			e = types.NewError(types.ErrUpstreamError, "request failed").WithCause(err)
		}
		terminal = types.Event{Kind: types.EventError, Err: e}
	}

	d.mu.Lock()
	subs := entry.subscribers
	entry.subscribers = nil
	d.removeEntryLocked(entry)
	for _, s := range subs {
		s.sendTerminal(terminal)
	}
	d.mu.Unlock()

	d.metrics.InFlightFinished()
	d.metrics.RecordDispatch(string(entry.function), outcome, elapsed)
	d.logger.Debug("request finished",
		zap.String("fingerprint", string(entry.fingerprint)),
		zap.String("outcome", outcome),
		zap.Duration("elapsed", elapsed))
}

func (d *Dispatcher) broadcastDelta(entry *inFlight, delta string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range entry.subscribers {
		s.sendDelta(delta)
	}
}

// supersedeLocked detaches a session's subscribers from its previous
// in-flight entry, delivering CANCELLED to them alone. The upstream call
// itself is cancelled only when nobody else is still attached; the owner
// task then observes the cancellation and tears the entry down. The new
// task is not made to wait for that teardown.
func (d *Dispatcher) supersedeLocked(sessionID string, old *inFlight) {
	remaining := old.subscribers[:0]
	for _, s := range old.subscribers {
		if s.sessionID == sessionID {
			s.sendTerminal(types.Event{Kind: types.EventCancelled})
			d.metrics.RecordSuperseded()
		} else {
			remaining = append(remaining, s)
		}
	}
	old.subscribers = remaining

	if len(remaining) == 0 {
		old.cancelRequested = true
		if old.handle != nil {
			old.handle.Cancel()
		}
		d.logger.Debug("superseded request cancelled",
			zap.String("fingerprint", string(old.fingerprint)))
	}
}

// detach removes a single subscriber (Subscription.Cancel).
func (d *Dispatcher) detach(entry *inFlight, sub *subscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()

	found := false
	remaining := entry.subscribers[:0]
	for _, s := range entry.subscribers {
		if s == sub {
			found = true
			continue
		}
		remaining = append(remaining, s)
	}
	if !found {
		return
	}
	entry.subscribers = remaining
	sub.sendTerminal(types.Event{Kind: types.EventCancelled})

	if sess := d.sessions[sub.sessionID]; sess != nil && sess.current == entry {
		sess.current = nil
	}
	if len(remaining) == 0 {
		entry.cancelRequested = true
		if entry.handle != nil {
			entry.handle.Cancel()
		}
	}
}

// teardown rolls back an entry whose task never started.
func (d *Dispatcher) teardown(entry *inFlight) {
	d.mu.Lock()
	subs := entry.subscribers
	entry.subscribers = nil
	d.removeEntryLocked(entry)
	for _, s := range subs {
		s.sendTerminal(types.Event{Kind: types.EventCancelled})
	}
	d.mu.Unlock()
	d.metrics.InFlightFinished()
}

// removeEntryLocked deletes the in-flight entry and clears any session
// still pointing at it.
func (d *Dispatcher) removeEntryLocked(entry *inFlight) {
	if d.inflight[entry.fingerprint] == entry {
		delete(d.inflight, entry.fingerprint)
	}
	for _, sess := range d.sessions {
		if sess.current == entry {
			sess.current = nil
		}
	}
}

// InFlightCount returns the number of outstanding upstream calls.
func (d *Dispatcher) InFlightCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.inflight)
}

// Close stops accepting dispatches and cancels all outstanding requests.
func (d *Dispatcher) Close() {
	if d.closed.Swap(true) {
		return
	}

	d.mu.Lock()
	for _, entry := range d.inflight {
		entry.cancelRequested = true
		if entry.handle != nil {
			entry.handle.Cancel()
		}
	}
	d.mu.Unlock()
}
