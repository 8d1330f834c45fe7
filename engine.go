// Package textflow is a concurrent request orchestration and streaming
// response engine for interactive text-processing functions backed by an
// OpenAI-compatible API.
//
// The Engine wires the pieces together: the dispatcher for coalescing
// and supersession, the event loop bridging synchronous callers into
// asynchronous tasks, the stream assembler turning fragments into
// ordered deltas, the response cache, and a bounded worker pool for
// blocking side work.
//
// Usage:
//
//	cfg := config.DefaultConfig()
//	cfg.API.APIKey = os.Getenv("TEXTFLOW_API_KEY")
//
//	engine, err := textflow.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Shutdown()
//
//	sub, err := engine.Dispatch(types.Request{
//	    SessionID:    engine.NewSessionID(),
//	    FunctionType: types.FunctionTranslate,
//	    Text:         "bonjour le monde",
//	})
//	for ev := range sub.Events() {
//	    // render deltas, stop on the terminal event
//	}
package textflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/textflow/cache"
	"github.com/BaSui01/textflow/client"
	"github.com/BaSui01/textflow/config"
	"github.com/BaSui01/textflow/dispatch"
	"github.com/BaSui01/textflow/functions"
	"github.com/BaSui01/textflow/internal/loop"
	"github.com/BaSui01/textflow/internal/metrics"
	"github.com/BaSui01/textflow/internal/pool"
	"github.com/BaSui01/textflow/stream"
	"github.com/BaSui01/textflow/types"
)

// Engine is the top-level façade over the dispatch pipeline.
type Engine struct {
	cfg        *config.Config
	logger     *zap.Logger
	ownsLogger bool

	cache      *cache.ResponseCache // nil when disabled
	loop       *loop.Loop
	pool       *pool.WorkerPool
	dispatcher *dispatch.Dispatcher
	templates  *functions.Registry
	metrics    *metrics.Collector
}

type options struct {
	logger     *zap.Logger
	upstream   dispatch.Upstream
	registerer prometheus.Registerer
}

// Option customizes engine construction.
type Option func(*options)

// WithLogger supplies a logger instead of building one from the Log
// config. The caller keeps ownership; Shutdown will not sync it.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithUpstream replaces the default OpenAI-compatible client.
func WithUpstream(u dispatch.Upstream) Option {
	return func(o *options) { o.upstream = u }
}

// WithRegisterer sets the Prometheus registerer for engine metrics.
// Defaults to prometheus.DefaultRegisterer.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// New builds an engine from cfg. A nil cfg uses the defaults.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	e := &Engine{cfg: cfg}

	if o.logger != nil {
		e.logger = o.logger
	} else {
		logger, err := buildLogger(cfg.Log)
		if err != nil {
			return nil, fmt.Errorf("failed to build logger: %w", err)
		}
		e.logger = logger
		e.ownsLogger = true
	}

	registerer := o.registerer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	e.metrics = metrics.NewCollector("textflow", registerer)

	if cfg.Cache.Enabled {
		e.cache = cache.New(cache.Config{
			MaxSize:       cfg.Cache.MaxSize,
			TTL:           cfg.Cache.TTL,
			SweepInterval: cfg.Cache.SweepInterval,
		}, e.logger)
	}

	e.loop = loop.New(loop.Config{
		QueueSize:     cfg.Loop.QueueSize,
		ShutdownGrace: cfg.Loop.ShutdownGrace,
	}, e.logger)

	e.pool = pool.New(pool.Config{
		Size:          cfg.WorkerPool.Size,
		QueueSize:     cfg.WorkerPool.QueueSize,
		ShutdownGrace: cfg.WorkerPool.ShutdownGrace,
	}, e.logger)

	upstream := o.upstream
	if upstream == nil {
		upstream = client.New(client.Config{
			BaseURL:     cfg.API.BaseURL,
			APIKey:      cfg.API.APIKey,
			Model:       cfg.API.Model,
			Timeout:     cfg.API.Timeout,
			RateLimit:   cfg.API.RateLimit,
			Temperature: cfg.API.Temperature,
			MaxTokens:   cfg.API.MaxTokens,
		}, e.logger)
	}

	assembler := stream.New(stream.Config{ChunkSize: cfg.Stream.ChunkSize}, e.logger)
	e.dispatcher = dispatch.New(upstream, e.loop, assembler, e.cache, e.metrics, e.logger)

	functions.RegisterBuiltin(e.dispatcher)
	e.templates = functions.NewRegistry()
	e.dispatcher.Register(types.FunctionCustom, e.templates.Handler())

	e.logger.Info("engine started",
		zap.Bool("cache_enabled", cfg.Cache.Enabled),
		zap.String("model", cfg.API.Model))
	return e, nil
}

// Dispatch submits a request and returns its subscription. An empty
// ModelID falls back to the configured default model.
func (e *Engine) Dispatch(req types.Request) (*dispatch.Subscription, error) {
	if req.ModelID == "" {
		req.ModelID = e.cfg.API.Model
	}
	return e.dispatcher.Dispatch(req)
}

// RegisterFunction binds a handler to a function type, replacing any
// built-in binding for that type.
func (e *Engine) RegisterFunction(functionType types.FunctionType, handler dispatch.Handler) {
	e.dispatcher.Register(functionType, handler)
}

// Template re-exports the user-defined template type for callers that
// only import the root package.
type Template = functions.Template

// Templates exposes the user-defined template registry behind the
// custom function type.
func (e *Engine) Templates() *functions.Registry {
	return e.templates
}

// NewSessionID mints an identifier for a new interaction context.
func (e *Engine) NewSessionID() string {
	return uuid.NewString()
}

// BlockingFunc is a unit of blocking work run on the worker pool.
type BlockingFunc = func() (any, error)

// RunBlocking executes fn on the worker pool and waits for its result.
// A full pool rejects immediately with POOL_SATURATED. A positive
// timeout resolves the call with TIMEOUT when it elapses; the blocking
// call itself is not interrupted and keeps its worker busy until it
// returns on its own.
func (e *Engine) RunBlocking(ctx context.Context, fn BlockingFunc, timeout time.Duration) (any, error) {
	future, err := e.pool.Submit(fn, timeout)
	if err != nil {
		if types.GetErrorCode(err) == types.ErrPoolSaturated {
			e.metrics.RecordPoolRejected()
		}
		return nil, err
	}

	value, err := future.Get(ctx)
	if types.GetErrorCode(err) == types.ErrTimeout {
		e.metrics.RecordPoolTimedOut()
	}
	return value, err
}

// Stats is a point-in-time snapshot of engine internals.
type Stats struct {
	Loop loop.Stats `json:"loop"`
	Pool pool.Stats `json:"pool"`

	CacheHits   int64 `json:"cache_hits"`
	CacheMisses int64 `json:"cache_misses"`
	CacheSize   int   `json:"cache_size"`

	InFlight int `json:"in_flight"`
}

// Stats returns current engine counters.
func (e *Engine) Stats() Stats {
	s := Stats{
		Loop:     e.loop.Stats(),
		Pool:     e.pool.Stats(),
		InFlight: e.dispatcher.InFlightCount(),
	}
	if e.cache != nil {
		s.CacheHits, s.CacheMisses, s.CacheSize = e.cache.Stats()
	}
	return s
}

// Shutdown stops the engine: no new dispatches are accepted, in-flight
// requests are cancelled, and the loop and pool drain within their
// configured grace periods. Safe to call more than once.
func (e *Engine) Shutdown() {
	e.dispatcher.Close()

	// The loop and pool each enforce their own grace period; shutting
	// them down concurrently bounds the total wait by the longer one.
	var g errgroup.Group
	g.Go(func() error { e.loop.Shutdown(); return nil })
	g.Go(func() error { e.pool.Shutdown(); return nil })
	_ = g.Wait()

	if e.cache != nil {
		e.cache.Close()
	}

	e.logger.Info("engine stopped")
	if e.ownsLogger {
		_ = e.logger.Sync()
	}
}

// buildLogger constructs a zap logger from the Log config.
func buildLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	var zcfg zap.Config
	if cfg.Format == "json" {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	return zcfg.Build()
}
