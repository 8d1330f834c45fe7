// Package config provides configuration loading for the textflow engine.
//
// Priority: defaults, then YAML file, then environment variables.
//
// Usage:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("textflow.yaml").
//	    WithEnvPrefix("TEXTFLOW").
//	    Load()
package config

import (
	"fmt"
	"time"
)

// Config is the complete engine configuration.
type Config struct {
	// API configures the upstream AI client.
	API APIConfig `yaml:"api" env:"API"`

	// Cache configures the response cache.
	Cache CacheConfig `yaml:"cache" env:"CACHE"`

	// WorkerPool configures the blocking-task pool.
	WorkerPool WorkerPoolConfig `yaml:"worker_pool" env:"WORKER_POOL"`

	// Stream configures delta flushing.
	Stream StreamConfig `yaml:"stream" env:"STREAM"`

	// Loop configures the event loop bridge.
	Loop LoopConfig `yaml:"loop" env:"LOOP"`

	// Log configures logging output.
	Log LogConfig `yaml:"log" env:"LOG"`
}

// APIConfig configures the upstream OpenAI-compatible endpoint.
type APIConfig struct {
	// Base URL, e.g. https://api.openai.com/v1
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// API key sent as a Bearer token
	APIKey string `yaml:"key" env:"KEY"`
	// Default model when a request does not name one
	Model string `yaml:"model" env:"MODEL"`
	// Request timeout
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// Client-side requests per second limit; 0 disables limiting
	RateLimit float64 `yaml:"rate_limit" env:"RATE_LIMIT"`
	// Sampling temperature
	Temperature float32 `yaml:"temperature" env:"TEMPERATURE"`
	// Completion token cap; 0 leaves it to the upstream default
	MaxTokens int `yaml:"max_tokens" env:"MAX_TOKENS"`
}

// CacheConfig configures the response cache.
type CacheConfig struct {
	// Enabled toggles caching; dispatch works unchanged without it
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// Maximum number of entries before LRU eviction
	MaxSize int `yaml:"max_size" env:"MAX_SIZE"`
	// Entry time-to-live
	TTL time.Duration `yaml:"ttl" env:"TTL"`
	// Interval of the active expiry sweep; performance tunable only
	SweepInterval time.Duration `yaml:"sweep_interval" env:"SWEEP_INTERVAL"`
}

// WorkerPoolConfig configures the blocking-task pool.
type WorkerPoolConfig struct {
	// Number of workers
	Size int `yaml:"size" env:"SIZE"`
	// Queue depth; submissions beyond size+queue are rejected
	QueueSize int `yaml:"queue_size" env:"QUEUE_SIZE"`
	// Shutdown grace period before abandoning running workers
	ShutdownGrace time.Duration `yaml:"shutdown_grace" env:"SHUTDOWN_GRACE"`
}

// StreamConfig configures delta flushing.
type StreamConfig struct {
	// ChunkSize batches deltas until this many bytes accumulate;
	// 0 or 1 flushes per fragment (lowest latency, default)
	ChunkSize int `yaml:"chunk_size" env:"CHUNK_SIZE"`
}

// LoopConfig configures the event loop bridge.
type LoopConfig struct {
	// Submission queue depth
	QueueSize int `yaml:"queue_size" env:"QUEUE_SIZE"`
	// Shutdown grace period for outstanding tasks
	ShutdownGrace time.Duration `yaml:"shutdown_grace" env:"SHUTDOWN_GRACE"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// Format: json, console
	Format string `yaml:"format" env:"FORMAT"`
}

// DefaultConfig returns the configuration defaults.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:     "https://api.openai.com/v1",
			Model:       "gpt-4o-mini",
			Timeout:     60 * time.Second,
			Temperature: 0.7,
		},
		Cache: CacheConfig{
			Enabled:       true,
			MaxSize:       1000,
			TTL:           time.Hour,
			SweepInterval: 5 * time.Minute,
		},
		WorkerPool: WorkerPoolConfig{
			Size:          4,
			QueueSize:     16,
			ShutdownGrace: 5 * time.Second,
		},
		Stream: StreamConfig{
			ChunkSize: 0,
		},
		Loop: LoopConfig{
			QueueSize:     32,
			ShutdownGrace: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url must not be empty")
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive, got %v", c.API.Timeout)
	}
	if c.Cache.Enabled {
		if c.Cache.MaxSize <= 0 {
			return fmt.Errorf("cache.max_size must be positive, got %d", c.Cache.MaxSize)
		}
		if c.Cache.TTL <= 0 {
			return fmt.Errorf("cache.ttl must be positive, got %v", c.Cache.TTL)
		}
	}
	if c.WorkerPool.Size <= 0 {
		return fmt.Errorf("worker_pool.size must be positive, got %d", c.WorkerPool.Size)
	}
	if c.WorkerPool.QueueSize < 0 {
		return fmt.Errorf("worker_pool.queue_size must not be negative, got %d", c.WorkerPool.QueueSize)
	}
	if c.Stream.ChunkSize < 0 {
		return fmt.Errorf("stream.chunk_size must not be negative, got %d", c.Stream.ChunkSize)
	}
	if c.Loop.QueueSize <= 0 {
		return fmt.Errorf("loop.queue_size must be positive, got %d", c.Loop.QueueSize)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug/info/warn/error, got %q", c.Log.Level)
	}
	return nil
}
