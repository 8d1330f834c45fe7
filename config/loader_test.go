package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoader_Defaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "https://api.openai.com/v1", cfg.API.BaseURL)
	assert.Equal(t, 60*time.Second, cfg.API.Timeout)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, 1000, cfg.Cache.MaxSize)
	assert.Equal(t, 4, cfg.WorkerPool.Size)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoader_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "textflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api:
  base_url: https://llm.internal/v1
  model: local-model
  timeout: 30s
cache:
  enabled: false
worker_pool:
  size: 8
stream:
  chunk_size: 32
log:
  level: debug
`), 0o644))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "https://llm.internal/v1", cfg.API.BaseURL)
	assert.Equal(t, "local-model", cfg.API.Model)
	assert.Equal(t, 30*time.Second, cfg.API.Timeout)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, 8, cfg.WorkerPool.Size)
	assert.Equal(t, 32, cfg.Stream.ChunkSize)
	assert.Equal(t, "debug", cfg.Log.Level)

	// Untouched sections keep their defaults.
	assert.Equal(t, 32, cfg.Loop.QueueSize)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "textflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api:\n  model: from-yaml\n"), 0o644))

	t.Setenv("TEXTFLOW_API_MODEL", "from-env")
	t.Setenv("TEXTFLOW_API_KEY", "secret")
	t.Setenv("TEXTFLOW_CACHE_TTL", "90m")
	t.Setenv("TEXTFLOW_WORKER_POOL_SIZE", "2")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.API.Model)
	assert.Equal(t, "secret", cfg.API.APIKey)
	assert.Equal(t, 90*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 2, cfg.WorkerPool.Size)
}

func TestLoader_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/nonexistent/textflow.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().API.BaseURL, cfg.API.BaseURL)
}

func TestLoader_InvalidValuesRejected(t *testing.T) {
	t.Setenv("TEXTFLOW_LOG_LEVEL", "loud")
	_, err := NewLoader().Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log.level")
}

func TestLoader_CustomValidator(t *testing.T) {
	_, err := NewLoader().
		WithValidator(func(c *Config) error {
			if c.API.APIKey == "" {
				return fmt.Errorf("api key required")
			}
			return nil
		}).
		Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api key required")
}

func TestConfig_Validate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty base url", func(c *Config) { c.API.BaseURL = "" }},
		{"zero timeout", func(c *Config) { c.API.Timeout = 0 }},
		{"zero cache size while enabled", func(c *Config) { c.Cache.MaxSize = 0 }},
		{"zero pool size", func(c *Config) { c.WorkerPool.Size = 0 }},
		{"negative chunk size", func(c *Config) { c.Stream.ChunkSize = -1 }},
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	t.Run("disabled cache skips cache checks", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Cache.Enabled = false
		cfg.Cache.MaxSize = 0
		cfg.Cache.TTL = 0
		assert.NoError(t, cfg.Validate())
	})
}
