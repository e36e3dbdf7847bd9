package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, DefaultServiceName, cfg.Service.Name)
	assert.Equal(t, DefaultListenAddr, cfg.Service.ListenAddr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, int64(50*1024*1024), cfg.Pipeline.MaxChunkBytes)
	assert.Equal(t, 3, cfg.Pipeline.Retry.MaxAttempts)
	assert.True(t, cfg.AI.UseMock)
	assert.False(t, cfg.Redis.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFrom_MissingFile(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultServiceName, cfg.Service.Name)
}

func TestLoadFrom_File(t *testing.T) {
	content := `
service:
  name: scribe
  environment: production
  listen_addr: ":9000"
log:
  level: debug
  json: true
db:
  host: db.internal
  database: meetings
  user: app
redis:
  enabled: true
  addr: redis.internal:6379
ai:
  use_mock: false
  stt_url: https://stt.example.com/v1/audio/transcriptions
  llm_url: https://llm.example.com/v1/chat/completions
  timeout: 90s
pipeline:
  max_chunk_bytes: 1048576
  idle_finalize: 2m
  retry:
    max_attempts: 5
    initial_backoff: 500ms
    max_backoff: 1m
workers:
  count: 2
  visibility_timeout: 45s
`
	path := filepath.Join(t.TempDir(), "scribe.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Service.Environment)
	assert.Equal(t, ":9000", cfg.Service.ListenAddr)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.JSON)
	assert.Equal(t, "db.internal", cfg.DB.Host)
	assert.Equal(t, "meetings", cfg.DB.Database)
	assert.Equal(t, 5432, cfg.DB.Port, "unset db fields keep defaults")
	assert.True(t, cfg.Redis.Enabled)
	assert.False(t, cfg.AI.UseMock)
	assert.Equal(t, 90*time.Second, cfg.AI.Timeout)
	assert.Equal(t, int64(1048576), cfg.Pipeline.MaxChunkBytes)
	assert.Equal(t, 2*time.Minute, cfg.Pipeline.IdleFinalize)
	assert.Equal(t, 5, cfg.Pipeline.Retry.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Pipeline.Retry.InitialBackoff)
	assert.Equal(t, time.Minute, cfg.Pipeline.Retry.MaxBackoff)
	assert.Equal(t, 2, cfg.Workers.Count)
	assert.Equal(t, 45*time.Second, cfg.Workers.VisibilityTimeout)
}

func TestLoadFrom_InvalidDuration(t *testing.T) {
	content := `
pipeline:
  idle_finalize: not-a-duration
`
	path := filepath.Join(t.TempDir(), "scribe.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	_, err := LoadFrom(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "idle_finalize")
}

func TestLoadFrom_EnvOverrides(t *testing.T) {
	t.Setenv("SCRIBE_LISTEN_ADDR", ":7070")
	t.Setenv("SCRIBE_LOG_LEVEL", "warn")
	t.Setenv("SCRIBE_REDIS_ENABLED", "true")
	t.Setenv("SCRIBE_REDIS_ADDR", "envredis:6379")
	t.Setenv("SCRIBE_MAX_CHUNK_BYTES", "2048")
	t.Setenv("SCRIBE_RETRY_MAX_ATTEMPTS", "7")
	t.Setenv("SCRIBE_IDLE_FINALIZE", "30s")
	t.Setenv("SCRIBE_WORKER_COUNT", "8")
	t.Setenv("DB_HOST", "envdb")

	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Service.ListenAddr)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "envredis:6379", cfg.Redis.Addr)
	assert.Equal(t, int64(2048), cfg.Pipeline.MaxChunkBytes)
	assert.Equal(t, 7, cfg.Pipeline.Retry.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.Pipeline.IdleFinalize)
	assert.Equal(t, 8, cfg.Workers.Count)
	assert.Equal(t, "envdb", cfg.DB.Host)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{
			name:   "zero chunk limit",
			mutate: func(c *Config) { c.Pipeline.MaxChunkBytes = 0 },
		},
		{
			name:   "zero retry attempts",
			mutate: func(c *Config) { c.Pipeline.Retry.MaxAttempts = 0 },
		},
		{
			name:   "backoff factor below one",
			mutate: func(c *Config) { c.Pipeline.Retry.BackoffFactor = 0.5 },
		},
		{
			name:   "no workers",
			mutate: func(c *Config) { c.Workers.Count = 0 },
		},
		{
			name:   "redis enabled without addr",
			mutate: func(c *Config) { c.Redis.Enabled = true; c.Redis.Addr = "" },
		},
		{
			name:   "real provider without endpoints",
			mutate: func(c *Config) { c.AI.UseMock = false },
		},
		{
			name:   "empty listen addr",
			mutate: func(c *Config) { c.Service.ListenAddr = "" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestQueueConfig_MatchesRetryBound(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Pipeline.Retry.MaxAttempts = 6
	cfg.Workers.VisibilityTimeout = 42 * time.Second

	qc := cfg.QueueConfig()
	assert.Equal(t, 6, qc.MaxRetries)
	assert.Equal(t, 42*time.Second, qc.VisibilityTimeout)
}
