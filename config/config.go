// Package config provides configuration management for the scribe
// pipeline service. It supports loading configuration from a YAML file
// and environment variables, with env overriding file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/minuteworks/scribe/pkg/db"
	"github.com/minuteworks/scribe/pkg/pipeline"
	"github.com/minuteworks/scribe/pkg/pipeline/queues"
	"github.com/minuteworks/scribe/pkg/pipeline/workers"
)

// Default configuration values.
const (
	DefaultServiceName   = "scribe"
	DefaultEnvironment   = "development"
	DefaultListenAddr    = ":8080"
	DefaultMetricsAddr   = ":9090"
	DefaultMigrationsDir = "migrations"
	DefaultConfigFile    = "scribe.yaml"
)

// ServiceConfig holds process-level settings.
type ServiceConfig struct {
	// Name is the service name used in logs and metrics.
	Name string `yaml:"name"`

	// Environment is the deployment environment (development, production).
	Environment string `yaml:"environment"`

	// ListenAddr is the address the API listens on.
	ListenAddr string `yaml:"listen_addr"`

	// MetricsAddr is the address the Prometheus endpoint listens on.
	MetricsAddr string `yaml:"metrics_addr"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level"`

	// JSON selects JSON output instead of the console format.
	JSON bool `yaml:"json"`
}

// RedisConfig holds Redis connection settings. Redis backs the summary
// job queue and the cross-process status fan-out; when disabled, both
// run in-memory in a single process.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// AIConfig holds upstream speech-to-text and summarization settings.
type AIConfig struct {
	// UseMock substitutes a scripted provider for local development.
	UseMock bool `yaml:"use_mock"`

	STTURL    string        `yaml:"stt_url"`
	STTAPIKey string        `yaml:"stt_api_key"`
	STTModel  string        `yaml:"stt_model"`
	LLMURL    string        `yaml:"llm_url"`
	LLMAPIKey string        `yaml:"llm_api_key"`
	LLMModel  string        `yaml:"llm_model"`
	Timeout   time.Duration `yaml:"timeout"`
}

// Config is the root configuration of the scribe service.
type Config struct {
	Service       ServiceConfig   `yaml:"service"`
	Log           LogConfig       `yaml:"log"`
	DB            *db.Config      `yaml:"db"`
	Redis         RedisConfig     `yaml:"redis"`
	AI            AIConfig        `yaml:"ai"`
	Pipeline      pipeline.Config `yaml:"pipeline"`
	Workers       workers.Config  `yaml:"workers"`
	MigrationsDir string          `yaml:"migrations_dir"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:        DefaultServiceName,
			Environment: DefaultEnvironment,
			ListenAddr:  DefaultListenAddr,
			MetricsAddr: DefaultMetricsAddr,
		},
		Log: LogConfig{
			Level: "info",
		},
		DB: db.DefaultConfig(),
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		AI: AIConfig{
			UseMock: true,
			Timeout: 120 * time.Second,
		},
		Pipeline:      pipeline.DefaultConfig(),
		Workers:       workers.DefaultConfig(),
		MigrationsDir: DefaultMigrationsDir,
	}
}

// ConfigPath returns the configuration file path. Uses $SCRIBE_CONFIG
// if set, otherwise scribe.yaml in the working directory.
func ConfigPath() string {
	if path := os.Getenv("SCRIBE_CONFIG"); path != "" {
		return path
	}
	return DefaultConfigFile
}

// Load loads the configuration. Sources are applied in this order,
// later overriding earlier:
//  1. Default values
//  2. Config file (scribe.yaml or $SCRIBE_CONFIG)
//  3. Environment variables (SCRIBE_*, DB_*)
func Load() (*Config, error) {
	return LoadFrom(ConfigPath())
}

// LoadFrom loads the configuration using the given file path. A missing
// file is not an error; defaults plus environment apply.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	loadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// loadFromFile loads configuration from a YAML file. Durations are
// unmarshaled as strings ("5m", "30s") through an intermediate struct,
// then parsed onto the typed config.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	type retryFile struct {
		MaxAttempts    int     `yaml:"max_attempts"`
		InitialBackoff string  `yaml:"initial_backoff"`
		MaxBackoff     string  `yaml:"max_backoff"`
		BackoffFactor  float64 `yaml:"backoff_factor"`
	}
	type configFile struct {
		Service ServiceConfig `yaml:"service"`
		Log     LogConfig     `yaml:"log"`
		DB      struct {
			Host     string `yaml:"host"`
			Port     int    `yaml:"port"`
			Database string `yaml:"database"`
			User     string `yaml:"user"`
			Password string `yaml:"password"`
			SSLMode  string `yaml:"ssl_mode"`
		} `yaml:"db"`
		Redis RedisConfig `yaml:"redis"`
		AI    struct {
			UseMock   bool   `yaml:"use_mock"`
			STTURL    string `yaml:"stt_url"`
			STTAPIKey string `yaml:"stt_api_key"`
			STTModel  string `yaml:"stt_model"`
			LLMURL    string `yaml:"llm_url"`
			LLMAPIKey string `yaml:"llm_api_key"`
			LLMModel  string `yaml:"llm_model"`
			Timeout   string `yaml:"timeout"`
		} `yaml:"ai"`
		Pipeline struct {
			MaxChunkBytes   int64     `yaml:"max_chunk_bytes"`
			IdleFinalize    string    `yaml:"idle_finalize"`
			StaleJobTimeout string    `yaml:"stale_job_timeout"`
			Retry           retryFile `yaml:"retry"`
		} `yaml:"pipeline"`
		Workers struct {
			Count             int    `yaml:"count"`
			BatchSize         int    `yaml:"batch_size"`
			VisibilityTimeout string `yaml:"visibility_timeout"`
			PollInterval      string `yaml:"poll_interval"`
			ShutdownTimeout   string `yaml:"shutdown_timeout"`
		} `yaml:"workers"`
		MigrationsDir string `yaml:"migrations_dir"`
	}

	var fileCfg configFile
	fileCfg.Service = cfg.Service
	fileCfg.Log = cfg.Log
	fileCfg.Redis = cfg.Redis
	fileCfg.AI.UseMock = cfg.AI.UseMock
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	cfg.Service = fileCfg.Service
	cfg.Log = fileCfg.Log
	cfg.Redis = fileCfg.Redis

	if fileCfg.DB.Host != "" {
		cfg.DB.Host = fileCfg.DB.Host
	}
	if fileCfg.DB.Port != 0 {
		cfg.DB.Port = fileCfg.DB.Port
	}
	if fileCfg.DB.Database != "" {
		cfg.DB.Database = fileCfg.DB.Database
	}
	if fileCfg.DB.User != "" {
		cfg.DB.User = fileCfg.DB.User
	}
	if fileCfg.DB.Password != "" {
		cfg.DB.Password = fileCfg.DB.Password
	}
	if fileCfg.DB.SSLMode != "" {
		cfg.DB.SSLMode = fileCfg.DB.SSLMode
	}

	cfg.AI.UseMock = fileCfg.AI.UseMock
	if fileCfg.AI.STTURL != "" {
		cfg.AI.STTURL = fileCfg.AI.STTURL
	}
	if fileCfg.AI.STTAPIKey != "" {
		cfg.AI.STTAPIKey = fileCfg.AI.STTAPIKey
	}
	if fileCfg.AI.STTModel != "" {
		cfg.AI.STTModel = fileCfg.AI.STTModel
	}
	if fileCfg.AI.LLMURL != "" {
		cfg.AI.LLMURL = fileCfg.AI.LLMURL
	}
	if fileCfg.AI.LLMAPIKey != "" {
		cfg.AI.LLMAPIKey = fileCfg.AI.LLMAPIKey
	}
	if fileCfg.AI.LLMModel != "" {
		cfg.AI.LLMModel = fileCfg.AI.LLMModel
	}

	if fileCfg.Pipeline.MaxChunkBytes != 0 {
		cfg.Pipeline.MaxChunkBytes = fileCfg.Pipeline.MaxChunkBytes
	}
	if fileCfg.Pipeline.Retry.MaxAttempts != 0 {
		cfg.Pipeline.Retry.MaxAttempts = fileCfg.Pipeline.Retry.MaxAttempts
	}
	if fileCfg.Pipeline.Retry.BackoffFactor != 0 {
		cfg.Pipeline.Retry.BackoffFactor = fileCfg.Pipeline.Retry.BackoffFactor
	}
	if fileCfg.Workers.Count != 0 {
		cfg.Workers.Count = fileCfg.Workers.Count
	}
	if fileCfg.Workers.BatchSize != 0 {
		cfg.Workers.BatchSize = fileCfg.Workers.BatchSize
	}
	if fileCfg.MigrationsDir != "" {
		cfg.MigrationsDir = fileCfg.MigrationsDir
	}

	durations := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"ai.timeout", fileCfg.AI.Timeout, &cfg.AI.Timeout},
		{"pipeline.idle_finalize", fileCfg.Pipeline.IdleFinalize, &cfg.Pipeline.IdleFinalize},
		{"pipeline.stale_job_timeout", fileCfg.Pipeline.StaleJobTimeout, &cfg.Pipeline.StaleJobTimeout},
		{"pipeline.retry.initial_backoff", fileCfg.Pipeline.Retry.InitialBackoff, &cfg.Pipeline.Retry.InitialBackoff},
		{"pipeline.retry.max_backoff", fileCfg.Pipeline.Retry.MaxBackoff, &cfg.Pipeline.Retry.MaxBackoff},
		{"workers.visibility_timeout", fileCfg.Workers.VisibilityTimeout, &cfg.Workers.VisibilityTimeout},
		{"workers.poll_interval", fileCfg.Workers.PollInterval, &cfg.Workers.PollInterval},
		{"workers.shutdown_timeout", fileCfg.Workers.ShutdownTimeout, &cfg.Workers.ShutdownTimeout},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", d.name, err)
		}
		*d.dst = parsed
	}

	return nil
}

// loadFromEnv overlays environment variables onto the configuration.
func loadFromEnv(cfg *Config) {
	if v := os.Getenv("SCRIBE_ENVIRONMENT"); v != "" {
		cfg.Service.Environment = v
	}
	if v := os.Getenv("SCRIBE_LISTEN_ADDR"); v != "" {
		cfg.Service.ListenAddr = v
	}
	if v := os.Getenv("SCRIBE_METRICS_ADDR"); v != "" {
		cfg.Service.MetricsAddr = v
	}

	if v := os.Getenv("SCRIBE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("SCRIBE_LOG_JSON"); v == "true" || v == "1" {
		cfg.Log.JSON = true
	}

	// The db package owns DB_* variables.
	if hasDBEnv() {
		cfg.DB = db.ConfigFromEnv()
	}

	if v := os.Getenv("SCRIBE_REDIS_ENABLED"); v == "true" || v == "1" {
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("SCRIBE_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SCRIBE_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SCRIBE_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = n
		}
	}

	if v := os.Getenv("SCRIBE_AI_USE_MOCK"); v != "" {
		cfg.AI.UseMock = v == "true" || v == "1"
	}
	if v := os.Getenv("SCRIBE_STT_URL"); v != "" {
		cfg.AI.STTURL = v
	}
	if v := os.Getenv("SCRIBE_STT_API_KEY"); v != "" {
		cfg.AI.STTAPIKey = v
	}
	if v := os.Getenv("SCRIBE_STT_MODEL"); v != "" {
		cfg.AI.STTModel = v
	}
	if v := os.Getenv("SCRIBE_LLM_URL"); v != "" {
		cfg.AI.LLMURL = v
	}
	if v := os.Getenv("SCRIBE_LLM_API_KEY"); v != "" {
		cfg.AI.LLMAPIKey = v
	}
	if v := os.Getenv("SCRIBE_LLM_MODEL"); v != "" {
		cfg.AI.LLMModel = v
	}

	if v := os.Getenv("SCRIBE_MAX_CHUNK_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Pipeline.MaxChunkBytes = n
		}
	}
	if v := os.Getenv("SCRIBE_IDLE_FINALIZE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Pipeline.IdleFinalize = d
		}
	}
	if v := os.Getenv("SCRIBE_RETRY_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pipeline.Retry.MaxAttempts = n
		}
	}
	if v := os.Getenv("SCRIBE_WORKER_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Workers.Count = n
		}
	}

	if v := os.Getenv("SCRIBE_MIGRATIONS_DIR"); v != "" {
		cfg.MigrationsDir = v
	}
}

// hasDBEnv reports whether any DB_* connection variable is set.
func hasDBEnv() bool {
	for _, key := range []string{"DB_HOST", "DB_PORT", "DB_NAME", "DB_USER", "DB_PASSWORD", "DB_SSLMODE"} {
		if os.Getenv(key) != "" {
			return true
		}
	}
	return false
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Service.Name == "" {
		return fmt.Errorf("service.name is required")
	}
	if c.Service.ListenAddr == "" {
		return fmt.Errorf("service.listen_addr is required")
	}
	if c.Pipeline.MaxChunkBytes <= 0 {
		return fmt.Errorf("pipeline.max_chunk_bytes must be positive")
	}
	if c.Pipeline.Retry.MaxAttempts < 1 {
		return fmt.Errorf("pipeline.retry.max_attempts must be at least 1")
	}
	if c.Pipeline.Retry.BackoffFactor < 1 {
		return fmt.Errorf("pipeline.retry.backoff_factor must be at least 1")
	}
	if c.Workers.Count < 1 {
		return fmt.Errorf("workers.count must be at least 1")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}
	if !c.AI.UseMock {
		if c.AI.STTURL == "" || c.AI.LLMURL == "" {
			return fmt.Errorf("ai.stt_url and ai.llm_url are required unless ai.use_mock is set")
		}
	}
	return nil
}

// QueueConfig derives the queue settings from the pipeline and worker
// configuration. The queue's retry ceiling matches the job retry bound
// so a message is never dead-lettered while its job could still retry.
func (c *Config) QueueConfig() queues.QueueConfig {
	qc := queues.DefaultQueueConfig()
	qc.VisibilityTimeout = c.Workers.VisibilityTimeout
	qc.MaxRetries = c.Pipeline.Retry.MaxAttempts
	return qc
}

// MigrationsPath returns the absolute migrations directory.
func (c *Config) MigrationsPath() (string, error) {
	if filepath.IsAbs(c.MigrationsDir) {
		return c.MigrationsDir, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting working directory: %w", err)
	}
	return filepath.Join(wd, c.MigrationsDir), nil
}
