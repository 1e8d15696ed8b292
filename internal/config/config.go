// Package config loads litreview configuration from defaults, an optional
// YAML file and LITREVIEW_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	LLM      LLMConfig      `mapstructure:"llm"`
	Search   SearchConfig   `mapstructure:"search"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Retry    RetryConfig    `mapstructure:"retry"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Store    StoreConfig    `mapstructure:"store"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Server   ServerConfig   `mapstructure:"server"`
}

// LLMConfig selects the chat model provider.
type LLMConfig struct {
	// Provider is one of google, openai, anthropic or mock.
	Provider string `mapstructure:"provider" validate:"required,oneof=google openai anthropic mock"`
	// Model is the primary model name. Empty means the provider default.
	Model string `mapstructure:"model"`
	// FallbackModels are tried in order after Model fails.
	FallbackModels []string `mapstructure:"fallback_models"`
	// Temperature applied to every call.
	Temperature float64 `mapstructure:"temperature" validate:"gte=0,lte=2"`
	// MaxTokens caps each response.
	MaxTokens int `mapstructure:"max_tokens" validate:"gt=0"`
	// MaxInputChars truncates paper text sent for sectioning.
	MaxInputChars int `mapstructure:"max_input_chars" validate:"gt=0"`
	// Timeout bounds a single call.
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`
	// BaseURL overrides the OpenAI endpoint for compatible servers.
	BaseURL string `mapstructure:"base_url" validate:"omitempty,url"`
	// APIKey is loaded from the environment only.
	APIKey string `mapstructure:"-"`
}

// SearchConfig configures the Semantic Scholar client.
type SearchConfig struct {
	BaseURL string `mapstructure:"base_url" validate:"required,url"`
	// ResultsPerQuery is the limit passed to each search call.
	ResultsPerQuery int `mapstructure:"results_per_query" validate:"gt=0,lte=100"`
	// RateLimit in requests per second. Zero picks 1 without a key and 10 with one.
	RateLimit float64       `mapstructure:"rate_limit" validate:"gte=0"`
	Timeout   time.Duration `mapstructure:"timeout" validate:"gt=0"`
	// CacheTTL keeps responses in memory. Negative disables the cache.
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
	// APIKey is loaded from the environment only.
	APIKey string `mapstructure:"-"`
}

// PipelineConfig holds the workflow thresholds.
type PipelineConfig struct {
	MaxPapers          int `mapstructure:"max_papers" validate:"gt=0"`
	CoherenceThreshold int `mapstructure:"coherence_threshold" validate:"gte=1,lte=10"`
	RevisionCeiling    int `mapstructure:"revision_ceiling" validate:"gte=0"`
	Workers            int `mapstructure:"workers" validate:"gt=0,lte=32"`
	TopicMinLength     int `mapstructure:"topic_min_length" validate:"gt=0"`
	TopicMaxLength     int `mapstructure:"topic_max_length" validate:"gtefield=TopicMinLength"`
	// NodeTimeout bounds each step. Zero disables it.
	NodeTimeout time.Duration `mapstructure:"node_timeout" validate:"gte=0"`
	// MaxSteps bounds a single run call. Zero disables it.
	MaxSteps int `mapstructure:"max_steps" validate:"gte=0"`
}

// RetryConfig is the backoff policy for external calls.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts" validate:"gte=1,lte=10"`
	BaseDelay   time.Duration `mapstructure:"base_delay" validate:"gte=0"`
	MaxDelay    time.Duration `mapstructure:"max_delay" validate:"gte=0"`
}

// StorageConfig locates run artifacts on disk.
type StorageConfig struct {
	// DataDir holds papers/, extracted_text/, analysis/ and drafts/.
	DataDir         string        `mapstructure:"data_dir" validate:"required"`
	DownloadTimeout time.Duration `mapstructure:"download_timeout" validate:"gt=0"`
	MaxPDFBytes     int64         `mapstructure:"max_pdf_bytes" validate:"gt=0"`
	// AllowPrivateNetworks disables the download address guard.
	AllowPrivateNetworks bool   `mapstructure:"allow_private_networks"`
	UserAgent            string `mapstructure:"user_agent"`
}

// StoreConfig selects the run store backend.
type StoreConfig struct {
	Driver string `mapstructure:"driver" validate:"required,oneof=sqlite mysql redis memory"`
	// Path is the SQLite database file.
	Path string `mapstructure:"path"`
	// DSN is the MySQL data source name, loaded from the environment only.
	DSN   string      `mapstructure:"-"`
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig configures the Redis run store.
type RedisConfig struct {
	Addr      string        `mapstructure:"addr" validate:"required_if=Enabled true"`
	DB        int           `mapstructure:"db" validate:"gte=0"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	TTL       time.Duration `mapstructure:"ttl" validate:"gte=0"`
	// Password is loaded from the environment only.
	Password string `mapstructure:"-"`
	Enabled  bool   `mapstructure:"-"`
}

// LoggingConfig configures the zerolog logger.
type LoggingConfig struct {
	Level string `mapstructure:"level" validate:"required,oneof=trace debug info warn error fatal panic"`
	// Format is json or console.
	Format string `mapstructure:"format" validate:"required,oneof=json console"`
	// Output is stdout, stderr or a file path.
	Output     string `mapstructure:"output" validate:"required"`
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig configures the Prometheus endpoint of the server.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path" validate:"omitempty,startswith=/"`
}

// TracingConfig configures span export.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name" validate:"required_if=Enabled true"`
	// Output is stdout or a file path for the stdout exporter.
	Output      string  `mapstructure:"output"`
	SampleRatio float64 `mapstructure:"sample_ratio" validate:"gte=0,lte=1"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port" validate:"gt=0,lte=65535"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	// EventBuffer caps the events kept per run for the events endpoint.
	EventBuffer int `mapstructure:"event_buffer" validate:"gte=0"`
}

// Option customizes Load.
type Option func(*loadOptions)

type loadOptions struct {
	v    *viper.Viper
	file string
}

// WithViper loads through v, typically one that already has CLI flags bound.
func WithViper(v *viper.Viper) Option {
	return func(o *loadOptions) { o.v = v }
}

// WithConfigFile reads path instead of searching for litreview.yaml.
func WithConfigFile(path string) Option {
	return func(o *loadOptions) { o.file = path }
}

// Load reads configuration from defaults, the config file and the
// environment, then validates the result.
func Load(opts ...Option) (*Config, error) {
	o := loadOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	v := o.v
	if v == nil {
		v = viper.New()
	}

	setDefaults(v)

	v.SetEnvPrefix("LITREVIEW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if o.file != "" {
		v.SetConfigFile(o.file)
	} else {
		v.SetConfigName("litreview")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "litreview"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if o.file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadSecrets reads credentials that must never live in a config file.
func loadSecrets(cfg *Config) {
	cfg.LLM.APIKey = firstEnv(llmKeyEnv(cfg.LLM.Provider)...)
	cfg.Search.APIKey = firstEnv("LITREVIEW_SEARCH_API_KEY", "SEMANTIC_SCHOLAR_API_KEY")
	cfg.Store.DSN = os.Getenv("LITREVIEW_STORE_DSN")
	cfg.Store.Redis.Password = os.Getenv("LITREVIEW_STORE_REDIS_PASSWORD")
	cfg.Store.Redis.Enabled = cfg.Store.Driver == "redis"
}

// llmKeyEnv lists the variables checked for the LLM key, the provider's own
// variable first after the LITREVIEW one.
func llmKeyEnv(provider string) []string {
	vendor := map[string]string{
		"google":    "GEMINI_API_KEY",
		"openai":    "OPENAI_API_KEY",
		"anthropic": "ANTHROPIC_API_KEY",
	}
	keys := []string{"LITREVIEW_LLM_API_KEY"}
	if k, ok := vendor[provider]; ok {
		keys = append(keys, k)
	}
	return keys
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func setDefaults(v *viper.Viper) {
	// LLM
	v.SetDefault("llm.provider", "google")
	v.SetDefault("llm.model", "gemini-2.0-flash")
	v.SetDefault("llm.fallback_models", []string{"gemini-2.0-flash-lite", "gemini-2.5-flash", "gemini-2.5-pro"})
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.max_tokens", 8192)
	v.SetDefault("llm.max_input_chars", 100000)
	v.SetDefault("llm.timeout", 2*time.Minute)
	v.SetDefault("llm.base_url", "")

	// Search
	v.SetDefault("search.base_url", "https://api.semanticscholar.org/graph/v1")
	v.SetDefault("search.results_per_query", 20)
	v.SetDefault("search.rate_limit", 0)
	v.SetDefault("search.timeout", 30*time.Second)
	v.SetDefault("search.cache_ttl", 15*time.Minute)

	// Pipeline
	v.SetDefault("pipeline.max_papers", 3)
	v.SetDefault("pipeline.coherence_threshold", 7)
	v.SetDefault("pipeline.revision_ceiling", 2)
	v.SetDefault("pipeline.workers", 3)
	v.SetDefault("pipeline.topic_min_length", 3)
	v.SetDefault("pipeline.topic_max_length", 300)
	v.SetDefault("pipeline.node_timeout", 15*time.Minute)
	v.SetDefault("pipeline.max_steps", 100)

	// Retry
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay", 2*time.Second)
	v.SetDefault("retry.max_delay", 10*time.Second)

	// Storage
	v.SetDefault("storage.data_dir", "data")
	v.SetDefault("storage.download_timeout", 60*time.Second)
	v.SetDefault("storage.max_pdf_bytes", 50<<20)
	v.SetDefault("storage.allow_private_networks", false)
	v.SetDefault("storage.user_agent", "litreview/1.0 (+https://github.com/dshills/litreview)")

	// Store
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", filepath.Join("data", "runs.db"))
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.key_prefix", "litreview:")
	v.SetDefault("store.redis.ttl", 0)

	// Logging
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stderr")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")

	// Tracing
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "litreview")
	v.SetDefault("tracing.output", "stdout")
	v.SetDefault("tracing.sample_ratio", 1.0)

	// Server
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Minute)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.event_buffer", 1000)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct tags and the rules that span fields.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	if c.LLM.Provider != "mock" && c.LLM.APIKey == "" {
		return fmt.Errorf("llm api key is required for provider %q (set one of %s)",
			c.LLM.Provider, strings.Join(llmKeyEnv(c.LLM.Provider), ", "))
	}
	if c.Retry.MaxDelay > 0 && c.Retry.MaxDelay < c.Retry.BaseDelay {
		return fmt.Errorf("retry max_delay (%v) must be >= base_delay (%v)", c.Retry.MaxDelay, c.Retry.BaseDelay)
	}

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			return errors.New("store path is required for sqlite")
		}
	case "mysql":
		if c.Store.DSN == "" {
			return errors.New("LITREVIEW_STORE_DSN is required for mysql")
		}
	}

	return nil
}

// HTTPAddress returns the address the API server listens on.
func (c *Config) HTTPAddress() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// PapersDir, ExtractedDir, AnalysisDir and DraftsDir locate run artifacts.
func (c *Config) PapersDir() string    { return filepath.Join(c.Storage.DataDir, "papers") }
func (c *Config) ExtractedDir() string { return filepath.Join(c.Storage.DataDir, "extracted_text") }
func (c *Config) AnalysisDir() string  { return filepath.Join(c.Storage.DataDir, "analysis") }
func (c *Config) DraftsDir() string    { return filepath.Join(c.Storage.DataDir, "drafts") }
