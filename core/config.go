package core

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the storefront service.
// It supports three-layer configuration priority:
//  1. Default values (lowest priority)
//  2. Environment variables (medium priority)
//  3. Functional options (highest priority)
//
// Example usage:
//
//	cfg, err := core.NewConfig(
//	    core.WithName("storefront"),
//	    core.WithPort(8080),
//	)
type Config struct {
	// Core configuration
	Name string `yaml:"name"`
	Port int    `yaml:"port"`

	// HTTP server configuration
	HTTP HTTPConfig `yaml:"http"`

	// AI / generative service configuration
	AI AIServiceConfig `yaml:"ai"`

	// Memory configuration (nutrition insight cache)
	Memory MemoryConfig `yaml:"memory"`

	// Telemetry configuration
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging"`

	// Development configuration
	Development DevelopmentConfig `yaml:"development"`
}

// HTTPConfig contains HTTP server timeouts.
type HTTPConfig struct {
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// AIServiceConfig configures the outbound generative-language calls.
// The API key is deliberately absent: it is re-resolved from the
// environment on every call so rotated credentials take effect
// without a restart.
type AIServiceConfig struct {
	BaseURL     string        `yaml:"base_url"`
	RecipeModel string        `yaml:"recipe_model"`
	InsightModel string       `yaml:"insight_model"`
	Timeout     time.Duration `yaml:"timeout"`
	Temperature float32       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
}

// MemoryConfig configures the keyed transient store.
type MemoryConfig struct {
	// RedisURL enables the Redis backend when set; empty selects the
	// in-process store.
	RedisURL   string        `yaml:"redis_url"`
	InsightTTL time.Duration `yaml:"insight_ttl"`
}

// TelemetryConfig configures tracing.
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"` // OTLP gRPC endpoint; empty uses stdout exporter
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DevelopmentConfig toggles development behavior.
type DevelopmentConfig struct {
	DevMode bool `yaml:"dev_mode"`
}

// Option is a functional option for Config
type Option func(*Config)

// NewConfig creates a Config by applying defaults, environment variables,
// and options in that order, then validating the result.
func NewConfig(opts ...Option) (*Config, error) {
	config := DefaultConfig()
	config.applyEnvironment()

	for _, opt := range opts {
		opt(config)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// DefaultConfig returns the baseline configuration.
func DefaultConfig() *Config {
	return &Config{
		Name: "storefront",
		Port: 8080,
		HTTP: HTTPConfig{
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		AI: AIServiceConfig{
			RecipeModel:  "gemini-3-pro-preview",
			InsightModel: "gemini-3-flash-preview",
			Timeout:      30 * time.Second,
			Temperature:  0.7,
			MaxTokens:    1000,
		},
		Memory: MemoryConfig{
			InsightTTL: 6 * time.Hour,
		},
		Logging: LoggingConfig{
			Level: "INFO",
		},
	}
}

// applyEnvironment overlays STOREFRONT_* environment variables.
func (c *Config) applyEnvironment() {
	if v := os.Getenv("STOREFRONT_NAME"); v != "" {
		c.Name = v
	}
	if v := os.Getenv("STOREFRONT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Port = port
		}
	}
	if v := os.Getenv("PORT"); v != "" && os.Getenv("STOREFRONT_PORT") == "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Port = port
		}
	}
	if v := os.Getenv("STOREFRONT_AI_BASE_URL"); v != "" {
		c.AI.BaseURL = v
	}
	if v := os.Getenv("STOREFRONT_RECIPE_MODEL"); v != "" {
		c.AI.RecipeModel = v
	}
	if v := os.Getenv("STOREFRONT_INSIGHT_MODEL"); v != "" {
		c.AI.InsightModel = v
	}
	if v := os.Getenv("STOREFRONT_AI_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.AI.Timeout = d
		}
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Memory.RedisURL = v
	}
	if v := os.Getenv("STOREFRONT_INSIGHT_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Memory.InsightTTL = d
		}
	}
	if v := os.Getenv("STOREFRONT_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true"
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.Telemetry.Endpoint = v
	}
	if v := os.Getenv("STOREFRONT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("STOREFRONT_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("STOREFRONT_DEV_MODE"); v != "" {
		c.Development.DevMode = v == "true"
	}
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfiguration, c.Port)
	}
	if c.AI.RecipeModel == "" || c.AI.InsightModel == "" {
		return fmt.Errorf("%w: AI model names must not be empty", ErrInvalidConfiguration)
	}
	if c.AI.Timeout <= 0 {
		return fmt.Errorf("%w: AI timeout must be positive", ErrInvalidConfiguration)
	}
	return nil
}

// WithName sets the service name
func WithName(name string) Option {
	return func(c *Config) {
		c.Name = name
	}
}

// WithPort sets the HTTP port
func WithPort(port int) Option {
	return func(c *Config) {
		c.Port = port
	}
}

// WithAIBaseURL overrides the generative-service endpoint (tests point this
// at a local fake)
func WithAIBaseURL(url string) Option {
	return func(c *Config) {
		c.AI.BaseURL = url
	}
}

// WithRecipeModel sets the model used for recipe suggestions
func WithRecipeModel(model string) Option {
	return func(c *Config) {
		c.AI.RecipeModel = model
	}
}

// WithInsightModel sets the model used for nutrition insights
func WithInsightModel(model string) Option {
	return func(c *Config) {
		c.AI.InsightModel = model
	}
}

// WithRedisURL enables the Redis memory backend
func WithRedisURL(url string) Option {
	return func(c *Config) {
		c.Memory.RedisURL = url
	}
}

// WithTelemetry enables tracing against the given OTLP endpoint
// (empty endpoint selects the stdout exporter)
func WithTelemetry(endpoint string) Option {
	return func(c *Config) {
		c.Telemetry.Enabled = true
		c.Telemetry.Endpoint = endpoint
	}
}

// WithDevMode toggles development behavior (verbose request logging)
func WithDevMode(enabled bool) Option {
	return func(c *Config) {
		c.Development.DevMode = enabled
	}
}

// WithConfigFile overlays values from a YAML file. File values sit between
// environment variables and later functional options.
func WithConfigFile(path string) Option {
	return func(c *Config) {
		data, err := os.ReadFile(path)
		if err != nil {
			return
		}
		// Unmarshal over the current config so unset keys keep their values
		_ = yaml.Unmarshal(data, c)
	}
}
