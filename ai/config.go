// Package ai defines the configuration surface for generative-language
// clients. The storefront talks to one external service (Gemini); the
// functional options here are how callers shape each client.
package ai

import (
	"time"

	"github.com/freshroots/storefront/core"
)

// Config holds configuration for AI client creation
type Config struct {
	// API credentials. An empty APIKey makes the client resolve the key
	// from the environment at call time.
	APIKey  string
	BaseURL string

	// Connection settings
	Timeout time.Duration

	// Model configuration
	Model       string
	Temperature float32
	MaxTokens   int

	Logger    core.Logger
	Telemetry core.Telemetry
}

// Option configures an AI client
type Option func(*Config)

// WithAPIKey sets an explicit API key (tests use this; production leaves it
// empty so the key is re-read from the environment per call)
func WithAPIKey(key string) Option {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithBaseURL sets the base URL for the API
func WithBaseURL(url string) Option {
	return func(c *Config) {
		c.BaseURL = url
	}
}

// WithTimeout sets the request timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Timeout = timeout
	}
}

// WithModel sets the model to use
func WithModel(model string) Option {
	return func(c *Config) {
		c.Model = model
	}
}

// WithTemperature sets the temperature for generation
func WithTemperature(temp float32) Option {
	return func(c *Config) {
		c.Temperature = temp
	}
}

// WithMaxTokens sets the maximum tokens for generation
func WithMaxTokens(tokens int) Option {
	return func(c *Config) {
		c.MaxTokens = tokens
	}
}

// WithLogger sets the logger for AI operations
func WithLogger(logger core.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithTelemetry sets the telemetry provider for distributed tracing
func WithTelemetry(telemetry core.Telemetry) Option {
	return func(c *Config) {
		c.Telemetry = telemetry
	}
}
