package httpclient

import (
	"time"

	"github.com/kbukum/wasmfetch/resilience"
	"github.com/kbukum/wasmfetch/validation"
)

const defaultTimeout = 30 * time.Second

// Config configures the client.
type Config struct {
	// Name identifies the client in logs and health reports.
	Name string `yaml:"name" mapstructure:"name" json:"name"`

	// BaseURL is prepended to relative request paths.
	BaseURL string `yaml:"base_url" mapstructure:"base_url" json:"base_url" validate:"omitempty,url"`

	// Timeout bounds a buffered request including reading its body.
	// Streamed requests are bounded by their context only.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout" json:"timeout"`

	// Headers are default headers applied to all requests.
	Headers map[string]string `yaml:"headers" mapstructure:"headers" json:"headers"`

	// Auth is the default authentication. Requests can override it.
	Auth *AuthConfig `yaml:"auth" mapstructure:"auth" json:"auth"`

	// Retry enables retries of retryable failures. Nil disables retry.
	Retry *resilience.RetryConfig `yaml:"retry" mapstructure:"retry" json:"retry"`

	// CircuitBreaker fails fast after repeated retryable failures.
	CircuitBreaker *resilience.CircuitBreakerConfig `yaml:"circuit_breaker" mapstructure:"circuit_breaker" json:"circuit_breaker"`

	// RateLimiter paces outgoing requests.
	RateLimiter *resilience.RateLimiterConfig `yaml:"rate_limiter" mapstructure:"rate_limiter" json:"rate_limiter"`

	// Bulkhead bounds requests in flight. A streamed response holds its
	// slot until it is closed.
	Bulkhead *resilience.BulkheadConfig `yaml:"bulkhead" mapstructure:"bulkhead" json:"bulkhead"`
}

// ApplyDefaults fills in zero-value fields.
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "http"
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.CircuitBreaker != nil && c.CircuitBreaker.Name == "" {
		c.CircuitBreaker.Name = c.Name
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := validation.Validate(c); err != nil {
		return err
	}
	if c.Auth != nil {
		return c.Auth.Validate()
	}
	return nil
}

// DefaultRetryConfig returns a retry config that retries what IsRetryable
// accepts and honors Retry-After.
func DefaultRetryConfig() *resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	return &cfg
}

// DefaultCircuitBreakerConfig returns a default circuit breaker config.
func DefaultCircuitBreakerConfig(name string) *resilience.CircuitBreakerConfig {
	cfg := resilience.DefaultCircuitBreakerConfig(name)
	return &cfg
}

// DefaultRateLimiterConfig returns a default rate limiter config.
func DefaultRateLimiterConfig(name string) *resilience.RateLimiterConfig {
	cfg := resilience.DefaultRateLimiterConfig(name)
	return &cfg
}
