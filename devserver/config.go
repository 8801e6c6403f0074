package devserver

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/kbukum/wasmfetch/devserver/middleware"
	"github.com/kbukum/wasmfetch/resilience"
	"github.com/kbukum/wasmfetch/validation"
)

const defaultMaxBodySize = 10 << 20

// Config holds fixture server configuration.
type Config struct {
	Host string `yaml:"host" mapstructure:"host"`
	Port int    `yaml:"port" mapstructure:"port" validate:"gte=0,lte=65535"`

	ReadTimeout time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	// WriteTimeout is off by default so /chunks and /events can run long.
	WriteTimeout    time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`

	// MaxBodySize limits request bodies, e.g. "10MB", "512KB".
	MaxBodySize string `yaml:"max_body_size" mapstructure:"max_body_size"`

	// StaticDir is served for every path no fixture matches, normally the
	// directory holding the wasm bundle and wasm_exec.js.
	StaticDir string `yaml:"static_dir" mapstructure:"static_dir"`

	// MaxDelay caps the delay parameters of /slow, /chunks and /events.
	MaxDelay time.Duration `yaml:"max_delay" mapstructure:"max_delay"`
	// MaxChunks caps the chunk and event counts.
	MaxChunks int `yaml:"max_chunks" mapstructure:"max_chunks" validate:"gte=0"`

	CORS middleware.CORSConfig `yaml:"cors" mapstructure:"cors"`

	// RateLimit limits requests per client IP. Nil disables it.
	RateLimit *resilience.RateLimiterConfig `yaml:"rate_limit" mapstructure:"rate_limit"`

	// TLS serves HTTPS when a certificate is set.
	TLS *TLSConfig `yaml:"tls" mapstructure:"tls"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 15 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
	if c.MaxBodySize == "" {
		c.MaxBodySize = "10MB"
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.MaxChunks == 0 {
		c.MaxChunks = 1000
	}
	c.CORS.ApplyDefaults()
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if err := validation.Validate(c); err != nil {
		return err
	}
	if err := c.TLS.Validate(); err != nil {
		return err
	}
	_, err := parseSize(c.MaxBodySize)
	return validation.New().
		Custom(err == nil, "max_body_size", fmt.Sprintf("is not a size: %q", c.MaxBodySize)).
		Custom(c.ReadTimeout >= 0 && c.WriteTimeout >= 0 && c.IdleTimeout >= 0, "timeouts", "must not be negative").
		Validate()
}

// Addr returns the configured listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// parseSize reads sizes such as "10MB", "512KB" or "1024".
func parseSize(s string) (int64, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return defaultMaxBodySize, nil
	}
	multiplier := int64(1)
	for _, unit := range []struct {
		suffix string
		mult   int64
	}{{"GB", 1 << 30}, {"MB", 1 << 20}, {"KB", 1 << 10}, {"B", 1}} {
		if strings.HasSuffix(s, unit.suffix) {
			multiplier = unit.mult
			s = strings.TrimSpace(strings.TrimSuffix(s, unit.suffix))
			break
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	return n * multiplier, nil
}
