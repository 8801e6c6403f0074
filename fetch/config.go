package fetch

import (
	"strings"

	"github.com/kbukum/wasmfetch/host"
	"github.com/kbukum/wasmfetch/validation"
)

// Config configures a Transport.
type Config struct {
	// Redirect is "", "follow" or "manual". Empty leaves the host default.
	Redirect string `yaml:"redirect" mapstructure:"redirect" json:"redirect" validate:"omitempty,oneof=follow manual"`

	// StreamingResponse selects streaming delivery by default.
	StreamingResponse bool `yaml:"streaming_response" mapstructure:"streaming_response" json:"streaming_response"`

	// FetchOptions are raw host options applied to every request.
	FetchOptions map[string]any `yaml:"fetch_options" mapstructure:"fetch_options" json:"fetch_options"`

	// The settings below cannot be honored by a fetch host. They are kept so
	// that a shared configuration file fails validation instead of being
	// silently ignored.
	Proxy                    string `yaml:"proxy" mapstructure:"proxy" json:"proxy"`
	UseCookies               bool   `yaml:"use_cookies" mapstructure:"use_cookies" json:"use_cookies"`
	Credentials              string `yaml:"credentials" mapstructure:"credentials" json:"credentials"`
	AutomaticDecompression   bool   `yaml:"automatic_decompression" mapstructure:"automatic_decompression" json:"automatic_decompression"`
	MaxAutomaticRedirections int    `yaml:"max_automatic_redirections" mapstructure:"max_automatic_redirections" json:"max_automatic_redirections" validate:"gte=0"`
	MaxConnectionsPerHost    int    `yaml:"max_connections_per_host" mapstructure:"max_connections_per_host" json:"max_connections_per_host" validate:"gte=0"`
	MaxResponseHeaderBytes   int64  `yaml:"max_response_header_bytes" mapstructure:"max_response_header_bytes" json:"max_response_header_bytes" validate:"gte=0"`
}

// ApplyDefaults normalizes the configuration.
func (c *Config) ApplyDefaults() {
	c.Redirect = strings.ToLower(strings.TrimSpace(c.Redirect))
}

// Validate checks struct tags, then rejects every unsupported setting.
func (c *Config) Validate() error {
	if err := validation.Validate(c); err != nil {
		return err
	}
	switch {
	case c.Proxy != "":
		return newUnsupportedError("proxy")
	case c.UseCookies:
		return newUnsupportedError("use cookies")
	case c.Credentials != "":
		return newUnsupportedError("credentials")
	case c.AutomaticDecompression:
		return newUnsupportedError("automatic decompression")
	case c.MaxAutomaticRedirections != 0:
		return newUnsupportedError("max automatic redirections")
	case c.MaxConnectionsPerHost != 0:
		return newUnsupportedError("max connections per host")
	case c.MaxResponseHeaderBytes != 0:
		return newUnsupportedError("max response header bytes")
	}
	return nil
}

// RedirectPolicy returns the policy named by Redirect.
func (c *Config) RedirectPolicy() RedirectPolicy {
	switch c.Redirect {
	case "follow":
		return RedirectFollow
	case "manual":
		return RedirectManual
	default:
		return RedirectUnset
	}
}

// NewTransportFromConfig validates cfg and builds a transport over rt.
// Options are applied after the configuration.
func NewTransportFromConfig(rt host.Runtime, cfg Config, opts ...Option) (*Transport, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	base := []Option{
		WithRedirect(cfg.RedirectPolicy()),
		WithStreamingDefault(cfg.StreamingResponse),
		WithDefaultFetchOptions(cfg.FetchOptions),
	}
	return NewTransport(rt, append(base, opts...)...), nil
}
