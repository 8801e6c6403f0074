package httpclient

import (
	"context"
	"fmt"
	"net/http"

	"github.com/kbukum/wasmfetch/component"
	"github.com/kbukum/wasmfetch/resilience"
)

// Component wraps a Client with lifecycle management.
type Component struct {
	client    *Client
	config    Config
	transport func() http.RoundTripper
	opts      []Option
}

var _ component.Component = (*Component)(nil)
var _ component.Describable = (*Component)(nil)

// NewComponent creates a client component. transport is called in Start,
// so it may return the transport of a component registered earlier.
func NewComponent(cfg Config, transport func() http.RoundTripper, opts ...Option) *Component {
	return &Component{config: cfg, transport: transport, opts: opts}
}

// Name returns the component name.
func (c *Component) Name() string {
	if c.config.Name == "" {
		return "http"
	}
	return c.config.Name
}

// Start builds the client.
func (c *Component) Start(_ context.Context) error {
	var rt http.RoundTripper
	if c.transport != nil {
		rt = c.transport()
	}
	client, err := New(c.config, rt, c.opts...)
	if err != nil {
		return err
	}
	c.client = client
	return nil
}

// Stop drops the client.
func (c *Component) Stop(_ context.Context) error {
	c.client = nil
	return nil
}

// Health follows the circuit breaker: open is unhealthy, half-open degraded.
func (c *Component) Health(_ context.Context) component.Health {
	h := component.Health{Name: c.Name(), Status: component.StatusHealthy}
	switch {
	case c.client == nil:
		h.Status, h.Message = component.StatusUnhealthy, "not started"
	case c.client.CircuitState() == resilience.StateOpen:
		h.Status, h.Message = component.StatusUnhealthy, "circuit open"
	case c.client.CircuitState() == resilience.StateHalfOpen:
		h.Status, h.Message = component.StatusDegraded, "circuit half-open"
	}
	return h
}

// Describe returns the component description.
func (c *Component) Describe() component.Description {
	return component.Description{
		Name:    c.Name(),
		Type:    "http-client",
		Details: fmt.Sprintf("base=%s retry=%t breaker=%t", c.config.BaseURL, c.config.Retry != nil, c.config.CircuitBreaker != nil),
	}
}

// Client returns the client. Must be called after Start.
func (c *Component) Client() *Client {
	return c.client
}
