package fetch

import (
	"context"
	"fmt"

	"github.com/kbukum/wasmfetch/component"
	"github.com/kbukum/wasmfetch/host"
)

// Component wraps a Transport with lifecycle management.
type Component struct {
	transport *Transport
	runtime   host.Runtime
	config    Config
	opts      []Option
}

// compile-time assertions
var _ component.Component = (*Component)(nil)
var _ component.Describable = (*Component)(nil)

// NewComponent creates a transport component. The transport is built in
// Start.
func NewComponent(rt host.Runtime, cfg Config, opts ...Option) *Component {
	return &Component{runtime: rt, config: cfg, opts: opts}
}

// Name returns the component name.
func (c *Component) Name() string {
	return "fetch"
}

// Start validates the configuration and builds the transport.
func (c *Component) Start(_ context.Context) error {
	if c.runtime == nil {
		return newInvalidRequestError("no host runtime")
	}
	t, err := NewTransportFromConfig(c.runtime, c.config, c.opts...)
	if err != nil {
		return err
	}
	c.transport = t
	return nil
}

// Stop drops the transport. In-flight responses stay valid until closed.
func (c *Component) Stop(_ context.Context) error {
	c.transport = nil
	return nil
}

// Health reports healthy once the transport is built.
func (c *Component) Health(_ context.Context) component.Health {
	if c.transport == nil {
		return component.Health{Name: c.Name(), Status: component.StatusUnhealthy, Message: "not started"}
	}
	return component.Health{Name: c.Name(), Status: component.StatusHealthy}
}

// Describe returns component description for the bootstrap summary.
func (c *Component) Describe() component.Description {
	redirect := c.config.Redirect
	if redirect == "" {
		redirect = "default"
	}
	return component.Description{
		Name:    "Fetch Transport",
		Type:    "http-transport",
		Details: fmt.Sprintf("redirect=%s streaming=%t", redirect, c.config.StreamingResponse),
	}
}

// Transport returns the transport. Must be called after Start.
func (c *Component) Transport() *Transport {
	return c.transport
}
