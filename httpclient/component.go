package httpclient

import (
	"context"

	"github.com/kbukum/httpkit/component"
)

// Component wraps a Client with lifecycle management for host
// applications that start and stop their resources together.
type Component struct {
	client *Client
	config Config
	opts   []Option
}

var _ component.Component = (*Component)(nil)
var _ component.Describable = (*Component)(nil)

// NewComponent creates a client component. The client is built in Start.
func NewComponent(cfg Config, opts ...Option) *Component {
	return &Component{config: cfg, opts: opts}
}

// Name returns the component name.
func (c *Component) Name() string {
	if c.config.Name == "" {
		return "httpclient"
	}
	return c.config.Name
}

// Start builds the client.
func (c *Component) Start(_ context.Context) error {
	cl, err := New(c.config, c.opts...)
	if err != nil {
		return err
	}
	c.client = cl
	return nil
}

// Stop drains in-flight requests, bounded by ctx, and closes cached connections.
func (c *Component) Stop(ctx context.Context) error {
	if c.client != nil {
		return c.client.Shutdown(ctx)
	}
	return nil
}

// Health is healthy while the client is open. An open circuit breaker on
// any authority degrades it.
func (c *Component) Health(_ context.Context) component.Health {
	h := component.Health{Name: c.Name(), Status: component.StatusHealthy}
	switch {
	case c.client == nil:
		h.Status, h.Message = component.StatusUnhealthy, "not started"
	case c.client.IsClosed():
		h.Status, h.Message = component.StatusUnhealthy, "closed"
	default:
		for key, state := range c.client.BreakerStates() {
			if state.String() == "open" {
				h.Status, h.Message = component.StatusDegraded, "circuit open for "+key
				break
			}
		}
	}
	return h
}

// Describe summarises the configuration.
func (c *Component) Describe() component.Description {
	cfg := c.config
	cfg.ApplyDefaults()
	return component.Description{
		Name:    c.Name(),
		Type:    "httpclient",
		Details: cfg.summary(),
	}
}

// Client returns the underlying client. It is nil before Start.
func (c *Component) Client() *Client {
	return c.client
}
