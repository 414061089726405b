package component

import "context"

// HealthStatus represents the health state of a component.
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusUnhealthy HealthStatus = "unhealthy"
	StatusDegraded  HealthStatus = "degraded"
)

// Health holds health information for a component.
type Health struct {
	Name    string       `json:"name"`
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
}

// Component is a lifecycle-managed resource owned by a host application.
type Component interface {
	// Name returns the unique name of the component.
	Name() string

	// Start initializes the component. It must be called before use.
	Start(ctx context.Context) error

	// Stop releases the component's resources. Callers may bound the
	// shutdown with ctx.
	Stop(ctx context.Context) error

	// Health reports the current health of the component.
	Health(ctx context.Context) Health
}

// Description summarises a component for startup output.
type Description struct {
	// Name is the display name. If empty, the component's Name() is used.
	Name string
	// Type categorizes the component, e.g. "httpclient".
	Type string
	// Details is a one-line configuration summary, e.g. "pool=8/authority idle=60s".
	Details string
}

// Describable is optionally implemented by components that can describe
// their configuration.
type Describable interface {
	Describe() Description
}
