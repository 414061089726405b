package httpclient

import (
	"context"
	"errors"
	"testing"

	"github.com/kbukum/httpkit/component"
	"github.com/kbukum/httpkit/logger"
	"github.com/kbukum/httpkit/resilience"
)

func TestComponent_Lifecycle(t *testing.T) {
	c := NewComponent(Config{}, WithLogger(logger.Nop()))
	if c.Name() != "httpclient" {
		t.Errorf("Name = %q", c.Name())
	}
	if h := c.Health(context.Background()); h.Status != component.StatusUnhealthy || h.Message != "not started" {
		t.Errorf("Health before Start = %+v", h)
	}
	if c.Client() != nil {
		t.Error("Client should be nil before Start")
	}

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if h := c.Health(context.Background()); h.Status != component.StatusHealthy {
		t.Errorf("Health after Start = %+v", h)
	}
	if c.Client() == nil {
		t.Fatal("Client is nil after Start")
	}

	if err := c.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if h := c.Health(context.Background()); h.Status != component.StatusUnhealthy || h.Message != "closed" {
		t.Errorf("Health after Stop = %+v", h)
	}
}

func TestComponent_StopBeforeStart(t *testing.T) {
	if err := NewComponent(Config{}).Stop(context.Background()); err != nil {
		t.Errorf("Stop = %v", err)
	}
}

func TestComponent_StartInvalidConfig(t *testing.T) {
	c := NewComponent(Config{MaxCachedSizeEachDomain: -1}, WithLogger(logger.Nop()))
	if err := c.Start(context.Background()); !IsValidation(err) {
		t.Fatalf("Start = %v, want validation error", err)
	}
}

func TestComponent_Describe(t *testing.T) {
	d := NewComponent(Config{Name: "billing", MaxCachedSizeEachDomain: 4}).Describe()
	if d.Name != "billing" || d.Type != "httpclient" {
		t.Errorf("Describe = %+v", d)
	}
	if d.Details != "pool=4/authority idle=1m0s" {
		t.Errorf("Details = %q", d.Details)
	}
}

func TestComponent_DegradedOnOpenBreaker(t *testing.T) {
	addr := closedAddr(t)
	cfg := SimpleConfig()
	cfg.CircuitBreaker = &resilience.CircuitBreakerConfig{MaxFailures: 1}
	c := NewComponent(cfg, WithLogger(logger.Nop()))
	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer c.Stop(context.Background())

	_, err := c.Client().Request("http://" + addr + "/").SendString()
	var e *Error
	if !errors.As(err, &e) || e.Code != ErrCodeConnect {
		t.Fatalf("err = %v, want connect failure", err)
	}
	if h := c.Health(context.Background()); h.Status != component.StatusDegraded {
		t.Errorf("Health = %+v, want degraded", h)
	}
}
