package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

// fakeClock lets tests move a breaker through its open timeout.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(cfg CircuitBreakerConfig) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	cb := NewCircuitBreaker("http://example.test:80", cfg)
	cb.now = clock.Now
	return cb, clock
}

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	cb, _ := newTestBreaker(CircuitBreakerConfig{MaxFailures: 3, OpenTimeout: time.Second})

	for i := 0; i < 3; i++ {
		if err := cb.Execute(func() error { return errBoom }); !errors.Is(err, errBoom) {
			t.Fatalf("call %d: expected errBoom, got %v", i, err)
		}
	}
	if cb.State() != StateOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) || called {
		t.Errorf("expected rejection without call, got err=%v called=%v", err, called)
	}
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb, _ := newTestBreaker(CircuitBreakerConfig{MaxFailures: 2})
	cb.Record(errBoom)
	cb.Record(nil)
	cb.Record(errBoom)
	if cb.State() != StateClosed {
		t.Errorf("non-consecutive failures must not open the circuit, got %s", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb, clock := newTestBreaker(CircuitBreakerConfig{MaxFailures: 1, OpenTimeout: time.Second, HalfOpenMaxCalls: 1})
	cb.Record(errBoom)
	if cb.State() != StateOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}

	clock.Advance(time.Second)
	if cb.State() != StateHalfOpen {
		t.Fatalf("expected half-open after timeout, got %s", cb.State())
	}
	if err := cb.Allow(); err != nil {
		t.Fatalf("trial call should be allowed: %v", err)
	}
	if err := cb.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("second trial call should be rejected, got %v", err)
	}
	cb.Record(nil)
	if cb.State() != StateClosed {
		t.Errorf("expected closed after successful trial, got %s", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb, clock := newTestBreaker(CircuitBreakerConfig{MaxFailures: 1, OpenTimeout: time.Second})
	cb.Record(errBoom)
	clock.Advance(2 * time.Second)
	if err := cb.Execute(func() error { return errBoom }); !errors.Is(err, errBoom) {
		t.Fatalf("expected trial to run, got %v", err)
	}
	if cb.State() != StateOpen {
		t.Errorf("expected open after failed trial, got %s", cb.State())
	}
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	var transitions []string
	cb, _ := newTestBreaker(CircuitBreakerConfig{
		MaxFailures: 1,
		OnStateChange: func(key string, from, to State) {
			transitions = append(transitions, key+":"+from.String()+"->"+to.String())
		},
	})
	cb.Record(errBoom)
	cb.Reset()

	want := []string{"http://example.test:80:closed->open", "http://example.test:80:open->closed"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v", transitions)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d = %q, want %q", i, transitions[i], want[i])
		}
	}
}

func TestBreakers_PerKey(t *testing.T) {
	b := NewBreakers(CircuitBreakerConfig{MaxFailures: 1})
	b.Get("a").Record(errBoom)

	if b.Get("a") != b.Get("a") {
		t.Error("expected the same breaker for the same key")
	}
	states := b.States()
	if states["a"] != StateOpen {
		t.Errorf("expected a open, got %s", states["a"])
	}
	if b.Get("b").State() != StateClosed {
		t.Error("a failure on one key must not affect another")
	}
}

func TestStateString(t *testing.T) {
	tests := map[State]string{StateClosed: "closed", StateOpen: "open", StateHalfOpen: "half-open", State(9): "unknown"}
	for s, want := range tests {
		if s.String() != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), s.String(), want)
		}
	}
}
