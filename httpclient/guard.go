package httpclient

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	guardArmed int32 = iota
	guardFired
	guardDisarmed
)

// TimeoutGuard watches one connection for inactivity. When no Touch arrives
// for the idle duration it fires once: onFire runs and the guard is done.
// Disarm and firing race safely; the first to win decides the outcome.
type TimeoutGuard struct {
	idle   time.Duration
	onFire func()

	state        atomic.Int32
	lastActivity atomic.Int64 // unix nanos

	mu    sync.Mutex
	timer *time.Timer
	fired chan struct{}
}

// NewTimeoutGuard arms a guard. A non-positive idle never fires.
func NewTimeoutGuard(idle time.Duration, onFire func()) *TimeoutGuard {
	g := &TimeoutGuard{
		idle:   idle,
		onFire: onFire,
		fired:  make(chan struct{}),
	}
	g.lastActivity.Store(time.Now().UnixNano())
	if idle > 0 {
		g.mu.Lock()
		g.timer = time.AfterFunc(idle, g.check)
		g.mu.Unlock()
	}
	return g
}

// Touch records activity, pushing the deadline out by the idle duration.
func (g *TimeoutGuard) Touch() {
	if g == nil {
		return
	}
	g.lastActivity.Store(time.Now().UnixNano())
}

// Disarm stops the guard. It returns false if the guard already fired.
func (g *TimeoutGuard) Disarm() bool {
	if g == nil {
		return true
	}
	if !g.state.CompareAndSwap(guardArmed, guardDisarmed) {
		return g.state.Load() == guardDisarmed
	}
	g.mu.Lock()
	if g.timer != nil {
		g.timer.Stop()
	}
	g.mu.Unlock()
	return true
}

// Fired reports whether the guard fired.
func (g *TimeoutGuard) Fired() bool {
	return g != nil && g.state.Load() == guardFired
}

// Done is closed when the guard fires.
func (g *TimeoutGuard) Done() <-chan struct{} {
	return g.fired
}

// check runs on the timer. A touch since arming reschedules for the
// remaining idle time instead of firing.
func (g *TimeoutGuard) check() {
	if g.state.Load() != guardArmed {
		return
	}
	last := time.Unix(0, g.lastActivity.Load())
	if remaining := g.idle - time.Since(last); remaining > 0 {
		g.mu.Lock()
		if g.state.Load() == guardArmed {
			g.timer.Reset(remaining)
		}
		g.mu.Unlock()
		return
	}
	g.fire()
}

func (g *TimeoutGuard) fire() {
	if !g.state.CompareAndSwap(guardArmed, guardFired) {
		return
	}
	close(g.fired)
	if g.onFire != nil {
		g.onFire()
	}
}
