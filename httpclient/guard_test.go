package httpclient

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestTimeoutGuard_FiresOnce(t *testing.T) {
	var calls atomic.Int32
	g := NewTimeoutGuard(20*time.Millisecond, func() { calls.Add(1) })

	select {
	case <-g.Done():
	case <-time.After(time.Second):
		t.Fatal("guard did not fire")
	}
	time.Sleep(30 * time.Millisecond)
	if n := calls.Load(); n != 1 {
		t.Fatalf("onFire ran %d times, want 1", n)
	}
	if !g.Fired() {
		t.Error("Fired() should be true")
	}
	if g.Disarm() {
		t.Error("Disarm after firing should report false")
	}
}

func TestTimeoutGuard_TouchDefers(t *testing.T) {
	g := NewTimeoutGuard(60*time.Millisecond, nil)
	deadline := time.Now().Add(150 * time.Millisecond)
	for time.Now().Before(deadline) {
		g.Touch()
		time.Sleep(10 * time.Millisecond)
	}
	if g.Fired() {
		t.Fatal("guard fired despite activity")
	}
	select {
	case <-g.Done():
	case <-time.After(time.Second):
		t.Fatal("guard did not fire after activity stopped")
	}
}

func TestTimeoutGuard_Disarm(t *testing.T) {
	var fired atomic.Bool
	g := NewTimeoutGuard(20*time.Millisecond, func() { fired.Store(true) })
	if !g.Disarm() {
		t.Fatal("first Disarm should succeed")
	}
	if !g.Disarm() {
		t.Error("Disarm should stay true once disarmed")
	}
	time.Sleep(50 * time.Millisecond)
	if fired.Load() || g.Fired() {
		t.Fatal("disarmed guard fired")
	}
}

func TestTimeoutGuard_NonPositiveNeverFires(t *testing.T) {
	g := NewTimeoutGuard(0, func() { t.Error("fired") })
	time.Sleep(20 * time.Millisecond)
	if g.Fired() {
		t.Fatal("zero idle guard fired")
	}
	var nilGuard *TimeoutGuard
	nilGuard.Touch()
	if !nilGuard.Disarm() || nilGuard.Fired() {
		t.Error("nil guard should be inert")
	}
}

func TestTimeoutGuard_DisarmRacesFire(t *testing.T) {
	for i := 0; i < 200; i++ {
		var fired atomic.Int32
		g := NewTimeoutGuard(time.Millisecond, func() { fired.Add(1) })
		time.Sleep(time.Duration(i%3) * time.Millisecond)

		var wg sync.WaitGroup
		results := make([]bool, 4)
		for j := range results {
			wg.Add(1)
			go func(j int) {
				defer wg.Done()
				results[j] = g.Disarm()
			}(j)
		}
		wg.Wait()
		time.Sleep(3 * time.Millisecond)

		// Exactly one side wins: either every Disarm succeeded and the guard
		// never fires, or it fired once and every Disarm failed.
		if fired.Load() > 1 {
			t.Fatalf("iteration %d: fired %d times", i, fired.Load())
		}
		for _, ok := range results {
			if ok == g.Fired() {
				t.Fatalf("iteration %d: Disarm=%v but Fired=%v", i, ok, g.Fired())
			}
		}
	}
}
