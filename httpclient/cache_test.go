package httpclient

import (
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

// pipeConn returns a reusable Connection for a and the peer end of its pipe.
func pipeConn(t *testing.T, a Authority) (*Connection, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	c := newConnection(a, client, false, false)
	c.reusable = true
	return c, server
}

func TestConnectionCache_LRU(t *testing.T) {
	a := NewAuthority("http", "example.test", 0)
	cache := NewConnectionCache(2, 0)

	c1, _ := pipeConn(t, a)
	c2, _ := pipeConn(t, a)
	c3, _ := pipeConn(t, a)
	for _, c := range []*Connection{c1, c2, c3} {
		if err := cache.Release(c); err != nil {
			t.Fatalf("Release: %v", err)
		}
	}

	if n := cache.IdleCount(a); n != 2 {
		t.Fatalf("IdleCount = %d, want 2", n)
	}
	if !c1.Closed() {
		t.Error("least recently released connection should be evicted")
	}

	got, err := cache.Acquire(a)
	if err != nil || got != c3 {
		t.Fatalf("Acquire = %v, %v; want most recent", got, err)
	}
	if !got.InUse() {
		t.Error("acquired connection should be in use")
	}
	got, _ = cache.Acquire(a)
	if got != c2 {
		t.Fatalf("second Acquire = %v, want c2", got)
	}
	got, err = cache.Acquire(a)
	if got != nil || err != nil {
		t.Fatalf("empty bucket Acquire = %v, %v", got, err)
	}
}

func TestConnectionCache_BucketsAreIndependent(t *testing.T) {
	a := NewAuthority("http", "a.test", 0)
	b := NewAuthority("http", "b.test", 0)
	cache := NewConnectionCache(1, 0)

	ca, _ := pipeConn(t, a)
	cb, _ := pipeConn(t, b)
	cache.Release(ca)
	cache.Release(cb)
	if ca.Closed() || cb.Closed() {
		t.Fatal("cap is per authority")
	}
	stats := cache.Stats()
	if stats[a.Key()] != 1 || stats[b.Key()] != 1 {
		t.Errorf("Stats = %v", stats)
	}
}

func TestConnectionCache_ZeroCapacity(t *testing.T) {
	a := NewAuthority("http", "example.test", 0)
	cache := NewConnectionCache(0, 0)
	c, _ := pipeConn(t, a)
	if err := cache.Release(c); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if !c.Closed() {
		t.Fatal("zero capacity must close released connections")
	}
	if cache.IdleCount(a) != 0 {
		t.Fatal("zero capacity must cache nothing")
	}
}

func TestConnectionCache_NonReusableClosed(t *testing.T) {
	a := NewAuthority("http", "example.test", 0)
	cache := NewConnectionCache(4, 0)
	c, _ := pipeConn(t, a)
	c.reusable = false
	cache.Release(c)
	if !c.Closed() || cache.IdleCount(a) != 0 {
		t.Fatal("non-reusable connection must be closed, not cached")
	}
}

func TestConnectionCache_StaleDropped(t *testing.T) {
	a := NewAuthority("http", "example.test", 0)
	cache := NewConnectionCache(4, time.Minute)
	c, _ := pipeConn(t, a)
	cache.Release(c)

	cache.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	got, err := cache.Acquire(a)
	if got != nil || err != nil {
		t.Fatalf("Acquire = %v, %v; want miss", got, err)
	}
	if !c.Closed() {
		t.Error("stale connection should be closed")
	}
}

func TestConnectionCache_PeerClosedSkipped(t *testing.T) {
	a := NewAuthority("http", "example.test", 0)
	cache := NewConnectionCache(4, 0)
	good, _ := pipeConn(t, a)
	dead, peer := pipeConn(t, a)
	cache.Release(good)
	cache.Release(dead)
	peer.Close()

	got, err := cache.Acquire(a)
	if err != nil || got != good {
		t.Fatalf("Acquire = %v, %v; want the live connection", got, err)
	}
	if !dead.Closed() {
		t.Error("peer-closed connection should be closed")
	}
}

func TestConnectionCache_Prune(t *testing.T) {
	a := NewAuthority("http", "example.test", 0)
	cache := NewConnectionCache(4, time.Minute)
	c1, _ := pipeConn(t, a)
	c2, _ := pipeConn(t, a)
	cache.Release(c1)
	cache.Release(c2)
	if n := cache.Prune(); n != 0 {
		t.Fatalf("Prune of fresh connections = %d", n)
	}
	cache.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if n := cache.Prune(); n != 2 {
		t.Fatalf("Prune = %d, want 2", n)
	}
	if cache.IdleCount(a) != 0 || !c1.Closed() || !c2.Closed() {
		t.Error("pruned connections should be closed and removed")
	}
}

func TestConnectionCache_EvictAll(t *testing.T) {
	a := NewAuthority("http", "a.test", 0)
	b := NewAuthority("http", "b.test", 0)
	cache := NewConnectionCache(4, 0)
	ca, _ := pipeConn(t, a)
	cb, _ := pipeConn(t, b)
	cache.Release(ca)
	cache.Release(cb)

	if n := cache.EvictAll(&a); n != 1 {
		t.Fatalf("EvictAll(a) = %d", n)
	}
	if !ca.Closed() || cb.Closed() {
		t.Fatal("EvictAll(a) should only touch a")
	}
	if n := cache.EvictAll(nil); n != 1 || !cb.Closed() {
		t.Fatalf("EvictAll(nil) = %d", n)
	}
}

func TestConnectionCache_Shutdown(t *testing.T) {
	a := NewAuthority("http", "example.test", 0)
	cache := NewConnectionCache(4, 0)
	idle, _ := pipeConn(t, a)
	cache.Release(idle)

	if n := cache.Shutdown(); n != 1 {
		t.Fatalf("Shutdown = %d, want 1", n)
	}
	if !idle.Closed() || !cache.Closed() {
		t.Fatal("Shutdown should close idle connections")
	}
	if n := cache.Shutdown(); n != 0 {
		t.Fatalf("second Shutdown = %d", n)
	}
	if _, err := cache.Acquire(a); !errors.Is(err, ErrCacheClosed) {
		t.Fatalf("Acquire after shutdown = %v", err)
	}
	late, _ := pipeConn(t, a)
	if err := cache.Release(late); !errors.Is(err, ErrCacheClosed) {
		t.Fatalf("Release after shutdown = %v", err)
	}
	if !late.Closed() {
		t.Error("connection released after shutdown should be closed")
	}
}

func TestConnectionCache_ExclusiveAcquire(t *testing.T) {
	a := NewAuthority("http", "example.test", 0)
	cache := NewConnectionCache(8, 0)
	for i := 0; i < 8; i++ {
		c, _ := pipeConn(t, a)
		cache.Release(c)
	}

	var mu sync.Mutex
	owners := make(map[*Connection]int)
	var g errgroup.Group
	for i := 0; i < 32; i++ {
		g.Go(func() error {
			c, err := cache.Acquire(a)
			if err != nil || c == nil {
				return err
			}
			mu.Lock()
			owners[c]++
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if len(owners) != 8 {
		t.Fatalf("%d distinct connections handed out, want 8", len(owners))
	}
	for c, n := range owners {
		if n != 1 {
			t.Fatalf("connection %s handed out %d times", c.ID(), n)
		}
	}
}

func TestConnectionCache_NormalizesLiteralAuthorities(t *testing.T) {
	cache := NewConnectionCache(2, 0)
	conn, _ := pipeConn(t, NewAuthority("http", "example.test", 80))
	if err := cache.Release(conn); err != nil {
		t.Fatal(err)
	}

	literals := []Authority{
		{Scheme: "http", Host: "example.test"},
		{Scheme: "HTTP", Host: "Example.Test", Port: 80},
		{Scheme: "Http", Host: "EXAMPLE.test"},
	}
	for _, lit := range literals {
		if n := cache.IdleCount(lit); n != 1 {
			t.Errorf("IdleCount(%+v) = %d, want 1", lit, n)
		}
	}

	got, err := cache.Acquire(literals[1])
	if err != nil || got != conn {
		t.Fatalf("Acquire(%+v) = %v, %v; want the cached connection", literals[1], got, err)
	}
	if err := cache.Release(got); err != nil {
		t.Fatal(err)
	}

	lit := literals[0]
	if n := cache.EvictAll(&lit); n != 1 {
		t.Fatalf("EvictAll(%+v) = %d, want 1", lit, n)
	}
	if lit.Port != 0 {
		t.Error("EvictAll should not modify its argument")
	}
	if n := cache.IdleCount(NewAuthority("http", "example.test", 80)); n != 0 {
		t.Errorf("%d connections left after EvictAll", n)
	}
}

func TestConnectionCache_ReleaseAfterShutdown(t *testing.T) {
	a := NewAuthority("http", "example.test", 0)
	tests := []struct {
		name     string
		capacity int
		reusable bool
	}{
		{"pooled", 2, true},
		{"zero capacity", 0, true},
		{"not reusable", 2, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache := NewConnectionCache(tt.capacity, 0)
			cache.Shutdown()
			conn, _ := pipeConn(t, a)
			conn.reusable = tt.reusable
			if err := cache.Release(conn); !errors.Is(err, ErrCacheClosed) {
				t.Fatalf("Release = %v, want ErrCacheClosed", err)
			}
			if !conn.Closed() {
				t.Error("connection should be closed")
			}
		})
	}
}
