package httpclient

import (
	"context"
	"sync"
	"time"

	"github.com/kbukum/httpkit/logger"
	"github.com/kbukum/httpkit/observability"
)

// Eviction reasons reported in logs and metrics.
const (
	evictLRU      = "lru"
	evictStale    = "stale"
	evictDead     = "dead"
	evictExplicit = "evict"
	evictShutdown = "shutdown"
	evictNoCache  = "no_cache"
)

// ConnectionCache keeps idle connections per Authority. Each bucket holds
// at most capacity connections, ordered by release time; overflowing a
// bucket closes its least recently released entry. Capacity zero caches
// nothing: every released connection is closed.
type ConnectionCache struct {
	capacity   int
	staleAfter time.Duration

	mu     sync.Mutex
	idle   map[Authority][]*Connection
	closed bool

	log     *logger.Logger
	metrics *observability.ClientMetrics
	now     func() time.Time
}

// NewConnectionCache creates a cache. A non-positive staleAfter disables the
// staleness check.
func NewConnectionCache(capacity int, staleAfter time.Duration) *ConnectionCache {
	return &ConnectionCache{
		capacity:   max(capacity, 0),
		staleAfter: staleAfter,
		idle:       make(map[Authority][]*Connection),
		log:        logger.Nop(),
		now:        time.Now,
	}
}

// Capacity returns the per-authority idle cap.
func (c *ConnectionCache) Capacity() int { return c.capacity }

// Acquire removes and returns the most recently released live connection
// for a. Stale, closed or peer-closed entries met on the way are closed and
// dropped. It returns (nil, nil) on a miss.
func (c *ConnectionCache) Acquire(a Authority) (*Connection, error) {
	a = a.Normalize()
	for {
		conn, dropped, err := c.pop(a)
		c.closeAll(a, dropped, evictStale)
		if err != nil || conn == nil {
			c.metrics.RecordCacheLookup(context.Background(), a.Key(), false)
			return nil, err
		}
		if !conn.alive() {
			c.closeAll(a, []*Connection{conn}, evictDead)
			continue
		}
		conn.inUse.Store(true)
		c.metrics.RecordCacheLookup(context.Background(), a.Key(), true)
		c.log.Debug("cache hit", logger.Fields(
			logger.FieldAuthority, a.Key(),
			logger.FieldConnID, conn.ID(),
		))
		return conn, nil
	}
}

func (c *ConnectionCache) pop(a Authority) (*Connection, []*Connection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, nil, errCacheClosed
	}
	list := c.idle[a]
	var dropped []*Connection
	now := c.now()
	for len(list) > 0 {
		last := list[len(list)-1]
		list[len(list)-1] = nil
		list = list[:len(list)-1]
		c.metrics.AddIdle(context.Background(), a.Key(), -1)
		if last.Closed() || c.stale(last, now) {
			dropped = append(dropped, last)
			continue
		}
		c.store(a, list)
		return last, dropped, nil
	}
	c.store(a, list)
	return nil, dropped, nil
}

func (c *ConnectionCache) store(a Authority, list []*Connection) {
	if len(list) == 0 {
		delete(c.idle, a)
		return
	}
	c.idle[a] = list
}

func (c *ConnectionCache) stale(conn *Connection, now time.Time) bool {
	return c.staleAfter > 0 && now.Sub(conn.LastActive()) > c.staleAfter
}

// Release returns a connection after a successful request. Connections
// marked non-reusable, already closed, or arriving at a zero-capacity or
// closed cache are closed instead. Releasing into a closed cache returns
// ErrCacheClosed.
func (c *ConnectionCache) Release(conn *Connection) error {
	if conn == nil {
		return nil
	}
	conn.inUse.Store(false)
	a := conn.Authority().Normalize()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return errCacheClosed
	}
	if !conn.reusable || conn.Closed() || c.capacity == 0 {
		c.mu.Unlock()
		reason := evictDead
		if conn.reusable && !conn.Closed() {
			reason = evictNoCache
		}
		c.closeAll(a, []*Connection{conn}, reason)
		return nil
	}
	list := append(c.idle[a], conn)
	var evicted []*Connection
	for len(list) > c.capacity {
		evicted = append(evicted, list[0])
		list[0] = nil
		list = list[1:]
	}
	c.idle[a] = list
	c.mu.Unlock()

	c.metrics.AddIdle(context.Background(), a.Key(), 1-len(evicted))
	c.closeAll(a, evicted, evictLRU)
	return nil
}

// Discard closes a connection that must not be reused.
func (c *ConnectionCache) Discard(conn *Connection) {
	if conn == nil {
		return
	}
	conn.inUse.Store(false)
	_ = conn.Close()
}

// EvictAll closes the idle connections for a, or for every authority when
// a is nil. It returns how many were closed.
func (c *ConnectionCache) EvictAll(a *Authority) int {
	if a != nil {
		n := a.Normalize()
		a = &n
	}
	return c.evict(a, evictExplicit, false)
}

// Shutdown closes every idle connection and makes later Acquire and
// Release calls fail with ErrCacheClosed. It is safe to call repeatedly.
func (c *ConnectionCache) Shutdown() int {
	return c.evict(nil, evictShutdown, true)
}

func (c *ConnectionCache) evict(a *Authority, reason string, shutdown bool) int {
	c.mu.Lock()
	if shutdown {
		c.closed = true
	}
	taken := make(map[Authority][]*Connection)
	if a != nil {
		if list, ok := c.idle[*a]; ok {
			taken[*a] = list
			delete(c.idle, *a)
		}
	} else {
		taken = c.idle
		c.idle = make(map[Authority][]*Connection)
	}
	c.mu.Unlock()

	n := 0
	for auth, list := range taken {
		c.metrics.AddIdle(context.Background(), auth.Key(), -len(list))
		c.closeAll(auth, list, reason)
		n += len(list)
	}
	return n
}

// Prune closes idle connections that went stale. It returns how many were
// closed.
func (c *ConnectionCache) Prune() int {
	c.mu.Lock()
	now := c.now()
	dropped := make(map[Authority][]*Connection)
	for a, list := range c.idle {
		kept := list[:0]
		for _, conn := range list {
			if conn.Closed() || c.stale(conn, now) {
				dropped[a] = append(dropped[a], conn)
				continue
			}
			kept = append(kept, conn)
		}
		clear(list[len(kept):])
		c.store(a, kept)
	}
	c.mu.Unlock()

	n := 0
	for a, list := range dropped {
		c.metrics.AddIdle(context.Background(), a.Key(), -len(list))
		c.closeAll(a, list, evictStale)
		n += len(list)
	}
	return n
}

// IdleCount returns the number of idle connections held for a.
func (c *ConnectionCache) IdleCount(a Authority) int {
	a = a.Normalize()
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.idle[a])
}

// Stats returns idle counts keyed by Authority.Key().
func (c *ConnectionCache) Stats() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.idle))
	for a, list := range c.idle {
		out[a.Key()] = len(list)
	}
	return out
}

// Closed reports whether Shutdown was called.
func (c *ConnectionCache) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *ConnectionCache) closeAll(a Authority, conns []*Connection, reason string) {
	if len(conns) == 0 {
		return
	}
	for _, conn := range conns {
		conn.inUse.Store(false)
		_ = conn.Close()
	}
	if reason != evictNoCache {
		c.metrics.RecordEviction(context.Background(), a.Key(), reason, len(conns))
	}
	c.log.Debug("connections closed", logger.Fields(
		logger.FieldAuthority, a.Key(),
		logger.FieldReason, reason,
		"count", len(conns),
	))
}
