package httpclient

import (
	"bufio"
	"errors"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Connection is one negotiated transport channel bound to an Authority.
// It serves at most one request at a time.
type Connection struct {
	id        string
	authority Authority
	conn      net.Conn
	br        *bufio.Reader
	bw        *bufio.Writer
	tls       bool
	proxied   bool
	createdAt time.Time

	lastActive atomic.Int64 // unix nanos
	inUse      atomic.Bool
	closed     atomic.Bool
	guard      atomic.Pointer[TimeoutGuard]
	closeOnce  sync.Once
	closeErr   error

	// reusable is owned by the pipeline holding the connection.
	reusable bool
}

func newConnection(a Authority, conn net.Conn, secure, proxied bool) *Connection {
	c := &Connection{
		id:        uuid.NewString(),
		authority: a,
		conn:      conn,
		tls:       secure,
		proxied:   proxied,
		createdAt: time.Now(),
	}
	tracked := &activityConn{Conn: conn, owner: c}
	c.br = bufio.NewReader(tracked)
	c.bw = bufio.NewWriter(tracked)
	c.markActive()
	return c
}

// ID returns the connection's unique identifier.
func (c *Connection) ID() string { return c.id }

// Authority returns the endpoint the connection is bound to.
func (c *Connection) Authority() Authority { return c.authority }

// TLS reports whether a TLS handshake completed on the connection.
func (c *Connection) TLS() bool { return c.tls }

// Proxied reports whether the connection runs through a proxy tunnel.
func (c *Connection) Proxied() bool { return c.proxied }

// CreatedAt returns when negotiation finished.
func (c *Connection) CreatedAt() time.Time { return c.createdAt }

// LastActive returns the time of the last byte read or written.
func (c *Connection) LastActive() time.Time { return time.Unix(0, c.lastActive.Load()) }

// InUse reports whether a request currently owns the connection.
func (c *Connection) InUse() bool { return c.inUse.Load() }

// Closed reports whether Close has been called.
func (c *Connection) Closed() bool { return c.closed.Load() }

// Close closes the underlying transport once. Later calls return the
// first result.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

func (c *Connection) markActive() {
	c.lastActive.Store(time.Now().UnixNano())
	c.guard.Load().Touch()
}

// arm installs an idle guard that closes the connection when it fires.
func (c *Connection) arm(idle time.Duration, onFire func()) *TimeoutGuard {
	g := NewTimeoutGuard(idle, func() {
		_ = c.Close()
		if onFire != nil {
			onFire()
		}
	})
	c.guard.Store(g)
	return g
}

// disarm removes the guard. It returns false if the guard already fired.
func (c *Connection) disarm() bool {
	g := c.guard.Swap(nil)
	return g.Disarm()
}

// alive reports whether an idle connection can carry another request: the
// peer has not closed it and has sent nothing unsolicited.
func (c *Connection) alive() bool {
	if c.Closed() {
		return false
	}
	if c.br.Buffered() > 0 {
		return false
	}
	if err := c.conn.SetReadDeadline(time.Now().Add(time.Millisecond)); err != nil {
		return false
	}
	_, err := c.br.Peek(1)
	_ = c.conn.SetReadDeadline(time.Time{})
	return errors.Is(err, os.ErrDeadlineExceeded)
}

// activityConn records reads and writes on its owner.
type activityConn struct {
	net.Conn
	owner *Connection
}

func (a *activityConn) Read(p []byte) (int, error) {
	n, err := a.Conn.Read(p)
	if n > 0 {
		a.owner.markActive()
	}
	return n, err
}

func (a *activityConn) Write(p []byte) (int, error) {
	n, err := a.Conn.Write(p)
	if n > 0 {
		a.owner.markActive()
	}
	return n, err
}
