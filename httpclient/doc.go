// Package httpclient is an HTTP/1.1 client engine with per-authority
// connection caching, forward proxy tunnels and pluggable body codecs.
//
// A Client keeps up to MaxCachedSizeEachDomain idle connections per
// authority (scheme, host, port) and evicts the least recently released
// one when a bucket overflows. With the cap at zero every request gets its
// own connection, closed after use.
//
// Each request runs as a pipeline on a bounded worker pool:
//
//	PREPARING -> CONNECTING -> SENDING -> AWAITING_RESPONSE -> DECODING -> COMPLETING -> DONE
//
// and any step may end in FAILED. A connection that carried a failed
// request is closed, never cached. An idle guard fails a request whose
// connection moves no bytes for IdleTimeout with ErrAllTimeout.
//
// Bodies go out through a ContentHolder and come back through a
// ContentHandler[T]:
//
//	c, err := httpclient.New(httpclient.DefaultConfig())
//	defer c.Close()
//
//	resp, err := httpclient.Send(c.Request("http://example.com/echo").
//	    Post(httpclient.UTF8("p1=abc&p2=12345")), httpclient.String())
//
//	fut := httpclient.SendAsync(c.Request("https://example.com/"), httpclient.BytesHandler())
//	fut.OnComplete(func(r *httpclient.Response[[]byte], err error) { ... })
//
// LoadConfig reads a Config from YAML, .env and the environment.
//
// Subpackages:
//
//   - rest: JSON handlers and typed helpers
//   - sse: Server-Sent Events decoding
package httpclient
