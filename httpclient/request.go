package httpclient

import (
	"context"
	"net/url"
	"strings"
	"time"
)

// Request is a built request. Send functions read it and never modify it.
type Request struct {
	Method  string
	URL     *url.URL
	Headers *Headers
	Body    ContentHolder
	// Timeout bounds a synchronous wait. Zero uses Config.RequestTimeout.
	Timeout time.Duration
	// CompressBody gzips the body when compression is enabled.
	CompressBody bool
}

// Response is a decoded response.
type Response[T any] struct {
	StatusCode int
	// Status is the status line without the protocol, e.g. "200 OK".
	Status  string
	Proto   string
	Headers *Headers
	Content T
	// ConnectionID identifies the connection that carried the exchange.
	ConnectionID string
	// Reused is true when the connection came from the cache.
	Reused bool
}

// IsSuccess returns true if the status code is 2xx.
func (r *Response[T]) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// IsError returns true if the status code is 4xx or 5xx.
func (r *Response[T]) IsError() bool {
	return r.StatusCode >= 400
}

// RequestBuilder describes a request fluently. Obtain one from
// Client.Request; finish it with Send, SendContext or SendAsync.
type RequestBuilder struct {
	client *Client
	req    Request
	auth   *AuthConfig
	err    error
}

// Request starts a GET request for uri.
func (c *Client) Request(uri string) *RequestBuilder {
	rb := &RequestBuilder{client: c, req: Request{Method: "GET", Headers: &Headers{}}}
	u, err := url.Parse(uri)
	if err != nil {
		rb.err = &Error{Code: ErrCodeValidation, Message: "invalid url: " + err.Error(), Err: err}
		return rb
	}
	rb.req.URL = u
	return rb
}

// RequestURL starts a GET request for u.
func (c *Client) RequestURL(u *url.URL) *RequestBuilder {
	cp := *u
	return &RequestBuilder{client: c, req: Request{Method: "GET", URL: &cp, Headers: &Headers{}}}
}

// Method sets the request method.
func (b *RequestBuilder) Method(m string) *RequestBuilder {
	b.req.Method = strings.ToUpper(m)
	return b
}

// Header adds a header value.
func (b *RequestBuilder) Header(name, value string) *RequestBuilder {
	b.req.Headers.Add(name, value)
	return b
}

// SetHeader replaces any values of name.
func (b *RequestBuilder) SetHeader(name, value string) *RequestBuilder {
	b.req.Headers.Set(name, value)
	return b
}

// Query adds a URL query parameter.
func (b *RequestBuilder) Query(key, value string) *RequestBuilder {
	if b.req.URL != nil {
		q := b.req.URL.Query()
		q.Add(key, value)
		b.req.URL.RawQuery = q.Encode()
	}
	return b
}

// Timeout bounds the synchronous wait for this request.
func (b *RequestBuilder) Timeout(d time.Duration) *RequestBuilder {
	b.req.Timeout = d
	return b
}

// Auth applies credentials when the request is built.
func (b *RequestBuilder) Auth(a *AuthConfig) *RequestBuilder {
	b.auth = a
	return b
}

// BasicAuth is shorthand for Auth(BasicAuth(user, pass)).
func (b *RequestBuilder) BasicAuth(username, password string) *RequestBuilder {
	return b.Auth(BasicAuth(username, password))
}

// CompressBody gzips the request body when the client has compression enabled.
func (b *RequestBuilder) CompressBody() *RequestBuilder {
	b.req.CompressBody = true
	return b
}

// Body sets the request body without changing the method.
func (b *RequestBuilder) Body(h ContentHolder) *RequestBuilder {
	b.req.Body = h
	return b
}

// Get sets method GET.
func (b *RequestBuilder) Get() *RequestBuilder { return b.Method("GET") }

// Head sets method HEAD.
func (b *RequestBuilder) Head() *RequestBuilder { return b.Method("HEAD") }

// Options sets method OPTIONS.
func (b *RequestBuilder) Options() *RequestBuilder { return b.Method("OPTIONS") }

// Delete sets method DELETE.
func (b *RequestBuilder) Delete() *RequestBuilder { return b.Method("DELETE") }

// Post sets method POST with body h.
func (b *RequestBuilder) Post(h ContentHolder) *RequestBuilder {
	return b.Method("POST").Body(h)
}

// Put sets method PUT with body h.
func (b *RequestBuilder) Put(h ContentHolder) *RequestBuilder {
	return b.Method("PUT").Body(h)
}

// Patch sets method PATCH with body h.
func (b *RequestBuilder) Patch(h ContentHolder) *RequestBuilder {
	return b.Method("PATCH").Body(h)
}

// Build returns an independent copy of the described request.
func (b *RequestBuilder) Build() (*Request, error) {
	if b.err != nil {
		return nil, b.err
	}
	req := b.req
	req.Headers = b.req.Headers.Clone()
	if b.req.URL != nil {
		u := *b.req.URL
		req.URL = &u
	}
	b.auth.apply(&req)
	return &req, nil
}

// SendString sends the request and decodes the body as a UTF-8 string.
func (b *RequestBuilder) SendString() (*Response[string], error) {
	return Send(b, String())
}

// SendBytes sends the request and returns the raw body.
func (b *RequestBuilder) SendBytes() (*Response[[]byte], error) {
	return Send(b, BytesHandler())
}

// Send sends the request and waits for the response, bounded by the
// request timeout or Config.RequestTimeout. An expired wait returns a
// wait-timeout error and leaves the request running.
func Send[T any](b *RequestBuilder, h ContentHandler[T]) (*Response[T], error) {
	req, err := b.Build()
	if err != nil {
		return nil, err
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = b.client.cfg.RequestTimeout
	}
	return dispatch(b.client, req, h).Wait(timeout)
}

// SendContext is Send with the wait bounded by ctx instead of a timeout.
func SendContext[T any](ctx context.Context, b *RequestBuilder, h ContentHandler[T]) (*Response[T], error) {
	req, err := b.Build()
	if err != nil {
		return nil, err
	}
	return dispatch(b.client, req, h).Get(ctx)
}

// SendAsync starts the request and returns its future. Failures, including
// build errors and a closed client, are delivered through the future.
func SendAsync[T any](b *RequestBuilder, h ContentHandler[T]) *Future[*Response[T]] {
	req, err := b.Build()
	if err != nil {
		return failedFuture[*Response[T]](err)
	}
	return dispatch(b.client, req, h)
}

// Do sends a pre-built request on c.
func Do[T any](c *Client, req *Request, h ContentHandler[T]) *Future[*Response[T]] {
	cp := *req
	cp.Headers = req.Headers.Clone()
	if req.URL != nil {
		u := *req.URL
		cp.URL = &u
	}
	return dispatch(c, &cp, h)
}
