package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/kbukum/httpkit/httpclient"
)

const contentTypeJSON = "application/json"

// Client is a JSON-focused REST client over an httpclient.Client. Paths
// are resolved against the base URL.
type Client struct {
	http *httpclient.Client
	base *url.URL
	auth *httpclient.AuthConfig
}

// New creates a REST client with its own engine. Accept: application/json
// is added to the configured default headers.
func New(baseURL string, cfg httpclient.Config, opts ...httpclient.Option) (*Client, error) {
	base, err := parseBase(baseURL)
	if err != nil {
		return nil, err
	}
	headers := make(map[string]string, len(cfg.Headers)+1)
	for k, v := range cfg.Headers {
		headers[k] = v
	}
	if _, ok := headers["Accept"]; !ok {
		headers["Accept"] = contentTypeJSON
	}
	cfg.Headers = headers

	c, err := httpclient.New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{http: c, base: base}, nil
}

// NewFromClient creates a REST client sharing an existing engine.
func NewFromClient(c *httpclient.Client, baseURL string) (*Client, error) {
	base, err := parseBase(baseURL)
	if err != nil {
		return nil, err
	}
	return &Client{http: c, base: base}, nil
}

func parseBase(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, &httpclient.Error{Code: httpclient.ErrCodeValidation, Message: fmt.Sprintf("invalid base url %q", raw), Err: err}
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u, nil
}

// WithAuth sets credentials applied to every request.
func (c *Client) WithAuth(a *httpclient.AuthConfig) *Client {
	cp := *c
	cp.auth = a
	return &cp
}

// HTTP returns the underlying engine.
func (c *Client) HTTP() *httpclient.Client {
	return c.http
}

// Close closes the underlying engine.
func (c *Client) Close() error {
	return c.http.Close()
}

// RequestOption configures a single REST request.
type RequestOption func(*httpclient.RequestBuilder)

// WithQuery adds query parameters.
func WithQuery(params map[string]string) RequestOption {
	return func(b *httpclient.RequestBuilder) {
		for k, v := range params {
			b.Query(k, v)
		}
	}
}

// WithHeaders sets request headers.
func WithHeaders(headers map[string]string) RequestOption {
	return func(b *httpclient.RequestBuilder) {
		for k, v := range headers {
			b.SetHeader(k, v)
		}
	}
}

// WithAuth overrides authentication for one request.
func WithAuth(auth *httpclient.AuthConfig) RequestOption {
	return func(b *httpclient.RequestBuilder) {
		b.Auth(auth)
	}
}

// Response is a decoded REST response.
type Response[T any] struct {
	StatusCode int
	Headers    *httpclient.Headers
	Data       T
}

// Get performs a GET and decodes the JSON response into T.
func Get[T any](ctx context.Context, c *Client, path string, opts ...RequestOption) (*Response[T], error) {
	return do[T](ctx, c, "GET", path, nil, opts...)
}

// Post sends body as JSON and decodes the response into T.
func Post[T any](ctx context.Context, c *Client, path string, body any, opts ...RequestOption) (*Response[T], error) {
	return do[T](ctx, c, "POST", path, Body(body), opts...)
}

// Put sends body as JSON and decodes the response into T.
func Put[T any](ctx context.Context, c *Client, path string, body any, opts ...RequestOption) (*Response[T], error) {
	return do[T](ctx, c, "PUT", path, Body(body), opts...)
}

// Patch sends body as JSON and decodes the response into T.
func Patch[T any](ctx context.Context, c *Client, path string, body any, opts ...RequestOption) (*Response[T], error) {
	return do[T](ctx, c, "PATCH", path, Body(body), opts...)
}

// Delete performs a DELETE and decodes the response into T.
func Delete[T any](ctx context.Context, c *Client, path string, opts ...RequestOption) (*Response[T], error) {
	return do[T](ctx, c, "DELETE", path, nil, opts...)
}

// result carries either the decoded value or the raw body of a non-2xx
// response.
type result[T any] struct {
	data T
	raw  []byte
}

func do[T any](ctx context.Context, c *Client, method, path string, body httpclient.ContentHolder, opts ...RequestOption) (*Response[T], error) {
	ref, err := url.Parse(strings.TrimPrefix(path, "/"))
	if err != nil {
		return nil, &httpclient.Error{Code: httpclient.ErrCodeValidation, Message: "invalid path: " + err.Error(), Err: err}
	}
	b := c.http.RequestURL(c.base.ResolveReference(ref)).Method(method).Auth(c.auth)
	if body != nil {
		b.Body(body)
	}
	for _, opt := range opts {
		opt(b)
	}

	resp, err := httpclient.SendContext(ctx, b, handler[T]())
	if err != nil {
		return nil, err
	}
	out := &Response[T]{StatusCode: resp.StatusCode, Headers: resp.Headers, Data: resp.Content.data}
	if se := ClassifyStatusCode(resp.StatusCode, resp.Content.raw); se != nil {
		se.Status = resp.Status
		return out, se
	}
	return out, nil
}

func handler[T any]() httpclient.ContentHandler[result[T]] {
	return httpclient.ContentHandlerFunc[result[T]](func(info httpclient.ResponseInfo, r io.Reader) (result[T], error) {
		var res result[T]
		if info.StatusCode >= 200 && info.StatusCode < 300 {
			data, err := JSON[T]().Handle(info, r)
			res.data = data
			return res, err
		}
		raw, err := io.ReadAll(r)
		if err != nil {
			return res, err
		}
		res.raw = raw
		// Error bodies are decoded into T when they happen to fit.
		_ = json.Unmarshal(raw, &res.data)
		return res, nil
	})
}

// JSON decodes a JSON body into T. An empty body yields T's zero value.
func JSON[T any]() httpclient.ContentHandler[T] {
	return httpclient.ContentHandlerFunc[T](func(_ httpclient.ResponseInfo, r io.Reader) (T, error) {
		var v T
		data, err := io.ReadAll(r)
		if err != nil {
			return v, err
		}
		if len(bytes.TrimSpace(data)) == 0 {
			return v, nil
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return v, fmt.Errorf("decode json: %w", err)
		}
		return v, nil
	})
}

type jsonBody struct{ v any }

func (j jsonBody) ContentType() string { return contentTypeJSON }

func (j jsonBody) Content() (io.Reader, int64, error) {
	data, err := json.Marshal(j.v)
	if err != nil {
		return nil, 0, err
	}
	return bytes.NewReader(data), int64(len(data)), nil
}

// Body encodes v as JSON when the request is sent. Marshal failures
// surface as encode errors.
func Body(v any) httpclient.ContentHolder {
	return jsonBody{v: v}
}
