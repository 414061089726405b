package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/net/http/httpguts"

	"github.com/kbukum/httpkit/logger"
	"github.com/kbukum/httpkit/observability"
	"github.com/kbukum/httpkit/resilience"
)

// PipelineState is one step of a request's lifecycle.
type PipelineState int

const (
	StatePreparing PipelineState = iota
	StateConnecting
	StateSending
	StateAwaitingResponse
	StateDecoding
	StateCompleting
	StateDone
	StateFailed
)

// String returns the state name.
func (s PipelineState) String() string {
	switch s {
	case StatePreparing:
		return "PREPARING"
	case StateConnecting:
		return "CONNECTING"
	case StateSending:
		return "SENDING"
	case StateAwaitingResponse:
		return "AWAITING_RESPONSE"
	case StateDecoding:
		return "DECODING"
	case StateCompleting:
		return "COMPLETING"
	case StateDone:
		return "DONE"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// StateObserver is told about every pipeline transition. It runs on the
// worker goroutine and must not block.
type StateObserver func(requestID string, from, to PipelineState)

// pipeline drives one request from description to result. It owns its
// connection exclusively between acquire and release.
type pipeline[T any] struct {
	c       *Client
	id      string
	req     *Request
	handler ContentHandler[T]

	state     PipelineState
	authority Authority
	headers   *Headers
	target    string
	conn      *Connection
	guard     *TimeoutGuard
	reused    bool
}

func newPipeline[T any](c *Client, req *Request, h ContentHandler[T]) *pipeline[T] {
	return &pipeline[T]{c: c, id: uuid.NewString(), req: req, handler: h}
}

func (p *pipeline[T]) transition(to PipelineState) {
	from := p.state
	p.state = to
	if p.c.observer != nil {
		p.c.observer(p.id, from, to)
	}
}

// run executes every step and always leaves the connection released or
// closed. It returns exactly one of a response or an error.
func (p *pipeline[T]) run(ctx context.Context) (resp *Response[T], err error) {
	start := time.Now()
	ctx, span := observability.StartSpan(ctx, p.c.tracer, observability.SpanClientRequest,
		attribute.String(observability.AttrMethod, p.req.Method),
	)

	defer func() {
		if r := recover(); r != nil {
			resp, err = nil, &Error{Code: ErrCodeDecode, Authority: p.authority.String(), Message: fmt.Sprintf("panic: %v", r)}
		}
		if err != nil {
			p.fail(err)
		}
		p.c.metrics.RecordRequest(ctx, p.authority.String(), p.req.Method, Outcome(err), time.Since(start))
		attrs := []attribute.KeyValue{
			attribute.String(observability.AttrAuthority, p.authority.String()),
			attribute.Bool(observability.AttrReused, p.reused),
		}
		if resp != nil {
			attrs = append(attrs,
				attribute.Int(observability.AttrStatus, resp.StatusCode),
				attribute.String(observability.AttrConnID, resp.ConnectionID),
			)
		}
		observability.EndSpan(span, err, attrs...)
	}()

	if err := p.prepare(ctx); err != nil {
		return nil, err
	}
	if err := p.connect(ctx); err != nil {
		return nil, err
	}
	if err := p.send(); err != nil {
		return nil, err
	}
	raw, err := p.await()
	if err != nil {
		return nil, err
	}
	resp, err = p.decode(raw)
	if err != nil {
		return nil, err
	}
	p.complete(raw)
	return resp, nil
}

// prepare validates the request, resolves its authority and computes the
// header block.
func (p *pipeline[T]) prepare(ctx context.Context) error {
	req := p.req
	if req.Method == "" || !httpguts.ValidHeaderFieldName(req.Method) {
		return newErrorf(ErrCodeValidation, "invalid method %q", req.Method)
	}
	a, err := ParseAuthority(req.URL)
	if err != nil {
		return err
	}
	p.authority = a
	for _, f := range req.Headers.All() {
		if !httpguts.ValidHeaderFieldName(f.Name) {
			return newErrorf(ErrCodeValidation, "invalid header name %q", f.Name)
		}
		if !httpguts.ValidHeaderFieldValue(f.Value) {
			return newErrorf(ErrCodeValidation, "invalid value for header %q", f.Name)
		}
	}

	if p.c.limiter != nil {
		if err := p.c.limiter.Wait(ctx); err != nil {
			return &Error{Code: ErrCodeRejected, Authority: a.String(), Message: err.Error(), Err: err}
		}
	}

	p.target = req.URL.RequestURI()
	if p.target == "" {
		p.target = "/"
	}
	p.headers = p.buildHeaders()
	return nil
}

func (p *pipeline[T]) buildHeaders() *Headers {
	cfg := &p.c.cfg
	h := &Headers{}
	if host := p.req.Headers.Get("Host"); host != "" {
		h.Add("Host", host)
	} else {
		h.Add("Host", p.authority.HostHeader())
	}
	for _, f := range p.req.Headers.All() {
		switch {
		case strings.EqualFold(f.Name, "Host"), strings.EqualFold(f.Name, "Content-Length"), strings.EqualFold(f.Name, "Transfer-Encoding"):
			continue
		}
		h.Add(f.Name, f.Value)
	}
	for _, name := range slices.Sorted(maps.Keys(cfg.Headers)) {
		h.SetDefault(name, cfg.Headers[name])
	}
	h.SetDefault("User-Agent", cfg.UserAgent)
	if cfg.Simple() {
		h.Set("Connection", "close")
	} else {
		h.SetDefault("Connection", "keep-alive")
	}
	if ae := p.c.codecs.acceptEncoding(); ae != "" {
		h.SetDefault("Accept-Encoding", ae)
	} else {
		h.Del("Accept-Encoding")
	}
	return h
}

func (p *pipeline[T]) connect(ctx context.Context) error {
	p.transition(StateConnecting)
	conn, err := p.c.cache.Acquire(p.authority)
	if err != nil {
		return err
	}
	if conn != nil {
		p.conn, p.reused = conn, true
		return nil
	}

	var cb *resilience.CircuitBreaker
	if p.c.breakers != nil {
		cb = p.c.breakers.Get(p.authority.Key())
		if err := cb.Allow(); err != nil {
			return &Error{Code: ErrCodeRejected, Authority: p.authority.String(), Message: err.Error(), Err: err}
		}
	}
	conn, err = p.c.negotiator.Connect(ctx, p.authority)
	if cb != nil {
		cb.Record(err)
	}
	if err != nil {
		return err
	}
	conn.inUse.Store(true)
	p.conn = conn
	return nil
}

func (p *pipeline[T]) send() error {
	p.transition(StateSending)
	conn := p.conn
	p.guard = conn.arm(p.c.cfg.IdleTimeout, func() { p.onIdle(conn) })

	body, n, err := p.encodeBody()
	if err != nil {
		return newError(ErrCodeEncode, p.authority, err)
	}
	p.conn.reusable = false
	if err := writeRequest(p.conn.bw, p.req.Method, p.target, p.headers, body, n); err != nil {
		return p.ioError(err)
	}
	return nil
}

func (p *pipeline[T]) onIdle(conn *Connection) {
	p.c.metrics.RecordAllTimeout(context.Background(), conn.Authority().Key())
	p.c.log.Warn("idle timeout fired", logger.Fields(
		logger.FieldAuthority, conn.Authority().Key(),
		logger.FieldConnID, conn.ID(),
		logger.FieldDuration, logger.Duration(p.c.cfg.IdleTimeout),
	))
}

// encodeBody obtains the body from the ContentHolder and sets the framing
// and content headers.
func (p *pipeline[T]) encodeBody() (io.Reader, int64, error) {
	h := p.headers
	if p.req.Body == nil {
		if bodyMethod(p.req.Method) && p.req.Method != "DELETE" {
			h.Set("Content-Length", "0")
		}
		return nil, 0, nil
	}
	r, n, err := p.req.Body.Content()
	if err != nil {
		return nil, 0, err
	}
	if ct := p.req.Body.ContentType(); ct != "" {
		h.SetDefault("Content-Type", ct)
	} else if bodyMethod(p.req.Method) {
		h.SetDefault("Content-Type", ContentTypeForm)
	}

	if p.req.CompressBody && p.c.codecs.enabled && !h.Has("Content-Encoding") {
		src := r
		if n >= 0 {
			src = io.LimitReader(r, n)
		}
		plain, err := io.ReadAll(src)
		if err != nil {
			return nil, 0, err
		}
		packed, err := encode(EncodingGzip, plain)
		if err != nil {
			return nil, 0, err
		}
		h.Set("Content-Encoding", EncodingGzip)
		r, n = bytes.NewReader(packed), int64(len(packed))
	}

	if n >= 0 {
		h.Set("Content-Length", fmt.Sprint(n))
	} else {
		h.Set("Transfer-Encoding", "chunked")
	}
	return r, n, nil
}

func (p *pipeline[T]) await() (*rawResponse, error) {
	p.transition(StateAwaitingResponse)
	raw, err := readResponse(p.conn.br, p.req.Method, p.c.cfg.MaxContentLength)
	if err != nil {
		return nil, p.ioError(err)
	}
	return raw, nil
}

func (p *pipeline[T]) decode(raw *rawResponse) (*Response[T], error) {
	p.transition(StateDecoding)
	if !p.conn.disarm() {
		return nil, errAllTimeout
	}
	if err := p.c.codecs.decompress(raw, p.c.cfg.MaxContentLength); err != nil {
		var tl *tooLargeError
		if errors.As(err, &tl) {
			return nil, newError(ErrCodeContentTooLarge, p.authority, err)
		}
		return nil, newError(ErrCodeDecode, p.authority, err)
	}

	info := ResponseInfo{
		StatusCode: raw.statusCode,
		Status:     raw.status,
		Proto:      raw.proto,
		Headers:    raw.headers,
	}
	content, err := p.handler.Handle(info, bytes.NewReader(raw.body))
	if err != nil {
		return nil, newError(ErrCodeDecode, p.authority, err)
	}
	return &Response[T]{
		StatusCode:   raw.statusCode,
		Status:       raw.status,
		Proto:        raw.proto,
		Headers:      raw.headers,
		Content:      content,
		ConnectionID: p.conn.ID(),
		Reused:       p.reused,
	}, nil
}

func (p *pipeline[T]) complete(raw *rawResponse) {
	p.transition(StateCompleting)
	conn := p.conn
	p.conn = nil
	conn.reusable = raw.reusable && !p.headers.hasToken("Connection", "close")
	_ = p.c.cache.Release(conn)
	p.transition(StateDone)
}

// fail discards the connection, if any, and marks the pipeline failed.
func (p *pipeline[T]) fail(err error) {
	failedIn := p.state
	if p.conn != nil {
		p.conn.disarm()
		p.c.cache.Discard(p.conn)
		p.conn = nil
	}
	p.transition(StateFailed)
	p.c.log.Debug("request failed", logger.Fields(
		logger.FieldAuthority, p.authority.String(),
		logger.FieldMethod, p.req.Method,
		logger.FieldState, failedIn.String(),
		logger.FieldPhase, string(ConnectPhase(err)),
		logger.FieldError, err,
	))
}

// ioError classifies a failure while writing or reading the exchange.
func (p *pipeline[T]) ioError(err error) error {
	if p.guard.Fired() {
		return errAllTimeout
	}
	var (
		be *bodyError
		pe *protocolError
		tl *tooLargeError
	)
	switch {
	case errors.As(err, &be):
		return newError(ErrCodeEncode, p.authority, be.err)
	case errors.As(err, &pe):
		return newError(ErrCodeProtocol, p.authority, err)
	case errors.As(err, &tl):
		return newError(ErrCodeContentTooLarge, p.authority, err)
	default:
		return newError(ErrCodeUnexpectedClose, p.authority, err)
	}
}

func bodyMethod(method string) bool {
	switch method {
	case "POST", "PUT", "PATCH", "DELETE":
		return true
	}
	return false
}

