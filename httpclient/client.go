package httpclient

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/kbukum/httpkit/logger"
	"github.com/kbukum/httpkit/observability"
	"github.com/kbukum/httpkit/resilience"
	"github.com/kbukum/httpkit/security"
)

// Client sends HTTP/1.1 requests over cached connections. With
// MaxCachedSizeEachDomain zero it opens and closes one connection per
// request. A Client is safe for concurrent use; configuration is fixed at
// construction.
type Client struct {
	cfg        Config
	codecs     codecs
	cache      *ConnectionCache
	negotiator *TransportNegotiator
	workers    *resilience.Bulkhead
	breakers   *resilience.Breakers
	limiter    *resilience.RateLimiter

	log      *logger.Logger
	metrics  *observability.ClientMetrics
	tracer   trace.Tracer
	observer StateObserver

	mu       sync.RWMutex
	closed   bool
	inflight sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
	stopPrune chan struct{}
	pruneDone chan struct{}
}

type options struct {
	proxies  ProxyFactory
	tls      security.TLSProvider
	log      *logger.Logger
	meter    metric.Meter
	tracer   trace.Tracer
	dial     DialContextFunc
	observer StateObserver
}

// Option configures collaborators that do not belong in Config.
type Option func(*options)

// WithProxyFactory picks a proxy per authority. It overrides Config.Proxy.
func WithProxyFactory(f ProxyFactory) Option {
	return func(o *options) { o.proxies = f }
}

// WithTLSProvider supplies TLS configurations. It overrides Config.TLS.
func WithTLSProvider(p security.TLSProvider) Option {
	return func(o *options) { o.tls = p }
}

// WithLogger sets the logger. Defaults to the global logger.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithMeter records client metrics on m. Defaults to the global meter provider.
func WithMeter(m metric.Meter) Option {
	return func(o *options) { o.meter = m }
}

// WithTracer records request spans on t. Defaults to the global tracer provider.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// WithDialContext replaces the transport dialer.
func WithDialContext(d DialContextFunc) Option {
	return func(o *options) { o.dial = d }
}

// WithStateObserver is told about every pipeline transition.
func WithStateObserver(fn StateObserver) Option {
	return func(o *options) { o.observer = fn }
}

// New creates a Client.
func New(cfg Config, opts ...Option) (*Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.Default()
	}
	if o.meter == nil {
		o.meter = observability.Meter()
	}
	if o.tracer == nil {
		o.tracer = observability.Tracer()
	}
	if o.tls == nil {
		if cfg.TLS != nil {
			o.tls = security.FromConfig(cfg.TLS)
		} else {
			o.tls = security.SystemTrust()
		}
	}
	if o.proxies == nil && cfg.Proxy != nil {
		o.proxies = StaticProxy(*cfg.Proxy)
	}

	log := o.log.WithComponent(cfg.Name)
	metrics, err := observability.NewClientMetrics(o.meter)
	if err != nil {
		log.Warn("client metrics disabled", logger.Fields(logger.FieldError, err))
		metrics = nil
	}

	c := &Client{
		cfg: cfg,
		codecs: codecs{
			enabled: cfg.EnableCompression,
			brotli:  cfg.EnableBrotli,
			zstd:    cfg.EnableZstd,
		},
		cache:      NewConnectionCache(cfg.MaxCachedSizeEachDomain, cfg.StaleAfter),
		negotiator: NewTransportNegotiator(o.dial, cfg.ConnectTimeout, o.proxies, o.tls),
		workers:    resilience.NewBulkhead(cfg.IOWorkers),
		log:        log,
		metrics:    metrics,
		tracer:     o.tracer,
		observer:   o.observer,
	}
	c.cache.log, c.cache.metrics = log, metrics
	c.negotiator.log, c.negotiator.metrics, c.negotiator.tracer = log, metrics, o.tracer

	if cfg.CircuitBreaker != nil {
		cb := *cfg.CircuitBreaker
		if cb.OnStateChange == nil {
			cb.OnStateChange = func(key string, from, to resilience.State) {
				log.Info("circuit breaker state changed", logger.Fields(
					logger.FieldAuthority, key,
					"from", from.String(),
					"to", to.String(),
				))
			}
		}
		c.breakers = resilience.NewBreakers(cb)
	}
	if cfg.RateLimiter != nil {
		c.limiter = resilience.NewRateLimiter(*cfg.RateLimiter)
	}
	if cfg.PruneInterval > 0 && !cfg.Simple() {
		c.stopPrune = make(chan struct{})
		c.pruneDone = make(chan struct{})
		go c.pruneLoop(cfg.PruneInterval)
	}

	log.Debug("client created", logger.Fields("config", cfg.summary()))
	return c, nil
}

// Config returns the effective configuration.
func (c *Client) Config() Config { return c.cfg }

// begin registers an in-flight request. It fails once Close has started.
func (c *Client) begin() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	c.inflight.Add(1)
	return true
}

// IsClosed reports whether Close or Shutdown has been called.
func (c *Client) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// dispatch runs a pipeline on the worker pool and returns its future.
func dispatch[T any](c *Client, req *Request, h ContentHandler[T]) *Future[*Response[T]] {
	if h == nil {
		return loggedFuture(failedFuture[*Response[T]](newErrorf(ErrCodeValidation, "nil content handler")), c.log)
	}
	if !c.begin() {
		return loggedFuture(failedFuture[*Response[T]](errClientClosed), c.log)
	}
	f := loggedFuture(newFuture[*Response[T]](), c.log)
	p := newPipeline(c, req, h)
	go func() {
		defer c.inflight.Done()
		_ = c.workers.Execute(context.Background(), func() error {
			f.resolve(p.run(context.Background()))
			return nil
		})
	}()
	return f
}

// Close rejects new requests, waits for in-flight ones to finish, then
// closes every cached connection. Later calls return the first result.
func (c *Client) Close() error {
	return c.Shutdown(context.Background())
}

// Shutdown is Close with the wait for in-flight requests bounded by ctx.
// Cached connections are closed either way; if ctx ends first its error is
// returned and the remaining requests finish on their own.
func (c *Client) Shutdown(ctx context.Context) error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		start := time.Now()
		drained := make(chan struct{})
		go func() {
			c.inflight.Wait()
			close(drained)
		}()
		select {
		case <-drained:
		case <-ctx.Done():
			c.closeErr = ctx.Err()
		}

		if c.stopPrune != nil {
			close(c.stopPrune)
			<-c.pruneDone
		}
		evicted := c.cache.Shutdown()
		c.log.Info("client closed", logger.Fields(
			"evicted", evicted,
			"drained", c.closeErr == nil,
			logger.FieldDuration, logger.Duration(time.Since(start)),
		))
	})
	return c.closeErr
}

// EvictAll closes idle connections for a, or all of them when a is nil.
func (c *Client) EvictAll(a *Authority) int {
	return c.cache.EvictAll(a)
}

// CacheStats returns idle connection counts keyed by authority.
func (c *Client) CacheStats() map[string]int {
	return c.cache.Stats()
}

// IdleCount returns the idle connections cached for a.
func (c *Client) IdleCount(a Authority) int {
	return c.cache.IdleCount(a)
}

// BreakerStates returns circuit breaker states keyed by authority, or nil
// when no breaker is configured.
func (c *Client) BreakerStates() map[string]resilience.State {
	if c.breakers == nil {
		return nil
	}
	return c.breakers.States()
}

func (c *Client) pruneLoop(interval time.Duration) {
	defer close(c.pruneDone)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-c.stopPrune:
			return
		case <-t.C:
			if n := c.cache.Prune(); n > 0 {
				c.log.Debug("pruned stale connections", logger.Fields("count", n))
			}
		}
	}
}
