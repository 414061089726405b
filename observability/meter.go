package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/kbukum/httpkit/logger"
)

// MeterName is the instrumentation scope used by httpkit clients.
const MeterName = "github.com/kbukum/httpkit/httpclient"

// MeterConfig configures the OTLP meter provider.
type MeterConfig struct {
	ServiceName    string        `yaml:"service_name" mapstructure:"service_name"`
	ServiceVersion string        `yaml:"service_version" mapstructure:"service_version"`
	Environment    string        `yaml:"environment" mapstructure:"environment"`
	Endpoint       string        `yaml:"endpoint" mapstructure:"endpoint"` // host:port of the OTLP/HTTP collector
	Insecure       bool          `yaml:"insecure" mapstructure:"insecure"`
	Interval       time.Duration `yaml:"interval" mapstructure:"interval"`
}

// DefaultMeterConfig returns development defaults.
func DefaultMeterConfig(serviceName string) MeterConfig {
	return MeterConfig{
		ServiceName:    serviceName,
		ServiceVersion: "dev",
		Environment:    "development",
		Endpoint:       "localhost:4318",
		Insecure:       true,
		Interval:       15 * time.Second,
	}
}

// InitMeter installs a global meter provider exporting over OTLP/HTTP.
// Shut the returned provider down on exit.
func InitMeter(ctx context.Context, config MeterConfig) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(config.Endpoint)}
	if config.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("observability: metric exporter: %w", err)
	}

	res, err := newResource(config.ServiceName, config.ServiceVersion, config.Environment)
	if err != nil {
		return nil, fmt.Errorf("observability: resource: %w", err)
	}

	var readerOpts []sdkmetric.PeriodicReaderOption
	if config.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(config.Interval))
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	logger.Info("meter initialized", logger.Fields(
		"service", config.ServiceName,
		"endpoint", config.Endpoint,
	))
	return mp, nil
}

// Meter returns the httpkit meter from the global provider.
func Meter() metric.Meter {
	return otel.Meter(MeterName)
}

// ClientMetrics holds the instruments recorded by an httpkit client.
// A nil *ClientMetrics records nothing.
type ClientMetrics struct {
	requests        metric.Int64Counter
	requestDuration metric.Float64Histogram
	cacheLookups    metric.Int64Counter
	evictions       metric.Int64Counter
	connsOpened     metric.Int64Counter
	connectFailures metric.Int64Counter
	allTimeouts     metric.Int64Counter
	idle            metric.Int64UpDownCounter
}

// NewClientMetrics creates the client instruments on meter.
func NewClientMetrics(meter metric.Meter) (*ClientMetrics, error) {
	var (
		m   ClientMetrics
		err error
	)
	if m.requests, err = meter.Int64Counter("httpkit.client.requests",
		metric.WithDescription("Completed requests by outcome")); err != nil {
		return nil, fmt.Errorf("observability: httpkit.client.requests: %w", err)
	}
	if m.requestDuration, err = meter.Float64Histogram("httpkit.client.request.duration",
		metric.WithDescription("Request duration from send to completion"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("observability: httpkit.client.request.duration: %w", err)
	}
	if m.cacheLookups, err = meter.Int64Counter("httpkit.client.cache.lookups",
		metric.WithDescription("Connection cache lookups by result")); err != nil {
		return nil, fmt.Errorf("observability: httpkit.client.cache.lookups: %w", err)
	}
	if m.evictions, err = meter.Int64Counter("httpkit.client.cache.evictions",
		metric.WithDescription("Idle connections closed by the cache, by reason")); err != nil {
		return nil, fmt.Errorf("observability: httpkit.client.cache.evictions: %w", err)
	}
	if m.connsOpened, err = meter.Int64Counter("httpkit.client.connections.opened",
		metric.WithDescription("Connections negotiated")); err != nil {
		return nil, fmt.Errorf("observability: httpkit.client.connections.opened: %w", err)
	}
	if m.connectFailures, err = meter.Int64Counter("httpkit.client.connect.failures",
		metric.WithDescription("Connect failures by phase")); err != nil {
		return nil, fmt.Errorf("observability: httpkit.client.connect.failures: %w", err)
	}
	if m.allTimeouts, err = meter.Int64Counter("httpkit.client.all_timeouts",
		metric.WithDescription("Idle guards that fired")); err != nil {
		return nil, fmt.Errorf("observability: httpkit.client.all_timeouts: %w", err)
	}
	if m.idle, err = meter.Int64UpDownCounter("httpkit.client.cache.idle",
		metric.WithDescription("Idle connections held by the cache")); err != nil {
		return nil, fmt.Errorf("observability: httpkit.client.cache.idle: %w", err)
	}
	return &m, nil
}

// RecordRequest records one completed request. outcome is "ok" or an error code.
func (m *ClientMetrics) RecordRequest(ctx context.Context, authority, method, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrAuthority, authority),
		attribute.String(AttrMethod, method),
		attribute.String(AttrOutcome, outcome),
	))
	m.requestDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String(AttrAuthority, authority),
		attribute.String(AttrMethod, method),
	))
}

// RecordCacheLookup records a cache hit or miss.
func (m *ClientMetrics) RecordCacheLookup(ctx context.Context, authority string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrAuthority, authority),
		attribute.String(AttrResult, result),
	))
}

// RecordEviction records idle connections closed by the cache.
func (m *ClientMetrics) RecordEviction(ctx context.Context, authority, reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.evictions.Add(ctx, int64(n), metric.WithAttributes(
		attribute.String(AttrAuthority, authority),
		attribute.String(AttrReason, reason),
	))
}

// RecordConnectionOpened records a newly negotiated connection.
func (m *ClientMetrics) RecordConnectionOpened(ctx context.Context, authority string, tls, proxied bool) {
	if m == nil {
		return
	}
	m.connsOpened.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrAuthority, authority),
		attribute.Bool(AttrTLS, tls),
		attribute.Bool(AttrProxied, proxied),
	))
}

// RecordConnectFailure records a failed negotiation.
func (m *ClientMetrics) RecordConnectFailure(ctx context.Context, authority, phase string) {
	if m == nil {
		return
	}
	m.connectFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrAuthority, authority),
		attribute.String(AttrPhase, phase),
	))
}

// RecordAllTimeout records an idle guard firing.
func (m *ClientMetrics) RecordAllTimeout(ctx context.Context, authority string) {
	if m == nil {
		return
	}
	m.allTimeouts.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrAuthority, authority)))
}

// AddIdle adjusts the idle connection gauge.
func (m *ClientMetrics) AddIdle(ctx context.Context, authority string, delta int) {
	if m == nil || delta == 0 {
		return
	}
	m.idle.Add(ctx, int64(delta), metric.WithAttributes(attribute.String(AttrAuthority, authority)))
}
