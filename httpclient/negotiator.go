package httpclient

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kbukum/httpkit/logger"
	"github.com/kbukum/httpkit/observability"
	"github.com/kbukum/httpkit/security"
)

// DialContextFunc opens a transport connection, like net.Dialer.DialContext.
type DialContextFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// TransportNegotiator builds ready connections: transport dial, then the
// proxy tunnel if one applies, then TLS for https authorities. A failed
// step closes whatever was opened and reports the phase.
type TransportNegotiator struct {
	dial           DialContextFunc
	connectTimeout time.Duration
	proxies        ProxyFactory
	tls            security.TLSProvider

	log     *logger.Logger
	metrics *observability.ClientMetrics
	tracer  trace.Tracer
}

// NewTransportNegotiator creates a negotiator. A nil dial uses net.Dialer;
// a nil proxies connects directly; a nil provider uses the system trust store.
func NewTransportNegotiator(dial DialContextFunc, connectTimeout time.Duration, proxies ProxyFactory, provider security.TLSProvider) *TransportNegotiator {
	if dial == nil {
		d := &net.Dialer{KeepAlive: 30 * time.Second}
		dial = d.DialContext
	}
	if proxies == nil {
		proxies = NoProxy
	}
	if provider == nil {
		provider = security.SystemTrust()
	}
	return &TransportNegotiator{
		dial:           dial,
		connectTimeout: connectTimeout,
		proxies:        proxies,
		tls:            provider,
		log:            logger.Nop(),
	}
}

// Connect negotiates a new connection to a.
func (n *TransportNegotiator) Connect(ctx context.Context, a Authority) (conn *Connection, err error) {
	if n.connectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.connectTimeout)
		defer cancel()
	}
	start := time.Now()
	pc := n.proxies(a)

	ctx, span := observability.StartSpan(ctx, n.tracer, observability.SpanConnect,
		attribute.String(observability.AttrAuthority, a.Key()),
		attribute.Bool(observability.AttrProxied, pc != nil),
	)
	defer func() {
		if err != nil {
			var e *Error
			if errors.As(err, &e) {
				span.SetAttributes(attribute.String(observability.AttrPhase, string(e.Phase)))
				n.metrics.RecordConnectFailure(ctx, a.Key(), string(e.Phase))
			}
		}
		observability.EndSpan(span, err)
	}()

	raw, proxied, err := n.open(ctx, a, pc)
	if err != nil {
		return nil, err
	}

	if a.Secure() {
		raw, err = n.handshakeTLS(ctx, a, raw)
		if err != nil {
			return nil, err
		}
	}

	conn = newConnection(a, raw, a.Secure(), proxied)
	n.metrics.RecordConnectionOpened(ctx, a.Key(), conn.TLS(), conn.Proxied())
	n.log.Debug("connection opened", logger.Fields(
		logger.FieldAuthority, a.Key(),
		logger.FieldConnID, conn.ID(),
		"tls", conn.TLS(),
		"proxied", conn.Proxied(),
		logger.FieldDuration, logger.Duration(time.Since(start)),
	))
	return conn, nil
}

// open dials the proxy or the authority and sets up the tunnel.
func (n *TransportNegotiator) open(ctx context.Context, a Authority, pc *ProxyConfig) (net.Conn, bool, error) {
	if pc == nil {
		raw, err := n.dial(ctx, "tcp", a.Address())
		if err != nil {
			return nil, false, newConnectError(PhaseTransport, a, err)
		}
		return raw, false, nil
	}

	raw, err := n.dial(ctx, "tcp", pc.Address)
	if err != nil {
		return nil, false, newConnectError(PhaseProxy, a, err)
	}
	tunnel, err := pc.handshake(ctx, raw, a.Address())
	if err != nil {
		_ = raw.Close()
		return nil, false, newConnectError(PhaseProxy, a, err)
	}
	return tunnel, true, nil
}

func (n *TransportNegotiator) handshakeTLS(ctx context.Context, a Authority, raw net.Conn) (net.Conn, error) {
	base, err := n.tls.TLSConfig()
	if err != nil {
		_ = raw.Close()
		return nil, newConnectError(PhaseTLS, a, err)
	}
	var cfg *tls.Config
	if base != nil {
		cfg = base.Clone()
	} else {
		cfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	if cfg.ServerName == "" {
		cfg.ServerName = a.Host
	}
	cfg.NextProtos = []string{"http/1.1"}

	tc := tls.Client(raw, cfg)
	if err := tc.HandshakeContext(ctx); err != nil {
		_ = raw.Close()
		return nil, newConnectError(PhaseTLS, a, err)
	}
	return tc, nil
}
