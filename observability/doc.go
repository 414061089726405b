// Package observability wires OpenTelemetry tracing and metrics for httpkit.
//
// Tracing:
//
//	tp, err := observability.InitTracer(ctx, observability.DefaultTracerConfig("my-service"))
//	defer tp.Shutdown(ctx)
//
// Metrics:
//
//	mp, err := observability.InitMeter(ctx, observability.DefaultMeterConfig("my-service"))
//	defer mp.Shutdown(ctx)
//
// A client records its own instruments through ClientMetrics; pass a meter
// with httpclient.WithMeter or let it use the global provider.
package observability
