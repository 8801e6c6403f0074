// Package observability wires OpenTelemetry tracing and metrics for the
// fetch transport and the development server.
//
// Tracing:
//
//	tp, err := observability.InitTracer(ctx, observability.DefaultTracerConfig("fetchdemo"))
//	defer tp.Shutdown(ctx)
//
// Metrics:
//
//	mp, err := observability.InitMeter(ctx, observability.MeterConfig{ServiceName: "fetchdemo", Endpoint: "localhost:4318", Insecure: true})
//	defer mp.Shutdown(ctx)
//
//	m, err := observability.NewFetchMetrics(observability.Meter("fetch"))
//	tr := fetch.NewTransport(rt, fetch.WithMetrics(m))
package observability
