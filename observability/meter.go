package observability

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/kbukum/wasmfetch/logger"
)

// MeterConfig configures the OpenTelemetry meter provider.
type MeterConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	// Endpoint is the OTLP HTTP endpoint host:port (e.g., "localhost:4318").
	Endpoint string
	Insecure bool
	// Interval is the metric export interval.
	Interval time.Duration
}

// InitMeter initializes the OpenTelemetry meter provider.
// Returns a MeterProvider that should be shut down on application exit.
func InitMeter(ctx context.Context, config MeterConfig) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(config.Endpoint),
	}
	if config.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(config.ServiceName, config.ServiceVersion, config.Environment)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
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
		"interval", config.Interval.String(),
	))

	return mp, nil
}

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// ServerMetrics holds the instruments recorded by the development server.
type ServerMetrics struct {
	requestTotal    metric.Int64Counter
	requestDuration metric.Float64Histogram
	requestActive   metric.Int64UpDownCounter
	bytesWritten    metric.Int64Counter
}

// NewServerMetrics creates the server instruments on the given meter.
func NewServerMetrics(meter metric.Meter) (*ServerMetrics, error) {
	requestTotal, err := meter.Int64Counter("server.requests",
		metric.WithDescription("Requests served"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating server.requests counter: %w", err)
	}

	requestDuration, err := meter.Float64Histogram("server.duration",
		metric.WithDescription("Time to serve a request in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating server.duration histogram: %w", err)
	}

	requestActive, err := meter.Int64UpDownCounter("server.active",
		metric.WithDescription("Requests currently being served"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating server.active gauge: %w", err)
	}

	bytesWritten, err := meter.Int64Counter("server.body.bytes",
		metric.WithDescription("Response body bytes written"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating server.body.bytes counter: %w", err)
	}

	return &ServerMetrics{
		requestTotal:    requestTotal,
		requestDuration: requestDuration,
		requestActive:   requestActive,
		bytesWritten:    bytesWritten,
	}, nil
}

// RecordRequestStart increments the active request count.
func (m *ServerMetrics) RecordRequestStart(ctx context.Context) {
	m.requestActive.Add(ctx, 1)
}

// RecordRequestEnd decrements active requests and records the completed request.
func (m *ServerMetrics) RecordRequestEnd(ctx context.Context, route string, status, size int, duration time.Duration) {
	m.requestActive.Add(ctx, -1)
	m.requestTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("route", route),
		attribute.String("status", strconv.Itoa(status)),
	))
	m.requestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("route", route),
	))
	if size > 0 {
		m.bytesWritten.Add(ctx, int64(size), metric.WithAttributes(attribute.String("route", route)))
	}
}
