package observability

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// FetchMetrics holds the instruments recorded by the fetch transport.
type FetchMetrics struct {
	requests  metric.Int64Counter
	active    metric.Int64UpDownCounter
	duration  metric.Float64Histogram
	bodyBytes metric.Int64Counter
	errors    metric.Int64Counter
}

// NewFetchMetrics creates the fetch instruments on the given meter.
func NewFetchMetrics(meter metric.Meter) (*FetchMetrics, error) {
	requests, err := meter.Int64Counter("fetch.requests",
		metric.WithDescription("Completed fetch requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating fetch.requests counter: %w", err)
	}

	active, err := meter.Int64UpDownCounter("fetch.active",
		metric.WithDescription("Fetch requests waiting for a response head"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating fetch.active gauge: %w", err)
	}

	duration, err := meter.Float64Histogram("fetch.duration",
		metric.WithDescription("Time until the response head is available, in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating fetch.duration histogram: %w", err)
	}

	bodyBytes, err := meter.Int64Counter("fetch.body.bytes",
		metric.WithDescription("Response body bytes copied out of the host"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating fetch.body.bytes counter: %w", err)
	}

	errorTotal, err := meter.Int64Counter("fetch.errors",
		metric.WithDescription("Failed fetch requests by error code"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating fetch.errors counter: %w", err)
	}

	return &FetchMetrics{
		requests:  requests,
		active:    active,
		duration:  duration,
		bodyBytes: bodyBytes,
		errors:    errorTotal,
	}, nil
}

// RecordStart counts a request as in flight.
func (m *FetchMetrics) RecordStart(ctx context.Context, method string) {
	m.active.Add(ctx, 1, metric.WithAttributes(attribute.String("method", method)))
}

// RecordEnd records a finished request. status is 0 when it failed.
func (m *FetchMetrics) RecordEnd(ctx context.Context, method string, status int, d time.Duration) {
	m.active.Add(ctx, -1, metric.WithAttributes(attribute.String("method", method)))
	m.requests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("status", strconv.Itoa(status)),
	))
	m.duration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("method", method)))
}

// RecordBodyBytes records body bytes delivered in the given mode
// ("buffered" or "streaming").
func (m *FetchMetrics) RecordBodyBytes(ctx context.Context, mode string, n int) {
	m.bodyBytes.Add(ctx, int64(n), metric.WithAttributes(attribute.String("mode", mode)))
}

// RecordError records a failed request by error code.
func (m *FetchMetrics) RecordError(ctx context.Context, method, code string) {
	m.errors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("code", code),
	))
}
