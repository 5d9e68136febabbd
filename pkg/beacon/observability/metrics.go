// Package observability provides structured logging and metrics for the
// event bus and scheduler.
//
// Logging uses slog (Go stdlib); metrics use OpenTelemetry. Both are opt-in
// and have no-op implementations when disabled.
package observability

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records bus and scheduler metrics.
// Use NewMetrics() for OTel metrics or Noop{} when disabled.
type Metrics interface {
	// RecordEmit records an event entering the intake queue.
	RecordEmit(ctx context.Context, eventType string)

	// RecordDispatch records a completed dispatch with its duration and
	// whether the event was dropped (vetoed by middleware).
	RecordDispatch(ctx context.Context, eventType string, duration time.Duration, dropped bool)

	// RecordHandler records a handler invocation and its error status.
	RecordHandler(ctx context.Context, eventType, handler string, err error)

	// RecordScheduleFire records a schedule producing a synthetic event.
	RecordScheduleFire(ctx context.Context, kind string)
}

// otelMetrics implements Metrics using OpenTelemetry.
type otelMetrics struct {
	emitted         metric.Int64Counter
	dispatched      metric.Int64Counter
	dropped         metric.Int64Counter
	dispatchLatency metric.Float64Histogram
	handlerRuns     metric.Int64Counter
	handlerErrors   metric.Int64Counter
	scheduleFires   metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

// newOtelMetrics creates a new OTel metrics instance.
func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("beacon")

	emitted, err := meter.Int64Counter("beacon.events.emitted",
		metric.WithDescription("Number of events enqueued"),
	)
	if err != nil {
		return nil, err
	}

	dispatched, err := meter.Int64Counter("beacon.events.dispatched",
		metric.WithDescription("Number of events dispatched"),
	)
	if err != nil {
		return nil, err
	}

	dropped, err := meter.Int64Counter("beacon.events.dropped",
		metric.WithDescription("Number of events vetoed by middleware"),
	)
	if err != nil {
		return nil, err
	}

	dispatchLatency, err := meter.Float64Histogram("beacon.dispatch.latency_ms",
		metric.WithDescription("End-to-end dispatch latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	handlerRuns, err := meter.Int64Counter("beacon.handler.invocations",
		metric.WithDescription("Number of handler invocations"),
	)
	if err != nil {
		return nil, err
	}

	handlerErrors, err := meter.Int64Counter("beacon.handler.errors",
		metric.WithDescription("Number of handler invocation errors"),
	)
	if err != nil {
		return nil, err
	}

	scheduleFires, err := meter.Int64Counter("beacon.schedule.fires",
		metric.WithDescription("Number of schedule firings"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		emitted:         emitted,
		dispatched:      dispatched,
		dropped:         dropped,
		dispatchLatency: dispatchLatency,
		handlerRuns:     handlerRuns,
		handlerErrors:   handlerErrors,
		scheduleFires:   scheduleFires,
	}, nil
}

// NewMetrics returns a Metrics backed by the global OTel meter provider.
// Falls back to Noop when the meter cannot be initialized.
func NewMetrics() Metrics {
	m, err := getDefaultMetrics()
	if err != nil {
		return Noop{}
	}
	return m
}

func (m *otelMetrics) RecordEmit(ctx context.Context, eventType string) {
	m.emitted.Add(ctx, 1, metric.WithAttributes(attribute.String("event.type", eventType)))
}

func (m *otelMetrics) RecordDispatch(ctx context.Context, eventType string, duration time.Duration, dropped bool) {
	attrs := metric.WithAttributes(attribute.String("event.type", eventType))
	if dropped {
		m.dropped.Add(ctx, 1, attrs)
		return
	}
	m.dispatched.Add(ctx, 1, attrs)
	m.dispatchLatency.Record(ctx, float64(duration.Microseconds())/1000.0, attrs)
}

func (m *otelMetrics) RecordHandler(ctx context.Context, eventType, handler string, err error) {
	attrs := metric.WithAttributes(
		attribute.String("event.type", eventType),
		attribute.String("handler", handler),
	)
	m.handlerRuns.Add(ctx, 1, attrs)
	if err != nil {
		m.handlerErrors.Add(ctx, 1, attrs)
	}
}

func (m *otelMetrics) RecordScheduleFire(ctx context.Context, kind string) {
	m.scheduleFires.Add(ctx, 1, metric.WithAttributes(attribute.String("schedule.kind", kind)))
}
