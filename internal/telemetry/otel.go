package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"treasury/internal/types"
)

// OTelRecorder reports cycle, alert and API request metrics through an
// OpenTelemetry meter.
type OTelRecorder struct {
	runs       metric.Int64Counter
	skipped    metric.Int64Counter
	duration   metric.Float64Histogram
	accounts   metric.Int64Counter
	accountErr metric.Int64Counter
	alerts     metric.Int64Counter
	requests   metric.Int64Counter
	latency    metric.Float64Histogram
}

// NewOTelRecorder creates the instruments on meter. Pass Meter() in
// production and a test provider's meter in tests.
func NewOTelRecorder(meter metric.Meter) (*OTelRecorder, error) {
	r := &OTelRecorder{}
	var err error

	if r.runs, err = meter.Int64Counter("scheduler.runs",
		metric.WithDescription("Completed scheduler cycles")); err != nil {
		return nil, fmt.Errorf("telemetry: scheduler.runs: %w", err)
	}
	if r.skipped, err = meter.Int64Counter("scheduler.skipped",
		metric.WithDescription("Automatic ticks skipped because a cycle was in flight")); err != nil {
		return nil, fmt.Errorf("telemetry: scheduler.skipped: %w", err)
	}
	if r.duration, err = meter.Float64Histogram("scheduler.duration_ms",
		metric.WithUnit("ms")); err != nil {
		return nil, fmt.Errorf("telemetry: scheduler.duration_ms: %w", err)
	}
	if r.accounts, err = meter.Int64Counter("scheduler.accounts"); err != nil {
		return nil, fmt.Errorf("telemetry: scheduler.accounts: %w", err)
	}
	if r.accountErr, err = meter.Int64Counter("scheduler.account_errors"); err != nil {
		return nil, fmt.Errorf("telemetry: scheduler.account_errors: %w", err)
	}
	if r.alerts, err = meter.Int64Counter("alerts.delivered"); err != nil {
		return nil, fmt.Errorf("telemetry: alerts.delivered: %w", err)
	}
	if r.requests, err = meter.Int64Counter("http.server.requests"); err != nil {
		return nil, fmt.Errorf("telemetry: http.server.requests: %w", err)
	}
	if r.latency, err = meter.Float64Histogram("http.server.duration_ms",
		metric.WithUnit("ms")); err != nil {
		return nil, fmt.Errorf("telemetry: http.server.duration_ms: %w", err)
	}
	return r, nil
}

// RecordCycle implements scheduler.MetricsRecorder.
func (r *OTelRecorder) RecordCycle(ctx context.Context, record *types.RunRecord) {
	outcome := "success"
	if !record.Succeeded() {
		outcome = "failure"
	}
	cycle := attribute.String("cycle", record.Cycle)
	source := attribute.String("source", string(record.Source))
	attrs := metric.WithAttributes(cycle, source)

	r.runs.Add(ctx, 1, metric.WithAttributes(cycle, source, attribute.String("outcome", outcome)))
	r.duration.Record(ctx, float64(record.DurationMs), attrs)
	r.accounts.Add(ctx, int64(record.ProcessedAccounts), attrs)
	r.accountErr.Add(ctx, int64(record.ErrorCount), attrs)
}

// RecordSkipped implements scheduler.MetricsRecorder.
func (r *OTelRecorder) RecordSkipped(ctx context.Context, cycle string) {
	r.skipped.Add(ctx, 1, metric.WithAttributes(attribute.String("cycle", cycle)))
}

// RecordAlert implements alerts.Recorder.
func (r *OTelRecorder) RecordAlert(ctx context.Context, kind types.AlertKind, sent bool) {
	r.alerts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", string(kind)),
		attribute.Bool("sent", sent),
	))
}

// RecordRequest implements core.MetricsCollector. endpoint is the route
// pattern, so cardinality stays bounded.
func (r *OTelRecorder) RecordRequest(method, endpoint, status string, duration time.Duration) {
	attrs := metric.WithAttributes(
		semconv.HTTPRequestMethodKey.String(method),
		semconv.HTTPRouteKey.String(endpoint),
		attribute.String("http.response.status", status),
	)
	ctx := context.Background()
	r.requests.Add(ctx, 1, attrs)
	r.latency.Record(ctx, float64(duration.Microseconds())/1000, attrs)
}
