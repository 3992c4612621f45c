package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/parakeetlabs/perch/internal/infra/apiclient"
)

var _ apiclient.ClientMetrics = (*clientMetrics)(nil)

// clientMetrics implements apiclient.ClientMetrics.
type clientMetrics struct {
	requestCount    metric.Int64Counter
	requestDuration metric.Float64Histogram
	retryCount      metric.Int64Counter
	degradedCount   metric.Int64Counter
}

// newClientMetrics creates a new clientMetrics instance.
func newClientMetrics(mp metric.MeterProvider) (*clientMetrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	m := new(clientMetrics)
	var err error

	if m.requestCount, err = meter.Int64Counter(
		"perch_client_requests_total",
		metric.WithDescription("Total number of platform request attempts"),
	); err != nil {
		return nil, err
	}

	if m.requestDuration, err = meter.Float64Histogram(
		"perch_client_request_duration_seconds",
		metric.WithDescription("Duration of platform request attempts in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if m.retryCount, err = meter.Int64Counter(
		"perch_client_retries_total",
		metric.WithDescription("Total number of retry waits before repeat attempts"),
	); err != nil {
		return nil, err
	}

	if m.degradedCount, err = meter.Int64Counter(
		"perch_client_degraded_total",
		metric.WithDescription("Total number of fallback substitutions on fragile paths"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

// ObserveRequest records one finished attempt. kind is the failure kind
// label, empty on success.
func (m *clientMetrics) ObserveRequest(ctx context.Context, endpoint, method string, status int, kind string, d time.Duration) {
	m.requestCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("method", method),
		attribute.Int("status", status),
		attribute.String("kind", kind),
	))
	m.requestDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("method", method),
	))
}

// IncRetry increments the retry count for an endpoint.
func (m *clientMetrics) IncRetry(ctx context.Context, endpoint string) {
	m.retryCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
	))
}

// IncDegraded increments the degraded-fallback count for an endpoint.
func (m *clientMetrics) IncDegraded(ctx context.Context, endpoint string) {
	m.degradedCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
	))
}
