package metrics

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/parakeetlabs/perch/internal/application/health"
)

var _ health.HealthMetrics = (*healthMetrics)(nil)

// healthMetrics implements health.HealthMetrics.
type healthMetrics struct {
	systemHealth  metric.Int64UpDownCounter
	probeCount    metric.Int64Counter
	probeDuration metric.Float64Histogram

	// last mirrors the counter so SetSystemHealth can apply deltas; the
	// exported series reads as a gauge.
	last atomic.Int64
}

// newHealthMetrics creates a new healthMetrics instance.
func newHealthMetrics(mp metric.MeterProvider) (*healthMetrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	m := new(healthMetrics)
	var err error

	if m.systemHealth, err = meter.Int64UpDownCounter(
		"perch_system_health",
		metric.WithDescription("Aggregate platform health: 2 healthy, 1 partial, 0 critical"),
	); err != nil {
		return nil, err
	}

	if m.probeCount, err = meter.Int64Counter(
		"perch_health_probes_total",
		metric.WithDescription("Total number of service health probes"),
	); err != nil {
		return nil, err
	}

	if m.probeDuration, err = meter.Float64Histogram(
		"perch_health_probe_duration_seconds",
		metric.WithDescription("Duration of service health probes in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func healthValue(status string) int64 {
	switch status {
	case "healthy":
		return 2
	case "partial":
		return 1
	default:
		return 0
	}
}

// SetSystemHealth moves the gauge to the value for status.
func (m *healthMetrics) SetSystemHealth(ctx context.Context, status string) {
	next := healthValue(status)
	prev := m.last.Swap(next)
	if delta := next - prev; delta != 0 {
		m.systemHealth.Add(ctx, delta)
	}
}

// ObserveProbe records one service probe outcome.
func (m *healthMetrics) ObserveProbe(ctx context.Context, service string, healthy bool, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("service", service),
		attribute.Bool("healthy", healthy),
	)
	m.probeCount.Add(ctx, 1, attrs)
	m.probeDuration.Record(ctx, d.Seconds(), attrs)
}
