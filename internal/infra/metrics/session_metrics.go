package metrics

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/parakeetlabs/perch/internal/application/session"
)

var _ session.SessionMetrics = (*sessionMetrics)(nil)

// sessionMetrics implements session.SessionMetrics.
type sessionMetrics struct {
	switchCount            metric.Int64Counter
	subscriberFailureCount metric.Int64Counter
}

// newSessionMetrics creates a new sessionMetrics instance.
func newSessionMetrics(mp metric.MeterProvider) (*sessionMetrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	m := new(sessionMetrics)
	var err error

	if m.switchCount, err = meter.Int64Counter(
		"perch_session_switches_total",
		metric.WithDescription("Total number of active company switches"),
	); err != nil {
		return nil, err
	}

	if m.subscriberFailureCount, err = meter.Int64Counter(
		"perch_session_subscriber_failures_total",
		metric.WithDescription("Total number of subscriber refresh failures during switches"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *sessionMetrics) IncSwitch(ctx context.Context) {
	m.switchCount.Add(ctx, 1)
}

func (m *sessionMetrics) IncSubscriberFailure(ctx context.Context, name string) {
	m.subscriberFailureCount.Add(ctx, 1, metric.WithAttributes(
		attribute.String("subscriber", name),
	))
}
