// Package metrics implements the consumer-side metric interfaces over
// OpenTelemetry. Each consumer declares what it records; this package
// owns instrument names and attribute sets.
package metrics

import (
	"go.opentelemetry.io/otel/metric"

	"github.com/parakeetlabs/perch/internal/application/health"
	"github.com/parakeetlabs/perch/internal/application/session"
	"github.com/parakeetlabs/perch/internal/infra/apiclient"
	"github.com/parakeetlabs/perch/internal/infra/statuscache"
)

const namespace = "parakeetlabs.perch"

// Registry provides access to all metric implementations.
// It centralizes the creation and management of metrics instances.
type Registry struct {
	Client  apiclient.ClientMetrics
	Cache   statuscache.CacheMetrics
	Session session.SessionMetrics
	Health  health.HealthMetrics
}

// NewRegistry creates and initializes all metrics implementations.
// It uses a single meter provider to ensure consistent configuration.
func NewRegistry(mp metric.MeterProvider) (*Registry, error) {
	clientMetrics, err := newClientMetrics(mp)
	if err != nil {
		return nil, err
	}

	cacheMetrics, err := newCacheMetrics(mp)
	if err != nil {
		return nil, err
	}

	sessionMetrics, err := newSessionMetrics(mp)
	if err != nil {
		return nil, err
	}

	healthMetrics, err := newHealthMetrics(mp)
	if err != nil {
		return nil, err
	}

	return &Registry{
		Client:  clientMetrics,
		Cache:   cacheMetrics,
		Session: sessionMetrics,
		Health:  healthMetrics,
	}, nil
}
