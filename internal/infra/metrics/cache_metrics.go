package metrics

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/parakeetlabs/perch/internal/infra/statuscache"
)

var _ statuscache.CacheMetrics = (*cacheMetrics)(nil)

// cacheMetrics implements statuscache.CacheMetrics. Every instrument
// carries the key kind only, so cardinality stays bounded no matter how
// many companies the console touches.
type cacheMetrics struct {
	hitCount        metric.Int64Counter
	missCount       metric.Int64Counter
	staleServeCount metric.Int64Counter
	refreshCount    metric.Int64Counter
}

// newCacheMetrics creates a new cacheMetrics instance.
func newCacheMetrics(mp metric.MeterProvider) (*cacheMetrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	m := new(cacheMetrics)
	var err error

	if m.hitCount, err = meter.Int64Counter(
		"perch_cache_hits_total",
		metric.WithDescription("Total number of fresh cache hits"),
	); err != nil {
		return nil, err
	}

	if m.missCount, err = meter.Int64Counter(
		"perch_cache_misses_total",
		metric.WithDescription("Total number of cache misses"),
	); err != nil {
		return nil, err
	}

	if m.staleServeCount, err = meter.Int64Counter(
		"perch_cache_stale_serves_total",
		metric.WithDescription("Total number of expired entries served because refresh failed"),
	); err != nil {
		return nil, err
	}

	if m.refreshCount, err = meter.Int64Counter(
		"perch_cache_refreshes_total",
		metric.WithDescription("Total number of fetch-throughs to the platform"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *cacheMetrics) IncHit(ctx context.Context, kind string) {
	m.hitCount.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *cacheMetrics) IncMiss(ctx context.Context, kind string) {
	m.missCount.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *cacheMetrics) IncStaleServe(ctx context.Context, kind string) {
	m.staleServeCount.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *cacheMetrics) IncRefresh(ctx context.Context, kind string) {
	m.refreshCount.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}
