package statuscache

import "context"

// CacheMetrics is the sink for cache outcomes, implemented in
// infra/metrics. Kind is the cache key kind, not the full key, so
// cardinality stays bounded.
type CacheMetrics interface {
	IncHit(ctx context.Context, kind string)
	IncMiss(ctx context.Context, kind string)
	IncStaleServe(ctx context.Context, kind string)
	IncRefresh(ctx context.Context, kind string)
}

type nopMetrics struct{}

func (nopMetrics) IncHit(context.Context, string)        {}
func (nopMetrics) IncMiss(context.Context, string)       {}
func (nopMetrics) IncStaleServe(context.Context, string) {}
func (nopMetrics) IncRefresh(context.Context, string)    {}
