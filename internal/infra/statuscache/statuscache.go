// Package statuscache is a read-through cache for the expensive
// per-company status and config reads. Entries age out logically but
// are kept in the store, so a dead platform can still be served from
// stale data.
package statuscache

import (
	"context"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/parakeetlabs/perch/internal/domain/company"
	"github.com/parakeetlabs/perch/pkg/common/logger"
	"github.com/parakeetlabs/perch/pkg/common/timeutil"
)

// DefaultTTL applies when neither the cache nor the key carries one.
const DefaultTTL = 5 * time.Minute

// Key addresses one cached payload. Kind names what is cached (status,
// config, company-health); Tenant scopes it. TTL zero means the cache
// default.
type Key struct {
	Kind   string
	Tenant company.ID
	TTL    time.Duration
}

// String renders the store key. Tenant-agnostic kinds share the fixed
// "-" segment.
func (k Key) String() string {
	tenant := k.Tenant.String()
	if tenant == "" {
		tenant = "-"
	}
	return k.Kind + "/" + tenant
}

// Meta describes how a Fetch was satisfied.
type Meta struct {
	Hit       bool
	Stale     bool
	FetchedAt time.Time
}

// entry is what the store holds. Freshness lives here, not in the
// store's own expiry, so expired payloads survive for stale serving.
type entry struct {
	payload   any
	fetchedAt time.Time
}

// Cache holds every kind for every tenant in one store.
type Cache struct {
	store   *gocache.Cache
	group   singleflight.Group
	clock   timeutil.Provider
	ttl     time.Duration
	log     *logger.Logger
	metrics CacheMetrics
}

// New builds a Cache. defaultTTL zero falls back to DefaultTTL; clock,
// log and metrics may be nil.
func New(defaultTTL time.Duration, clock timeutil.Provider, log *logger.Logger, metrics CacheMetrics) *Cache {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	if clock == nil {
		clock = timeutil.Default()
	}
	if log == nil {
		log = logger.Noop()
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Cache{
		// No store-side expiry and no janitor: an expired entry must
		// stay available for stale serving until replaced or
		// invalidated.
		store:   gocache.New(gocache.NoExpiration, 0),
		clock:   clock,
		ttl:     defaultTTL,
		log:     log.With("component", "statuscache"),
		metrics: metrics,
	}
}

// flight is the shared result of one deduplicated lookup.
type flight struct {
	payload any
	meta    Meta
}

// Fetch returns the cached payload for key, fetching through fetch when
// the entry is missing or expired. Concurrent callers for one key share
// a single upstream call. When a refresh fails but an expired entry is
// still around, the stale payload is served and the error swallowed;
// with nothing cached the fetch error comes back unchanged.
func Fetch[T any](ctx context.Context, c *Cache, key Key, fetch func(context.Context) (T, error)) (T, Meta, error) {
	var zero T
	k := key.String()
	ttl := key.TTL
	if ttl <= 0 {
		ttl = c.ttl
	}

	if e, ok := c.lookup(k); ok && c.fresh(e, ttl) {
		v, ok := e.payload.(T)
		if ok {
			c.metrics.IncHit(ctx, key.Kind)
			return v, Meta{Hit: true, FetchedAt: e.fetchedAt}, nil
		}
		c.log.Warn(ctx, "cache entry type mismatch, refetching", "key", k)
	}

	res, err, _ := c.group.Do(k, func() (any, error) {
		// A flight that just finished may have stored a fresh entry
		// while we queued.
		if e, ok := c.lookup(k); ok && c.fresh(e, ttl) {
			if _, typed := e.payload.(T); typed {
				return flight{payload: e.payload, meta: Meta{Hit: true, FetchedAt: e.fetchedAt}}, nil
			}
		}

		c.metrics.IncRefresh(ctx, key.Kind)
		v, ferr := fetch(ctx)
		if ferr == nil {
			now := c.clock.Now()
			c.store.Set(k, entry{payload: v, fetchedAt: now}, gocache.NoExpiration)
			return flight{payload: v, meta: Meta{FetchedAt: now}}, nil
		}

		if e, ok := c.lookup(k); ok {
			if _, typed := e.payload.(T); typed {
				c.metrics.IncStaleServe(ctx, key.Kind)
				c.log.Warn(ctx, "serving stale status",
					"key", k,
					"age", c.clock.Since(e.fetchedAt).String(),
					"error", ferr.Error(),
				)
				return flight{payload: e.payload, meta: Meta{Hit: true, Stale: true, FetchedAt: e.fetchedAt}}, nil
			}
		}
		return nil, ferr
	})
	if err != nil {
		c.metrics.IncMiss(ctx, key.Kind)
		return zero, Meta{}, err
	}

	f := res.(flight)
	switch {
	case f.meta.Stale:
		// Counted as a stale serve inside the flight.
	case f.meta.Hit:
		c.metrics.IncHit(ctx, key.Kind)
	default:
		c.metrics.IncMiss(ctx, key.Kind)
	}
	v, ok := f.payload.(T)
	if !ok {
		// A concurrent caller flew this key with another payload type.
		c.log.Warn(ctx, "cache entry type mismatch, refetching", "key", k)
		fv, ferr := fetch(ctx)
		if ferr != nil {
			return zero, Meta{}, ferr
		}
		now := c.clock.Now()
		c.store.Set(k, entry{payload: fv, fetchedAt: now}, gocache.NoExpiration)
		return fv, Meta{FetchedAt: now}, nil
	}
	return v, f.meta, nil
}

func (c *Cache) lookup(k string) (entry, bool) {
	v, ok := c.store.Get(k)
	if !ok {
		return entry{}, false
	}
	e, ok := v.(entry)
	return e, ok
}

func (c *Cache) fresh(e entry, ttl time.Duration) bool {
	return c.clock.Since(e.fetchedAt) < ttl
}

// Invalidate drops one kind for one tenant.
func (c *Cache) Invalidate(kind string, tenant company.ID) {
	c.store.Delete(Key{Kind: kind, Tenant: tenant}.String())
}

// InvalidateTenant drops every kind cached for one tenant.
func (c *Cache) InvalidateTenant(tenant company.ID) {
	suffix := "/" + tenant.String()
	for k := range c.store.Items() {
		if strings.HasSuffix(k, suffix) {
			c.store.Delete(k)
		}
	}
}

// InvalidateKind drops one kind across all tenants.
func (c *Cache) InvalidateKind(kind string) {
	prefix := kind + "/"
	for k := range c.store.Items() {
		if strings.HasPrefix(k, prefix) {
			c.store.Delete(k)
		}
	}
}

// Reset empties the cache. Wired to the admin system reset.
func (c *Cache) Reset() {
	c.store.Flush()
}

// Len reports how many entries the store holds.
func (c *Cache) Len() int {
	return c.store.ItemCount()
}
