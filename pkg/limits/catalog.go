package limits

import (
	"context"
	"sync"
	"time"
)

// Catalog resolves a plan name to its ceiling values.
type Catalog interface {
	// Limits returns the ceilings for a plan.
	// Returns ErrPlanNotFound for plans the catalog does not know.
	Limits(ctx context.Context, plan PlanName) (PlanLimits, error)
}

// StaticCatalog is a Catalog backed by an in-memory map.
type StaticCatalog struct {
	plans map[PlanName]PlanLimits
}

// NewStaticCatalog creates a catalog over a fixed plan map.
// The map is copied, not retained.
func NewStaticCatalog(plans map[PlanName]PlanLimits) *StaticCatalog {
	copied := make(map[PlanName]PlanLimits, len(plans))
	for name, l := range plans {
		copied[name] = l
	}
	return &StaticCatalog{plans: copied}
}

// DefaultPlans returns the built-in Libra plan set.
func DefaultPlans() map[PlanName]PlanLimits {
	return map[PlanName]PlanLimits{
		PlanFree: {
			AINums:      10,
			EnhanceNums: 10,
			UploadLimit: 10,
			DeployLimit: 5,
			Seats:       1,
			ProjectNums: 1,
		},
		PlanPro: {
			AINums:      150,
			EnhanceNums: 150,
			UploadLimit: 500,
			DeployLimit: 100,
			Seats:       3,
			ProjectNums: 5,
		},
		PlanMax: {
			AINums:      600,
			EnhanceNums: 600,
			UploadLimit: 2000,
			DeployLimit: 500,
			Seats:       10,
			ProjectNums: 20,
		},
	}
}

// Limits implements Catalog.
func (c *StaticCatalog) Limits(_ context.Context, plan PlanName) (PlanLimits, error) {
	l, ok := c.plans[plan]
	if !ok {
		return PlanLimits{}, ErrPlanNotFound
	}
	return l, nil
}

// CatalogStats holds cached-catalog performance counters.
type CatalogStats struct {
	Hits   int64
	Misses int64
	Size   int
}

type catalogEntry struct {
	limits  PlanLimits
	expires time.Time
}

// CachedCatalog decorates a Catalog with a TTL cache so hot paths
// (every deduction resolves at least one plan) do not hammer the source.
// The clock is injectable so tests can control expiry deterministically.
type CachedCatalog struct {
	source  Catalog
	ttl     time.Duration
	now     func() time.Time
	metrics Metrics

	mu      sync.RWMutex
	entries map[PlanName]catalogEntry
	hits    int64
	misses  int64
}

// CachedCatalogOption configures a CachedCatalog.
type CachedCatalogOption func(*CachedCatalog)

// WithCatalogClock overrides the cache clock (tests).
func WithCatalogClock(now func() time.Time) CachedCatalogOption {
	return func(c *CachedCatalog) { c.now = now }
}

// WithCatalogMetrics records hit/miss counts to the given Metrics.
func WithCatalogMetrics(m Metrics) CachedCatalogOption {
	return func(c *CachedCatalog) { c.metrics = m }
}

// NewCachedCatalog wraps source with a TTL cache. A non-positive ttl
// defaults to 5 minutes.
func NewCachedCatalog(source Catalog, ttl time.Duration, opts ...CachedCatalogOption) *CachedCatalog {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	c := &CachedCatalog{
		source:  source,
		ttl:     ttl,
		now:     time.Now,
		metrics: &NoopMetrics{},
		entries: make(map[PlanName]catalogEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Limits implements Catalog.
func (c *CachedCatalog) Limits(ctx context.Context, plan PlanName) (PlanLimits, error) {
	now := c.now()

	c.mu.RLock()
	entry, ok := c.entries[plan]
	c.mu.RUnlock()

	if ok && now.Before(entry.expires) {
		c.mu.Lock()
		c.hits++
		c.mu.Unlock()
		c.metrics.RecordCatalogHit(plan)
		return entry.limits, nil
	}

	l, err := c.source.Limits(ctx, plan)
	if err != nil {
		return PlanLimits{}, err
	}

	c.mu.Lock()
	c.misses++
	c.entries[plan] = catalogEntry{limits: l, expires: now.Add(c.ttl)}
	c.mu.Unlock()
	c.metrics.RecordCatalogMiss(plan)

	return l, nil
}

// Invalidate drops a single plan from the cache.
func (c *CachedCatalog) Invalidate(plan PlanName) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, plan)
}

// Clear drops all cached entries.
func (c *CachedCatalog) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[PlanName]catalogEntry)
}

// Stats returns cache counters.
func (c *CachedCatalog) Stats() CatalogStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return CatalogStats{
		Hits:   c.hits,
		Misses: c.misses,
		Size:   len(c.entries),
	}
}
