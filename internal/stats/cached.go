package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/ledgerlens/internal/domain"
	"github.com/opensource-finance/ledgerlens/internal/ledger"
)

// CacheNamespace scopes aggregation results in the shared cache.
const CacheNamespace = "stats"

// CacheObserver is notified of every cache lookup.
type CacheObserver interface {
	ObserveCache(op string, hit bool)
}

// CachedEngine memoizes aggregation results in a domain.Cache.
// Keys embed the snapshot fingerprint, so a reload makes old entries unreachable.
// Cache failures degrade to direct computation.
type CachedEngine struct {
	engine   *Engine
	data     ledger.Snapshotter
	cache    domain.Cache
	ttl      time.Duration
	observer CacheObserver
}

// NewCached wraps an aggregation engine over data with cache.
func NewCached(data ledger.Snapshotter, cache domain.Cache, ttl time.Duration, observer CacheObserver) *CachedEngine {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedEngine{
		engine:   New(data),
		data:     data,
		cache:    cache,
		ttl:      ttl,
		observer: observer,
	}
}

// Engine returns the uncached engine.
func (c *CachedEngine) Engine() *Engine {
	return c.engine
}

// pinned serves one captured snapshot, so a computed result always matches the key it is stored under.
type pinned struct{ snap *ledger.Snapshot }

func (p pinned) Snapshot(context.Context) (*ledger.Snapshot, error) { return p.snap, nil }

func cached[T any](ctx context.Context, c *CachedEngine, op string, compute func(*Engine, context.Context) (T, error)) (T, error) {
	var zero T

	snap, err := c.data.Snapshot(ctx)
	if err != nil {
		return zero, err
	}
	key := snap.Fingerprint + ":" + op

	raw, err := c.cache.Get(ctx, CacheNamespace, key)
	if err != nil {
		slog.Warn("stats cache get failed", "op", op, "error", err)
	}
	if raw != nil {
		var v T
		if err := json.Unmarshal(raw, &v); err == nil {
			c.observe(op, true)
			return v, nil
		}
		slog.Warn("stats cache entry corrupt", "op", op, "key", key)
	}
	c.observe(op, false)

	v, err := compute(New(pinned{snap: snap}), ctx)
	if err != nil {
		return zero, err
	}

	if data, err := json.Marshal(v); err == nil {
		if err := c.cache.Set(ctx, CacheNamespace, key, data, c.ttl); err != nil {
			slog.Warn("stats cache set failed", "op", op, "error", err)
		}
	}
	return v, nil
}

func (c *CachedEngine) observe(op string, hit bool) {
	if c.observer != nil {
		c.observer.ObserveCache(op, hit)
	}
}

// Overview is the cached Engine.Overview.
func (c *CachedEngine) Overview(ctx context.Context) (domain.Overview, error) {
	return cached(ctx, c, "overview", (*Engine).Overview)
}

// AmountDistribution is the cached Engine.AmountDistribution.
func (c *CachedEngine) AmountDistribution(ctx context.Context) (domain.AmountDistribution, error) {
	return cached(ctx, c, "amount-distribution", (*Engine).AmountDistribution)
}

// ByCategory is the cached Engine.ByCategory.
func (c *CachedEngine) ByCategory(ctx context.Context) ([]domain.CategoryStats, error) {
	return cached(ctx, c, "by-category", (*Engine).ByCategory)
}

// ByFraud is the cached Engine.ByFraud.
func (c *CachedEngine) ByFraud(ctx context.Context) ([]domain.FraudByCategory, error) {
	return cached(ctx, c, "by-fraud", (*Engine).ByFraud)
}

// ByTimeUnit is the cached Engine.ByTimeUnit.
func (c *CachedEngine) ByTimeUnit(ctx context.Context) ([]domain.TimeUnitStats, error) {
	return cached(ctx, c, "by-time-unit", (*Engine).ByTimeUnit)
}

// CustomerRollup bypasses the cache; profiles are computed on every call.
func (c *CachedEngine) CustomerRollup(ctx context.Context, party string) (domain.CustomerProfile, error) {
	return c.engine.CustomerRollup(ctx, party)
}

// TopCustomers is the cached Engine.TopCustomers.
func (c *CachedEngine) TopCustomers(ctx context.Context, n int, by domain.RankBy) ([]domain.CustomerProfile, error) {
	return cached(ctx, c, fmt.Sprintf("top:%s:%d", by, n), func(e *Engine, ctx context.Context) ([]domain.CustomerProfile, error) {
		return e.TopCustomers(ctx, n, by)
	})
}

// FraudSummary is the cached Engine.FraudSummary. The scorer is fixed per
// process, so it is not part of the key.
func (c *CachedEngine) FraudSummary(ctx context.Context, scorer Scorer) (domain.FraudSummary, error) {
	return cached(ctx, c, "fraud-summary", func(e *Engine, ctx context.Context) (domain.FraudSummary, error) {
		return e.FraudSummary(ctx, scorer)
	})
}
