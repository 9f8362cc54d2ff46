package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kjstillabower/firewatch-service/internal/models"
	"github.com/kjstillabower/firewatch-service/internal/observability"
)

// lastGoodSuffix names the companion key holding the most recent ok result.
const lastGoodSuffix = ":last_good"

// Entry is a cached value stamped with when it was fetched and how long it stays valid.
type Entry[T any] struct {
	Value     T             `json:"value"`
	FetchedAt time.Time     `json:"fetchedAt"`
	TTL       time.Duration `json:"ttl"`
}

// Valid reports whether now - FetchedAt < TTL.
func (e Entry[T]) Valid(now time.Time) bool {
	return now.Sub(e.FetchedAt) < e.TTL
}

// FetchFunc produces a fresh result. It must not fail: failures are expressed as degraded results.
type FetchFunc[T any] func(ctx context.Context) models.Result[T]

// Options tunes a RefreshCache.
type Options struct {
	// Clock is the time source for entry stamps. Defaults to wall time.
	Clock clockwork.Clock
	// DegradedTTL, when positive and shorter than the requested TTL, bounds how long a degraded
	// result is kept so recovery is picked up sooner.
	DegradedTTL time.Duration
	// StaleTTL, when positive, serves the last ok result younger than StaleTTL in place of a
	// degraded one.
	StaleTTL time.Duration
	Logger   *zap.Logger
}

// RefreshCache memoizes results of a fetch per key for a bounded window.
// Concurrent misses on the same key share one fetch.
type RefreshCache[T any] struct {
	store       Store
	clock       clockwork.Clock
	degradedTTL time.Duration
	staleTTL    time.Duration
	logger      *zap.Logger
	group       singleflight.Group
}

// NewRefreshCache creates a RefreshCache over store.
func NewRefreshCache[T any](store Store, opts Options) *RefreshCache[T] {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RefreshCache[T]{
		store:       store,
		clock:       clock,
		degradedTTL: opts.DegradedTTL,
		staleTTL:    opts.StaleTTL,
		logger:      logger,
	}
}

// GetOrFetch returns the cached result for key if it is still valid. Otherwise it calls fetch,
// stores the result stamped with the current time and returns it. Store failures are logged and
// treated as misses; they never reach the caller.
//
// The fetch is shared by every caller waiting on key, so it runs on a context that keeps ctx's
// values but not its cancellation. Fetches are bounded by the upstream clients' own timeouts.
func (c *RefreshCache[T]) GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetch FetchFunc[T]) models.Result[T] {
	if entry, ok := c.load(ctx, key); ok && entry.Valid(c.clock.Now()) {
		observability.CacheHitsTotal.WithLabelValues(key).Inc()
		return entry.Value
	}

	fetchCtx := context.WithoutCancel(ctx)
	v, _, shared := c.group.Do(key, func() (interface{}, error) {
		// Another caller may have filled the entry while this one waited.
		if entry, ok := c.load(fetchCtx, key); ok && entry.Valid(c.clock.Now()) {
			observability.CacheHitsTotal.WithLabelValues(key).Inc()
			return entry.Value, nil
		}
		observability.CacheMissesTotal.WithLabelValues(key).Inc()
		c.logger.Debug("cache miss, fetching", zap.String("key", key))

		result := fetch(fetchCtx)
		result = c.serveStale(fetchCtx, key, result)
		c.save(fetchCtx, key, result, c.entryTTL(result, ttl))
		return result, nil
	})
	if shared {
		observability.CacheCoalescedTotal.WithLabelValues(key).Inc()
	}
	return v.(models.Result[T])
}

// Invalidate drops the entry for key so the next GetOrFetch fetches.
func (c *RefreshCache[T]) Invalidate(ctx context.Context, key string) {
	c.save(ctx, key, models.Result[T]{}, 0)
}

func (c *RefreshCache[T]) entryTTL(result models.Result[T], ttl time.Duration) time.Duration {
	if !result.IsOK() && c.degradedTTL > 0 && c.degradedTTL < ttl {
		return c.degradedTTL
	}
	return ttl
}

// serveStale records ok results as last-known-good and, when enabled, swaps a degraded result for
// the last good one.
func (c *RefreshCache[T]) serveStale(ctx context.Context, key string, result models.Result[T]) models.Result[T] {
	if c.staleTTL <= 0 {
		return result
	}
	goodKey := key + lastGoodSuffix
	if result.IsOK() {
		c.save(ctx, goodKey, result, c.staleTTL)
		return result
	}
	good, ok := c.load(ctx, goodKey)
	if !ok || !good.Valid(c.clock.Now()) {
		return result
	}
	stale := good.Value
	stale.Status = models.StatusDegraded
	stale.Stale = true
	stale.Reason = result.Reason
	observability.StaleServesTotal.WithLabelValues(key).Inc()
	c.logger.Info("serving last good value",
		zap.String("key", key),
		zap.String("reason", result.Reason),
		zap.Duration("age", c.clock.Since(good.FetchedAt)))
	return stale
}

func (c *RefreshCache[T]) load(ctx context.Context, key string) (Entry[models.Result[T]], bool) {
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get").Inc()
		c.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		return Entry[models.Result[T]]{}, false
	}
	if !ok {
		return Entry[models.Result[T]]{}, false
	}
	var entry Entry[models.Result[T]]
	if err := json.Unmarshal(raw, &entry); err != nil {
		observability.CacheErrorsTotal.WithLabelValues("decode").Inc()
		c.logger.Warn("cache entry undecodable", zap.String("key", key), zap.Error(err))
		return Entry[models.Result[T]]{}, false
	}
	return entry, true
}

func (c *RefreshCache[T]) save(ctx context.Context, key string, result models.Result[T], ttl time.Duration) {
	entry := Entry[models.Result[T]]{
		Value:     result,
		FetchedAt: c.clock.Now(),
		TTL:       ttl,
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("encode").Inc()
		c.logger.Warn("cache entry unencodable", zap.String("key", key), zap.Error(err))
		return
	}
	storeTTL := ttl
	if storeTTL <= 0 {
		storeTTL = time.Nanosecond
	}
	if err := c.store.Set(ctx, key, raw, storeTTL); err != nil {
		observability.CacheErrorsTotal.WithLabelValues("set").Inc()
		c.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}
