package forecast

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/sync/singleflight"

	"github.com/hrygo/covercast/internal/observability"
	"github.com/hrygo/covercast/plugin/ai/cache"
	"github.com/hrygo/covercast/store"
)

// DefaultCacheTTL bounds how stale enrichment signals can be in a cached prediction.
const DefaultCacheTTL = 5 * time.Minute

// PredictionCache stores full predictions by (restaurant, date, service type) and
// collapses concurrent misses for one key into a single computation.
// Enrichment signals are not part of the key.
type PredictionCache struct {
	backend cache.CacheService
	ttl     time.Duration
	group   singleflight.Group
	logger  *slog.Logger
}

// NewPredictionCache creates a PredictionCache over backend.
func NewPredictionCache(backend cache.CacheService, ttl time.Duration, logger *slog.Logger) *PredictionCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PredictionCache{backend: backend, ttl: ttl, logger: logger}
}

// CacheKey returns the cache key of a restaurant's service on date.
func CacheKey(restaurantID string, date time.Time, serviceType store.ServiceType) string {
	return fmt.Sprintf("prediction:%s:%s:%s", store.NormalizeRestaurantID(restaurantID), date.Format(DateLayout), serviceType)
}

func restaurantPattern(restaurantID string) string {
	return fmt.Sprintf("prediction:%s:*", store.NormalizeRestaurantID(restaurantID))
}

type computeResult struct {
	prediction *Prediction
	shared     bool
}

// GetOrCompute returns the cached prediction for key, or runs compute once for all
// concurrent callers of key. The bool reports a cache hit. Degraded predictions are
// returned but not stored. compute runs detached from the cancellation of any single
// caller; a caller whose ctx ends stops waiting and gets ctx.Err().
func (c *PredictionCache) GetOrCompute(ctx context.Context, key string, compute func(context.Context) (*Prediction, error)) (*Prediction, bool, error) {
	if p, ok := c.get(ctx, key); ok {
		return p, true, nil
	}

	ch := c.group.DoChan(key, func() (any, error) {
		flightCtx := context.WithoutCancel(ctx)
		// Another flight may have filled the key between the miss and now.
		if p, ok := c.get(flightCtx, key); ok {
			return computeResult{prediction: p, shared: true}, nil
		}
		p, err := compute(flightCtx)
		if err != nil {
			return nil, err
		}
		c.set(flightCtx, key, p)
		return computeResult{prediction: p}, nil
	})

	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		r := res.Val.(computeResult)
		return r.prediction, r.shared, nil
	}
}

// InvalidateRestaurant drops every cached prediction of the restaurant.
func (c *PredictionCache) InvalidateRestaurant(ctx context.Context, restaurantID string) error {
	return c.backend.Invalidate(ctx, restaurantPattern(restaurantID))
}

func (c *PredictionCache) get(ctx context.Context, key string) (*Prediction, bool) {
	data, ok := c.backend.Get(ctx, key)
	if !ok {
		return nil, false
	}
	var p Prediction
	if err := json.Unmarshal(data, &p); err != nil {
		observability.Logger(ctx, c.logger).Warn("dropping undecodable cached prediction",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		_ = c.backend.Invalidate(ctx, key)
		return nil, false
	}
	return &p, true
}

func (c *PredictionCache) set(ctx context.Context, key string, p *Prediction) {
	if p == nil || p.IsDegraded() {
		return
	}
	data, err := json.Marshal(p)
	if err != nil {
		observability.Logger(ctx, c.logger).Warn("failed to encode prediction for cache",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := c.backend.Set(ctx, key, data, c.ttl); err != nil {
		observability.Logger(ctx, c.logger).Warn("failed to cache prediction",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}
