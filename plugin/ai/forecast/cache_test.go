package forecast

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/covercast/plugin/ai/cache"
	"github.com/hrygo/covercast/store"
)

func TestCacheKey(t *testing.T) {
	date := time.Date(2024, 10, 25, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "prediction:37adf0d8-35b0-5670-8a04-7000d36a584f:2024-10-25:dinner",
		CacheKey("demo_bistro", date, store.ServiceTypeDinner))
	assert.Equal(t, CacheKey("demo_bistro", date, store.ServiceTypeDinner),
		CacheKey(" demo_bistro ", date, store.ServiceTypeDinner))
	assert.NotEqual(t, CacheKey("demo_bistro", date, store.ServiceTypeDinner),
		CacheKey("demo_bistro", date, store.ServiceTypeLunch))
}

func TestPredictionCacheGetOrCompute(t *testing.T) {
	backend := cache.NewMockCacheService()
	c := NewPredictionCache(backend, time.Minute, nil)
	ctx := context.Background()
	key := "prediction:r:2024-10-25:dinner"

	calls := 0
	compute := func(context.Context) (*Prediction, error) {
		calls++
		return &Prediction{PredictionID: "pred_1", Method: MethodWeightedAverage, PredictedCovers: 140.2}, nil
	}

	p, hit, err := c.GetOrCompute(ctx, key, compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "pred_1", p.PredictionID)

	p, hit, err = c.GetOrCompute(ctx, key, compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 140.2, p.PredictedCovers)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, backend.Sets)
}

func TestPredictionCacheComputeError(t *testing.T) {
	backend := cache.NewMockCacheService()
	c := NewPredictionCache(backend, time.Minute, nil)

	boom := errors.New("boom")
	_, _, err := c.GetOrCompute(context.Background(), "k", func(context.Context) (*Prediction, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, backend.Sets)
}

func TestPredictionCacheSkipsDegraded(t *testing.T) {
	backend := cache.NewMockCacheService()
	c := NewPredictionCache(backend, time.Minute, nil)

	p, _, err := c.GetOrCompute(context.Background(), "k", func(context.Context) (*Prediction, error) {
		return &Prediction{Method: MethodFallback, Degraded: []string{CollaboratorStore}}, nil
	})
	require.NoError(t, err)
	assert.True(t, p.IsDegraded())
	assert.Zero(t, backend.Sets)
}

func TestPredictionCacheDropsUndecodableValue(t *testing.T) {
	backend := cache.NewMockCacheService()
	require.NoError(t, backend.Set(context.Background(), "k", []byte("{not json"), time.Minute))
	c := NewPredictionCache(backend, time.Minute, nil)

	p, hit, err := c.GetOrCompute(context.Background(), "k", func(context.Context) (*Prediction, error) {
		return &Prediction{PredictionID: "fresh"}, nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "fresh", p.PredictionID)
}

func TestPredictionCacheSetFailureIsIgnored(t *testing.T) {
	backend := cache.NewMockCacheService()
	backend.SetErr = errors.New("full")
	c := NewPredictionCache(backend, time.Minute, nil)

	p, _, err := c.GetOrCompute(context.Background(), "k", func(context.Context) (*Prediction, error) {
		return &Prediction{PredictionID: "pred_1"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "pred_1", p.PredictionID)
}

func TestPredictionCacheExpiry(t *testing.T) {
	lru := cache.NewService(cache.ServiceConfig{Capacity: 10, DefaultTTL: time.Minute, CleanupInterval: time.Hour})
	t.Cleanup(func() { _ = lru.Close() })
	c := NewPredictionCache(lru, 30*time.Millisecond, nil)

	calls := 0
	compute := func(context.Context) (*Prediction, error) {
		calls++
		return &Prediction{PredictionID: "p"}, nil
	}
	_, _, err := c.GetOrCompute(context.Background(), "k", compute)
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	_, hit, err := c.GetOrCompute(context.Background(), "k", compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2, calls)
}
