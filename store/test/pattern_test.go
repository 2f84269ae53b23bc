package test

import (
	"context"
	"testing"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/covercast/store"
)

func createTestingPattern(ctx context.Context, t *testing.T, ts *store.Store, restaurantID, date string, serviceType store.ServiceType, covers int, embedding []float32) *store.Pattern {
	t.Helper()
	serviceDate, err := time.Parse("2006-01-02", date)
	require.NoError(t, err)
	pattern, err := ts.CreatePattern(ctx, &store.Pattern{
		ID:             shortuuid.New(),
		RestaurantID:   restaurantID,
		ServiceDate:    serviceDate,
		ServiceType:    serviceType,
		DayType:        "weekend",
		Season:         "autumn",
		ObservedCovers: covers,
		Embedding:      embedding,
		Model:          "test-model",
	})
	require.NoError(t, err)
	return pattern
}

func TestPatternStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)
	restaurantID := "bistro-" + shortuuid.New()

	created := createTestingPattern(ctx, t, ts, restaurantID, "2024-10-18", store.ServiceTypeDinner, 42, []float32{1, 0, 0})
	require.Equal(t, store.NormalizeRestaurantID(restaurantID), created.RestaurantID)
	require.NotZero(t, created.CreatedTs)

	list, err := ts.ListPatterns(ctx, &store.FindPattern{RestaurantID: &restaurantID})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, created.ID, list[0].ID)
	require.Equal(t, 42, list[0].ObservedCovers)
	require.Equal(t, store.ServiceTypeDinner, list[0].ServiceType)
	require.Equal(t, "2024-10-18", list[0].ServiceDate.Format("2006-01-02"))
	require.InDeltaSlice(t, []float32{1, 0, 0}, list[0].Embedding, 1e-6)
}

func TestSearchPatterns(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)
	restaurantID := "bistro-" + shortuuid.New()
	otherID := "other-" + shortuuid.New()

	exact := createTestingPattern(ctx, t, ts, restaurantID, "2024-10-11", store.ServiceTypeDinner, 40, []float32{1, 0, 0})
	near := createTestingPattern(ctx, t, ts, restaurantID, "2024-10-04", store.ServiceTypeDinner, 36, []float32{0.9, 0.1, 0})
	createTestingPattern(ctx, t, ts, restaurantID, "2024-09-27", store.ServiceTypeDinner, 12, []float32{0, 1, 0})
	createTestingPattern(ctx, t, ts, restaurantID, "2024-10-12", store.ServiceTypeLunch, 30, []float32{1, 0, 0})
	createTestingPattern(ctx, t, ts, otherID, "2024-10-11", store.ServiceTypeDinner, 90, []float32{1, 0, 0})

	dinner := store.ServiceTypeDinner
	results, err := ts.SearchPatterns(ctx, &store.SearchPatternsOptions{
		RestaurantID: restaurantID,
		ServiceType:  &dinner,
		Vector:       []float32{1, 0, 0},
		MinScore:     0.5,
	})
	require.NoError(t, err)
	require.Len(t, results, 2, "orthogonal pattern, other service and other restaurant are excluded")
	require.Equal(t, exact.ID, results[0].Pattern.ID)
	require.InDelta(t, 1.0, results[0].Score, 1e-4)
	require.Equal(t, near.ID, results[1].Pattern.ID)
	require.Less(t, results[1].Score, results[0].Score)

	t.Run("limit", func(t *testing.T) {
		results, err := ts.SearchPatterns(ctx, &store.SearchPatternsOptions{
			RestaurantID: restaurantID,
			Vector:       []float32{1, 0, 0},
			Limit:        1,
		})
		require.NoError(t, err)
		require.Len(t, results, 1)
	})

	t.Run("equal scores prefer newer dates", func(t *testing.T) {
		lunch := store.ServiceTypeLunch
		newer := createTestingPattern(ctx, t, ts, restaurantID, "2024-10-19", store.ServiceTypeLunch, 31, []float32{1, 0, 0})
		results, err := ts.SearchPatterns(ctx, &store.SearchPatternsOptions{
			RestaurantID: restaurantID,
			ServiceType:  &lunch,
			Vector:       []float32{1, 0, 0},
			MinScore:     0.5,
		})
		require.NoError(t, err)
		require.Len(t, results, 2)
		require.Equal(t, newer.ID, results[0].Pattern.ID)
	})
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"length mismatch", []float32{1, 0}, []float32{1, 0, 0}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
		{"empty", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.InDelta(t, tt.want, store.CosineSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}
