package test

import (
	"context"
	"testing"

	"github.com/lithammer/shortuuid/v4"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/covercast/store"
)

func TestRestaurantProfileStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)
	restaurantID := "harbor-" + shortuuid.New()

	missing, err := ts.GetRestaurantProfile(ctx, restaurantID)
	require.NoError(t, err)
	require.Nil(t, missing)

	upserted, err := ts.UpsertRestaurantProfile(ctx, &store.RestaurantProfile{
		RestaurantID:     restaurantID,
		OutletName:       "Harbor Grill",
		TotalSeats:       80,
		Turns:            map[store.ServiceType]float64{store.ServiceTypeDinner: 1.5},
		CoversPerServer:  18,
		CoversPerHost:    70,
		CoversPerRunner:  45,
		CoversPerKitchen: 35,
		MinServers:       3,
		MinHosts:         1,
		MinKitchen:       2,
	})
	require.NoError(t, err)
	require.Equal(t, store.NormalizeRestaurantID(restaurantID), upserted.ID)

	got, err := ts.GetRestaurantProfile(ctx, restaurantID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "Harbor Grill", got.OutletName)
	require.Equal(t, 80, got.TotalSeats)
	require.Equal(t, 1.5, got.TurnsFor(store.ServiceTypeDinner))
	require.Equal(t, 1.0, got.TurnsFor(store.ServiceTypeBreakfast))

	got.TotalSeats = 90
	_, err = ts.UpsertRestaurantProfile(ctx, got)
	require.NoError(t, err)
	updated, err := ts.GetRestaurantProfile(ctx, restaurantID)
	require.NoError(t, err)
	require.Equal(t, 90, updated.TotalSeats)
	require.Equal(t, got.CreatedTs, updated.CreatedTs)
}

func TestSeededDemoProfile(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	profile, err := ts.GetRestaurantProfile(ctx, "demo_bistro")
	require.NoError(t, err)
	require.NotNil(t, profile)
	require.Equal(t, "37adf0d8-35b0-5670-8a04-7000d36a584f", profile.ID)
	require.Equal(t, 60, profile.TotalSeats)
	require.Equal(t, 16.0, profile.CoversPerServer)
}

func TestNormalizeRestaurantID(t *testing.T) {
	require.Equal(t, "", store.NormalizeRestaurantID("  "))
	require.Equal(t, "37adf0d8-35b0-5670-8a04-7000d36a584f", store.NormalizeRestaurantID("demo_bistro"))
	require.Equal(t, store.NormalizeRestaurantID("demo_bistro"), store.NormalizeRestaurantID(" demo_bistro "))

	id := "6f1c2b9e-4a57-4c1e-9d3b-2f8a7e6b5c40"
	require.Equal(t, id, store.NormalizeRestaurantID(id))
	require.Equal(t, id, store.NormalizeRestaurantID("6F1C2B9E-4A57-4C1E-9D3B-2F8A7E6B5C40"))
}
