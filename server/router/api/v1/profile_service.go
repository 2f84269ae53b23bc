package v1

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/covercast/internal/observability"
	"github.com/hrygo/covercast/plugin/ai/forecast"
	apperrors "github.com/hrygo/covercast/server/internal/errors"
	"github.com/hrygo/covercast/store"
)

// GetRestaurantProfile returns the stored profile of a restaurant.
// GET /api/v1/restaurants/:id/profile
func (s *APIV1Service) GetRestaurantProfile(c echo.Context) error {
	restaurantID := c.Param("id")
	rp, err := s.Store.GetRestaurantProfile(c.Request().Context(), restaurantID)
	if err != nil {
		return fmt.Errorf("%w: %w", forecast.ErrStoreUnavailable, err)
	}
	if rp == nil {
		return apperrors.ProfileNotFound(restaurantID)
	}
	return c.JSON(http.StatusOK, rp)
}

// UpsertRestaurantProfile creates or replaces a restaurant profile and drops the
// restaurant's cached predictions.
// PUT /api/v1/restaurants/:id/profile
func (s *APIV1Service) UpsertRestaurantProfile(c echo.Context) error {
	ctx := c.Request().Context()
	restaurantID := c.Param("id")

	var rp store.RestaurantProfile
	if err := c.Echo().JSONSerializer.Deserialize(c, &rp); err != nil {
		return err
	}
	if rp.RestaurantID != "" && store.NormalizeRestaurantID(rp.RestaurantID) != store.NormalizeRestaurantID(restaurantID) {
		return apperrors.InvalidQuery(fmt.Sprintf("restaurant_id %q does not match path %q", rp.RestaurantID, restaurantID))
	}
	rp.RestaurantID = restaurantID
	if rp.OutletType != "" {
		if _, ok := forecast.IndustryDefaults[rp.OutletType]; !ok {
			return fmt.Errorf("%w: unknown outlet_type %q", forecast.ErrInvalidProfile, rp.OutletType)
		}
	}
	if err := forecast.ValidateProfile(&rp); err != nil {
		return err
	}

	saved, err := s.Store.UpsertRestaurantProfile(ctx, &rp)
	if err != nil {
		return fmt.Errorf("%w: %w", forecast.ErrStoreUnavailable, err)
	}
	if cache := s.Forecast.Cache(); cache != nil {
		if err := cache.InvalidateRestaurant(ctx, restaurantID); err != nil {
			observability.Logger(ctx, s.Logger).Warn("failed to invalidate cached predictions",
				slog.String(observability.LogFieldRestaurantID, restaurantID),
				slog.String("error", err.Error()),
			)
		}
	}
	return c.JSON(http.StatusOK, saved)
}
