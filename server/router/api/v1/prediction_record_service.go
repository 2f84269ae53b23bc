package v1

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/covercast/plugin/ai/forecast"
	apperrors "github.com/hrygo/covercast/server/internal/errors"
	"github.com/hrygo/covercast/store"
)

const (
	defaultPredictionPageSize = 20
	maxPredictionPageSize     = 100
)

// PredictionRecordsResponse lists stored predictions of a restaurant, newest first.
type PredictionRecordsResponse struct {
	RestaurantID string                    `json:"restaurant_id"`
	Predictions  []*store.PredictionRecord `json:"predictions"`
}

// ListPredictionRecords lists the stored predictions of a restaurant.
// GET /api/v1/restaurants/:id/predictions?service_date=YYYY-MM-DD&limit=N
func (s *APIV1Service) ListPredictionRecords(c echo.Context) error {
	restaurantID := c.Param("id")
	find := &store.FindPredictionRecord{
		RestaurantID: &restaurantID,
		Limit:        defaultPredictionPageSize,
	}
	if raw := c.QueryParam("service_date"); raw != "" {
		date, err := time.Parse(forecast.DateLayout, raw)
		if err != nil {
			return apperrors.InvalidQuery(fmt.Sprintf("service_date must be YYYY-MM-DD, got %q", raw))
		}
		find.ServiceDate = &date
	}
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 || limit > maxPredictionPageSize {
			return apperrors.InvalidQuery(fmt.Sprintf("limit must be within [1, %d], got %q", maxPredictionPageSize, raw))
		}
		find.Limit = limit
	}

	records, err := s.Store.ListPredictionRecords(c.Request().Context(), find)
	if err != nil {
		return fmt.Errorf("%w: %w", forecast.ErrStoreUnavailable, err)
	}
	return c.JSON(http.StatusOK, PredictionRecordsResponse{
		RestaurantID: restaurantID,
		Predictions:  records,
	})
}

// GetPredictionRecord returns one stored prediction by id.
// GET /api/v1/predictions/:id
func (s *APIV1Service) GetPredictionRecord(c echo.Context) error {
	id := c.Param("id")
	records, err := s.Store.ListPredictionRecords(c.Request().Context(), &store.FindPredictionRecord{
		ID:    &id,
		Limit: 1,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", forecast.ErrStoreUnavailable, err)
	}
	if len(records) == 0 {
		return &apperrors.AppError{
			Code:    apperrors.ErrCodeNotFound,
			Message: fmt.Sprintf("prediction %q not found", id),
		}
	}
	return c.JSON(http.StatusOK, records[0])
}
