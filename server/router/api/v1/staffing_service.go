package v1

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/covercast/plugin/ai/forecast"
	apperrors "github.com/hrygo/covercast/server/internal/errors"
	"github.com/hrygo/covercast/store"
)

// StaffingResponse is the staffing plan for a given cover count.
type StaffingResponse struct {
	RestaurantID string                 `json:"restaurant_id"`
	ServiceType  store.ServiceType      `json:"service_type"`
	Covers       float64                `json:"covers"`
	OutletType   string                 `json:"outlet_type,omitempty"`
	Staffing     *forecast.StaffingPlan `json:"staffing"`
}

// IndustryDefaultsResponse is a preset with the profile it expands to.
type IndustryDefaultsResponse struct {
	OutletType string                   `json:"outlet_type"`
	Preset     forecast.IndustryPreset  `json:"preset"`
	Profile    *store.RestaurantProfile `json:"profile"`
}

// GetStaffing recommends staff for an explicit cover count.
// GET /api/v1/restaurants/:id/staffing?covers=N&service_type=dinner
func (s *APIV1Service) GetStaffing(c echo.Context) error {
	restaurantID := c.Param("id")
	covers, err := strconv.ParseFloat(c.QueryParam("covers"), 64)
	if err != nil || covers < 0 {
		return apperrors.InvalidQuery(fmt.Sprintf("covers must be a non-negative number, got %q", c.QueryParam("covers")))
	}

	serviceType := store.ServiceTypeDinner
	if raw := c.QueryParam("service_type"); raw != "" {
		st, ok := store.ParseServiceType(raw)
		if !ok {
			return apperrors.InvalidQuery(fmt.Sprintf("unknown service_type %q", raw))
		}
		serviceType = st
	}

	rp, err := s.Forecast.ResolveProfile(c.Request().Context(), restaurantID)
	if err != nil {
		return err
	}
	plan, err := forecast.RecommendStaff(covers, serviceType, rp)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, StaffingResponse{
		RestaurantID: restaurantID,
		ServiceType:  serviceType,
		Covers:       covers,
		OutletType:   rp.OutletType,
		Staffing:     plan,
	})
}

// GetIndustryDefaults returns the staffing preset of an outlet type.
// GET /api/v1/restaurants/defaults/:type
func (s *APIV1Service) GetIndustryDefaults(c echo.Context) error {
	outletType := c.Param("type")
	preset, ok := forecast.IndustryDefaults[outletType]
	if !ok {
		return &apperrors.AppError{
			Code:    apperrors.ErrCodeNotFound,
			Message: fmt.Sprintf("unknown outlet type %q", outletType),
			Context: map[string]any{"outlet_types": forecast.OutletTypes()},
		}
	}
	return c.JSON(http.StatusOK, IndustryDefaultsResponse{
		OutletType: outletType,
		Preset:     preset,
		Profile:    forecast.DefaultProfile("", outletType),
	})
}
