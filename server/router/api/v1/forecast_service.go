package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/covercast/plugin/ai/forecast"
)

// Predict forecasts covers and staffing for one service.
// POST /api/v1/predict
func (s *APIV1Service) Predict(c echo.Context) error {
	var q forecast.Query
	if err := c.Echo().JSONSerializer.Deserialize(c, &q); err != nil {
		return err
	}

	prediction, err := s.Forecast.Predict(c.Request().Context(), &q)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, prediction)
}

// PredictBatch forecasts one service type for every date of a range.
// POST /api/v1/predict/batch
func (s *APIV1Service) PredictBatch(c echo.Context) error {
	var q forecast.BatchQuery
	if err := c.Echo().JSONSerializer.Deserialize(c, &q); err != nil {
		return err
	}

	result, err := s.Batch.Run(c.Request().Context(), &q)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}
