package v1

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hrygo/covercast/internal/observability"
	"github.com/hrygo/covercast/internal/profile"
	"github.com/hrygo/covercast/plugin/ai/forecast"
	apperrors "github.com/hrygo/covercast/server/internal/errors"
	"github.com/hrygo/covercast/server/middleware"
	"github.com/hrygo/covercast/store"
)

// APIV1Service serves the forecasting HTTP API.
type APIV1Service struct {
	Profile  *profile.Profile
	Store    *store.Store
	Forecast *forecast.Service
	Batch    *forecast.BatchOrchestrator
	Metrics  *observability.Metrics
	Limiter  *middleware.RateLimiter
	Logger   *slog.Logger
}

// NewAPIV1Service creates the API service. metrics may be nil.
func NewAPIV1Service(profile *profile.Profile, st *store.Store, service *forecast.Service, batch *forecast.BatchOrchestrator, metrics *observability.Metrics, logger *slog.Logger) *APIV1Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &APIV1Service{
		Profile:  profile,
		Store:    st,
		Forecast: service,
		Batch:    batch,
		Metrics:  metrics,
		Limiter:  middleware.NewRateLimiter(profile.APIRequestsPerSecond, profile.APIBurst),
		Logger:   logger,
	}
}

// NewEchoServer returns an echo instance with the API registered.
func (s *APIV1Service) NewEchoServer() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.JSONSerializer = goJSONSerializer{}
	e.HTTPErrorHandler = s.handleError
	s.Register(e)
	return e
}

// Register mounts the routes on e.
func (s *APIV1Service) Register(e *echo.Echo) {
	e.Use(echomiddleware.Recover())
	e.Use(s.requestContextMiddleware)

	e.GET("/healthz", s.Healthz)
	if s.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.Metrics.Registry(), promhttp.HandlerOpts{})))
	}

	api := e.Group("/api/v1", echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, middleware.RestaurantHeader, echo.HeaderXRequestID},
	}))
	limited := s.Limiter.Middleware(func(echo.Context) error {
		return apperrors.RateLimitExceeded("too many requests for this restaurant")
	})

	api.POST("/predict", s.Predict, limited)
	api.POST("/predict/batch", s.PredictBatch, limited)
	api.GET("/restaurants/defaults/:type", s.GetIndustryDefaults)
	api.GET("/restaurants/:id/staffing", s.GetStaffing, limited)
	api.GET("/restaurants/:id/profile", s.GetRestaurantProfile)
	api.PUT("/restaurants/:id/profile", s.UpsertRestaurantProfile, limited)
	api.GET("/restaurants/:id/predictions", s.ListPredictionRecords)
	api.GET("/predictions/:id", s.GetPredictionRecord)
}

// Healthz reports liveness.
// GET /healthz
func (s *APIV1Service) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.Profile.Version,
	})
}
