package v1

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/covercast/internal/observability"
	apperrors "github.com/hrygo/covercast/server/internal/errors"
	"github.com/hrygo/covercast/server/middleware"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Code      apperrors.ErrorCode `json:"code"`
	Message   string              `json:"message"`
	RequestID string              `json:"request_id,omitempty"`
	Details   map[string]any      `json:"details,omitempty"`
}

// requestContextMiddleware attaches an observability.RequestContext to every request
// and logs its outcome.
func (s *APIV1Service) requestContextMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		restaurantID := c.Param("id")
		if restaurantID == "" {
			restaurantID = req.Header.Get(middleware.RestaurantHeader)
		}

		var reqCtx *observability.RequestContext
		if id := req.Header.Get(echo.HeaderXRequestID); id != "" {
			reqCtx = observability.NewRequestContextWithID(s.Logger, id, restaurantID)
		} else {
			reqCtx = observability.NewRequestContext(s.Logger, restaurantID)
		}
		c.SetRequest(req.WithContext(observability.WithRequestContext(req.Context(), reqCtx)))
		c.Response().Header().Set(echo.HeaderXRequestID, reqCtx.RequestID)

		err := next(c)
		if err != nil {
			// Write the error now so the logged status is the one sent.
			c.Error(err)
		}

		status := c.Response().Status
		if s.Metrics != nil {
			s.Metrics.ObserveHTTPRequest(c.Path(), status)
		}
		reqCtx.Debug("request completed",
			slog.String("route", c.Path()),
			slog.Int("status", status),
			slog.Int64(observability.LogFieldDuration, reqCtx.DurationMs()),
		)
		return nil
	}
}

// handleError is the echo HTTPErrorHandler. Every error leaves as an ErrorResponse.
func (s *APIV1Service) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var (
		status int
		body   ErrorResponse
	)
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		status = httpErr.Code
		body = ErrorResponse{Code: codeForStatus(status), Message: httpMessage(httpErr)}
	} else {
		appErr := apperrors.FromError(err)
		status = HTTPStatus(appErr.Code)
		body = ErrorResponse{Code: appErr.Code, Message: appErr.Message, Details: appErr.Context}
	}

	logger := observability.Logger(c.Request().Context(), s.Logger)
	if reqCtx, ok := observability.FromContext(c.Request().Context()); ok {
		body.RequestID = reqCtx.RequestID
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			slog.String("route", c.Path()),
			slog.String(observability.LogFieldErrorCode, string(body.Code)),
			slog.String("error", err.Error()),
		)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, body)
	}
	if err != nil {
		logger.Error("failed to write error response", slog.String("error", err.Error()))
	}
}

// HTTPStatus maps an error code to its HTTP status.
func HTTPStatus(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrCodeInvalidQuery, apperrors.ErrCodeInvalidProfile:
		return http.StatusBadRequest
	case apperrors.ErrCodeProfileNotFound, apperrors.ErrCodeNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case apperrors.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case apperrors.ErrCodeEncodingUnavailable, apperrors.ErrCodeStoreUnavailable, apperrors.ErrCodeGenerationUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func codeForStatus(status int) apperrors.ErrorCode {
	switch {
	case status == http.StatusNotFound || status == http.StatusMethodNotAllowed:
		return apperrors.ErrCodeNotFound
	case status == http.StatusTooManyRequests:
		return apperrors.ErrCodeRateLimitExceeded
	case status < http.StatusInternalServerError:
		return apperrors.ErrCodeInvalidQuery
	default:
		return apperrors.ErrCodeInternal
	}
}

func httpMessage(err *echo.HTTPError) string {
	if msg, ok := err.Message.(string); ok {
		return msg
	}
	return http.StatusText(err.Code)
}
