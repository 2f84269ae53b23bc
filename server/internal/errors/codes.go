// Package errors defines the typed error codes the server reports to clients.
package errors

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/hrygo/covercast/internal/validation"
	"github.com/hrygo/covercast/plugin/ai/forecast"
)

// ErrorCode represents a specific error type.
type ErrorCode string

const (
	// ErrCodeInvalidQuery indicates a malformed prediction or batch query.
	ErrCodeInvalidQuery ErrorCode = "INVALID_QUERY"
	// ErrCodeInvalidProfile indicates a restaurant profile that cannot be used for staffing.
	ErrCodeInvalidProfile ErrorCode = "INVALID_PROFILE"
	// ErrCodeProfileNotFound indicates the restaurant has no stored profile.
	ErrCodeProfileNotFound ErrorCode = "PROFILE_NOT_FOUND"
	// ErrCodeEncodingUnavailable indicates the embedding collaborator failed.
	ErrCodeEncodingUnavailable ErrorCode = "ENCODING_UNAVAILABLE"
	// ErrCodeStoreUnavailable indicates the pattern store failed.
	ErrCodeStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"
	// ErrCodeGenerationUnavailable indicates the language model failed.
	ErrCodeGenerationUnavailable ErrorCode = "GENERATION_UNAVAILABLE"
	// ErrCodeNotFound indicates an unknown route or resource.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeRateLimitExceeded indicates rate limit has been exceeded.
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"
	// ErrCodeTimeout indicates the operation timed out.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeInternal is anything else.
	ErrCodeInternal ErrorCode = "INTERNAL"
)

// AppError represents a structured error reported to clients.
type AppError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]any
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error.
func (e *AppError) WithContext(key string, value any) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// GetCode returns the error code.
func (e *AppError) GetCode() ErrorCode {
	return e.Code
}

// InvalidQuery creates an invalid query error.
func InvalidQuery(msg string) *AppError {
	return &AppError{Code: ErrCodeInvalidQuery, Message: msg}
}

// ProfileNotFound creates a profile not found error.
func ProfileNotFound(restaurantID string) *AppError {
	return &AppError{
		Code:    ErrCodeProfileNotFound,
		Message: "no profile stored for restaurant " + restaurantID,
		Context: map[string]any{"restaurant_id": restaurantID},
	}
}

// RateLimitExceeded creates a rate limit exceeded error.
func RateLimitExceeded(msg string) *AppError {
	return &AppError{Code: ErrCodeRateLimitExceeded, Message: msg}
}

// Wrap wraps an existing error with a code.
func Wrap(cause error, code ErrorCode, msg string) *AppError {
	return &AppError{Code: code, Message: msg, Cause: cause}
}

// FromError classifies err. AppErrors keep their code; forecast and context errors
// are mapped; anything else is INTERNAL.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}

	var code ErrorCode
	switch {
	case stderrors.Is(err, forecast.ErrInvalidQuery):
		code = ErrCodeInvalidQuery
	case stderrors.Is(err, forecast.ErrInvalidProfile):
		code = ErrCodeInvalidProfile
	case stderrors.Is(err, forecast.ErrEncodingUnavailable):
		code = ErrCodeEncodingUnavailable
	case stderrors.Is(err, forecast.ErrStoreUnavailable):
		code = ErrCodeStoreUnavailable
	case stderrors.Is(err, forecast.ErrGenerationUnavailable):
		code = ErrCodeGenerationUnavailable
	case stderrors.Is(err, context.DeadlineExceeded):
		code = ErrCodeTimeout
	default:
		var verr *validation.Error
		if stderrors.As(err, &verr) {
			code = ErrCodeInvalidQuery
		} else {
			code = ErrCodeInternal
		}
	}
	return &AppError{Code: code, Message: err.Error(), Cause: err}
}

// IsCode checks if an error, or one it wraps, is an AppError with code.
func IsCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// GetCodeFromError extracts the error code from any error.
// Returns the provided default code if the error is not an AppError.
func GetCodeFromError(err error, defaultCode ErrorCode) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return defaultCode
}
