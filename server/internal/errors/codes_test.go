package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hrygo/covercast/internal/validation"
	"github.com/hrygo/covercast/plugin/ai/forecast"
)

func TestFromError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"invalid query", fmt.Errorf("%w: bad date", forecast.ErrInvalidQuery), ErrCodeInvalidQuery},
		{"invalid profile", fmt.Errorf("%w: ratio", forecast.ErrInvalidProfile), ErrCodeInvalidProfile},
		{"encoding", forecast.ErrEncodingUnavailable, ErrCodeEncodingUnavailable},
		{"store", forecast.ErrStoreUnavailable, ErrCodeStoreUnavailable},
		{"generation", forecast.ErrGenerationUnavailable, ErrCodeGenerationUnavailable},
		{"deadline", fmt.Errorf("search: %w", context.DeadlineExceeded), ErrCodeTimeout},
		{"validation", &validation.Error{Fields: []validation.FieldError{{Field: "x", Tag: "required"}}}, ErrCodeInvalidQuery},
		{"app error kept", fmt.Errorf("outer: %w", Wrap(stderrors.New("no row"), ErrCodeProfileNotFound, "profile r")), ErrCodeProfileNotFound},
		{"unknown", stderrors.New("disk on fire"), ErrCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromError(tt.err)
			assert.Equal(t, tt.want, got.Code)
			assert.True(t, IsCode(got, tt.want))
		})
	}
	assert.Nil(t, FromError(nil))
}

func TestAppError(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := Wrap(cause, ErrCodeStoreUnavailable, "pattern search failed").WithContext("restaurant_id", "r")

	assert.Equal(t, "[STORE_UNAVAILABLE] pattern search failed: connection refused", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "r", err.Context["restaurant_id"])
	assert.Equal(t, "[INVALID_QUERY] bad", InvalidQuery("bad").Error())
	notFound := ProfileNotFound("bistro")
	assert.Equal(t, ErrCodeProfileNotFound, notFound.Code)
	assert.Equal(t, "bistro", notFound.Context["restaurant_id"])

	wrapped := fmt.Errorf("handler: %w", err)
	assert.True(t, IsCode(wrapped, ErrCodeStoreUnavailable))
	assert.False(t, IsCode(wrapped, ErrCodeInternal))
	assert.Equal(t, ErrCodeStoreUnavailable, GetCodeFromError(wrapped, ErrCodeInternal))
	assert.Equal(t, ErrCodeInternal, GetCodeFromError(stderrors.New("x"), ErrCodeInternal))
}
