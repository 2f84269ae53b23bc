package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name    string  `json:"name" validate:"required"`
	Service string  `json:"service_type" validate:"required,service_type"`
	Date    string  `json:"service_date" validate:"required,datetime=2006-01-02"`
	Seats   int     `json:"seats" validate:"gt=0"`
	Hint    float64 `json:"hint" validate:"gte=0,lte=1"`
	Outlet  string  `json:"outlet" validate:"omitempty,oneof=fine_dining casual"`
	Ignored string  `json:"-" validate:"max=3"`
}

func TestValidateStruct_OK(t *testing.T) {
	err := ValidateStruct(sample{Name: "x", Service: "dinner", Date: "2025-02-14", Seats: 10, Hint: 0.5})
	assert.NoError(t, err)
}

func TestValidateStruct_FieldErrors(t *testing.T) {
	err := ValidateStruct(sample{
		Service: "brunch",
		Date:    "14/02/2025",
		Hint:    1.5,
		Outlet:  "diner",
		Ignored: "toolong",
	})
	require.Error(t, err)

	var verr *Error
	require.True(t, errors.As(err, &verr))

	byField := make(map[string]FieldError)
	for _, f := range verr.Fields {
		byField[f.Field] = f
	}
	assert.Equal(t, "name is required", byField["name"].Error())
	assert.Equal(t, "service_type must be one of breakfast, lunch, dinner, other", byField["service_type"].Error())
	assert.Equal(t, "service_date must be a date formatted as 2006-01-02", byField["service_date"].Error())
	assert.Equal(t, "seats must be greater than 0", byField["seats"].Error())
	assert.Equal(t, "hint must be at most 1", byField["hint"].Error())
	assert.Equal(t, "outlet must be one of fine_dining casual", byField["outlet"].Error())
	assert.Equal(t, "Ignored must be at most 3", byField["Ignored"].Error())
	assert.Contains(t, verr.Error(), "; ")
}

func TestError_Empty(t *testing.T) {
	assert.Equal(t, "validation failed", (&Error{}).Error())
	assert.Equal(t, "x failed email validation", FieldError{Field: "x", Tag: "email"}.Error())
}

func TestGetValidator_Singleton(t *testing.T) {
	assert.Same(t, GetValidator(), GetValidator())
}
