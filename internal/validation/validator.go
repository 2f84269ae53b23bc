// Package validation wraps a shared go-playground validator instance.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/hrygo/covercast/store"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// FieldError is a single field that failed validation.
type FieldError struct {
	Field string
	Tag   string
	Param string
}

func (e FieldError) Error() string {
	switch e.Tag {
	case "required":
		return fmt.Sprintf("%s is required", e.Field)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", e.Field, e.Param)
	case "gte", "min":
		return fmt.Sprintf("%s must be at least %s", e.Field, e.Param)
	case "lte", "max":
		return fmt.Sprintf("%s must be at most %s", e.Field, e.Param)
	case "datetime":
		return fmt.Sprintf("%s must be a date formatted as %s", e.Field, e.Param)
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", e.Field, e.Param)
	case "service_type":
		return fmt.Sprintf("%s must be one of breakfast, lunch, dinner, other", e.Field)
	default:
		return fmt.Sprintf("%s failed %s validation", e.Field, e.Tag)
	}
}

// Error collects every field error of one struct.
type Error struct {
	Fields []FieldError
}

func (e *Error) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	messages := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		messages = append(messages, f.Error())
	}
	return strings.Join(messages, "; ")
}

// GetValidator returns the singleton validator instance.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
			if name == "" || name == "-" {
				return field.Name
			}
			return name
		})
		_ = validate.RegisterValidation("service_type", func(fl validator.FieldLevel) bool {
			return store.ServiceType(fl.Field().String()).IsValid()
		})
	})
	return validate
}

// ValidateStruct validates s and returns *Error when any field fails.
func ValidateStruct(s any) error {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}
	result := &Error{Fields: make([]FieldError, 0, len(validationErrors))}
	for _, fe := range validationErrors {
		result.Fields = append(result.Fields, FieldError{
			Field: fe.Field(),
			Tag:   fe.Tag(),
			Param: fe.Param(),
		})
	}
	return result
}
