package validator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationError represents a single field failure
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
	Rule    string      `json:"rule,omitempty"`
}

type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "validation failed"
	}
	if len(ve) == 1 {
		return fmt.Sprintf("validation failed: %s %s", ve[0].Field, ve[0].Message)
	}
	return fmt.Sprintf("validation failed: %d field errors", len(ve))
}

// Validator validates request DTOs with struct tags and business rules
type Validator struct {
	*BusinessValidator
}

// New creates a validator with all custom rules registered
func New() *Validator {
	return &Validator{BusinessValidator: NewBusinessValidator()}
}

// Struct validates s and returns ValidationErrors or nil.
func (v *Validator) Struct(s interface{}) error {
	if errs := v.Validate(s); len(errs) > 0 {
		return errs
	}
	return nil
}

// ToValidationErrors converts go-playground errors into ValidationErrors
func ToValidationErrors(err error) ValidationErrors {
	if err == nil {
		return nil
	}

	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return ValidationErrors{{Field: "request", Message: err.Error(), Rule: "invalid"}}
	}

	result := make(ValidationErrors, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		result = append(result, ValidationError{
			Field:   toSnakeCase(fe.Field()),
			Message: errorMessage(fe),
			Value:   fe.Value(),
			Rule:    fe.Tag(),
		})
	}
	return result
}

func errorMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", err.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", err.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", err.Param())
	case "dive":
		return "contains an invalid entry"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", err.Param())
	case "coupon_code":
		return "must be 3-50 letters, digits, dashes or underscores"
	case "discount_type":
		return "must be percentage or fixed"
	case "money":
		return "must be a non-negative amount with at most two decimal places"
	case "storage_path":
		return "must be a relative path without '..'"
	default:
		return fmt.Sprintf("validation failed for rule '%s'", err.Tag())
	}
}

func toSnakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
