package validator

import (
	"fmt"
	"path"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/SAP-F-2025/enrollment-service/internal/models"
)

var couponCodePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,50}$`)

// BusinessValidator handles business rule validation
type BusinessValidator struct {
	validate *validator.Validate
}

// NewBusinessValidator creates a new business validator
func NewBusinessValidator() *BusinessValidator {
	bv := &BusinessValidator{validate: validator.New()}
	bv.validate.RegisterCustomTypeFunc(decimalValue, decimal.Decimal{})
	bv.registerBusinessRules()
	return bv
}

// Validate validates struct tags for any request
func (bv *BusinessValidator) Validate(s interface{}) ValidationErrors {
	if err := bv.validate.Struct(s); err != nil {
		return ToValidationErrors(err)
	}
	return nil
}

// ValidateCouponRules checks the discount value against its type
func (bv *BusinessValidator) ValidateCouponRules(discountType models.DiscountType, value decimal.Decimal, expiresAt *time.Time) ValidationErrors {
	var errors ValidationErrors

	if !discountType.IsValid() {
		errors = append(errors, ValidationError{
			Field:   "discount_type",
			Message: "must be percentage or fixed",
			Value:   discountType,
			Rule:    "discount_type",
		})
	}

	if !value.IsPositive() {
		errors = append(errors, ValidationError{
			Field:   "discount_value",
			Message: "must be greater than 0",
			Value:   value.String(),
			Rule:    "business_logic",
		})
	}

	if discountType == models.DiscountPercentage && value.GreaterThan(decimal.NewFromInt(100)) {
		errors = append(errors, ValidationError{
			Field:   "discount_value",
			Message: "percentage discount cannot exceed 100",
			Value:   value.String(),
			Rule:    "business_logic",
		})
	}

	if expiresAt != nil && !expiresAt.After(time.Now()) {
		errors = append(errors, ValidationError{
			Field:   "expires_at",
			Message: "must be in the future",
			Value:   expiresAt,
			Rule:    "future_date",
		})
	}

	return errors
}

// ValidateQuizAnswers checks a submission against the number of questions.
// Fewer answers than questions is allowed; missing answers score as wrong.
func (bv *BusinessValidator) ValidateQuizAnswers(answers []int, questionCount int) ValidationErrors {
	var errors ValidationErrors

	if questionCount == 0 {
		errors = append(errors, ValidationError{
			Field:   "questions",
			Message: "lesson has no questions",
			Rule:    "business_logic",
		})
		return errors
	}

	if len(answers) > questionCount {
		errors = append(errors, ValidationError{
			Field:   "answers",
			Message: fmt.Sprintf("expected at most %d answers", questionCount),
			Value:   len(answers),
			Rule:    "business_logic",
		})
	}

	return errors
}

// ValidCouponCode reports whether code matches the coupon_code rule
func (bv *BusinessValidator) ValidCouponCode(code string) bool {
	return couponCodePattern.MatchString(strings.TrimSpace(code))
}

// decimalValue lets string rules such as money see decimal fields
func decimalValue(field reflect.Value) interface{} {
	if d, ok := field.Interface().(decimal.Decimal); ok {
		return d.String()
	}
	return nil
}

// registerBusinessRules registers custom business rule validators
func (bv *BusinessValidator) registerBusinessRules() {
	bv.validate.RegisterValidation("coupon_code", func(fl validator.FieldLevel) bool {
		return bv.ValidCouponCode(fl.Field().String())
	})

	bv.validate.RegisterValidation("discount_type", func(fl validator.FieldLevel) bool {
		return models.DiscountType(fl.Field().String()).IsValid()
	})

	bv.validate.RegisterValidation("money", func(fl validator.FieldLevel) bool {
		d, err := decimal.NewFromString(fl.Field().String())
		if err != nil {
			return false
		}
		return !d.IsNegative() && d.Exponent() >= -2
	})

	bv.validate.RegisterValidation("storage_path", func(fl validator.FieldLevel) bool {
		p := strings.TrimSpace(fl.Field().String())
		if p == "" {
			return true
		}
		if strings.HasPrefix(p, "/") || strings.Contains(p, "..") {
			return false
		}
		return path.Clean(p) != "."
	})
}
