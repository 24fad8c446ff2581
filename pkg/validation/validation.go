package validation

import (
	"math"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/medflow/pharmacy-service/pkg/errors"
	"github.com/shopspring/decimal"
)

// maxQuantity is the largest quantity an INTEGER column accepts
const maxQuantity = math.MaxInt32

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	// Report JSON field names so details line up with the request payload
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	// Money and quantities travel as decimals; numeric tags see them as float64
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})

	_ = v.RegisterValidation("positive_int", func(fl validator.FieldLevel) bool {
		// Decimals reach here already converted to float64; check the exact value instead
		if d, ok := rawDecimal(fl); ok {
			return PositiveQuantity(d)
		}
		f := fl.Field()
		switch f.Kind() {
		case reflect.Float32, reflect.Float64:
			n := f.Float()
			return n >= 1 && n <= maxQuantity && n == math.Trunc(n)
		case reflect.Int, reflect.Int32, reflect.Int64:
			n := f.Int()
			return n >= 1 && n <= maxQuantity
		default:
			return false
		}
	})

	return v
}

// Validate validates a struct using go-playground/validator
func Validate(v interface{}) error {
	if err := validate.Struct(v); err != nil {
		validationErrors, ok := err.(validator.ValidationErrors)
		if !ok {
			return errors.BadRequest("invalid payload")
		}
		details := make(map[string]string)

		for _, e := range validationErrors {
			details[e.Field()] = formatValidationError(e)
		}

		return errors.Validation(details)
	}
	return nil
}

// rawDecimal returns the unconverted decimal behind the field being validated
func rawDecimal(fl validator.FieldLevel) (decimal.Decimal, bool) {
	parent := fl.Parent()
	if parent.Kind() != reflect.Struct {
		return decimal.Decimal{}, false
	}
	raw := parent.FieldByName(fl.StructFieldName())
	if raw.Kind() == reflect.Ptr {
		if raw.IsNil() {
			return decimal.Decimal{}, false
		}
		raw = raw.Elem()
	}
	if !raw.IsValid() || !raw.CanInterface() {
		return decimal.Decimal{}, false
	}
	d, ok := raw.Interface().(decimal.Decimal)
	return d, ok
}

// PositiveQuantity checks q is a whole number between 1 and the column maximum
func PositiveQuantity(q decimal.Decimal) bool {
	return q.IsInteger() && q.GreaterThanOrEqual(decimal.NewFromInt(1)) &&
		q.LessThanOrEqual(decimal.NewFromInt(maxQuantity))
}

func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "this field is required"
	case "min":
		return "must be at least " + e.Param() + " characters"
	case "max":
		return "must be at most " + e.Param() + " characters"
	case "gte":
		return "must be greater than or equal to " + e.Param()
	case "lte":
		return "must be less than or equal to " + e.Param()
	case "uuid":
		return "must be a valid UUID"
	case "datetime":
		return "must be a date in " + e.Param() + " format"
	case "positive_int":
		return "must be a positive integer"
	case "oneof":
		return "must be one of: " + e.Param()
	default:
		return "invalid value"
	}
}
