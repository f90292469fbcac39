package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var ErrInvalidConfig = errors.New("invalid configuration")

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// report fields by their env / json name instead of the Go field name
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"env", "json"} {
			name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
			if name != "" && name != "-" {
				return name
			}
		}
		return f.Name
	})
	return v
}

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

// Validate checks validate:"..." struct tags and joins every failure into
// one error wrapping ErrInvalidConfig.
func Validate(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return err
	}
	msgs := make([]string, 0, len(ves))
	for _, fe := range ves {
		msgs = append(msgs, fieldError(fe).Error())
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
}

func fieldError(fe validator.FieldError) ValidationError {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return ValidationError{Field: field, Message: "is required"}
	case "min":
		return ValidationError{Field: field, Message: "must be at least " + fe.Param()}
	case "max":
		return ValidationError{Field: field, Message: "must be at most " + fe.Param()}
	case "oneof":
		return ValidationError{Field: field, Message: "must be one of: " + fe.Param()}
	case "gte":
		return ValidationError{Field: field, Message: "must be >= " + fe.Param()}
	case "lte":
		return ValidationError{Field: field, Message: "must be <= " + fe.Param()}
	case "startswith":
		return ValidationError{Field: field, Message: "must start with " + fe.Param()}
	default:
		return ValidationError{Field: field, Message: "is invalid"}
	}
}
