package api

import (
	stderrors "errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/felixgeelhaar/tirecode/internal/errors"
)

var speedIndexPattern = regexp.MustCompile(`^[A-Z]$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("speedindex", func(fl validator.FieldLevel) bool {
		return speedIndexPattern.MatchString(fl.Field().String())
	})
	return v
}

// validateRequest checks s against its validate tags.
func validateRequest(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !stderrors.As(err, &fieldErrs) {
		return errors.Wrap(errors.ErrCodeValidation, "invalid request", err)
	}

	msgs := make([]string, 0, len(fieldErrs))
	e := errors.NewValidationError("")
	for _, fe := range fieldErrs {
		msg := msgForTag(fe)
		msgs = append(msgs, fmt.Sprintf("%s %s", fe.Field(), msg))
		e.WithDetail(fe.Field(), msg)
	}
	e.Message = "invalid request: " + strings.Join(msgs, "; ")
	return e
}

func msgForTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "speedindex":
		return "must be a single uppercase letter"
	default:
		return fmt.Sprintf("failed on '%s' validation", fe.Tag())
	}
}
