package content

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Field limits
const (
	MaxTextLength   = 10000
	MaxTitleLength  = 150
	MaxReasonLength = 500
	MaxUserIDLength = 64
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their wire names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// translate turns the first validator failure into a ValidationError
func translate(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err
	}
	fe := fieldErrs[0]
	var reason string
	switch fe.Tag() {
	case "required":
		reason = "is required"
	case "max":
		reason = fmt.Sprintf("must be at most %s characters", fe.Param())
	case "uuid":
		reason = "must be a UUID"
	default:
		reason = fmt.Sprintf("failed %q check", fe.Tag())
	}
	return &ValidationError{Field: fe.Field(), Reason: reason}
}

// CheckID validates a node or saved lineage id
func CheckID(field, id string) error {
	if id == "" {
		return Invalid(field, "is required")
	}
	if _, err := uuid.Parse(id); err != nil {
		return Invalid(field, "must be a UUID")
	}
	return nil
}

// CheckUserID validates a user reference
func CheckUserID(field, id string) error {
	if strings.TrimSpace(id) == "" {
		return Invalid(field, "is required")
	}
	if len(id) > MaxUserIDLength {
		return Invalid(field, fmt.Sprintf("must be at most %d characters", MaxUserIDLength))
	}
	return nil
}

func checkText(text string) error {
	if strings.TrimSpace(text) == "" {
		return Invalid("text", "must not be empty")
	}
	return nil
}
