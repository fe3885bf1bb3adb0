// Package validation checks control API input with validator/v10 and reports failures as
// domain validation errors keyed by JSON field name.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	domainerrors "github.com/listenupapp/listenup-sync/internal/errors"
)

// TagEntityID accepts remote entity ids. The same ids name files on disk, so path
// separators and dot segments are excluded.
const TagEntityID = "entityid"

var entityIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_:.-]{0,127}$`)

// Validator wraps go-playground/validator with domain error conversion.
type Validator struct {
	v *validator.Validate
}

// New creates a validator with the daemon's custom tags registered.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		switch name {
		case "":
			return fld.Name
		case "-":
			return ""
		}
		return name
	})

	// Registration only fails on an empty tag or nil func.
	_ = v.RegisterValidation(TagEntityID, func(fl validator.FieldLevel) bool {
		id := fl.Field().String()
		return entityIDPattern.MatchString(id) && !strings.Contains(id, "..")
	})

	return &Validator{v: v}
}

// Validate checks a request struct.
func (v *Validator) Validate(s any) error {
	if err := v.v.Struct(s); err != nil {
		return v.formatError(err, "")
	}
	return nil
}

// ValidateID checks a single entity id taken from outside a struct, such as a URL
// parameter. field names the id in the error details.
func (v *Validator) ValidateID(field, id string) error {
	if err := v.v.Var(id, "required,"+TagEntityID); err != nil {
		return v.formatError(err, field)
	}
	return nil
}

// formatError converts validator errors to a domain error with per-field messages.
// field overrides the name reported for Var checks, which carry none.
func (v *Validator) formatError(err error, field string) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	details := make(map[string]string, len(validationErrs))
	for _, e := range validationErrs {
		name := e.Field()
		if field != "" {
			name = field
		}
		details[name] = message(e)
	}

	if field != "" {
		return domainerrors.ValidationWithDetails("invalid "+field, details)
	}
	return domainerrors.ValidationWithDetails("validation failed", details)
}

func message(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case TagEntityID:
		return "must be an id of letters, digits, '_', ':', '.' or '-'"
	case "jwt":
		return "must be a JWT"
	case "max":
		return fmt.Sprintf("must not exceed %s characters", e.Param())
	case "min":
		return fmt.Sprintf("must be at least %s characters", e.Param())
	case "gte":
		return "must be greater than or equal to " + e.Param()
	case "lte":
		return "must be less than or equal to " + e.Param()
	case "oneof":
		return "must be one of: " + e.Param()
	default:
		return "is invalid"
	}
}
