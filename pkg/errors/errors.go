package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// GenericSecurityMessage is the only text a SecurityViolation shows to callers
const GenericSecurityMessage = "Security check failed. Please try again."

// ValidationError represents input validation errors
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// ValidationErrors is a list of field-level validation failures
type ValidationErrors []*ValidationError

func (e ValidationErrors) Error() string {
	parts := make([]string, 0, len(e))
	for _, v := range e {
		parts = append(parts, v.Error())
	}
	return strings.Join(parts, "; ")
}

// Fields maps each failing field to its message, for form display
func (e ValidationErrors) Fields() map[string]string {
	out := make(map[string]string, len(e))
	for _, v := range e {
		out[v.Field] = v.Message
	}
	return out
}

// FromValidator converts validator/v10 failures to ValidationErrors.
// Errors of any other kind are returned unchanged.
func FromValidator(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	out := make(ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, NewValidationError(fe.Field(), describeTag(fe)))
	}
	return out
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid e-mail address"
	case "url":
		return "must be a valid URL"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "min":
		return "must be at least " + fe.Param()
	default:
		return fmt.Sprintf("failed '%s' check", fe.Tag())
	}
}

// SecurityViolation aborts a request that failed a security check (CSRF state, signature).
// Error() never includes Reason; Reason is for logs only.
type SecurityViolation struct {
	Check  string
	Reason string
}

func (e *SecurityViolation) Error() string {
	return GenericSecurityMessage
}

// NewSecurityViolation creates a security violation for check
func NewSecurityViolation(check, reason string) *SecurityViolation {
	return &SecurityViolation{Check: check, Reason: reason}
}

// IsSecurityViolation reports whether err's chain holds a SecurityViolation
func IsSecurityViolation(err error) bool {
	var sv *SecurityViolation
	return errors.As(err, &sv)
}

// IsValidation reports whether err's chain holds a ValidationError or ValidationErrors
func IsValidation(err error) bool {
	var single *ValidationError
	var list ValidationErrors
	return errors.As(err, &single) || errors.As(err, &list)
}
