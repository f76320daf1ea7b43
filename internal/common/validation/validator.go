// Package validation accumulates field errors so callers can report every
// problem at once.
package validation

import (
	"fmt"
	"net/url"
	"slices"
	"strings"

	"edge-redirector/internal/common/errors"
)

// Validator accumulates validation errors
type Validator struct {
	errors []string
	prefix string
}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// NewValidatorWithPrefix creates a new validator with a prefix for error messages
func NewValidatorWithPrefix(prefix string) *Validator {
	return &Validator{prefix: prefix}
}

// Check records the message when ok is false.
func (v *Validator) Check(ok bool, format string, args ...interface{}) *Validator {
	if !ok {
		v.addError(format, args...)
	}
	return v
}

// RequireString validates that a string is not empty
func (v *Validator) RequireString(value, name string) *Validator {
	return v.Check(strings.TrimSpace(value) != "", "%s is required", name)
}

// RequirePositive validates that a number is positive
func (v *Validator) RequirePositive(value int64, name string) *Validator {
	return v.Check(value > 0, "%s must be a positive number", name)
}

// RequireRange validates that a value is within a range
func (v *Validator) RequireRange(value, min, max int, name string) *Validator {
	return v.Check(value >= min && value <= max, "%s must be a number between %d and %d", name, min, max)
}

// RequireHTTPURL validates that a string is an absolute http or https URL
func (v *Validator) RequireHTTPURL(value, name string) *Validator {
	u, err := url.Parse(value)
	ok := err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
	return v.Check(ok, "%s must be an absolute http(s) URL", name)
}

// RequireURLScheme validates that a string is a URL with a host and one of the
// given schemes
func (v *Validator) RequireURLScheme(value string, schemes []string, name string) *Validator {
	u, err := url.Parse(value)
	ok := err == nil && u.Host != "" && slices.Contains(schemes, u.Scheme)
	return v.Check(ok, "%s must be a %s:// URL", name, schemes[0])
}

// RequireOneOf validates that a value is one of the allowed values
func (v *Validator) RequireOneOf(value string, allowed []string, name string) *Validator {
	for _, a := range allowed {
		if value == a {
			return v
		}
	}
	quoted := make([]string, len(allowed))
	for i, a := range allowed {
		quoted[i] = "'" + a + "'"
	}
	v.addError("%s must be one of %s", name, strings.Join(quoted, ", "))
	return v
}

// ValidateIf runs fn against v when condition is true
func (v *Validator) ValidateIf(condition bool, fn func(*Validator)) *Validator {
	if condition {
		fn(v)
	}
	return v
}

func (v *Validator) addError(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if v.prefix != "" {
		msg = v.prefix + ": " + msg
	}
	v.errors = append(v.errors, msg)
}

// HasErrors returns true if there are validation errors
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// Errors returns all recorded messages in order
func (v *Validator) Errors() []string {
	return v.errors
}

// Error returns a validation AppError listing every problem, or nil.
func (v *Validator) Error() error {
	if !v.HasErrors() {
		return nil
	}
	return errors.ValidationError(strings.Join(v.errors, "; "))
}
