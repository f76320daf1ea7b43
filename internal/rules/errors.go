package rules

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownFormat is returned when the format selector is missing or unrecognised
	ErrUnknownFormat = errors.New("unknown rule format")

	// ErrMissingMatchRules is returned when a JSON payload has no matchRules object
	ErrMissingMatchRules = errors.New("matchRules object is required")

	// ErrEmptyHeader is returned when a CSV payload has no header row
	ErrEmptyHeader = errors.New("csv header row is missing")
)

// MalformedInputError reports a payload that cannot be compiled at all.
// Rule and Line are optional context; Line is 1-based and only set for CSV input.
type MalformedInputError struct {
	Format string
	Rule   string
	Line   int
	Reason string
	Err    error
}

func (e *MalformedInputError) Error() string {
	msg := "malformed " + e.Format + " input"
	if e.Line > 0 {
		msg += fmt.Sprintf(" at line %d", e.Line)
	}
	if e.Rule != "" {
		msg += fmt.Sprintf(" (rule %s)", e.Rule)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedInputError) Unwrap() error {
	return e.Err
}

// IsMalformedInput reports whether err is, or wraps, a MalformedInputError.
func IsMalformedInput(err error) bool {
	var target *MalformedInputError
	return errors.As(err, &target)
}
