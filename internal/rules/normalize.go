package rules

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

// Supported payload formats.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

var validate = validator.New()

var supportedTypes = strings.Join(lo.Map(MatcherTypes(), func(t MatcherType, _ int) string {
	return string(t)
}), ", ")

// Normalize parses payload according to format and returns the canonical, ordered
// rules that should be compiled. Disabled rules and rules of kinds other than
// EdgeRedirect are dropped.
func Normalize(format string, payload []byte) ([]Rule, error) {
	var (
		parsed []Rule
		err    error
	)

	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatJSON:
		format = FormatJSON
		parsed, err = parseJSON(payload)
	case FormatCSV:
		format = FormatCSV
		parsed, err = parseCSV(payload)
	default:
		return nil, &MalformedInputError{
			Format: format,
			Reason: fmt.Sprintf("format must be %q or %q", FormatJSON, FormatCSV),
			Err:    ErrUnknownFormat,
		}
	}
	if err != nil {
		return nil, err
	}

	compiled := lo.Filter(parsed, func(r Rule, _ int) bool {
		return !r.Disabled && r.Kind == KindEdgeRedirect
	})

	for _, r := range compiled {
		if err := validateRule(format, r); err != nil {
			return nil, err
		}
	}

	return compiled, nil
}

// validateRule checks only what the compiler needs: known matcher types and the
// name=value shape of query and cookie matchers.
func validateRule(format string, r Rule) error {
	if r.HasExactPath {
		return nil
	}

	for i, m := range r.Matchers {
		if err := validate.Struct(m); err != nil {
			return &MalformedInputError{
				Format: format,
				Rule:   r.ID,
				Reason: fmt.Sprintf("matcher %d has unsupported type %q (supported: %s)", i, m.Type, supportedTypes),
				Err:    err,
			}
		}
		if m.Named() && !strings.Contains(m.Value, "=") {
			return &MalformedInputError{
				Format: format,
				Rule:   r.ID,
				Reason: fmt.Sprintf("%s matcher %d must have the form name=value", m.Type, i),
			}
		}
	}

	return nil
}

// sanitizeWindow applies the window defaults: both bounds absent means no window,
// one bound absent means that side is unconstrained.
func sanitizeWindow(start, end *int64) *Window {
	if start == nil && end == nil {
		return nil
	}
	w := &Window{}
	if start != nil {
		w.Start = *start
	}
	if end != nil {
		w.End = *end
	}
	return w
}

// parseRelativeURL maps the authored useRelativeUrl value to a bool. The upstream
// product uses an enum; plain booleans are accepted too.
func parseRelativeURL(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "relative_url":
		return true
	default:
		return false
	}
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "y", "t":
		return true
	default:
		return false
	}
}
