// Package rules holds the canonical redirect rule model and the normalizer that
// turns authored JSON or CSV rule sets into it.
//
// Every optional field of the authored input is resolved here, once. Code further
// down the pipeline (the compiler and the resolver) never has to ask whether a
// field was present: defaults are applied and windows are sanitised before a Rule
// leaves this package.
package rules

import (
	"strconv"
	"strings"
)

// Kind is the authored rule type.
type Kind string

const (
	// KindEdgeRedirect is the only kind that is compiled.
	KindEdgeRedirect Kind = "erMatchRule"
	// KindForwardRewrite is accepted and ignored.
	KindForwardRewrite Kind = "frMatchRule"
	// KindAudienceSegmentation is accepted and ignored.
	KindAudienceSegmentation Kind = "asMatchRule"
)

// MatcherType selects the request attribute a matcher looks at.
type MatcherType string

const (
	MatchRegex     MatcherType = "regex"
	MatchQuery     MatcherType = "query"
	MatchHostname  MatcherType = "hostname"
	MatchPath      MatcherType = "path"
	MatchCookie    MatcherType = "cookie"
	MatchExtension MatcherType = "extension"
)

// DefaultStatusCode is used when a rule does not declare one.
const DefaultStatusCode = 301

// MatcherTypes lists the supported matcher types in a stable order.
func MatcherTypes() []MatcherType {
	return []MatcherType{MatchRegex, MatchQuery, MatchHostname, MatchPath, MatchCookie, MatchExtension}
}

// Matcher is one condition of a pattern rule.
type Matcher struct {
	Type          MatcherType `json:"matchType" validate:"required,oneof=regex query hostname path cookie extension"`
	Value         string      `json:"matchValue"`
	Negate        bool        `json:"negate,omitempty"`
	CaseSensitive bool        `json:"caseSensitive,omitempty"`
}

// Named reports whether the matcher value has the name=alternatives form.
func (m Matcher) Named() bool {
	return m.Type == MatchQuery || m.Type == MatchCookie
}

// Split returns the parameter name (empty for unnamed matchers) and the
// space-separated alternatives of the matcher value.
func (m Matcher) Split() (name string, alternatives []string) {
	value := m.Value
	if m.Named() {
		name, value, _ = strings.Cut(value, "=")
	}
	return name, strings.Fields(value)
}

// Window is an active time range in unix seconds. A zero bound is unconstrained.
type Window struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// Active reports whether the window constrains anything at all.
func (w *Window) Active() bool {
	return w != nil && (w.Start != 0 || w.End != 0)
}

// Contains reports whether the unix time now falls inside the window.
// Both bounds are exclusive, matching the time.is_after checks in the generated VCL.
func (w *Window) Contains(now int64) bool {
	if !w.Active() {
		return true
	}
	if w.Start != 0 && !(now > w.Start) {
		return false
	}
	if w.End != 0 && !(w.End > now) {
		return false
	}
	return true
}

// Rule is one canonical redirect rule.
type Rule struct {
	ID                     string    `json:"id"`
	Kind                   Kind      `json:"type"`
	Disabled               bool      `json:"disabled,omitempty"`
	ExactPath              string    `json:"matchURL,omitempty"`
	HasExactPath           bool      `json:"-"`
	Matchers               []Matcher `json:"matches,omitempty"`
	RedirectTemplate       string    `json:"redirectURL"`
	StatusCode             int       `json:"statusCode"`
	UseIncomingQueryString bool      `json:"useIncomingQueryString"`
	UseRelativeURL         bool      `json:"useRelativeUrl"`
	Window                 *Window   `json:"window,omitempty"`
}

// QueryStringFlag is the token stored for useIncomingQueryString.
func (r Rule) QueryStringFlag() string {
	if r.UseIncomingQueryString {
		return "useQS"
	}
	return "noQS"
}

// Atoi parses an optional sign and the leading decimal digits of s, the way
// std.atoi reads a rule id as its priority. Anything else yields 0.
func Atoi(s string) int64 {
	s = strings.TrimSpace(s)
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0
	}
	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		return 0
	}
	return n
}
