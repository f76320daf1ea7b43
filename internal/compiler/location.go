package compiler

import (
	"regexp"
	"strconv"
	"strings"

	"edge-redirector/internal/rules"
)

var (
	absolutePrefix = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.-]*://[^/]*/?`)
	backreference  = regexp.MustCompile(`\\([1-9])`)
)

// Segment is one piece of a rendered location: literal text, or a capture group
// when Group is non-zero.
type Segment struct {
	Literal string
	Group   int
}

// Location is a redirect target as a concatenation of segments.
type Location []Segment

// VCL renders the location as a string expression.
func (l Location) VCL() string {
	if len(l) == 0 {
		return `""`
	}
	parts := make([]string, len(l))
	for i, seg := range l {
		if seg.Group > 0 {
			parts[i] = "re.group." + strconv.Itoa(seg.Group)
			continue
		}
		parts[i] = Quote(seg.Literal)
	}
	return strings.Join(parts, " + ")
}

// Expand evaluates the location against the capture groups of the last regex
// match. groups[0] is the whole match; missing groups expand to nothing.
func (l Location) Expand(groups []string) string {
	var b strings.Builder
	for _, seg := range l {
		if seg.Group == 0 {
			b.WriteString(seg.Literal)
			continue
		}
		if seg.Group < len(groups) {
			b.WriteString(groups[seg.Group])
		}
	}
	return b.String()
}

// StripOrigin replaces a leading scheme://host/ with a single slash.
func StripOrigin(target string) string {
	return absolutePrefix.ReplaceAllLiteralString(target, "/")
}

// RenderLocation turns a redirect template into a Location. \N tokens become
// capture-group segments only when availableGroups is at least N; any other token
// stays literal and is returned in unresolved. Literal text is split on
// whitespace, which is dropped.
func RenderLocation(template string, relative bool, availableGroups int) (loc Location, unresolved []string) {
	if relative {
		template = StripOrigin(template)
	}

	literal := func(text string) {
		for _, field := range strings.Fields(text) {
			loc = append(loc, Segment{Literal: field})
		}
	}

	last := 0
	for _, m := range backreference.FindAllStringSubmatchIndex(template, -1) {
		n, _ := strconv.Atoi(template[m[2]:m[3]])
		if n > availableGroups {
			unresolved = append(unresolved, template[m[0]:m[1]])
			continue
		}
		literal(template[last:m[0]])
		loc = append(loc, Segment{Group: n})
		last = m[1]
	}
	literal(template[last:])

	return loc, unresolved
}

// captureGroups counts the capture groups declared by the regex matchers of a
// rule, taking the largest count among them. Escaped parentheses, character
// classes and non-capturing groups are not counted.
func captureGroups(r rules.Rule) int {
	most := 0
	for _, m := range r.Matchers {
		if m.Type != rules.MatchRegex {
			continue
		}
		_, alternatives := m.Split()
		for _, alt := range alternatives {
			if n := countGroups(alt); n > most {
				most = n
			}
		}
	}
	return most
}

func countGroups(pattern string) int {
	count := 0
	inClass := false
	for i := 0; i < len(pattern); i++ {
		switch c := pattern[i]; {
		case c == '\\':
			i++
		case inClass:
			if c == ']' {
				inClass = false
			}
		case c == '[':
			inClass = true
		case c == '(':
			if strings.HasPrefix(pattern[i+1:], "?") && !namedGroup(pattern[i+2:]) {
				continue
			}
			count++
		}
	}
	return count
}

// namedGroup reports whether the text after "(?" opens a named capture group:
// (?P<name>, (?<name> or (?'name'. Lookbehinds (?<= and (?<! do not capture.
func namedGroup(rest string) bool {
	switch {
	case strings.HasPrefix(rest, "P<"), strings.HasPrefix(rest, "'"):
		return true
	case strings.HasPrefix(rest, "<"):
		return !strings.HasPrefix(rest, "<=") && !strings.HasPrefix(rest, "<!")
	default:
		return false
	}
}
