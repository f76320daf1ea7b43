package compiler

import "strings"

// Quote renders s as a VCL string literal.
//
// Short strings ("...") decode %XX escapes and cannot hold a double quote, so any
// text containing % or " uses the long form {"..."}, which is taken verbatim. If
// the text itself contains the long-form terminator a heredoc-style delimiter is
// added.
func Quote(s string) string {
	if !strings.ContainsAny(s, `%"`) {
		return `"` + s + `"`
	}

	delim := ""
	for strings.Contains(s, `"`+delim+`}`) {
		delim += "x"
	}
	return "{" + delim + `"` + s + `"` + delim + "}"
}
