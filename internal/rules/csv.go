package rules

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

// headerAliases renames exported column names to canonical field names.
var headerAliases = map[string]string{
	"utcStartTime": "start",
	"utcEndTime":   "end",
}

// csvMatcherColumns are the flat columns reshaped into matchers, in the order the
// matchers are emitted.
var csvMatcherColumns = []MatcherType{
	MatchPath,
	MatchQuery,
	MatchRegex,
	MatchHostname,
	MatchCookie,
	MatchExtension,
}

// parseCSV reads an exported rule sheet. Lines starting with # are comments, the
// first remaining line is the header and every following line is one rule.
func parseCSV(payload []byte) ([]Rule, error) {
	scanner := bufio.NewScanner(bytes.NewReader(payload))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var (
		header  []string
		parsed  []Rule
		lineNum int
		rowNum  int
	)

	for scanner.Scan() {
		lineNum++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.HasPrefix(line, "#") || strings.TrimSpace(line) == "" {
			continue
		}

		cells := splitCells(line)

		if header == nil {
			header = lo.Map(cells, func(name string, _ int) string {
				return canonicalColumn(name)
			})
			if len(lo.Compact(header)) == 0 {
				return nil, malformedCSV(lineNum, "", ErrEmptyHeader)
			}
			continue
		}

		if len(cells) > len(header) {
			return nil, malformedCSV(lineNum, fmt.Sprintf("row has %d cells but the header has %d columns", len(cells), len(header)), nil)
		}

		rowNum++
		row := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(cells) && name != "" {
				row[name] = cells[i]
			}
		}

		rule, err := csvRule(row, rowNum, lineNum)
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, rule)
	}

	if err := scanner.Err(); err != nil {
		return nil, malformedCSV(lineNum, "read failed", err)
	}
	if header == nil {
		return nil, malformedCSV(0, "", ErrEmptyHeader)
	}

	return parsed, nil
}

// splitCells splits one line on commas outside quotes. Quote characters only
// toggle the quoted state and are dropped. A cell that still contains commas is a
// list; its elements are trimmed and joined with single spaces, the separator the
// matchers use for alternatives.
func splitCells(line string) []string {
	var (
		cells    []string
		current  strings.Builder
		inQuotes bool
	)

	flush := func() {
		cells = append(cells, normalizeCell(current.String()))
		current.Reset()
	}

	for _, r := range line {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == ',' && !inQuotes:
			flush()
		default:
			current.WriteRune(r)
		}
	}
	flush()

	return cells
}

func normalizeCell(cell string) string {
	if !strings.Contains(cell, ",") {
		return strings.TrimSpace(cell)
	}
	items := lo.Map(strings.Split(cell, ","), func(item string, _ int) string {
		return strings.TrimSpace(item)
	})
	return strings.Join(lo.Compact(items), " ")
}

func canonicalColumn(name string) string {
	name = strings.TrimSpace(name)
	name = strings.TrimPrefix(name, "result.")
	if alias, ok := headerAliases[name]; ok {
		return alias
	}
	return name
}

func csvRule(row map[string]string, rowNum, lineNum int) (Rule, error) {
	rule := Rule{
		ID:                     row["id"],
		Kind:                   KindEdgeRedirect,
		Disabled:               parseBool(row["disabled"]),
		RedirectTemplate:       row["redirectURL"],
		StatusCode:             DefaultStatusCode,
		UseIncomingQueryString: parseBool(row["useIncomingQueryString"]),
		UseRelativeURL:         parseRelativeURL(row["useRelativeUrl"]),
	}
	if rule.ID == "" {
		rule.ID = strconv.Itoa(rowNum)
	}
	if kind := row["type"]; kind != "" {
		rule.Kind = Kind(kind)
	}
	if path := row["matchURL"]; path != "" {
		rule.ExactPath = path
		rule.HasExactPath = true
	}

	if code := row["statusCode"]; code != "" {
		n, err := strconv.Atoi(code)
		if err != nil {
			return Rule{}, malformedCSV(lineNum, "statusCode must be an integer", err)
		}
		rule.StatusCode = n
	}

	var bounds [2]*int64
	for i, column := range []string{"start", "end"} {
		text := row[column]
		if text == "" {
			continue
		}
		n, err := parseTimestamp(text)
		if err != nil {
			return Rule{}, malformedCSV(lineNum, column+" must be a unix timestamp", err)
		}
		bounds[i] = &n
	}
	rule.Window = sanitizeWindow(bounds[0], bounds[1])

	for _, typ := range csvMatcherColumns {
		value := row[string(typ)]
		if value == "" {
			continue
		}
		m := Matcher{Type: typ}
		if strings.HasPrefix(value, "!") {
			m.Negate = true
			value = value[1:]
		}
		// Case sensitivity is carried along but nothing downstream reads it.
		if strings.HasPrefix(value, ":") {
			m.CaseSensitive = true
			value = value[1:]
		}
		m.Value = value
		rule.Matchers = append(rule.Matchers, m)
	}

	return rule, nil
}

func malformedCSV(line int, reason string, err error) *MalformedInputError {
	return &MalformedInputError{Format: FormatCSV, Line: line, Reason: reason, Err: err}
}
