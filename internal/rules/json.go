package rules

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// scalar captures a JSON scalar (string, number or bool) as text. Authoring tools
// disagree on whether flags and numbers are quoted, so both forms are accepted.
type scalar struct {
	text string
	set  bool
}

func (s *scalar) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return err
	}

	switch t := v.(type) {
	case string:
		s.text = t
	case bool:
		s.text = strconv.FormatBool(t)
	case json.Number:
		s.text = t.String()
	default:
		return fmt.Errorf("expected a scalar value, got %s", string(b))
	}
	s.set = true
	return nil
}

func (s scalar) flag() bool {
	return s.set && parseBool(s.text)
}

type jsonMatcher struct {
	MatchType     string `json:"matchType"`
	MatchValue    string `json:"matchValue"`
	Negate        scalar `json:"negate"`
	CaseSensitive scalar `json:"caseSensitive"`
}

type jsonRule struct {
	Type                   string        `json:"type"`
	Disabled               scalar        `json:"disabled"`
	MatchURL               *string       `json:"matchURL"`
	Matches                []jsonMatcher `json:"matches"`
	RedirectURL            string        `json:"redirectURL"`
	StatusCode             scalar        `json:"statusCode"`
	UseIncomingQueryString scalar        `json:"useIncomingQueryString"`
	UseRelativeURL         scalar        `json:"useRelativeUrl"`
	Start                  scalar        `json:"start"`
	End                    scalar        `json:"end"`
}

// parseJSON decodes {"matchRules": {id: rule, ...}} keeping the declaration order
// of the ids, which is the compile order.
func parseJSON(payload []byte) ([]Rule, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))

	if err := expectDelim(dec, '{'); err != nil {
		return nil, malformedJSON("", "payload must be a JSON object", err)
	}

	var (
		parsed []Rule
		found  bool
	)
	for dec.More() {
		key, err := objectKey(dec)
		if err != nil {
			return nil, malformedJSON("", "invalid object key", err)
		}

		if key != "matchRules" {
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil, malformedJSON("", fmt.Sprintf("invalid value for %q", key), err)
			}
			continue
		}

		found = true
		parsed, err = decodeMatchRules(dec)
		if err != nil {
			return nil, err
		}
	}

	if err := expectDelim(dec, '}'); err != nil {
		return nil, malformedJSON("", "unterminated object", err)
	}
	if !found {
		return nil, malformedJSON("", "", ErrMissingMatchRules)
	}

	return parsed, nil
}

func decodeMatchRules(dec *json.Decoder) ([]Rule, error) {
	if err := expectDelim(dec, '{'); err != nil {
		return nil, malformedJSON("", "matchRules must be an object", err)
	}

	var parsed []Rule
	index := make(map[string]int)
	for dec.More() {
		id, err := objectKey(dec)
		if err != nil {
			return nil, malformedJSON("", "invalid rule id", err)
		}

		var raw jsonRule
		if err := dec.Decode(&raw); err != nil {
			return nil, malformedJSON(id, "invalid rule", err)
		}

		rule, err := raw.canonical(id)
		if err != nil {
			return nil, err
		}

		// A repeated key keeps its first position and its last value.
		if i, ok := index[id]; ok {
			parsed[i] = rule
			continue
		}
		index[id] = len(parsed)
		parsed = append(parsed, rule)
	}

	if err := expectDelim(dec, '}'); err != nil {
		return nil, malformedJSON("", "unterminated matchRules object", err)
	}
	return parsed, nil
}

func (raw jsonRule) canonical(id string) (Rule, error) {
	rule := Rule{
		ID:                     id,
		Kind:                   Kind(raw.Type),
		Disabled:               raw.Disabled.flag(),
		RedirectTemplate:       raw.RedirectURL,
		StatusCode:             DefaultStatusCode,
		UseIncomingQueryString: raw.UseIncomingQueryString.flag(),
		UseRelativeURL:         raw.UseRelativeURL.set && parseRelativeURL(raw.UseRelativeURL.text),
	}

	if raw.MatchURL != nil && *raw.MatchURL != "" {
		rule.ExactPath = *raw.MatchURL
		rule.HasExactPath = true
	}

	if raw.StatusCode.set && strings.TrimSpace(raw.StatusCode.text) != "" {
		code, err := strconv.Atoi(strings.TrimSpace(raw.StatusCode.text))
		if err != nil {
			return Rule{}, malformedJSON(id, "statusCode must be an integer", err)
		}
		rule.StatusCode = code
	}

	start, err := raw.Start.timestamp()
	if err != nil {
		return Rule{}, malformedJSON(id, "start must be a unix timestamp", err)
	}
	end, err := raw.End.timestamp()
	if err != nil {
		return Rule{}, malformedJSON(id, "end must be a unix timestamp", err)
	}
	rule.Window = sanitizeWindow(start, end)

	for _, m := range raw.Matches {
		rule.Matchers = append(rule.Matchers, Matcher{
			Type:          MatcherType(m.MatchType),
			Value:         m.MatchValue,
			Negate:        m.Negate.flag(),
			CaseSensitive: m.CaseSensitive.flag(),
		})
	}

	return rule, nil
}

func (s scalar) timestamp() (*int64, error) {
	text := strings.TrimSpace(s.text)
	if !s.set || text == "" {
		return nil, nil
	}
	n, err := parseTimestamp(text)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func parseTimestamp(text string) (int64, error) {
	if n, err := strconv.ParseInt(text, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, err
	}
	return int64(f), nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

func objectKey(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", err
	}
	key, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("expected string key, got %v", tok)
	}
	return key, nil
}

func malformedJSON(rule, reason string, err error) *MalformedInputError {
	return &MalformedInputError{Format: FormatJSON, Rule: rule, Reason: reason, Err: err}
}
