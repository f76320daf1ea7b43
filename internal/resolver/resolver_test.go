package resolver

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edge-redirector/internal/compiler"
)

var now = time.Unix(1750000000, 0)

func mustResolver(t *testing.T, format, payload string) *Resolver {
	t.Helper()
	res, err := compiler.CompilePayload(format, []byte(payload))
	require.NoError(t, err)
	r, err := New(res)
	require.NoError(t, err)
	return r
}

func mustRequest(t *testing.T, rawURL string) *Request {
	t.Helper()
	req, err := NewRequest(rawURL, now)
	require.NoError(t, err)
	return req
}

func TestResolve_TieBreakPrefersLowerID(t *testing.T) {
	table := `"5":{"type":"erMatchRule","matchURL":"/promo","redirectURL":"/from-table"}`
	cond := `"2":{"type":"erMatchRule","matches":[{"matchType":"path","matchValue":"/promo"}],"redirectURL":"/from-condition","statusCode":302}`

	for name, payload := range map[string]string{
		"table declared first":     `{"matchRules":{` + table + `,` + cond + `}}`,
		"condition declared first": `{"matchRules":{` + cond + `,` + table + `}}`,
	} {
		t.Run(name, func(t *testing.T) {
			d := mustResolver(t, "json", payload).Resolve(mustRequest(t, "https://www.example.com/promo"))

			assert.True(t, d.Matched)
			assert.Equal(t, SourceCondition, d.Source)
			assert.Equal(t, "2", d.RuleID)
			assert.Equal(t, 302, d.StatusCode)
			assert.Equal(t, "Found", d.Reason)
			assert.Equal(t, "/from-condition", d.Location)
		})
	}
}

func TestResolve_TableWinsWhenLowerOrEqual(t *testing.T) {
	payload := `{"matchRules":{
		"3":{"type":"erMatchRule","matchURL":"/promo","redirectURL":"/from-table"},
		"3a":{"type":"erMatchRule","matches":[{"matchType":"path","matchValue":"/promo"}],"redirectURL":"/from-condition"}
	}}`

	d := mustResolver(t, "json", payload).Resolve(mustRequest(t, "https://www.example.com/promo"))
	assert.Equal(t, SourceTable, d.Source)
	assert.Equal(t, "3", d.RuleID)
	assert.Equal(t, "/from-table", d.Location)
	assert.Equal(t, "Moved Permanently", d.Reason)
}

func TestResolve_FirstMatchingBlockWins(t *testing.T) {
	payload := `{"matchRules":{
		"9":{"type":"erMatchRule","matches":[{"matchType":"path","matchValue":"/a*"}],"redirectURL":"/nine"},
		"1":{"type":"erMatchRule","matches":[{"matchType":"path","matchValue":"/abc"}],"redirectURL":"/one"}
	}}`

	d := mustResolver(t, "json", payload).Resolve(mustRequest(t, "https://www.example.com/abc"))
	assert.Equal(t, "9", d.RuleID)
	assert.Equal(t, "/nine", d.Location)
}

func TestResolve_NoMatch(t *testing.T) {
	payload := `{"matchRules":{"1":{"type":"erMatchRule","matchURL":"/a","redirectURL":"/b"}}}`

	d := mustResolver(t, "json", payload).Resolve(mustRequest(t, "https://www.example.com/other"))
	assert.False(t, d.Matched)
	assert.Equal(t, Decision{}, d)
}

func TestResolve_CaptureGroupsAndQueryString(t *testing.T) {
	payload := `{"matchRules":{"1":{
		"type":"erMatchRule",
		"matches":[{"matchType":"regex","matchValue":"^https://www.example.com/blog/(\\d+)/(.*)"}],
		"redirectURL":"https://news.example.com/\\2?year=\\1",
		"useRelativeUrl":"relative_url",
		"useIncomingQueryString":true
	}}}`

	d := mustResolver(t, "json", payload).Resolve(mustRequest(t, "https://www.example.com/blog/2024/hello?utm=x"))
	require.True(t, d.Matched)
	assert.Equal(t, "/hello?year=2024?utm=x", d.Location)
}

func TestResolve_WindowOnTableEntry(t *testing.T) {
	future := `{"matchRules":{"1":{"type":"erMatchRule","matchURL":"/a","redirectURL":"/b","start":1800000000}}}`
	past := `{"matchRules":{"1":{"type":"erMatchRule","matchURL":"/a","redirectURL":"/b","end":1700000000}}}`
	open := `{"matchRules":{"1":{"type":"erMatchRule","matchURL":"/a","redirectURL":"/b","start":1700000000}}}`

	req := mustRequest(t, "https://www.example.com/a")
	assert.False(t, mustResolver(t, "json", future).Resolve(req).Matched)
	assert.False(t, mustResolver(t, "json", past).Resolve(req).Matched)
	assert.True(t, mustResolver(t, "json", open).Resolve(req).Matched)
}

func TestResolve_WindowOnCondition(t *testing.T) {
	payload := `{"matchRules":{"1":{"type":"erMatchRule",
		"matches":[{"matchType":"path","matchValue":"/a"}],"redirectURL":"/b","start":1700000000,"end":1760000000}}}`
	r := mustResolver(t, "json", payload)

	inside := mustRequest(t, "https://www.example.com/a")
	assert.True(t, r.Resolve(inside).Matched)

	after, err := NewRequest("https://www.example.com/a", time.Unix(1760000000, 0))
	require.NoError(t, err)
	assert.False(t, r.Resolve(after).Matched)
}

func TestResolve_QueryCookieExtensionAndNegation(t *testing.T) {
	payload := `{"matchRules":{
		"1":{"type":"erMatchRule","matches":[{"matchType":"cookie","matchValue":"lang=fr"}],"redirectURL":"/fr"},
		"2":{"type":"erMatchRule","matches":[{"matchType":"query","matchValue":"src=mail news"}],"redirectURL":"/campaign"},
		"3":{"type":"erMatchRule","matches":[{"matchType":"extension","matchValue":"pdf"},{"matchType":"hostname","matchValue":"cdn.example.com","negate":true}],"redirectURL":"/docs"}
	}}`
	r := mustResolver(t, "json", payload)

	req := mustRequest(t, "https://www.example.com/x")
	req, err := req.WithCookieHeader("lang=fr; theme=dark")
	require.NoError(t, err)
	assert.Equal(t, "/fr", r.Resolve(req).Location)

	assert.Equal(t, "/campaign", r.Resolve(mustRequest(t, "https://www.example.com/x?src=news")).Location)
	assert.Equal(t, "/docs", r.Resolve(mustRequest(t, "https://www.example.com/files/a.pdf")).Location)
	assert.False(t, r.Resolve(mustRequest(t, "https://cdn.example.com/files/a.pdf")).Matched)
}

func TestResolve_QueryWithMalformedPair(t *testing.T) {
	payload := `{"matchRules":{"2":{"type":"erMatchRule","matches":[{"matchType":"query","matchValue":"src=mail"}],"redirectURL":"/campaign"}}}`
	r := mustResolver(t, "json", payload)

	for _, rawURL := range []string{
		"https://www.example.com/x?bad=%zz&src=mail",
		"https://www.example.com/x?src=mail&a=1;b=2",
	} {
		d := r.Resolve(mustRequest(t, rawURL))
		assert.True(t, d.Matched, rawURL)
		assert.Equal(t, "/campaign", d.Location, rawURL)
	}
}

func TestResolve_EmptyQueryValueMeansAbsent(t *testing.T) {
	payload := `{"matchRules":{"1":{"type":"erMatchRule","matches":[` +
		`{"matchType":"path","matchValue":"/promo"},{"matchType":"query","matchValue":"utm="}],"redirectURL":"/sale"}}}`
	r := mustResolver(t, "json", payload)

	assert.True(t, r.Resolve(mustRequest(t, "https://www.example.com/promo")).Matched)
	assert.False(t, r.Resolve(mustRequest(t, "https://www.example.com/promo?utm=mail")).Matched)
	assert.False(t, r.Resolve(mustRequest(t, "https://www.example.com/other")).Matched)
}

func TestResolve_CSVMatchesJSON(t *testing.T) {
	csvPayload := "id,path,regex,redirectURL\n4,/old,,/new\n"
	jsonPayload := `{"matchRules":{"4":{"type":"erMatchRule","matches":[{"matchType":"path","matchValue":"/old"}],"redirectURL":"/new"}}}`

	req := mustRequest(t, "https://www.example.com/old")
	assert.Equal(t,
		mustResolver(t, "json", jsonPayload).Resolve(req),
		mustResolver(t, "csv", csvPayload).Resolve(req))
}

func TestNew_UnsupportedPattern(t *testing.T) {
	payload := `{"matchRules":{"1":{"type":"erMatchRule","matches":[{"matchType":"regex","matchValue":"^/(?=x)"}],"redirectURL":"/b"}}}`
	res, err := compiler.CompilePayload("json", []byte(payload))
	require.NoError(t, err)

	_, err = New(res)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedPattern))
}

func TestNewRequest(t *testing.T) {
	req, err := NewRequest("https://www.example.com", now)
	require.NoError(t, err)
	assert.Equal(t, "/", req.Path)
	assert.Equal(t, "www.example.com", req.Host)

	_, err = NewRequest("/relative/only", now)
	assert.True(t, errors.Is(err, ErrInvalidURL))
}
