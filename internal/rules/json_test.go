package rules

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJSON_PreservesDeclarationOrder(t *testing.T) {
	payload := `{"matchRules":{
		"30":{"type":"erMatchRule","matchURL":"/c","redirectURL":"/3"},
		"4":{"type":"erMatchRule","matchURL":"/a","redirectURL":"/1"},
		"100":{"type":"erMatchRule","matchURL":"/b","redirectURL":"/2"}
	}}`

	got, err := parseJSON([]byte(payload))
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.Equal(t, "30", got[0].ID)
	assert.Equal(t, "4", got[1].ID)
	assert.Equal(t, "100", got[2].ID)
}

func TestParseJSON_Defaults(t *testing.T) {
	payload := `{"matchRules":{"r1":{"type":"erMatchRule","matchURL":"/old","redirectURL":"/new"}}}`

	got, err := parseJSON([]byte(payload))
	require.NoError(t, err)
	require.Len(t, got, 1)

	r := got[0]
	assert.Equal(t, "r1", r.ID)
	assert.Equal(t, KindEdgeRedirect, r.Kind)
	assert.True(t, r.HasExactPath)
	assert.Equal(t, "/old", r.ExactPath)
	assert.Equal(t, "/new", r.RedirectTemplate)
	assert.Equal(t, DefaultStatusCode, r.StatusCode)
	assert.False(t, r.UseIncomingQueryString)
	assert.False(t, r.UseRelativeURL)
	assert.Nil(t, r.Window)
	assert.Equal(t, "noQS", r.QueryStringFlag())
}

func TestParseJSON_NullOrEmptyMatchURLIsPatternRule(t *testing.T) {
	payload := `{"matchRules":{
		"1":{"type":"erMatchRule","matchURL":null,"matches":[{"matchType":"path","matchValue":"/x"}],"redirectURL":"/y"},
		"2":{"type":"erMatchRule","matchURL":"","matches":[{"matchType":"path","matchValue":"/x"}],"redirectURL":"/y"},
		"3":{"type":"erMatchRule","matches":[{"matchType":"path","matchValue":"/x"}],"redirectURL":"/y"}
	}}`

	got, err := parseJSON([]byte(payload))
	require.NoError(t, err)
	for _, r := range got {
		assert.False(t, r.HasExactPath, "rule %s", r.ID)
		require.Len(t, r.Matchers, 1)
		assert.Equal(t, MatchPath, r.Matchers[0].Type)
	}
}

func TestParseJSON_ScalarsAcceptStringsAndNumbers(t *testing.T) {
	payload := `{"matchRules":{"1":{
		"type":"erMatchRule",
		"matches":[{"matchType":"regex","matchValue":"^/a(.*)","negate":"true","caseSensitive":1}],
		"redirectURL":"/b",
		"statusCode":"302",
		"useIncomingQueryString":"true",
		"useRelativeUrl":"relative_url",
		"start":"1700000000",
		"end":1800000000.0
	}}}`

	got, err := parseJSON([]byte(payload))
	require.NoError(t, err)
	require.Len(t, got, 1)

	r := got[0]
	assert.Equal(t, 302, r.StatusCode)
	assert.True(t, r.UseIncomingQueryString)
	assert.True(t, r.UseRelativeURL)
	require.NotNil(t, r.Window)
	assert.Equal(t, int64(1700000000), r.Window.Start)
	assert.Equal(t, int64(1800000000), r.Window.End)
	require.Len(t, r.Matchers, 1)
	assert.True(t, r.Matchers[0].Negate)
	assert.True(t, r.Matchers[0].CaseSensitive)
}

func TestParseJSON_OneWindowBound(t *testing.T) {
	payload := `{"matchRules":{"1":{"type":"erMatchRule","matchURL":"/a","redirectURL":"/b","start":1700000000}}}`

	got, err := parseJSON([]byte(payload))
	require.NoError(t, err)
	require.NotNil(t, got[0].Window)
	assert.Equal(t, &Window{Start: 1700000000, End: 0}, got[0].Window)
	assert.True(t, got[0].Window.Active())
}

func TestParseJSON_RepeatedKeyKeepsFirstPosition(t *testing.T) {
	payload := `{"matchRules":{
		"1":{"type":"erMatchRule","matchURL":"/a","redirectURL":"/first"},
		"2":{"type":"erMatchRule","matchURL":"/b","redirectURL":"/b"},
		"1":{"type":"erMatchRule","matchURL":"/a","redirectURL":"/second"}
	}}`

	got, err := parseJSON([]byte(payload))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, "/second", got[0].RedirectTemplate)
}

func TestParseJSON_IgnoresUnknownTopLevelKeys(t *testing.T) {
	payload := `{"policy":{"name":"p","version":[1,2]},"matchRules":{"1":{"type":"erMatchRule","matchURL":"/a","redirectURL":"/b"}},"trailer":null}`

	got, err := parseJSON([]byte(payload))
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestParseJSON_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		target  error
	}{
		{name: "not json", payload: `path,redirectURL`},
		{name: "array", payload: `[1,2]`},
		{name: "missing matchRules", payload: `{"rules":{}}`, target: ErrMissingMatchRules},
		{name: "matchRules not object", payload: `{"matchRules":[]}`},
		{name: "truncated", payload: `{"matchRules":{"1":{"type":"erMatchRule"`},
		{name: "bad status", payload: `{"matchRules":{"1":{"type":"erMatchRule","statusCode":"abc"}}}`},
		{name: "bad start", payload: `{"matchRules":{"1":{"type":"erMatchRule","start":"soon"}}}`},
		{name: "matches not list", payload: `{"matchRules":{"1":{"type":"erMatchRule","matches":{}}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseJSON([]byte(tt.payload))
			require.Error(t, err)
			assert.True(t, IsMalformedInput(err))
			if tt.target != nil {
				assert.True(t, errors.Is(err, tt.target))
			}
		})
	}
}
