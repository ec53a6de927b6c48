package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseVerdictBareJSON(t *testing.T) {
	verdict := parseVerdict(`{"matches_intent": true, "issues": [], "suggested_fix": "", "explanation": "ok"}`)
	assert.True(t, verdict.MatchesIntent)
	assert.Empty(t, verdict.Issues)
	assert.Equal(t, "ok", verdict.Explanation)
}

func TestParseVerdictWrappedJSON(t *testing.T) {
	text := "Here is my assessment:\n```json\n" +
		`{"matches_intent": false, "issues": ["bad join"], "suggested_fix": "SELECT 1;", "explanation": "join column mismatch"}` +
		"\n```\nLet me know if you need more."

	verdict := parseVerdict(text)
	assert.False(t, verdict.MatchesIntent)
	assert.Equal(t, []string{"bad join"}, verdict.Issues)
	assert.Equal(t, "SELECT 1;", verdict.SuggestedFix)
}

func TestParseVerdictGarbageFallsBackToNeedsRefinement(t *testing.T) {
	verdict := parseVerdict("I cannot answer in JSON today.")
	assert.False(t, verdict.MatchesIntent)
	assert.NotEmpty(t, verdict.Issues)
	assert.NotEmpty(t, verdict.Explanation)
}

func TestExtractJSONObject(t *testing.T) {
	assert.Equal(t, `{"a": 1}`, extractJSONObject(`noise {"a": 1} trailing`))
	assert.Equal(t, `{"a": {"b": 2}}`, extractJSONObject(`{"a": {"b": 2}}`))
	assert.Equal(t, "no braces here", extractJSONObject("no braces here"))
}
