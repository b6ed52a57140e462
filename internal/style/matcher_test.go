package style

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stylelens/stylelens/internal/llm"
	"github.com/stylelens/stylelens/internal/page"
)

func testProfile() *Profile {
	return &Profile{
		Categories: []CategoryPreference{
			{Category: "dresses", Confidence: 0.9},
			{Category: "outerwear", Confidence: 0.6},
		},
		Colors: []Color{
			{Name: "red", Hex: "#cc0000"},
			{Name: "navy", Hex: "#000080"},
		},
		Reasoning: "warm tones and defined silhouettes",
	}
}

func TestAnalyzeStyle_Match(t *testing.T) {
	mock := llm.NewMockProvider("MATCH: 80 - flattering colors and silhouette")
	m := NewMatcher(mock)

	res, err := m.AnalyzeStyle(context.Background(), &page.Candidate{Alt: "red midi dress"}, testProfile())

	require.NoError(t, err)
	assert.True(t, res.Confident)
	assert.True(t, res.IsStyleMatch)
	assert.Equal(t, 80, res.Score)
	assert.Equal(t, "flattering colors and silhouette", res.Reasoning)
	assert.Equal(t, MethodAIMatch, res.Method)
	assert.Zero(t, mock.SessionsLeaked())
}

func TestAnalyzeStyle_NoMatch(t *testing.T) {
	mock := llm.NewMockProvider("NO_MATCH: 20 - oversized fit hides the waist")
	m := NewMatcher(mock)

	res, err := m.AnalyzeStyle(context.Background(), &page.Candidate{Alt: "oversized hoodie"}, testProfile())

	require.NoError(t, err)
	assert.True(t, res.Confident)
	assert.False(t, res.IsStyleMatch)
	assert.Equal(t, 20, res.Score)
}

func TestAnalyzeStyle_NilProfile(t *testing.T) {
	mock := llm.NewMockProvider("MATCH: 80 - whatever")
	m := NewMatcher(mock)

	res, err := m.AnalyzeStyle(context.Background(), &page.Candidate{Alt: "dress"}, nil)

	require.NoError(t, err)
	assert.False(t, res.Confident)
	assert.Zero(t, mock.PromptCount())
}

func TestAnalyzeStyle_UnavailableProviderIsNotAnError(t *testing.T) {
	mock := &llm.MockProvider{Ready: false, State: llm.Downloading}
	m := NewMatcher(mock)

	res, err := m.AnalyzeStyle(context.Background(), &page.Candidate{Alt: "dress"}, testProfile())

	require.NoError(t, err)
	assert.False(t, res.Confident)
}

func TestAnalyzeStyle_PromptFailureIsAnError(t *testing.T) {
	mock := &llm.MockProvider{Ready: true, FailBefore: 1}
	m := NewMatcher(mock)

	_, err := m.AnalyzeStyle(context.Background(), &page.Candidate{Alt: "dress"}, testProfile())
	assert.Error(t, err)
	assert.Zero(t, mock.SessionsLeaked())
}

func TestAnalyzeStyle_UnparseableIsNotConfident(t *testing.T) {
	mock := llm.NewMockProvider("this looks nice, maybe 70 out of 100")
	m := NewMatcher(mock)

	res, err := m.AnalyzeStyle(context.Background(), &page.Candidate{Alt: "dress"}, testProfile())

	require.NoError(t, err)
	assert.False(t, res.Confident)
}

func TestParseMatchLine_Clamping(t *testing.T) {
	res, ok := parseMatchLine("MATCH: 250 - glitchy score")
	require.True(t, ok)
	assert.Equal(t, 100, res.Score)

	_, ok = parseMatchLine("MATCH: -5 - negative")
	assert.False(t, ok, "negative numbers do not fit the grammar")

	_, ok = parseMatchLine("MATCH: eighty - words")
	assert.False(t, ok)
}

func TestKeywordFallback_Deterministic(t *testing.T) {
	m := NewMatcher(nil)
	c := &page.Candidate{Alt: "Red Midi Dress", Src: "https://x.test/red-midi-dress.jpg"}

	first := m.KeywordFallback(c, testProfile())
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, m.KeywordFallback(c, testProfile()))
	}
}

func TestKeywordFallback_Scoring(t *testing.T) {
	m := NewMatcher(nil)
	p := testProfile()

	// "dress" hits dresses (0.9 x 30 = 27) and "red" hits a color (+10).
	res := m.KeywordFallback(&page.Candidate{Alt: "red dress"}, p)
	assert.True(t, res.Confident)
	assert.Equal(t, 37, res.Score)
	assert.True(t, res.IsStyleMatch)
	assert.Equal(t, MethodKeywordFallback, res.Method)

	// Category hits count once per category even with multiple keywords.
	res = m.KeywordFallback(&page.Candidate{Alt: "midi maxi dress gown"}, p)
	assert.Equal(t, 27, res.Score)

	// No signals at all: zero score, no match.
	res = m.KeywordFallback(&page.Candidate{Alt: "ceramic mug"}, p)
	assert.Zero(t, res.Score)
	assert.False(t, res.IsStyleMatch)

	// Below the match threshold: color alone is not a style match.
	res = m.KeywordFallback(&page.Candidate{Alt: "navy mug"}, p)
	assert.Equal(t, 10, res.Score)
	assert.False(t, res.IsStyleMatch)
}

func TestKeywordFallback_ScoreCap(t *testing.T) {
	m := NewMatcher(nil)
	p := &Profile{
		Categories: []CategoryPreference{
			{Category: "dresses", Confidence: 1},
			{Category: "tops", Confidence: 1},
			{Category: "outerwear", Confidence: 1},
			{Category: "shoes", Confidence: 1},
		},
		Colors: []Color{{Name: "red"}, {Name: "navy"}},
	}

	res := m.KeywordFallback(&page.Candidate{Alt: "red navy dress top jacket boot"}, p)
	assert.Equal(t, 100, res.Score)
}

func TestProfileHash(t *testing.T) {
	p := testProfile()
	assert.Equal(t, p.Hash(), testProfile().Hash())

	changed := testProfile()
	changed.Categories[0].Confidence = 0.8
	assert.NotEqual(t, p.Hash(), changed.Hash())

	var nilProfile *Profile
	assert.Equal(t, "none", nilProfile.Hash())
}

func TestKeywordsFor_UnknownCategoryFallsBackToName(t *testing.T) {
	assert.Equal(t, []string{"swimwear"}, keywordsFor("Swimwear"))
	assert.Contains(t, keywordsFor("dresses"), "midi")
}
