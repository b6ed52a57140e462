package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stylelens/stylelens/internal/llm"
	"github.com/stylelens/stylelens/internal/page"
)

func TestRankAgainstPrompt_AITier(t *testing.T) {
	mock := llm.NewMockProvider("TIER: 1 - exact match on color and cut")
	r := NewRanker(mock)

	res := r.RankAgainstPrompt(context.Background(), &page.Candidate{Alt: "red midi dress"}, "red dress")

	assert.Equal(t, 1, res.Tier)
	assert.Equal(t, "exact match on color and cut", res.Reasoning)
	assert.Equal(t, MethodAITier, res.Method)
	assert.Zero(t, mock.SessionsLeaked())
}

func TestRankAgainstPrompt_CachesPerImageAndPrompt(t *testing.T) {
	mock := llm.NewMockProvider("TIER: 2 - related item")
	r := NewRanker(mock)

	c := &page.Candidate{Src: "https://x.test/item.jpg", Alt: "wool coat"}

	first := r.RankAgainstPrompt(context.Background(), c, "winter coat")
	second := r.RankAgainstPrompt(context.Background(), c, "winter coat")
	assert.Equal(t, first, second)
	assert.Equal(t, 1, mock.PromptCount())

	// A different prompt is a different cache key.
	r.RankAgainstPrompt(context.Background(), c, "summer dress")
	assert.Equal(t, 2, mock.PromptCount())

	r.InvalidateCache()
	r.RankAgainstPrompt(context.Background(), c, "winter coat")
	assert.Equal(t, 3, mock.PromptCount())
}

func TestRankAgainstPrompt_UnavailableProviderFallback(t *testing.T) {
	mock := &llm.MockProvider{Ready: false, State: llm.Unavailable}
	r := NewRanker(mock)

	res := r.RankAgainstPrompt(context.Background(), &page.Candidate{Alt: "red midi dress"}, "red dress")

	assert.Equal(t, 1, res.Tier, "all search terms present in text")
	assert.Equal(t, MethodOverlapFallback, res.Method)
	assert.Zero(t, mock.PromptCount())
}

func TestRankAgainstPrompt_PromptFailureFallback(t *testing.T) {
	mock := &llm.MockProvider{Ready: true, FailBefore: 1}
	r := NewRanker(mock)

	res := r.RankAgainstPrompt(context.Background(), &page.Candidate{Alt: "leather boots"}, "red dress")

	assert.Equal(t, MethodOverlapFallback, res.Method)
	assert.Equal(t, 3, res.Tier)
}

func TestParseTierLine(t *testing.T) {
	tests := []struct {
		name     string
		response string
		ok       bool
		tier     int
	}{
		{"tier one", "TIER: 1 - strong match", true, 1},
		{"tier three", "TIER: 3 - unrelated", true, 3},
		{"out of range high", "TIER: 7 - confused model", true, 3},
		{"out of range low", "TIER: 0 - confused model", true, 1},
		{"negative", "TIER: -2 - very confused", true, 1},
		{"no reason", "TIER: 2", true, 2},
		{"fenced", "```\nTIER: 2 - close\n```", true, 2},
		{"garbage", "probably a good match", false, 0},
		{"empty", "", false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, ok := parseTierLine(tt.response)
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.tier, res.Tier)
				assert.Equal(t, MethodAITier, res.Method)
			}
		})
	}
}

func TestOverlapFallback(t *testing.T) {
	c := &page.Candidate{Alt: "red midi dress", Src: "https://x.test/red-midi-dress.jpg"}

	res := overlapFallback(c, "red dress")
	assert.Equal(t, 1, res.Tier)

	res = overlapFallback(c, "red sneakers")
	assert.Equal(t, 2, res.Tier)

	res = overlapFallback(c, "ceramic mug")
	assert.Equal(t, 3, res.Tier)

	// Short words are not significant; an empty effective query never
	// claims a strong match.
	res = overlapFallback(c, "a is")
	assert.Equal(t, 3, res.Tier)

	// Deterministic.
	assert.Equal(t, overlapFallback(c, "red dress"), overlapFallback(c, "red dress"))
}

func TestSignificantWords(t *testing.T) {
	assert.Equal(t, []string{"red", "dress", "please"}, significantWords("a Red dress, please!"))
	assert.Empty(t, significantWords("a an is"))
}
