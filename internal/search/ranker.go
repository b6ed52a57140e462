// Package search ranks products against a free-text user query using a
// tiered AI classification protocol with caching and in-flight
// deduplication.
package search

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/lithammer/dedent"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/stylelens/stylelens/internal/llm"
	"github.com/stylelens/stylelens/internal/page"
)

// Ranking methods.
const (
	MethodAITier          = "ai_tier"
	MethodOverlapFallback = "overlap_fallback"
)

const rankerTemperature = 0.1

// tierLineRe parses "TIER: 2 - close match on color".
var tierLineRe = regexp.MustCompile(`^TIER:\s*(-?\d+)\s*(?:-\s*(.+))?$`)

var tierPrompt = strings.TrimSpace(dedent.Dedent(`
	You are ranking a product against a shopper's search request.

	Product: "%s"
	Search request: "%s"

	Assign a match tier:
	1 - strong match for the request
	2 - partial or related match
	3 - not a match

	Respond with EXACTLY one line in this format:
	TIER: <1, 2 or 3> - <short reason>

	No other text.`))

// TierResult is a coarse 1-3 match-quality bucket, distinct from the
// engine's 1-10 style score.
type TierResult struct {
	Tier       int
	Reasoning  string
	Confidence float64
	Method     string
}

// Ranker compares products against a free-text prompt. Results are
// cached by (image identity, prompt) and concurrent requests for the
// same key share one in-flight AI call.
type Ranker struct {
	provider llm.Provider

	mu    sync.Mutex
	cache map[string]TierResult
	group singleflight.Group
}

// NewRanker creates a Ranker backed by the given provider.
func NewRanker(provider llm.Provider) *Ranker {
	return &Ranker{provider: provider, cache: make(map[string]TierResult)}
}

// RankAgainstPrompt returns the product's match tier for the user
// prompt. Never returns an error; degraded paths produce a fallback
// tier. Tier is always within [1,3].
func (r *Ranker) RankAgainstPrompt(ctx context.Context, c *page.Candidate, userPrompt string) TierResult {
	key := rankKey(c, userPrompt)

	r.mu.Lock()
	if res, ok := r.cache[key]; ok {
		r.mu.Unlock()
		return res
	}
	r.mu.Unlock()

	v, _, _ := r.group.Do(key, func() (interface{}, error) {
		res := r.rank(ctx, c, userPrompt)
		r.mu.Lock()
		r.cache[key] = res
		r.mu.Unlock()
		return res, nil
	})
	return v.(TierResult)
}

// InvalidateCache drops all cached tiers, e.g. when the user edits the
// prompt semantics out from under previous results.
func (r *Ranker) InvalidateCache() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[string]TierResult)
}

func (r *Ranker) rank(ctx context.Context, c *page.Candidate, userPrompt string) TierResult {
	if r.provider != nil && r.provider.Availability() == llm.Ready {
		if res, ok := r.rankAI(ctx, c, userPrompt); ok {
			return res
		}
	}
	return overlapFallback(c, userPrompt)
}

func (r *Ranker) rankAI(ctx context.Context, c *page.Candidate, userPrompt string) (TierResult, bool) {
	session, err := r.provider.NewSession(llm.SessionOptions{Temperature: rankerTemperature, TopK: 3})
	if err != nil {
		return TierResult{}, false
	}
	defer session.Destroy()

	response, err := session.Prompt(ctx, fmt.Sprintf(tierPrompt, c.TextSignals(), userPrompt), nil)
	if err != nil {
		log.Debug().Err(err).Str("src", c.Src).Msg("tier ranking failed")
		return TierResult{}, false
	}

	return parseTierLine(response)
}

// parseTierLine parses the TIER grammar and clamps out-of-range values
// (the model occasionally answers "TIER: 7") into [1,3].
func parseTierLine(response string) (TierResult, bool) {
	line := firstLine(llm.CleanResponse(response))
	groups := tierLineRe.FindStringSubmatch(line)
	if groups == nil {
		return TierResult{}, false
	}
	tier, err := strconv.Atoi(groups[1])
	if err != nil {
		return TierResult{}, false
	}
	if tier < 1 {
		tier = 1
	}
	if tier > 3 {
		tier = 3
	}
	return TierResult{
		Tier:       tier,
		Reasoning:  strings.TrimSpace(groups[2]),
		Confidence: 0.85,
		Method:     MethodAITier,
	}, true
}

// overlapFallback buckets by word overlap between the prompt and the
// candidate's text signals. Deterministic for identical inputs.
func overlapFallback(c *page.Candidate, userPrompt string) TierResult {
	text := c.TextSignals()
	words := significantWords(userPrompt)

	matches := 0
	for _, w := range words {
		if strings.Contains(text, w) {
			matches++
		}
	}

	tier := 3
	switch {
	case len(words) > 0 && matches == len(words):
		tier = 1
	case matches > 0:
		tier = 2
	}
	return TierResult{
		Tier:       tier,
		Reasoning:  fmt.Sprintf("%d of %d search terms found in image text", matches, len(words)),
		Confidence: 0.4,
		Method:     MethodOverlapFallback,
	}
}

func significantWords(prompt string) []string {
	var out []string
	for _, w := range strings.Fields(strings.ToLower(prompt)) {
		w = strings.Trim(w, ".,!?\"'")
		if len(w) >= 3 {
			out = append(out, w)
		}
	}
	return out
}

func rankKey(c *page.Candidate, userPrompt string) string {
	h := sha256.New()
	id := c.Identity()
	binary.Write(h, binary.LittleEndian, int64(len(id)))
	h.Write([]byte(id))
	binary.Write(h, binary.LittleEndian, int64(len(userPrompt)))
	h.Write([]byte(userPrompt))
	return hex.EncodeToString(h.Sum(nil))
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			return line
		}
	}
	return ""
}
