package style

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/lithammer/dedent"
	"github.com/rs/zerolog/log"

	"github.com/stylelens/stylelens/internal/llm"
	"github.com/stylelens/stylelens/internal/page"
)

// Matching methods.
const (
	MethodAIMatch         = "ai_style_match"
	MethodKeywordFallback = "keyword_fallback"
)

// matchThreshold is the cumulative keyword score at which the fallback
// declares a style match.
const matchThreshold = 25

const matcherTemperature = 0.2

// matchLineRe parses the strict MATCH/NO_MATCH grammar, e.g.
// "MATCH: 80 - flattering colors and silhouette".
var matchLineRe = regexp.MustCompile(`^(MATCH|NO_MATCH):\s*(\d+)\s*-\s*(.+)$`)

var stylePrompt = strings.TrimSpace(dedent.Dedent(`
	You are a personal stylist scoring whether a product fits a user's
	style profile.

	Product: "%s"

	User's flattering categories: %s
	User's flattering colors: %s

	Score how well this product matches the profile from 0 to 100.

	Respond with EXACTLY one line in one of these two formats:
	MATCH: <score> - <short reason>
	NO_MATCH: <score> - <short reason>

	No other text.`))

// Result is a style-match verdict. Confident is false when the AI path
// produced nothing usable; callers then rely on KeywordFallback.
type Result struct {
	Confident    bool
	IsStyleMatch bool
	Score        int // 0-100 internal scale
	Reasoning    string
	Confidence   float64
	Method       string
}

// Matcher compares a product's text signals against a style profile,
// via the AI protocol with a deterministic keyword-scoring fallback.
type Matcher struct {
	provider llm.Provider
}

// NewMatcher creates a Matcher backed by the given provider.
func NewMatcher(provider llm.Provider) *Matcher {
	return &Matcher{provider: provider}
}

// AnalyzeStyle runs the AI match protocol. The returned error reports a
// hard capability failure (transport error); a parseable-but-absent
// verdict is a non-confident result with nil error, and callers fall
// back to KeywordFallback either way.
func (m *Matcher) AnalyzeStyle(ctx context.Context, c *page.Candidate, profile *Profile) (Result, error) {
	if profile == nil {
		return Result{}, nil
	}
	if m.provider == nil || m.provider.Availability() != llm.Ready {
		return Result{}, nil
	}

	session, err := m.provider.NewSession(llm.SessionOptions{Temperature: matcherTemperature, TopK: 3})
	if err != nil {
		return Result{}, fmt.Errorf("style session: %w", err)
	}
	defer session.Destroy()

	prompt := fmt.Sprintf(stylePrompt, c.TextSignals(), describeCategories(profile), describeColors(profile))
	response, err := session.Prompt(ctx, prompt, nil)
	if err != nil {
		return Result{}, fmt.Errorf("style prompt: %w", err)
	}

	if res, ok := parseMatchLine(response); ok {
		return res, nil
	}
	log.Debug().Str("response", response).Msg("unparseable style match response")
	return Result{}, nil
}

// KeywordFallback scores the candidate deterministically: per profile
// category, a keyword hit earns confidence x 30 points (once per
// category); each declared color name found in the text earns 10 points.
// Identical inputs always produce identical scores.
func (m *Matcher) KeywordFallback(c *page.Candidate, profile *Profile) Result {
	text := c.TextSignals()
	score := 0
	var hits []string

	for _, cat := range profile.Categories {
		points := int(math.Round(cat.Confidence * 30))
		for _, kw := range keywordsFor(cat.Category) {
			if strings.Contains(text, kw) {
				score += points
				hits = append(hits, cat.Category)
				break
			}
		}
	}

	for _, col := range profile.Colors {
		name := strings.ToLower(strings.TrimSpace(col.Name))
		if name != "" && strings.Contains(text, name) {
			score += 10
			hits = append(hits, col.Name)
		}
	}

	if score > 100 {
		score = 100
	}

	reasoning := "no profile signals found in image text"
	if len(hits) > 0 {
		reasoning = "matched " + strings.Join(hits, ", ")
	}
	return Result{
		Confident:    true,
		IsStyleMatch: score >= matchThreshold,
		Score:        score,
		Reasoning:    reasoning,
		Confidence:   0.5,
		Method:       MethodKeywordFallback,
	}
}

// parseMatchLine parses the MATCH/NO_MATCH grammar. Scores are clamped
// into [0,100].
func parseMatchLine(response string) (Result, bool) {
	line := firstLine(llm.CleanResponse(response))
	groups := matchLineRe.FindStringSubmatch(line)
	if groups == nil {
		return Result{}, false
	}
	score, err := strconv.Atoi(groups[2])
	if err != nil {
		return Result{}, false
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return Result{
		Confident:    true,
		IsStyleMatch: groups[1] == "MATCH",
		Score:        score,
		Reasoning:    strings.TrimSpace(groups[3]),
		Confidence:   0.85,
		Method:       MethodAIMatch,
	}, true
}

func describeCategories(p *Profile) string {
	if len(p.Categories) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(p.Categories))
	for _, c := range p.Categories {
		parts = append(parts, fmt.Sprintf("%s (%.0f%%)", c.Category, c.Confidence*100))
	}
	return strings.Join(parts, ", ")
}

func describeColors(p *Profile) string {
	if len(p.Colors) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(p.Colors))
	for _, c := range p.Colors {
		parts = append(parts, c.Name)
	}
	return strings.Join(parts, ", ")
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
