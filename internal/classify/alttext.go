package classify

import (
	"context"
	"fmt"
	"strings"

	"github.com/lithammer/dedent"
	"github.com/rs/zerolog/log"

	"github.com/stylelens/stylelens/internal/llm"
	"github.com/stylelens/stylelens/internal/page"
)

// altTextTemperature keeps the constrained-grammar answer deterministic.
const altTextTemperature = 0.1

var altTextPrompt = strings.TrimSpace(dedent.Dedent(`
	You are classifying images on an e-commerce page from their text alone.

	Image text: "%s"

	Decide whether this image shows a clothing or fashion item that a
	shopper could buy (garments, shoes, bags, fashion accessories).

	Respond with EXACTLY one line in one of these two formats:
	CLOTHING: <type of clothing item>
	NOT_CLOTHING: <short reason>

	No other text.`))

// AltTextResult is the analyzer's verdict. Confident is false whenever no
// classification could be made; the remaining fields are then unset.
type AltTextResult struct {
	Confident  bool
	IsClothing bool
	Reasoning  string
	Confidence float64
}

// AltTextAnalyzer asks the language model to classify an image from its
// alt/title/filename text. It never invents a classification: empty
// input, an unavailable capability, or an unparseable response all yield
// a not-confident result.
type AltTextAnalyzer struct {
	provider llm.Provider
}

// NewAltTextAnalyzer creates an analyzer backed by the given provider.
func NewAltTextAnalyzer(provider llm.Provider) *AltTextAnalyzer {
	return &AltTextAnalyzer{provider: provider}
}

// Classify runs the text classification for one candidate.
func (a *AltTextAnalyzer) Classify(ctx context.Context, c *page.Candidate) AltTextResult {
	if !c.HasText() {
		return AltTextResult{}
	}
	if a.provider == nil || a.provider.Availability() != llm.Ready {
		return AltTextResult{}
	}

	session, err := a.provider.NewSession(llm.SessionOptions{Temperature: altTextTemperature, TopK: 3})
	if err != nil {
		log.Debug().Err(err).Msg("alt text session unavailable")
		return AltTextResult{}
	}
	defer session.Destroy()

	response, err := session.Prompt(ctx, fmt.Sprintf(altTextPrompt, c.TextSignals()), nil)
	if err != nil {
		log.Debug().Err(err).Str("src", c.Src).Msg("alt text classification failed")
		return AltTextResult{}
	}

	return parseClothingLine(response)
}

// parseClothingLine parses the strict CLOTHING:/NOT_CLOTHING: grammar.
// NOT_CLOTHING is checked first, longest prefix wins. Anything else is a
// parse failure, not a guess.
func parseClothingLine(response string) AltTextResult {
	line := firstLine(llm.CleanResponse(response))
	switch {
	case strings.HasPrefix(line, "NOT_CLOTHING:"):
		return AltTextResult{
			Confident:  true,
			Reasoning:  strings.TrimSpace(strings.TrimPrefix(line, "NOT_CLOTHING:")),
			Confidence: 0.85,
		}
	case strings.HasPrefix(line, "CLOTHING:"):
		return AltTextResult{
			Confident:  true,
			IsClothing: true,
			Reasoning:  strings.TrimSpace(strings.TrimPrefix(line, "CLOTHING:")),
			Confidence: 0.85,
		}
	default:
		log.Debug().Str("response", line).Msg("unparseable alt text classification")
		return AltTextResult{}
	}
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
