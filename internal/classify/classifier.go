package classify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lithammer/dedent"
	"github.com/rs/zerolog/log"

	"github.com/stylelens/stylelens/internal/detect"
	"github.com/stylelens/stylelens/internal/llm"
	"github.com/stylelens/stylelens/internal/page"
)

// Classification methods, in layer priority order.
const (
	MethodQuickExclusion = "quick_exclusion"
	MethodAltText        = "ai_alt_text"
	MethodVision         = "ai_vision"
	MethodFallback       = "fallback_inclusion"
	MethodError          = "error"
)

var visionPrompt = strings.TrimSpace(dedent.Dedent(`
	You are classifying a product image from an e-commerce page.

	Decide whether the attached image shows a clothing or fashion item
	that a shopper could buy (garments, shoes, bags, fashion accessories).

	Respond with EXACTLY one line in one of these two formats:
	CLOTHING: <type of clothing item>
	NOT_CLOTHING: <short reason>

	No other text.`))

// ImageFetcher retrieves raw image bytes for the optional vision layer.
type ImageFetcher func(ctx context.Context, src string) ([]byte, error)

// BatchOptions tunes ClassifyBatch pacing.
type BatchOptions struct {
	BatchSize int
	// Delay is the mandatory pause between batches so the AI backend is
	// not overwhelmed.
	Delay time.Duration
}

// DefaultBatchOptions returns the production pacing.
func DefaultBatchOptions() BatchOptions {
	return BatchOptions{BatchSize: 5, Delay: 200 * time.Millisecond}
}

// ImageClassifier is the layered decision engine: quick exclusion, then
// the AI alt-text analyzer, then an optional vision check, then default
// inclusion. The first confident layer wins.
type ImageClassifier struct {
	quick    *detect.QuickExclusion
	altText  *AltTextAnalyzer
	provider llm.Provider
	fetcher  ImageFetcher
}

// NewImageClassifier wires the decision chain. fetcher may be nil, which
// disables the vision layer.
func NewImageClassifier(quick *detect.QuickExclusion, altText *AltTextAnalyzer, provider llm.Provider, fetcher ImageFetcher) *ImageClassifier {
	return &ImageClassifier{quick: quick, altText: altText, provider: provider, fetcher: fetcher}
}

// IsClothingImage classifies a single candidate. It never returns an
// error: ambiguous cases default to inclusion, because hiding a real
// product is worse than decorating a false positive.
func (ic *ImageClassifier) IsClothingImage(ctx context.Context, c *page.Candidate) detect.Classification {
	if res := ic.quick.Check(c); !res.Passed {
		return detect.Classification{
			Reasoning:  res.Reason,
			Method:     MethodQuickExclusion,
			Confidence: 0.9,
		}
	}

	if res := ic.altText.Classify(ctx, c); res.Confident {
		return detect.Classification{
			IsClothing: res.IsClothing,
			Reasoning:  res.Reasoning,
			Method:     MethodAltText,
			Confidence: res.Confidence,
		}
	}

	if res, ok := ic.visionCheck(ctx, c); ok {
		return res
	}

	return detect.Classification{
		IsClothing: true,
		Reasoning:  "no exclusion signal, defaulting to inclusion",
		Method:     MethodFallback,
		Confidence: 0.5,
	}
}

// visionCheck classifies the image pixels when text signals are absent.
// Only runs with a fetcher, a ready provider, and a resolvable source.
func (ic *ImageClassifier) visionCheck(ctx context.Context, c *page.Candidate) (detect.Classification, bool) {
	if ic.fetcher == nil || c.HasText() || c.Src == "" {
		return detect.Classification{}, false
	}
	if ic.provider == nil || ic.provider.Availability() != llm.Ready {
		return detect.Classification{}, false
	}

	img, err := ic.fetcher(ctx, c.Src)
	if err != nil || len(img) == 0 {
		log.Debug().Err(err).Str("src", c.Src).Msg("vision check skipped, image not retrievable")
		return detect.Classification{}, false
	}

	session, err := ic.provider.NewSession(llm.SessionOptions{Temperature: altTextTemperature, TopK: 3})
	if err != nil {
		return detect.Classification{}, false
	}
	defer session.Destroy()

	response, err := session.Prompt(ctx, visionPrompt, img)
	if err != nil {
		log.Debug().Err(err).Str("src", c.Src).Msg("vision classification failed")
		return detect.Classification{}, false
	}

	parsed := parseClothingLine(response)
	if !parsed.Confident {
		return detect.Classification{}, false
	}
	return detect.Classification{
		IsClothing: parsed.IsClothing,
		Reasoning:  parsed.Reasoning,
		Method:     MethodVision,
		Confidence: parsed.Confidence,
	}, true
}

// ClassifyBatch classifies candidates in fixed-size chunks, concurrent
// within a chunk and with a mandatory delay between chunks. A failure in
// one image never fails the batch. Results preserve input order.
func (ic *ImageClassifier) ClassifyBatch(ctx context.Context, candidates []*page.Candidate, opts BatchOptions) []detect.Classification {
	if opts.BatchSize <= 0 {
		opts = DefaultBatchOptions()
	}

	results := make([]detect.Classification, len(candidates))
	for start := 0; start < len(candidates); start += opts.BatchSize {
		end := start + opts.BatchSize
		if end > len(candidates) {
			end = len(candidates)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = ic.classifyOne(ctx, candidates[i])
			}(i)
		}
		wg.Wait()

		if end < len(candidates) && opts.Delay > 0 {
			select {
			case <-ctx.Done():
				// Remaining candidates degrade to error results below.
			case <-time.After(opts.Delay):
			}
		}
	}
	return results
}

// classifyOne isolates panics so one bad candidate cannot poison a batch.
func (ic *ImageClassifier) classifyOne(ctx context.Context, c *page.Candidate) (cls detect.Classification) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Interface("panic", r).Str("src", c.Src).Msg("classification panicked")
			cls = detect.Classification{
				Reasoning:  fmt.Sprintf("classification error: %v", r),
				Method:     MethodError,
				Confidence: 0,
			}
		}
	}()
	if ctx.Err() != nil {
		return detect.Classification{
			Reasoning:  "context cancelled before classification",
			Method:     MethodError,
			Confidence: 0,
		}
	}
	return ic.IsClothingImage(ctx, c)
}
