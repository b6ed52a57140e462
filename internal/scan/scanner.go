// Package scan wires candidate discovery, detection, classification and
// style analysis into one page-scan pass. It is deliberately thin: all
// pipeline logic lives in the packages it composes.
package scan

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/stylelens/stylelens/internal/classify"
	"github.com/stylelens/stylelens/internal/detect"
	"github.com/stylelens/stylelens/internal/engine"
	"github.com/stylelens/stylelens/internal/llm"
	"github.com/stylelens/stylelens/internal/page"
	"github.com/stylelens/stylelens/internal/search"
	"github.com/stylelens/stylelens/internal/style"
)

// ReportItem is one scored product image in a scan report.
type ReportItem struct {
	Src        string  `json:"src"`
	Alt        string  `json:"alt,omitempty"`
	IsClothing bool    `json:"isClothing"`
	Method     string  `json:"method"`
	Reasoning  string  `json:"reasoning"`
	Confidence float64 `json:"confidence"`
	Score      int     `json:"score,omitempty"`

	// Tier is the 1-3 search-match bucket, set only on prompt scans.
	Tier       int    `json:"tier,omitempty"`
	TierReason string `json:"tierReason,omitempty"`
}

// Report summarizes one scan pass over a page.
type Report struct {
	URL        string       `json:"url"`
	Candidates int          `json:"candidates"`
	Detected   []ReportItem `json:"detected"`
	Rejected   []ReportItem `json:"rejected"`
	Stats      engine.Stats `json:"stats"`
	Elapsed    time.Duration `json:"elapsed"`
}

// Scanner runs end-to-end page scans.
type Scanner struct {
	fetcher  *page.Fetcher
	detector *detect.Detector
	engine   *engine.Engine
	ranker   *search.Ranker
	arena    *detect.Arena
}

// New assembles the full pipeline around a provider. The provider may be
// unavailable; every AI layer then falls back to heuristics.
func New(provider llm.Provider) *Scanner {
	fetcher := page.NewFetcher(page.FetcherOpts{})
	quick := detect.NewQuickExclusion()
	visibility := detect.NewVisibilityChecker()
	arena := detect.NewArena()

	altText := classify.NewAltTextAnalyzer(provider)
	classifier := classify.NewImageClassifier(quick, altText, provider, func(ctx context.Context, src string) ([]byte, error) {
		img, _, err := fetcher.FetchImage(ctx, src)
		return img, err
	})

	finder := page.NewFinder(page.DefaultFinderConfig(), func(c *page.Candidate) bool {
		return quick.Check(c).Passed
	})

	detector := detect.NewDetector(finder, quick, visibility, arena,
		func(ctx context.Context, c *page.Candidate) (detect.Classification, error) {
			return classifier.IsClothingImage(ctx, c), nil
		},
		detect.DefaultDetectorConfig())

	matcher := style.NewMatcher(provider)
	eng := engine.New(classifier, matcher, quick, engine.DefaultConfig())

	return &Scanner{
		fetcher:  fetcher,
		detector: detector,
		engine:   eng,
		ranker:   search.NewRanker(provider),
		arena:    arena,
	}
}

// Engine exposes the analysis engine for profile invalidation and stats.
func (s *Scanner) Engine() *engine.Engine {
	return s.engine
}

// ScanPage fetches a page, detects product images, and scores each
// detected image against the profile. Per-image failures degrade to
// neutral results; only fetch/parse failures surface as errors.
func (s *Scanner) ScanPage(ctx context.Context, pageURL string, profile *style.Profile) (*Report, error) {
	return s.scan(ctx, pageURL, profile, "")
}

// ScanPageForPrompt is ScanPage plus search ranking: each detected image
// is additionally bucketed into a 1-3 match tier against the free-text
// search prompt.
func (s *Scanner) ScanPageForPrompt(ctx context.Context, pageURL string, profile *style.Profile, searchPrompt string) (*Report, error) {
	return s.scan(ctx, pageURL, profile, searchPrompt)
}

func (s *Scanner) scan(ctx context.Context, pageURL string, profile *style.Profile, searchPrompt string) (*Report, error) {
	started := time.Now()

	doc, host, err := s.fetcher.FetchPage(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", pageURL, err)
	}
	site := page.LookupSite(host)

	detection := s.detector.DetectProductImages(ctx, doc, site)

	report := &Report{
		URL:        pageURL,
		Candidates: len(detection.Detected) + len(detection.Rejected),
	}

	candidates := make([]*page.Candidate, len(detection.Detected))
	for i, d := range detection.Detected {
		candidates[i] = d.Candidate
	}
	scores := s.engine.AnalyzeBatch(ctx, candidates, profile)

	for i, d := range detection.Detected {
		item := toItem(d)
		item.Score = scores[i].Score
		if scores[i].Reasoning != "" {
			item.Reasoning = scores[i].Reasoning
		}
		if searchPrompt != "" {
			tier := s.ranker.RankAgainstPrompt(ctx, d.Candidate, searchPrompt)
			item.Tier = tier.Tier
			item.TierReason = tier.Reasoning
		}
		report.Detected = append(report.Detected, item)
	}
	for _, d := range detection.Rejected {
		report.Rejected = append(report.Rejected, toItem(d))
	}

	report.Stats = s.engine.StatsSnapshot()
	report.Elapsed = time.Since(started)

	log.Info().
		Str("url", pageURL).
		Int("detected", len(report.Detected)).
		Int("rejected", len(report.Rejected)).
		Dur("elapsed", report.Elapsed).
		Msg("scan complete")
	return report, nil
}

// ResetState forgets prior per-candidate decisions, forcing the next
// scan to re-analyze every image.
func (s *Scanner) ResetState() {
	s.arena.Reset()
}

func toItem(d detect.DetectionResult) ReportItem {
	return ReportItem{
		Src:        d.Candidate.Src,
		Alt:        d.Candidate.Alt,
		IsClothing: d.Classification.IsClothing,
		Method:     d.Classification.Method,
		Reasoning:  d.Classification.Reasoning,
		Confidence: d.Classification.Confidence,
	}
}
