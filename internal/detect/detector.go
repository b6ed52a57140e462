package detect

import (
	"context"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"

	"github.com/stylelens/stylelens/internal/page"
)

// Classification is the clothing verdict attached to a candidate.
// Confidence is always populated, including on fallback paths.
type Classification struct {
	IsClothing bool
	Reasoning  string
	Method     string
	Confidence float64
}

// Methods produced by the detector itself. Classifier methods (quick
// exclusion, alt text, fallback inclusion) come through the callback.
const (
	MethodNotVisible       = "not_visible"
	MethodQualityRejected  = "quality_rejected"
	MethodPriorState       = "prior_state"
	MethodContextHeuristic = "context_heuristic"
)

// ClassifyFunc is the single seam coupling the detector to a clothing
// classifier. Implementations may call AI; errors degrade the one
// candidate to the context heuristic, never the batch.
type ClassifyFunc func(context.Context, *page.Candidate) (Classification, error)

// DetectionResult pairs a candidate with its classification.
type DetectionResult struct {
	Candidate      *page.Candidate
	Classification Classification
}

// Report partitions one detection pass. Every candidate appears in
// exactly one partition.
type Report struct {
	Detected []DetectionResult
	Rejected []DetectionResult
}

// DetectorConfig tunes batch orchestration.
type DetectorConfig struct {
	// BatchSize is the number of candidates processed concurrently per
	// round. Rounds run sequentially to bound peak backend load.
	BatchSize int
}

// DefaultDetectorConfig returns the production tuning.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{BatchSize: 8}
}

// Detector orchestrates candidate discovery, visibility and quality
// checks, and the injected classification callback into one end-to-end
// detection pass.
type Detector struct {
	finder     *page.Finder
	quick      *QuickExclusion
	visibility *VisibilityChecker
	arena      *Arena
	classify   ClassifyFunc
	cfg        DetectorConfig
}

// NewDetector wires a detector. classify may be nil, in which case the
// context heuristic decides every candidate.
func NewDetector(finder *page.Finder, quick *QuickExclusion, visibility *VisibilityChecker, arena *Arena, classify ClassifyFunc, cfg DetectorConfig) *Detector {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultDetectorConfig().BatchSize
	}
	return &Detector{
		finder:     finder,
		quick:      quick,
		visibility: visibility,
		arena:      arena,
		classify:   classify,
		cfg:        cfg,
	}
}

// DetectProductImages runs one full detection pass over the document.
// Candidates race freely within a batch; batches run sequentially.
// Results are reassembled in original candidate order.
func (d *Detector) DetectProductImages(ctx context.Context, doc *goquery.Document, site *page.SiteConfig) *Report {
	candidates := d.finder.FindCandidates(doc, site)
	results := make([]DetectionResult, len(candidates))

	for start := 0; start < len(candidates); start += d.cfg.BatchSize {
		end := start + d.cfg.BatchSize
		if end > len(candidates) {
			end = len(candidates)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = d.processOne(ctx, candidates[i])
			}(i)
		}
		wg.Wait()
	}

	report := &Report{}
	for _, r := range results {
		if r.Classification.IsClothing {
			report.Detected = append(report.Detected, r)
		} else {
			report.Rejected = append(report.Rejected, r)
		}
	}

	log.Info().
		Int("candidates", len(candidates)).
		Int("detected", len(report.Detected)).
		Int("rejected", len(report.Rejected)).
		Msg("detection pass complete")
	return report
}

func (d *Detector) processOne(ctx context.Context, c *page.Candidate) DetectionResult {
	// Skip candidates a previous pass already decided.
	if prior := d.arena.Get(c.Identity()); prior != StateUnknown {
		return DetectionResult{Candidate: c, Classification: Classification{
			IsClothing: prior == StateClothing,
			Reasoning:  "previously analyzed",
			Method:     MethodPriorState,
			Confidence: 1.0,
		}}
	}

	if vis := d.visibility.IsVisible(c); !vis.Visible {
		return d.finish(c, Classification{
			Reasoning:  vis.Reason,
			Method:     MethodNotVisible,
			Confidence: 1.0,
		})
	}

	if q := d.visibility.CheckQuality(c); !q.Valid {
		return d.finish(c, Classification{
			Reasoning:  q.Reason,
			Method:     MethodQualityRejected,
			Confidence: 1.0,
		})
	}

	cls, err := d.runClassify(ctx, c)
	if err != nil {
		log.Debug().Err(err).Str("src", c.Src).Msg("classification callback failed, using context heuristic")
		cls = d.contextHeuristic(c)
	}
	return d.finish(c, cls)
}

// runClassify invokes the callback with panic isolation: a misbehaving
// classifier degrades one candidate, never the batch.
func (d *Detector) runClassify(ctx context.Context, c *page.Candidate) (cls Classification, err error) {
	if d.classify == nil {
		return d.contextHeuristic(c), nil
	}
	defer func() {
		if r := recover(); r != nil {
			cls = d.contextHeuristic(c)
			err = nil
			log.Warn().Interface("panic", r).Str("src", c.Src).Msg("classification callback panicked")
		}
	}()
	return d.classify(ctx, c)
}

// contextHeuristic decides from DOM context alone: images inside a
// product-card or grid layout are presumed clothing on retail pages.
func (d *Detector) contextHeuristic(c *page.Candidate) Classification {
	if c.InProductCard {
		return Classification{
			IsClothing: true,
			Reasoning:  "inside product card layout",
			Method:     MethodContextHeuristic,
			Confidence: 0.6,
		}
	}
	return Classification{
		Reasoning:  "no product card context",
		Method:     MethodContextHeuristic,
		Confidence: 0.6,
	}
}

func (d *Detector) finish(c *page.Candidate, cls Classification) DetectionResult {
	state := StateNonClothing
	if cls.IsClothing {
		state = StateClothing
	}
	d.arena.Set(c.Identity(), state)
	return DetectionResult{Candidate: c, Classification: cls}
}
