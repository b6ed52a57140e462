package page

import (
	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/html"
)

// genericSelectors is the cross-site heuristic layer: images whose source,
// alt text or class mention products, plus common listing containers.
var genericSelectors = []string{
	"img[src*='product']",
	"img[alt*='product']",
	"img[class*='product']",
	".product-card img",
	".product-item img",
	".product-tile img",
	"[class*='product'] img",
	".grid-item img",
	".item-card img",
}

// FinderConfig tunes candidate discovery.
type FinderConfig struct {
	// MinCandidates is the safety-net threshold: when the site-specific,
	// card-scoped and generic layers together yield fewer candidates, the
	// universal every-image fallback kicks in.
	MinCandidates int
}

// DefaultFinderConfig returns the production tuning.
func DefaultFinderConfig() FinderConfig {
	return FinderConfig{MinCandidates: 5}
}

// Finder discovers candidate product images in a parsed document using a
// layered selector strategy.
type Finder struct {
	cfg FinderConfig

	// fallbackFilter gates images admitted by the universal fallback
	// layer. Wired to quick exclusion so the fallback does not flood the
	// pipeline with UI chrome.
	fallbackFilter func(*Candidate) bool
}

// NewFinder creates a Finder. The filter may be nil, in which case the
// universal fallback admits every image.
func NewFinder(cfg FinderConfig, fallbackFilter func(*Candidate) bool) *Finder {
	if cfg.MinCandidates <= 0 {
		cfg.MinCandidates = DefaultFinderConfig().MinCandidates
	}
	return &Finder{cfg: cfg, fallbackFilter: fallbackFilter}
}

// FindCandidates runs the layered discovery strategy over the document.
// site may be nil for unknown hosts. Results are deduplicated by element
// identity and returned in document order of first discovery.
func (f *Finder) FindCandidates(doc *goquery.Document, site *SiteConfig) []*Candidate {
	seen := make(map[*html.Node]bool)
	var out []*Candidate

	add := func(sel *goquery.Selection) {
		sel.Each(func(_ int, s *goquery.Selection) {
			if len(s.Nodes) == 0 || seen[s.Nodes[0]] {
				return
			}
			seen[s.Nodes[0]] = true
			out = append(out, FromSelection(s))
		})
	}

	if site != nil {
		for _, q := range site.ImageSelectors {
			f.safeSelect(doc, q, add)
		}
		for _, q := range site.CardSelectors {
			f.safeSelect(doc, q+" img", add)
		}
	}

	for _, q := range genericSelectors {
		f.safeSelect(doc, q, add)
	}

	if len(out) < f.cfg.MinCandidates {
		before := len(out)
		doc.Find("img").Each(func(_ int, s *goquery.Selection) {
			if len(s.Nodes) == 0 || seen[s.Nodes[0]] {
				return
			}
			c := FromSelection(s)
			if f.fallbackFilter != nil && !f.fallbackFilter(c) {
				return
			}
			seen[s.Nodes[0]] = true
			out = append(out, c)
		})
		log.Debug().
			Int("before", before).
			Int("after", len(out)).
			Msg("universal fallback discovery triggered")
	}

	return out
}

// safeSelect runs one selector query and recovers from invalid selector
// panics. A single malformed selector never aborts discovery.
func (f *Finder) safeSelect(doc *goquery.Document, query string, add func(*goquery.Selection)) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Str("selector", query).Interface("error", r).Msg("skipping invalid selector")
		}
	}()
	add(doc.Find(query))
}
