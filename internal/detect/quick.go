package detect

import (
	"fmt"
	"strings"

	"github.com/stylelens/stylelens/internal/page"
)

// defaultUIPatterns are source/class fragments that mark obvious UI chrome.
var defaultUIPatterns = []string{
	"logo", "icon", "sprite", "banner", "badge", "avatar",
	"nav", "menu", "header", "footer", "arrow", "chevron",
	"cart", "search", "star", "rating", "payment", "social",
	"placeholder", "loading", "spinner", "pixel", "tracking",
}

// ExclusionResult reports whether a candidate survived quick exclusion.
type ExclusionResult struct {
	Passed bool
	Reason string
}

// QuickExclusion is the first and cheapest filter: allocation-light,
// synchronous rejection of obvious non-product images. It runs before any
// AI or layout-heavy check.
type QuickExclusion struct {
	// Patterns matched as substrings against the lowercased source URL
	// and class attribute.
	Patterns []string

	// MinSize rejects images whose declared width or height is below this
	// many pixels. Unknown (zero) dimensions are not rejected.
	MinSize int
}

// NewQuickExclusion returns the production configuration.
func NewQuickExclusion() *QuickExclusion {
	return &QuickExclusion{Patterns: defaultUIPatterns, MinSize: 30}
}

// Check evaluates a candidate. Pure and synchronous: no AI, no I/O.
func (q *QuickExclusion) Check(c *page.Candidate) ExclusionResult {
	if c.Synthetic {
		return ExclusionResult{Reason: "generated try-on image"}
	}

	src := strings.ToLower(c.Src)
	class := strings.ToLower(c.Class)
	for _, p := range q.Patterns {
		if strings.Contains(src, p) {
			return ExclusionResult{Reason: fmt.Sprintf("ui pattern %q in source", p)}
		}
		if strings.Contains(class, p) {
			return ExclusionResult{Reason: fmt.Sprintf("ui pattern %q in class", p)}
		}
	}

	if c.Width > 0 && c.Width < q.MinSize {
		return ExclusionResult{Reason: fmt.Sprintf("width %dpx below minimum %dpx", c.Width, q.MinSize)}
	}
	if c.Height > 0 && c.Height < q.MinSize {
		return ExclusionResult{Reason: fmt.Sprintf("height %dpx below minimum %dpx", c.Height, q.MinSize)}
	}

	return ExclusionResult{Passed: true}
}
