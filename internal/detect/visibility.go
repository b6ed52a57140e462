package detect

import (
	"fmt"
	"strconv"

	"github.com/stylelens/stylelens/internal/page"
)

// VisibilityResult reports whether a candidate is actually rendered.
type VisibilityResult struct {
	Visible bool
	Reason  string
}

// QualityResult reports whether a candidate is of plausible product-photo
// size and shape.
type QualityResult struct {
	Valid  bool
	Reason string
	Width  int
	Height int
}

// VisibilityChecker validates that a candidate is rendered and of
// plausible product-photo geometry. All checks are pure and synchronous;
// it runs after quick exclusion for cost reasons.
type VisibilityChecker struct {
	MinRender  int     // minimum rendered size per axis
	MaxRender  int     // maximum rendered size per axis
	MinNatural int     // minimum intrinsic size per axis
	MinAspect  float64 // width/height lower bound
	MaxAspect  float64 // width/height upper bound
}

// NewVisibilityChecker returns the production configuration.
func NewVisibilityChecker() *VisibilityChecker {
	return &VisibilityChecker{
		MinRender:  50,
		MaxRender:  2000,
		MinNatural: 100,
		MinAspect:  0.3,
		MaxAspect:  3.0,
	}
}

// IsVisible checks CSS-level visibility from the candidate's inline style
// and declared dimensions.
func (v *VisibilityChecker) IsVisible(c *page.Candidate) VisibilityResult {
	if c.Style["display"] == "none" {
		return VisibilityResult{Reason: "display:none"}
	}
	if c.Style["visibility"] == "hidden" {
		return VisibilityResult{Reason: "visibility:hidden"}
	}
	if op, ok := c.Style["opacity"]; ok {
		if f, err := strconv.ParseFloat(op, 64); err == nil && f == 0 {
			return VisibilityResult{Reason: "opacity:0"}
		}
	}
	return VisibilityResult{Visible: true}
}

// CheckQuality enforces product-photo geometry: rendered size within
// bounds, intrinsic size above the minimum, and a sane aspect ratio.
//
// A 1x1 intrinsic size is a lazy-load stub and is exempt from the
// intrinsic-size check; the real image is validated once it loads.
func (v *VisibilityChecker) CheckQuality(c *page.Candidate) QualityResult {
	w, h := c.Width, c.Height

	if w > 0 && (w < v.MinRender || w > v.MaxRender) {
		return QualityResult{
			Reason: fmt.Sprintf("rendered width %dpx outside [%d,%d]", w, v.MinRender, v.MaxRender),
			Width:  w, Height: h,
		}
	}
	if h > 0 && (h < v.MinRender || h > v.MaxRender) {
		return QualityResult{
			Reason: fmt.Sprintf("rendered height %dpx outside [%d,%d]", h, v.MinRender, v.MaxRender),
			Width:  w, Height: h,
		}
	}

	nw, nh := c.NaturalWidth, c.NaturalHeight
	lazyStub := nw == 1 && nh == 1
	if !lazyStub {
		if nw > 0 && nw < v.MinNatural {
			return QualityResult{
				Reason: fmt.Sprintf("natural width %dpx below %dpx", nw, v.MinNatural),
				Width:  w, Height: h,
			}
		}
		if nh > 0 && nh < v.MinNatural {
			return QualityResult{
				Reason: fmt.Sprintf("natural height %dpx below %dpx", nh, v.MinNatural),
				Width:  w, Height: h,
			}
		}
	}

	if w > 0 && h > 0 {
		aspect := float64(w) / float64(h)
		if aspect < v.MinAspect || aspect > v.MaxAspect {
			return QualityResult{
				Reason: fmt.Sprintf("aspect ratio %.2f outside [%.1f,%.1f]", aspect, v.MinAspect, v.MaxAspect),
				Width:  w, Height: h,
			}
		}
	}

	return QualityResult{Valid: true, Width: w, Height: h}
}
