package page

import (
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"golang.org/x/net/html"
)

// SyntheticAttr marks images produced by the try-on generator. Candidates
// carrying it are never re-detected as shoppable products.
const SyntheticAttr = "data-stylelens-generated"

// Candidate is a reference to an image element plus metadata derived from
// its attributes. Candidates are discovered fresh on each detection pass
// and are not persisted.
type Candidate struct {
	ID    string
	Src   string
	Alt   string
	Title string
	Class string

	// Declared (rendered) size from width/height attributes or inline style.
	Width  int
	Height int

	// Intrinsic size when the document declares it separately. Falls back
	// to the declared size when absent.
	NaturalWidth  int
	NaturalHeight int

	// Parsed inline style, lowercased property -> value.
	Style map[string]string

	// Synthetic is set when the element carries the generated-image marker.
	Synthetic bool

	// InProductCard is set when an ancestor looks like a product card or
	// grid cell. Used by the context heuristic when classification fails.
	InProductCard bool

	node *html.Node
}

// cardContextClasses are ancestor class fragments that suggest the image
// sits inside a product listing layout.
var cardContextClasses = []string{"product", "card", "grid", "tile", "item", "listing"}

// FromSelection builds a Candidate from an img selection.
func FromSelection(sel *goquery.Selection) *Candidate {
	c := &Candidate{
		ID:    uuid.NewString(),
		Src:   strings.TrimSpace(sel.AttrOr("src", sel.AttrOr("data-src", ""))),
		Alt:   strings.TrimSpace(sel.AttrOr("alt", "")),
		Title: strings.TrimSpace(sel.AttrOr("title", "")),
		Class: sel.AttrOr("class", ""),
		Style: parseInlineStyle(sel.AttrOr("style", "")),
	}
	if _, ok := sel.Attr(SyntheticAttr); ok {
		c.Synthetic = true
	}

	c.Width = dimensionOf(sel, "width", c.Style)
	c.Height = dimensionOf(sel, "height", c.Style)

	c.NaturalWidth = intAttr(sel, "data-natural-width")
	c.NaturalHeight = intAttr(sel, "data-natural-height")
	if c.NaturalWidth == 0 {
		c.NaturalWidth = c.Width
	}
	if c.NaturalHeight == 0 {
		c.NaturalHeight = c.Height
	}

	c.InProductCard = hasCardAncestor(sel)

	if len(sel.Nodes) > 0 {
		c.node = sel.Nodes[0]
	}
	return c
}

// Identity returns a stable identity for caching. The source URL is
// preferred; src-less candidates fall back to their generated ID.
func (c *Candidate) Identity() string {
	if c.Src != "" {
		return c.Src
	}
	return c.ID
}

// TextSignals joins the candidate's alt text, title and filename-derived
// words into a single lowercased string for text classification.
func (c *Candidate) TextSignals() string {
	parts := make([]string, 0, 3)
	if c.Alt != "" {
		parts = append(parts, c.Alt)
	}
	if c.Title != "" {
		parts = append(parts, c.Title)
	}
	if w := filenameWords(c.Src); w != "" {
		parts = append(parts, w)
	}
	return strings.ToLower(strings.Join(parts, " "))
}

// HasText reports whether any textual signal exists at all.
func (c *Candidate) HasText() bool {
	return c.Alt != "" || c.Title != ""
}

// Node returns the underlying parsed HTML node, used for identity
// deduplication during discovery.
func (c *Candidate) Node() *html.Node {
	return c.node
}

// filenameWords extracts words from the last path segment of a URL,
// splitting on common separators and dropping the extension.
func filenameWords(src string) string {
	if src == "" {
		return ""
	}
	u, err := url.Parse(src)
	if err != nil {
		return ""
	}
	base := path.Base(u.Path)
	if i := strings.LastIndex(base, "."); i > 0 {
		base = base[:i]
	}
	base = strings.NewReplacer("-", " ", "_", " ", "+", " ", "%20", " ").Replace(base)
	return strings.TrimSpace(base)
}

func parseInlineStyle(style string) map[string]string {
	if style == "" {
		return nil
	}
	m := make(map[string]string)
	for _, decl := range strings.Split(style, ";") {
		k, v, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		k = strings.ToLower(strings.TrimSpace(k))
		v = strings.ToLower(strings.TrimSpace(v))
		if k != "" && v != "" {
			m[k] = v
		}
	}
	return m
}

// dimensionOf resolves a rendered dimension from the attribute or, failing
// that, a pixel value in the inline style. Unknown dimensions are zero.
func dimensionOf(sel *goquery.Selection, name string, style map[string]string) int {
	if n := intAttr(sel, name); n > 0 {
		return n
	}
	if v, ok := style[name]; ok {
		return parsePx(v)
	}
	return 0
}

func intAttr(sel *goquery.Selection, name string) int {
	v, ok := sel.Attr(name)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimSpace(v), "px"))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func parsePx(v string) int {
	v = strings.TrimSpace(v)
	if !strings.HasSuffix(v, "px") {
		return 0
	}
	n, err := strconv.ParseFloat(strings.TrimSuffix(v, "px"), 64)
	if err != nil || n < 0 {
		return 0
	}
	return int(n)
}

func hasCardAncestor(sel *goquery.Selection) bool {
	for p := sel.Parent(); p.Length() > 0; p = p.Parent() {
		class := strings.ToLower(p.AttrOr("class", ""))
		if class == "" {
			continue
		}
		for _, frag := range cardContextClasses {
			if strings.Contains(class, frag) {
				return true
			}
		}
	}
	return false
}
