package page

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func docFrom(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func srcsOf(candidates []*Candidate) []string {
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.Src
	}
	return out
}

func TestFindCandidates_SiteSelectorsFirst(t *testing.T) {
	doc := docFrom(t, `<html><body>
		<article data-auto-id="productTile"><img src="https://images.asos-media.com/1.jpg"></article>
		<article data-auto-id="productTile"><img src="https://images.asos-media.com/2.jpg"></article>
		<div class="product-grid">
			<img src="https://cdn.other.test/3.jpg" class="product-photo">
			<img src="https://cdn.other.test/4.jpg" class="product-photo">
			<img src="https://cdn.other.test/5.jpg" class="product-photo">
		</div>
	</body></html>`)

	f := NewFinder(DefaultFinderConfig(), nil)
	site := LookupSite("www.asos.com")
	require.NotNil(t, site)

	got := srcsOf(f.FindCandidates(doc, site))

	require.Len(t, got, 5)
	// Site-specific selectors run before the generic layer.
	assert.Equal(t, "https://images.asos-media.com/1.jpg", got[0])
	assert.Equal(t, "https://images.asos-media.com/2.jpg", got[1])
}

func TestFindCandidates_DeduplicatesAcrossLayers(t *testing.T) {
	// The same element matches both an image selector and a card selector.
	doc := docFrom(t, `<html><body>
		<section class="product-list">
			<img src="https://images.asos-media.com/products/1.jpg">
		</section>
		<img src="https://x.test/product-2.jpg">
		<img src="https://x.test/product-3.jpg">
		<img src="https://x.test/product-4.jpg">
		<img src="https://x.test/product-5.jpg">
	</body></html>`)

	f := NewFinder(DefaultFinderConfig(), nil)
	got := f.FindCandidates(doc, LookupSite("asos.com"))

	assert.Len(t, got, 5)
}

func TestFindCandidates_UniversalFallbackBelowThreshold(t *testing.T) {
	// No selector layer matches these plain images, so the universal
	// fallback must admit them.
	doc := docFrom(t, `<html><body>
		<img src="https://cdn.x.test/a.jpg">
		<img src="https://cdn.x.test/b.jpg">
	</body></html>`)

	f := NewFinder(DefaultFinderConfig(), nil)
	got := f.FindCandidates(doc, nil)

	assert.Len(t, got, 2)
}

func TestFindCandidates_FallbackFilterApplied(t *testing.T) {
	doc := docFrom(t, `<html><body>
		<img src="https://cdn.x.test/photo.jpg">
		<img src="https://cdn.x.test/logo.png">
	</body></html>`)

	f := NewFinder(DefaultFinderConfig(), func(c *Candidate) bool {
		return !strings.Contains(c.Src, "logo")
	})
	got := srcsOf(f.FindCandidates(doc, nil))

	assert.Equal(t, []string{"https://cdn.x.test/photo.jpg"}, got)
}

func TestFindCandidates_NoFallbackWhenEnoughFound(t *testing.T) {
	doc := docFrom(t, `<html><body>
		<div class="product-card"><img src="https://x.test/1.jpg"></div>
		<div class="product-card"><img src="https://x.test/2.jpg"></div>
		<div class="product-card"><img src="https://x.test/3.jpg"></div>
		<div class="product-card"><img src="https://x.test/4.jpg"></div>
		<div class="product-card"><img src="https://x.test/5.jpg"></div>
		<img src="https://x.test/unrelated.jpg">
	</body></html>`)

	f := NewFinder(DefaultFinderConfig(), nil)
	got := srcsOf(f.FindCandidates(doc, nil))

	assert.Len(t, got, 5)
	assert.NotContains(t, got, "https://x.test/unrelated.jpg")
}

func TestFindCandidates_EmptyDocument(t *testing.T) {
	f := NewFinder(DefaultFinderConfig(), nil)
	got := f.FindCandidates(docFrom(t, `<html><body><p>nothing here</p></body></html>`), nil)
	assert.Empty(t, got)
}

func TestLookupSite(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"www.zalando.fi", "zalando"},
		{"zalando.de", "zalando"},
		{"en.zalando.de", "zalando"},
		{"www2.hm.com", "hm"},
		{"www.amazon.co.uk", "amazon"},
		{"shop.example.com", ""},
		{"notzalando.de", ""},
	}
	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			site := LookupSite(tt.host)
			if tt.want == "" {
				assert.Nil(t, site)
			} else {
				require.NotNil(t, site)
				assert.Equal(t, tt.want, site.Name)
			}
		})
	}
}
