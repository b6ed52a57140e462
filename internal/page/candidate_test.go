package page

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func selectImg(t *testing.T, html string) *goquery.Selection {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	sel := doc.Find("img").First()
	require.Equal(t, 1, sel.Length())
	return sel
}

func TestFromSelection_Attributes(t *testing.T) {
	c := FromSelection(selectImg(t, `<img
		src="https://cdn.shop.test/products/red-midi-dress.jpg"
		alt=" Red Midi Dress "
		title="Summer Collection"
		class="product-image"
		width="300" height="400">`))

	assert.Equal(t, "https://cdn.shop.test/products/red-midi-dress.jpg", c.Src)
	assert.Equal(t, "Red Midi Dress", c.Alt)
	assert.Equal(t, "Summer Collection", c.Title)
	assert.Equal(t, "product-image", c.Class)
	assert.Equal(t, 300, c.Width)
	assert.Equal(t, 400, c.Height)
	assert.NotEmpty(t, c.ID)
	assert.False(t, c.Synthetic)
}

func TestFromSelection_LazySrcFallback(t *testing.T) {
	c := FromSelection(selectImg(t, `<img data-src="https://cdn.shop.test/lazy.jpg">`))
	assert.Equal(t, "https://cdn.shop.test/lazy.jpg", c.Src)
}

func TestFromSelection_InlineStyleDimensions(t *testing.T) {
	c := FromSelection(selectImg(t, `<img src="https://x.test/a.jpg" style="Width: 250px; HEIGHT: 310px; display: NONE">`))

	assert.Equal(t, 250, c.Width)
	assert.Equal(t, 310, c.Height)
	assert.Equal(t, "none", c.Style["display"])
}

func TestFromSelection_NaturalDimensions(t *testing.T) {
	c := FromSelection(selectImg(t, `<img src="https://x.test/a.jpg" width="150" height="200" data-natural-width="1" data-natural-height="1">`))

	assert.Equal(t, 1, c.NaturalWidth)
	assert.Equal(t, 1, c.NaturalHeight)

	// Without explicit natural dimensions the declared size is assumed.
	c = FromSelection(selectImg(t, `<img src="https://x.test/a.jpg" width="150" height="200">`))
	assert.Equal(t, 150, c.NaturalWidth)
	assert.Equal(t, 200, c.NaturalHeight)
}

func TestFromSelection_SyntheticMarker(t *testing.T) {
	c := FromSelection(selectImg(t, `<img src="https://x.test/tryon.jpg" `+SyntheticAttr+`="1">`))
	assert.True(t, c.Synthetic)
}

func TestFromSelection_ProductCardContext(t *testing.T) {
	c := FromSelection(selectImg(t, `<div class="ProductCard"><span><img src="https://x.test/a.jpg"></span></div>`))
	assert.True(t, c.InProductCard)

	c = FromSelection(selectImg(t, `<div class="hero"><img src="https://x.test/a.jpg"></div>`))
	assert.False(t, c.InProductCard)
}

func TestIdentity(t *testing.T) {
	withSrc := &Candidate{ID: "id-1", Src: "https://x.test/a.jpg"}
	assert.Equal(t, "https://x.test/a.jpg", withSrc.Identity())

	srcless := &Candidate{ID: "id-2"}
	assert.Equal(t, "id-2", srcless.Identity())
}

func TestTextSignals(t *testing.T) {
	c := &Candidate{
		Alt:   "Red Midi Dress",
		Title: "Summer Sale",
		Src:   "https://cdn.shop.test/images/wool_coat-navy.jpg?v=2",
	}

	sig := c.TextSignals()
	assert.Equal(t, "red midi dress summer sale wool coat navy", sig)
	assert.True(t, c.HasText())

	empty := &Candidate{Src: "https://x.test/a.jpg"}
	assert.False(t, empty.HasText(), "filename alone is not a direct text signal")
}

func TestParsePx(t *testing.T) {
	assert.Equal(t, 250, parsePx("250px"))
	assert.Equal(t, 250, parsePx(" 250.4px "))
	assert.Zero(t, parsePx("50%"))
	assert.Zero(t, parsePx("auto"))
	assert.Zero(t, parsePx(""))
}
