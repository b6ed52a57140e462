package page

import "strings"

// SiteConfig describes how to locate product images on a known retailer.
type SiteConfig struct {
	Name string

	// Hosts this configuration applies to, matched by suffix.
	Hosts []string

	// ImageSelectors match product images directly.
	ImageSelectors []string

	// CardSelectors match product card containers; images nested inside
	// them become candidates.
	CardSelectors []string
}

// builtinSites covers the retailers the overlay renderer was tuned for.
// Unknown hosts fall through to the generic selector layer.
var builtinSites = []SiteConfig{
	{
		Name:  "zalando",
		Hosts: []string{"zalando.com", "zalando.de", "zalando.fi", "zalando.co.uk"},
		ImageSelectors: []string{
			"img[src*='ztat.net']",
			"article img",
		},
		CardSelectors: []string{
			"article[class*='catalog']",
			"[data-testid='product-card']",
		},
	},
	{
		Name:  "asos",
		Hosts: []string{"asos.com"},
		ImageSelectors: []string{
			"img[src*='asos-media']",
		},
		CardSelectors: []string{
			"article[data-auto-id='productTile']",
			"section[class*='product']",
		},
	},
	{
		Name:  "hm",
		Hosts: []string{"hm.com", "www2.hm.com"},
		ImageSelectors: []string{
			"img[src*='hmgoepprod']",
		},
		CardSelectors: []string{
			"li[class*='product-item']",
			"article[class*='product']",
		},
	},
	{
		Name:  "amazon",
		Hosts: []string{"amazon.com", "amazon.de", "amazon.co.uk"},
		ImageSelectors: []string{
			"img[src*='images-amazon']",
			"img[src*='m.media-amazon']",
		},
		CardSelectors: []string{
			"div[data-component-type='s-search-result']",
		},
	},
}

// LookupSite returns the configuration matching the host, or nil when the
// host is unknown and only generic discovery applies.
func LookupSite(host string) *SiteConfig {
	host = strings.ToLower(strings.TrimPrefix(host, "www."))
	for i := range builtinSites {
		for _, h := range builtinSites[i].Hosts {
			if host == h || strings.HasSuffix(host, "."+h) {
				return &builtinSites[i]
			}
		}
	}
	return nil
}
