package page

import (
	"bytes"
	"context"
	"fmt"
	"net/url"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// FetcherOpts configures the page fetcher.
type FetcherOpts struct {
	UserAgent string
}

// Fetcher downloads pages and image bytes.
type Fetcher struct {
	httpClient *resty.Client
}

// NewFetcher creates a Fetcher with sane defaults.
func NewFetcher(opts FetcherOpts) *Fetcher {
	ua := opts.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	c := resty.New().
		SetDebug(false).
		SetHeaders(map[string]string{
			"Accept":     "text/html,application/xhtml+xml,image/*;q=0.9,*/*;q=0.8",
			"User-Agent": ua,
		})
	return &Fetcher{httpClient: c}
}

// FetchPage downloads a URL and parses it into a document. The returned
// host is the normalized hostname for site-config lookup.
func (f *Fetcher) FetchPage(ctx context.Context, pageURL string) (*goquery.Document, string, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, "", fmt.Errorf("parse url: %w", err)
	}

	res, err := f.httpClient.R().SetContext(ctx).Get(pageURL)
	if err != nil {
		return nil, "", fmt.Errorf("fetch page: %w", err)
	}
	if res.StatusCode() >= 400 {
		return nil, "", fmt.Errorf("fetch page: status %d", res.StatusCode())
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		return nil, "", fmt.Errorf("parse page: %w", err)
	}

	log.Debug().Str("url", pageURL).Int("bytes", len(res.Body())).Msg("page fetched")
	return doc, u.Hostname(), nil
}

// FetchImage downloads raw image bytes for vision classification.
// Returns the bytes and the response content type.
func (f *Fetcher) FetchImage(ctx context.Context, imageURL string) ([]byte, string, error) {
	res, err := f.httpClient.R().SetContext(ctx).Get(imageURL)
	if err != nil {
		return nil, "", fmt.Errorf("fetch image: %w", err)
	}
	if res.StatusCode() >= 400 {
		return nil, "", fmt.Errorf("fetch image: status %d", res.StatusCode())
	}
	return res.Body(), res.Header().Get("Content-Type"), nil
}
