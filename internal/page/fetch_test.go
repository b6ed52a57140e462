package page

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><img src="https://x.test/products/a.jpg"></body></html>`))
	}))
	defer srv.Close()

	f := NewFetcher(FetcherOpts{})
	doc, host, err := f.FetchPage(context.Background(), srv.URL+"/catalog")

	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", host)
	assert.Equal(t, 1, doc.Find("img").Length())
}

func TestFetchPage_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewFetcher(FetcherOpts{})
	_, _, err := f.FetchPage(context.Background(), srv.URL)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestFetchPage_CustomUserAgent(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
		w.Write([]byte("<html></html>"))
	}))
	defer srv.Close()

	f := NewFetcher(FetcherOpts{UserAgent: "stylelens-test/1.0"})
	_, _, err := f.FetchPage(context.Background(), srv.URL)

	require.NoError(t, err)
	assert.Equal(t, "stylelens-test/1.0", got)
}

func TestFetchImage(t *testing.T) {
	payload := []byte{0xff, 0xd8, 0xff, 0xe0}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(payload)
	}))
	defer srv.Close()

	f := NewFetcher(FetcherOpts{})
	body, contentType, err := f.FetchImage(context.Background(), srv.URL+"/a.jpg")

	require.NoError(t, err)
	assert.Equal(t, payload, body)
	assert.Equal(t, "image/jpeg", contentType)
}

func TestFetchImage_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	f := NewFetcher(FetcherOpts{})
	_, _, err := f.FetchImage(context.Background(), srv.URL)
	assert.Error(t, err)
}
