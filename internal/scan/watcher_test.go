package scan

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stylelens/stylelens/internal/llm"
	"github.com/stylelens/stylelens/internal/storage"
	"github.com/stylelens/stylelens/internal/style"
)

// watchStore serves a fixed set of watched pages; everything else is a
// no-op.
type watchStore struct {
	pages []storage.WatchedPage
}

func (s *watchStore) GetProfile(string) (*style.Profile, error) { return scanProfile(), nil }
func (s *watchStore) SaveProfile(string, *style.Profile) error { return nil }
func (s *watchStore) DeleteProfile(string) error { return nil }
func (s *watchStore) GetWardrobe(string) ([]storage.WardrobeItem, error) { return nil, nil }
func (s *watchStore) AddWardrobeItem(*storage.WardrobeItem) error { return nil }
func (s *watchStore) RemoveWardrobeItem(int64) error { return nil }
func (s *watchStore) GetAuthToken(string) ([]byte, error) { return nil, nil }
func (s *watchStore) SetAuthToken(string, []byte) error { return nil }
func (s *watchStore) GetWatchedPages() ([]storage.WatchedPage, error) { return s.pages, nil }
func (s *watchStore) AddWatchedPage(string, string) error { return nil }
func (s *watchStore) RemoveWatchedPage(int64) error { return nil }
func (s *watchStore) LoadAnalysisCache() (map[string]storage.CachedAnalysis, error) {
	return nil, nil
}
func (s *watchStore) SaveAnalysisCache(map[string]storage.CachedAnalysis) error { return nil }
func (s *watchStore) ClearAnalysisCache() error                                 { return nil }
func (s *watchStore) Close() error                                              { return nil }

func TestServiceRun_ScansImmediatelyOnStart(t *testing.T) {
	hits := make(chan struct{}, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case hits <- struct{}{}:
		default:
		}
		w.Write([]byte(catalogHTML))
	}))
	defer srv.Close()

	store := &watchStore{pages: []storage.WatchedPage{{ID: 1, UserID: "default", URL: srv.URL}}}
	svc := NewService(store, New(&llm.MockProvider{Ready: false, State: llm.Unavailable}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(done)
	}()

	// The watched page is scanned as soon as the service starts, not a
	// full poll interval later.
	select {
	case <-hits:
	case <-time.After(5 * time.Second):
		t.Fatal("watched page was not scanned on startup")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("service did not stop on context cancellation")
	}
}
