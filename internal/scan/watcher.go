package scan

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/stylelens/stylelens/internal/storage"
)

const (
	// PollInterval is the time between re-scan cycles.
	PollInterval = 30 * time.Minute

	// DelayBetweenPages is the pause between scanning each watched page.
	DelayBetweenPages = 2 * time.Second
)

// Service periodically re-scans watched pages against each owner's
// current style profile.
type Service struct {
	store   storage.Store
	scanner *Scanner
}

// NewService creates the watch service.
func NewService(store storage.Store, scanner *Scanner) *Service {
	return &Service{store: store, scanner: scanner}
}

// Run starts the polling loop. It blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) {
	log.Info().Dur("interval", PollInterval).Msg("starting page watch service")

	// First pass right away; the ticker only covers the cycles after it.
	s.poll(ctx)

	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("page watch service stopped")
			return
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

func (s *Service) poll(ctx context.Context) {
	pages, err := s.store.GetWatchedPages()
	if err != nil {
		log.Error().Err(err).Msg("failed to load watched pages")
		return
	}

	for _, p := range pages {
		if ctx.Err() != nil {
			return
		}

		profile, err := s.store.GetProfile(p.UserID)
		if err != nil {
			log.Warn().Err(err).Str("user", p.UserID).Msg("failed to load profile for watch")
		}

		report, err := s.scanner.ScanPage(ctx, p.URL, profile)
		if err != nil {
			log.Warn().Err(err).Str("url", p.URL).Msg("watched page scan failed")
		} else {
			log.Info().
				Str("url", p.URL).
				Int("detected", len(report.Detected)).
				Msg("watched page re-scanned")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(DelayBetweenPages):
		}
	}
}
