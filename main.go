package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/stylelens/stylelens/config"
	"github.com/stylelens/stylelens/internal/engine"
	"github.com/stylelens/stylelens/internal/llm"
	"github.com/stylelens/stylelens/internal/scan"
	"github.com/stylelens/stylelens/internal/storage"
)

const defaultUserID = "default"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	config.LoadEnvFile()

	dbPath := config.Getenv("STYLELENS_DB_PATH", "stylelens.db")

	// Token encryption key (required only once auth tokens are stored,
	// but deriving it up front catches misconfiguration early)
	tokenKey := config.Getenv("STYLELENS_TOKEN_KEY", "stylelens-dev-key")
	encryptionKey, err := storage.DeriveKey(tokenKey)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to derive encryption key")
	}

	store, err := storage.NewSQLiteStore(dbPath, encryptionKey)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize store")
	}
	defer store.Close()
	log.Info().Str("dbPath", dbPath).Msg("store initialized")

	// Create context that cancels on SIGINT or SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// The AI capability is optional: without GEMINI_API_KEY every
	// classification layer falls back to deterministic heuristics.
	var provider llm.Provider
	if os.Getenv("GEMINI_API_KEY") != "" {
		gemini, err := llm.NewGeminiProvider(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("gemini unavailable, using heuristics only")
		} else {
			provider = gemini
			log.Info().Msg("gemini provider initialized")
		}
	} else {
		log.Warn().Msg("GEMINI_API_KEY not set, using heuristics only")
	}

	scanner := scan.New(provider)
	warmEngineCache(scanner, store)
	defer persistEngineCache(scanner, store)

	// URLs on the command line: scan each once and exit.
	if len(os.Args) > 1 {
		profile, err := store.GetProfile(defaultUserID)
		if err != nil {
			log.Warn().Err(err).Msg("failed to load style profile")
		}
		for _, url := range os.Args[1:] {
			report, err := scanner.ScanPage(ctx, url, profile)
			if err != nil {
				log.Error().Err(err).Str("url", url).Msg("scan failed")
				continue
			}
			log.Info().
				Str("url", url).
				Int("candidates", report.Candidates).
				Int("detected", len(report.Detected)).
				Int("rejected", len(report.Rejected)).
				Float64("avgScore", report.Stats.AverageScore).
				Msg("scan report")
		}
		return
	}

	// No URLs: run the watch service over stored pages.
	g, ctx := errgroup.WithContext(ctx)
	watchService := scan.NewService(store, scanner)
	g.Go(func() error {
		watchService.Run(ctx)
		return nil
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Error().Err(err).Msg("shutdown with error")
	} else {
		log.Info().Msg("shutdown complete")
	}
}

// warmEngineCache seeds the analysis cache from the previous run.
func warmEngineCache(scanner *scan.Scanner, store storage.Store) {
	entries, err := store.LoadAnalysisCache()
	if err != nil {
		log.Warn().Err(err).Msg("failed to load persisted analysis cache")
		return
	}
	if len(entries) == 0 {
		return
	}
	warm := make(map[string]engine.Result, len(entries))
	for k, e := range entries {
		warm[k] = engine.Result{
			Score:      e.Score,
			Reasoning:  e.Reasoning,
			Confidence: e.Confidence,
			Method:     e.Method,
		}
	}
	scanner.Engine().WarmCache(warm)
	log.Info().Int("entries", len(warm)).Msg("analysis cache warmed")
}

// persistEngineCache saves the analysis cache for the next run.
func persistEngineCache(scanner *scan.Scanner, store storage.Store) {
	snapshot := scanner.Engine().CacheSnapshot()
	if len(snapshot) == 0 {
		return
	}
	entries := make(map[string]storage.CachedAnalysis, len(snapshot))
	for k, r := range snapshot {
		entries[k] = storage.CachedAnalysis{
			Score:      r.Score,
			Reasoning:  r.Reasoning,
			Confidence: r.Confidence,
			Method:     r.Method,
		}
	}
	if err := store.SaveAnalysisCache(entries); err != nil {
		log.Warn().Err(err).Msg("failed to persist analysis cache")
		return
	}
	log.Info().Int("entries", len(entries)).Msg("analysis cache persisted")
}
