// Command scan-page runs one detection pass over a URL and prints the
// report as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/stylelens/stylelens/config"
	"github.com/stylelens/stylelens/internal/llm"
	"github.com/stylelens/stylelens/internal/scan"
	"github.com/stylelens/stylelens/internal/storage"
)

func main() {
	url := flag.String("url", "", "page URL to scan")
	userID := flag.String("user", "default", "user whose style profile to score against")
	dbPath := flag.String("db", "stylelens.db", "path to the store database")
	prompt := flag.String("prompt", "", "optional search prompt to rank detected items against")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	config.LoadEnvFile()

	if *url == "" {
		fmt.Fprintln(os.Stderr, "usage: scan-page -url <page url> [-user id] [-db path]")
		os.Exit(1)
	}

	ctx := context.Background()

	var provider llm.Provider
	if os.Getenv("GEMINI_API_KEY") != "" {
		gemini, err := llm.NewGeminiProvider(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("gemini unavailable, using heuristics only")
		} else {
			provider = gemini
		}
	}

	key, err := storage.DeriveKey(config.Getenv("STYLELENS_TOKEN_KEY", "stylelens-dev-key"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to derive encryption key")
	}
	store, err := storage.NewSQLiteStore(*dbPath, key)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer store.Close()

	profile, err := store.GetProfile(*userID)
	if err != nil {
		log.Warn().Err(err).Msg("failed to load profile, scoring without one")
	}

	scanner := scan.New(provider)
	var report *scan.Report
	if *prompt != "" {
		report, err = scanner.ScanPageForPrompt(ctx, *url, profile, *prompt)
	} else {
		report, err = scanner.ScanPage(ctx, *url, profile)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("scan failed")
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		log.Fatal().Err(err).Msg("failed to encode report")
	}
}
