package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/stylelens/stylelens/internal/style"
)

// WardrobeItem is one saved garment in a user's wardrobe.
type WardrobeItem struct {
	ID       int64
	UserID   string
	Label    string
	ImageURL string
	AddedAt  time.Time
}

// WatchedPage is a page URL the service re-scans periodically.
type WatchedPage struct {
	ID      int64
	UserID  string
	URL     string
	AddedAt time.Time
}

// CachedAnalysis is one persisted analysis result, keyed by the engine's
// cache key. Persisting the cache lets a restart skip re-analyzing
// unchanged pages.
type CachedAnalysis struct {
	Score      int
	Reasoning  string
	Confidence float64
	Method     string
}

// Store defines persistence for profiles, wardrobe and auth state. The
// detection pipeline consumes profiles read-only.
type Store interface {
	GetProfile(userID string) (*style.Profile, error)
	SaveProfile(userID string, p *style.Profile) error
	DeleteProfile(userID string) error

	GetWardrobe(userID string) ([]WardrobeItem, error)
	AddWardrobeItem(item *WardrobeItem) error
	RemoveWardrobeItem(id int64) error

	GetAuthToken(userID string) ([]byte, error)
	SetAuthToken(userID string, token []byte) error

	GetWatchedPages() ([]WatchedPage, error)
	AddWatchedPage(userID, url string) error
	RemoveWatchedPage(id int64) error

	LoadAnalysisCache() (map[string]CachedAnalysis, error)
	SaveAnalysisCache(entries map[string]CachedAnalysis) error
	ClearAnalysisCache() error

	Close() error
}

// SQLiteStore implements Store using SQLite with encrypted auth tokens.
type SQLiteStore struct {
	db            *sql.DB
	encryptionKey []byte
	mu            sync.RWMutex
}

// NewSQLiteStore creates a new SQLite-based store. The encryptionKey is
// used to encrypt auth token blobs.
func NewSQLiteStore(dbPath string, encryptionKey []byte) (*SQLiteStore, error) {
	// WAL mode and a busy timeout for better concurrency
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set file permissions (only works on creation)
	if err := os.Chmod(dbPath, 0600); err != nil && !os.IsNotExist(err) {
		// Ignore error if file doesn't exist yet
	}

	store := &SQLiteStore{
		db:            db,
		encryptionKey: encryptionKey,
	}

	if err := store.init(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) init() error {
	query := `
	CREATE TABLE IF NOT EXISTS profiles (
		user_id TEXT PRIMARY KEY,
		profile_json TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS wardrobe_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		label TEXT NOT NULL,
		image_url TEXT NOT NULL,
		added_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_wardrobe_user ON wardrobe_items(user_id);
	CREATE TABLE IF NOT EXISTS auth_tokens (
		user_id TEXT PRIMARY KEY,
		encrypted_token TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS watched_pages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		url TEXT NOT NULL UNIQUE,
		added_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS analysis_cache (
		cache_key TEXT PRIMARY KEY,
		score INTEGER NOT NULL,
		reasoning TEXT NOT NULL,
		confidence REAL NOT NULL,
		method TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// GetProfile returns the user's style profile, or nil when none exists.
func (s *SQLiteStore) GetProfile(userID string) (*style.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var raw string
	err := s.db.QueryRow("SELECT profile_json FROM profiles WHERE user_id = ?", userID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query profile: %w", err)
	}

	var p style.Profile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}
	return &p, nil
}

// SaveProfile upserts the user's style profile.
func (s *SQLiteStore) SaveProfile(userID string, p *style.Profile) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(`
		INSERT INTO profiles (user_id, profile_json, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(user_id) DO UPDATE SET
			profile_json = excluded.profile_json,
			updated_at = CURRENT_TIMESTAMP
	`, userID, string(raw))
	if err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

// DeleteProfile removes the user's style profile.
func (s *SQLiteStore) DeleteProfile(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("DELETE FROM profiles WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
	}
	return nil
}

// GetWardrobe returns the user's saved wardrobe items, newest first.
func (s *SQLiteStore) GetWardrobe(userID string) ([]WardrobeItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, user_id, label, image_url, added_at
		FROM wardrobe_items WHERE user_id = ? ORDER BY added_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query wardrobe: %w", err)
	}
	defer rows.Close()

	var items []WardrobeItem
	for rows.Next() {
		var it WardrobeItem
		if err := rows.Scan(&it.ID, &it.UserID, &it.Label, &it.ImageURL, &it.AddedAt); err != nil {
			return nil, fmt.Errorf("failed to scan wardrobe item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// AddWardrobeItem inserts a wardrobe item and fills in its ID.
func (s *SQLiteStore) AddWardrobeItem(item *WardrobeItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		INSERT INTO wardrobe_items (user_id, label, image_url) VALUES (?, ?, ?)
	`, item.UserID, item.Label, item.ImageURL)
	if err != nil {
		return fmt.Errorf("failed to add wardrobe item: %w", err)
	}
	item.ID, _ = res.LastInsertId()
	return nil
}

// RemoveWardrobeItem deletes one wardrobe item by ID.
func (s *SQLiteStore) RemoveWardrobeItem(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("DELETE FROM wardrobe_items WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to remove wardrobe item: %w", err)
	}
	return nil
}

// GetAuthToken returns the decrypted auth token blob, or nil when absent.
func (s *SQLiteStore) GetAuthToken(userID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var encrypted string
	err := s.db.QueryRow("SELECT encrypted_token FROM auth_tokens WHERE user_id = ?", userID).Scan(&encrypted)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query auth token: %w", err)
	}

	return Decrypt(encrypted, s.encryptionKey)
}

// SetAuthToken encrypts and upserts the auth token blob.
func (s *SQLiteStore) SetAuthToken(userID string, token []byte) error {
	encrypted, err := Encrypt(token, s.encryptionKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt token: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(`
		INSERT INTO auth_tokens (user_id, encrypted_token, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(user_id) DO UPDATE SET
			encrypted_token = excluded.encrypted_token,
			updated_at = CURRENT_TIMESTAMP
	`, userID, encrypted)
	if err != nil {
		return fmt.Errorf("failed to save auth token: %w", err)
	}
	return nil
}

// GetWatchedPages returns every watched page across users.
func (s *SQLiteStore) GetWatchedPages() ([]WatchedPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query("SELECT id, user_id, url, added_at FROM watched_pages ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query watched pages: %w", err)
	}
	defer rows.Close()

	var pages []WatchedPage
	for rows.Next() {
		var p WatchedPage
		if err := rows.Scan(&p.ID, &p.UserID, &p.URL, &p.AddedAt); err != nil {
			return nil, fmt.Errorf("failed to scan watched page: %w", err)
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

// AddWatchedPage registers a page URL for periodic re-scanning.
func (s *SQLiteStore) AddWatchedPage(userID, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO watched_pages (user_id, url) VALUES (?, ?)
		ON CONFLICT(url) DO NOTHING
	`, userID, url)
	if err != nil {
		return fmt.Errorf("failed to add watched page: %w", err)
	}
	return nil
}

// RemoveWatchedPage deletes one watched page by ID.
func (s *SQLiteStore) RemoveWatchedPage(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("DELETE FROM watched_pages WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to remove watched page: %w", err)
	}
	return nil
}

// LoadAnalysisCache returns every persisted analysis result.
func (s *SQLiteStore) LoadAnalysisCache() (map[string]CachedAnalysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query("SELECT cache_key, score, reasoning, confidence, method FROM analysis_cache")
	if err != nil {
		return nil, fmt.Errorf("failed to query analysis cache: %w", err)
	}
	defer rows.Close()

	entries := make(map[string]CachedAnalysis)
	for rows.Next() {
		var key string
		var e CachedAnalysis
		if err := rows.Scan(&key, &e.Score, &e.Reasoning, &e.Confidence, &e.Method); err != nil {
			return nil, fmt.Errorf("failed to scan cache entry: %w", err)
		}
		entries[key] = e
	}
	return entries, rows.Err()
}

// SaveAnalysisCache upserts the given analysis results.
func (s *SQLiteStore) SaveAnalysisCache(entries map[string]CachedAnalysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin cache save: %w", err)
	}
	for key, e := range entries {
		_, err := tx.Exec(`
			INSERT INTO analysis_cache (cache_key, score, reasoning, confidence, method, updated_at)
			VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(cache_key) DO UPDATE SET
				score = excluded.score,
				reasoning = excluded.reasoning,
				confidence = excluded.confidence,
				method = excluded.method,
				updated_at = CURRENT_TIMESTAMP
		`, key, e.Score, e.Reasoning, e.Confidence, e.Method)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to save cache entry: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cache save: %w", err)
	}
	return nil
}

// ClearAnalysisCache drops every persisted analysis result, e.g. after a
// profile change invalidates them.
func (s *SQLiteStore) ClearAnalysisCache() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("DELETE FROM analysis_cache"); err != nil {
		return fmt.Errorf("failed to clear analysis cache: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
