// Package manifest provides a SQLite-backed ingestion manifest. It records a
// content hash per documentation page so that re-running ingestion skips pages
// whose content has not changed, and re-embeds only what actually moved.
package manifest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// Page is the ingestion record for a single documentation page.
type Page struct {
	// URL is the canonical page URL.
	URL string
	// ContentHash is the hex-encoded SHA-256 of the extracted page text.
	ContentHash string
	// Chunks is the number of chunks the page was split into.
	Chunks int
	// IngestedAt is when the page was last ingested.
	IngestedAt time.Time
}

// Store persists and retrieves page ingestion records. Implementations must
// be safe for concurrent use.
type Store interface {
	// Lookup returns the record for a URL, or ok=false if never ingested.
	Lookup(ctx context.Context, url string) (Page, bool, error)
	// Record upserts the record for a page after a successful ingestion.
	Record(ctx context.Context, page Page) error
	// Close releases any resources held by the store.
	Close() error
}

// SQLiteStore is a Store backed by a local SQLite database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultDBPath returns the default path for the ingestion manifest database.
// It resolves to ~/.docsqa/manifest.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("manifest: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".docsqa")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("manifest: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "manifest.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("manifest: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS pages (
    url           TEXT    PRIMARY KEY,
    content_hash  TEXT    NOT NULL,
    chunks        INTEGER NOT NULL,
    ingested_at   INTEGER NOT NULL  -- Unix timestamp (seconds)
);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("manifest: migrate: %w", err)
	}
	return nil
}

// Lookup returns the record for a URL, or ok=false if never ingested.
func (s *SQLiteStore) Lookup(ctx context.Context, url string) (Page, bool, error) {
	const q = `SELECT content_hash, chunks, ingested_at FROM pages WHERE url = ?`

	var p Page
	var ts int64
	err := s.db.QueryRowContext(ctx, q, url).Scan(&p.ContentHash, &p.Chunks, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return Page{}, false, nil
	}
	if err != nil {
		return Page{}, false, fmt.Errorf("manifest: lookup: %w", err)
	}
	p.URL = url
	p.IngestedAt = time.Unix(ts, 0)
	return p, true, nil
}

// Record upserts the record for a page after a successful ingestion.
func (s *SQLiteStore) Record(ctx context.Context, page Page) error {
	const q = `
INSERT INTO pages (url, content_hash, chunks, ingested_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(url) DO UPDATE SET
    content_hash = excluded.content_hash,
    chunks       = excluded.chunks,
    ingested_at  = excluded.ingested_at`

	if _, err := s.db.ExecContext(ctx, q, page.URL, page.ContentHash, page.Chunks, time.Now().Unix()); err != nil {
		return fmt.Errorf("manifest: record: %w", err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("manifest: close: %w", err)
	}
	return nil
}
