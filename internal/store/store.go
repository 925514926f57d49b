// Package store persists PSM and peak tables in a SQLite cache so a results
// browser can read them without parsing the source documents again.
package store

import (
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 1

// ErrNotFound is returned when a cache, row or run does not exist.
var ErrNotFound = errors.New("not found in cache")

// Store is an open cache database.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the cache at path, creating parent directories.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	// Pragmas in the connection string apply to all connections
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, path: path}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file.
func (s *Store) Path() string {
	return s.path
}

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	version, err := GetUserVersion(db)
	if err != nil {
		return err
	}

	// Migration 0 -> 1: Initial schema
	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS runs (
		  id         TEXT PRIMARY KEY,
		  workspace  TEXT NOT NULL,
		  created_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS files (
		  file_index INTEGER PRIMARY KEY,
		  filename   TEXT NOT NULL UNIQUE
		);

		CREATE TABLE IF NOT EXISTS psm_tables (
		  cache_id          TEXT PRIMARY KEY,
		  run_id            TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		  path              TEXT NOT NULL,
		  format            TEXT NOT NULL,
		  score_type        TEXT NOT NULL,
		  source_files_json TEXT NOT NULL
		);

		-- NaN values are stored as NULL
		CREATE TABLE IF NOT EXISTS psms (
		  cache_id          TEXT NOT NULL REFERENCES psm_tables(cache_id) ON DELETE CASCADE,
		  id_idx            INTEGER NOT NULL,
		  scan_id           INTEGER NOT NULL,
		  file_index        INTEGER NOT NULL,
		  filename          TEXT NOT NULL,
		  sequence          TEXT NOT NULL,
		  charge            INTEGER NOT NULL,
		  mz                REAL,
		  rt                REAL,
		  score             REAL,
		  protein_accession TEXT NOT NULL,
		  PRIMARY KEY (cache_id, id_idx)
		);

		CREATE INDEX IF NOT EXISTS idx_psms_scan
		ON psms(file_index, scan_id);

		CREATE TABLE IF NOT EXISTS peaks (
		  peak_id    INTEGER PRIMARY KEY,
		  file_index INTEGER NOT NULL,
		  scan_id    INTEGER NOT NULL,
		  mass       REAL,
		  intensity  REAL
		);

		CREATE INDEX IF NOT EXISTS idx_peaks_scan
		ON peaks(file_index, scan_id, peak_id);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := SetUserVersion(db, 1); err != nil {
			return err
		}
	}

	return nil
}

// verifyWALMode checks that WAL mode is active (set via connection string).
func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

// GetUserVersion returns the current schema version (user_version pragma).
func GetUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

// SetUserVersion sets the schema version (user_version pragma).
func SetUserVersion(db *sql.DB, version int) error {
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version))
	if err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}

// generateULID generates a new ULID.
func generateULID(t time.Time) (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(t), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
