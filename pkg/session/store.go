package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	// Registers the "sqlite" database/sql driver.
	_ "modernc.org/sqlite"
)

// DefaultPath is where FileStore keeps the snapshot when no path is given.
const DefaultPath = ".auth/session.json"

// Store persists one snapshot. Save replaces whatever was stored before.
type Store interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
}

// FileStore keeps the snapshot as a JSON file at a fixed path.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a store at path, or DefaultPath when path is empty.
func NewFileStore(path string) *FileStore {
	if path == "" {
		path = DefaultPath
	}
	return &FileStore{path: path}
}

// Path returns the snapshot file location.
func (s *FileStore) Path() string { return s.path }

// Load reads the snapshot. A missing file returns ErrNoSnapshot.
func (s *FileStore) Load(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Snapshot{}, ErrNoSnapshot
		}
		return Snapshot{}, fmt.Errorf("failed to read snapshot file: %w", err)
	}
	return Unmarshal(data)
}

// Save writes the snapshot through a temp file and rename so a crash never
// leaves a half-written file behind.
func (s *FileStore) Save(ctx context.Context, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := snap.Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0750); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	tempPath := s.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to write temp snapshot file: %w", err)
	}
	if err := os.Rename(tempPath, s.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temp snapshot file: %w", err)
	}
	return nil
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS session_snapshots (
	profile     TEXT PRIMARY KEY,
	payload     TEXT NOT NULL,
	captured_at INTEGER NOT NULL
);`

// SQLiteStore keeps snapshots in an SQLite database, one row per profile.
// Useful when several accounts share a run directory.
type SQLiteStore struct {
	db      *sql.DB
	profile string
}

// OpenSQLiteStore opens (creating if needed) the database at path. Use
// ":memory:" for a throwaway store.
func OpenSQLiteStore(path, profile string) (*SQLiteStore, error) {
	if profile == "" {
		profile = "default"
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
			return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot database: %w", err)
	}
	// A single connection keeps ":memory:" databases alive across calls.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{"PRAGMA busy_timeout = 10000", "PRAGMA journal_mode = WAL", sqliteSchema} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to prepare snapshot database: %w", err)
		}
	}
	return &SQLiteStore{db: db, profile: profile}, nil
}

// Load returns the profile's snapshot, or ErrNoSnapshot.
func (s *SQLiteStore) Load(ctx context.Context) (Snapshot, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM session_snapshots WHERE profile = ?`, s.profile).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, ErrNoSnapshot
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to query snapshot: %w", err)
	}
	return Unmarshal([]byte(payload))
}

// Save replaces the profile's snapshot.
func (s *SQLiteStore) Save(ctx context.Context, snap Snapshot) error {
	data, err := snap.Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO session_snapshots (profile, payload, captured_at) VALUES (?, ?, ?)
ON CONFLICT(profile) DO UPDATE SET payload = excluded.payload, captured_at = excluded.captured_at`,
		s.profile, string(data), snap.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to store snapshot: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
