// Package kvstore is the durable key-value store the extension side
// needs: a process-wide preference store used for the sticky endpoint
// (written on every successful OPEN, read once at supervisor startup)
// and the user-configured URL.
//
// Backed by an embedded, pure-Go SQLite file (ncruces/go-sqlite3) rather
// than a bespoke flat file format.
package kvstore

import (
	"database/sql"
	"fmt"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Keys used by the supervisor.
const (
	KeyStickyEndpoint    = "sticky_endpoint"
	KeyUserConfiguredURL = "user_configured_url"
)

// Store is a single-writer key-value store. The extension process is
// the only writer; concurrent
// readers (e.g. `browserbridge status`) are fine since sqlite serializes
// access itself.
type Store struct {
	db *sql.DB
}

// Open creates the backing file and schema if needed.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening kv store: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS kv (key TEXT PRIMARY KEY, value TEXT NOT NULL)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating kv table: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the stored value for key, or ("", false) if absent.
func (s *Store) Get(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading key %q: %w", key, err)
	}
	return value, true, nil
}

// Put writes value under key, overwriting any existing value, and
// returns any write error to the caller.
func (s *Store) Put(key, value string) error {
	_, err := s.db.Exec(`INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("writing key %q: %w", key, err)
	}
	return nil
}

// Delete removes key if present. Used by tests and by `status --reset`.
func (s *Store) Delete(key string) error {
	_, err := s.db.Exec(`DELETE FROM kv WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("deleting key %q: %w", key, err)
	}
	return nil
}
