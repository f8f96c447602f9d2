// Package prefs persists user playback preferences across sessions.
package prefs

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schemaPreferences = `
CREATE TABLE IF NOT EXISTS preferences (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated INTEGER NOT NULL
);`

const (
	keyPauseOverlayHidden = "pause_overlay_hidden"
)

// Store is a sqlite-backed preference store. Safe for concurrent use via
// database/sql's pooling.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Options holds tuning for opening the store.
type Options struct {
	BusyTimeout time.Duration
	Now         func() time.Time
}

// Open opens (creating if necessary) the preference database at path.
// ":memory:" is accepted for tests.
func Open(path string, options Options) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, err
	}
	busyTimeout := options.BusyTimeout
	if busyTimeout <= 0 {
		busyTimeout = 5 * time.Second
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d", int(busyTimeout/time.Millisecond))); err != nil {
		_ = db.Close()
		return nil, err
	}

	if _, err := db.Exec(schemaPreferences); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("prefs: schema: %w", err)
	}

	now := options.Now
	if now == nil {
		now = time.Now
	}
	return &Store{db: db, now: now}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// PauseOverlayHidden reports whether the user has hidden the pause overlay.
// A missing row means not hidden.
func (s *Store) PauseOverlayHidden() (bool, error) {
	v, ok, err := s.get(keyPauseOverlayHidden)
	if err != nil || !ok {
		return false, err
	}
	return v == "1", nil
}

// SetPauseOverlayHidden records the user's pause-overlay toggle.
func (s *Store) SetPauseOverlayHidden(hidden bool) error {
	v := "0"
	if hidden {
		v = "1"
	}
	return s.set(keyPauseOverlayHidden, v)
}

func (s *Store) get(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM preferences WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("prefs: get %s: %w", key, err)
	}
	return value, true, nil
}

func (s *Store) set(key, value string) error {
	_, err := s.db.Exec(`
INSERT INTO preferences (key, value, updated) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated = excluded.updated`,
		key, value, s.now().Unix())
	if err != nil {
		return fmt.Errorf("prefs: set %s: %w", key, err)
	}
	return nil
}
