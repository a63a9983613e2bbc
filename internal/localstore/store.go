// Package localstore is the persistent key-value surface backing offline
// operation: history, cursor position, cached credentials, and one backup
// snapshot per synchronized entity. When the SQLite file cannot be opened
// the store degrades to an in-process map so the application stays usable
// for the session.
package localstore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Well-known keys. Activities/History/Cursor are the legacy local-only data
// that migrates into the remote table on first-time creation; the backup_
// prefix holds the per-entity offline snapshots.
const (
	KeyActivities = "dayloop_activities"
	KeyHistory    = "dayloop_history"
	KeyCursor     = "dayloop_current_index"
	KeyAPIKey     = "dayloop_api_key"
	KeyTableID    = "dayloop_table_id"
	KeyTableName  = "dayloop_table_name"

	backupPrefix = "backup_"
)

// ErrNotFound is returned when a key has no value.
var ErrNotFound = errors.New("key not found")

// Store is a single-writer key-value store.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	mu  sync.Mutex
	mem map[string]string // degraded-mode fallback
}

// Open opens (or creates) the store at path. An unopenable database is not
// fatal: the returned store runs degraded, in memory only.
func Open(path string, logger *slog.Logger) *Store {
	s := &Store{logger: logger, mem: make(map[string]string)}

	db, err := sql.Open("sqlite", path)
	if err == nil {
		err = db.Ping()
	}
	if err == nil {
		_, err = db.Exec(`CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`)
	}
	if err != nil {
		logger.Warn("local store unavailable, running in memory", "path", path, "error", err)
		if db != nil {
			db.Close()
		}
		return s
	}

	s.db = db
	return s
}

// Degraded reports whether the store lost its persistent medium.
func (s *Store) Degraded() bool {
	return s.db == nil
}

// Close releases the underlying database, if any.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get returns the raw value for key, or ErrNotFound.
func (s *Store) Get(key string) (string, error) {
	if s.db != nil {
		var value string
		err := s.db.QueryRow("SELECT value FROM kv WHERE key = ?", key).Scan(&value)
		if err == nil {
			return value, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("get %s: %w", key, err)
		}
		return "", ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.mem[key]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

// Set writes the raw value for key, overwriting any previous value.
func (s *Store) Set(key, value string) error {
	if s.db != nil {
		_, err := s.db.Exec(
			`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			key, value, time.Now().UTC(),
		)
		if err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.mem[key] = value
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(key string) error {
	if s.db != nil {
		if _, err := s.db.Exec("DELETE FROM kv WHERE key = ?", key); err != nil {
			return fmt.Errorf("delete %s: %w", key, err)
		}
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.mem, key)
	return nil
}

// GetJSON unmarshals the value for key into out.
func (s *Store) GetJSON(key string, out any) error {
	raw, err := s.Get(key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// SetJSON marshals v and stores it under key.
func (s *Store) SetJSON(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(key, string(raw))
}

// backupEnvelope wraps an entity snapshot with the time it was taken.
type backupEnvelope struct {
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// SaveBackup stores a point-in-time snapshot for an entity name
// ("activities", "history", ...).
func (s *Store) SaveBackup(entity string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode backup %s: %w", entity, err)
	}
	return s.SetJSON(backupPrefix+entity, backupEnvelope{
		Data:      raw,
		Timestamp: time.Now().UTC(),
	})
}

// LoadBackup unmarshals the most recent snapshot for entity into out and
// returns when it was taken. Returns ErrNotFound if no backup exists.
func (s *Store) LoadBackup(entity string, out any) (time.Time, error) {
	var env backupEnvelope
	if err := s.GetJSON(backupPrefix+entity, &env); err != nil {
		return time.Time{}, err
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return time.Time{}, fmt.Errorf("decode backup %s: %w", entity, err)
	}
	return env.Timestamp, nil
}

// HasLegacyData reports whether local-only entity data from a pre-sync
// session is present and eligible for migration.
func (s *Store) HasLegacyData() bool {
	for _, key := range []string{KeyActivities, KeyHistory, KeyCursor} {
		if _, err := s.Get(key); err == nil {
			return true
		}
	}
	return false
}

// ClearLegacyData removes migrated local-only entity data so it is not
// double-counted on the next load.
func (s *Store) ClearLegacyData() error {
	for _, key := range []string{KeyActivities, KeyHistory, KeyCursor} {
		if err := s.Delete(key); err != nil {
			return err
		}
	}
	return nil
}
