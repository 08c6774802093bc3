package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"animepresence/internal/protocol"
)

type SQLiteStorage struct {
	db *sql.DB
}

func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStorage{db: db}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	if err := s.seed(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *SQLiteStorage) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// seed writes first-run defaults without touching keys that already exist.
func (s *SQLiteStorage) seed() error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for key, value := range defaults {
		data, err := json.Marshal(value)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(`INSERT OR IGNORE INTO kv (key, value) VALUES (?, ?)`, key, string(data)); err != nil {
			return fmt.Errorf("seed %s: %w", key, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Get returns the raw JSON values for the requested keys that exist.
func (s *SQLiteStorage) Get(keys ...string) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(keys))
	for _, key := range keys {
		var value string
		err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[key] = json.RawMessage(value)
	}
	return out, nil
}

// Set upserts every key in one transaction.
func (s *SQLiteStorage) Set(values map[string]any) error {
	if len(values) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now()
	for key, value := range values {
		data, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}
		_, err = tx.Exec(`
			INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
		`, key, string(data), now)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *SQLiteStorage) Entries() ([]Entry, error) {
	rows, err := s.db.Query(`SELECT key, value, updated_at FROM kv ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Key, &e.Value, &e.UpdatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// Preferences

func (s *SQLiteStorage) LoadPreferences() (Preferences, error) {
	keys := make([]string, 0, len(defaults))
	for k := range defaults {
		keys = append(keys, k)
	}
	values, err := s.Get(keys...)
	if err != nil {
		return Preferences{}, err
	}

	// decode over a defaults-filled struct so missing keys keep their default
	merged := make(map[string]json.RawMessage, len(defaults))
	for k, v := range defaults {
		data, _ := json.Marshal(v)
		merged[k] = data
	}
	for k, v := range values {
		merged[k] = v
	}

	data, err := json.Marshal(merged)
	if err != nil {
		return Preferences{}, err
	}
	var p Preferences
	if err := json.Unmarshal(data, &p); err != nil {
		return Preferences{}, fmt.Errorf("decode preferences: %w", err)
	}
	return p, nil
}

func (s *SQLiteStorage) SaveEnabled(enabled bool) error {
	return s.Set(map[string]any{KeyEnabled: enabled})
}

func (s *SQLiteStorage) SaveSettings(p protocol.SettingsPatch) error {
	values := map[string]any{}
	if p.ShowProgressBar != nil {
		values[KeyShowProgressBar] = *p.ShowProgressBar
	}
	if p.ShowPlayState != nil {
		values[KeyShowPlayState] = *p.ShowPlayState
	}
	if p.IdleStatus != nil {
		values[KeyIdleStatus] = *p.IdleStatus
	}
	if p.ClientID != nil {
		values[KeyClientID] = *p.ClientID
	}
	if p.AutoSkip != nil {
		values[KeyAutoSkip] = *p.AutoSkip
	}
	return s.Set(values)
}

func (s *SQLiteStorage) SaveDisplay(p DisplayPatch) error {
	values := map[string]any{}
	if p.CompactMode != nil {
		values[KeyCompactMode] = *p.CompactMode
	}
	if p.ShowThumbnails != nil {
		values[KeyShowThumbnails] = *p.ShowThumbnails
	}
	if p.AccentColor != nil {
		values[KeyAccentColor] = *p.AccentColor
	}
	return s.Set(values)
}

// Settings projects the stored preferences onto the bridge settings.
func (p Preferences) Settings() protocol.Settings {
	return protocol.Settings{
		ShowProgressBar: p.ShowProgressBar,
		ShowPlayState:   p.ShowPlayState,
		IdleStatus:      p.IdleStatus,
		ClientID:        p.ClientID,
		AutoSkip:        p.AutoSkip,
	}
}
