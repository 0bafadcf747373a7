// Package store is the durable flat key-value namespace shared by all
// contexts: one credential string plus the feature flags, no schema
// versioning. Backed by a local sqlite file so settings survive
// coordinator restarts.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"pagepilot/internal/domain"
)

// Well-known keys in the namespace.
const (
	KeyAPIKey      = "openai_api_key"
	KeyDebugMode   = "debug_mode"
	KeyAutoInject  = "auto_inject"
	KeyContextMenu = "context_menu"
)

// KeyValue is the storage interface consumed by the coordinator.
type KeyValue interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Store wraps a sqlite database holding the key-value namespace.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the store at path, ensuring the parent
// directory and schema exist.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("store: path must not be empty")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("store: open db at %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping db at %s: %w", path, err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL DEFAULT (unixepoch())
		);
	`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: init schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the value for key and whether it was present. A missing
// key is absence, not failure.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("store: get %q: %w", key, err)
	}
	return value, true, nil
}

// Set writes or replaces the value for key.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("store: key must not be empty")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, unixepoch())
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = unixepoch()
	`, key, value)
	if err != nil {
		return fmt.Errorf("store: set %q: %w", key, err)
	}
	return nil
}

// Delete removes key from the namespace. Deleting a missing key is a
// no-op.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("store: delete %q: %w", key, err)
	}
	return nil
}

// Settings reads the feature flags, defaulting each absent key to false.
func Settings(ctx context.Context, kv KeyValue) (domain.Settings, error) {
	var out domain.Settings
	for _, f := range []struct {
		key string
		dst *bool
	}{
		{KeyDebugMode, &out.DebugMode},
		{KeyAutoInject, &out.AutoInject},
		{KeyContextMenu, &out.ContextMenu},
	} {
		raw, ok, err := kv.Get(ctx, f.key)
		if err != nil {
			return domain.Settings{}, err
		}
		if !ok {
			continue
		}
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return domain.Settings{}, fmt.Errorf("store: flag %q holds %q: %w", f.key, raw, err)
		}
		*f.dst = v
	}
	return out, nil
}

// SaveSettings writes all feature flags.
func SaveSettings(ctx context.Context, kv KeyValue, s domain.Settings) error {
	for _, f := range []struct {
		key string
		val bool
	}{
		{KeyDebugMode, s.DebugMode},
		{KeyAutoInject, s.AutoInject},
		{KeyContextMenu, s.ContextMenu},
	} {
		if err := kv.Set(ctx, f.key, strconv.FormatBool(f.val)); err != nil {
			return err
		}
	}
	return nil
}
