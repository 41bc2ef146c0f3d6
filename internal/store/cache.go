package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"time"
)

// SaveState stores v as JSON under key, replacing any previous value.
func (s *Store) SaveState(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal state %q: %w", key, err)
	}
	count := 0
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Slice {
		count = rv.Len()
	}
	_, err = s.db.Exec(
		`INSERT INTO cache (key, value, item_count, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, item_count = excluded.item_count, updated_at = excluded.updated_at`,
		key, string(data), count, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("save state %q: %w", key, err)
	}
	return nil
}

// LoadState decodes the value stored under key into v. It reports false
// when nothing is stored.
func (s *Store) LoadState(key string, v any) (bool, error) {
	var data string
	err := s.db.QueryRow(`SELECT value FROM cache WHERE key = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load state %q: %w", key, err)
	}
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return false, fmt.Errorf("decode state %q: %w", key, err)
	}
	return true, nil
}

// DeleteState forgets the value stored under key.
func (s *Store) DeleteState(key string) error {
	_, err := s.db.Exec(`DELETE FROM cache WHERE key = ?`, key)
	return err
}

// ListState describes every cached state, ordered by key.
func (s *Store) ListState() ([]CacheEntry, error) {
	rows, err := s.db.Query(`SELECT key, item_count, length(value), updated_at FROM cache ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list state: %w", err)
	}
	defer rows.Close()

	var out []CacheEntry
	for rows.Next() {
		var e CacheEntry
		var updated string
		if err := rows.Scan(&e.Key, &e.Items, &e.Bytes, &updated); err != nil {
			return nil, err
		}
		e.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Cache adapts a Store to a typed key/value cache of record slices. Failures
// are logged and reported as misses.
type Cache[T any] struct {
	store  *Store
	logger *slog.Logger
}

// NewCache returns a typed cache backed by s.
func NewCache[T any](s *Store, logger *slog.Logger) *Cache[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache[T]{store: s, logger: logger}
}

// Save replaces the items stored under key. A nil slice is stored as empty.
func (c *Cache[T]) Save(key string, items []T) {
	if items == nil {
		items = []T{}
	}
	if err := c.store.SaveState(key, items); err != nil {
		c.logger.Warn("cache write failed", "key", key, "error", err)
	}
}

// Load returns the items stored under key. Missing and unreadable entries
// are both reported as a miss.
func (c *Cache[T]) Load(key string) ([]T, bool) {
	var items []T
	ok, err := c.store.LoadState(key, &items)
	if err != nil {
		c.logger.Warn("cache read failed, ignoring cached state", "key", key, "error", err)
		return nil, false
	}
	return items, ok
}
