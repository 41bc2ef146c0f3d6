package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// GetSetting returns the value stored under key. A missing key is an error
// wrapping sql.ErrNoRows.
func (s *Store) GetSetting(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err != nil {
		return "", fmt.Errorf("get setting %q: %w", key, err)
	}
	return value, nil
}

// SetSetting stores value under key, replacing any previous value.
func (s *Store) SetSetting(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

// GetAllSettings returns every setting ordered by key.
func (s *Store) GetAllSettings() ([]Setting, error) {
	rows, err := s.db.Query(`SELECT key, value FROM settings ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	defer rows.Close()

	var settings []Setting
	for rows.Next() {
		var s Setting
		if err := rows.Scan(&s.Key, &s.Value); err != nil {
			return nil, err
		}
		settings = append(settings, s)
	}
	return settings, rows.Err()
}

// ClimberName is the name the user signs visits and messages with. It is
// empty until the user sets one.
func (s *Store) ClimberName() (string, error) {
	name, err := s.GetSetting(SettingClimberName)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return name, err
}

// SetClimberName stores the trimmed name.
func (s *Store) SetClimberName(name string) error {
	return s.SetSetting(SettingClimberName, strings.TrimSpace(name))
}
