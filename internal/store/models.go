package store

import "time"

// Setting is one key/value row of the settings table.
type Setting struct {
	Key   string
	Value string
}

// CacheEntry describes one cached board state without its payload.
type CacheEntry struct {
	Key       string
	Items     int
	Bytes     int
	UpdatedAt time.Time
}

// Setting keys.
const (
	SettingClimberName = "climber_name"
	SettingTheme       = "theme"
	SettingWeekStart   = "week_start"
)
