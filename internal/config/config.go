package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Bounds applied to configured values. Values outside them are clamped with
// a warning.
const (
	MinSyncInterval = 2 * time.Second
	MaxSyncInterval = 10 * time.Minute

	MinChatBatchSize = 1
	MaxChatBatchSize = 500
)

// Config holds the runtime settings read from the environment.
type Config struct {
	VisitsURL string
	GymsURL   string
	ChatURL   string
	ChatName  string
	ChatSheet string

	DBPath    string
	LogLevel  string
	LogFormat string
	LogFile   string

	SyncInterval     time.Duration
	ChatSyncInterval time.Duration
	ShadowTTL        time.Duration
	ChatTTL          time.Duration
	ChatBatchSize    int
	ChatCacheLimit   int

	MetricsAddr string
}

// Load reads an optional .env file, then the environment.
func Load() *Config {
	_ = godotenv.Load()

	base := defaultDir()

	return &Config{
		VisitsURL: getEnv("API_URL", ""),
		GymsURL:   getEnv("GYMS_API_URL", ""),
		ChatURL:   getEnv("CHAT_API_URL", ""),
		ChatName:  getEnv("CHAT_NAME", "main"),
		ChatSheet: getEnv("CHAT_SHEET", "Chat"),

		DBPath:    getEnv("DB_PATH", filepath.Join(base, "cragboard.db")),
		LogLevel:  getEnv("LOG_LEVEL", "INFO"),
		LogFormat: getEnv("LOG_FORMAT", "TEXT"),
		LogFile:   getEnv("LOG_FILE", filepath.Join(base, "cragboard.log")),

		SyncInterval:     clampDuration("SYNC_INTERVAL_MS", getEnvDuration("SYNC_INTERVAL_MS", 10*time.Second), MinSyncInterval, MaxSyncInterval),
		ChatSyncInterval: clampDuration("CHAT_SYNC_INTERVAL_MS", getEnvDuration("CHAT_SYNC_INTERVAL_MS", 7*time.Second), MinSyncInterval, MaxSyncInterval),
		ShadowTTL:        positiveDuration("SHADOW_TTL_MS", 5*time.Second),
		ChatTTL:          positiveDuration("CHAT_TTL_MS", 60*time.Second),
		ChatBatchSize:    clampInt("CHAT_BATCH_SIZE", getEnvInt("CHAT_BATCH_SIZE", 100), MinChatBatchSize, MaxChatBatchSize),
		ChatCacheLimit:   max(getEnvInt("CHAT_CACHE_LIMIT", 200), 1),

		MetricsAddr: getEnv("METRICS_ADDR", ""),
	}
}

func defaultDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	return filepath.Join(dir, "cragboard")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
		slog.Warn("ignoring non-numeric setting", "key", key, "value", value)
	}
	return fallback
}

// getEnvDuration reads a value in milliseconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	return time.Duration(getEnvInt(key, int(fallback/time.Millisecond))) * time.Millisecond
}

func positiveDuration(key string, fallback time.Duration) time.Duration {
	d := getEnvDuration(key, fallback)
	if d <= 0 {
		slog.Warn("non-positive duration, using default", "key", key, "default", fallback)
		return fallback
	}
	return d
}

func clampDuration(key string, d, lo, hi time.Duration) time.Duration {
	if d < lo {
		slog.Warn("interval below safety limit. Clamping to minimum", "key", key, "requested", d, "limit", lo)
		return lo
	}
	if d > hi {
		slog.Warn("interval exceeds safety limit. Clamping to maximum", "key", key, "requested", d, "limit", hi)
		return hi
	}
	return d
}

func clampInt(key string, n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		slog.Warn("value exceeds safety limit. Clamping to maximum", "key", key, "requested", n, "limit", hi)
		return hi
	}
	return n
}
