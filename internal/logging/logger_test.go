package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sadopc/cragboard/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"Error": slog.LevelError,
		"INFO":  slog.LevelInfo,
		"":      slog.LevelInfo,
		"loud":  slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "INFO", "json")
	logger.Debug("hidden")
	logger.Info("synced", "entity", "visits")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatal(err)
	}
	if rec["msg"] != "synced" || rec["entity"] != "visits" {
		t.Fatalf("unexpected record: %v", rec)
	}
}

func TestNewText(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "DEBUG", "TEXT").Debug("tick", "poller", "chat")
	if !strings.Contains(buf.String(), "poller=chat") {
		t.Fatalf("unexpected output: %q", buf.String())
	}
}

func TestSetupWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "cragboard.log")
	logger, closer, err := Setup(&config.Config{LogFile: path, LogLevel: "INFO", LogFormat: "TEXT"})
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("hello")
	closer.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "msg=hello") {
		t.Fatalf("log file missing record: %q", data)
	}
}

func TestSetupWithoutFile(t *testing.T) {
	logger, closer, err := Setup(&config.Config{})
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("dropped")
	if err := closer.Close(); err != nil {
		t.Fatal(err)
	}
}
