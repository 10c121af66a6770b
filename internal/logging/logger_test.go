package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func decodeLines(t *testing.T, data string) []map[string]any {
	t.Helper()

	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(data), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("invalid JSON log line %q: %v", line, err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestNewLogger(t *testing.T) {
	t.Run("creates log file in directory", func(t *testing.T) {
		dir := t.TempDir()

		logger, err := NewLogger(dir, LevelDebug)
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}
		defer logger.Close()

		logPath := filepath.Join(dir, LogFileName)
		if _, err := os.Stat(logPath); os.IsNotExist(err) {
			t.Errorf("log file was not created at %s", logPath)
		}
	})

	t.Run("writes to stderr when dir is empty", func(t *testing.T) {
		logger, err := NewLogger("", LevelInfo)
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}
		defer logger.Close()

		if logger.file != nil {
			t.Error("expected file to be nil when dir is empty")
		}
	})
}

func TestLogLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, LevelWarn)

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	entries := decodeLines(t, buf.String())
	if len(entries) != 2 {
		t.Fatalf("expected 2 log lines at WARN, got %d", len(entries))
	}
	if entries[0]["level"] != "WARN" || entries[1]["level"] != "ERROR" {
		t.Errorf("unexpected levels: %v, %v", entries[0]["level"], entries[1]["level"])
	}
}

func TestSetLevel_PropagatesToChildren(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, LevelError)
	child := logger.WithWorker(7)

	child.Info("suppressed")
	logger.SetLevel("debug")
	child.Debug("visible")

	entries := decodeLines(t, buf.String())
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry after level change, got %d", len(entries))
	}
	if entries[0]["msg"] != "visible" {
		t.Errorf("msg = %v, want visible", entries[0]["msg"])
	}
	if logger.Level() != LevelDebug {
		t.Errorf("Level() = %s, want %s", logger.Level(), LevelDebug)
	}
}

func TestContextAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, LevelDebug)

	logger.WithWorker(3).WithSeries("").WithTask("t-1").With("attempt", 2).Info("assigned", "priority", 1.5)

	entries := decodeLines(t, buf.String())
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e["worker_id"] != float64(3) {
		t.Errorf("worker_id = %v, want 3", e["worker_id"])
	}
	if e["series"] != "default" {
		t.Errorf("series = %v, want default", e["series"])
	}
	if e["task_id"] != "t-1" {
		t.Errorf("task_id = %v, want t-1", e["task_id"])
	}
	if e["attempt"] != float64(2) {
		t.Errorf("attempt = %v, want 2", e["attempt"])
	}
	if e["priority"] != 1.5 {
		t.Errorf("priority = %v, want 1.5", e["priority"])
	}
}

func TestWith_IgnoresNonStringKeys(t *testing.T) {
	logger := NopLogger()
	if logger.With() != logger {
		t.Error("With() without args should return the same logger")
	}
	child := logger.With(42, "value", "ok", true)
	if len(child.attrs) != 1 {
		t.Errorf("expected 1 attr, got %d", len(child.attrs))
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"Warn", LevelWarn},
		{"error", LevelError},
		{"verbose", LevelInfo},
		{"", LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}

	if len(ValidLevels()) != 4 {
		t.Errorf("ValidLevels() returned %d levels, want 4", len(ValidLevels()))
	}
}

func TestClose_Idempotent(t *testing.T) {
	logger, err := NewLogger(t.TempDir(), LevelInfo)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}
