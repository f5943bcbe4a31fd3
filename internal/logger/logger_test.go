package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"aerotool/internal/config"
)

func TestNewWithWriter_Levels(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf)

	l.Info("stored operation %d", 7)
	l.Warning("queue slow")
	l.Error("commit failed: %v", "disk full")

	out := buf.String()
	for _, want := range []string{"stored operation 7", "queue slow", "commit failed: disk full", "level=error"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got: %s", want, out)
		}
	}
}

func TestNewLogger_WritesFiles(t *testing.T) {
	dir := t.TempDir()
	l := NewLogger(&config.Config{LogDirectory: dir, LogLevel: "info"})

	l.Info("hello")
	l.Error("boom")

	info, err := os.ReadFile(filepath.Join(dir, "info.log"))
	if err != nil {
		t.Fatalf("Failed to read info.log: %v", err)
	}
	if !strings.Contains(string(info), "hello") {
		t.Errorf("info.log missing entry: %s", info)
	}

	errorLog, err := os.ReadFile(filepath.Join(dir, "error.log"))
	if err != nil {
		t.Fatalf("Failed to read error.log: %v", err)
	}
	if !strings.Contains(string(errorLog), "boom") {
		t.Errorf("error.log missing entry: %s", errorLog)
	}

	if err := l.CleanLogs("error.log"); err != nil {
		t.Fatalf("CleanLogs failed: %v", err)
	}
	errorLog, _ = os.ReadFile(filepath.Join(dir, "error.log"))
	if len(errorLog) != 0 {
		t.Errorf("expected error.log to be empty, got %q", errorLog)
	}
}
