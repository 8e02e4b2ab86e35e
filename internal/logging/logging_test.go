package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNew_FormatAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := WithBatch(New("info", &buf), "b-1")

	logger.Debug("hidden")
	logger.Info("file exported", "index", 2)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug record written at info level: %q", out)
	}
	fields := strings.Split(strings.TrimSpace(out), "\t")
	if len(fields) != 5 {
		t.Fatalf("fields = %d, want 5: %q", len(fields), out)
	}
	if fields[1] != "INFO" {
		t.Errorf("level = %q, want %q", fields[1], "INFO")
	}
	if fields[2] != "file exported" {
		t.Errorf("message = %q, want %q", fields[2], "file exported")
	}
	if fields[3] != "batch_id=b-1" {
		t.Errorf("attr = %q, want %q", fields[3], "batch_id=b-1")
	}
	if fields[4] != "index=2" {
		t.Errorf("attr = %q, want %q", fields[4], "index=2")
	}
}

func TestOpenFile_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "flipbook.log")

	f, err := OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	logger := New("debug", f)
	logger.Info("hello")
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), "hello") {
		t.Errorf("log file = %q, want it to contain hello", data)
	}
}
