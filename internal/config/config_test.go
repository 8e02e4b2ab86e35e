package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := Default("/data/flipbook")
	original.OutputDir = "/renders"
	original.Kind = "apng"
	original.Strict = true
	original.FileTimeout = Duration{90 * time.Second}
	original.Log.Level = "debug"

	var buf bytes.Buffer
	m := &Manager{}
	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf, "/elsewhere")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.OutputDir != "/renders" {
		t.Errorf("OutputDir = %q, want %q", got.OutputDir, "/renders")
	}
	if got.Kind != "apng" {
		t.Errorf("Kind = %q, want %q", got.Kind, "apng")
	}
	if !got.Strict {
		t.Error("Strict = false, want true")
	}
	if got.FileTimeout.Duration != 90*time.Second {
		t.Errorf("FileTimeout = %v, want %v", got.FileTimeout, 90*time.Second)
	}
	if got.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", got.Log.Level, "debug")
	}
	if got.History.Path != filepath.Join("/data/flipbook", "history.db") {
		t.Errorf("History.Path = %q, want the written value", got.History.Path)
	}
}

func TestManager_Read_KeepsDefaults(t *testing.T) {
	m := &Manager{}
	cfg, err := m.Read(strings.NewReader(`kind = "apng"`), "/base")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if cfg.Kind != "apng" {
		t.Errorf("Kind = %q, want %q", cfg.Kind, "apng")
	}
	if cfg.Extension != DefaultExtension {
		t.Errorf("Extension = %q, want %q", cfg.Extension, DefaultExtension)
	}
	if cfg.ShutdownGrace.Duration != DefaultShutdownGrace {
		t.Errorf("ShutdownGrace = %v, want %v", cfg.ShutdownGrace, DefaultShutdownGrace)
	}
	if !cfg.Reveal {
		t.Error("Reveal = false, want true")
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, "config.toml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Kind != DefaultKind {
		t.Errorf("Kind = %q, want %q", cfg.Kind, DefaultKind)
	}
	if cfg.Log.File != filepath.Join(dir, "flipbook.log") {
		t.Errorf("Log.File = %q, want it under %q", cfg.Log.File, dir)
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"kind":      `kind = "gif"`,
		"extension": `extension = "gif"`,
		"duration":  `file_timeout = "soon"`,
		"grace":     `shutdown_grace = "0s"`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
				t.Fatalf("write: %v", err)
			}
			if _, err := Load(path); err == nil {
				t.Fatal("Load() error = nil, want error")
			}
		})
	}
}

func TestInit_RefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := Init(path, Default(filepath.Dir(path))); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := Init(path, Default(filepath.Dir(path))); err == nil {
		t.Fatal("second Init() error = nil, want error")
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Addr != DefaultListenAddr {
		t.Errorf("Server.Addr = %q, want %q", cfg.Server.Addr, DefaultListenAddr)
	}
}

func TestDir_EnvOverride(t *testing.T) {
	t.Setenv(EnvConfigDir, "/tmp/fb-home")
	if got := Dir(); got != "/tmp/fb-home" {
		t.Errorf("Dir() = %q, want %q", got, "/tmp/fb-home")
	}
	if got := Path(); got != filepath.Join("/tmp/fb-home", "config.toml") {
		t.Errorf("Path() = %q", got)
	}
}
