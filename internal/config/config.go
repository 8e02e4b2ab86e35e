// Package config loads flipbook settings from a TOML file. Every field has a
// default, so a missing file is not an error.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultKind          = "png"
	DefaultExtension     = ".gif"
	DefaultLogLevel      = "info"
	DefaultListenAddr    = "127.0.0.1:8791"
	DefaultShutdownGrace = 5 * time.Second

	// EnvConfigDir overrides the directory holding config.toml and runtime data.
	EnvConfigDir = "FLIPBOOK_HOME"
)

// Config represents the main configuration for flipbook.
type Config struct {
	OutputDir       string        `toml:"output_dir"`
	Kind            string        `toml:"kind"`      // "png" or "apng"
	Extension       string        `toml:"extension"` // accepted source extension, with leading dot
	Reveal          bool          `toml:"reveal"`
	Strict          bool          `toml:"strict"`
	FileTimeout     Duration      `toml:"file_timeout"` // zero disables
	ShutdownGrace   Duration      `toml:"shutdown_grace"`
	StampProvenance bool          `toml:"stamp_provenance"`
	Log             LogConfig     `toml:"log"`
	History         HistoryConfig `toml:"history"`
	Server          ServerConfig  `toml:"server"`
}

// LogConfig controls the slog output.
type LogConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"` // empty means stderr only
}

// HistoryConfig locates the run history database.
type HistoryConfig struct {
	Path string `toml:"path"` // empty disables history
}

// ServerConfig holds the control API settings.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// Duration is a time.Duration stored as a string such as "90s".
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// Dir returns the flipbook configuration directory.
func Dir() string {
	if dir := os.Getenv(EnvConfigDir); dir != "" {
		return dir
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return ".flipbook"
	}
	return filepath.Join(base, "flipbook")
}

// Path returns the default config file location.
func Path() string {
	return filepath.Join(Dir(), "config.toml")
}

// Default returns a Config populated with built-in defaults rooted at dir.
func Default(dir string) *Config {
	return &Config{
		Kind:            DefaultKind,
		Extension:       DefaultExtension,
		Reveal:          true,
		ShutdownGrace:   Duration{DefaultShutdownGrace},
		StampProvenance: true,
		Log: LogConfig{
			Level: DefaultLogLevel,
			File:  filepath.Join(dir, "flipbook.log"),
		},
		History: HistoryConfig{Path: filepath.Join(dir, "history.db")},
		Server:  ServerConfig{Addr: DefaultListenAddr},
	}
}

// Validate checks field values that the rest of the program relies on.
func (c *Config) Validate() error {
	switch c.Kind {
	case "png", "apng":
	default:
		return fmt.Errorf("invalid kind %q: must be png or apng", c.Kind)
	}
	if !strings.HasPrefix(c.Extension, ".") || len(c.Extension) < 2 {
		return fmt.Errorf("invalid extension %q: must start with a dot", c.Extension)
	}
	if c.FileTimeout.Duration < 0 {
		return fmt.Errorf("invalid file_timeout %s: must not be negative", c.FileTimeout)
	}
	if c.ShutdownGrace.Duration <= 0 {
		return fmt.Errorf("invalid shutdown_grace %s: must be positive", c.ShutdownGrace)
	}
	return nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from r on top of the defaults for dir.
func (m *Manager) Read(r io.Reader, dir string) (*Config, error) {
	cfg := Default(dir)
	if _, err := toml.NewDecoder(r).Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// Write encodes a Config to w.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// Load reads the config at path. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	dir := filepath.Dir(path)

	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(dir), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f, dir)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Init writes cfg to path. It refuses to overwrite an existing file.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}
