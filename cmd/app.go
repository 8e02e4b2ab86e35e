package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"flipbook/internal/batch"
	"flipbook/internal/dispatch"
	"flipbook/internal/history"
	"flipbook/internal/logging"
	"flipbook/internal/render"
	"flipbook/internal/reveal"
)

// newLogger writes to the configured log file and, unless quiet, to stderr.
// The returned func closes the log file.
func newLogger(quiet bool) (*slog.Logger, func(), error) {
	var writers []io.Writer
	closer := func() {}

	if cfg.Log.File != "" {
		f, err := logging.OpenFile(cfg.Log.File)
		if err != nil {
			return nil, nil, err
		}
		writers = append(writers, f)
		closer = func() { f.Close() }
	}
	if !quiet {
		writers = append(writers, os.Stderr)
	}
	if len(writers) == 0 {
		return logging.Discard(), closer, nil
	}
	return logging.New(cfg.Log.Level, io.MultiWriter(writers...)), closer, nil
}

// openHistory opens the run history, or returns nil when it is disabled or
// cannot be opened.
func openHistory(logger *slog.Logger) *history.Store {
	if cfg.History.Path == "" {
		return nil
	}
	store, err := history.Open(cfg.History.Path, logger)
	if err != nil {
		logger.Warn("run history unavailable", "path", cfg.History.Path, "error", err)
		return nil
	}
	return store
}

func recordRun(store *history.Store, out batch.Outcome, logger *slog.Logger) {
	if store == nil || out.BatchID == "" {
		return
	}
	if err := store.Record(context.Background(), out); err != nil {
		logger.Warn("failed to record run", "id", out.BatchID, "error", err)
	}
}

func software() string {
	if !cfg.StampProvenance {
		return ""
	}
	return "flipbook " + version
}

func revealer() func(string) error {
	if !cfg.Reveal {
		return nil
	}
	return reveal.Open
}

func dispatchConfig(logger *slog.Logger) dispatch.Config {
	return dispatch.Config{
		Loader:        loaderFor(cfg.Extension),
		Reveal:        cfg.Reveal,
		Revealer:      revealer(),
		Software:      software(),
		Strict:        cfg.Strict,
		FileTimeout:   cfg.FileTimeout.Duration,
		ShutdownGrace: cfg.ShutdownGrace.Duration,
		Logger:        logger,
	}
}

// loaderFor returns the GIF loader configured to collect ext.
func loaderFor(ext string) render.Loader {
	return extLoader{Loader: render.GIFLoader{}, ext: ext}
}

type extLoader struct {
	render.Loader
	ext string
}

func (l extLoader) Extension() string { return l.ext }

func exitError(code int, what string) error {
	return fmt.Errorf("%s finished with code %d", what, code)
}
