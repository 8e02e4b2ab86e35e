// Package history persists finished export runs in a local sqlite database.
package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"flipbook/internal/batch"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var ErrNotFound = errors.New("run not found")

// fixed width so stored timestamps sort lexically
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type Store struct {
	conn   *sql.DB
	logger *slog.Logger
}

// Run is a stored batch outcome.
type Run struct {
	ID         string
	Kind       string
	OutputRoot string
	Code       int
	Total      int
	Processed  int
	Failed     int
	Skipped    int
	StartedAt  time.Time
	FinishedAt time.Time
	Files      []File
}

type File struct {
	Index    int
	Source   string
	Output   string
	Code     int
	Error    string
	Frames   int
	Bytes    int64
	Duration time.Duration
}

func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}

	s := &Store{conn: conn, logger: logger}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) migrate() error {
	migrations, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}

	for _, m := range migrations {
		if m.IsDir() {
			continue
		}
		name := m.Name()
		if s.isMigrationApplied(name) {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		if _, err := s.conn.Exec(string(content)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", name, err)
		}
		if _, err := s.conn.Exec("INSERT INTO _migrations (name) VALUES (?)", name); err != nil {
			return fmt.Errorf("failed to record migration %s: %w", name, err)
		}
		if s.logger != nil {
			s.logger.Debug("applied migration", "name", name)
		}
	}
	return nil
}

func (s *Store) isMigrationApplied(name string) bool {
	var exists int
	if err := s.conn.QueryRow("SELECT 1 FROM sqlite_master WHERE type='table' AND name='_migrations'").Scan(&exists); err != nil {
		return false
	}
	var applied int
	err := s.conn.QueryRow("SELECT 1 FROM _migrations WHERE name = ?", name).Scan(&applied)
	return err == nil && applied == 1
}

// Record stores a finished outcome with its per-file results.
func (s *Store) Record(ctx context.Context, out batch.Outcome) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, kind, output_root, code, total, processed, failed, skipped, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, out.BatchID, out.Kind, out.OutputRoot, out.Code, out.Total, out.Processed, out.Failed, out.Skipped,
		out.Started.UTC().Format(timeLayout), out.Finished.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("insert run %s: %w", out.BatchID, err)
	}

	for _, f := range out.Files {
		msg := ""
		if f.Err != nil {
			msg = f.Err.Error()
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO run_files (run_id, idx, source, output, code, error, frames, bytes, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, out.BatchID, f.Index, f.Source, f.Output, f.Code, msg, f.Frames, f.Bytes, f.Duration.Milliseconds())
		if err != nil {
			return fmt.Errorf("insert file %d of run %s: %w", f.Index, out.BatchID, err)
		}
	}
	return tx.Commit()
}

// List returns the most recent runs without their files.
func (s *Store) List(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, kind, output_root, code, total, processed, failed, skipped, started_at, finished_at
		FROM runs ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Get returns one run with its files.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT id, kind, output_root, code, total, processed, failed, skipped, started_at, finished_at
		FROM runs WHERE id = ?
	`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.conn.QueryContext(ctx, `
		SELECT idx, source, output, code, error, frames, bytes, duration_ms
		FROM run_files WHERE run_id = ? ORDER BY idx
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var f File
		var ms int64
		if err := rows.Scan(&f.Index, &f.Source, &f.Output, &f.Code, &f.Error, &f.Frames, &f.Bytes, &ms); err != nil {
			return nil, err
		}
		f.Duration = time.Duration(ms) * time.Millisecond
		r.Files = append(r.Files, f)
	}
	return r, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var r Run
	var started, finished string
	if err := row.Scan(&r.ID, &r.Kind, &r.OutputRoot, &r.Code, &r.Total, &r.Processed, &r.Failed, &r.Skipped, &started, &finished); err != nil {
		return nil, err
	}
	r.StartedAt, _ = time.Parse(timeLayout, started)
	r.FinishedAt, _ = time.Parse(timeLayout, finished)
	return &r, nil
}
