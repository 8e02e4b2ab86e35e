// Package batch converts a collected set of source files one at a time on a
// dedicated worker goroutine.
package batch

import (
	"errors"
	"log/slog"
	"time"

	"flipbook/internal/render"
)

var (
	ErrEmptyBatch      = errors.New("batch has no source files")
	ErrAlreadyRunning  = errors.New("batch is already running")
	ErrShutdownTimeout = errors.New("batch worker did not stop in time")
)

// Batch-level result codes. Per-file results reuse the export package codes
// for failures inside the export itself.
const (
	ResultOK             = 0
	ResultOutputMissing  = -1
	ResultStopped        = -2
	ResultPartialFailure = -3
	ResultFileMissing    = -4
	ResultLoadFailed     = -5
	ResultExportFailed   = -6
)

// DefaultShutdownGrace bounds each waiting phase of Close.
const DefaultShutdownGrace = 5 * time.Second

type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopping
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

type EventKind int

const (
	EventBegin EventKind = iota
	EventVisible
	EventProgress
	EventFileDone
	EventFinished
)

func (k EventKind) String() string {
	switch k {
	case EventBegin:
		return "begin"
	case EventVisible:
		return "visible"
	case EventProgress:
		return "progress"
	case EventFileDone:
		return "file_done"
	case EventFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Event is sent on Options.Events while a batch runs. Only the fields
// relevant to Kind are set.
type Event struct {
	Kind       EventKind
	BatchID    string // run ID, see Outcome.BatchID
	Visible    bool
	Progress   float64
	Index      int
	Total      int
	File       *FileResult
	Code       int
	OutputRoot string
}

// FileResult records what happened to one source file.
type FileResult struct {
	Index    int
	Source   string
	Output   string
	Code     int
	Err      error
	Frames   int
	Bytes    int64
	Duration time.Duration
}

func (r FileResult) Skipped() bool {
	return r.Code == ResultFileMissing || r.Code == ResultLoadFailed
}

// Outcome is the terminal result of one Start.
type Outcome struct {
	// BatchID identifies the run: the batch ID for the first Start, a fresh
	// ID for every restart.
	BatchID    string
	Code       int
	OutputRoot string
	Kind       string
	Total      int
	Files      []FileResult
	Processed  int
	Failed     int
	Skipped    int
	Started    time.Time
	Finished   time.Time
}

type Options struct {
	// Loader opens source files. Defaults to the GIF loader.
	Loader render.Loader
	// Extension selects which files are collected. Defaults to the loader's.
	Extension string
	// Strict turns any failed or skipped file into ResultPartialFailure.
	Strict bool
	// FileTimeout cancels a single export that runs longer. Zero disables it.
	FileTimeout   time.Duration
	ShutdownGrace time.Duration
	// Reveal opens the output root with Revealer when a run finishes.
	Reveal   bool
	Revealer func(path string) error
	// Software is stamped into each frame's provenance. Empty disables it.
	Software string
	Logger   *slog.Logger
	// Events receives run events with blocking sends. The caller must keep
	// draining it until Wait returns, then may close it.
	Events chan<- Event
	// ID overrides the generated batch id.
	ID string
}
