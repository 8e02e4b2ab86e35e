// Package export converts one loaded source into a PNG sequence or an APNG.
package export

import (
	"context"
	"log/slog"
)

// Result codes reported by export tasks. Zero is success.
const (
	ResultOK             = 0
	ResultRenderFailed   = 1
	ResultWriteFailed    = 2
	ResultAssembleFailed = 3
	ResultCanceled       = 4
)

// Kind selects the output artifact.
type Kind int

const (
	KindSequence  Kind = iota // numbered PNG files in a directory
	KindContainer             // a single APNG file
)

func (k Kind) String() string {
	switch k {
	case KindSequence:
		return "png"
	case KindContainer:
		return "apng"
	default:
		return "unknown"
	}
}

// ProgressFunc receives fractional progress in [0,1].
type ProgressFunc func(p float64)

// Outcome is the terminal result of one task run.
type Outcome struct {
	Code       int
	OutputPath string
	Frames     int
	Err        error
}

// Task converts one source into one artifact. Run blocks until the task is
// done. Cancellation of ctx is observed between frames.
type Task interface {
	Run(ctx context.Context, progress ProgressFunc) Outcome
}

// Options are shared by every task kind.
type Options struct {
	// Reveal opens the output with Revealer after a successful export.
	Reveal     bool
	Revealer   func(path string) error
	Provenance *Provenance // nil disables frame stamping
	Logger     *slog.Logger

	rgba bool // frames feed an APNG and must share one colour type
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return o.Logger
}

func (o Options) reveal(path string) {
	if !o.Reveal || o.Revealer == nil {
		return
	}
	if err := o.Revealer(path); err != nil {
		o.logger().Warn("cannot reveal output", "path", path, "error", err)
	}
}
