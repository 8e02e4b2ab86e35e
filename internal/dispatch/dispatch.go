// Package dispatch turns external export requests into runnable tasks.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"flipbook/internal/batch"
	"flipbook/internal/export"
	"flipbook/internal/logging"
	"flipbook/internal/render"
	"flipbook/internal/source"
)

var (
	ErrNoSource    = errors.New("no source file loaded")
	ErrNoInputs    = errors.New("batch request has no inputs")
	ErrUnknownKind = errors.New("unknown task kind")
	ErrLoadFailed  = errors.New("cannot load source")
)

type Kind int

const (
	KindPNG Kind = iota
	KindAPNG
	KindBatchPNG
	KindBatchAPNG
)

var kindNames = map[Kind]string{
	KindPNG:       "png",
	KindAPNG:      "apng",
	KindBatchPNG:  "batch-png",
	KindBatchAPNG: "batch-apng",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

func (k Kind) IsBatch() bool { return k == KindBatchPNG || k == KindBatchAPNG }

func (k Kind) exportKind() export.Kind {
	if k == KindAPNG || k == KindBatchAPNG {
		return export.KindContainer
	}
	return export.KindSequence
}

// ParseKind matches kind names case-insensitively.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%q: %w", s, ErrUnknownKind)
}

// Task is a started-on-demand export of one file or a batch.
type Task interface {
	ID() string
	Start() error
	Stop()
	Close(ctx context.Context) error
	Wait() batch.Outcome
	Progress() float64
	State() batch.State
}

// Params configure one Create call.
type Params struct {
	// OutPath is the output directory (png, batch kinds) or file (apng).
	// Empty places single-file output next to the source.
	OutPath string
	// Frame restricts a png export to one 0-based frame.
	Frame *int
	// Inputs are the files and directories of a batch.
	Inputs []string
	// Events receives task events, see batch.Options.Events.
	Events chan<- batch.Event
}

// Config is shared by every task a Dispatcher creates.
type Config struct {
	Loader        render.Loader
	Reveal        bool
	Revealer      func(path string) error
	Software      string
	Strict        bool
	FileTimeout   time.Duration
	ShutdownGrace time.Duration
	Logger        *slog.Logger
}

type Dispatcher struct {
	cfg Config
	log *slog.Logger

	// createMu keeps a SetFile paired with the Create that follows it in
	// CreateFor.
	createMu sync.Mutex

	mu    sync.Mutex
	src   render.Source
	srcMu *sync.Mutex // held by a running single-file task
}

func New(cfg Config) *Dispatcher {
	if cfg.Loader == nil {
		cfg.Loader = render.GIFLoader{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	return &Dispatcher{cfg: cfg, log: logging.WithComponent(cfg.Logger, "dispatch")}
}

// SetFile loads path as the source for single-file tasks.
func (d *Dispatcher) SetFile(path string) error {
	d.createMu.Lock()
	defer d.createMu.Unlock()
	return d.setFile(path)
}

func (d *Dispatcher) setFile(path string) error {
	path = source.NormalizePath(path)
	src, err := d.cfg.Loader.Load(path)
	if err != nil {
		return fmt.Errorf("load %s: %w: %w", path, ErrLoadFailed, err)
	}
	d.mu.Lock()
	d.src = src
	d.srcMu = &sync.Mutex{}
	d.mu.Unlock()
	d.log.Debug("source loaded", "path", path, "frames", src.FrameCount())
	return nil
}

// Source returns the loaded source, or nil.
func (d *Dispatcher) Source() render.Source {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.src
}

// Create builds a task for kind. The task is not started.
func (d *Dispatcher) Create(kind string, p Params) (Task, error) {
	d.createMu.Lock()
	defer d.createMu.Unlock()
	return d.create(kind, p)
}

// CreateFor loads file, when non-empty, and creates a task from it as one
// step. Concurrent callers never see each other's source.
func (d *Dispatcher) CreateFor(file, kind string, p Params) (Task, error) {
	d.createMu.Lock()
	defer d.createMu.Unlock()
	if file != "" {
		if err := d.setFile(file); err != nil {
			return nil, err
		}
	}
	return d.create(kind, p)
}

func (d *Dispatcher) create(kind string, p Params) (Task, error) {
	k, err := ParseKind(kind)
	if err != nil {
		return nil, err
	}
	out := source.NormalizePath(p.OutPath)

	if k.IsBatch() {
		if len(p.Inputs) == 0 {
			return nil, ErrNoInputs
		}
		return batch.New(p.Inputs, out, k.exportKind(), batch.Options{
			Loader:        d.cfg.Loader,
			Strict:        d.cfg.Strict,
			FileTimeout:   d.cfg.FileTimeout,
			ShutdownGrace: d.cfg.ShutdownGrace,
			Reveal:        d.cfg.Reveal,
			Revealer:      d.cfg.Revealer,
			Software:      d.cfg.Software,
			Logger:        d.cfg.Logger,
			Events:        p.Events,
		}), nil
	}

	d.mu.Lock()
	src, srcMu := d.src, d.srcMu
	d.mu.Unlock()
	if src == nil {
		return nil, ErrNoSource
	}
	if out == "" {
		out = defaultOutput(src.Path(), k)
	}
	if p.Frame != nil && (k != KindPNG || *p.Frame < 0 || *p.Frame >= src.FrameCount()) {
		return nil, fmt.Errorf("frame %d for %s: %w", *p.Frame, k, render.ErrFrameRange)
	}

	t := newFileTask(k, src, srcMu, out, p.Events, d.cfg)
	switch {
	case k == KindAPNG:
		t.task = export.NewContainer(src, out, t.exportOptions())
	case p.Frame != nil:
		t.task = export.NewSingleFrame(src, out, *p.Frame, t.exportOptions())
	default:
		t.task = export.NewSequence(src, out, t.exportOptions())
	}
	return t, nil
}

func defaultOutput(srcPath string, k Kind) string {
	base := strings.TrimSuffix(srcPath, filepath.Ext(srcPath))
	if k == KindAPNG {
		return base + ".png"
	}
	return base
}
