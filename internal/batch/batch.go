package batch

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"flipbook/internal/export"
	"flipbook/internal/logging"
	"flipbook/internal/render"
	"flipbook/internal/source"
)

// Batch owns a fixed list of source descriptors and exports them in order.
// Start, Stop, Close, Wait and the accessors may be called from any
// goroutine.
type Batch struct {
	id         string
	entries    []source.Descriptor
	outputRoot string
	kind       export.Kind
	opts       Options
	log        *slog.Logger

	state    atomic.Int32
	stop     atomic.Bool
	current  atomic.Int64
	progress atomic.Uint64 // float64 bits

	mu   sync.Mutex
	runs int
	cur  *runState
}

// runState is one Start of a batch. outcome is written before done is closed.
type runState struct {
	id      string
	done    chan struct{}
	cancel  context.CancelFunc
	outcome Outcome
}

// New collects the source files under inputs and prepares a batch writing
// into outputRoot. The output root is only checked when the batch runs.
func New(inputs []string, outputRoot string, kind export.Kind, opts Options) *Batch {
	if opts.Loader == nil {
		opts.Loader = render.GIFLoader{}
	}
	if opts.Extension == "" {
		opts.Extension = opts.Loader.Extension()
	}
	if opts.ShutdownGrace <= 0 {
		opts.ShutdownGrace = DefaultShutdownGrace
	}
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logging.WithBatch(logger, opts.ID)

	return &Batch{
		id:         opts.ID,
		entries:    source.Collect(inputs, opts.Extension, logger),
		outputRoot: outputRoot,
		kind:       kind,
		opts:       opts,
		log:        logger,
	}
}

func (b *Batch) ID() string         { return b.id }
func (b *Batch) Kind() export.Kind  { return b.kind }
func (b *Batch) OutputRoot() string { return b.outputRoot }
func (b *Batch) State() State       { return State(b.state.Load()) }
func (b *Batch) CurrentIndex() int  { return int(b.current.Load()) }
func (b *Batch) Len() int           { return len(b.entries) }

// Progress is the overall fraction of the current or last run.
func (b *Batch) Progress() float64 {
	return math.Float64frombits(b.progress.Load())
}

func (b *Batch) Entries() []source.Descriptor {
	out := make([]source.Descriptor, len(b.entries))
	copy(out, b.entries)
	return out
}

// Start launches the worker. A completed batch may be started again; every
// run after the first gets a fresh run ID.
func (b *Batch) Start() error {
	if len(b.entries) == 0 {
		b.log.Info("nothing to export", "extension", b.opts.Extension)
		return ErrEmptyBatch
	}

	b.mu.Lock()
	switch b.State() {
	case StateRunning, StateStopping:
		b.mu.Unlock()
		return ErrAlreadyRunning
	}

	if b.cur != nil {
		// the previous worker marks the batch completed just before exiting
		<-b.cur.done
	}

	b.stop.Store(false)
	b.current.Store(0)
	b.progress.Store(0)

	id := b.id
	if b.runs > 0 {
		id = uuid.NewString()
	}
	b.runs++
	ctx, cancel := context.WithCancel(context.Background())
	r := &runState{id: id, done: make(chan struct{}), cancel: cancel}
	b.cur = r
	b.state.Store(int32(StateRunning))
	b.mu.Unlock()

	b.log.Info("batch started", "run_id", r.id, "files", len(b.entries), "kind", b.kind.String(), "output", b.outputRoot)
	b.emit(r, Event{Kind: EventBegin, Total: len(b.entries), OutputRoot: b.outputRoot})
	b.emit(r, Event{Kind: EventVisible, Visible: true})

	go b.run(ctx, r)
	return nil
}

// Stop asks the worker to halt before the next file. The file being
// exported is finished first.
func (b *Batch) Stop() {
	if !b.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		return
	}
	b.stop.Store(true)
	b.current.Store(0)
	b.log.Info("stop requested")
}

// Wait blocks until the current run finishes and returns its outcome. It
// returns immediately with a zero Outcome if the batch was never started.
func (b *Batch) Wait() Outcome {
	b.mu.Lock()
	r := b.cur
	b.mu.Unlock()
	if r == nil {
		return Outcome{}
	}
	<-r.done
	return r.outcome
}

// Close stops the batch and waits for the worker. If the worker is still
// busy after the shutdown grace period, the running export is cancelled;
// if it still does not return, the worker is abandoned and
// ErrShutdownTimeout is returned.
func (b *Batch) Close(ctx context.Context) error {
	b.mu.Lock()
	r := b.cur
	b.mu.Unlock()
	if r == nil {
		return nil
	}
	done := r.done

	b.Stop()
	grace := b.opts.ShutdownGrace

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
	case <-ctx.Done():
	}

	b.log.Warn("worker still busy, cancelling export", "grace", grace)
	r.cancel()

	timer.Reset(grace)
	select {
	case <-done:
		return nil
	case <-timer.C:
	case <-ctx.Done():
	}

	b.log.Warn("abandoning batch worker", "error", ErrShutdownTimeout)
	return ErrShutdownTimeout
}

func (b *Batch) run(ctx context.Context, r *runState) {
	defer close(r.done)
	defer r.cancel()

	out := Outcome{
		BatchID:    r.id,
		OutputRoot: b.outputRoot,
		Kind:       b.kind.String(),
		Total:      len(b.entries),
		Started:    time.Now(),
	}

	root := source.NormalizePath(b.outputRoot)
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		b.log.Error("output directory does not exist", "dir", root)
		out.Code = ResultOutputMissing
		b.emit(r, Event{Kind: EventVisible, Visible: false})
		b.finish(r, out)
		return
	}
	out.OutputRoot = root

	halted := false
	for i, d := range b.entries {
		if b.stop.Load() {
			halted = true
			break
		}
		b.current.Store(int64(i))

		res := b.exportSingleFile(ctx, r, i, d, root)
		out.Files = append(out.Files, res)
		switch {
		case res.Code == ResultOK:
			out.Processed++
		case res.Skipped():
			out.Skipped++
		default:
			out.Failed++
		}
		b.emit(r, Event{Kind: EventFileDone, Index: i, Total: len(b.entries), File: &res})
	}

	switch {
	case halted:
		out.Code = ResultStopped
		b.log.Info("batch stopped", "processed", out.Processed, "remaining", len(b.entries)-len(out.Files))
	case b.opts.Strict && out.Failed+out.Skipped > 0:
		out.Code = ResultPartialFailure
		b.advance(r, len(b.entries)-1, 1)
	default:
		b.advance(r, len(b.entries)-1, 1)
	}

	b.emit(r, Event{Kind: EventVisible, Visible: false})
	if b.opts.Reveal && b.opts.Revealer != nil {
		if err := b.opts.Revealer(root); err != nil {
			b.log.Warn("cannot reveal output", "dir", root, "error", err)
		}
	}
	b.finish(r, out)
}

// finish publishes the outcome. The state turns completed only after the
// Finished event is delivered, so a restart cannot overlap this worker.
func (b *Batch) finish(r *runState, out Outcome) {
	out.Finished = time.Now()
	r.outcome = out

	b.log.Info("batch finished",
		"run_id", r.id,
		"code", out.Code,
		"processed", out.Processed,
		"failed", out.Failed,
		"skipped", out.Skipped,
		"elapsed", out.Finished.Sub(out.Started).Round(time.Millisecond),
	)
	b.emit(r, Event{Kind: EventFinished, Code: out.Code, OutputRoot: out.OutputRoot})
	b.state.Store(int32(StateCompleted))
}

func (b *Batch) exportSingleFile(ctx context.Context, r *runState, i int, d source.Descriptor, root string) (res FileResult) {
	start := time.Now()
	res = FileResult{Index: i, Source: d.AbsPath}
	defer func() { res.Duration = time.Since(start) }()

	log := b.log.With("file", d.AbsPath)

	if _, err := os.Stat(d.AbsPath); err != nil {
		log.Warn("source file disappeared, skipping", "error", err)
		res.Code, res.Err = ResultFileMissing, err
		return res
	}

	src, err := b.opts.Loader.Load(d.AbsPath)
	if err != nil {
		log.Warn("cannot load source, skipping", "error", err)
		res.Code, res.Err = ResultLoadFailed, err
		return res
	}

	dest := root
	if d.RelDir != "" {
		dest = filepath.Join(root, d.RelDir)
		if err := os.MkdirAll(dest, 0o755); err != nil {
			log.Error("cannot create output directory", "dir", dest, "error", err)
			res.Code, res.Err = export.ResultWriteFailed, err
			return res
		}
	}

	opts := export.Options{Logger: log}
	if b.opts.Software != "" {
		opts.Provenance = &export.Provenance{Software: b.opts.Software, Source: filepath.Base(d.AbsPath)}
	}

	var task export.Task
	if b.kind == export.KindContainer {
		res.Output = filepath.Join(dest, d.BaseName+".png")
		task = export.NewContainer(src, res.Output, opts)
	} else {
		res.Output = filepath.Join(dest, d.BaseName)
		task = export.NewSequence(src, res.Output, opts)
	}

	if b.opts.FileTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.opts.FileTimeout)
		defer cancel()
	}

	n := float64(len(b.entries))
	eo := b.runTask(ctx, task, func(p float64) {
		b.advance(r, i, (float64(i)+p)/n)
	})
	res.Code, res.Frames, res.Err = eo.Code, eo.Frames, eo.Err

	if res.Code != export.ResultOK {
		log.Error("export failed", "code", res.Code, "error", res.Err)
		return res
	}
	res.Bytes = diskUsage(res.Output)
	log.Debug("export finished", "output", res.Output, "frames", res.Frames)
	return res
}

func (b *Batch) runTask(ctx context.Context, task export.Task, progress export.ProgressFunc) (out export.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("export panicked", "panic", r)
			out = export.Outcome{Code: ResultExportFailed, Err: fmt.Errorf("export panicked: %v", r)}
		}
	}()
	return task.Run(ctx, progress)
}

// advance raises overall progress to p while file i is exported. Lower
// values are ignored.
func (b *Batch) advance(r *runState, i int, p float64) {
	for {
		old := b.progress.Load()
		if p <= math.Float64frombits(old) {
			return
		}
		if b.progress.CompareAndSwap(old, math.Float64bits(p)) {
			break
		}
	}
	b.emit(r, Event{Kind: EventProgress, Progress: p, Index: i, Total: len(b.entries)})
}

func (b *Batch) emit(r *runState, ev Event) {
	if b.opts.Events == nil {
		return
	}
	ev.BatchID = r.id
	b.opts.Events <- ev
}

func diskUsage(path string) int64 {
	var total int64
	filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			total += info.Size()
		}
		return nil
	})
	return total
}
