package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"flipbook/internal/batch"
	"flipbook/internal/export"
	"flipbook/internal/logging"
	"flipbook/internal/render"
)

// fileTask runs one export of the dispatcher's loaded source. Stop cancels
// the export at the next frame boundary. FileTimeout counts from the moment
// the task holds the source, not from Start.
type fileTask struct {
	id     string
	kind   Kind
	src    render.Source
	out    string
	events chan<- batch.Event
	cfg    Config
	log    *slog.Logger
	task   export.Task
	srcMu  *sync.Mutex // render.Source is not safe for concurrent use

	state    atomic.Int32
	progress atomic.Uint64

	mu   sync.Mutex
	runs int
	cur  *taskRun
}

// taskRun is one Start. outcome is written before done is closed.
type taskRun struct {
	id      string
	done    chan struct{}
	cancel  context.CancelFunc
	outcome batch.Outcome
}

func newFileTask(k Kind, src render.Source, srcMu *sync.Mutex, out string, events chan<- batch.Event, cfg Config) *fileTask {
	id := uuid.NewString()
	return &fileTask{
		id:     id,
		kind:   k,
		src:    src,
		srcMu:  srcMu,
		out:    out,
		events: events,
		cfg:    cfg,
		log:    logging.WithBatch(cfg.Logger, id),
	}
}

func (t *fileTask) exportOptions() export.Options {
	opts := export.Options{Reveal: t.cfg.Reveal, Revealer: t.cfg.Revealer, Logger: t.log}
	if t.cfg.Software != "" {
		opts.Provenance = &export.Provenance{Software: t.cfg.Software, Source: filepath.Base(t.src.Path())}
	}
	return opts
}

func (t *fileTask) ID() string         { return t.id }
func (t *fileTask) State() batch.State { return batch.State(t.state.Load()) }

func (t *fileTask) Progress() float64 {
	return math.Float64frombits(t.progress.Load())
}

func (t *fileTask) Start() error {
	t.mu.Lock()
	switch t.State() {
	case batch.StateRunning, batch.StateStopping:
		t.mu.Unlock()
		return batch.ErrAlreadyRunning
	}
	if t.cur != nil {
		<-t.cur.done
	}

	id := t.id
	if t.runs > 0 {
		id = uuid.NewString()
	}
	t.runs++
	ctx, cancel := context.WithCancel(context.Background())
	r := &taskRun{id: id, done: make(chan struct{}), cancel: cancel}
	t.cur = r
	t.progress.Store(0)
	t.state.Store(int32(batch.StateRunning))
	t.mu.Unlock()

	t.log.Info("export started", "run_id", r.id, "kind", t.kind.String(), "source", t.src.Path(), "output", t.out)
	t.emit(r, batch.Event{Kind: batch.EventBegin, Total: 1, OutputRoot: t.out})
	t.emit(r, batch.Event{Kind: batch.EventVisible, Visible: true})

	go t.run(ctx, r)
	return nil
}

func (t *fileTask) Stop() {
	if !t.state.CompareAndSwap(int32(batch.StateRunning), int32(batch.StateStopping)) {
		return
	}
	t.mu.Lock()
	r := t.cur
	t.mu.Unlock()
	r.cancel()
	t.log.Info("stop requested")
}

func (t *fileTask) Close(ctx context.Context) error {
	t.mu.Lock()
	r := t.cur
	t.mu.Unlock()
	if r == nil {
		return nil
	}
	t.Stop()
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return batch.ErrShutdownTimeout
	}
}

func (t *fileTask) Wait() batch.Outcome {
	t.mu.Lock()
	r := t.cur
	t.mu.Unlock()
	if r == nil {
		return batch.Outcome{}
	}
	<-r.done
	return r.outcome
}

func (t *fileTask) run(ctx context.Context, r *taskRun) {
	defer close(r.done)
	defer r.cancel()

	t.srcMu.Lock()
	started := time.Now()
	if t.cfg.FileTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.FileTimeout)
		defer cancel()
	}
	eo := t.runTask(ctx, r)
	t.srcMu.Unlock()
	fr := batch.FileResult{
		Source:   t.src.Path(),
		Output:   t.out,
		Code:     eo.Code,
		Err:      eo.Err,
		Frames:   eo.Frames,
		Duration: time.Since(started),
	}
	out := batch.Outcome{
		BatchID:    r.id,
		Code:       eo.Code,
		OutputRoot: t.out,
		Kind:       t.kind.String(),
		Total:      1,
		Files:      []batch.FileResult{fr},
		Started:    started,
		Finished:   time.Now(),
	}
	if eo.Code == export.ResultOK {
		out.Processed = 1
	} else {
		out.Failed = 1
		t.log.Error("export failed", "code", eo.Code, "error", eo.Err)
	}

	t.emit(r, batch.Event{Kind: batch.EventFileDone, Total: 1, File: &fr})
	t.emit(r, batch.Event{Kind: batch.EventVisible, Visible: false})

	r.outcome = out
	t.log.Info("export finished", "run_id", r.id, "code", out.Code, "frames", fr.Frames)
	t.emit(r, batch.Event{Kind: batch.EventFinished, Code: out.Code, OutputRoot: t.out})
	t.state.Store(int32(batch.StateCompleted))
}

func (t *fileTask) runTask(ctx context.Context, r *taskRun) (out export.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Error("export panicked", "panic", r)
			out = export.Outcome{Code: batch.ResultExportFailed, OutputPath: t.out, Err: fmt.Errorf("export panicked: %v", r)}
		}
	}()
	return t.task.Run(ctx, func(p float64) {
		t.progress.Store(math.Float64bits(p))
		t.emit(r, batch.Event{Kind: batch.EventProgress, Progress: p, Total: 1})
	})
}

func (t *fileTask) emit(r *taskRun, ev batch.Event) {
	if t.events == nil {
		return
	}
	ev.BatchID = r.id
	t.events <- ev
}
