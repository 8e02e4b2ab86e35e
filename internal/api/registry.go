package api

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"flipbook/internal/batch"
	"flipbook/internal/dispatch"
)

type taskEntry struct {
	task    dispatch.Task
	kind    string
	created time.Time

	mu      sync.Mutex
	outcome *batch.Outcome
}

func (e *taskEntry) result() *batch.Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.outcome
}

// registry tracks tasks started through the API and records them in the
// history store when they finish.
type registry struct {
	history HistoryStore
	logger  *slog.Logger

	mu    sync.Mutex
	tasks map[string]*taskEntry
	wg    sync.WaitGroup
}

func newRegistry(h HistoryStore, logger *slog.Logger) *registry {
	return &registry{history: h, logger: logger, tasks: make(map[string]*taskEntry)}
}

// start runs task and watches it until it finishes.
func (r *registry) start(task dispatch.Task, kind string) (*taskEntry, error) {
	if err := task.Start(); err != nil {
		return nil, err
	}
	e := &taskEntry{task: task, kind: kind, created: time.Now()}

	r.mu.Lock()
	r.tasks[task.ID()] = e
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		out := task.Wait()
		e.mu.Lock()
		e.outcome = &out
		e.mu.Unlock()

		if r.history == nil {
			return
		}
		if err := r.history.Record(context.Background(), out); err != nil {
			r.logger.Warn("failed to record run", "id", task.ID(), "error", err)
		}
	}()
	return e, nil
}

func (r *registry) get(id string) (*taskEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.tasks[id]
	return e, ok
}

func (r *registry) list() []*taskEntry {
	r.mu.Lock()
	out := make([]*taskEntry, 0, len(r.tasks))
	for _, e := range r.tasks {
		out = append(out, e)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].created.After(out[j].created) })
	return out
}

func (r *registry) closeAll(ctx context.Context) error {
	var errs []error
	for _, e := range r.list() {
		if err := e.task.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}
	return errors.Join(errs...)
}
