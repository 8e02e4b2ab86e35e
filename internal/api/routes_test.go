package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"flipbook/internal/batch"
	"flipbook/internal/dispatch"
	"flipbook/internal/history"
	"flipbook/internal/logging"
	"flipbook/internal/testutil"
)

// memHistory is an in-memory HistoryStore.
type memHistory struct {
	mu   sync.Mutex
	runs []batch.Outcome
}

func (m *memHistory) Record(_ context.Context, out batch.Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, out)
	return nil
}

func (m *memHistory) List(_ context.Context, limit int) ([]*history.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*history.Run
	for _, r := range m.runs {
		out = append(out, &history.Run{ID: r.BatchID, Kind: r.Kind, Code: r.Code, Processed: r.Processed})
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memHistory) Get(_ context.Context, id string) (*history.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.runs {
		if r.BatchID == id {
			return &history.Run{ID: r.BatchID, Kind: r.Kind}, nil
		}
	}
	return nil, history.ErrNotFound
}

func (m *memHistory) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.runs)
}

func testServer(t *testing.T, h HistoryStore) (http.Handler, *registry) {
	t.Helper()
	logger := logging.Discard()
	cfg := ServerConfig{
		Dispatcher: dispatch.New(dispatch.Config{Logger: logger}),
		History:    h,
		Logger:     logger,
		StartTime:  time.Now(),
		Version:    "test",
	}
	tasks := newRegistry(h, logger)
	return NewRouter(cfg, tasks), tasks
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, path, &buf))
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestHealth(t *testing.T) {
	r, _ := testServer(t, nil)
	rr := do(t, r, http.MethodGet, "/health", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d, want %d", rr.Code, http.StatusOK)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
	if body := decode[HealthResponse](t, rr); body.Status != "ok" || body.Version != "test" {
		t.Errorf("body = %+v", body)
	}
}

func TestCreateTask_BadRequests(t *testing.T) {
	r, _ := testServer(t, nil)

	tests := []struct {
		name string
		req  CreateTaskRequest
		want int
	}{
		{"unknown kind", CreateTaskRequest{Kind: "webm"}, http.StatusBadRequest},
		{"no source", CreateTaskRequest{Kind: "png"}, http.StatusBadRequest},
		{"no inputs", CreateTaskRequest{Kind: "batch-png", OutPath: t.TempDir()}, http.StatusBadRequest},
		{"empty batch", CreateTaskRequest{Kind: "batch-png", Inputs: []string{t.TempDir()}, OutPath: t.TempDir()}, http.StatusUnprocessableEntity},
		{"unloadable file", CreateTaskRequest{Kind: "apng", File: filepath.Join(t.TempDir(), "x.gif")}, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		rr := do(t, r, http.MethodPost, "/v1/tasks", tt.req)
		if rr.Code != tt.want {
			t.Errorf("%s: status = %d, want %d (%s)", tt.name, rr.Code, tt.want, rr.Body.String())
		}
	}

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/tasks", bytes.NewBufferString("{")))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("malformed body: status = %d", rr.Code)
	}
}

func TestCreateTask_BatchLifecycle(t *testing.T) {
	in := t.TempDir()
	testutil.WriteGIF(t, filepath.Join(in, "a.gif"), 3, 4, 10)
	testutil.WriteGIF(t, filepath.Join(in, "b.gif"), 3, 4, 10)
	outRoot := t.TempDir()

	h := &memHistory{}
	r, tasks := testServer(t, h)

	rr := do(t, r, http.MethodPost, "/v1/tasks", CreateTaskRequest{Kind: "batch-apng", Inputs: []string{in}, OutPath: outRoot})
	if rr.Code != http.StatusAccepted {
		t.Fatalf("create status = %d: %s", rr.Code, rr.Body.String())
	}
	created := decode[TaskResponse](t, rr)
	if created.ID == "" || created.Kind != "batch-apng" {
		t.Fatalf("created = %+v", created)
	}

	e, ok := tasks.get(created.ID)
	if !ok {
		t.Fatal("task not registered")
	}
	e.task.Wait()
	tasks.wg.Wait()

	rr = do(t, r, http.MethodGet, "/v1/tasks/"+created.ID, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get status = %d", rr.Code)
	}
	got := decode[TaskResponse](t, rr)
	if got.State != "completed" || got.Progress != 1 {
		t.Errorf("task = %+v", got)
	}
	if got.Outcome == nil || got.Outcome.Processed != 2 || len(got.Outcome.Files) != 2 {
		t.Fatalf("outcome = %+v", got.Outcome)
	}
	if !testutil.Exists(filepath.Join(outRoot, "b.png")) {
		t.Error("b.png not written")
	}

	if h.count() != 1 {
		t.Errorf("history runs = %d, want 1", h.count())
	}
	rr = do(t, r, http.MethodGet, "/v1/history?limit=5", nil)
	if hist := decode[HistoryResponse](t, rr); len(hist.Runs) != 1 || hist.Runs[0].ID != created.ID {
		t.Errorf("history = %+v", hist)
	}
	rr = do(t, r, http.MethodGet, "/v1/history/"+created.ID, nil)
	if rr.Code != http.StatusOK {
		t.Errorf("history get status = %d", rr.Code)
	}

	rr = do(t, r, http.MethodGet, "/v1/tasks", nil)
	if list := decode[TasksResponse](t, rr); len(list.Tasks) != 1 {
		t.Errorf("tasks = %+v", list)
	}

	// stopping a finished task is harmless
	rr = do(t, r, http.MethodDelete, "/v1/tasks/"+created.ID, nil)
	if rr.Code != http.StatusAccepted {
		t.Errorf("delete status = %d", rr.Code)
	}
}

func TestCreateTask_ConcurrentSingleFiles(t *testing.T) {
	dir := t.TempDir()
	files := map[string]int{
		filepath.Join(dir, "two.gif"):  2,
		filepath.Join(dir, "five.gif"): 5,
	}
	for path, frames := range files {
		testutil.WriteGIF(t, path, frames, 4, 10)
	}

	r, tasks := testServer(t, nil)

	type request struct {
		out    string
		frames int
		rr     *httptest.ResponseRecorder
	}
	var reqs []*request
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		for path, frames := range files {
			body, err := json.Marshal(CreateTaskRequest{Kind: "apng", File: path, OutPath: filepath.Join(t.TempDir(), "out.png")})
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			req := &request{frames: frames, rr: httptest.NewRecorder()}
			reqs = append(reqs, req)
			wg.Add(1)
			go func() {
				defer wg.Done()
				r.ServeHTTP(req.rr, httptest.NewRequest(http.MethodPost, "/v1/tasks", bytes.NewReader(body)))
			}()
		}
	}
	wg.Wait()

	for _, req := range reqs {
		if req.rr.Code != http.StatusAccepted {
			t.Fatalf("create status = %d: %s", req.rr.Code, req.rr.Body.String())
		}
		created := decode[TaskResponse](t, req.rr)
		e, ok := tasks.get(created.ID)
		if !ok {
			t.Fatalf("task %s not registered", created.ID)
		}
		out := e.task.Wait()
		if out.Code != 0 || out.Files[0].Frames != req.frames {
			t.Errorf("task %s exported %d frames, want %d", created.ID, out.Files[0].Frames, req.frames)
		}
	}
	tasks.wg.Wait()
}

func TestCreateTask_LoadFailed(t *testing.T) {
	r, _ := testServer(t, nil)
	path := filepath.Join(t.TempDir(), "broken.gif")
	testutil.WriteFile(t, path, []byte("not a gif"))

	rr := do(t, r, http.MethodPost, "/v1/tasks", CreateTaskRequest{Kind: "png", File: path})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rr.Code)
	}
	if resp := decode[ErrorResponse](t, rr); resp.Code != "LOAD_FAILED" {
		t.Errorf("error = %+v", resp)
	}
}

func TestTaskAndHistoryNotFound(t *testing.T) {
	r, _ := testServer(t, &memHistory{})
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/v1/tasks/missing"},
		{http.MethodDelete, "/v1/tasks/missing"},
		{http.MethodGet, "/v1/history/missing"},
	} {
		if rr := do(t, r, tc.method, tc.path, nil); rr.Code != http.StatusNotFound {
			t.Errorf("%s %s = %d, want 404", tc.method, tc.path, rr.Code)
		}
	}
	if rr := do(t, r, http.MethodGet, "/v1/history?limit=-1", nil); rr.Code != http.StatusBadRequest {
		t.Errorf("bad limit = %d, want 400", rr.Code)
	}
}

func TestHistoryDisabled(t *testing.T) {
	r, _ := testServer(t, nil)
	if rr := do(t, r, http.MethodGet, "/v1/history", nil); rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	h := RecoveryMiddleware(logging.Discard())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
	if body := decode[ErrorResponse](t, rr); body.Code != "INTERNAL_ERROR" {
		t.Errorf("body = %+v", body)
	}
}
