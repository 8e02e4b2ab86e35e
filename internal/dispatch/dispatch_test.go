package dispatch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"flipbook/internal/batch"
	"flipbook/internal/export"
	"flipbook/internal/render"
	"flipbook/internal/testutil"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		in   string
		want Kind
	}{
		{"png", KindPNG},
		{"APNG", KindAPNG},
		{" Batch-PNG ", KindBatchPNG},
		{"batch-apng", KindBatchAPNG},
	}
	for _, tt := range tests {
		got, err := ParseKind(tt.in)
		if err != nil {
			t.Fatalf("ParseKind(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseKind(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if _, err := ParseKind("mp4"); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("ParseKind(mp4) err = %v, want ErrUnknownKind", err)
	}
}

func TestCreate_Errors(t *testing.T) {
	d := New(Config{})

	if _, err := d.Create("png", Params{}); !errors.Is(err, ErrNoSource) {
		t.Errorf("png without source: %v, want ErrNoSource", err)
	}
	if _, err := d.Create("batch-apng", Params{OutPath: t.TempDir()}); !errors.Is(err, ErrNoInputs) {
		t.Errorf("batch without inputs: %v, want ErrNoInputs", err)
	}
	if _, err := d.Create("gifv", Params{}); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("unknown kind: %v, want ErrUnknownKind", err)
	}

	path := filepath.Join(t.TempDir(), "a.gif")
	testutil.WriteGIF(t, path, 3, 4, 10)
	if err := d.SetFile(path); err != nil {
		t.Fatalf("SetFile: %v", err)
	}
	frame := 3
	if _, err := d.Create("png", Params{Frame: &frame}); !errors.Is(err, render.ErrFrameRange) {
		t.Errorf("frame out of range: %v, want ErrFrameRange", err)
	}
}

func TestSetFile_Unsupported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.gif")
	testutil.WriteFile(t, path, []byte("not a gif at all"))

	d := New(Config{})
	if err := d.SetFile(path); !errors.Is(err, ErrLoadFailed) {
		t.Fatalf("SetFile = %v, want ErrLoadFailed", err)
	}
	if d.Source() != nil {
		t.Error("source set after failed load")
	}
}

func TestCreate_SingleFileKinds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "anim.gif")
	testutil.WriteGIF(t, path, 4, 4, 5)

	var revealed []string
	d := New(Config{Reveal: true, Revealer: func(p string) error { revealed = append(revealed, p); return nil }})
	if err := d.SetFile("file://" + filepath.ToSlash(path)); err != nil {
		t.Fatalf("SetFile: %v", err)
	}

	seq, err := d.Create("png", Params{})
	if err != nil {
		t.Fatalf("Create png: %v", err)
	}
	if err := seq.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	res := seq.Wait()
	if res.Code != export.ResultOK || res.Processed != 1 {
		t.Fatalf("png outcome = %+v", res)
	}
	if !testutil.Exists(filepath.Join(dir, "anim", "4.png")) {
		t.Error("sequence not written next to source")
	}
	if seq.Progress() != 1 || seq.State() != batch.StateCompleted {
		t.Errorf("progress = %v, state = %v", seq.Progress(), seq.State())
	}

	out := filepath.Join(t.TempDir(), "custom.png")
	ap, err := d.Create("APNG", Params{OutPath: out})
	if err != nil {
		t.Fatalf("Create apng: %v", err)
	}
	if err := ap.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if res := ap.Wait(); res.Code != export.ResultOK || res.Files[0].Frames != 4 {
		t.Fatalf("apng outcome = %+v", res)
	}
	info, err := export.Inspect(out)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if !info.Animated || info.Frames != 4 {
		t.Errorf("info = %+v", info)
	}

	if len(revealed) != 2 || revealed[1] != out {
		t.Errorf("revealed = %v", revealed)
	}
}

func TestCreate_SingleFrame(t *testing.T) {
	path := filepath.Join(t.TempDir(), "anim.gif")
	testutil.WriteGIF(t, path, 5, 4, 10)

	d := New(Config{})
	if err := d.SetFile(path); err != nil {
		t.Fatalf("SetFile: %v", err)
	}
	out := t.TempDir()
	frame := 1
	task, err := d.Create("png", Params{OutPath: out, Frame: &frame})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := task.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if res := task.Wait(); res.Code != export.ResultOK {
		t.Fatalf("Code = %d", res.Code)
	}
	entries, _ := os.ReadDir(out)
	if len(entries) != 1 || entries[0].Name() != "2.png" {
		t.Errorf("entries = %v, want 2.png", entries)
	}
}

func TestCreate_Batch(t *testing.T) {
	in := t.TempDir()
	testutil.WriteGIF(t, filepath.Join(in, "a.gif"), 2, 4, 10)
	testutil.WriteGIF(t, filepath.Join(in, "deep", "b.gif"), 2, 4, 10)
	outRoot := t.TempDir()

	events := make(chan batch.Event, 64)
	d := New(Config{})
	task, err := d.Create("batch-apng", Params{Inputs: []string{in}, OutPath: "file://" + filepath.ToSlash(outRoot), Events: events})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := task.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	res := task.Wait()
	close(events)

	if res.Code != batch.ResultOK || res.Processed != 2 {
		t.Fatalf("outcome = %+v", res)
	}
	for _, p := range []string{filepath.Join(outRoot, "a.png"), filepath.Join(outRoot, "deep", "b.png")} {
		if !testutil.Exists(p) {
			t.Errorf("missing %s", p)
		}
	}
	var finished int
	for ev := range events {
		if ev.Kind == batch.EventFinished {
			finished++
		}
	}
	if finished != 1 {
		t.Errorf("finished events = %d, want 1", finished)
	}
}

func TestFileTask_Stop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "anim.gif")
	testutil.WriteGIF(t, path, 50, 4, 10)

	d := New(Config{})
	if err := d.SetFile(path); err != nil {
		t.Fatalf("SetFile: %v", err)
	}
	events := make(chan batch.Event)
	task, err := d.Create("png", Params{OutPath: t.TempDir(), Events: events})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	go func() {
		for ev := range events {
			if ev.Kind == batch.EventProgress {
				task.Stop()
			}
		}
	}()
	if err := task.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	res := task.Wait()
	close(events)

	if res.Code != export.ResultCanceled {
		t.Fatalf("Code = %d, want %d", res.Code, export.ResultCanceled)
	}
	if err := task.Close(context.Background()); err != nil {
		t.Errorf("Close after finish: %v", err)
	}
}

func TestCreateFor_UsesItsOwnFile(t *testing.T) {
	dir := t.TempDir()
	short := filepath.Join(dir, "short.gif")
	long := filepath.Join(dir, "long.gif")
	testutil.WriteGIF(t, short, 2, 4, 10)
	testutil.WriteGIF(t, long, 5, 4, 10)

	d := New(Config{})
	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 20; i++ {
		for _, tc := range []struct {
			file   string
			frames int
		}{{short, 2}, {long, 5}} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				task, err := d.CreateFor(tc.file, "apng", Params{OutPath: filepath.Join(t.TempDir(), "out.png")})
				if err != nil {
					errs <- err
					return
				}
				if err := task.Start(); err != nil {
					errs <- err
					return
				}
				if res := task.Wait(); res.Code != export.ResultOK || res.Files[0].Frames != tc.frames {
					errs <- fmt.Errorf("%s: outcome = %+v", filepath.Base(tc.file), res)
				}
			}()
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	if _, err := d.CreateFor(filepath.Join(dir, "missing.gif"), "png", Params{}); !errors.Is(err, ErrLoadFailed) {
		t.Errorf("CreateFor missing file = %v, want ErrLoadFailed", err)
	}
}

func TestFileTask_TimeoutStartsWithSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "anim.gif")
	testutil.WriteGIF(t, path, 3, 4, 10)

	d := New(Config{FileTimeout: 100 * time.Millisecond})
	if err := d.SetFile(path); err != nil {
		t.Fatalf("SetFile: %v", err)
	}
	task, err := d.Create("png", Params{OutPath: t.TempDir()})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// another task owns the source for longer than the timeout
	d.srcMu.Lock()
	if err := task.Start(); err != nil {
		d.srcMu.Unlock()
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(250 * time.Millisecond)
	d.srcMu.Unlock()

	if res := task.Wait(); res.Code != export.ResultOK {
		t.Fatalf("outcome = %+v, want ok once the source is free", res)
	}
}

func TestFileTask_Restart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "anim.gif")
	testutil.WriteGIF(t, path, 2, 4, 10)

	d := New(Config{})
	if err := d.SetFile(path); err != nil {
		t.Fatalf("SetFile: %v", err)
	}
	task, err := d.Create("png", Params{OutPath: t.TempDir()})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	var ids []string
	for run := 0; run < 2; run++ {
		if err := task.Start(); err != nil {
			t.Fatalf("run %d Start: %v", run, err)
		}
		res := task.Wait()
		if res.Code != export.ResultOK {
			t.Fatalf("run %d outcome = %+v", run, res)
		}
		ids = append(ids, res.BatchID)
	}
	if ids[0] != task.ID() || ids[1] == ids[0] || ids[1] == "" {
		t.Errorf("run ids = %v, task id = %s", ids, task.ID())
	}
}
