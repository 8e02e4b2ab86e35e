package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"flipbook/internal/batch"
)

func TestModel_AppliesEvents(t *testing.T) {
	m := NewModel(nil, nil)
	events := []batch.Event{
		{Kind: batch.EventBegin, Total: 3},
		{Kind: batch.EventVisible, Visible: true},
		{Kind: batch.EventProgress, Progress: 0.3},
		{Kind: batch.EventFileDone, File: &batch.FileResult{Source: "/in/a.gif", Bytes: 2048}},
		{Kind: batch.EventFileDone, File: &batch.FileResult{Source: "/in/b.gif", Code: batch.ResultLoadFailed}},
		{Kind: batch.EventProgress, Progress: 0.2},
		{Kind: batch.EventFileDone, File: &batch.FileResult{Source: "/in/c.gif", Code: 3}},
		{Kind: batch.EventFinished, Code: batch.ResultOK},
	}
	for _, ev := range events {
		next, _ := m.Update(eventMsg(ev))
		m = next.(Model)
	}

	if m.total != 3 || m.done != 3 || m.skipped != 1 || m.failed != 1 {
		t.Errorf("counters total=%d done=%d skipped=%d failed=%d", m.total, m.done, m.skipped, m.failed)
	}
	if m.bytes != 2048 {
		t.Errorf("bytes = %d, want 2048", m.bytes)
	}
	if m.progress != 0.3 {
		t.Errorf("progress = %v, want 0.3 (never decreases)", m.progress)
	}
	view := m.View()
	for _, want := range []string{"Files: 3/3", "2.0 kB", "done"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestModel_StopKey(t *testing.T) {
	stops := 0
	m := NewModel(nil, func() { stops++ })
	for i := 0; i < 2; i++ {
		next, _ := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
		m = next.(Model)
	}
	if stops != 1 {
		t.Errorf("onStop called %d times, want 1", stops)
	}
	if !strings.Contains(m.View(), "stopping") {
		t.Error("view should show stopping")
	}
}

func TestModel_QuitsWhenChannelCloses(t *testing.T) {
	ch := make(chan batch.Event)
	close(ch)
	m := NewModel(ch, nil)

	msg := m.Init()()
	if _, ok := msg.(doneMsg); !ok {
		t.Fatalf("msg = %T, want doneMsg", msg)
	}
	next, cmd := m.Update(msg)
	if cmd == nil || next.(Model).View() != "" {
		t.Error("model should quit with an empty view")
	}
}

func TestOutcomeRows(t *testing.T) {
	start := time.Now()
	out := batch.Outcome{
		BatchID:   "abc",
		Kind:      "apng",
		Total:     2,
		Processed: 1,
		Failed:    1,
		Code:      batch.ResultPartialFailure,
		Started:   start,
		Finished:  start.Add(2 * time.Second),
		Files: []batch.FileResult{
			{Source: "/in/a.gif", Bytes: 1500000, Frames: 1200},
			{Source: "/in/b.gif", Code: 3, Err: errors.New("frame size mismatch")},
		},
	}

	rows := OutcomeRows(out)
	values := map[string]string{}
	for _, r := range rows {
		values[r.Label] = r.Value
	}
	if values["Written"] != "1.5 MB" || values["Frames"] != "1,200" || values["Result"] != "partial failure" {
		t.Errorf("rows = %v", values)
	}

	failures := FailureRows(out)
	if len(failures) != 1 || failures[0].Label != "b.gif" || !strings.Contains(failures[0].Value, "mismatch") {
		t.Errorf("failures = %v", failures)
	}

	table := RenderSummary(rows)
	if !strings.Contains(table, "apng") {
		t.Errorf("summary missing kind:\n%s", table)
	}
}
