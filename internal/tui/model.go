package tui

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"

	"flipbook/internal/batch"
)

// Model renders live batch progress from a channel of batch events. It
// quits when the channel is closed.
type Model struct {
	updates  <-chan batch.Event
	onStop   func()
	started  time.Time
	width    int
	total    int
	done     int
	failed   int
	skipped  int
	bytes    int64
	progress float64
	current  string
	visible  bool
	stopping bool
	code     int
	finished bool
	quitting bool
}

type doneMsg struct{}

type eventMsg batch.Event

// NewModel builds a model reading updates. onStop is called once when the
// user presses q or ctrl+c; it may be nil.
func NewModel(updates <-chan batch.Event, onStop func()) Model {
	return Model{updates: updates, onStop: onStop, started: time.Now()}
}

func (m Model) Init() tea.Cmd {
	return listenForUpdates(m.updates)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		m = m.apply(batch.Event(msg))
		return m, listenForUpdates(m.updates)
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if !m.stopping && m.onStop != nil {
				m.stopping = true
				m.onStop()
			}
		}
		return m, nil
	case doneMsg:
		m.quitting = true
		return m, tea.Quit
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	default:
		return m, nil
	}
}

func (m Model) apply(ev batch.Event) Model {
	switch ev.Kind {
	case batch.EventBegin:
		m.total = ev.Total
	case batch.EventVisible:
		m.visible = ev.Visible
	case batch.EventProgress:
		if ev.Progress > m.progress {
			m.progress = ev.Progress
		}
		m.current = ""
		if ev.Index < m.total {
			m.current = fmt.Sprintf("file %d/%d", ev.Index+1, m.total)
		}
	case batch.EventFileDone:
		if ev.File == nil {
			break
		}
		m.done++
		switch {
		case ev.File.Skipped():
			m.skipped++
		case ev.File.Code != batch.ResultOK:
			m.failed++
		default:
			m.bytes += ev.File.Bytes
		}
		m.current = filepath.Base(ev.File.Source)
	case batch.EventFinished:
		m.finished = true
		m.code = ev.Code
	}
	return m
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	barWidth := 40
	if m.width > 0 {
		barWidth = int(math.Min(60, float64(m.width-10)))
		if barWidth < 20 {
			barWidth = 20
		}
	}

	bar := renderBar(barWidth, m.progress)
	elapsed := time.Since(m.started).Round(time.Millisecond)

	status := DimStyle.Render(m.current)
	switch {
	case m.finished && m.code != batch.ResultOK:
		status = FailStyle.Render(fmt.Sprintf("finished with code %d", m.code))
	case m.finished:
		status = OKStyle.Render("done")
	case m.stopping:
		status = WarnStyle.Render("stopping after current file...")
	}

	lines := []string{
		titleStyle.Render("flipbook"),
		labelStyle.Render(fmt.Sprintf("Files: %d/%d", m.done, m.total)) +
			DimStyle.Render(fmt.Sprintf("  failed:%d skipped:%d", m.failed, m.skipped)),
		labelStyle.Render(fmt.Sprintf("Written: %s", humanize.Bytes(uint64(m.bytes)))),
		DimStyle.Render(fmt.Sprintf("Elapsed: %s", elapsed)),
		barStyle.Render(bar) + " " + labelStyle.Render(fmt.Sprintf("%3.0f%%", m.progress*100)),
		status,
	}

	return strings.Join(lines, "\n")
}

func listenForUpdates(updates <-chan batch.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-updates
		if !ok {
			return doneMsg{}
		}
		return eventMsg(ev)
	}
}

func renderBar(width int, ratio float64) string {
	filled := int(math.Round(ratio * float64(width)))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return "[" + strings.Repeat("=", filled) + strings.Repeat(" ", width-filled) + "]"
}
