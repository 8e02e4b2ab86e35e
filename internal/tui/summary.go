package tui

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"flipbook/internal/batch"
)

type SummaryRow struct {
	Label string
	Value string
}

func RenderSummary(rows []SummaryRow) string {
	labelWidth := 0
	valueWidth := 0
	for _, row := range rows {
		if len(row.Label) > labelWidth {
			labelWidth = len(row.Label)
		}
		if len(row.Value) > valueWidth {
			valueWidth = len(row.Value)
		}
	}

	hline := strings.Repeat("-", labelWidth+valueWidth+3)
	lines := []string{hline}

	for _, row := range rows {
		label := padRight(row.Label, labelWidth)
		value := padRight(row.Value, valueWidth)
		line := fmt.Sprintf("%s | %s", labelStyle.Render(label), valueStyle.Render(value))
		lines = append(lines, line)
	}

	lines = append(lines, hline)
	return strings.Join(lines, "\n")
}

// OutcomeRows summarizes a finished run.
func OutcomeRows(out batch.Outcome) []SummaryRow {
	var written int64
	frames := 0
	for _, f := range out.Files {
		if f.Code == batch.ResultOK {
			written += f.Bytes
			frames += f.Frames
		}
	}
	return []SummaryRow{
		{Label: "Run", Value: out.BatchID},
		{Label: "Kind", Value: out.Kind},
		{Label: "Output", Value: out.OutputRoot},
		{Label: "Files", Value: fmt.Sprintf("%d/%d", out.Processed, out.Total)},
		{Label: "Failed", Value: fmt.Sprintf("%d", out.Failed)},
		{Label: "Skipped", Value: fmt.Sprintf("%d", out.Skipped)},
		{Label: "Frames", Value: humanize.Comma(int64(frames))},
		{Label: "Written", Value: humanize.Bytes(uint64(written))},
		{Label: "Elapsed", Value: out.Finished.Sub(out.Started).Round(time.Millisecond).String()},
		{Label: "Result", Value: ResultText(out.Code)},
	}
}

// FailureRows lists every file that did not export.
func FailureRows(out batch.Outcome) []SummaryRow {
	var rows []SummaryRow
	for _, f := range out.Files {
		if f.Code == batch.ResultOK {
			continue
		}
		msg := fmt.Sprintf("code %d", f.Code)
		if f.Err != nil {
			msg += ": " + f.Err.Error()
		}
		rows = append(rows, SummaryRow{Label: filepath.Base(f.Source), Value: msg})
	}
	return rows
}

func ResultText(code int) string {
	switch code {
	case batch.ResultOK:
		return "ok"
	case batch.ResultOutputMissing:
		return "output directory missing"
	case batch.ResultStopped:
		return "stopped"
	case batch.ResultPartialFailure:
		return "partial failure"
	default:
		return fmt.Sprintf("code %d", code)
	}
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}
