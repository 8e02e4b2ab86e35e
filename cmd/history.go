package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"flipbook/internal/tui"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "List past export runs, or show one run in detail",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, closeLog, err := newLogger(true)
		if err != nil {
			return err
		}
		defer closeLog()

		store := openHistory(logger)
		if store == nil {
			return errors.New("run history is disabled or unavailable")
		}
		defer store.Close()

		if len(args) == 1 {
			run, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, tui.RenderSummary([]tui.SummaryRow{
				{Label: "Run", Value: run.ID},
				{Label: "Kind", Value: run.Kind},
				{Label: "Output", Value: run.OutputRoot},
				{Label: "Started", Value: run.StartedAt.Local().Format(time.DateTime)},
				{Label: "Elapsed", Value: run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond).String()},
				{Label: "Files", Value: fmt.Sprintf("%d/%d", run.Processed, run.Total)},
				{Label: "Result", Value: tui.ResultText(run.Code)},
			}))
			rows := make([]tui.SummaryRow, 0, len(run.Files))
			for _, f := range run.Files {
				value := fmt.Sprintf("%d frames, %s", f.Frames, humanize.Bytes(uint64(f.Bytes)))
				if f.Code != 0 {
					value = fmt.Sprintf("code %d %s", f.Code, f.Error)
				}
				rows = append(rows, tui.SummaryRow{Label: f.Source, Value: value})
			}
			if len(rows) > 0 {
				fmt.Fprintln(os.Stdout, tui.RenderSummary(rows))
			}
			return nil
		}

		runs, err := store.List(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Fprintln(os.Stdout, tui.DimStyle.Render("no runs recorded"))
			return nil
		}
		for _, run := range runs {
			fmt.Fprintf(os.Stdout, "%s  %s  %-5s %3d/%-3d %s  %s\n",
				tui.IDStyle.Render(run.ID),
				tui.DimStyle.Render(humanize.Time(run.StartedAt)),
				run.Kind,
				run.Processed, run.Total,
				tui.ResultText(run.Code),
				tui.DimStyle.Render(run.OutputRoot),
			)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of runs to list")
	rootCmd.AddCommand(historyCmd)
}
