package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"flipbook/internal/dispatch"
	"flipbook/internal/tui"
)

var renderOpts struct {
	output string
	kind   string
	frame  int
}

var renderCmd = &cobra.Command{
	Use:   "render <file>",
	Short: "Export a single animation as a PNG sequence, one frame, or an APNG",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, closeLog, err := newLogger(false)
		if err != nil {
			return err
		}
		defer closeLog()

		store := openHistory(logger)
		if store != nil {
			defer store.Close()
		}

		d := dispatch.New(dispatchConfig(logger))
		params := dispatch.Params{OutPath: renderOpts.output}
		if cmd.Flags().Changed("frame") {
			params.Frame = &renderOpts.frame
		}
		task, err := d.CreateFor(args[0], renderOpts.kind, params)
		if err != nil {
			return err
		}
		if err := task.Start(); err != nil {
			return err
		}
		out := task.Wait()
		recordRun(store, out, logger)

		fmt.Fprintln(os.Stdout, tui.RenderSummary(tui.OutcomeRows(out)))
		if out.Code != 0 {
			if failures := tui.FailureRows(out); len(failures) > 0 {
				fmt.Fprintln(os.Stdout, tui.RenderSummary(failures))
			}
			return exitError(out.Code, "render")
		}
		return nil
	},
}

func init() {
	f := renderCmd.Flags()
	f.StringVarP(&renderOpts.output, "output", "o", "", "output directory (png) or file (apng); defaults next to the source")
	f.StringVarP(&renderOpts.kind, "kind", "k", "png", "output kind: png or apng")
	f.IntVar(&renderOpts.frame, "frame", 0, "export only this 0-based frame (png only)")
	rootCmd.AddCommand(renderCmd)
}
