package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"flipbook/internal/batch"
	"flipbook/internal/export"
	"flipbook/internal/tui"
)

var exportOpts struct {
	output  string
	kind    string
	ext     string
	strict  bool
	timeout string
	noTUI   bool
	noStamp bool
	reveal  bool
}

var exportCmd = &cobra.Command{
	Use:   "export <path>...",
	Short: "Convert every animation under the given paths",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := applyExportFlags(cmd); err != nil {
			return err
		}
		if cfg.OutputDir == "" {
			return errors.New("no output directory: pass --output or set output_dir")
		}

		kind := export.KindSequence
		if cfg.Kind == "apng" {
			kind = export.KindContainer
		}

		interactive := !exportOpts.noTUI && term.IsTerminal(int(os.Stdout.Fd()))
		logger, closeLog, err := newLogger(interactive)
		if err != nil {
			return err
		}
		defer closeLog()

		store := openHistory(logger)
		if store != nil {
			defer store.Close()
		}

		events := make(chan batch.Event, 64)
		b := batch.New(args, cfg.OutputDir, kind, batch.Options{
			Loader:        loaderFor(cfg.Extension),
			Strict:        cfg.Strict,
			FileTimeout:   cfg.FileTimeout.Duration,
			ShutdownGrace: cfg.ShutdownGrace.Duration,
			Reveal:        cfg.Reveal,
			Revealer:      revealer(),
			Software:      software(),
			Logger:        logger,
			Events:        events,
		})
		if b.Len() == 0 {
			fmt.Fprintf(os.Stdout, "%s\n", tui.DimStyle.Render(fmt.Sprintf("no %s files found", cfg.Extension)))
			return nil
		}

		sigs := make(chan os.Signal, 2)
		signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigs)
		go watchSignals(sigs, b)

		uiDone := make(chan struct{})
		if interactive {
			program := tea.NewProgram(tui.NewModel(events, b.Stop))
			go func() {
				_, _ = program.Run()
				close(uiDone)
			}()
		} else {
			go func() {
				printEvents(events)
				close(uiDone)
			}()
		}

		if err := b.Start(); err != nil {
			close(events)
			<-uiDone
			return err
		}
		out := b.Wait()
		close(events)
		<-uiDone

		recordRun(store, out, logger)

		fmt.Fprintln(os.Stdout, tui.RenderSummary(tui.OutcomeRows(out)))
		if failures := tui.FailureRows(out); len(failures) > 0 {
			fmt.Fprintln(os.Stdout, tui.WarnStyle.Render("Failed files:"))
			fmt.Fprintln(os.Stdout, tui.RenderSummary(failures))
		}
		if out.Code != batch.ResultOK {
			return exitError(out.Code, "export")
		}
		return nil
	},
}

// watchSignals stops the batch on the first signal and tears it down on the
// second.
func watchSignals(sigs <-chan os.Signal, b *batch.Batch) {
	if _, ok := <-sigs; !ok {
		return
	}
	b.Stop()
	if _, ok := <-sigs; !ok {
		return
	}
	if err := b.Close(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(130)
	}
}

func printEvents(events <-chan batch.Event) {
	for ev := range events {
		if ev.Kind != batch.EventFileDone || ev.File == nil {
			continue
		}
		status := tui.OKStyle.Render("ok")
		if ev.File.Code != batch.ResultOK {
			status = tui.FailStyle.Render(fmt.Sprintf("code %d", ev.File.Code))
		}
		fmt.Fprintf(os.Stdout, "[%d/%d] %s -> %s %s\n",
			ev.Index+1, ev.Total,
			filepath.Base(ev.File.Source),
			tui.DimStyle.Render(ev.File.Output),
			status,
		)
	}
}

func applyExportFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()
	if flags.Changed("output") {
		cfg.OutputDir = exportOpts.output
	}
	if flags.Changed("kind") {
		cfg.Kind = exportOpts.kind
	}
	if flags.Changed("ext") {
		cfg.Extension = exportOpts.ext
	}
	if flags.Changed("strict") {
		cfg.Strict = exportOpts.strict
	}
	if flags.Changed("timeout") {
		if err := cfg.FileTimeout.UnmarshalText([]byte(exportOpts.timeout)); err != nil {
			return err
		}
	}
	if flags.Changed("reveal") {
		cfg.Reveal = exportOpts.reveal
	}
	if exportOpts.noStamp {
		cfg.StampProvenance = false
	}
	return cfg.Validate()
}

func init() {
	f := exportCmd.Flags()
	f.StringVarP(&exportOpts.output, "output", "o", "", "output root directory (must exist)")
	f.StringVarP(&exportOpts.kind, "kind", "k", "", "output kind: png or apng")
	f.StringVar(&exportOpts.ext, "ext", "", "source file extension to collect")
	f.BoolVar(&exportOpts.strict, "strict", false, "fail the batch if any file fails")
	f.StringVar(&exportOpts.timeout, "timeout", "", "per-file timeout, e.g. 2m (0 disables)")
	f.BoolVar(&exportOpts.noTUI, "plain", false, "print plain progress lines instead of the live view")
	f.BoolVar(&exportOpts.noStamp, "no-stamp", false, "do not write provenance EXIF into frames")
	f.BoolVar(&exportOpts.reveal, "reveal", false, "open the output directory when done")
	rootCmd.AddCommand(exportCmd)
}
