package cmd

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"flipbook/internal/export"
	"flipbook/internal/render"
	"flipbook/internal/tui"
	"flipbook/pkg/imgutil"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Show frame count, rate and provenance of a source or exported file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		kind, err := imgutil.SniffFile(path)
		if err != nil {
			return err
		}

		var rows []tui.SummaryRow
		switch kind {
		case imgutil.KindGIF:
			src, err := render.GIFLoader{}.Load(path)
			if err != nil {
				return err
			}
			b := src.Bounds()
			rows = []tui.SummaryRow{
				{Label: "Format", Value: "gif"},
				{Label: "Size", Value: fmt.Sprintf("%dx%d", b.Dx(), b.Dy())},
				{Label: "Frames", Value: fmt.Sprintf("%d", src.FrameCount())},
				{Label: "Rate", Value: fmt.Sprintf("%.2f fps", src.FrameRate())},
			}
		case imgutil.KindPNG:
			info, err := export.Inspect(path)
			if err != nil {
				return err
			}
			format := "png"
			if info.Animated {
				format = "apng"
			}
			rows = []tui.SummaryRow{
				{Label: "Format", Value: format},
				{Label: "Size", Value: fmt.Sprintf("%dx%d", info.Width, info.Height)},
				{Label: "Frames", Value: fmt.Sprintf("%d", info.Frames)},
			}
			if info.Animated {
				rows = append(rows, tui.SummaryRow{Label: "Delay", Value: fmt.Sprintf("%d/%d s", info.DelayNum, info.DelayDen)})
			}
			if len(info.Metadata) > 0 {
				rows = append(rows, tui.SummaryRow{Label: "Metadata", Value: strings.Join(info.Metadata, ", ")})
			}
			keys := make([]string, 0, len(info.Provenance))
			for k := range info.Provenance {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				rows = append(rows, tui.SummaryRow{Label: k, Value: info.Provenance[k]})
			}
		default:
			return fmt.Errorf("%s: %w", path, render.ErrUnsupported)
		}

		fmt.Fprintln(os.Stdout, tui.RenderSummary(rows))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}
