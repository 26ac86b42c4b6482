package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/profview/profview/internal/api"
	"github.com/profview/profview/internal/config"
	"github.com/profview/profview/internal/logging"
	"github.com/profview/profview/internal/profiler"
	"github.com/profview/profview/internal/report"
	"github.com/profview/profview/internal/source"
)

var profileCmd = &cobra.Command{
	Use:   "profile <path>",
	Short: "Profile a local dataset and print the report",
	Long: `Profile a local dataset and print the report.

Runs the profiler directly against a local file, no server involved.

Examples:
  profview profile ./orders.csv
  profview profile ./events.jsonl --format flat
  profview profile ./survey.txt --delimiter ';' --preset summary
  profview profile ./big.csv.gz --omit 'data_stats.*.statistics.histogram' --output report.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		formatName, _ := cmd.Flags().GetString("format")
		presetName, _ := cmd.Flags().GetString("preset")
		omit, _ := cmd.Flags().GetStringArray("omit")
		delimiter, _ := cmd.Flags().GetString("delimiter")
		output, _ := cmd.Flags().GetString("output")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logging.Setup(cfg.Log.Level, cfg.Log.Format)

		presets, err := loadPresets(cfg.Presets.Path)
		if err != nil {
			return err
		}
		format, omitPaths, err := api.ResolveView(presets, presetName, formatName, omit)
		if err != nil {
			return err
		}

		ds, err := openDataset(path, delimiter)
		if err != nil {
			return err
		}
		defer ds.Close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		prof := profiler.New(profilerOptions(cfg), slog.Default())
		rep, err := prof.Profile(ctx, ds)
		if err != nil {
			return fmt.Errorf("profiling %s: %w", path, err)
		}

		shaped := report.Transform(rep, format, omitPaths)

		out := os.Stdout
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating output file: %w", err)
			}
			defer f.Close()
			out = f
		}
		if err := printJSON(out, shaped); err != nil {
			return err
		}
		if output != "" {
			printSuccess("Report written to %s", output)
		}
		return nil
	},
}

func init() {
	profileCmd.Flags().String("format", "", "report format: none, pretty, compact, serializable, flat")
	profileCmd.Flags().String("preset", "", "named view preset")
	profileCmd.Flags().StringArray("omit", nil, "dotted stat paths to drop (repeatable)")
	profileCmd.Flags().String("delimiter", "", "field delimiter for delimited files (single character or 'tab')")
	profileCmd.Flags().String("output", "", "output file path (default: stdout)")
}

// openDataset opens path with an explicit delimiter when one is given,
// otherwise dispatches on the file extension.
func openDataset(path, delimiter string) (source.Source, error) {
	if delimiter == "" {
		return source.Open(path)
	}
	d, err := delimiterRune(delimiter)
	if err != nil {
		return nil, err
	}
	return source.OpenCSV(path, d)
}

func delimiterRune(s string) (rune, error) {
	switch s {
	case "\\t", "tab":
		return '\t', nil
	}
	r := []rune(s)
	if len(r) != 1 {
		return 0, fmt.Errorf("delimiter must be a single character, got %q", s)
	}
	return r[0], nil
}
