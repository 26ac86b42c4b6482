package main

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/profview/profview/internal/storage"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Create and inspect profiling runs",
}

var runsCreateCmd = &cobra.Command{
	Use:   "create <path>",
	Short: "Upload a dataset for server-side profiling",
	Long: `Upload a dataset for server-side profiling.

The file is sent to the server, which queues a profiling run and
returns immediately. Use 'profview runs list' to watch progress and
'profview report <id>' once the run completes.

Examples:
  profview runs create ./orders.csv
  profview runs create ./dump.txt --delimiter ';'
  profview runs create ./export.bin --type jsonl`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		sourceType, _ := cmd.Flags().GetString("type")
		delimiter, _ := cmd.Flags().GetString("delimiter")

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading file: %w", err)
		}

		req := map[string]any{
			"name":    filepath.Base(path),
			"content": base64.StdEncoding.EncodeToString(data),
		}
		if sourceType != "" {
			req["type"] = sourceType
		}
		if delimiter != "" {
			d, err := delimiterRune(delimiter)
			if err != nil {
				return err
			}
			req["delimiter"] = string(d)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/runs", req)
		if err != nil {
			return err
		}

		var run storage.Run
		if err := decodeJSON(resp, &run); err != nil {
			return err
		}

		printSuccess("Queued run %s (%s)", run.ID, run.SourceType)
		return nil
	},
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/runs?limit=%d", limit))
		if err != nil {
			return err
		}

		var runs []storage.Run
		if err := decodeJSON(resp, &runs); err != nil {
			return err
		}

		if len(runs) == 0 {
			fmt.Println("No runs found.")
			return nil
		}

		for _, run := range runs {
			line := fmt.Sprintf("%s  %-9s  %-8s  %s  %s",
				colorize(colorCyan, run.ID[:8]),
				run.Status,
				run.SourceType,
				run.SourceName,
				humanize.Time(run.CreatedAt),
			)
			if run.Status == storage.RunCompleted {
				line += fmt.Sprintf("  (%s rows, %d columns)", humanize.Comma(run.RowCount), run.ColumnCount)
			}
			if run.Status == storage.RunFailed && run.LastError != "" {
				line += "  " + colorize(colorRed, run.LastError)
			}
			fmt.Println(line)
		}
		return nil
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single run as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/runs/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}

		var run any
		if err := decodeJSON(resp, &run); err != nil {
			return err
		}
		return printJSON(os.Stdout, run)
	},
}

var runsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a run and its stored report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/runs/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}

		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printSuccess("Deleted run %s", args[0])
		return nil
	},
}

func init() {
	runsCreateCmd.Flags().String("type", "", "source type: csv, tsv, jsonl, pdf (default: from file name)")
	runsCreateCmd.Flags().String("delimiter", "", "field delimiter for delimited files (single character or 'tab')")
	runsListCmd.Flags().Int("limit", 20, "maximum number of runs to list")
	runsCmd.AddCommand(runsCreateCmd)
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsDeleteCmd)
}
