package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report <run-id>",
	Short: "Fetch the shaped report for a run",
	Long: `Fetch the shaped report for a run from the server.

Examples:
  profview report 4f8c91a2-1b77-4b6e-9f0a-0c2d8e3a5b61
  profview report 4f8c91a2-1b77-4b6e-9f0a-0c2d8e3a5b61 --format compact
  profview report 4f8c91a2-1b77-4b6e-9f0a-0c2d8e3a5b61 --preset summary`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		formatName, _ := cmd.Flags().GetString("format")
		presetName, _ := cmd.Flags().GetString("preset")
		omit, _ := cmd.Flags().GetStringArray("omit")
		output, _ := cmd.Flags().GetString("output")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		q := url.Values{}
		if formatName != "" {
			q.Set("format", formatName)
		}
		if presetName != "" {
			q.Set("preset", presetName)
		}
		for _, o := range omit {
			q.Add("omit", o)
		}
		path := "/runs/" + url.PathEscape(args[0]) + "/report"
		if len(q) > 0 {
			path += "?" + q.Encode()
		}

		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		// Indent the raw bytes so the server's key order survives.
		var buf bytes.Buffer
		if err := json.Indent(&buf, raw, "", "  "); err != nil {
			return fmt.Errorf("malformed report JSON: %w", err)
		}
		buf.WriteByte('\n')

		if output != "" {
			if err := os.WriteFile(output, buf.Bytes(), 0o644); err != nil {
				return fmt.Errorf("writing output file: %w", err)
			}
			printSuccess("Report written to %s", output)
			return nil
		}
		_, err = os.Stdout.Write(buf.Bytes())
		return err
	},
}

func init() {
	reportCmd.Flags().String("format", "", "report format: none, pretty, compact, serializable, flat")
	reportCmd.Flags().String("preset", "", "named view preset")
	reportCmd.Flags().StringArray("omit", nil, "dotted stat paths to drop (repeatable)")
	reportCmd.Flags().String("output", "", "output file path (default: stdout)")
}
