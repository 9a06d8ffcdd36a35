package brute

import (
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/tldr-it-stepankutaj/brute/internal/report"
)

// `report` subcommand: summarise every run recorded in the workspace.
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarise all runs recorded in the workspace findings",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")

		s, err := newSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		summary, err := report.Collect(s.ws.Path("findings"), s.appCtx.Now)
		if err != nil {
			return fmt.Errorf("failed to collect findings: %w", err)
		}

		if output == "" {
			if format == "json" {
				return summary.ExportJSON(os.Stdout)
			}
			return summary.ExportMarkdown(os.Stdout)
		}
		if err := summary.WriteFile(output, format); err != nil {
			return err
		}
		pterm.Success.Printfln("Report generated: %s", output)
		pterm.Info.Printfln("Runs: %d, found: %d, exhausted: %d, aborted: %d",
			len(summary.Runs), summary.Found, summary.Exhausted, summary.Aborted)
		return nil
	},
}

func init() {
	reportCmd.Flags().String("format", "md", "Output format (md, json)")
	reportCmd.Flags().String("output", "", "Output file path (default: stdout)")
}
