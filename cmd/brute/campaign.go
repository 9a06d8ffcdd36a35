package brute

import (
	"fmt"
	"strconv"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/tldr-it-stepankutaj/brute/internal/campaign"
	"github.com/tldr-it-stepankutaj/brute/internal/engine"
	"github.com/tldr-it-stepankutaj/brute/internal/report"
)

var campaignCmd = &cobra.Command{
	Use:   "campaign",
	Short: "Run several independent runs from a YAML plan",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var campaignRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a campaign plan",
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		concurrency, _ := cmd.Flags().GetInt("concurrency")
		if file == "" {
			return fmt.Errorf("campaign file is required (use --file)")
		}

		plan, err := campaign.LoadPlan(file)
		if err != nil {
			return err
		}

		s, err := newSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		perRun := func(run campaign.Run, runID string) (engine.Reporter, func() error, error) {
			findings, err := report.OpenJSONL(s.ws.FindingsPath(runID))
			if err != nil {
				return nil, nil, err
			}
			return report.Multi{report.NewLog(s.log.WithField("run", run.ID), run.Module), findings}, findings.Close, nil
		}

		pterm.DefaultSection.Printfln("Campaign: %s (%d runs)", plan.Name, len(plan.Runs))
		rep, err := campaign.Execute(s.appCtx, s.reg, plan, campaign.Options{
			Concurrency: concurrency,
			Reporter:    perRun,
		})
		if err != nil {
			return err
		}

		renderCampaign(rep)
		path := campaign.ReportPath(s.ws, plan.Name, s.appCtx.Now)
		if err := campaign.SaveReport(rep, path); err != nil {
			pterm.Warning.Printfln("Failed to save report: %v", err)
		} else {
			pterm.Info.Printfln("Report written to %s", path)
		}

		if err := cmd.Context().Err(); err != nil {
			return err
		}
		if rep.Failed > 0 {
			return fmt.Errorf("%d of %d runs failed", rep.Failed, len(rep.Results))
		}
		return nil
	},
}

func init() {
	campaignRunCmd.Flags().String("file", "", "Path to campaign YAML file")
	campaignRunCmd.Flags().Int("concurrency", 0, "Override the plan's concurrency")

	campaignCmd.AddCommand(campaignRunCmd)
}

func renderCampaign(rep *campaign.Report) {
	data := pterm.TableData{{"Run", "Module", "Outcome", "Reason", "Attempts", "Credential", "Error"}}
	for _, r := range rep.Results {
		found := "-"
		if r.Status.Found != nil {
			found = r.Status.Found.Identifier + ":" + r.Status.Found.Guess
		}
		data = append(data, []string{
			r.ID, r.Module, string(r.Status.Outcome), dash(r.Status.Reason),
			strconv.Itoa(r.Status.Attempts), found, dash(r.Error),
		})
	}
	if err := pterm.DefaultTable.WithHasHeader(true).WithBoxed(false).WithData(data).Render(); err != nil {
		pterm.Error.Printfln("failed to render summary: %v", err)
	}
	pterm.Info.Printfln("found %d, exhausted %d, failed %d in %s",
		rep.Found, rep.Exhausted, rep.Failed, rep.Duration.Round(time.Millisecond))
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
