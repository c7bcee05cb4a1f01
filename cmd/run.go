package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/pkg/notion"
)

var (
	runMaxLeads int
	runPrompts  string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process all pending leads",
	Long:  "Reads the lead source table, skips already-personalized leads, and enriches the rest: scrape reviews, summarize, generate a DM opener, upsert the output row.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if runMaxLeads > 0 {
			cfg.Pipeline.MaxLeads = runMaxLeads
		}
		if runPrompts != "" {
			cfg.Pipeline.PromptsPath = runPrompts
		}

		env, err := initPipeline(ctx, "pipeline")
		if err != nil {
			return err
		}
		defer env.Close()

		run, err := env.Store.CreateRun(ctx)
		if err != nil {
			return err
		}

		report, err := executeRun(ctx, env, run)
		if err != nil {
			return err
		}

		zap.L().Info("run complete",
			zap.String("run_id", run.ID),
			zap.Int("succeeded", report.Succeeded),
			zap.Int("failed", report.Failed),
			zap.Int("skipped", report.Skipped),
			zap.Float64("cost_usd", report.TotalCost),
		)

		// Print report JSON to stdout
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	runCmd.Flags().IntVar(&runMaxLeads, "max-leads", 0, "cap on leads processed this run (0 = config value)")
	runCmd.Flags().StringVar(&runPrompts, "prompts", "", "path to a YAML prompt pack overriding the built-in prompts")
	rootCmd.AddCommand(runCmd)
}

// executeRun drives the pipeline against an already-created run record,
// persists the outcome, and publishes the optional Notion summary page.
// Bookkeeping failures are logged, never fatal: the report is the source of
// truth for the caller.
func executeRun(ctx context.Context, env *pipelineEnv, run *model.Run) (*model.RunReport, error) {
	pageID := publishRunPage(ctx, env, notion.RunSummary{RunID: run.ID, Status: "Running"})

	report, runErr := env.Pipeline.Run(ctx)
	if runErr != nil {
		if err := env.Store.FailRun(ctx, run.ID, runErr.Error()); err != nil {
			zap.L().Warn("record run failure", zap.String("run_id", run.ID), zap.Error(err))
		}
		updateRunPage(ctx, env, pageID, summarizeRun(run.ID, "Failed", report, runErr.Error()))
		return report, runErr
	}

	if err := env.Store.CompleteRun(ctx, run.ID, report); err != nil {
		zap.L().Warn("record run completion", zap.String("run_id", run.ID), zap.Error(err))
	}
	updateRunPage(ctx, env, pageID, summarizeRun(run.ID, "Complete", report, ""))
	return report, nil
}

// publishRunPage creates the Notion run page when the sink is configured.
func publishRunPage(ctx context.Context, env *pipelineEnv, sum notion.RunSummary) string {
	if env.Notion == nil || cfg.Notion.RunsDB == "" {
		return ""
	}
	pageID, err := notion.CreateRunPage(ctx, env.Notion, cfg.Notion.RunsDB, sum)
	if err != nil {
		zap.L().Warn("notion run page create failed", zap.Error(err))
		return ""
	}
	return pageID
}

func updateRunPage(ctx context.Context, env *pipelineEnv, pageID string, sum notion.RunSummary) {
	if pageID == "" || env.Notion == nil {
		return
	}
	if err := notion.UpdateRunPage(ctx, env.Notion, pageID, sum); err != nil {
		zap.L().Warn("notion run page update failed", zap.Error(err))
	}
}

// summarizeRun flattens a run report into the Notion page fields. A nil
// report (run aborted before processing) leaves the counters at zero.
func summarizeRun(runID, status string, report *model.RunReport, errMsg string) notion.RunSummary {
	sum := notion.RunSummary{RunID: runID, Status: status, Error: errMsg}
	if report != nil {
		sum.Total = report.TotalLeads
		sum.Succeeded = report.Succeeded
		sum.Failed = report.Failed
		sum.Skipped = report.Skipped
		sum.CostUSD = report.TotalCost
		sum.Duration = time.Duration(report.Duration) * time.Millisecond
	}
	return sum
}
