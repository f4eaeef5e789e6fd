package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wonny/pricecanon/internal/contracts"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent runs",
	Long: `Lists recent runs with their terminal status and metrics, or shows
the full audit row of one run.

Example:
  go run ./cmd/canon status
  go run ./cmd/canon status --limit 50
  go run ./cmd/canon status --run 42`,
	RunE: runStatus,
}

var (
	statusLimit int
	statusRunID int64
)

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().IntVar(&statusLimit, "limit", 20, "number of runs to list")
	statusCmd.Flags().Int64Var(&statusRunID, "run", 0, "show one run in detail")
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	if statusRunID > 0 {
		return showRun(ctx, app, statusRunID)
	}
	return listRuns(ctx, app)
}

func listRuns(ctx context.Context, app *app) error {
	runs, err := app.runs.List(ctx, statusLimit)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}

	if len(runs) == 0 {
		fmt.Println("No runs recorded")
		return nil
	}

	fmt.Printf("%-6s %-18s %-8s %-15s %-11s %-11s %9s %9s\n",
		"RUN", "JOB", "MODE", "STATUS", "FROM", "TO", "COVERAGE", "FALLBACK")
	fmt.Println(strings.Repeat("─", 95))
	for _, run := range runs {
		fmt.Printf("%-6d %-18s %-8s %-15s %-11s %-11s %8.2f%% %8.2f%%\n",
			run.ID, run.Job, run.Mode, run.Status,
			run.FromDate.Format("2006-01-02"), run.ToDate.Format("2006-01-02"),
			run.CoveragePct, run.FallbackPct)
	}
	return nil
}

func showRun(ctx context.Context, app *app, runID int64) error {
	run, err := app.runs.Get(ctx, runID)
	if err != nil {
		return fmt.Errorf("get run %d: %w", runID, err)
	}

	fmt.Printf("\nRun %d (%s, %s)\n", run.ID, run.Job, run.Mode)
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("%-20s %s\n", "Status:", run.Status)
	fmt.Printf("%-20s %s .. %s\n", "Window:", run.FromDate.Format("2006-01-02"), run.ToDate.Format("2006-01-02"))
	fmt.Printf("%-20s %s %s\n", "Timezone/cutoff:", run.Timezone, run.Cutoff)
	fmt.Printf("%-20s %d tickers x %d days\n", "Target:", run.TargetTickers, run.TargetDays)
	if run.RawSourceRunID != nil {
		fmt.Printf("%-20s %d\n", "Raw source run:", *run.RawSourceRunID)
	}
	fmt.Printf("%-20s %.2f%%\n", "Coverage:", run.CoveragePct)
	fmt.Printf("%-20s %.2f%%\n", "Fallback:", run.FallbackPct)
	fmt.Printf("%-20s %d\n", "Hard rejects:", run.HardRejects)
	fmt.Printf("%-20s %d\n", "Soft flags:", run.SoftFlags)
	fmt.Printf("%-20s %d\n", "Major disagreements:", run.DisagreeMajor)
	fmt.Printf("%-20s %d\n", "Missing days:", run.MissingTradingDay)
	fmt.Printf("%-20s %s\n", "Started:", run.StartedAt.Format("2006-01-02 15:04:05"))
	if run.FinishedAt != nil {
		fmt.Printf("%-20s %s\n", "Finished:", run.FinishedAt.Format("2006-01-02 15:04:05"))
	}

	if run.Notes != "" {
		fmt.Println("\nNotes:")
		for _, note := range strings.Split(run.Notes, contracts.NoteSeparator) {
			fmt.Printf("  - %s\n", note)
		}
	}
	return nil
}
