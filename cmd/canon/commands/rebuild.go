package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/pricecanon/internal/contracts"
	"github.com/wonny/pricecanon/internal/eod"
)

// rebuildCmd represents the rebuild command
var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild canonical bars from stored raw observations",
	Long: `Re-runs selection and all quality detectors against the raw bars of
an earlier import, without calling any vendor. Use it after changing quality
rules or provider priority; raw immutability guarantees the input is exactly
what the source run fetched.

Without --run the latest SUCCESS import covering the window end is used.

Example:
  go run ./cmd/canon rebuild --run 42
  go run ./cmd/canon rebuild --from 2025-11-03 --to 2025-11-07
  go run ./cmd/canon rebuild --run 42 --ticker AAPL`,
	RunE: runRebuild,
}

var (
	rebuildRunID  int64
	rebuildFrom   string
	rebuildTo     string
	rebuildTicker string
)

func init() {
	rootCmd.AddCommand(rebuildCmd)

	rebuildCmd.Flags().Int64Var(&rebuildRunID, "run", 0, "source import run id (0 = latest SUCCESS import)")
	rebuildCmd.Flags().StringVar(&rebuildFrom, "from", "", "window start (YYYY-MM-DD)")
	rebuildCmd.Flags().StringVar(&rebuildTo, "to", "", "window end (YYYY-MM-DD)")
	rebuildCmd.Flags().StringVar(&rebuildTicker, "ticker", "", "restrict to one ticker code")
}

func runRebuild(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	from, err := parseDateFlag("from", rebuildFrom)
	if err != nil {
		return err
	}
	to, err := parseDateFlag("to", rebuildTo)
	if err != nil {
		return err
	}

	req := eod.RebuildRequest{
		From:       from,
		To:         to,
		TickerCode: rebuildTicker,
	}
	if rebuildRunID > 0 {
		req.SourceRunID = &rebuildRunID
	}

	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	summary, err := app.rebuilder.Run(ctx, req)
	if err != nil {
		return fmt.Errorf("run rebuild: %w", err)
	}

	printSummary(summary)

	if summary.Status == contracts.RunStatusFailed {
		return fmt.Errorf("rebuild run %d failed: %s", summary.RunID, summary.Reason)
	}
	return nil
}
