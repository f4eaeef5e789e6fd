package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/pricecanon/internal/contracts"
	"github.com/wonny/pricecanon/internal/eod"
)

// importCmd represents the import command
var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Run one EOD import",
	Long: `Fetches EOD bars from all configured vendors, stores the raw
observations, selects one canonical bar per (ticker, trading day) and runs
the quality detectors. Every invocation leaves a permanent run row.

With no flags the window defaults to the configured lookback ending at the
most recent completed trading day.

Example:
  go run ./cmd/canon import
  go run ./cmd/canon import --from 2025-11-03 --to 2025-11-07
  go run ./cmd/canon import --ticker AAPL`,
	RunE: runImport,
}

var (
	importFrom   string
	importTo     string
	importTicker string
)

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().StringVar(&importFrom, "from", "", "window start (YYYY-MM-DD)")
	importCmd.Flags().StringVar(&importTo, "to", "", "window end (YYYY-MM-DD)")
	importCmd.Flags().StringVar(&importTicker, "ticker", "", "restrict to one ticker code")
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	from, err := parseDateFlag("from", importFrom)
	if err != nil {
		return err
	}
	to, err := parseDateFlag("to", importTo)
	if err != nil {
		return err
	}

	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	summary, err := app.importer.Run(ctx, eod.ImportRequest{
		From:       from,
		To:         to,
		TickerCode: importTicker,
	})
	if err != nil {
		return fmt.Errorf("run import: %w", err)
	}

	printSummary(summary)

	if summary.Status == contracts.RunStatusFailed {
		return fmt.Errorf("import run %d failed: %s", summary.RunID, summary.Reason)
	}
	return nil
}
