package commands

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/wonny/pricecanon/internal/contracts"
)

// publishCmd represents the publish command
var publishCmd = &cobra.Command{
	Use:   "publish [run_id]",
	Short: "Promote a SUCCESS run to the production price table",
	Long: `Upserts a SUCCESS run's canonical bars into the production price
table, keyed (ticker, trading day), with source and run id provenance on
every row. Held and failed runs are never publishable.

Example:
  go run ./cmd/canon publish 42
  go run ./cmd/canon publish 42 --batch-size 1000`,
	Args: cobra.ExactArgs(1),
	RunE: runPublish,
}

var publishBatchSize int

func init() {
	rootCmd.AddCommand(publishCmd)

	publishCmd.Flags().IntVar(&publishBatchSize, "batch-size", 0, "rows per upsert batch (0 = configured default)")
}

func runPublish(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	runID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid run id %q", args[0])
	}

	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	batchSize := publishBatchSize
	if batchSize <= 0 {
		batchSize = app.cfg.EOD.PublishBatchSize
	}

	result, err := app.publisher.Publish(ctx, runID, batchSize)
	if err != nil {
		return fmt.Errorf("publish run %d: %w", runID, err)
	}

	fmt.Printf("\nPublish run %d: %s\n", runID, result.Status)
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("%-15s %10d\n", "Published:", result.Published)
	fmt.Printf("%-15s %10d\n", "Rejected:", result.Rejected)
	for _, note := range result.Notes {
		fmt.Printf("  - %s\n", note)
	}

	if result.Status == contracts.RunStatusFailed {
		return fmt.Errorf("publish of run %d failed", runID)
	}
	return nil
}
