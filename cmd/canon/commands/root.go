package commands

import (
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "canon",
	Short: "EOD price reconciliation and canonicalization pipeline",
	Long: `canon imports end-of-day prices from multiple vendors, reconciles them
into one canonical record per (ticker, trading day), and publishes audited
runs to the production price table.

Usage:
  go run ./cmd/canon [command]

Examples:
  go run ./cmd/canon import
  go run ./cmd/canon import --from 2025-11-03 --to 2025-11-07
  go run ./cmd/canon rebuild --run 42
  go run ./cmd/canon publish 42
  go run ./cmd/canon status --limit 10
  go run ./cmd/canon serve
  go run ./cmd/canon scheduler start`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}
