package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "predictor",
	Short: "Taiwan equity revenue and EPS forecasting",
	Long: `Point-in-time forecasting and walk-forward backtesting for
Taiwan-listed equities.

Monthly revenue and quarterly EPS forecasts combine formula methods
with a learned adjustment model, and every forecast can be validated
against history with the backtest engine.

Usage:
  go run ./cmd/predictor [command]

Examples:
  go run ./cmd/predictor forecast 2330
  go run ./cmd/predictor backtest 2330 --metric revenue --periods 8
  go run ./cmd/predictor collect --stocks 2330,2317 --since 2022-01
  go run ./cmd/predictor api`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
