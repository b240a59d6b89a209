package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dansontsui/taiwan-stock-system-sub002/internal/contracts"
)

// backtestCmd represents the backtest command
var backtestCmd = &cobra.Command{
	Use:   "backtest <stock_id>",
	Short: "Walk-forward backtest of the forecaster",
	Long: `Replays history period by period: at each cutoff a forecast is made
from data visible then, compared against the actual once it lands, and
scored. Abnormal periods are flagged and the error statistics are
stratified.

Example:
  go run ./cmd/predictor backtest 2330
  go run ./cmd/predictor backtest 2330 --metric eps --periods 6`,
	Args: cobra.ExactArgs(1),
	RunE: runBacktestCmd,
}

var (
	backtestMetricFlag  string
	backtestPeriodsFlag int
)

func init() {
	rootCmd.AddCommand(backtestCmd)

	backtestCmd.Flags().StringVar(&backtestMetricFlag, "metric", "revenue", "metric to backtest (revenue|eps)")
	backtestCmd.Flags().IntVar(&backtestPeriodsFlag, "periods", 8, "number of walk-forward periods")
}

func runBacktestCmd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	stockID := args[0]

	metric, err := parseForecastMetric(backtestMetricFlag)
	if err != nil {
		return err
	}

	d, err := initDeps(ctx)
	if err != nil {
		return err
	}
	defer d.close()

	fmt.Printf("Running %d-period %s backtest for %s...\n\n", backtestPeriodsFlag, metric, stockID)

	report, err := d.engine.Run(ctx, stockID, metric, backtestPeriodsFlag)
	if err != nil {
		return fmt.Errorf("backtest failed: %w", err)
	}

	printBacktestReport(report)
	return nil
}

func printBacktestReport(report *contracts.BacktestReport) {
	fmt.Println("=== Backtest Report ===")
	fmt.Printf("Stock:  %s  Metric: %s\n", report.StockID, report.Metric)
	fmt.Printf("Periods: %d requested, %d scored, %d skipped, %d failed\n",
		report.RequestedPeriods, report.ScoredPeriods(), report.SkippedPeriods, report.FailedPeriods)
	fmt.Printf("Elapsed: %s\n", report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))

	if len(report.Diagnostics) > 0 {
		fmt.Println("\nDiagnostics:")
		for _, line := range report.Diagnostics {
			fmt.Printf("  - %s\n", line)
		}
	}

	stats := report.Statistics
	if stats.Overall.Periods > 0 {
		fmt.Println("\nAccuracy:")
		printBucket("overall", stats.Overall)
		if stats.OperatingOnly.Periods > 0 {
			printBucket("operating", stats.OperatingOnly)
		}
		if stats.AbnormalOnly.Periods > 0 {
			printBucket("abnormal", stats.AbnormalOnly)
		}
		if len(stats.ByConfidence) > 0 {
			fmt.Println("\nBy confidence:")
			for _, conf := range []contracts.Confidence{contracts.ConfidenceHigh, contracts.ConfidenceMedium, contracts.ConfidenceLow} {
				if bucket, ok := stats.ByConfidence[conf]; ok {
					fmt.Printf("  %-8s %d periods, direction %.0f%%\n",
						strings.ToLower(string(conf)), bucket.Count, bucket.DirectionAccuracy*100)
				}
			}
		}
	}

	if len(report.Suggestions) > 0 {
		fmt.Println("\nSuggestions:")
		for _, s := range report.Suggestions {
			fmt.Printf("  - %s\n", s)
		}
	}

	fmt.Println("\nPeriods:")
	for _, p := range report.Periods {
		line := fmt.Sprintf("  %s -> %s  [%s]", p.Cutoff, p.Target, p.State)
		if p.Scored() {
			line += fmt.Sprintf("  pred %+6.2f%%  actual %+6.2f%%  value MAPE %5.2f%%",
				p.Forecast.GrowthRate*100, p.Actual.GrowthRate*100, p.Accuracy.ValueMAPE)
			if p.IsAbnormal() {
				line += "  (abnormal: " + strings.Join(p.Abnormal.Reasons, ", ") + ")"
			}
		}
		if p.Error != "" {
			line += "  error: " + p.Error
		}
		fmt.Println(line)
	}
}

func printBucket(name string, bucket contracts.StatsBucket) {
	fmt.Printf("  %-10s %d periods  growth MAPE %6.2f%%  value MAPE %6.2f%%  direction %.0f%%  RMSE %.4f\n",
		name, bucket.Periods, bucket.GrowthRateMAPE, bucket.ValueMAPE, bucket.DirectionAccuracy*100, bucket.GrowthRMSE)
}
