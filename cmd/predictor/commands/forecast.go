package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dansontsui/taiwan-stock-system-sub002/internal/contracts"
)

// forecastCmd represents the forecast command
var forecastCmd = &cobra.Command{
	Use:   "forecast <stock_id>",
	Short: "Forecast next-period revenue or EPS for one stock",
	Long: `Produces a point-in-time forecast for the period after the cutoff.

Only data visible at the cutoff feeds the forecast. Without --as-of the
cutoff is the latest period with data.

Example:
  go run ./cmd/predictor forecast 2330
  go run ./cmd/predictor forecast 2330 --metric eps
  go run ./cmd/predictor forecast 2330 --as-of 2024-06`,
	Args: cobra.ExactArgs(1),
	RunE: runForecast,
}

var (
	forecastMetricFlag string
	forecastAsOfFlag   string
)

func init() {
	rootCmd.AddCommand(forecastCmd)

	forecastCmd.Flags().StringVar(&forecastMetricFlag, "metric", "revenue", "metric to forecast (revenue|eps)")
	forecastCmd.Flags().StringVar(&forecastAsOfFlag, "as-of", "", "cutoff period, e.g. 2024-06 or 2024-Q2 (default: latest)")
}

func runForecast(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	stockID := args[0]

	metric, err := parseForecastMetric(forecastMetricFlag)
	if err != nil {
		return err
	}

	d, err := initDeps(ctx)
	if err != nil {
		return err
	}
	defer d.close()

	asOf, err := resolveCutoff(ctx, d, stockID, metric, forecastAsOfFlag)
	if err != nil {
		return err
	}

	result, err := d.orch.Forecast(ctx, stockID, metric, asOf)
	if err != nil {
		return fmt.Errorf("forecast failed: %w", err)
	}

	printForecast(result)
	return nil
}

func parseForecastMetric(raw string) (contracts.Metric, error) {
	metric := contracts.Metric(strings.ToLower(raw))
	if metric != contracts.MetricRevenue && metric != contracts.MetricEPS {
		return "", fmt.Errorf("metric must be revenue or eps, got %q", raw)
	}
	return metric, nil
}

// resolveCutoff parses the as-of flag, defaulting to the latest period
// with data.
func resolveCutoff(ctx context.Context, d *deps, stockID string, metric contracts.Metric, raw string) (contracts.Period, error) {
	if raw != "" {
		return contracts.ParsePeriod(raw)
	}
	latest, ok, err := d.repo.LatestPeriod(ctx, stockID, metric)
	if err != nil {
		return contracts.Period{}, fmt.Errorf("looking up latest period: %w", err)
	}
	if !ok {
		return contracts.Period{}, fmt.Errorf("no %s data for stock %s", metric, stockID)
	}
	return latest, nil
}

func printForecast(result contracts.ForecastResult) {
	fmt.Println("=== Forecast ===")
	fmt.Printf("Stock:      %s\n", result.StockID)
	fmt.Printf("Target:     %s\n", result.Target)
	fmt.Printf("Growth:     %+.2f%%\n", result.GrowthRate*100)
	fmt.Printf("Predicted:  %.2f\n", result.PredictedValue)
	fmt.Printf("Confidence: %s\n", result.Confidence)
	if result.Fallback != contracts.FallbackNone {
		fmt.Printf("Fallback:   %s\n", result.Fallback)
	}
	if len(result.Breakdown) > 0 {
		fmt.Println("\nMethod breakdown:")
		for _, est := range result.Breakdown {
			fmt.Printf("  %-16s %+7.2f%%  (weight %.1f, %s)\n",
				est.Method, est.Growth*100, est.Weight, est.Confidence)
		}
	}
	if !result.Adjustment.Neutral() {
		fmt.Printf("\nAdjustment: factor %+.3f, adjusted growth %+.2f%%\n",
			result.Adjustment.Factor, result.Adjustment.AdjustedGrowth*100)
	}
}
