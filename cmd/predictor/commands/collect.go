package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dansontsui/taiwan-stock-system-sub002/internal/contracts"
)

// collectCmd represents the collect command
var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Collect filings from FinMind",
	Long: `Fetches monthly revenue and quarterly statement filings from the
FinMind open data API and stores them in the database.

Without --stocks every stock already in the database is refreshed.

Example:
  go run ./cmd/predictor collect --stocks 2330,2317 --since 2022-01
  go run ./cmd/predictor collect --since 2024-01`,
	RunE: runCollect,
}

var (
	collectStocksFlag string
	collectSinceFlag  string
)

func init() {
	rootCmd.AddCommand(collectCmd)

	collectCmd.Flags().StringVar(&collectStocksFlag, "stocks", "", "comma-separated stock IDs (default: all known stocks)")
	collectCmd.Flags().StringVar(&collectSinceFlag, "since", "", "first month to fetch, e.g. 2022-01 (default: 36 months back)")
}

func runCollect(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	d, err := initDeps(ctx)
	if err != nil {
		return err
	}
	defer d.close()

	var stockIDs []string
	if collectStocksFlag != "" {
		for _, id := range strings.Split(collectStocksFlag, ",") {
			if id = strings.TrimSpace(id); id != "" {
				stockIDs = append(stockIDs, id)
			}
		}
	} else {
		stockIDs, err = d.pg.StockIDs(ctx)
		if err != nil {
			return fmt.Errorf("listing stocks: %w", err)
		}
	}
	if len(stockIDs) == 0 {
		return fmt.Errorf("no stocks to collect; pass --stocks for the first run")
	}

	since, err := resolveSince(collectSinceFlag)
	if err != nil {
		return err
	}

	fmt.Printf("Collecting %d stocks since %s...\n", len(stockIDs), since)

	report, err := d.newCollector().Collect(ctx, stockIDs, since)
	if err != nil {
		return fmt.Errorf("collection failed: %w", err)
	}

	fmt.Printf("\nCollected %d stocks: %d revenue filings, %d statements\n",
		report.Stocks, report.Revenues, report.Statements)
	if len(report.Failed) > 0 {
		fmt.Printf("Failed: %s\n", strings.Join(report.Failed, ", "))
	}
	return nil
}

func resolveSince(raw string) (contracts.Period, error) {
	if raw != "" {
		return contracts.ParseMonth(raw)
	}
	now := time.Now()
	return contracts.NewMonth(now.Year(), int(now.Month())).Add(-36), nil
}
