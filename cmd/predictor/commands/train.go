package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dansontsui/taiwan-stock-system-sub002/internal/adjust"
	"github.com/dansontsui/taiwan-stock-system-sub002/internal/contracts"
)

// trainCmd represents the train command
var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Retrain the adjustment model",
	Long: `Rebuilds the adjustment model from recent forecast outcomes.

For every stock and period the formula forecast is replayed at its
original cutoff, compared against the actual, and the residual becomes
a training label. The fitted model is stored in the database and
exported to the model directory.

Example:
  go run ./cmd/predictor train --periods 12
  go run ./cmd/predictor train --stocks 2330,2317 --metric revenue`,
	RunE: runTrain,
}

var (
	trainStocksFlag  string
	trainMetricFlag  string
	trainPeriodsFlag int
)

func init() {
	rootCmd.AddCommand(trainCmd)

	trainCmd.Flags().StringVar(&trainStocksFlag, "stocks", "", "comma-separated stock IDs (default: all known stocks)")
	trainCmd.Flags().StringVar(&trainMetricFlag, "metric", "revenue", "metric to train on (revenue|eps)")
	trainCmd.Flags().IntVar(&trainPeriodsFlag, "periods", 12, "lookback periods per stock")
}

func runTrain(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	metric, err := parseForecastMetric(trainMetricFlag)
	if err != nil {
		return err
	}

	d, err := initDeps(ctx)
	if err != nil {
		return err
	}
	defer d.close()

	var stockIDs []string
	if trainStocksFlag != "" {
		for _, id := range strings.Split(trainStocksFlag, ",") {
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
		return fmt.Errorf("no stocks to train on; collect data first")
	}

	fmt.Printf("Training on %d stocks, %d periods each...\n", len(stockIDs), trainPeriodsFlag)

	report, err := d.newTrainer().Retrain(ctx, stockIDs, metric, trainPeriodsFlag)
	if err != nil {
		return fmt.Errorf("training failed: %w", err)
	}

	fmt.Printf("\nModel trained on %d samples (%d outliers discarded) at %s\n",
		report.Samples, report.Discarded, report.TrainedAt.Format("2006-01-02 15:04:05"))

	if err := exportArtifact(cmd, d); err != nil {
		fmt.Printf("Warning: artifact export failed: %v\n", err)
	}
	return nil
}

// exportArtifact copies the stored artifact into the model directory so a
// file copy survives database restores.
func exportArtifact(cmd *cobra.Command, d *deps) error {
	name := contracts.DefaultModelConfig().ArtifactName
	blob, err := d.pg.LoadModel(cmd.Context(), name)
	if err != nil {
		return err
	}
	fs, err := adjust.NewFileStore(d.cfg.Model.Dir)
	if err != nil {
		return err
	}
	if err := fs.SaveModel(cmd.Context(), name, blob); err != nil {
		return err
	}
	fmt.Printf("Artifact exported to %s\n", d.cfg.Model.Dir)
	return nil
}
