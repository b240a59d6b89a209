package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dansontsui/taiwan-stock-system-sub002/internal/adjust"
	"github.com/dansontsui/taiwan-stock-system-sub002/internal/contracts"
)

// Retraining looks back this many periods per stock when building samples.
const retrainPeriods = 12

// RetrainJob rebuilds the adjustment model from recent forecast outcomes.
type RetrainJob struct {
	trainer *adjust.Trainer
	stocks  StockLister
	log     zerolog.Logger
}

// NewRetrainJob creates a new retraining job
func NewRetrainJob(trainer *adjust.Trainer, stocks StockLister, log zerolog.Logger) *RetrainJob {
	return &RetrainJob{
		trainer: trainer,
		stocks:  stocks,
		log:     log.With().Str("component", "jobs.retrain").Logger(),
	}
}

// Name returns the job name
func (j *RetrainJob) Name() string {
	return "retrain_model"
}

// Schedule runs on the 12th of every month at 2 AM, after the revenue
// filing deadline so the newest outcomes are in the training window.
func (j *RetrainJob) Schedule() string {
	return "0 0 2 12 * *"
}

// Run executes the retraining
func (j *RetrainJob) Run(ctx context.Context) error {
	stockIDs, err := j.stocks.StockIDs(ctx)
	if err != nil {
		return fmt.Errorf("listing stocks: %w", err)
	}
	if len(stockIDs) == 0 {
		j.log.Warn().Msg("no stocks under coverage, skipping retraining")
		return nil
	}

	report, err := j.trainer.Retrain(ctx, stockIDs, contracts.MetricRevenue, retrainPeriods)
	if err != nil {
		// Too few usable samples is a data condition, not a job failure;
		// the previous model stays in place.
		if errors.Is(err, contracts.ErrInsufficientData) {
			j.log.Warn().Err(err).Msg("not enough samples to retrain, keeping current model")
			return nil
		}
		return fmt.Errorf("retraining model: %w", err)
	}

	j.log.Info().
		Int("samples", report.Samples).
		Int("discarded", report.Discarded).
		Msg("adjustment model retrained")
	return nil
}
