package adjust

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dansontsui/taiwan-stock-system-sub002/internal/contracts"
	"github.com/dansontsui/taiwan-stock-system-sub002/internal/forecast"
)

// Trainer builds training samples by walking history the same way the
// backtest does: formula forecast at a cutoff, label from the realized
// actual one period later. Only data at or before each cutoff reaches the
// feature extractor.
type Trainer struct {
	repo  contracts.Repository
	orch  *forecast.Orchestrator
	model *Model
	cfg   contracts.BacktestConfig
	mcfg  contracts.ModelConfig
	log   zerolog.Logger
}

// NewTrainer wires a trainer around an existing model.
func NewTrainer(repo contracts.Repository, orch *forecast.Orchestrator, model *Model, cfg contracts.BacktestConfig, mcfg contracts.ModelConfig, log zerolog.Logger) *Trainer {
	return &Trainer{
		repo:  repo,
		orch:  orch,
		model: model,
		cfg:   cfg,
		mcfg:  mcfg,
		log:   log.With().Str("component", "adjust.trainer").Logger(),
	}
}

// BuildSamples walks the last periods targets for every stock and metric
// pair. Steps without enough data or without a realized actual drop out
// silently; other per-step failures are logged and skipped.
func (t *Trainer) BuildSamples(ctx context.Context, stockIDs []string, metric contracts.Metric, periods int) ([]TrainingSample, error) {
	if periods < 1 {
		return nil, fmt.Errorf("periods must be at least 1, got %d", periods)
	}
	var samples []TrainingSample
	for _, stockID := range stockIDs {
		if err := ctx.Err(); err != nil {
			return samples, err
		}
		stockSamples, err := t.stockSamples(ctx, stockID, metric, periods)
		if err != nil {
			t.log.Warn().Err(err).Str("stock_id", stockID).Msg("skipping stock in training walk")
			continue
		}
		samples = append(samples, stockSamples...)
	}
	return samples, nil
}

func (t *Trainer) stockSamples(ctx context.Context, stockID string, metric contracts.Metric, periods int) ([]TrainingSample, error) {
	latest, ok, err := t.repo.LatestPeriod(ctx, stockID, metric)
	if err != nil {
		return nil, fmt.Errorf("resolving latest period: %w", err)
	}
	if !ok {
		return nil, nil
	}

	var samples []TrainingSample
	for target := latest.Add(-(periods - 1)); !target.After(latest); target = target.Next() {
		cutoff := target.Prev()

		formula, history, err := t.orch.Formula(ctx, stockID, metric, cutoff)
		if errors.Is(err, contracts.ErrInsufficientData) {
			continue
		}
		if err != nil {
			t.log.Debug().Err(err).Str("target", target.String()).Msg("formula failed in training walk")
			continue
		}

		actual, err := t.repo.Actual(ctx, stockID, metric, target)
		if err != nil || !actual.Available {
			continue
		}

		label, ok := Label(formula.Growth, actual.GrowthRate, t.mcfg)
		if !ok {
			continue
		}
		features, err := ExtractFeatures(stockID, history)
		if err != nil {
			continue
		}
		samples = append(samples, TrainingSample{Features: features, Label: label})
	}
	return samples, nil
}

// Retrain builds samples across the stocks and refits the model, persisting
// the new artifact.
func (t *Trainer) Retrain(ctx context.Context, stockIDs []string, metric contracts.Metric, periods int) (TrainReport, error) {
	samples, err := t.BuildSamples(ctx, stockIDs, metric, periods)
	if err != nil {
		return TrainReport{}, err
	}
	report, err := t.model.Train(ctx, samples)
	if err != nil {
		return TrainReport{}, fmt.Errorf("retraining adjustment model: %w", err)
	}
	t.log.Info().
		Int("stocks", len(stockIDs)).
		Int("samples", report.Samples).
		Msg("adjustment model retrained")
	return report, nil
}
