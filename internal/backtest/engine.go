package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dansontsui/taiwan-stock-system-sub002/internal/contracts"
)

// Forecaster produces a forecast for the period after asOf using only data
// at or before asOf.
type Forecaster interface {
	Forecast(ctx context.Context, stockID string, metric contracts.Metric, asOf contracts.Period) (contracts.ForecastResult, error)
}

// Engine walks forward through history, forecasting each target period from
// a cutoff one period earlier and scoring against the realized value. One
// step's failure never stops the run.
type Engine struct {
	repo       contracts.Repository
	forecaster Forecaster
	detector   *Detector
	aggregator *Aggregator
	cfg        contracts.BacktestConfig
	log        zerolog.Logger
}

// NewEngine wires a walk-forward engine. Invalid window or threshold
// configuration is rejected here, before any step can execute.
func NewEngine(repo contracts.Repository, forecaster Forecaster, cfg contracts.BacktestConfig, log zerolog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		repo:       repo,
		forecaster: forecaster,
		detector:   NewDetector(repo, cfg.Abnormal, log),
		aggregator: NewAggregator(cfg, log),
		cfg:        cfg,
		log:        log.With().Str("component", "backtest.engine").Logger(),
	}, nil
}

// Run backtests the last periods targets ending at the most recent reported
// observation. Domain-level problems (no data, every step skipped) produce a
// report with diagnostics rather than an error; only invalid arguments fail.
func (e *Engine) Run(ctx context.Context, stockID string, metric contracts.Metric, periods int) (*contracts.BacktestReport, error) {
	if periods < 1 {
		return nil, fmt.Errorf("periods must be at least 1, got %d", periods)
	}
	if metric != contracts.MetricRevenue && metric != contracts.MetricEPS {
		return nil, fmt.Errorf("metric %q is not backtestable", metric)
	}

	report := &contracts.BacktestReport{
		StockID:          stockID,
		Metric:           metric,
		RequestedPeriods: periods,
		StartedAt:        time.Now().UTC(),
	}
	defer func() { report.FinishedAt = time.Now().UTC() }()

	latest, ok, err := e.repo.LatestPeriod(ctx, stockID, metric)
	if err != nil {
		report.Diagnostics = append(report.Diagnostics, fmt.Sprintf("resolving latest period: %v", err))
		return report, nil
	}
	if !ok {
		report.Diagnostics = append(report.Diagnostics, fmt.Sprintf("no %s history for %s", metric, stockID))
		return report, nil
	}

	window := e.cfg.Window(metric)
	for target := latest.Add(-(periods - 1)); !target.After(latest); target = target.Next() {
		if err := ctx.Err(); err != nil {
			report.Diagnostics = append(report.Diagnostics, fmt.Sprintf("run aborted at %s: %v", target, err))
			break
		}
		step := e.runStep(ctx, stockID, metric, target, window)
		switch step.State {
		case contracts.StepSkipped:
			report.SkippedPeriods++
		case contracts.StepFailed:
			report.FailedPeriods++
		}
		report.Periods = append(report.Periods, step)
	}

	scored := report.ScoredPeriods()
	if scored == 0 {
		report.Diagnostics = append(report.Diagnostics,
			fmt.Sprintf("no scorable periods: %d skipped, %d failed of %d requested",
				report.SkippedPeriods, report.FailedPeriods, periods))
	} else {
		report.Statistics = e.aggregator.Aggregate(report.Periods)
		report.Suggestions = e.aggregator.Suggestions(metric, report.Statistics)
	}

	e.log.Info().
		Str("stock_id", stockID).
		Str("metric", string(metric)).
		Int("requested", periods).
		Int("scored", scored).
		Int("skipped", report.SkippedPeriods).
		Int("failed", report.FailedPeriods).
		Msg("backtest finished")

	return report, nil
}

func (e *Engine) runStep(ctx context.Context, stockID string, metric contracts.Metric, target contracts.Period, window contracts.WindowConfig) contracts.BacktestPeriod {
	cutoff := target.Prev()
	step := contracts.BacktestPeriod{Cutoff: cutoff, Target: target}

	sufficient, err := e.repo.DataSufficient(ctx, stockID, metric, cutoff, window.MinPoints)
	if err != nil {
		return e.fail(step, fmt.Errorf("checking data sufficiency: %w", err))
	}
	if !sufficient {
		step.State = contracts.StepSkipped
		e.log.Debug().
			Str("stock_id", stockID).
			Str("target", target.String()).
			Int("min_points", window.MinPoints).
			Msg("step skipped, window below minimum")
		return step
	}

	forecast, err := e.forecaster.Forecast(ctx, stockID, metric, cutoff)
	if errors.Is(err, contracts.ErrInsufficientData) {
		step.State = contracts.StepSkipped
		return step
	}
	if err != nil {
		return e.fail(step, fmt.Errorf("forecasting %s: %w", target, err))
	}
	step.Forecast = forecast

	actual, err := e.repo.Actual(ctx, stockID, metric, target)
	if err != nil {
		return e.fail(step, fmt.Errorf("fetching actual for %s: %w", target, err))
	}
	step.Actual = actual
	if !actual.Available {
		step.State = contracts.StepActualUnavailable
		return step
	}

	accuracy := score(forecast, actual)
	step.Accuracy = &accuracy
	step.Abnormal = e.detector.Detect(ctx, stockID, metric, target, actual)
	step.State = contracts.StepScored
	return step
}

func (e *Engine) fail(step contracts.BacktestPeriod, err error) contracts.BacktestPeriod {
	step.State = contracts.StepFailed
	step.Error = err.Error()
	e.log.Warn().
		Str("target", step.Target.String()).
		Err(err).
		Msg("backtest step failed")
	return step
}

// score compares a forecast to its realized actual.
func score(forecast contracts.ForecastResult, actual contracts.ActualResult) contracts.AccuracyMetrics {
	const eps = 1e-8
	growthErr := forecast.GrowthRate - actual.GrowthRate
	valueDenom := actual.Value
	if valueDenom < 0 {
		valueDenom = -valueDenom
	}
	valueMAPE := 0.0
	if valueDenom > eps {
		diff := forecast.PredictedValue - actual.Value
		if diff < 0 {
			diff = -diff
		}
		valueMAPE = diff / valueDenom * 100
	}
	absGrowthErr := growthErr
	if absGrowthErr < 0 {
		absGrowthErr = -absGrowthErr
	}
	absActual := actual.GrowthRate
	if absActual < 0 {
		absActual = -absActual
	}
	return contracts.AccuracyMetrics{
		GrowthRateError:  growthErr,
		GrowthRateMAPE:   absGrowthErr / (absActual + eps) * 100,
		ValueMAPE:        valueMAPE,
		DirectionCorrect: directionCorrect(forecast.GrowthRate, actual.GrowthRate),
		Confidence:       forecast.Confidence,
	}
}

// directionCorrect holds when both growth rates share a strict sign, or both
// are exactly zero.
func directionCorrect(predicted, actual float64) bool {
	if predicted == 0 && actual == 0 {
		return true
	}
	return predicted*actual > 0
}
