package forecast

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dansontsui/taiwan-stock-system-sub002/internal/contracts"
)

// Adjuster applies the learned correction on top of a formula growth rate.
// Implementations never fail: when the model cannot help they return a
// neutral result with a fallback reason.
type Adjuster interface {
	Adjust(ctx context.Context, stockID string, metric contracts.Metric, formulaGrowth float64, history contracts.FeatureHistory) contracts.AdjustmentResult
}

// Orchestrator runs the full forecast pipeline for one stock and metric:
// point-in-time data fetch, formula ensemble, learned adjustment, blend.
type Orchestrator struct {
	repo     contracts.Repository
	revenue  *RevenueForecaster
	eps      *EPSForecaster
	adjuster Adjuster
	fcfg     contracts.ForecastConfig
	windows  contracts.BacktestConfig
	log      zerolog.Logger
}

// NewOrchestrator wires the pipeline. adjuster may be nil, in which case
// every forecast uses a neutral adjustment. Invalid weight or window
// configuration is rejected here, before any forecast runs.
func NewOrchestrator(repo contracts.Repository, adjuster Adjuster, fcfg contracts.ForecastConfig, windows contracts.BacktestConfig, log zerolog.Logger) (*Orchestrator, error) {
	if err := fcfg.Validate(); err != nil {
		return nil, err
	}
	if err := windows.Validate(); err != nil {
		return nil, err
	}
	return &Orchestrator{
		repo:     repo,
		revenue:  NewRevenueForecaster(fcfg, log),
		eps:      NewEPSForecaster(fcfg, log),
		adjuster: adjuster,
		fcfg:     fcfg,
		windows:  windows,
		log:      log.With().Str("component", "forecast.orchestrator").Logger(),
	}, nil
}

// Forecast produces the blended estimate for the period immediately after
// asOf. Only data at or before asOf is read. ErrInsufficientData is returned
// when the history is too short to estimate at all.
func (o *Orchestrator) Forecast(ctx context.Context, stockID string, metric contracts.Metric, asOf contracts.Period) (contracts.ForecastResult, error) {
	target := asOf.Next()

	formula, history, err := o.Formula(ctx, stockID, metric, asOf)
	if err != nil {
		return contracts.ForecastResult{}, err
	}

	adjustment := o.adjust(ctx, stockID, metric, formula.Growth, history)

	blended := o.fcfg.FormulaWeight*formula.Growth + o.fcfg.AdjustmentWeight*adjustment.AdjustedGrowth
	blended = clampGrowth(blended, o.fcfg)

	series, err := o.repo.Series(ctx, stockID, metric, asOf, 1)
	if err != nil {
		return contracts.ForecastResult{}, fmt.Errorf("fetching latest %s: %w", metric, err)
	}
	latest, ok := series.Latest()
	if !ok {
		return contracts.ForecastResult{}, fmt.Errorf("%w: no %s observation at or before %s",
			contracts.ErrInsufficientData, metric, asOf)
	}

	result := contracts.ForecastResult{
		StockID:        stockID,
		Target:         target,
		GrowthRate:     blended,
		PredictedValue: latest.Value * (1 + blended),
		Confidence:     contracts.CombineConfidence(formula.Confidence, adjustment.Confidence),
		Breakdown:      formula.Breakdown,
		SeasonalFactor: formula.SeasonalFactor,
		FormulaGrowth:  formula.Growth,
		Adjustment:     adjustment,
		TrainingRange:  formula.TrainingRange,
	}

	o.log.Info().
		Str("stock_id", stockID).
		Str("metric", string(metric)).
		Str("target", target.String()).
		Float64("formula_growth", formula.Growth).
		Float64("adjustment_factor", adjustment.Factor).
		Float64("growth", blended).
		Str("confidence", string(result.Confidence)).
		Msg("forecast produced")

	return result, nil
}

// Formula runs only the formula stage and returns the history it used. The
// training pipeline labels these against realized actuals.
func (o *Orchestrator) Formula(ctx context.Context, stockID string, metric contracts.Metric, asOf contracts.Period) (FormulaForecast, contracts.FeatureHistory, error) {
	switch metric {
	case contracts.MetricRevenue:
		return o.revenueFormula(ctx, stockID, asOf)
	case contracts.MetricEPS:
		return o.epsFormula(ctx, stockID, asOf)
	default:
		return FormulaForecast{}, contracts.FeatureHistory{}, fmt.Errorf("metric %q is not forecastable", metric)
	}
}

func (o *Orchestrator) revenueFormula(ctx context.Context, stockID string, asOf contracts.Period) (FormulaForecast, contracts.FeatureHistory, error) {
	window := o.windows.Window(contracts.MetricRevenue)
	// The fetch exceeds the trend window so the seasonal factor and
	// year-over-year methods see a full annual cycle; the trend and momentum
	// methods tail their own window.
	monthly, err := o.repo.Series(ctx, stockID, contracts.MetricRevenue, asOf, o.fcfg.SeasonalLookback)
	if err != nil {
		return FormulaForecast{}, contracts.FeatureHistory{}, fmt.Errorf("fetching revenue: %w", err)
	}
	formula, err := o.revenue.Forecast(monthly, asOf.Next(), window.MinPoints)
	if err != nil {
		return FormulaForecast{}, contracts.FeatureHistory{}, err
	}
	history, err := o.featureHistory(ctx, stockID, asOf, monthly)
	if err != nil {
		return FormulaForecast{}, contracts.FeatureHistory{}, err
	}
	return formula, history, nil
}

func (o *Orchestrator) epsFormula(ctx context.Context, stockID string, asOf contracts.Period) (FormulaForecast, contracts.FeatureHistory, error) {
	window := o.windows.Window(contracts.MetricEPS)
	eps, err := o.repo.Series(ctx, stockID, contracts.MetricEPS, asOf, window.Lookback)
	if err != nil {
		return FormulaForecast{}, contracts.FeatureHistory{}, fmt.Errorf("fetching eps: %w", err)
	}

	monthlyCutoff := contracts.NewMonth(asOf.Year, asOf.MonthOfYear())
	monthly, err := o.repo.Series(ctx, stockID, contracts.MetricRevenue, monthlyCutoff, o.fcfg.SeasonalLookback)
	if err != nil {
		return FormulaForecast{}, contracts.FeatureHistory{}, fmt.Errorf("fetching revenue: %w", err)
	}

	history, err := o.featureHistory(ctx, stockID, asOf, monthly)
	if err != nil {
		return FormulaForecast{}, contracts.FeatureHistory{}, err
	}

	in := EPSInput{
		EPS:             eps,
		Revenue:         contracts.QuarterlyFromMonthly(monthly),
		NetMargin:       history.NetMargin,
		GrossMargin:     history.GrossMargin,
		OperatingMargin: history.OperatingMargin,
	}
	formula, err := o.eps.Forecast(in, asOf.Next(), window.MinPoints)
	if err != nil {
		return FormulaForecast{}, contracts.FeatureHistory{}, err
	}
	return formula, history, nil
}

// featureHistory gathers the margin series the adjustment model needs. A
// missing margin series is tolerated; the extractor degrades per feature.
func (o *Orchestrator) featureHistory(ctx context.Context, stockID string, asOf contracts.Period, monthly contracts.Series) (contracts.FeatureHistory, error) {
	quarterCutoff := asOf
	if asOf.Granularity == contracts.Monthly {
		// Only fully completed quarters are visible at a monthly cutoff.
		quarterCutoff = contracts.NewQuarter(asOf.Year, (asOf.Num-1)/3+1)
		if asOf.Num%3 != 0 {
			quarterCutoff = quarterCutoff.Prev()
		}
	}
	lookback := o.windows.Window(contracts.MetricEPS).Lookback

	history := contracts.FeatureHistory{Revenue: monthly}
	for _, m := range []struct {
		metric contracts.Metric
		dst    *contracts.Series
	}{
		{contracts.MetricNetMargin, &history.NetMargin},
		{contracts.MetricGrossMargin, &history.GrossMargin},
		{contracts.MetricOperatingMargin, &history.OperatingMargin},
	} {
		s, err := o.repo.Series(ctx, stockID, m.metric, quarterCutoff, lookback)
		if err != nil {
			return contracts.FeatureHistory{}, fmt.Errorf("fetching %s: %w", m.metric, err)
		}
		*m.dst = s
	}
	return history, nil
}

func (o *Orchestrator) adjust(ctx context.Context, stockID string, metric contracts.Metric, formulaGrowth float64, history contracts.FeatureHistory) contracts.AdjustmentResult {
	if o.adjuster == nil {
		return contracts.AdjustmentResult{
			AdjustedGrowth: formulaGrowth,
			Confidence:     contracts.ConfidenceNA,
			Reason:         contracts.FallbackModelUnavailable,
		}
	}
	return o.adjuster.Adjust(ctx, stockID, metric, formulaGrowth, history)
}
