package contracts

import (
	"fmt"
	"math"
)

// MethodWeights blends the three formula estimates for revenue growth.
type MethodWeights struct {
	Trend    float64 `json:"trend"`
	Momentum float64 `json:"momentum"`
	YoYTrend float64 `json:"yoy_trend"`
}

// EPSWeights blends the three EPS growth components.
type EPSWeights struct {
	Revenue    float64 `json:"revenue"`
	Margin     float64 `json:"margin"`
	Efficiency float64 `json:"efficiency"`
}

// ForecastConfig holds every tunable the forecasting layer reads.
type ForecastConfig struct {
	Methods MethodWeights `json:"method_weights"`
	EPS     EPSWeights    `json:"eps_weights"`

	// FormulaWeight and AdjustmentWeight blend the formula growth with the
	// learned-adjustment growth. They must sum to 1.
	FormulaWeight    float64 `json:"formula_weight"`
	AdjustmentWeight float64 `json:"adjustment_weight"`

	// Look-back horizons, in periods of the metric's own granularity.
	TrendWindow    int `json:"trend_window"`
	ShortMAWindow  int `json:"short_ma_window"`
	MidMAWindow    int `json:"mid_ma_window"`
	LongMAWindow   int `json:"long_ma_window"`
	SeasonalMinObs int `json:"seasonal_min_obs"`

	// SeasonalLookback is the monthly history fetched at each cutoff. It
	// exceeds TrendWindow so the seasonal and year-over-year methods see a
	// full annual cycle; the trend and momentum methods tail TrendWindow
	// observations of it.
	SeasonalLookback int `json:"seasonal_lookback"`

	// Dispersion thresholds on relative std of the method estimates.
	HighConfidenceCV   float64 `json:"high_confidence_cv"`
	MediumConfidenceCV float64 `json:"medium_confidence_cv"`

	// Final growth is clamped to [GrowthFloor, GrowthCeiling].
	GrowthCeiling float64 `json:"growth_ceiling"`
	GrowthFloor   float64 `json:"growth_floor"`
}

// DefaultForecastConfig returns the production defaults.
func DefaultForecastConfig() ForecastConfig {
	return ForecastConfig{
		Methods:            MethodWeights{Trend: 0.4, Momentum: 0.3, YoYTrend: 0.3},
		EPS:                EPSWeights{Revenue: 0.5, Margin: 0.3, Efficiency: 0.2},
		FormulaWeight:      0.8,
		AdjustmentWeight:   0.2,
		TrendWindow:        12,
		ShortMAWindow:      3,
		MidMAWindow:        6,
		LongMAWindow:       12,
		SeasonalMinObs:     12,
		SeasonalLookback:   24,
		HighConfidenceCV:   0.3,
		MediumConfidenceCV: 0.6,
		GrowthCeiling:      2.0,
		GrowthFloor:        -0.8,
	}
}

// Validate checks the weight invariants. Weight groups must each sum to 1
// within a small tolerance.
func (c ForecastConfig) Validate() error {
	const tol = 1e-9
	if s := c.Methods.Trend + c.Methods.Momentum + c.Methods.YoYTrend; math.Abs(s-1) > tol {
		return fmt.Errorf("%w: method weights sum to %.6f, want 1", ErrInvalidConfig, s)
	}
	if s := c.EPS.Revenue + c.EPS.Margin + c.EPS.Efficiency; math.Abs(s-1) > tol {
		return fmt.Errorf("%w: eps weights sum to %.6f, want 1", ErrInvalidConfig, s)
	}
	if s := c.FormulaWeight + c.AdjustmentWeight; math.Abs(s-1) > tol {
		return fmt.Errorf("%w: blend weights sum to %.6f, want 1", ErrInvalidConfig, s)
	}
	if c.Methods.Trend < 0 || c.Methods.Momentum < 0 || c.Methods.YoYTrend < 0 ||
		c.EPS.Revenue < 0 || c.EPS.Margin < 0 || c.EPS.Efficiency < 0 ||
		c.FormulaWeight < 0 || c.AdjustmentWeight < 0 {
		return fmt.Errorf("%w: weights must be non-negative", ErrInvalidConfig)
	}
	if c.HighConfidenceCV <= 0 || c.MediumConfidenceCV <= c.HighConfidenceCV {
		return fmt.Errorf("%w: confidence thresholds must satisfy 0 < high < medium", ErrInvalidConfig)
	}
	if c.GrowthCeiling <= c.GrowthFloor {
		return fmt.Errorf("%w: growth ceiling must exceed floor", ErrInvalidConfig)
	}
	if c.TrendWindow < 3 {
		return fmt.Errorf("%w: trend window must be at least 3", ErrInvalidConfig)
	}
	if c.SeasonalLookback < c.TrendWindow {
		return fmt.Errorf("%w: seasonal lookback %d smaller than trend window %d",
			ErrInvalidConfig, c.SeasonalLookback, c.TrendWindow)
	}
	return nil
}

// WindowConfig sets the per-metric history requirement in a backtest step.
type WindowConfig struct {
	Lookback  int `json:"lookback"`
	MinPoints int `json:"min_points"`
}

// AbnormalConfig holds the structural-break detection thresholds.
type AbnormalConfig struct {
	// MarginShiftPP flags a quarter-over-quarter net margin move, in
	// percentage points.
	MarginShiftPP float64 `json:"margin_shift_pp"`
	// EPSJumpPct flags an EPS quarter-over-quarter change above this
	// percentage when revenue moved less than RevenueQuietPct.
	EPSJumpPct      float64 `json:"eps_jump_pct"`
	RevenueQuietPct float64 `json:"revenue_quiet_pct"`
	// ValueJumpRatio flags a raw value more than this multiple away from
	// the trailing mean.
	ValueJumpRatio float64 `json:"value_jump_ratio"`
}

// BacktestConfig holds every tunable the walk-forward engine reads.
type BacktestConfig struct {
	Revenue  WindowConfig   `json:"revenue"`
	EPS      WindowConfig   `json:"eps"`
	Abnormal AbnormalConfig `json:"abnormal"`

	// Suggestion thresholds on aggregated statistics.
	RevenueMAPEWarn      float64 `json:"revenue_mape_warn"`
	EPSMAPEWarn          float64 `json:"eps_mape_warn"`
	DirectionWarn        float64 `json:"direction_warn"`
	CombinedAccuracyWarn float64 `json:"combined_accuracy_warn"`
}

// DefaultBacktestConfig returns the production defaults.
func DefaultBacktestConfig() BacktestConfig {
	return BacktestConfig{
		Revenue: WindowConfig{Lookback: 12, MinPoints: 6},
		EPS:     WindowConfig{Lookback: 8, MinPoints: 4},
		Abnormal: AbnormalConfig{
			MarginShiftPP:   5.0,
			EPSJumpPct:      100.0,
			RevenueQuietPct: 20.0,
			ValueJumpRatio:  2.0,
		},
		RevenueMAPEWarn:      15.0,
		EPSMAPEWarn:          20.0,
		DirectionWarn:        0.6,
		CombinedAccuracyWarn: 0.65,
	}
}

// Window returns the window settings for the metric.
func (c BacktestConfig) Window(metric Metric) WindowConfig {
	if metric == MetricRevenue {
		return c.Revenue
	}
	return c.EPS
}

// Validate checks window and threshold sanity.
func (c BacktestConfig) Validate() error {
	for _, w := range []WindowConfig{c.Revenue, c.EPS} {
		if w.MinPoints < 2 {
			return fmt.Errorf("%w: window min points must be at least 2", ErrInvalidConfig)
		}
		if w.Lookback < w.MinPoints {
			return fmt.Errorf("%w: lookback %d smaller than min points %d", ErrInvalidConfig, w.Lookback, w.MinPoints)
		}
	}
	if c.Abnormal.MarginShiftPP <= 0 || c.Abnormal.EPSJumpPct <= 0 || c.Abnormal.ValueJumpRatio <= 1 {
		return fmt.Errorf("%w: abnormal thresholds must be positive", ErrInvalidConfig)
	}
	return nil
}

// ModelConfig holds the learned adjustment model tunables.
type ModelConfig struct {
	// AdjustmentBound clamps the predicted adjustment factor to
	// [-AdjustmentBound, +AdjustmentBound].
	AdjustmentBound float64 `json:"adjustment_bound"`
	// LabelBound clamps training labels; samples whose raw label magnitude
	// reaches LabelDiscard are dropped entirely.
	LabelBound   float64 `json:"label_bound"`
	LabelDiscard float64 `json:"label_discard"`
	// MinSamples is the smallest training set a fit will accept.
	MinSamples int `json:"min_samples"`
	// ArtifactName keys the persisted model blob in the model store.
	ArtifactName string `json:"artifact_name"`
}

// DefaultModelConfig returns the production defaults.
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		AdjustmentBound: 0.2,
		LabelBound:      0.2,
		LabelDiscard:    0.5,
		MinSamples:      10,
		ArtifactName:    "adjustment-model",
	}
}

// Validate checks bound ordering.
func (c ModelConfig) Validate() error {
	if c.AdjustmentBound <= 0 || c.LabelBound <= 0 {
		return fmt.Errorf("%w: model bounds must be positive", ErrInvalidConfig)
	}
	if c.LabelDiscard <= c.LabelBound {
		return fmt.Errorf("%w: label discard must exceed label bound", ErrInvalidConfig)
	}
	if c.MinSamples < 2 {
		return fmt.Errorf("%w: min samples must be at least 2", ErrInvalidConfig)
	}
	if c.ArtifactName == "" {
		return fmt.Errorf("%w: artifact name required", ErrInvalidConfig)
	}
	return nil
}
