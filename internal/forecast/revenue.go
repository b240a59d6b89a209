package forecast

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dansontsui/taiwan-stock-system-sub002/internal/contracts"
)

// FormulaForecast is the formula-only estimate before the learned adjustment
// and blend are applied.
type FormulaForecast struct {
	Growth         float64
	PredictedValue float64
	SeasonalFactor float64
	Confidence     contracts.Confidence
	Breakdown      []contracts.MethodEstimate
	TrainingRange  contracts.TrainingRange
}

// RevenueForecaster produces monthly revenue growth estimates from an
// ensemble of trend, momentum and year-over-year methods.
type RevenueForecaster struct {
	cfg contracts.ForecastConfig
	log zerolog.Logger
}

// NewRevenueForecaster creates a revenue forecaster.
func NewRevenueForecaster(cfg contracts.ForecastConfig, log zerolog.Logger) *RevenueForecaster {
	return &RevenueForecaster{
		cfg: cfg,
		log: log.With().Str("component", "forecast.revenue").Logger(),
	}
}

// Forecast estimates revenue for the target month from history that must end
// at or before the month preceding target. minPoints is the smallest history
// the caller accepts; below it ErrInsufficientData is returned.
func (f *RevenueForecaster) Forecast(history contracts.Series, target contracts.Period, minPoints int) (FormulaForecast, error) {
	if history.Len() < minPoints {
		return FormulaForecast{}, fmt.Errorf("%w: %d monthly observations, need %d",
			contracts.ErrInsufficientData, history.Len(), minPoints)
	}
	if latest, ok := history.Latest(); ok && !latest.Period.Before(target) {
		return FormulaForecast{}, fmt.Errorf("history extends to %s, at or past target %s",
			latest.Period, target)
	}

	window := history.Tail(f.cfg.TrendWindow)
	values := window.Values()

	var breakdown []contracts.MethodEstimate
	var dispersionInput []float64

	if g, ok := trendGrowth(values); ok {
		g = clampGrowth(g, f.cfg)
		breakdown = append(breakdown, contracts.MethodEstimate{
			Method: "trend", Growth: g, Weight: f.cfg.Methods.Trend,
		})
		dispersionInput = append(dispersionInput, g)
	}
	if g, ok := momentumGrowth(values, f.cfg.ShortMAWindow, f.cfg.MidMAWindow, f.cfg.LongMAWindow); ok {
		g = clampGrowth(g, f.cfg)
		breakdown = append(breakdown, contracts.MethodEstimate{
			Method: "momentum", Growth: g, Weight: f.cfg.Methods.Momentum,
		})
		dispersionInput = append(dispersionInput, g)
	}
	if g, ok := yoyGrowth(history, target); ok {
		g = clampGrowth(g, f.cfg)
		breakdown = append(breakdown, contracts.MethodEstimate{
			Method: "yoy", Growth: g, Weight: f.cfg.Methods.YoYTrend,
		})
		dispersionInput = append(dispersionInput, g)
	}

	ensemble, ok := blendEstimates(breakdown)
	if !ok {
		return FormulaForecast{}, fmt.Errorf("%w: no estimation method produced a value",
			contracts.ErrInsufficientData)
	}

	confidence := confidenceFromDispersion(relativeStd(dispersionInput), f.cfg)
	for i := range breakdown {
		breakdown[i].Confidence = confidence
	}

	latest, _ := history.Latest()
	seasonal := seasonalFactor(history, target.MonthOfYear(), f.cfg.SeasonalMinObs)
	predicted := latest.Value * (1 + ensemble) * seasonal
	growth := clampGrowth(ensemble, f.cfg)
	if latest.Value != 0 {
		growth = clampGrowth(predicted/latest.Value-1, f.cfg)
		predicted = latest.Value * (1 + growth)
	}

	f.log.Debug().
		Str("target", target.String()).
		Float64("growth", growth).
		Float64("seasonal", seasonal).
		Int("methods", len(breakdown)).
		Str("confidence", string(confidence)).
		Msg("revenue formula forecast")

	return FormulaForecast{
		Growth:         growth,
		PredictedValue: predicted,
		SeasonalFactor: seasonal,
		Confidence:     confidence,
		Breakdown:      breakdown,
		TrainingRange:  window.Span(),
	}, nil
}
