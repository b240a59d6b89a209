package forecast

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/dansontsui/taiwan-stock-system-sub002/internal/contracts"
)

// EPSInput carries the quarterly series an EPS forecast draws on. EPS is
// required; the others refine the estimate when present.
type EPSInput struct {
	EPS             contracts.Series
	Revenue         contracts.Series // quarterly revenue, summed from monthly filings
	NetMargin       contracts.Series
	GrossMargin     contracts.Series
	OperatingMargin contracts.Series
}

// EPSForecaster estimates quarterly EPS growth from a revenue-driven
// component, the net margin trend and an operating efficiency trend.
type EPSForecaster struct {
	cfg contracts.ForecastConfig
	log zerolog.Logger
}

// NewEPSForecaster creates an EPS forecaster.
func NewEPSForecaster(cfg contracts.ForecastConfig, log zerolog.Logger) *EPSForecaster {
	return &EPSForecaster{
		cfg: cfg,
		log: log.With().Str("component", "forecast.eps").Logger(),
	}
}

// Forecast estimates EPS for the target quarter. minPoints bounds the EPS
// history; components whose own series are too short drop out and the
// remaining weights renormalize.
func (f *EPSForecaster) Forecast(in EPSInput, target contracts.Period, minPoints int) (FormulaForecast, error) {
	if in.EPS.Len() < minPoints {
		return FormulaForecast{}, fmt.Errorf("%w: %d quarterly observations, need %d",
			contracts.ErrInsufficientData, in.EPS.Len(), minPoints)
	}
	if latest, ok := in.EPS.Latest(); ok && !latest.Period.Before(target) {
		return FormulaForecast{}, fmt.Errorf("history extends to %s, at or past target %s",
			latest.Period, target)
	}

	var breakdown []contracts.MethodEstimate
	var dispersionInput []float64

	if g, ok := f.revenueComponent(in.Revenue); ok {
		breakdown = append(breakdown, contracts.MethodEstimate{
			Method: "revenue_driven", Growth: g, Weight: f.cfg.EPS.Revenue,
		})
		dispersionInput = append(dispersionInput, g)
	}
	if g, ok := f.marginComponent(in.NetMargin); ok {
		breakdown = append(breakdown, contracts.MethodEstimate{
			Method: "margin_trend", Growth: g, Weight: f.cfg.EPS.Margin,
		})
		dispersionInput = append(dispersionInput, g)
	}
	if g, ok, method := f.efficiencyComponent(in); ok {
		breakdown = append(breakdown, contracts.MethodEstimate{
			Method: method, Growth: g, Weight: f.cfg.EPS.Efficiency,
		})
		dispersionInput = append(dispersionInput, g)
	}

	ensemble, ok := blendEstimates(breakdown)
	if !ok {
		return FormulaForecast{}, fmt.Errorf("%w: no EPS component produced a value",
			contracts.ErrInsufficientData)
	}
	growth := clampGrowth(ensemble, f.cfg)

	confidence := confidenceFromDispersion(relativeStd(dispersionInput), f.cfg)
	for i := range breakdown {
		breakdown[i].Confidence = confidence
	}

	latest, _ := in.EPS.Latest()
	predicted := latest.Value * (1 + growth)
	if latest.Value < 0 {
		// Growth off a negative base moves toward zero for positive growth.
		predicted = latest.Value + math.Abs(latest.Value)*growth
	}

	f.log.Debug().
		Str("target", target.String()).
		Float64("growth", growth).
		Int("components", len(breakdown)).
		Str("confidence", string(confidence)).
		Msg("eps formula forecast")

	return FormulaForecast{
		Growth:         growth,
		PredictedValue: predicted,
		SeasonalFactor: 1,
		Confidence:     confidence,
		Breakdown:      breakdown,
		TrainingRange:  in.EPS.Span(),
	}, nil
}

// revenueComponent carries quarterly revenue growth into EPS growth under a
// stable-margin assumption.
func (f *EPSForecaster) revenueComponent(revenue contracts.Series) (float64, bool) {
	if revenue.Len() < 3 {
		return 0, false
	}
	g, ok := trendGrowth(revenue.Values())
	if !ok {
		return 0, false
	}
	return clampGrowth(g, f.cfg), true
}

// marginComponent turns the net margin slope into a relative EPS effect.
func (f *EPSForecaster) marginComponent(margin contracts.Series) (float64, bool) {
	if margin.Len() < 3 {
		return 0, false
	}
	beta, ok := slope(margin.Values())
	if !ok {
		return 0, false
	}
	latest, _ := margin.Latest()
	if latest.Value == 0 {
		return 0, false
	}
	return clampGrowth(beta/math.Abs(latest.Value), f.cfg), true
}

// efficiencyComponent uses the narrowing of the gross-to-operating margin
// gap as an operating leverage signal, falling back to the EPS series' own
// trend when the margin series are too short.
func (f *EPSForecaster) efficiencyComponent(in EPSInput) (float64, bool, string) {
	if in.GrossMargin.Len() >= 3 && in.OperatingMargin.Len() >= 3 {
		n := in.GrossMargin.Len()
		if in.OperatingMargin.Len() < n {
			n = in.OperatingMargin.Len()
		}
		gross := in.GrossMargin.Tail(n)
		operating := in.OperatingMargin.Tail(n)
		gap := make([]float64, 0, n)
		for i := 0; i < n; i++ {
			if !gross[i].Period.Equal(operating[i].Period) {
				gap = nil
				break
			}
			gap = append(gap, gross[i].Value-operating[i].Value)
		}
		if gap != nil {
			if beta, ok := slope(gap); ok {
				// A shrinking gap means operating costs grow slower than
				// gross profit.
				return clampGrowth(-beta/100, f.cfg), true, "opex_efficiency"
			}
		}
	}
	g, ok := trendGrowth(in.EPS.Values())
	if !ok {
		return 0, false, ""
	}
	return clampGrowth(g, f.cfg), true, "eps_trend"
}
