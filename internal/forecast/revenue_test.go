package forecast

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dansontsui/taiwan-stock-system-sub002/internal/contracts"
)

func TestRevenueForecastSteadyGrowth(t *testing.T) {
	f := NewRevenueForecaster(contracts.DefaultForecastConfig(), testLogger())
	history := monthly(t, 2022, 1, compounding(1000, 0.02, 24)...)
	target := contracts.NewMonth(2024, 1)

	got, err := f.Forecast(history, target, 6)
	require.NoError(t, err)

	assert.InDelta(t, 0.02, got.Growth, 0.015, "steady 2%% growth should be tracked closely")
	assert.NotEqual(t, contracts.ConfidenceLow, got.Confidence)
	assert.InDelta(t, 1.0, got.SeasonalFactor, 0.02)
	assert.Len(t, got.Breakdown, 3)

	latest, _ := history.Latest()
	wantValue := latest.Value * (1 + got.Growth)
	assert.InDelta(t, wantValue, got.PredictedValue, 1e-6)
	assert.Equal(t, 12, got.TrainingRange.DataPoints)
}

func TestRevenueForecastBreakdownWeights(t *testing.T) {
	f := NewRevenueForecaster(contracts.DefaultForecastConfig(), testLogger())
	history := monthly(t, 2022, 1, compounding(500, 0.01, 24)...)

	got, err := f.Forecast(history, contracts.NewMonth(2024, 1), 6)
	require.NoError(t, err)

	weights := map[string]float64{}
	for _, m := range got.Breakdown {
		weights[m.Method] = m.Weight
	}
	assert.Equal(t, map[string]float64{"trend": 0.4, "momentum": 0.3, "yoy": 0.3}, weights)
}

func TestRevenueForecastInsufficientData(t *testing.T) {
	f := NewRevenueForecaster(contracts.DefaultForecastConfig(), testLogger())
	history := monthly(t, 2023, 9, 100, 110, 120, 130)

	_, err := f.Forecast(history, contracts.NewMonth(2024, 1), 6)
	assert.True(t, errors.Is(err, contracts.ErrInsufficientData))
}

func TestRevenueForecastRejectsLeakedHistory(t *testing.T) {
	f := NewRevenueForecaster(contracts.DefaultForecastConfig(), testLogger())
	// History already contains the target month.
	history := monthly(t, 2023, 1, compounding(100, 0.02, 13)...)

	_, err := f.Forecast(history, contracts.NewMonth(2024, 1), 6)
	assert.Error(t, err, "history overlapping the target must be rejected")
}

func TestRevenueForecastShortHistorySkipsYoY(t *testing.T) {
	f := NewRevenueForecaster(contracts.DefaultForecastConfig(), testLogger())
	// 8 months: enough for trend and momentum, no year-ago anchor.
	history := monthly(t, 2023, 5, compounding(100, 0.02, 8)...)

	got, err := f.Forecast(history, contracts.NewMonth(2024, 1), 6)
	require.NoError(t, err)

	methods := map[string]bool{}
	for _, m := range got.Breakdown {
		methods[m.Method] = true
	}
	assert.False(t, methods["yoy"], "yoy must drop out without a year-ago anchor")
	assert.True(t, methods["trend"])
	assert.Equal(t, 1.0, got.SeasonalFactor, "seasonal factor stays neutral below the minimum history")
}

func TestRevenueForecastGrowthIsClamped(t *testing.T) {
	cfg := contracts.DefaultForecastConfig()
	f := NewRevenueForecaster(cfg, testLogger())
	// Explosive series: every method saturates at the ceiling.
	history := monthly(t, 2023, 1, 1, 10, 100, 1000, 10000, 100000, 1000000)

	got, err := f.Forecast(history, contracts.NewMonth(2023, 8), 6)
	require.NoError(t, err)
	assert.LessOrEqual(t, got.Growth, cfg.GrowthCeiling)
	assert.GreaterOrEqual(t, got.Growth, cfg.GrowthFloor)
}
