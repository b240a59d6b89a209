package forecast

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dansontsui/taiwan-stock-system-sub002/internal/contracts"
)

func steadyEPSInput(t *testing.T) EPSInput {
	t.Helper()
	return EPSInput{
		EPS:             quarterly(t, 2022, 1, compounding(2.0, 0.03, 8)...),
		Revenue:         quarterly(t, 2022, 1, compounding(3000, 0.03, 8)...),
		NetMargin:       quarterly(t, 2022, 1, 10, 10.2, 10.4, 10.6, 10.8, 11.0, 11.2, 11.4),
		GrossMargin:     quarterly(t, 2022, 1, 30, 30, 30, 30, 30, 30, 30, 30),
		OperatingMargin: quarterly(t, 2022, 1, 12, 12.2, 12.4, 12.6, 12.8, 13.0, 13.2, 13.4),
	}
}

func TestEPSForecastSteadyGrowth(t *testing.T) {
	f := NewEPSForecaster(contracts.DefaultForecastConfig(), testLogger())

	got, err := f.Forecast(steadyEPSInput(t), contracts.NewQuarter(2024, 1), 4)
	require.NoError(t, err)

	assert.Greater(t, got.Growth, 0.0, "growing revenue and margins imply growing eps")
	assert.Len(t, got.Breakdown, 3)
	assert.Equal(t, 8, got.TrainingRange.DataPoints)

	methods := map[string]bool{}
	for _, m := range got.Breakdown {
		methods[m.Method] = true
	}
	assert.True(t, methods["revenue_driven"])
	assert.True(t, methods["margin_trend"])
	assert.True(t, methods["opex_efficiency"])
}

func TestEPSForecastInsufficientData(t *testing.T) {
	f := NewEPSForecaster(contracts.DefaultForecastConfig(), testLogger())
	in := EPSInput{EPS: quarterly(t, 2023, 1, 1.0, 1.1, 1.2)}

	_, err := f.Forecast(in, contracts.NewQuarter(2024, 1), 4)
	assert.True(t, errors.Is(err, contracts.ErrInsufficientData))
}

func TestEPSForecastFallsBackToEPSTrend(t *testing.T) {
	f := NewEPSForecaster(contracts.DefaultForecastConfig(), testLogger())
	// No margin series at all: the efficiency component falls back to the
	// EPS series' own trend, revenue still contributes.
	in := EPSInput{
		EPS:     quarterly(t, 2022, 1, compounding(1.0, 0.05, 8)...),
		Revenue: quarterly(t, 2022, 1, compounding(2000, 0.05, 8)...),
	}

	got, err := f.Forecast(in, contracts.NewQuarter(2024, 1), 4)
	require.NoError(t, err)

	methods := map[string]bool{}
	for _, m := range got.Breakdown {
		methods[m.Method] = true
	}
	assert.True(t, methods["eps_trend"])
	assert.False(t, methods["margin_trend"])
	assert.Greater(t, got.Growth, 0.0)
}

func TestEPSForecastNegativeBase(t *testing.T) {
	f := NewEPSForecaster(contracts.DefaultForecastConfig(), testLogger())
	// A loss-making company recovering: positive growth must move the
	// predicted EPS toward zero, not deeper into losses.
	in := EPSInput{
		EPS:     quarterly(t, 2022, 1, -2.0, -1.7, -1.4, -1.1, -0.8, -0.5),
		Revenue: quarterly(t, 2022, 1, compounding(1000, 0.04, 6)...),
	}

	got, err := f.Forecast(in, contracts.NewQuarter(2023, 3), 4)
	require.NoError(t, err)
	assert.Greater(t, got.Growth, 0.0)
	assert.Greater(t, got.PredictedValue, -0.5)
}

func TestEPSForecastRejectsLeakedHistory(t *testing.T) {
	f := NewEPSForecaster(contracts.DefaultForecastConfig(), testLogger())
	in := EPSInput{EPS: quarterly(t, 2023, 1, 1, 1.1, 1.2, 1.3, 1.4)}

	_, err := f.Forecast(in, contracts.NewQuarter(2024, 1), 4)
	assert.Error(t, err)
}
