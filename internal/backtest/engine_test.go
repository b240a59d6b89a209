package backtest

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dansontsui/taiwan-stock-system-sub002/internal/contracts"
	"github.com/dansontsui/taiwan-stock-system-sub002/internal/forecast"
	"github.com/dansontsui/taiwan-stock-system-sub002/internal/store"
)

func testLogger() zerolog.Logger { return zerolog.Nop() }

func monthlyPoints(startYear, startMonth int, values ...float64) contracts.Series {
	points := make([]contracts.Point, len(values))
	p := contracts.NewMonth(startYear, startMonth)
	for i, v := range values {
		points[i] = contracts.Point{Period: p, Value: v}
		p = p.Next()
	}
	return points
}

func quarterlyPoints(startYear, startQuarter int, values ...float64) contracts.Series {
	points := make([]contracts.Point, len(values))
	p := contracts.NewQuarter(startYear, startQuarter)
	for i, v := range values {
		points[i] = contracts.Point{Period: p, Value: v}
		p = p.Next()
	}
	return points
}

func compounding(base, rate float64, n int) []float64 {
	out := make([]float64, n)
	v := base
	for i := range out {
		out[i] = v
		v *= 1 + rate
	}
	return out
}

func newEngine(t *testing.T, repo contracts.Repository) *Engine {
	t.Helper()
	orch, err := forecast.NewOrchestrator(repo, nil, contracts.DefaultForecastConfig(), contracts.DefaultBacktestConfig(), testLogger())
	require.NoError(t, err)
	engine, err := NewEngine(repo, orch, contracts.DefaultBacktestConfig(), testLogger())
	require.NoError(t, err)
	return engine
}

func steadyRevenueRepo(t *testing.T, months int) *store.MemoryRepository {
	t.Helper()
	repo := store.NewMemoryRepository()
	require.NoError(t, repo.Put("2330", contracts.MetricRevenue,
		monthlyPoints(2021, 1, compounding(1000, 0.02, months)...)))
	return repo
}

// leakGuard wraps a repository and fails the test when, during a forecast,
// any series read reaches past the step's cutoff. EndDate comparison makes
// the check granularity-independent.
type leakGuard struct {
	contracts.Repository
	t *testing.T

	mu      sync.Mutex
	allowed *contracts.Period
}

func (g *leakGuard) setAllowed(p contracts.Period) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.allowed = &p
}

func (g *leakGuard) clearAllowed() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.allowed = nil
}

func (g *leakGuard) Series(ctx context.Context, stockID string, metric contracts.Metric, asOf contracts.Period, lookback int) (contracts.Series, error) {
	g.mu.Lock()
	allowed := g.allowed
	g.mu.Unlock()
	if allowed != nil && asOf.EndDate().After(allowed.EndDate()) {
		g.t.Errorf("series read for %s cut off at %s leaks past forecast cutoff %s", metric, asOf, *allowed)
	}
	return g.Repository.Series(ctx, stockID, metric, asOf, lookback)
}

type guardedForecaster struct {
	inner Forecaster
	guard *leakGuard
}

func (f *guardedForecaster) Forecast(ctx context.Context, stockID string, metric contracts.Metric, asOf contracts.Period) (contracts.ForecastResult, error) {
	f.guard.setAllowed(asOf)
	defer f.guard.clearAllowed()
	return f.inner.Forecast(ctx, stockID, metric, asOf)
}

func TestEngineNoLookAheadLeakage(t *testing.T) {
	repo := steadyRevenueRepo(t, 36)
	guard := &leakGuard{Repository: repo, t: t}
	orch, err := forecast.NewOrchestrator(guard, nil, contracts.DefaultForecastConfig(), contracts.DefaultBacktestConfig(), testLogger())
	require.NoError(t, err)
	engine, err := NewEngine(guard, &guardedForecaster{inner: orch, guard: guard}, contracts.DefaultBacktestConfig(), testLogger())
	require.NoError(t, err)

	report, err := engine.Run(context.Background(), "2330", contracts.MetricRevenue, 8)
	require.NoError(t, err)
	assert.Equal(t, 8, report.ScoredPeriods())
}

func TestEngineSteadyGrowthAccuracy(t *testing.T) {
	engine := newEngine(t, steadyRevenueRepo(t, 36))

	report, err := engine.Run(context.Background(), "2330", contracts.MetricRevenue, 6)
	require.NoError(t, err)
	require.Equal(t, 6, report.ScoredPeriods())

	assert.Less(t, report.Statistics.Overall.GrowthRateMAPE, 1.0,
		"steady growth must be tracked within 1%% growth-rate MAPE")
	assert.Less(t, report.Statistics.Overall.ValueMAPE, 1.0)
	assert.Equal(t, 1.0, report.Statistics.Overall.DirectionAccuracy)
	assert.Empty(t, report.Diagnostics)
}

func TestEngineRejectsInvalidWeightsBeforeRun(t *testing.T) {
	repo := steadyRevenueRepo(t, 36)

	// Method weights summing past 1 must fail pipeline construction, not
	// surface as a clean scored report.
	fcfg := contracts.DefaultForecastConfig()
	fcfg.Methods.Trend = 0.9
	_, err := forecast.NewOrchestrator(repo, nil, fcfg, contracts.DefaultBacktestConfig(), testLogger())
	require.ErrorIs(t, err, contracts.ErrInvalidConfig)

	bcfg := contracts.DefaultBacktestConfig()
	bcfg.Revenue.MinPoints = 0
	orch, err := forecast.NewOrchestrator(repo, nil, contracts.DefaultForecastConfig(), contracts.DefaultBacktestConfig(), testLogger())
	require.NoError(t, err)
	_, err = NewEngine(repo, orch, bcfg, testLogger())
	require.ErrorIs(t, err, contracts.ErrInvalidConfig)
}

func TestEngineSkipRule(t *testing.T) {
	// 10 months total: early cutoffs hold fewer than the 6-point minimum.
	repo := store.NewMemoryRepository()
	require.NoError(t, repo.Put("2330", contracts.MetricRevenue,
		monthlyPoints(2024, 1, compounding(1000, 0.02, 10)...)))
	engine := newEngine(t, repo)

	report, err := engine.Run(context.Background(), "2330", contracts.MetricRevenue, 8)
	require.NoError(t, err)

	assert.Equal(t, 4, report.SkippedPeriods, "cutoffs with 2..5 observations must be skipped")
	assert.Equal(t, 4, report.ScoredPeriods())
	assert.Equal(t, 0, report.FailedPeriods)
	for _, p := range report.Periods {
		if p.State == contracts.StepSkipped {
			assert.Nil(t, p.Accuracy, "skipped steps carry no metrics")
		}
	}
}

func TestEngineIdempotence(t *testing.T) {
	repo := steadyRevenueRepo(t, 30)
	engine := newEngine(t, repo)

	first, err := engine.Run(context.Background(), "2330", contracts.MetricRevenue, 6)
	require.NoError(t, err)
	second, err := engine.Run(context.Background(), "2330", contracts.MetricRevenue, 6)
	require.NoError(t, err)

	assert.Equal(t, first.Periods, second.Periods)
	assert.Equal(t, first.Statistics, second.Statistics)
	assert.Equal(t, first.Suggestions, second.Suggestions)
}

func TestEngineActualUnavailableExcluded(t *testing.T) {
	// A reporting gap: 2024-01 is missing between two runs of data.
	repo := store.NewMemoryRepository()
	series := monthlyPoints(2023, 1, compounding(1000, 0.02, 12)...)
	series = append(series, monthlyPoints(2024, 2, 1300, 1320)...)
	require.NoError(t, repo.Put("2330", contracts.MetricRevenue, series))
	engine := newEngine(t, repo)

	report, err := engine.Run(context.Background(), "2330", contracts.MetricRevenue, 4)
	require.NoError(t, err)

	var unavailable int
	for _, p := range report.Periods {
		if p.State == contracts.StepActualUnavailable {
			unavailable++
			assert.False(t, p.Actual.Available)
			assert.NotEmpty(t, p.Actual.Reason)
			assert.Nil(t, p.Accuracy, "unavailable actuals are excluded from metrics")
		}
	}
	assert.Equal(t, 1, unavailable)
	assert.Equal(t, report.ScoredPeriods(), report.Statistics.Overall.Periods)
}

func TestEngineAbnormalStratification(t *testing.T) {
	// Steady 1% growth with a 3x one-off spike in the final month.
	values := compounding(1000, 0.01, 24)
	spike := 3 * values[23]
	values = append(values, spike)
	repo := store.NewMemoryRepository()
	require.NoError(t, repo.Put("2330", contracts.MetricRevenue, monthlyPoints(2022, 1, values...)))
	engine := newEngine(t, repo)

	report, err := engine.Run(context.Background(), "2330", contracts.MetricRevenue, 6)
	require.NoError(t, err)
	require.Equal(t, 6, report.ScoredPeriods())

	stats := report.Statistics
	assert.Equal(t, 1, stats.AbnormalOnly.Periods, "exactly the spike month is flagged")
	assert.Equal(t, stats.Overall.Periods, stats.OperatingOnly.Periods+stats.AbnormalOnly.Periods,
		"operating and abnormal buckets partition the scored periods")
	assert.Less(t, stats.OperatingOnly.ValueMAPE, stats.Overall.ValueMAPE,
		"excluding the abnormal month must improve apparent accuracy")
	assert.Greater(t, stats.AbnormalOnly.ValueMAPE, stats.OperatingOnly.ValueMAPE)

	for _, p := range report.Periods {
		if p.IsAbnormal() {
			assert.True(t, p.Target.Equal(contracts.NewMonth(2024, 1)))
			assert.NotEmpty(t, p.Abnormal.Reasons)
		}
	}
}

func TestEngineConfidenceStratificationIsDisjoint(t *testing.T) {
	engine := newEngine(t, steadyRevenueRepo(t, 36))

	report, err := engine.Run(context.Background(), "2330", contracts.MetricRevenue, 8)
	require.NoError(t, err)

	total := 0
	for _, cs := range report.Statistics.ByConfidence {
		total += cs.Count
	}
	assert.Equal(t, report.Statistics.Overall.Periods, total,
		"confidence strata must cover every scored period exactly once")
}

func TestEngineEPSBacktest(t *testing.T) {
	repo := store.NewMemoryRepository()
	require.NoError(t, repo.Put("2330", contracts.MetricEPS,
		quarterlyPoints(2021, 1, compounding(2.0, 0.03, 12)...)))
	require.NoError(t, repo.Put("2330", contracts.MetricRevenue,
		monthlyPoints(2021, 1, compounding(1000, 0.01, 36)...)))
	require.NoError(t, repo.Put("2330", contracts.MetricNetMargin,
		quarterlyPoints(2021, 1, 10, 10.1, 10.2, 10.3, 10.4, 10.5, 10.6, 10.7, 10.8, 10.9, 11.0, 11.1)))
	engine := newEngine(t, repo)

	report, err := engine.Run(context.Background(), "2330", contracts.MetricEPS, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, report.ScoredPeriods())
	assert.Equal(t, 1.0, report.Statistics.Overall.DirectionAccuracy)
}

func TestEngineNoHistoryProducesDiagnostics(t *testing.T) {
	engine := newEngine(t, store.NewMemoryRepository())

	report, err := engine.Run(context.Background(), "9999", contracts.MetricRevenue, 6)
	require.NoError(t, err, "a run never raises for domain-level emptiness")
	assert.Empty(t, report.Periods)
	assert.NotEmpty(t, report.Diagnostics)
}

func TestEngineRejectsInvalidArguments(t *testing.T) {
	engine := newEngine(t, store.NewMemoryRepository())

	_, err := engine.Run(context.Background(), "2330", contracts.MetricRevenue, 0)
	assert.Error(t, err)

	_, err = engine.Run(context.Background(), "2330", contracts.MetricNetMargin, 6)
	assert.Error(t, err)
}

func TestEnginePerStepFailureIsolation(t *testing.T) {
	repo := steadyRevenueRepo(t, 30)
	orch, err := forecast.NewOrchestrator(repo, nil, contracts.DefaultForecastConfig(), contracts.DefaultBacktestConfig(), testLogger())
	require.NoError(t, err)
	flaky := &flakyForecaster{inner: orch, failAsOf: contracts.NewMonth(2023, 3)}
	engine, err := NewEngine(repo, flaky, contracts.DefaultBacktestConfig(), testLogger())
	require.NoError(t, err)

	report, err := engine.Run(context.Background(), "2330", contracts.MetricRevenue, 6)
	require.NoError(t, err)
	assert.Equal(t, 1, report.FailedPeriods)
	assert.Equal(t, 5, report.ScoredPeriods(), "one bad step must not abort the run")
}

type flakyForecaster struct {
	inner    Forecaster
	failAsOf contracts.Period
}

func (f *flakyForecaster) Forecast(ctx context.Context, stockID string, metric contracts.Metric, asOf contracts.Period) (contracts.ForecastResult, error) {
	if asOf.Equal(f.failAsOf) {
		return contracts.ForecastResult{}, assert.AnError
	}
	return f.inner.Forecast(ctx, stockID, metric, asOf)
}
