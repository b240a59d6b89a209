package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dansontsui/taiwan-stock-system-sub002/internal/adjust"
	"github.com/dansontsui/taiwan-stock-system-sub002/internal/contracts"
	"github.com/dansontsui/taiwan-stock-system-sub002/internal/external/finmind"
	"github.com/dansontsui/taiwan-stock-system-sub002/internal/store"
)

type stubForecaster struct {
	result contracts.ForecastResult
	err    error
	asOf   contracts.Period
}

func (s *stubForecaster) Forecast(_ context.Context, stockID string, metric contracts.Metric, asOf contracts.Period) (contracts.ForecastResult, error) {
	s.asOf = asOf
	if s.err != nil {
		return contracts.ForecastResult{}, s.err
	}
	result := s.result
	result.StockID = stockID
	result.Target = asOf.Next()
	return result, nil
}

func seededRepo(t *testing.T) *store.MemoryRepository {
	t.Helper()
	repo := store.NewMemoryRepository()
	points := make([]contracts.Point, 0, 12)
	period := contracts.NewMonth(2024, 1)
	for i := 0; i < 12; i++ {
		points = append(points, contracts.Point{Period: period, Value: 100 + float64(i)})
		period = period.Next()
	}
	require.NoError(t, repo.Put("2330", contracts.MetricRevenue, contracts.Series(points)))
	return repo
}

func forecastRouter(h *ForecastHandler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/forecast/{stock_id}", h.Get).Methods("GET")
	return r
}

func TestForecastHandlerReturnsResult(t *testing.T) {
	forecaster := &stubForecaster{result: contracts.ForecastResult{GrowthRate: 0.05}}
	h := NewForecastHandler(forecaster, seededRepo(t), zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/api/forecast/2330?metric=revenue&as_of=2024-06", nil)
	rec := httptest.NewRecorder()
	forecastRouter(h).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var result contracts.ForecastResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "2330", result.StockID)
	assert.InDelta(t, 0.05, result.GrowthRate, 1e-12)
	assert.Equal(t, contracts.NewMonth(2024, 6), forecaster.asOf)
}

func TestForecastHandlerDefaultsToLatestPeriod(t *testing.T) {
	forecaster := &stubForecaster{}
	h := NewForecastHandler(forecaster, seededRepo(t), zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/api/forecast/2330", nil)
	rec := httptest.NewRecorder()
	forecastRouter(h).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, contracts.NewMonth(2024, 12), forecaster.asOf)
}

func TestForecastHandlerRejectsUnknownMetric(t *testing.T) {
	h := NewForecastHandler(&stubForecaster{}, seededRepo(t), zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/api/forecast/2330?metric=net_margin", nil)
	rec := httptest.NewRecorder()
	forecastRouter(h).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestForecastHandlerUnknownStockIs404(t *testing.T) {
	h := NewForecastHandler(&stubForecaster{}, store.NewMemoryRepository(), zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/api/forecast/9999", nil)
	rec := httptest.NewRecorder()
	forecastRouter(h).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestForecastHandlerInsufficientDataIs422(t *testing.T) {
	forecaster := &stubForecaster{err: contracts.ErrInsufficientData}
	h := NewForecastHandler(forecaster, seededRepo(t), zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/api/forecast/2330?as_of=2024-03", nil)
	rec := httptest.NewRecorder()
	forecastRouter(h).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

type stubRunner struct {
	periods int
	metric  contracts.Metric
}

func (s *stubRunner) Run(_ context.Context, stockID string, metric contracts.Metric, periods int) (*contracts.BacktestReport, error) {
	s.periods = periods
	s.metric = metric
	return &contracts.BacktestReport{StockID: stockID, Metric: metric, RequestedPeriods: periods}, nil
}

func backtestRouter(h *BacktestHandler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/backtest/{stock_id}", h.Run).Methods("POST")
	return r
}

func TestBacktestHandlerRunsWithDefaults(t *testing.T) {
	runner := &stubRunner{}
	h := NewBacktestHandler(runner, zerolog.Nop())

	req := httptest.NewRequest(http.MethodPost, "/api/backtest/2330", nil)
	rec := httptest.NewRecorder()
	backtestRouter(h).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultBacktestPeriods, runner.periods)
	assert.Equal(t, contracts.MetricRevenue, runner.metric)

	var report contracts.BacktestReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "2330", report.StockID)
}

func TestBacktestHandlerParsesQuery(t *testing.T) {
	runner := &stubRunner{}
	h := NewBacktestHandler(runner, zerolog.Nop())

	req := httptest.NewRequest(http.MethodPost, "/api/backtest/2330?metric=eps&periods=4", nil)
	rec := httptest.NewRecorder()
	backtestRouter(h).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 4, runner.periods)
	assert.Equal(t, contracts.MetricEPS, runner.metric)
}

func TestBacktestHandlerRejectsBadPeriods(t *testing.T) {
	h := NewBacktestHandler(&stubRunner{}, zerolog.Nop())

	for _, raw := range []string{"0", "-3", "many"} {
		req := httptest.NewRequest(http.MethodPost, "/api/backtest/2330?periods="+raw, nil)
		rec := httptest.NewRecorder()
		backtestRouter(h).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "periods=%s", raw)
	}
}

type stubCollector struct {
	report finmind.CollectReport
	since  contracts.Period
}

func (s *stubCollector) Collect(_ context.Context, stockIDs []string, since contracts.Period) (finmind.CollectReport, error) {
	s.since = since
	s.report.Stocks = len(stockIDs)
	return s.report, nil
}

type stubTrainer struct {
	report adjust.TrainReport
}

func (s *stubTrainer) Retrain(_ context.Context, stockIDs []string, metric contracts.Metric, periods int) (adjust.TrainReport, error) {
	s.report.Samples = len(stockIDs) * periods
	return s.report, nil
}

func TestDataHandlerCollect(t *testing.T) {
	collector := &stubCollector{}
	h := NewDataHandler(collector, &stubTrainer{}, nil, zerolog.Nop())

	body := `{"stock_ids":["2330","2317"],"since":"2023-01"}`
	req := httptest.NewRequest(http.MethodPost, "/api/data/collect", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Collect(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, contracts.NewMonth(2023, 1), collector.since)

	var report finmind.CollectReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, 2, report.Stocks)
}

func TestDataHandlerCollectValidation(t *testing.T) {
	h := NewDataHandler(&stubCollector{}, &stubTrainer{}, nil, zerolog.Nop())

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{`},
		{"missing stocks", `{"since":"2023-01"}`},
		{"bad since", `{"stock_ids":["2330"],"since":"2023-Q1"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/data/collect", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			h.Collect(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestDataHandlerTrain(t *testing.T) {
	trainer := &stubTrainer{}
	h := NewDataHandler(&stubCollector{}, trainer, nil, zerolog.Nop())

	body := `{"stock_ids":["2330"],"metric":"revenue","periods":6}`
	req := httptest.NewRequest(http.MethodPost, "/api/data/train", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Train(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var report adjust.TrainReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, 6, report.Samples)
}

func TestDataHandlerTrainRejectsBadMetric(t *testing.T) {
	h := NewDataHandler(&stubCollector{}, &stubTrainer{}, nil, zerolog.Nop())

	body := `{"stock_ids":["2330"],"metric":"volume"}`
	req := httptest.NewRequest(http.MethodPost, "/api/data/train", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Train(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
