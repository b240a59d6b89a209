package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/dansontsui/taiwan-stock-system-sub002/internal/contracts"
)

// BacktestRunner runs one walk-forward backtest.
type BacktestRunner interface {
	Run(ctx context.Context, stockID string, metric contracts.Metric, periods int) (*contracts.BacktestReport, error)
}

// BacktestHandler handles backtest API endpoints
type BacktestHandler struct {
	engine BacktestRunner
	log    zerolog.Logger
}

// NewBacktestHandler creates a new backtest handler
func NewBacktestHandler(engine BacktestRunner, log zerolog.Logger) *BacktestHandler {
	return &BacktestHandler{
		engine: engine,
		log:    log.With().Str("component", "api.backtest").Logger(),
	}
}

const defaultBacktestPeriods = 8

// Run executes a backtest for one stock.
// POST /api/backtest/{stock_id}?metric=revenue&periods=8
func (h *BacktestHandler) Run(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stockID := mux.Vars(r)["stock_id"]

	metric, ok := forecastMetric(r.URL.Query().Get("metric"))
	if !ok {
		respondError(w, http.StatusBadRequest, "metric must be revenue or eps")
		return
	}

	periods := defaultBacktestPeriods
	if raw := r.URL.Query().Get("periods"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			respondError(w, http.StatusBadRequest, "periods must be a positive integer")
			return
		}
		periods = parsed
	}

	report, err := h.engine.Run(ctx, stockID, metric, periods)
	if err != nil {
		h.log.Error().Err(err).Str("stock_id", stockID).Msg("backtest failed")
		respondError(w, http.StatusInternalServerError, "backtest failed")
		return
	}

	respondJSON(w, http.StatusOK, report)
}
