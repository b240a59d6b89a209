package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dansontsui/taiwan-stock-system-sub002/internal/adjust"
	"github.com/dansontsui/taiwan-stock-system-sub002/internal/contracts"
	"github.com/dansontsui/taiwan-stock-system-sub002/internal/external/finmind"
	"github.com/dansontsui/taiwan-stock-system-sub002/pkg/database"
)

// Collector pulls filings from the upstream data source.
type Collector interface {
	Collect(ctx context.Context, stockIDs []string, since contracts.Period) (finmind.CollectReport, error)
}

// Trainer retrains the adjustment model.
type Trainer interface {
	Retrain(ctx context.Context, stockIDs []string, metric contracts.Metric, periods int) (adjust.TrainReport, error)
}

// DataHandler handles data collection and training endpoints
type DataHandler struct {
	collector Collector
	trainer   Trainer
	db        *database.DB
	log       zerolog.Logger
}

// NewDataHandler creates a new data handler
func NewDataHandler(collector Collector, trainer Trainer, db *database.DB, log zerolog.Logger) *DataHandler {
	return &DataHandler{
		collector: collector,
		trainer:   trainer,
		db:        db,
		log:       log.With().Str("component", "api.data").Logger(),
	}
}

// CollectRequest represents a data collection request
type CollectRequest struct {
	StockIDs []string `json:"stock_ids"`
	Since    string   `json:"since"` // first month to fetch, e.g. "2023-01"
}

// Collect triggers a collection run.
// POST /api/data/collect
func (h *DataHandler) Collect(w http.ResponseWriter, r *http.Request) {
	var req CollectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.StockIDs) == 0 {
		respondError(w, http.StatusBadRequest, "stock_ids is required")
		return
	}
	since, err := contracts.ParseMonth(req.Since)
	if err != nil {
		respondError(w, http.StatusBadRequest, "since must be a month like 2023-01")
		return
	}

	report, err := h.collector.Collect(r.Context(), req.StockIDs, since)
	if err != nil {
		h.log.Error().Err(err).Msg("collection run failed")
		respondError(w, http.StatusInternalServerError, "collection failed")
		return
	}

	respondJSON(w, http.StatusOK, report)
}

// TrainRequest represents a model training request
type TrainRequest struct {
	StockIDs []string `json:"stock_ids"`
	Metric   string   `json:"metric"`
	Periods  int      `json:"periods"`
}

// Train retrains the adjustment model on recent history.
// POST /api/data/train
func (h *DataHandler) Train(w http.ResponseWriter, r *http.Request) {
	var req TrainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.StockIDs) == 0 {
		respondError(w, http.StatusBadRequest, "stock_ids is required")
		return
	}
	metric, ok := forecastMetric(req.Metric)
	if !ok {
		respondError(w, http.StatusBadRequest, "metric must be revenue or eps")
		return
	}
	periods := req.Periods
	if periods < 1 {
		periods = defaultBacktestPeriods
	}

	report, err := h.trainer.Retrain(r.Context(), req.StockIDs, metric, periods)
	if err != nil {
		h.log.Error().Err(err).Msg("training run failed")
		respondError(w, http.StatusInternalServerError, "training failed")
		return
	}

	respondJSON(w, http.StatusOK, report)
}

// Health reports database connectivity and pool statistics.
// GET /api/data/health
func (h *DataHandler) Health(w http.ResponseWriter, r *http.Request) {
	status, err := h.db.HealthCheck(r.Context())
	if err != nil {
		respondJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	respondJSON(w, http.StatusOK, status)
}
