package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/dansontsui/taiwan-stock-system-sub002/internal/contracts"
)

// Forecaster produces one point-in-time forecast.
type Forecaster interface {
	Forecast(ctx context.Context, stockID string, metric contracts.Metric, asOf contracts.Period) (contracts.ForecastResult, error)
}

// ForecastHandler handles forecast API endpoints
type ForecastHandler struct {
	forecaster Forecaster
	repo       contracts.Repository
	log        zerolog.Logger
}

// NewForecastHandler creates a new forecast handler
func NewForecastHandler(forecaster Forecaster, repo contracts.Repository, log zerolog.Logger) *ForecastHandler {
	return &ForecastHandler{
		forecaster: forecaster,
		repo:       repo,
		log:        log.With().Str("component", "api.forecast").Logger(),
	}
}

// Get returns a forecast for one stock.
// GET /api/forecast/{stock_id}?metric=revenue&as_of=2024-06
func (h *ForecastHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stockID := mux.Vars(r)["stock_id"]

	metric, ok := forecastMetric(r.URL.Query().Get("metric"))
	if !ok {
		respondError(w, http.StatusBadRequest, "metric must be revenue or eps")
		return
	}

	asOf, err := h.resolveAsOf(ctx, stockID, metric, r.URL.Query().Get("as_of"))
	if err != nil {
		if errors.Is(err, contracts.ErrNotFound) {
			respondError(w, http.StatusNotFound, "no data for stock "+stockID)
			return
		}
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.forecaster.Forecast(ctx, stockID, metric, asOf)
	if err != nil {
		if errors.Is(err, contracts.ErrInsufficientData) {
			respondError(w, http.StatusUnprocessableEntity, "insufficient history for "+stockID)
			return
		}
		h.log.Error().Err(err).Str("stock_id", stockID).Msg("forecast failed")
		respondError(w, http.StatusInternalServerError, "forecast failed")
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// resolveAsOf parses the as_of query parameter, defaulting to the latest
// period with data.
func (h *ForecastHandler) resolveAsOf(ctx context.Context, stockID string, metric contracts.Metric, raw string) (contracts.Period, error) {
	if raw != "" {
		return contracts.ParsePeriod(raw)
	}
	latest, ok, err := h.repo.LatestPeriod(ctx, stockID, metric)
	if err != nil {
		return contracts.Period{}, err
	}
	if !ok {
		return contracts.Period{}, contracts.ErrNotFound
	}
	return latest, nil
}

func forecastMetric(raw string) (contracts.Metric, bool) {
	switch contracts.Metric(raw) {
	case "", contracts.MetricRevenue:
		return contracts.MetricRevenue, true
	case contracts.MetricEPS:
		return contracts.MetricEPS, true
	default:
		return "", false
	}
}
