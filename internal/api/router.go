package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/dansontsui/taiwan-stock-system-sub002/internal/api/handlers"
)

// NewRouter creates and configures the HTTP router. All routes are wired
// in this function.
func NewRouter(
	forecastHandler *handlers.ForecastHandler,
	backtestHandler *handlers.BacktestHandler,
	dataHandler *handlers.DataHandler,
	log zerolog.Logger,
) http.Handler {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", healthCheckHandler).Methods("GET")

	// API v1
	api := r.PathPrefix("/api").Subrouter()

	// Forecast endpoints
	api.HandleFunc("/forecast/{stock_id}", forecastHandler.Get).Methods("GET")

	// Backtest endpoints
	api.HandleFunc("/backtest/{stock_id}", backtestHandler.Run).Methods("POST")

	// Data endpoints
	api.HandleFunc("/data/collect", dataHandler.Collect).Methods("POST")
	api.HandleFunc("/data/train", dataHandler.Train).Methods("POST")
	api.HandleFunc("/data/health", dataHandler.Health).Methods("GET")

	// Apply middleware
	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	return r
}

// healthCheckHandler returns server health status
func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"service": "tw-forecast-api",
	})
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(log zerolog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			next.ServeHTTP(w, r)

			log.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Dur("duration", time.Since(start)).
				Msg("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log zerolog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.Error().
						Interface("error", err).
						Str("path", r.URL.Path).
						Msg("panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"error": "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
