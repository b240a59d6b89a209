package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dansontsui/taiwan-stock-system-sub002/internal/api"
	"github.com/dansontsui/taiwan-stock-system-sub002/internal/api/handlers"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the REST API server",
	Long: `Starts the HTTP API server.

Endpoints:
  GET  /health                     - health check
  GET  /api/forecast/{stock_id}    - point-in-time forecast
  POST /api/backtest/{stock_id}    - walk-forward backtest
  POST /api/data/collect           - trigger a collection run
  POST /api/data/train             - retrain the adjustment model
  GET  /api/data/health            - database health

Example:
  go run ./cmd/predictor api
  go run ./cmd/predictor api --port 8080`,
	RunE: runAPIServer,
}

var apiPortFlag string

func init() {
	rootCmd.AddCommand(apiCmd)

	apiCmd.Flags().StringVar(&apiPortFlag, "port", "", "API server port (default: config PORT)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	d, err := initDeps(ctx)
	if err != nil {
		return err
	}
	defer d.close()

	if apiPortFlag != "" {
		d.cfg.Port = apiPortFlag
	}

	forecastHandler := handlers.NewForecastHandler(d.orch, d.repo, d.log)
	backtestHandler := handlers.NewBacktestHandler(d.engine, d.log)
	dataHandler := handlers.NewDataHandler(d.newCollector(), d.newTrainer(), d.db, d.log)

	router := api.NewRouter(forecastHandler, backtestHandler, dataHandler, d.log)
	server := api.New(d.cfg, d.log, router)

	go func() {
		if err := server.Start(); err != nil {
			d.log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	fmt.Printf("Server running on http://localhost:%s (Ctrl+C to stop)\n", d.cfg.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}
