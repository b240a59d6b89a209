package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dansontsui/taiwan-stock-system-sub002/internal/contracts"
	"github.com/dansontsui/taiwan-stock-system-sub002/internal/external/finmind"
)

// StockLister enumerates the stocks under coverage.
type StockLister interface {
	StockIDs(ctx context.Context) ([]string, error)
}

// CollectJob pulls fresh filings for every covered stock each evening.
// Monthly revenue is published by the 10th of the following month; a daily
// run keeps the lag to one day without hammering the API.
type CollectJob struct {
	collector *finmind.Collector
	stocks    StockLister
	log       zerolog.Logger
}

// NewCollectJob creates a new collection job
func NewCollectJob(collector *finmind.Collector, stocks StockLister, log zerolog.Logger) *CollectJob {
	return &CollectJob{
		collector: collector,
		stocks:    stocks,
		log:       log.With().Str("component", "jobs.collect").Logger(),
	}
}

// Name returns the job name
func (j *CollectJob) Name() string {
	return "collect_filings"
}

// Schedule runs every day at 6 PM, after the exchange closes.
func (j *CollectJob) Schedule() string {
	return "0 0 18 * * *"
}

// Run executes the collection
func (j *CollectJob) Run(ctx context.Context) error {
	stockIDs, err := j.stocks.StockIDs(ctx)
	if err != nil {
		return fmt.Errorf("listing stocks: %w", err)
	}
	if len(stockIDs) == 0 {
		j.log.Warn().Msg("no stocks under coverage, nothing to collect")
		return nil
	}

	// Refetch the trailing six months so late restatements are picked up.
	now := time.Now()
	since := contracts.NewMonth(now.Year(), int(now.Month())).Add(-6)

	report, err := j.collector.Collect(ctx, stockIDs, since)
	if err != nil {
		return fmt.Errorf("collecting filings: %w", err)
	}
	if len(report.Failed) > 0 {
		j.log.Warn().Strs("failed", report.Failed).Msg("some stocks failed to collect")
	}
	return nil
}
