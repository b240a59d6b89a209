package finmind

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dansontsui/taiwan-stock-system-sub002/internal/contracts"
)

// Writer receives collected filings. *store.PostgresRepository satisfies it.
type Writer interface {
	UpsertRevenue(ctx context.Context, stockID string, period contracts.Period, revenue float64) error
	UpsertStatement(ctx context.Context, stockID string, period contracts.Period, eps float64) error
	UpsertRatios(ctx context.Context, stockID string, period contracts.Period, gross, operating, net *float64) error
}

// Collector pulls revenue and statement filings from FinMind and writes
// them into the repository.
type Collector struct {
	client *Client
	writer Writer
	log    zerolog.Logger
}

func NewCollector(client *Client, writer Writer, log zerolog.Logger) *Collector {
	return &Collector{
		client: client,
		writer: writer,
		log:    log.With().Str("component", "finmind.collector").Logger(),
	}
}

// CollectReport summarizes one collection run.
type CollectReport struct {
	Stocks     int
	Revenues   int
	Statements int
	Failed     []string
}

// Collect fetches filings for every stock since the given month. A stock
// that fails is recorded and skipped so the rest of the run proceeds.
func (c *Collector) Collect(ctx context.Context, stockIDs []string, since contracts.Period) (CollectReport, error) {
	if since.Granularity != contracts.Monthly {
		return CollectReport{}, fmt.Errorf("collect start %s is not monthly", since)
	}
	report := CollectReport{}
	started := time.Now()
	for _, stockID := range stockIDs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		revenues, statements, err := c.collectStock(ctx, stockID, since)
		if err != nil {
			c.log.Warn().Err(err).Str("stock_id", stockID).Msg("collection failed")
			report.Failed = append(report.Failed, stockID)
			continue
		}
		report.Stocks++
		report.Revenues += revenues
		report.Statements += statements
	}
	c.log.Info().
		Int("stocks", report.Stocks).
		Int("revenues", report.Revenues).
		Int("statements", report.Statements).
		Int("failed", len(report.Failed)).
		Dur("elapsed", time.Since(started)).
		Msg("collection run complete")
	return report, nil
}

func (c *Collector) collectStock(ctx context.Context, stockID string, since contracts.Period) (int, int, error) {
	filings, err := c.client.MonthlyRevenue(ctx, stockID, since)
	if err != nil {
		return 0, 0, err
	}
	for _, filing := range filings {
		if err := c.writer.UpsertRevenue(ctx, stockID, filing.Period, filing.Revenue); err != nil {
			return 0, 0, fmt.Errorf("storing revenue %s: %w", filing.Period, err)
		}
	}

	sinceQuarter := contracts.NewQuarter(since.Year, (since.Num-1)/3+1)
	statements, err := c.client.QuarterlyStatements(ctx, stockID, sinceQuarter)
	if err != nil {
		return len(filings), 0, err
	}
	for _, filing := range statements {
		if filing.EPS != nil {
			if err := c.writer.UpsertStatement(ctx, stockID, filing.Period, *filing.EPS); err != nil {
				return len(filings), 0, fmt.Errorf("storing statement %s: %w", filing.Period, err)
			}
		}
		if filing.GrossMargin != nil || filing.OperatingMargin != nil || filing.NetMargin != nil {
			if err := c.writer.UpsertRatios(ctx, stockID, filing.Period, filing.GrossMargin, filing.OperatingMargin, filing.NetMargin); err != nil {
				return len(filings), 0, fmt.Errorf("storing ratios %s: %w", filing.Period, err)
			}
		}
	}
	return len(filings), len(statements), nil
}
