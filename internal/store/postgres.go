package store

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dansontsui/taiwan-stock-system-sub002/internal/contracts"
)

// PostgresRepository serves point-in-time series reads over the filings
// tables. The as-of boundary is enforced in SQL so no caller can accidentally
// read past a cutoff.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a repository over an existing pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// ratioColumns maps quarterly ratio metrics onto financial_ratios columns.
// Identifiers are interpolated from this fixed table only, never from input.
var ratioColumns = map[contracts.Metric]string{
	contracts.MetricNetMargin:       "net_margin",
	contracts.MetricGrossMargin:     "gross_margin",
	contracts.MetricOperatingMargin: "operating_margin",
}

// Series returns up to lookback observations at or before asOf, oldest
// first.
func (r *PostgresRepository) Series(ctx context.Context, stockID string, metric contracts.Metric, asOf contracts.Period, lookback int) (contracts.Series, error) {
	if lookback < 1 {
		return nil, nil
	}
	query, granularity, err := seriesQuery(metric)
	if err != nil {
		return nil, err
	}
	if asOf.Granularity != granularity {
		return nil, fmt.Errorf("cutoff %s does not match %s granularity", asOf, metric)
	}

	rows, err := r.pool.Query(ctx, query, stockID, asOf.Year, asOf.Num, lookback)
	if err != nil {
		return nil, fmt.Errorf("querying %s series: %w", metric, err)
	}
	defer rows.Close()

	var reversed contracts.Series
	for rows.Next() {
		var year, num int
		var value float64
		if err := rows.Scan(&year, &num, &value); err != nil {
			return nil, fmt.Errorf("scanning %s row: %w", metric, err)
		}
		reversed = append(reversed, contracts.Point{
			Period: contracts.Period{Year: year, Num: num, Granularity: granularity},
			Value:  value,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating %s rows: %w", metric, err)
	}

	series := make(contracts.Series, len(reversed))
	for i, p := range reversed {
		series[len(reversed)-1-i] = p
	}
	if err := series.Validate(); err != nil {
		return nil, fmt.Errorf("%s series from storage: %w", metric, err)
	}
	return series, nil
}

func seriesQuery(metric contracts.Metric) (string, contracts.Granularity, error) {
	if metric == contracts.MetricRevenue {
		return `
			SELECT revenue_year, revenue_month, revenue
			FROM monthly_revenues
			WHERE stock_id = $1
			  AND (revenue_year < $2 OR (revenue_year = $2 AND revenue_month <= $3))
			ORDER BY revenue_year DESC, revenue_month DESC
			LIMIT $4
		`, contracts.Monthly, nil
	}
	if metric == contracts.MetricEPS {
		return `
			SELECT year, quarter, eps
			FROM financial_statements
			WHERE stock_id = $1
			  AND (year < $2 OR (year = $2 AND quarter <= $3))
			  AND eps IS NOT NULL
			ORDER BY year DESC, quarter DESC
			LIMIT $4
		`, contracts.Quarterly, nil
	}
	column, ok := ratioColumns[metric]
	if !ok {
		return "", "", fmt.Errorf("unknown metric %q", metric)
	}
	return fmt.Sprintf(`
		SELECT year, quarter, %s
		FROM financial_ratios
		WHERE stock_id = $1
		  AND (year < $2 OR (year = $2 AND quarter <= $3))
		  AND %s IS NOT NULL
		ORDER BY year DESC, quarter DESC
		LIMIT $4
	`, column, column), contracts.Quarterly, nil
}

// Actual returns the realized observation for exactly the period, with
// growth measured against the immediately preceding period.
func (r *PostgresRepository) Actual(ctx context.Context, stockID string, metric contracts.Metric, period contracts.Period) (contracts.ActualResult, error) {
	window, err := r.Series(ctx, stockID, metric, period, 2)
	if err != nil {
		return contracts.ActualResult{}, err
	}
	value, ok := window.ValueAt(period)
	if !ok {
		return contracts.ActualResult{
			Period: period,
			Reason: fmt.Sprintf("no %s reported for %s", metric, period),
		}, nil
	}
	growth := 0.0
	if prev, ok := window.ValueAt(period.Prev()); ok && prev != 0 {
		growth = (value - prev) / math.Abs(prev)
	}
	return contracts.ActualResult{
		Period:     period,
		Value:      value,
		GrowthRate: growth,
		Available:  true,
	}, nil
}

// DataSufficient reports whether minPoints observations exist at or before
// asOf.
func (r *PostgresRepository) DataSufficient(ctx context.Context, stockID string, metric contracts.Metric, asOf contracts.Period, minPoints int) (bool, error) {
	series, err := r.Series(ctx, stockID, metric, asOf, minPoints)
	if err != nil {
		return false, err
	}
	return series.Len() >= minPoints, nil
}

// LatestPeriod returns the most recent reported period for the metric.
func (r *PostgresRepository) LatestPeriod(ctx context.Context, stockID string, metric contracts.Metric) (contracts.Period, bool, error) {
	far := contracts.NewMonth(9999, 12)
	if metric.Granularity() == contracts.Quarterly {
		far = contracts.NewQuarter(9999, 4)
	}
	series, err := r.Series(ctx, stockID, metric, far, 1)
	if err != nil {
		return contracts.Period{}, false, err
	}
	latest, ok := series.Latest()
	return latest.Period, ok, nil
}

// StockIDs lists every stock with revenue filings, for batch jobs.
func (r *PostgresRepository) StockIDs(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT stock_id FROM monthly_revenues ORDER BY stock_id`)
	if err != nil {
		return nil, fmt.Errorf("listing stocks: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning stock id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// UpsertRevenue stores one monthly revenue filing.
func (r *PostgresRepository) UpsertRevenue(ctx context.Context, stockID string, period contracts.Period, revenue float64) error {
	if period.Granularity != contracts.Monthly {
		return fmt.Errorf("revenue period %s is not monthly", period)
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO monthly_revenues (stock_id, revenue_year, revenue_month, revenue)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (stock_id, revenue_year, revenue_month)
		DO UPDATE SET revenue = EXCLUDED.revenue
	`, stockID, period.Year, period.Num, revenue)
	if err != nil {
		return fmt.Errorf("upserting revenue %s/%s: %w", stockID, period, err)
	}
	return nil
}

// UpsertStatement stores one quarterly statement row.
func (r *PostgresRepository) UpsertStatement(ctx context.Context, stockID string, period contracts.Period, eps float64) error {
	if period.Granularity != contracts.Quarterly {
		return fmt.Errorf("statement period %s is not quarterly", period)
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO financial_statements (stock_id, year, quarter, eps)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (stock_id, year, quarter)
		DO UPDATE SET eps = EXCLUDED.eps
	`, stockID, period.Year, period.Num, eps)
	if err != nil {
		return fmt.Errorf("upserting statement %s/%s: %w", stockID, period, err)
	}
	return nil
}

// UpsertRatios stores one quarterly margin row. Nil margins leave the column
// untouched on conflict.
func (r *PostgresRepository) UpsertRatios(ctx context.Context, stockID string, period contracts.Period, gross, operating, net *float64) error {
	if period.Granularity != contracts.Quarterly {
		return fmt.Errorf("ratio period %s is not quarterly", period)
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO financial_ratios (stock_id, year, quarter, gross_margin, operating_margin, net_margin)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (stock_id, year, quarter)
		DO UPDATE SET
			gross_margin = COALESCE(EXCLUDED.gross_margin, financial_ratios.gross_margin),
			operating_margin = COALESCE(EXCLUDED.operating_margin, financial_ratios.operating_margin),
			net_margin = COALESCE(EXCLUDED.net_margin, financial_ratios.net_margin)
	`, stockID, period.Year, period.Num, gross, operating, net)
	if err != nil {
		return fmt.Errorf("upserting ratios %s/%s: %w", stockID, period, err)
	}
	return nil
}

// SaveModel persists a model artifact blob.
func (r *PostgresRepository) SaveModel(ctx context.Context, name string, blob []byte) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO model_artifacts (name, blob, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name)
		DO UPDATE SET blob = EXCLUDED.blob, updated_at = now()
	`, name, blob)
	if err != nil {
		return fmt.Errorf("saving model artifact %q: %w", name, err)
	}
	return nil
}

// LoadModel returns ErrNotFound when no artifact exists yet.
func (r *PostgresRepository) LoadModel(ctx context.Context, name string) ([]byte, error) {
	var blob []byte
	err := r.pool.QueryRow(ctx, `SELECT blob FROM model_artifacts WHERE name = $1`, name).Scan(&blob)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, contracts.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading model artifact %q: %w", name, err)
	}
	return blob, nil
}
