package contracts

import "context"

// Metric identifies one historical time series tracked per stock.
type Metric string

const (
	MetricRevenue         Metric = "revenue"
	MetricEPS             Metric = "eps"
	MetricNetMargin       Metric = "net_margin"
	MetricGrossMargin     Metric = "gross_margin"
	MetricOperatingMargin Metric = "operating_margin"
)

// Granularity returns the native reporting cadence of the metric.
// Revenue is a monthly filing; everything else comes off quarterly statements.
func (m Metric) Granularity() Granularity {
	if m == MetricRevenue {
		return Monthly
	}
	return Quarterly
}

// Valid reports whether m is one of the known metrics.
func (m Metric) Valid() bool {
	switch m {
	case MetricRevenue, MetricEPS, MetricNetMargin, MetricGrossMargin, MetricOperatingMargin:
		return true
	}
	return false
}

// Repository provides point-in-time access to historical series. Every read
// takes an asOf cutoff and must return only observations at or before it;
// implementations are the sole enforcement point for look-ahead safety.
type Repository interface {
	// Series returns up to lookback most recent observations of the metric
	// at or before asOf, oldest first. An empty series is not an error.
	Series(ctx context.Context, stockID string, metric Metric, asOf Period, lookback int) (Series, error)

	// Actual returns the realized value and growth rate for exactly the
	// given period. Growth is measured against the immediately preceding
	// period, the same base forecasts are expressed in. Available is false
	// when the value has not been reported yet.
	Actual(ctx context.Context, stockID string, metric Metric, period Period) (ActualResult, error)

	// DataSufficient reports whether at least minPoints observations of the
	// metric exist at or before asOf.
	DataSufficient(ctx context.Context, stockID string, metric Metric, asOf Period, minPoints int) (bool, error)

	// LatestPeriod returns the most recent period with a reported
	// observation, or false when the stock has none.
	LatestPeriod(ctx context.Context, stockID string, metric Metric) (Period, bool, error)
}

// ModelStore persists learned adjustment model artifacts between runs.
type ModelStore interface {
	SaveModel(ctx context.Context, name string, blob []byte) error
	LoadModel(ctx context.Context, name string) ([]byte, error)
}
