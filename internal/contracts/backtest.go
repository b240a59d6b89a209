package contracts

import "time"

// ActualResult is the realized value for a target period. Available is false
// when the repository has no realized value yet; the zero Value must then not
// be interpreted as a real observation.
type ActualResult struct {
	Period     Period  `json:"period"`
	Value      float64 `json:"value"`
	GrowthRate float64 `json:"growth_rate"`
	Available  bool    `json:"available"`
	Reason     string  `json:"reason,omitempty"`
}

// AccuracyMetrics compares one forecast against its realized actual.
type AccuracyMetrics struct {
	GrowthRateError  float64    `json:"growth_rate_error"`
	GrowthRateMAPE   float64    `json:"growth_rate_mape"`
	ValueMAPE        float64    `json:"value_mape"`
	DirectionCorrect bool       `json:"direction_correct"`
	Confidence       Confidence `json:"confidence"`
}

// AbnormalFlag marks a backtest period where a structural-break heuristic
// fired. Flags stratify statistics and never alter the computed metrics.
type AbnormalFlag struct {
	Reasons        []string `json:"reasons"`
	MarginShiftPP  float64  `json:"margin_shift_pp,omitempty"`
	ValueJumpRatio float64  `json:"value_jump_ratio,omitempty"`
	EPSQoQPct      float64  `json:"eps_qoq_pct,omitempty"`
	RevenueQoQPct  float64  `json:"revenue_qoq_pct,omitempty"`
}

// StepState tracks a backtest step through its lifecycle.
type StepState string

const (
	StepScored            StepState = "scored"
	StepSkipped           StepState = "skipped"
	StepActualUnavailable StepState = "actual_unavailable"
	StepFailed            StepState = "failed"
)

// BacktestPeriod is one (cutoff, target) step of a walk-forward run.
type BacktestPeriod struct {
	Cutoff   Period           `json:"cutoff"`
	Target   Period           `json:"target"`
	State    StepState        `json:"state"`
	Forecast ForecastResult   `json:"forecast"`
	Actual   ActualResult     `json:"actual"`
	Accuracy *AccuracyMetrics `json:"accuracy,omitempty"`
	Abnormal *AbnormalFlag    `json:"abnormal,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// Scored reports whether both forecast and actual were available and metrics
// were computed.
func (p BacktestPeriod) Scored() bool { return p.State == StepScored && p.Accuracy != nil }

// IsAbnormal reports whether a structural-break flag is attached.
func (p BacktestPeriod) IsAbnormal() bool { return p.Abnormal != nil }

// StatsBucket is one set of summary statistics over scored periods.
type StatsBucket struct {
	Periods           int     `json:"periods"`
	AvgGrowthError    float64 `json:"avg_growth_error"`
	GrowthRateMAPE    float64 `json:"growth_rate_mape"`
	ValueMAPE         float64 `json:"value_mape"`
	DirectionAccuracy float64 `json:"direction_accuracy"`
	GrowthRMSE        float64 `json:"growth_rmse"`
}

// ConfidenceStats summarizes accuracy within one confidence label.
type ConfidenceStats struct {
	Count             int     `json:"count"`
	AvgGrowthError    float64 `json:"avg_growth_error"`
	DirectionAccuracy float64 `json:"direction_accuracy"`
}

// BacktestStatistics reports the same metrics three ways so callers can see
// how much abnormal periods distort apparent accuracy. Overall is always the
// union of OperatingOnly and AbnormalOnly.
type BacktestStatistics struct {
	Overall       StatsBucket                    `json:"overall"`
	OperatingOnly StatsBucket                    `json:"operating_only"`
	AbnormalOnly  StatsBucket                    `json:"abnormal_only"`
	ByConfidence  map[Confidence]ConfidenceStats `json:"by_confidence"`
}

// BacktestReport is the full, serializable outcome of one walk-forward run.
// A run never raises: a failed run is a report with zero scored periods and
// diagnostics explaining why.
type BacktestReport struct {
	StockID          string             `json:"stock_id"`
	Metric           Metric             `json:"metric"`
	RequestedPeriods int                `json:"requested_periods"`
	SkippedPeriods   int                `json:"skipped_periods"`
	FailedPeriods    int                `json:"failed_periods"`
	Periods          []BacktestPeriod   `json:"periods"`
	Statistics       BacktestStatistics `json:"statistics"`
	Suggestions      []string           `json:"suggestions"`
	Diagnostics      []string           `json:"diagnostics,omitempty"`
	StartedAt        time.Time          `json:"started_at"`
	FinishedAt       time.Time          `json:"finished_at"`
}

// ScoredPeriods counts the steps that produced accuracy metrics.
func (r *BacktestReport) ScoredPeriods() int {
	n := 0
	for _, p := range r.Periods {
		if p.Scored() {
			n++
		}
	}
	return n
}
