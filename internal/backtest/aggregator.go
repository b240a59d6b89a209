package backtest

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/dansontsui/taiwan-stock-system-sub002/internal/contracts"
)

// Aggregator folds scored periods into the three-way statistics view and
// derives tuning suggestions from them.
type Aggregator struct {
	cfg contracts.BacktestConfig
	log zerolog.Logger
}

// NewAggregator creates an aggregator.
func NewAggregator(cfg contracts.BacktestConfig, log zerolog.Logger) *Aggregator {
	return &Aggregator{
		cfg: cfg,
		log: log.With().Str("component", "backtest.aggregator").Logger(),
	}
}

// Aggregate computes overall, operating-only and abnormal-only statistics
// plus the per-confidence breakdown. Only scored periods contribute; the
// operating and abnormal buckets partition them.
func (a *Aggregator) Aggregate(periods []contracts.BacktestPeriod) contracts.BacktestStatistics {
	var overall, operating, abnormal []contracts.AccuracyMetrics
	byConfidence := map[contracts.Confidence][]contracts.AccuracyMetrics{}

	for _, p := range periods {
		if !p.Scored() {
			continue
		}
		m := *p.Accuracy
		overall = append(overall, m)
		if p.IsAbnormal() {
			abnormal = append(abnormal, m)
		} else {
			operating = append(operating, m)
		}
		byConfidence[m.Confidence] = append(byConfidence[m.Confidence], m)
	}

	stats := contracts.BacktestStatistics{
		Overall:       bucket(overall),
		OperatingOnly: bucket(operating),
		AbnormalOnly:  bucket(abnormal),
		ByConfidence:  map[contracts.Confidence]contracts.ConfidenceStats{},
	}
	for conf, ms := range byConfidence {
		b := bucket(ms)
		stats.ByConfidence[conf] = contracts.ConfidenceStats{
			Count:             b.Periods,
			AvgGrowthError:    b.AvgGrowthError,
			DirectionAccuracy: b.DirectionAccuracy,
		}
	}
	return stats
}

func bucket(ms []contracts.AccuracyMetrics) contracts.StatsBucket {
	if len(ms) == 0 {
		return contracts.StatsBucket{}
	}
	var sumErr, sumGrowthMAPE, sumValueMAPE, sumSq float64
	var correct int
	for _, m := range ms {
		sumErr += m.GrowthRateError
		sumGrowthMAPE += m.GrowthRateMAPE
		sumValueMAPE += m.ValueMAPE
		sumSq += m.GrowthRateError * m.GrowthRateError
		if m.DirectionCorrect {
			correct++
		}
	}
	n := float64(len(ms))
	return contracts.StatsBucket{
		Periods:           len(ms),
		AvgGrowthError:    sumErr / n,
		GrowthRateMAPE:    sumGrowthMAPE / n,
		ValueMAPE:         sumValueMAPE / n,
		DirectionAccuracy: float64(correct) / n,
		GrowthRMSE:        math.Sqrt(sumSq / n),
	}
}

// Suggestions derives tuning hints from the overall statistics. Combined
// accuracy blends direction accuracy with value closeness equally.
func (a *Aggregator) Suggestions(metric contracts.Metric, stats contracts.BacktestStatistics) []string {
	if stats.Overall.Periods == 0 {
		return nil
	}
	var out []string

	mapeWarn := a.cfg.RevenueMAPEWarn
	if metric == contracts.MetricEPS {
		mapeWarn = a.cfg.EPSMAPEWarn
	}
	if stats.Overall.ValueMAPE > mapeWarn {
		out = append(out, fmt.Sprintf(
			"value MAPE %.1f%% exceeds %.0f%%; consider widening the training window or reviewing method weights",
			stats.Overall.ValueMAPE, mapeWarn))
	}
	if stats.Overall.DirectionAccuracy < a.cfg.DirectionWarn {
		out = append(out, fmt.Sprintf(
			"direction accuracy %.0f%% is below %.0f%%; the ensemble may be chasing noise",
			stats.Overall.DirectionAccuracy*100, a.cfg.DirectionWarn*100))
	}

	valueCloseness := 1 - stats.Overall.ValueMAPE/100
	if valueCloseness < 0 {
		valueCloseness = 0
	}
	combined := 0.5*stats.Overall.DirectionAccuracy + 0.5*valueCloseness
	if combined < a.cfg.CombinedAccuracyWarn {
		out = append(out, fmt.Sprintf(
			"combined accuracy %.2f is below %.2f; retraining the adjustment model may help",
			combined, a.cfg.CombinedAccuracyWarn))
	}

	if stats.AbnormalOnly.Periods > 0 && stats.OperatingOnly.Periods > 0 &&
		stats.AbnormalOnly.ValueMAPE > 2*stats.OperatingOnly.ValueMAPE {
		out = append(out, fmt.Sprintf(
			"abnormal periods degrade accuracy %.1fx; one-off events dominate the misses",
			stats.AbnormalOnly.ValueMAPE/math.Max(stats.OperatingOnly.ValueMAPE, 1e-9)))
	}
	return out
}
