package store

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/dansontsui/taiwan-stock-system-sub002/internal/contracts"
)

// MemoryRepository is a point-in-time repository over in-memory series. It
// backs unit tests and offline experiments with the same cutoff semantics
// the Postgres repository enforces in SQL.
type MemoryRepository struct {
	mu   sync.RWMutex
	data map[string]map[contracts.Metric]contracts.Series
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{data: map[string]map[contracts.Metric]contracts.Series{}}
}

// Put replaces the series for one stock and metric. The series must satisfy
// the ordering invariant.
func (r *MemoryRepository) Put(stockID string, metric contracts.Metric, series contracts.Series) error {
	if err := series.Validate(); err != nil {
		return fmt.Errorf("storing %s/%s: %w", stockID, metric, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	byMetric, ok := r.data[stockID]
	if !ok {
		byMetric = map[contracts.Metric]contracts.Series{}
		r.data[stockID] = byMetric
	}
	byMetric[metric] = series
	return nil
}

func (r *MemoryRepository) series(stockID string, metric contracts.Metric) contracts.Series {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.data[stockID][metric]
}

// Series returns up to lookback observations at or before asOf, oldest
// first.
func (r *MemoryRepository) Series(_ context.Context, stockID string, metric contracts.Metric, asOf contracts.Period, lookback int) (contracts.Series, error) {
	return r.series(stockID, metric).Clip(asOf).Tail(lookback), nil
}

// Actual returns the realized observation for exactly the period, with
// growth measured against the immediately preceding period. A missing or
// zero predecessor yields zero growth.
func (r *MemoryRepository) Actual(_ context.Context, stockID string, metric contracts.Metric, period contracts.Period) (contracts.ActualResult, error) {
	s := r.series(stockID, metric)
	value, ok := s.ValueAt(period)
	if !ok {
		return contracts.ActualResult{
			Period: period,
			Reason: fmt.Sprintf("no %s reported for %s", metric, period),
		}, nil
	}
	growth := 0.0
	if prev, ok := s.ValueAt(period.Prev()); ok && prev != 0 {
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
func (r *MemoryRepository) DataSufficient(_ context.Context, stockID string, metric contracts.Metric, asOf contracts.Period, minPoints int) (bool, error) {
	return r.series(stockID, metric).Clip(asOf).Len() >= minPoints, nil
}

// LatestPeriod returns the most recent reported period.
func (r *MemoryRepository) LatestPeriod(_ context.Context, stockID string, metric contracts.Metric) (contracts.Period, bool, error) {
	latest, ok := r.series(stockID, metric).Latest()
	return latest.Period, ok, nil
}

// StockIDs lists every stock with any data, for batch jobs.
func (r *MemoryRepository) StockIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.data))
	for id := range r.data {
		out = append(out, id)
	}
	return out
}
