package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dansontsui/taiwan-stock-system-sub002/internal/contracts"
)

func seedMonthly(t *testing.T, repo *MemoryRepository, stockID string, startYear, startMonth int, values ...float64) {
	t.Helper()
	points := make(contracts.Series, len(values))
	p := contracts.NewMonth(startYear, startMonth)
	for i, v := range values {
		points[i] = contracts.Point{Period: p, Value: v}
		p = p.Next()
	}
	require.NoError(t, repo.Put(stockID, contracts.MetricRevenue, points))
}

func TestMemorySeriesRespectsCutoff(t *testing.T) {
	repo := NewMemoryRepository()
	seedMonthly(t, repo, "2330", 2024, 1, 100, 110, 120, 130, 140)

	got, err := repo.Series(context.Background(), "2330", contracts.MetricRevenue, contracts.NewMonth(2024, 3), 12)
	require.NoError(t, err)
	require.Equal(t, 3, got.Len())
	latest, _ := got.Latest()
	assert.True(t, latest.Period.Equal(contracts.NewMonth(2024, 3)),
		"nothing after the cutoff may be returned")
}

func TestMemorySeriesLookback(t *testing.T) {
	repo := NewMemoryRepository()
	seedMonthly(t, repo, "2330", 2024, 1, 100, 110, 120, 130, 140)

	got, err := repo.Series(context.Background(), "2330", contracts.MetricRevenue, contracts.NewMonth(2024, 5), 2)
	require.NoError(t, err)
	require.Equal(t, 2, got.Len())
	assert.Equal(t, 130.0, got[0].Value)
	assert.Equal(t, 140.0, got[1].Value)
}

func TestMemoryActualGrowth(t *testing.T) {
	repo := NewMemoryRepository()
	seedMonthly(t, repo, "2330", 2024, 1, 100, 110)

	got, err := repo.Actual(context.Background(), "2330", contracts.MetricRevenue, contracts.NewMonth(2024, 2))
	require.NoError(t, err)
	assert.True(t, got.Available)
	assert.Equal(t, 110.0, got.Value)
	assert.InDelta(t, 0.1, got.GrowthRate, 1e-9)

	// First observation has no predecessor: growth stays zero.
	first, err := repo.Actual(context.Background(), "2330", contracts.MetricRevenue, contracts.NewMonth(2024, 1))
	require.NoError(t, err)
	assert.True(t, first.Available)
	assert.Equal(t, 0.0, first.GrowthRate)
}

func TestMemoryActualUnavailable(t *testing.T) {
	repo := NewMemoryRepository()
	seedMonthly(t, repo, "2330", 2024, 1, 100)

	got, err := repo.Actual(context.Background(), "2330", contracts.MetricRevenue, contracts.NewMonth(2024, 6))
	require.NoError(t, err)
	assert.False(t, got.Available)
	assert.NotEmpty(t, got.Reason)
	assert.Equal(t, 0.0, got.Value)
}

func TestMemoryDataSufficient(t *testing.T) {
	repo := NewMemoryRepository()
	seedMonthly(t, repo, "2330", 2024, 1, 100, 110, 120)

	ok, err := repo.DataSufficient(context.Background(), "2330", contracts.MetricRevenue, contracts.NewMonth(2024, 2), 3)
	require.NoError(t, err)
	assert.False(t, ok, "only periods at or before the cutoff count")

	ok, err = repo.DataSufficient(context.Background(), "2330", contracts.MetricRevenue, contracts.NewMonth(2024, 3), 3)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryLatestPeriod(t *testing.T) {
	repo := NewMemoryRepository()
	_, ok, err := repo.LatestPeriod(context.Background(), "2330", contracts.MetricRevenue)
	require.NoError(t, err)
	assert.False(t, ok)

	seedMonthly(t, repo, "2330", 2024, 1, 100, 110)
	latest, ok, err := repo.LatestPeriod(context.Background(), "2330", contracts.MetricRevenue)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, latest.Equal(contracts.NewMonth(2024, 2)))
}

func TestMemoryPutRejectsUnordered(t *testing.T) {
	repo := NewMemoryRepository()
	err := repo.Put("2330", contracts.MetricRevenue, contracts.Series{
		{Period: contracts.NewMonth(2024, 2), Value: 1},
		{Period: contracts.NewMonth(2024, 1), Value: 2},
	})
	assert.Error(t, err)
}
