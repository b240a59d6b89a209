package store

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dansontsui/taiwan-stock-system-sub002/internal/contracts"
	"github.com/dansontsui/taiwan-stock-system-sub002/pkg/redis"
)

// Historical filings are effectively immutable once reported, so series
// reads tolerate a long TTL; the latest-period lookup must stay fresh
// because new filings move it.
const (
	seriesTTL = redis.TTLLong
	latestTTL = redis.TTLShort
)

// CachedRepository decorates a Repository with a Redis read-through cache.
// With caching disabled every call passes straight through.
type CachedRepository struct {
	inner contracts.Repository
	cache *redis.Cache
	log   zerolog.Logger
}

// NewCachedRepository wraps inner with the cache.
func NewCachedRepository(inner contracts.Repository, cache *redis.Cache, log zerolog.Logger) *CachedRepository {
	return &CachedRepository{
		inner: inner,
		cache: cache,
		log:   log.With().Str("component", "store.cache").Logger(),
	}
}

func seriesKey(stockID string, metric contracts.Metric, asOf contracts.Period, lookback int) string {
	return fmt.Sprintf("series:%s:%s:%s:%d", stockID, metric, asOf, lookback)
}

// Series serves from cache when possible. Cache failures degrade to the
// inner repository with a log line; a broken cache must never fail a read.
func (r *CachedRepository) Series(ctx context.Context, stockID string, metric contracts.Metric, asOf contracts.Period, lookback int) (contracts.Series, error) {
	key := seriesKey(stockID, metric, asOf, lookback)

	var cached contracts.Series
	found, err := r.cache.Get(ctx, key, &cached)
	if err != nil {
		r.log.Warn().Err(err).Str("key", key).Msg("cache read failed")
	} else if found {
		return cached, nil
	}

	series, err := r.inner.Series(ctx, stockID, metric, asOf, lookback)
	if err != nil {
		return nil, err
	}
	if err := r.cache.Set(ctx, key, series, seriesTTL); err != nil {
		r.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
	return series, nil
}

// Actual is not cached: it is a two-row read and the latest filings are
// exactly the rows that change.
func (r *CachedRepository) Actual(ctx context.Context, stockID string, metric contracts.Metric, period contracts.Period) (contracts.ActualResult, error) {
	return r.inner.Actual(ctx, stockID, metric, period)
}

// DataSufficient passes through; it shares the inner repository's reads.
func (r *CachedRepository) DataSufficient(ctx context.Context, stockID string, metric contracts.Metric, asOf contracts.Period, minPoints int) (bool, error) {
	return r.inner.DataSufficient(ctx, stockID, metric, asOf, minPoints)
}

// LatestPeriod serves from cache with a short TTL.
func (r *CachedRepository) LatestPeriod(ctx context.Context, stockID string, metric contracts.Metric) (contracts.Period, bool, error) {
	key := fmt.Sprintf("latest:%s:%s", stockID, metric)

	var cached contracts.Period
	found, err := r.cache.Get(ctx, key, &cached)
	if err != nil {
		r.log.Warn().Err(err).Str("key", key).Msg("cache read failed")
	} else if found && !cached.IsZero() {
		return cached, true, nil
	}

	period, ok, err := r.inner.LatestPeriod(ctx, stockID, metric)
	if err != nil || !ok {
		return period, ok, err
	}
	if err := r.cache.Set(ctx, key, period, latestTTL); err != nil {
		r.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
	return period, true, nil
}
