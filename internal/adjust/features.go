package adjust

import (
	"fmt"
	"hash/fnv"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/dansontsui/taiwan-stock-system-sub002/internal/contracts"
)

// featureWindow bounds how much history each feature looks at.
const featureWindow = 12

// ExtractFeatures builds the model input from point-in-time history. Margin
// features degrade to zero when their series are too short; revenue
// volatility is required and its absence fails the extraction.
func ExtractFeatures(stockID string, history contracts.FeatureHistory) (contracts.FeatureVector, error) {
	growth := history.Revenue.Tail(featureWindow).GrowthRates()
	if len(growth) < 2 {
		return contracts.FeatureVector{}, fmt.Errorf("revenue history too short for volatility: %d growth samples", len(growth))
	}
	vol := stat.StdDev(growth, nil)
	if math.IsNaN(vol) || math.IsInf(vol, 0) {
		return contracts.FeatureVector{}, fmt.Errorf("revenue volatility is not finite")
	}

	return contracts.FeatureVector{
		RevenueVolatility: vol,
		MarginTrend:       seriesSlope(history.NetMargin),
		OpexEfficiency:    opexEfficiency(history.GrossMargin, history.OperatingMargin),
		IndustryMomentum:  industryMomentum(stockID),
		MarketSentiment:   0,
	}, nil
}

// seriesSlope is the OLS slope per period, zero when the series is too short.
func seriesSlope(s contracts.Series) float64 {
	if s.Len() < 3 {
		return 0
	}
	values := s.Tail(featureWindow).Values()
	xs := make([]float64, len(values))
	for i := range xs {
		xs[i] = float64(i)
	}
	_, beta := stat.LinearRegression(xs, values, nil, false)
	if math.IsNaN(beta) || math.IsInf(beta, 0) {
		return 0
	}
	return beta
}

// opexEfficiency is the negated slope of the gross-to-operating margin gap:
// positive when operating costs grow slower than gross profit.
func opexEfficiency(gross, operating contracts.Series) float64 {
	n := gross.Len()
	if operating.Len() < n {
		n = operating.Len()
	}
	if n < 3 {
		return 0
	}
	g := gross.Tail(n)
	o := operating.Tail(n)
	gap := make(contracts.Series, 0, n)
	for i := 0; i < n; i++ {
		if !g[i].Period.Equal(o[i].Period) {
			return 0
		}
		gap = append(gap, contracts.Point{Period: g[i].Period, Value: g[i].Value - o[i].Value})
	}
	return -seriesSlope(gap)
}

// industryMomentum is a deterministic per-stock placeholder in [-0.05, 0.05]
// until a real sector feed is wired in. The hash keeps it stable across runs
// so persisted models remain valid.
func industryMomentum(stockID string) float64 {
	h := fnv.New32a()
	h.Write([]byte(stockID))
	return (float64(h.Sum32()%1000)/999.0 - 0.5) * 0.1
}
