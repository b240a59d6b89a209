package forecast

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/dansontsui/taiwan-stock-system-sub002/internal/contracts"
)

// trendGrowth fits a regression through the values and returns the implied
// growth of the next step over the last observation. Revenue and EPS levels
// compound, so the fit is log-linear whenever every value is positive; a
// straight line through a compounding series underestimates the next step.
// Falls back to a linear fit when non-positive values rule the log out.
// Returns false when fewer than 3 points or a zero last value make the rate
// meaningless.
func trendGrowth(values []float64) (float64, bool) {
	if len(values) < 3 {
		return 0, false
	}
	last := values[len(values)-1]
	if last == 0 {
		return 0, false
	}
	xs := make([]float64, len(values))
	for i := range xs {
		xs[i] = float64(i)
	}
	if allPositive(values) {
		logs := make([]float64, len(values))
		for i, v := range values {
			logs[i] = math.Log(v)
		}
		alpha, beta := stat.LinearRegression(xs, logs, nil, false)
		next := math.Exp(alpha + beta*float64(len(values)))
		return (next - last) / last, true
	}
	alpha, beta := stat.LinearRegression(xs, values, nil, false)
	next := alpha + beta*float64(len(values))
	return (next - last) / math.Abs(last), true
}

func allPositive(values []float64) bool {
	for _, v := range values {
		if v <= 0 {
			return false
		}
	}
	return true
}

// movingAverage averages the last n values, or all of them when fewer exist.
func movingAverage(values []float64, n int) float64 {
	if len(values) == 0 {
		return 0
	}
	if n > len(values) {
		n = len(values)
	}
	sum := 0.0
	for _, v := range values[len(values)-n:] {
		sum += v
	}
	return sum / float64(n)
}

// momentumGrowth compares short, mid and long moving averages. Each spread
// measures drift over the distance between the two window centers, not over
// one period, so it is converted to a per-period rate before weighting. The
// short/mid spread carries more weight than the mid/long spread. Drops out
// when a ratio is not positive, which happens around sign flips in EPS.
func momentumGrowth(values []float64, short, mid, long int) (float64, bool) {
	if len(values) < mid {
		return 0, false
	}
	maShort := movingAverage(values, short)
	maMid := movingAverage(values, mid)
	maLong := movingAverage(values, long)
	if maMid == 0 || maLong == 0 {
		return 0, false
	}
	shortRate, ok := perPeriodRate(maShort/maMid, float64(mid-short)/2)
	if !ok {
		return 0, false
	}
	longRate, ok := perPeriodRate(maMid/maLong, float64(long-mid)/2)
	if !ok {
		return 0, false
	}
	return 0.6*shortRate + 0.4*longRate, true
}

// perPeriodRate converts a growth ratio observed over span periods into the
// equivalent single-period rate.
func perPeriodRate(ratio, span float64) (float64, bool) {
	if ratio <= 0 || span <= 0 {
		return 0, false
	}
	return math.Pow(ratio, 1/span) - 1, true
}

// yoyGrowth predicts the target period's value as the year-ago counterpart
// scaled by the average recent year-over-year growth, expressed as growth
// over the latest observation. Drops out when the year-ago counterpart or a
// usable latest value is missing.
func yoyGrowth(s contracts.Series, target contracts.Period) (float64, bool) {
	const maxSamples = 3
	var sum float64
	var n int
	for i := s.Len() - 1; i >= 0 && n < maxSamples; i-- {
		cur := s[i]
		prev, ok := s.ValueAt(cur.Period.YearAgo())
		if !ok || prev == 0 {
			continue
		}
		sum += (cur.Value - prev) / math.Abs(prev)
		n++
	}
	if n == 0 {
		return 0, false
	}
	yearAgo, ok := s.ValueAt(target.YearAgo())
	if !ok {
		return 0, false
	}
	latest, _ := s.Latest()
	if latest.Value == 0 {
		return 0, false
	}
	predicted := yearAgo * (1 + sum/float64(n))
	return (predicted - latest.Value) / math.Abs(latest.Value), true
}

// seasonalFactor estimates how the target month deviates from a typical
// month. Each observation is normalized by its trailing 12-month average so
// trend growth cancels out, then the target month's mean ratio is divided by
// the grand mean ratio. Stays neutral at 1 with fewer than minObs
// observations or when the target month has no normalized sample.
func seasonalFactor(s contracts.Series, targetMonth, minObs int) float64 {
	const window = 12
	if s.Len() < minObs {
		return 1
	}
	var monthSum float64
	var monthN int
	var grandSum float64
	var grandN int
	for i := window - 1; i < s.Len(); i++ {
		ma := 0.0
		for j := i - window + 1; j <= i; j++ {
			ma += s[j].Value
		}
		ma /= window
		if ma == 0 {
			continue
		}
		ratio := s[i].Value / ma
		grandSum += ratio
		grandN++
		if s[i].Period.MonthOfYear() == targetMonth {
			monthSum += ratio
			monthN++
		}
	}
	if grandN == 0 || monthN == 0 || grandSum == 0 {
		return 1
	}
	factor := (monthSum / float64(monthN)) / (grandSum / float64(grandN))
	if factor <= 0 || math.IsNaN(factor) || math.IsInf(factor, 0) {
		return 1
	}
	return factor
}

// relativeStd measures dispersion of the method estimates as std over mean
// magnitude; the small offset keeps near-zero means from exploding the ratio.
func relativeStd(estimates []float64) float64 {
	if len(estimates) < 2 {
		return math.Inf(1)
	}
	std := stat.StdDev(estimates, nil)
	meanAbs := 0.0
	for _, e := range estimates {
		meanAbs += math.Abs(e)
	}
	meanAbs /= float64(len(estimates))
	return std / (meanAbs + 0.01)
}

// confidenceFromDispersion maps relative std onto the three-level label.
func confidenceFromDispersion(rs float64, cfg contracts.ForecastConfig) contracts.Confidence {
	switch {
	case rs < cfg.HighConfidenceCV:
		return contracts.ConfidenceHigh
	case rs < cfg.MediumConfidenceCV:
		return contracts.ConfidenceMedium
	default:
		return contracts.ConfidenceLow
	}
}

// slope returns the OLS slope per period of the values.
func slope(values []float64) (float64, bool) {
	if len(values) < 3 {
		return 0, false
	}
	xs := make([]float64, len(values))
	for i := range xs {
		xs[i] = float64(i)
	}
	_, beta := stat.LinearRegression(xs, values, nil, false)
	if math.IsNaN(beta) || math.IsInf(beta, 0) {
		return 0, false
	}
	return beta, true
}

// clampGrowth bounds a growth rate to the configured window and replaces
// non-finite values with zero.
func clampGrowth(g float64, cfg contracts.ForecastConfig) float64 {
	if math.IsNaN(g) || math.IsInf(g, 0) {
		return 0
	}
	if g > cfg.GrowthCeiling {
		return cfg.GrowthCeiling
	}
	if g < cfg.GrowthFloor {
		return cfg.GrowthFloor
	}
	return g
}

// blendEstimates combines the available method estimates with their weights
// renormalized over the methods that actually produced a value.
func blendEstimates(estimates []contracts.MethodEstimate) (float64, bool) {
	var sum, weight float64
	for _, e := range estimates {
		sum += e.Growth * e.Weight
		weight += e.Weight
	}
	if weight == 0 {
		return 0, false
	}
	return sum / weight, true
}
