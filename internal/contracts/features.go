package contracts

// FeatureHistory bundles the point-in-time series the adjustment model
// extracts its features from. Every series is already clipped to the
// forecast cutoff by the repository that produced it.
type FeatureHistory struct {
	Revenue         Series
	NetMargin       Series
	GrossMargin     Series
	OperatingMargin Series
}

// FeatureVector is the fixed-order numeric input to the learned adjustment
// model. Order and length are part of the persisted model format.
type FeatureVector struct {
	RevenueVolatility float64 `json:"revenue_volatility"`
	MarginTrend       float64 `json:"margin_trend"`
	OpexEfficiency    float64 `json:"opex_efficiency"`
	IndustryMomentum  float64 `json:"industry_momentum"`
	MarketSentiment   float64 `json:"market_sentiment"`
}

// Slice returns the vector in canonical order.
func (f FeatureVector) Slice() []float64 {
	return []float64{
		f.RevenueVolatility,
		f.MarginTrend,
		f.OpexEfficiency,
		f.IndustryMomentum,
		f.MarketSentiment,
	}
}

// FeatureCount is the dimensionality of FeatureVector.
const FeatureCount = 5
