package contracts

// Confidence labels a forecast by how much the underlying estimators agree.
type Confidence string

const (
	ConfidenceHigh   Confidence = "High"
	ConfidenceMedium Confidence = "Medium"
	ConfidenceLow    Confidence = "Low"
	ConfidenceNA     Confidence = "N/A"
)

// CombineConfidence merges the formula confidence with the adjustment-model
// confidence: both High gives High, a Low paired with anything below High
// gives Low, everything else gives Medium. N/A counts as below High.
func CombineConfidence(formula, adjustment Confidence) Confidence {
	if formula == ConfidenceHigh && adjustment == ConfidenceHigh {
		return ConfidenceHigh
	}
	if formula == ConfidenceLow && adjustment != ConfidenceHigh {
		return ConfidenceLow
	}
	if adjustment == ConfidenceLow && formula != ConfidenceHigh {
		return ConfidenceLow
	}
	if (formula == ConfidenceNA || adjustment == ConfidenceNA) &&
		formula != ConfidenceHigh && adjustment != ConfidenceHigh {
		return ConfidenceLow
	}
	return ConfidenceMedium
}

// FallbackReason names the recovery path a component took instead of
// producing a live estimate. Empty means no fallback was needed.
type FallbackReason string

const (
	FallbackNone              FallbackReason = ""
	FallbackInsufficientData  FallbackReason = "insufficient_data"
	FallbackModelUnavailable  FallbackReason = "model_unavailable"
	FallbackFeatureExtraction FallbackReason = "feature_extraction_failed"
	FallbackRepositoryError   FallbackReason = "repository_error"
)

// MethodEstimate is one sub-method's contribution to an ensemble forecast,
// kept for attribution and weight-tuning diagnostics.
type MethodEstimate struct {
	Method     string     `json:"method"`
	Growth     float64    `json:"growth"`
	Weight     float64    `json:"weight"`
	Confidence Confidence `json:"confidence"`
	Note       string     `json:"note,omitempty"`
}

// TrainingRange records the data range an estimate actually used.
type TrainingRange struct {
	Start      Period `json:"start"`
	End        Period `json:"end"`
	DataPoints int    `json:"data_points"`
}

// AdjustmentResult is the learned model's bounded correction on top of the
// formula estimate. A zero Factor with a non-empty Reason means the model
// fell back to a no-op.
type AdjustmentResult struct {
	Factor         float64        `json:"factor"`
	RawFactor      float64        `json:"raw_factor"`
	AdjustedGrowth float64        `json:"adjusted_growth"`
	Confidence     Confidence     `json:"confidence"`
	Reason         FallbackReason `json:"reason,omitempty"`
}

// Neutral reports whether the adjustment is a no-op.
func (a AdjustmentResult) Neutral() bool { return a.Factor == 0 }

// ForecastResult is the immutable output of one forecast for one target
// period.
type ForecastResult struct {
	StockID        string           `json:"stock_id"`
	Target         Period           `json:"target"`
	GrowthRate     float64          `json:"growth_rate"`
	PredictedValue float64          `json:"predicted_value"`
	Confidence     Confidence       `json:"confidence"`
	Breakdown      []MethodEstimate `json:"method_breakdown"`
	SeasonalFactor float64          `json:"seasonal_factor,omitempty"`
	FormulaGrowth  float64          `json:"formula_growth"`
	Adjustment     AdjustmentResult `json:"adjustment"`
	TrainingRange  TrainingRange    `json:"training_range"`
	Fallback       FallbackReason   `json:"fallback,omitempty"`
}

// Usable reports whether the forecast carries a live estimate rather than a
// neutral fallback value.
func (f ForecastResult) Usable() bool { return f.Fallback == FallbackNone }
