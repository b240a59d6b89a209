package adjust

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/dansontsui/taiwan-stock-system-sub002/internal/contracts"
)

const artifactVersion = 1

// artifact is the persisted model format. FeatureCount is stored so a model
// trained against an older feature layout is rejected instead of silently
// producing garbage.
type artifact struct {
	Version      int       `json:"version"`
	FeatureCount int       `json:"feature_count"`
	Weights      []float64 `json:"weights"`
	Samples      int       `json:"samples"`
	TrainedAt    time.Time `json:"trained_at"`
}

// TrainingSample pairs a feature vector with the clipped correction label
// observed after the actual value arrived.
type TrainingSample struct {
	Features contracts.FeatureVector `json:"features"`
	Label    float64                 `json:"label"`
}

// TrainReport summarizes a completed fit.
type TrainReport struct {
	Samples   int       `json:"samples"`
	Discarded int       `json:"discarded"`
	TrainedAt time.Time `json:"trained_at"`
}

// Model is a linear correction on top of the formula forecast. Its output
// factor is always clipped to the configured bound, and every failure path
// degrades to a neutral adjustment rather than an error.
type Model struct {
	cfg   contracts.ModelConfig
	store contracts.ModelStore
	log   zerolog.Logger

	mu        sync.RWMutex
	weights   []float64 // intercept first, then FeatureCount coefficients
	samples   int
	trainedAt time.Time
}

// NewModel creates an untrained model. Call Load to resume from a persisted
// artifact.
func NewModel(cfg contracts.ModelConfig, store contracts.ModelStore, log zerolog.Logger) *Model {
	return &Model{
		cfg:   cfg,
		store: store,
		log:   log.With().Str("component", "adjust.model").Logger(),
	}
}

// Trained reports whether the model holds fitted weights.
func (m *Model) Trained() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.weights != nil
}

// Load restores the persisted artifact. A missing artifact leaves the model
// untrained and is not an error; a corrupt or incompatible one is.
func (m *Model) Load(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	blob, err := m.store.LoadModel(ctx, m.cfg.ArtifactName)
	if errors.Is(err, contracts.ErrNotFound) {
		m.log.Info().Str("artifact", m.cfg.ArtifactName).Msg("no persisted model, starting untrained")
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading model artifact: %w", err)
	}
	var a artifact
	if err := json.Unmarshal(blob, &a); err != nil {
		return fmt.Errorf("decoding model artifact: %w", err)
	}
	if a.Version != artifactVersion || a.FeatureCount != contracts.FeatureCount ||
		len(a.Weights) != contracts.FeatureCount+1 {
		return fmt.Errorf("%w: artifact version %d with %d features does not match",
			contracts.ErrModelUnavailable, a.Version, a.FeatureCount)
	}
	m.mu.Lock()
	m.weights = a.Weights
	m.samples = a.Samples
	m.trainedAt = a.TrainedAt
	m.mu.Unlock()
	m.log.Info().
		Int("samples", a.Samples).
		Time("trained_at", a.TrainedAt).
		Msg("adjustment model restored")
	return nil
}

// Train fits the linear weights by least squares. Labels are clipped to the
// label bound; samples whose raw label magnitude reaches the discard
// threshold or is not finite are dropped before fitting.
func (m *Model) Train(ctx context.Context, samples []TrainingSample) (TrainReport, error) {
	kept := make([]TrainingSample, 0, len(samples))
	for _, s := range samples {
		label, ok := clipLabel(s.Label, m.cfg)
		if !ok {
			continue
		}
		s.Label = label
		kept = append(kept, s)
	}
	discarded := len(samples) - len(kept)

	if len(kept) < m.cfg.MinSamples {
		return TrainReport{}, fmt.Errorf("%w: %d usable training samples, need %d",
			contracts.ErrInsufficientData, len(kept), m.cfg.MinSamples)
	}

	cols := contracts.FeatureCount + 1
	x := mat.NewDense(len(kept), cols, nil)
	y := mat.NewVecDense(len(kept), nil)
	for i, s := range kept {
		x.Set(i, 0, 1)
		for j, v := range s.Features.Slice() {
			x.Set(i, j+1, v)
		}
		y.SetVec(i, s.Label)
	}

	// Ridge-regularized normal equations. Constant features (market
	// sentiment is currently always zero) make the plain design matrix rank
	// deficient, so an unregularized QR solve would fail.
	const ridge = 1e-6
	var xtx mat.Dense
	xtx.Mul(x.T(), x)
	for i := 0; i < cols; i++ {
		xtx.Set(i, i, xtx.At(i, i)+ridge)
	}
	var xty mat.VecDense
	xty.MulVec(x.T(), y)

	var beta mat.VecDense
	if err := beta.SolveVec(&xtx, &xty); err != nil {
		return TrainReport{}, fmt.Errorf("solving least squares: %w", err)
	}
	weights := make([]float64, cols)
	for i := range weights {
		w := beta.AtVec(i)
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return TrainReport{}, fmt.Errorf("least squares produced non-finite weight at %d", i)
		}
		weights[i] = w
	}

	now := time.Now().UTC()
	m.mu.Lock()
	m.weights = weights
	m.samples = len(kept)
	m.trainedAt = now
	m.mu.Unlock()

	report := TrainReport{Samples: len(kept), Discarded: discarded, TrainedAt: now}
	m.log.Info().
		Int("samples", report.Samples).
		Int("discarded", report.Discarded).
		Msg("adjustment model trained")

	if err := m.Save(ctx); err != nil {
		return report, err
	}
	return report, nil
}

// Save persists the current weights. A nil store makes Save a no-op.
func (m *Model) Save(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	m.mu.RLock()
	a := artifact{
		Version:      artifactVersion,
		FeatureCount: contracts.FeatureCount,
		Weights:      m.weights,
		Samples:      m.samples,
		TrainedAt:    m.trainedAt,
	}
	m.mu.RUnlock()
	if a.Weights == nil {
		return fmt.Errorf("%w: nothing to save", contracts.ErrModelUnavailable)
	}
	blob, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encoding model artifact: %w", err)
	}
	if err := m.store.SaveModel(ctx, m.cfg.ArtifactName, blob); err != nil {
		return fmt.Errorf("persisting model artifact: %w", err)
	}
	return nil
}

// Adjust implements the forecast adjuster contract. It never fails: missing
// features or an untrained model yield a neutral result with a reason.
func (m *Model) Adjust(_ context.Context, stockID string, _ contracts.Metric, formulaGrowth float64, history contracts.FeatureHistory) contracts.AdjustmentResult {
	neutral := func(reason contracts.FallbackReason) contracts.AdjustmentResult {
		return contracts.AdjustmentResult{
			AdjustedGrowth: formulaGrowth,
			Confidence:     contracts.ConfidenceNA,
			Reason:         reason,
		}
	}

	if !m.Trained() {
		return neutral(contracts.FallbackModelUnavailable)
	}
	features, err := ExtractFeatures(stockID, history)
	if err != nil {
		m.log.Debug().Err(err).Str("stock_id", stockID).Msg("feature extraction failed, neutral adjustment")
		return neutral(contracts.FallbackFeatureExtraction)
	}

	m.mu.RLock()
	weights := m.weights
	samples := m.samples
	m.mu.RUnlock()

	raw := weights[0]
	for i, v := range features.Slice() {
		raw += weights[i+1] * v
	}
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return neutral(contracts.FallbackFeatureExtraction)
	}

	factor := raw
	if factor > m.cfg.AdjustmentBound {
		factor = m.cfg.AdjustmentBound
	} else if factor < -m.cfg.AdjustmentBound {
		factor = -m.cfg.AdjustmentBound
	}

	return contracts.AdjustmentResult{
		Factor:         factor,
		RawFactor:      raw,
		AdjustedGrowth: formulaGrowth * (1 + factor),
		Confidence:     confidenceFromSamples(samples),
	}
}

// Label converts a formula/actual growth pair into a training label. Returns
// false when the formula growth is too small to scale against, or the raw
// correction is discarded as an outlier.
func Label(formulaGrowth, actualGrowth float64, cfg contracts.ModelConfig) (float64, bool) {
	const minBase = 1e-6
	if math.Abs(formulaGrowth) < minBase {
		return 0, false
	}
	raw := actualGrowth/formulaGrowth - 1
	return clipLabel(raw, cfg)
}

func clipLabel(raw float64, cfg contracts.ModelConfig) (float64, bool) {
	if math.IsNaN(raw) || math.IsInf(raw, 0) || math.Abs(raw) >= cfg.LabelDiscard {
		return 0, false
	}
	if raw > cfg.LabelBound {
		return cfg.LabelBound, true
	}
	if raw < -cfg.LabelBound {
		return -cfg.LabelBound, true
	}
	return raw, true
}

func confidenceFromSamples(n int) contracts.Confidence {
	switch {
	case n >= 50:
		return contracts.ConfidenceHigh
	case n >= 20:
		return contracts.ConfidenceMedium
	default:
		return contracts.ConfidenceLow
	}
}
