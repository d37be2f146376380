package calibration

import "TruthGate/internal/domain/models"

// GetShrinkFactor resolves the shrink factor for one bucket: the exact
// bucket if present, else the snapshot's global fallback, else the
// conservative default when no calibration state exists at all.
func GetShrinkFactor(state *models.CalibrationState, horizon models.Horizon, regime, attention string) float64 {
	if state == nil {
		return DefaultShrink
	}

	key := models.BucketKey{Horizon: horizon, Regime: regime, Attention: attention}
	if bucket, ok := state.Buckets[key]; ok {
		return bucket.ShrinkFactor
	}
	return state.Global.Shrink
}

// ApplyShrink discounts a raw probability. The factor is clamped to at most
// 1.0 before multiplying: even a corrupted bucket must never boost a
// probability above its raw value. The result is clamped to [0, 1].
func ApplyShrink(rawProbability, shrinkFactor float64) float64 {
	if shrinkFactor > 1.0 {
		shrinkFactor = 1.0
	}

	adjusted := rawProbability * shrinkFactor
	if adjusted < 0.0 {
		return 0.0
	}
	if adjusted > 1.0 {
		return 1.0
	}
	return adjusted
}
