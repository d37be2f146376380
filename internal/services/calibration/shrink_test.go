package calibration

import (
	"testing"
	"time"

	"TruthGate/internal/domain/models"
)

func snapshotWithBucket(shrink, global float64) *models.CalibrationState {
	k := key(models.H30, "GREEN", "STABLE")
	return &models.CalibrationState{
		ComputedAt: time.Now(),
		Buckets: map[models.BucketKey]models.CalibrationBucket{
			k: {Key: k, TotalSignals: 50, ShrinkFactor: shrink},
		},
		Global: models.GlobalStats{TotalSignals: 50, Shrink: global},
	}
}

func TestGetShrinkFactorExactBucket(t *testing.T) {
	state := snapshotWithBucket(0.85, 0.95)
	got := GetShrinkFactor(state, models.H30, "GREEN", "STABLE")
	if got != 0.85 {
		t.Fatalf("expected bucket shrink 0.85, got %v", got)
	}
}

func TestGetShrinkFactorGlobalFallback(t *testing.T) {
	state := snapshotWithBucket(0.85, 0.95)
	got := GetShrinkFactor(state, models.HWEEK, "YELLOW", "CHAOTIC")
	if got != 0.95 {
		t.Fatalf("expected global shrink 0.95, got %v", got)
	}
}

func TestGetShrinkFactorNoState(t *testing.T) {
	got := GetShrinkFactor(nil, models.H30, "GREEN", "STABLE")
	if got != DefaultShrink {
		t.Fatalf("expected default shrink %v, got %v", DefaultShrink, got)
	}
}

func TestApplyShrinkNeverBoosts(t *testing.T) {
	probs := []float64{0, 0.1, 0.5, 0.72, 1.0}
	shrinks := []float64{0, 0.5, 0.9, 1.0, 1.7} // includes a corrupted factor above 1

	for _, p := range probs {
		for _, s := range shrinks {
			got := ApplyShrink(p, s)
			if got > p {
				t.Fatalf("apply_shrink(%v, %v)=%v boosted above raw", p, s, got)
			}
			if got < 0 || got > 1 {
				t.Fatalf("apply_shrink(%v, %v)=%v out of range", p, s, got)
			}
		}
	}
}

func TestApplyShrinkClampsCorruptedFactor(t *testing.T) {
	if got := ApplyShrink(0.8, 2.5); got != 0.8 {
		t.Fatalf("expected corrupted factor clamped to 1.0, got %v", got)
	}
}
