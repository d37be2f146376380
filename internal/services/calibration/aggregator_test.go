package calibration

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"TruthGate/internal/domain/models"
)

func key(h models.Horizon, regime, attention string) models.BucketKey {
	return models.BucketKey{Horizon: h, Regime: regime, Attention: attention}
}

func TestShrinkTableByPassRate(t *testing.T) {
	agg := NewAggregator(10)
	cases := []struct {
		pass, fail int
		want       float64
	}{
		{15, 35, 0.50}, // 0.30
		{20, 30, 0.70}, // 0.40
		{23, 27, 0.85}, // 0.46
		{26, 24, 0.95}, // 0.52
		{30, 20, 1.00}, // 0.60
	}

	for _, c := range cases {
		state := agg.Aggregate([]models.BucketCounters{{
			Key:       key(models.H30, "GREEN", "STABLE"),
			PassCount: c.pass,
			FailCount: c.fail,
		}}, time.Now())

		b := state.Buckets[key(models.H30, "GREEN", "STABLE")]
		if b.ShrinkFactor != c.want {
			t.Fatalf("pass=%d fail=%d: expected shrink %v, got %v", c.pass, c.fail, c.want, b.ShrinkFactor)
		}
	}
}

func TestInsufficientSamplesUsesDefault(t *testing.T) {
	agg := NewAggregator(10)
	// 0.60 pass rate but only 5 samples: evidence threshold wins.
	state := agg.Aggregate([]models.BucketCounters{{
		Key:       key(models.H2H, "GREEN", "STABLE"),
		PassCount: 3,
		FailCount: 2,
	}}, time.Now())

	b := state.Buckets[key(models.H2H, "GREEN", "STABLE")]
	if b.ShrinkFactor != 0.90 {
		t.Fatalf("expected default shrink 0.90, got %v", b.ShrinkFactor)
	}
}

func TestShrinkNeverExceedsOne(t *testing.T) {
	agg := NewAggregator(10)
	state := agg.Aggregate([]models.BucketCounters{{
		Key:       key(models.HDAY, "GREEN", "STABLE"),
		PassCount: 100,
	}}, time.Now())

	for _, b := range state.Buckets {
		if b.ShrinkFactor > 1.0 || b.ShrinkFactor < 0 {
			t.Fatalf("shrink out of range: %v", b.ShrinkFactor)
		}
	}
	if state.Global.Shrink > 1.0 {
		t.Fatalf("global shrink out of range: %v", state.Global.Shrink)
	}
}

func TestExpiredCountsTowardFailure(t *testing.T) {
	agg := NewAggregator(10)
	// 6 pass, 2 fail, 4 expired: pass rate 0.50, not 0.75.
	state := agg.Aggregate([]models.BucketCounters{{
		Key:          key(models.H30, "GREEN", "STABLE"),
		PassCount:    6,
		FailCount:    2,
		ExpiredCount: 4,
	}}, time.Now())

	b := state.Buckets[key(models.H30, "GREEN", "STABLE")]
	if b.TotalSignals != 12 {
		t.Fatalf("expected 12 total signals, got %d", b.TotalSignals)
	}
	if b.PassRate != 0.5 {
		t.Fatalf("expected pass rate 0.5, got %v", b.PassRate)
	}
	if b.ShrinkFactor != 0.95 {
		t.Fatalf("expected shrink 0.95, got %v", b.ShrinkFactor)
	}
}

func TestGlobalStatsAreSampleWeighted(t *testing.T) {
	agg := NewAggregator(10)
	state := agg.Aggregate([]models.BucketCounters{
		{Key: key(models.H30, "GREEN", "STABLE"), PassCount: 30, FailCount: 10, AvgProbability: 0.8},
		{Key: key(models.H2H, "YELLOW", "UNSTABLE"), PassCount: 5, FailCount: 5, AvgProbability: 0.6},
	}, time.Now())

	g := state.Global
	if g.TotalSignals != 50 || g.TotalPass != 35 {
		t.Fatalf("unexpected totals: %+v", g)
	}
	if g.PassRate != 0.7 {
		t.Fatalf("expected global pass rate 0.7, got %v", g.PassRate)
	}
	want := (0.8*40 + 0.6*10) / 50
	if math.Abs(g.AvgProbability-want) > 1e-9 {
		t.Fatalf("expected weighted avg probability %v, got %v", want, g.AvgProbability)
	}
	if g.Shrink != 1.00 {
		t.Fatalf("expected global shrink 1.00 at 0.7 pass rate, got %v", g.Shrink)
	}
}

func TestEmptyBucketsSkipped(t *testing.T) {
	agg := NewAggregator(10)
	state := agg.Aggregate([]models.BucketCounters{
		{Key: key(models.H30, "GREEN", "STABLE")},
	}, time.Now())

	if len(state.Buckets) != 0 {
		t.Fatalf("expected empty snapshot, got %d buckets", len(state.Buckets))
	}
	if state.Global.Shrink != DefaultShrink {
		t.Fatalf("expected default global shrink with no samples, got %v", state.Global.Shrink)
	}
}

func TestStateJSONRoundTrip(t *testing.T) {
	agg := NewAggregator(10)
	state := agg.Aggregate([]models.BucketCounters{
		{Key: key(models.H30, "GREEN", "STABLE"), PassCount: 30, FailCount: 20, AvgProbability: 0.65},
	}, time.Date(2025, 6, 2, 20, 0, 0, 0, time.UTC))

	data, err := json.Marshal(state)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var restored models.CalibrationState
	if err := json.Unmarshal(data, &restored); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	k := key(models.H30, "GREEN", "STABLE")
	if restored.Buckets[k].ShrinkFactor != state.Buckets[k].ShrinkFactor {
		t.Fatalf("bucket lost in round trip: %+v", restored.Buckets)
	}
	if restored.Version != state.Version {
		t.Fatalf("version lost in round trip")
	}
}

func TestBrierScore(t *testing.T) {
	if got := BrierScore(nil, nil); got != 1.0 {
		t.Fatalf("empty inputs: expected 1.0, got %v", got)
	}
	if got := BrierScore([]float64{0.5}, []float64{1, 0}); got != 1.0 {
		t.Fatalf("mismatched lengths: expected 1.0, got %v", got)
	}

	got := BrierScore([]float64{1, 0}, []float64{1, 0})
	if got != 0 {
		t.Fatalf("perfect predictions: expected 0, got %v", got)
	}

	got = BrierScore([]float64{0.7, 0.4}, []float64{1, 0})
	want := (0.3*0.3 + 0.4*0.4) / 2
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("expected %v, got %v", want, got)
	}
}
