package models

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"
)

func snapshotForTest() CalibrationState {
	buckets := map[BucketKey]CalibrationBucket{}
	for _, h := range []Horizon{HWEEK, H30, HDAY, H2H} {
		for _, regime := range []string{"RED", "GREEN", "YELLOW"} {
			key := BucketKey{Horizon: h, Regime: regime, Attention: "HIGH"}
			buckets[key] = CalibrationBucket{Key: key, TotalSignals: 12, PassCount: 7, ShrinkFactor: 0.95}
		}
	}
	return CalibrationState{
		ComputedAt: time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC),
		Version:    3,
		Buckets:    buckets,
		Global:     GlobalStats{TotalSignals: 144, Shrink: 0.85},
	}
}

func TestCalibrationStateMarshalIsDeterministic(t *testing.T) {
	state := snapshotForTest()

	first, err := json.Marshal(state)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for i := 0; i < 20; i++ {
		next, err := json.Marshal(state)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if !bytes.Equal(first, next) {
			t.Fatalf("marshal %d differs from first:\n%s\n%s", i, first, next)
		}
	}
}

func TestCalibrationStateMarshalOrdersBuckets(t *testing.T) {
	data, err := json.Marshal(snapshotForTest())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded struct {
		Buckets []CalibrationBucket `json:"buckets"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(decoded.Buckets) != 12 {
		t.Fatalf("expected 12 buckets, got %d", len(decoded.Buckets))
	}
	for i := 1; i < len(decoded.Buckets); i++ {
		prev, cur := decoded.Buckets[i-1].Key, decoded.Buckets[i].Key
		if prev.Horizon > cur.Horizon ||
			(prev.Horizon == cur.Horizon && prev.Regime > cur.Regime) {
			t.Fatalf("buckets out of order at %d: %+v before %+v", i, prev, cur)
		}
	}
}

func TestCalibrationStateRoundTrip(t *testing.T) {
	state := snapshotForTest()

	data, err := json.Marshal(state)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got CalibrationState
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got.Buckets) != len(state.Buckets) {
		t.Fatalf("bucket count mismatch: %d vs %d", len(got.Buckets), len(state.Buckets))
	}
	key := BucketKey{Horizon: H30, Regime: "GREEN", Attention: "HIGH"}
	if got.Buckets[key] != state.Buckets[key] {
		t.Fatalf("bucket mismatch: %+v vs %+v", got.Buckets[key], state.Buckets[key])
	}
}
