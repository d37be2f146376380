package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"TruthGate/internal/domain/models"
	"TruthGate/internal/services/calibration"
	"TruthGate/pkg/cache"
)

type fakeStateStore struct {
	mu        sync.Mutex
	published *models.CalibrationState
	stored    *models.CalibrationState
}

func (f *fakeStateStore) ExecutionEnabled(context.Context) (bool, error) { return true, nil }

func (f *fakeStateStore) RegimeStatus(context.Context) (models.RegimeStatus, error) {
	return models.RegimeStatus{State: models.RegimeApproved}, nil
}

func (f *fakeStateStore) PublishCalibration(_ context.Context, state *models.CalibrationState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = state
	return nil
}

func (f *fakeStateStore) LoadCalibration(context.Context) (*models.CalibrationState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stored, nil
}

func counters(h models.Horizon, pass, fail, expired int, avgProb float64) models.BucketCounters {
	return models.BucketCounters{
		Key:            models.BucketKey{Horizon: h, Regime: "GREEN", Attention: "STABLE"},
		PassCount:      pass,
		FailCount:      fail,
		ExpiredCount:   expired,
		AvgProbability: avgProb,
	}
}

func TestCalibrationRunOncePublishesSnapshot(t *testing.T) {
	history := newFakeHistory()
	history.counters = []models.BucketCounters{
		counters(models.H30, 12, 4, 4, 0.7), // rate 0.6 over 20 samples
	}
	state := &fakeStateStore{}

	runner := NewCalibrationRunner(history, state, calibration.NewAggregator(10),
		cache.NewMemoryCache(), noopMetrics{}, testLogger(t))

	if err := runner.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}

	snap := runner.Snapshot()
	if snap == nil {
		t.Fatal("expected a snapshot after run")
	}
	if state.published == nil || state.published.Version != snap.Version {
		t.Fatalf("expected published snapshot to match local one")
	}

	if got := runner.ShrinkFor(models.H30, "GREEN", "STABLE"); got != 1.00 {
		t.Fatalf("expected shrink 1.00 for 0.60 pass rate, got %v", got)
	}
}

func TestCalibrationShrinkForBeforeAnyRun(t *testing.T) {
	runner := NewCalibrationRunner(newFakeHistory(), &fakeStateStore{},
		calibration.NewAggregator(10), cache.NewMemoryCache(), noopMetrics{}, testLogger(t))

	if got := runner.ShrinkFor(models.H30, "GREEN", "STABLE"); got != calibration.DefaultShrink {
		t.Fatalf("expected default shrink before any run, got %v", got)
	}
}

func TestCalibrationRunSkippedWhenLockHeld(t *testing.T) {
	locks := cache.NewMemoryCache()
	if ok, _ := locks.TryLock(context.Background(), "calibration:lock", time.Minute); !ok {
		t.Fatal("setup: could not take lock")
	}

	history := newFakeHistory()
	history.counters = []models.BucketCounters{counters(models.H30, 12, 8, 0, 0.7)}
	state := &fakeStateStore{}

	runner := NewCalibrationRunner(history, state, calibration.NewAggregator(10),
		locks, noopMetrics{}, testLogger(t))

	if err := runner.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if state.published != nil {
		t.Fatal("run should have been skipped while the lock was held")
	}
}

func TestCalibrationWarmLoadsPublishedState(t *testing.T) {
	key := models.BucketKey{Horizon: models.H2H, Regime: "GREEN", Attention: "HOT"}
	state := &fakeStateStore{stored: &models.CalibrationState{
		ComputedAt: time.Now(),
		Version:    42,
		Buckets: map[models.BucketKey]models.CalibrationBucket{
			key: {Key: key, TotalSignals: 30, ShrinkFactor: 0.70},
		},
		Global: models.GlobalStats{Shrink: 0.95},
	}}

	runner := NewCalibrationRunner(newFakeHistory(), state, calibration.NewAggregator(10),
		cache.NewMemoryCache(), noopMetrics{}, testLogger(t))

	if err := runner.Warm(context.Background()); err != nil {
		t.Fatalf("warm: %v", err)
	}
	if got := runner.ShrinkFor(models.H2H, "GREEN", "HOT"); got != 0.70 {
		t.Fatalf("expected warmed bucket shrink 0.70, got %v", got)
	}
	if got := runner.ShrinkFor(models.HWEEK, "RED", "COLD"); got != 0.95 {
		t.Fatalf("expected global fallback 0.95, got %v", got)
	}
}
