package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"TruthGate/internal/domain/models"
	"TruthGate/internal/services/calibration"
	"TruthGate/pkg/cache"
)

type fakeOplog struct {
	inserted []models.Opportunity
	adjusted []float64
	shrinks  []float64
	err      error
}

func (f *fakeOplog) Insert(_ context.Context, o *models.Opportunity, adjusted, shrink float64) error {
	if f.err != nil {
		return f.err
	}
	f.inserted = append(f.inserted, *o)
	f.adjusted = append(f.adjusted, adjusted)
	f.shrinks = append(f.shrinks, shrink)
	return nil
}

func warmedRunner(t *testing.T, shrink float64) *CalibrationRunner {
	t.Helper()
	key := models.BucketKey{Horizon: models.H30, Regime: "GREEN", Attention: "STABLE"}
	state := &fakeStateStore{stored: &models.CalibrationState{
		Buckets: map[models.BucketKey]models.CalibrationBucket{
			key: {Key: key, TotalSignals: 50, ShrinkFactor: shrink},
		},
		Global: models.GlobalStats{Shrink: shrink},
	}}
	runner := NewCalibrationRunner(newFakeHistory(), state, calibration.NewAggregator(10),
		cache.NewMemoryCache(), noopMetrics{}, testLogger(t))
	if err := runner.Warm(context.Background()); err != nil {
		t.Fatalf("warm: %v", err)
	}
	return runner
}

func intakePayload(t *testing.T, opp models.Opportunity) []byte {
	t.Helper()
	data, err := json.Marshal(opp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func TestIntakeAppliesShrink(t *testing.T) {
	oplog := &fakeOplog{}
	intake := NewOpportunityIntake("truth.opportunities", oplog, warmedRunner(t, 0.85),
		noopMetrics{}, testLogger(t))

	opp := models.Opportunity{
		ID:              "opp-1",
		Ticker:          "AAPL",
		Horizon:         models.H30,
		IssuedAt:        time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC),
		Probability:     0.80,
		RegimeState:     "GREEN",
		AttentionBucket: "STABLE",
	}
	if err := intake.Handle(context.Background(), intakePayload(t, opp)); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if len(oplog.inserted) != 1 {
		t.Fatalf("expected one insert, got %d", len(oplog.inserted))
	}
	if math.Abs(oplog.adjusted[0]-0.68) > 1e-9 {
		t.Fatalf("expected adjusted probability 0.68, got %v", oplog.adjusted[0])
	}
	if oplog.shrinks[0] != 0.85 {
		t.Fatalf("expected shrink 0.85, got %v", oplog.shrinks[0])
	}
}

func TestIntakeDerivesMissingID(t *testing.T) {
	oplog := &fakeOplog{}
	intake := NewOpportunityIntake("truth.opportunities", oplog, warmedRunner(t, 1.0),
		noopMetrics{}, testLogger(t))

	opp := models.Opportunity{
		Ticker:      "TSLA",
		Horizon:     models.H2H,
		IssuedAt:    time.Date(2025, 6, 2, 14, 30, 0, 500000000, time.UTC),
		Probability: 0.6,
	}
	if err := intake.Handle(context.Background(), intakePayload(t, opp)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if got := oplog.inserted[0].ID; got != "TSLA:H2H:2025-06-02T14:30:00" {
		t.Fatalf("unexpected derived id %q", got)
	}
}

func TestIntakeDropsMalformedMessage(t *testing.T) {
	oplog := &fakeOplog{}
	intake := NewOpportunityIntake("truth.opportunities", oplog, warmedRunner(t, 1.0),
		noopMetrics{}, testLogger(t))

	if err := intake.Handle(context.Background(), []byte("{not json")); err != nil {
		t.Fatalf("malformed message should not error: %v", err)
	}
	if len(oplog.inserted) != 0 {
		t.Fatal("malformed message must not be inserted")
	}
}

func TestIntakeDropsInvalidOpportunity(t *testing.T) {
	oplog := &fakeOplog{}
	intake := NewOpportunityIntake("truth.opportunities", oplog, warmedRunner(t, 1.0),
		noopMetrics{}, testLogger(t))

	// probability above 1 fails validation
	opp := models.Opportunity{
		ID:          "opp-bad",
		Ticker:      "AAPL",
		Horizon:     models.H30,
		IssuedAt:    time.Now(),
		Probability: 1.4,
	}
	if err := intake.Handle(context.Background(), intakePayload(t, opp)); err != nil {
		t.Fatalf("invalid message should not error: %v", err)
	}
	if len(oplog.inserted) != 0 {
		t.Fatal("invalid message must not be inserted")
	}
}

func TestIntakeReturnsStoreErrorForRetry(t *testing.T) {
	oplog := &fakeOplog{err: errors.New("clickhouse down")}
	intake := NewOpportunityIntake("truth.opportunities", oplog, warmedRunner(t, 1.0),
		noopMetrics{}, testLogger(t))

	opp := models.Opportunity{
		ID:          "opp-1",
		Ticker:      "AAPL",
		Horizon:     models.H30,
		IssuedAt:    time.Now(),
		Probability: 0.5,
	}
	if err := intake.Handle(context.Background(), intakePayload(t, opp)); err == nil {
		t.Fatal("store failure must surface so the consumer retries")
	}
}
