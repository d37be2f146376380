package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"TruthGate/internal/domain/models"
	"TruthGate/internal/services/truth"
	"TruthGate/pkg/logger"
)

type noopMetrics struct{}

func (noopMetrics) RecordEvaluation(string, string)      {}
func (noopMetrics) RecordGatewayDecision(string, string) {}
func (noopMetrics) RecordCalibrationRun(int)             {}
func (noopMetrics) RecordError(string)                   {}
func (noopMetrics) RecordLatency(string, float64)        {}

type fakeCandleStore struct {
	entry      *models.Candle
	entryErr   error
	forward    []models.Candle
	forwardErr error
	atr        float64
	atrErr     error

	// series, when set, answers ForwardCandles by filtering [from, to]
	// inclusively, the same window the ClickHouse store serves.
	series []models.Candle
}

func (f *fakeCandleStore) EntryCandle(context.Context, string, time.Time, time.Duration) (*models.Candle, error) {
	return f.entry, f.entryErr
}

func (f *fakeCandleStore) ForwardCandles(_ context.Context, _ string, from, to time.Time) ([]models.Candle, error) {
	if f.series == nil {
		return f.forward, f.forwardErr
	}
	var out []models.Candle
	for _, c := range f.series {
		if !c.Bucket.Before(from) && !c.Bucket.After(to) {
			out = append(out, c)
		}
	}
	return out, f.forwardErr
}

func (f *fakeCandleStore) ATR(context.Context, string, time.Time, int) (float64, error) {
	return f.atr, f.atrErr
}

type fakeHistory struct {
	mu       sync.Mutex
	pending  []models.Opportunity
	results  map[string]*models.EvaluationResult
	counters []models.BucketCounters
	listErr  error
}

func newFakeHistory(pending ...models.Opportunity) *fakeHistory {
	return &fakeHistory{
		pending: pending,
		results: make(map[string]*models.EvaluationResult),
	}
}

func (f *fakeHistory) Unevaluated(context.Context, time.Time, int) ([]models.Opportunity, error) {
	return f.pending, f.listErr
}

func (f *fakeHistory) HasResult(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.results[id]
	return ok, nil
}

func (f *fakeHistory) AppendResult(_ context.Context, res *models.EvaluationResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[res.OpportunityID] = res
	return nil
}

func (f *fakeHistory) BucketCounters(context.Context, time.Duration) ([]models.BucketCounters, error) {
	return f.counters, nil
}

type fakePublisher struct {
	mu        sync.Mutex
	published []string
}

func (f *fakePublisher) Publish(_ context.Context, _ string, key []byte, _ interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, string(key))
	return nil
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func pendingOpp(id string) models.Opportunity {
	return models.Opportunity{
		ID:          id,
		Ticker:      "AAPL",
		Horizon:     models.H30,
		IssuedAt:    time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC),
		Probability: 0.7,
		RegimeState: "GREEN",
	}
}

func candle(minute int, high, low, close float64) models.Candle {
	return models.Candle{
		Bucket: time.Date(2025, 6, 2, 14, 30+minute, 0, 0, time.UTC),
		Ticker: "AAPL",
		High:   high,
		Low:    low,
		Close:  close,
	}
}

func TestRunOncePassOutcome(t *testing.T) {
	entry := candle(0, 501, 499, 500)
	store := &fakeCandleStore{
		entry: &entry,
		atr:   2.0,
		forward: []models.Candle{
			candle(1, 502, 499, 500),
			candle(2, 505, 500, 504), // reaches 500 + 2*2.0 target
		},
	}
	history := newFakeHistory(pendingOpp("opp-1"))
	pub := &fakePublisher{}

	runner := NewTruthRunner(store, history, truth.NewEvaluator(truth.TieBreakTargetWins),
		noopMetrics{}, testLogger(t),
		WithResultPublisher(pub, "truth.evaluations"),
		WithWorkers(2),
	)

	stats, err := runner.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if stats.Pass != 1 || stats.Scanned != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	res := history.results["opp-1"]
	if res == nil || res.Outcome != models.OutcomePass {
		t.Fatalf("expected persisted PASS result, got %+v", res)
	}
	if len(pub.published) != 1 || pub.published[0] != "opp-1" {
		t.Fatalf("expected published result keyed by opportunity id, got %v", pub.published)
	}
}

func TestRunOnceStopBreachInEntryBar(t *testing.T) {
	// Entry close 500 with ATR 2.0 puts the stop at 498. The entry bar's own
	// low of 497 breaches it; the rally to the target in the next bar must
	// not rescue the trade.
	entry := candle(0, 501, 497, 500)
	store := &fakeCandleStore{
		entry: &entry,
		atr:   2.0,
		series: []models.Candle{
			entry,
			candle(1, 505, 500, 504),
		},
	}
	history := newFakeHistory(pendingOpp("opp-1"))

	runner := NewTruthRunner(store, history, truth.NewEvaluator(truth.TieBreakTargetWins),
		noopMetrics{}, testLogger(t))

	stats, err := runner.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if stats.Fail != 1 {
		t.Fatalf("expected FAIL from entry-bar stop breach, got %+v", stats)
	}

	res := history.results["opp-1"]
	if res == nil || res.Outcome != models.OutcomeFail || !res.StopHitFirst {
		t.Fatalf("expected stop-first FAIL result, got %+v", res)
	}
	if res.ResolvedAt == nil || !res.ResolvedAt.Equal(entry.Bucket) {
		t.Fatalf("expected resolution at the entry bar, got %+v", res.ResolvedAt)
	}
	if res.RealizedMAE < 3 {
		t.Fatalf("expected MAE to reflect the entry bar's low, got %v", res.RealizedMAE)
	}
}

func TestRunOnceSkipsAlreadyEvaluated(t *testing.T) {
	history := newFakeHistory(pendingOpp("opp-1"))
	history.results["opp-1"] = &models.EvaluationResult{OpportunityID: "opp-1", Outcome: models.OutcomePass}

	runner := NewTruthRunner(&fakeCandleStore{}, history, truth.NewEvaluator(truth.TieBreakTargetWins),
		noopMetrics{}, testLogger(t))

	stats, err := runner.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if stats.Skipped != 1 || stats.Pass != 0 {
		t.Fatalf("expected skip, got %+v", stats)
	}
}

func TestRunOnceStoreFailureProducesNoData(t *testing.T) {
	store := &fakeCandleStore{entryErr: errors.New("clickhouse down")}
	history := newFakeHistory(pendingOpp("opp-1"))

	runner := NewTruthRunner(store, history, truth.NewEvaluator(truth.TieBreakTargetWins),
		noopMetrics{}, testLogger(t))

	stats, err := runner.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if stats.NoData != 1 {
		t.Fatalf("expected NO_DATA verdict, got %+v", stats)
	}

	res := history.results["opp-1"]
	if res == nil || res.Outcome != models.OutcomeNoData || res.Reason == "" {
		t.Fatalf("expected NO_DATA record with reason, got %+v", res)
	}
}

func TestRunOnceMissingEntryCandle(t *testing.T) {
	store := &fakeCandleStore{entry: nil} // market was closed
	history := newFakeHistory(pendingOpp("opp-1"))

	runner := NewTruthRunner(store, history, truth.NewEvaluator(truth.TieBreakTargetWins),
		noopMetrics{}, testLogger(t))

	stats, err := runner.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if stats.NoData != 1 {
		t.Fatalf("expected NO_DATA for missing entry candle, got %+v", stats)
	}
}

func TestRunOnceListFailureAborts(t *testing.T) {
	history := newFakeHistory()
	history.listErr = errors.New("clickhouse down")

	runner := NewTruthRunner(&fakeCandleStore{}, history, truth.NewEvaluator(truth.TieBreakTargetWins),
		noopMetrics{}, testLogger(t))

	if _, err := runner.RunOnce(context.Background()); err == nil {
		t.Fatal("expected error when the work list is unreadable")
	}
}
