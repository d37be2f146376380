package truth

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"TruthGate/internal/domain/models"
)

var baseTime = time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)

func testOpportunity() *models.Opportunity {
	return &models.Opportunity{
		ID:              "opp-1",
		Ticker:          "SPY",
		Horizon:         models.H2H,
		IssuedAt:        baseTime,
		Probability:     0.72,
		RegimeState:     "GREEN",
		AttentionBucket: "STABLE",
		TargetATR:       2.0,
		StopATR:         1.0,
	}
}

func entryCandle(close float64) *models.Candle {
	return &models.Candle{Bucket: baseTime, Ticker: "SPY", Close: close}
}

func forwardCandle(minutes int, high, low float64) models.Candle {
	return models.Candle{
		Bucket: baseTime.Add(time.Duration(minutes) * time.Minute),
		Ticker: "SPY",
		High:   high,
		Low:    low,
	}
}

func TestEvaluatePassOnTargetHit(t *testing.T) {
	// entry=500, ATR=2 -> target=504, stop=498
	e := NewEvaluator(TieBreakTargetWins)
	forward := []models.Candle{
		forwardCandle(1, 502, 499),
		forwardCandle(2, 505, 500),
	}

	res := e.Evaluate(testOpportunity(), entryCandle(500), forward, 2.0, baseTime.Add(3*time.Hour))

	if res.Outcome != models.OutcomePass {
		t.Fatalf("expected PASS, got %s", res.Outcome)
	}
	if res.TargetPrice != 504 || res.StopPrice != 498 {
		t.Fatalf("unexpected boundaries: target=%v stop=%v", res.TargetPrice, res.StopPrice)
	}
	if res.RealizedMFE != 5 {
		t.Fatalf("expected MFE=5, got %v", res.RealizedMFE)
	}
	if res.MFEATR != 2.5 {
		t.Fatalf("expected MFE=2.5 ATR, got %v", res.MFEATR)
	}
	if !res.TargetHitFirst || res.StopHitFirst || res.NeitherHit {
		t.Fatalf("unexpected hit flags: %+v", res)
	}
	if res.ResolvedAt == nil || !res.ResolvedAt.Equal(forward[1].Bucket) {
		t.Fatalf("expected resolution at second candle, got %v", res.ResolvedAt)
	}
	if res.TimeToResolution == nil || *res.TimeToResolution != 120 {
		t.Fatalf("expected 120s to resolution, got %v", res.TimeToResolution)
	}
}

func TestEvaluateFailOnStopHit(t *testing.T) {
	e := NewEvaluator(TieBreakTargetWins)
	forward := []models.Candle{forwardCandle(1, 501, 497)}

	res := e.Evaluate(testOpportunity(), entryCandle(500), forward, 2.0, baseTime.Add(3*time.Hour))

	if res.Outcome != models.OutcomeFail {
		t.Fatalf("expected FAIL, got %s", res.Outcome)
	}
	if !res.StopHitFirst || res.TargetHitFirst {
		t.Fatalf("unexpected hit flags: %+v", res)
	}
}

func TestEvaluateExpiredWhenNeitherHit(t *testing.T) {
	e := NewEvaluator(TieBreakTargetWins)
	forward := []models.Candle{
		forwardCandle(1, 503, 499),
		forwardCandle(2, 502, 499),
		forwardCandle(120, 503, 499),
	}

	res := e.Evaluate(testOpportunity(), entryCandle(500), forward, 2.0, baseTime.Add(3*time.Hour))

	if res.Outcome != models.OutcomeExpired {
		t.Fatalf("expected EXPIRED, got %s", res.Outcome)
	}
	if !res.NeitherHit {
		t.Fatalf("expected neither_hit")
	}
	if res.ResolvedAt == nil || !res.ResolvedAt.Equal(forward[2].Bucket) {
		t.Fatalf("expected resolution at last candle, got %v", res.ResolvedAt)
	}
}

func TestEvaluateTieBreakFavorsTarget(t *testing.T) {
	// Both boundaries breached inside the same candle: PASS under the
	// default policy.
	e := NewEvaluator(TieBreakTargetWins)
	forward := []models.Candle{forwardCandle(1, 504.5, 497.5)}

	res := e.Evaluate(testOpportunity(), entryCandle(500), forward, 2.0, baseTime.Add(3*time.Hour))

	if res.Outcome != models.OutcomePass {
		t.Fatalf("expected PASS on tie, got %s", res.Outcome)
	}
	if !res.TargetHitFirst {
		t.Fatalf("expected target_hit_first on tie")
	}
}

func TestEvaluateTieBreakStopWins(t *testing.T) {
	e := NewEvaluator(TieBreakStopWins)
	forward := []models.Candle{forwardCandle(1, 504.5, 497.5)}

	res := e.Evaluate(testOpportunity(), entryCandle(500), forward, 2.0, baseTime.Add(3*time.Hour))

	if res.Outcome != models.OutcomeFail {
		t.Fatalf("expected FAIL under stop_wins tie-break, got %s", res.Outcome)
	}
}

func TestEvaluateNoEntryCandle(t *testing.T) {
	e := NewEvaluator(TieBreakTargetWins)

	res := e.Evaluate(testOpportunity(), nil, []models.Candle{forwardCandle(1, 505, 499)}, 2.0, baseTime)

	if res.Outcome != models.OutcomeNoData {
		t.Fatalf("expected NO_DATA, got %s", res.Outcome)
	}
	if res.Reason == "" {
		t.Fatalf("expected a recorded reason")
	}
}

func TestEvaluateMissingATR(t *testing.T) {
	e := NewEvaluator(TieBreakTargetWins)

	for _, atr := range []float64{0, -1} {
		res := e.Evaluate(testOpportunity(), entryCandle(500), []models.Candle{forwardCandle(1, 505, 499)}, atr, baseTime)
		if res.Outcome != models.OutcomeNoData {
			t.Fatalf("atr=%v: expected NO_DATA, got %s", atr, res.Outcome)
		}
	}
}

func TestEvaluateNoForwardCandles(t *testing.T) {
	e := NewEvaluator(TieBreakTargetWins)

	res := e.Evaluate(testOpportunity(), entryCandle(500), nil, 2.0, baseTime)

	if res.Outcome != models.OutcomeNoData {
		t.Fatalf("expected NO_DATA, got %s", res.Outcome)
	}
}

func TestEvaluateDefaultMultipliers(t *testing.T) {
	e := NewEvaluator(TieBreakTargetWins)
	opp := testOpportunity()
	opp.TargetATR = 0
	opp.StopATR = 0

	res := e.Evaluate(opp, entryCandle(500), []models.Candle{forwardCandle(1, 501, 499.5)}, 2.0, baseTime)

	if res.TargetPrice != 504 || res.StopPrice != 498 {
		t.Fatalf("expected default 2.0/1.0 multipliers, got target=%v stop=%v", res.TargetPrice, res.StopPrice)
	}
}

func TestEvaluateFirstHitWinsOverLaterStop(t *testing.T) {
	// Target touched on candle 2, stop on candle 3: earlier hit decides.
	e := NewEvaluator(TieBreakTargetWins)
	forward := []models.Candle{
		forwardCandle(1, 503, 499),
		forwardCandle(2, 504, 500),
		forwardCandle(3, 501, 497),
	}

	res := e.Evaluate(testOpportunity(), entryCandle(500), forward, 2.0, baseTime.Add(3*time.Hour))

	if res.Outcome != models.OutcomePass {
		t.Fatalf("expected PASS, got %s", res.Outcome)
	}
	if res.ResolvedAt == nil || !res.ResolvedAt.Equal(forward[1].Bucket) {
		t.Fatalf("expected resolution at target hit, got %v", res.ResolvedAt)
	}
}

func TestEvaluateIdempotent(t *testing.T) {
	e := NewEvaluator(TieBreakTargetWins)
	opp := testOpportunity()
	forward := []models.Candle{
		forwardCandle(1, 502, 499),
		forwardCandle(2, 505, 500),
	}
	evalTime := baseTime.Add(3 * time.Hour)

	first, err := json.Marshal(e.Evaluate(opp, entryCandle(500), forward, 2.0, evalTime))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	second, err := json.Marshal(e.Evaluate(opp, entryCandle(500), forward, 2.0, evalTime))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("re-evaluation produced different results:\n%s\n%s", first, second)
	}
}
