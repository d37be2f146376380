package truth

import (
	"time"

	"TruthGate/internal/domain/models"
)

// TieBreak selects the winner when target and stop are first reached in the
// same candle. The upstream policy resolves ties in favor of the target; it
// is kept configurable rather than hard-coded.
type TieBreak string

const (
	TieBreakTargetWins TieBreak = "target_wins"
	TieBreakStopWins   TieBreak = "stop_wins"
)

// Evaluator classifies opportunity outcomes by walking forward through
// candles and tracking maximum favorable and adverse excursion.
//
// Evaluation is long-only: the favorable direction is up toward the target,
// the adverse direction is down toward the stop, regardless of the signal's
// stated direction.
type Evaluator struct {
	tieBreak TieBreak
}

func NewEvaluator(tieBreak TieBreak) *Evaluator {
	if tieBreak != TieBreakStopWins {
		tieBreak = TieBreakTargetWins
	}
	return &Evaluator{tieBreak: tieBreak}
}

// Evaluate produces exactly one EvaluationResult for the opportunity. It is
// a pure function of its inputs: re-evaluating with the same candle window
// yields an identical result, which makes re-runs safe.
//
// entry may be nil (no candle near issue time), atr may be non-positive, and
// forward may be empty; each resolves to NO_DATA with a recorded reason.
func (e *Evaluator) Evaluate(
	opp *models.Opportunity,
	entry *models.Candle,
	forward []models.Candle,
	atr float64,
	evaluationTime time.Time,
) *models.EvaluationResult {
	result := &models.EvaluationResult{
		OpportunityID:     opp.ID,
		Ticker:            opp.Ticker,
		Horizon:           opp.Horizon,
		IssuedAt:          opp.IssuedAt,
		RegimeState:       opp.RegimeState,
		AttentionBucket:   opp.AttentionBucket,
		ProbabilityIssued: opp.Probability,
		ATRValue:          atr,
		EvaluatedAt:       evaluationTime,
	}

	if entry == nil {
		result.Outcome = models.OutcomeNoData
		result.Reason = "no entry candle found within tolerance of issue time"
		return result
	}
	result.EntryPrice = entry.Close

	if atr <= 0 {
		result.Outcome = models.OutcomeNoData
		result.Reason = "no ATR value available"
		return result
	}

	if len(forward) == 0 {
		result.Outcome = models.OutcomeNoData
		result.Reason = "no candles found for horizon window"
		return result
	}

	targetMult := opp.TargetATR
	if targetMult <= 0 {
		targetMult = models.DefaultTargetATR
	}
	stopMult := opp.StopATR
	if stopMult <= 0 {
		stopMult = models.DefaultStopATR
	}

	entryPrice := entry.Close
	result.TargetPrice = entryPrice + targetMult*atr
	result.StopPrice = entryPrice - stopMult*atr

	var (
		mfe           float64
		mae           float64
		targetHitTime *time.Time
		stopHitTime   *time.Time
	)

	for i := range forward {
		c := &forward[i]

		if favorable := c.High - entryPrice; favorable > mfe {
			mfe = favorable
		}
		if adverse := entryPrice - c.Low; adverse > mae {
			mae = adverse
		}

		// First occurrence wins; later touches are irrelevant.
		if targetHitTime == nil && c.High >= result.TargetPrice {
			t := c.Bucket
			targetHitTime = &t
		}
		if stopHitTime == nil && c.Low <= result.StopPrice {
			t := c.Bucket
			stopHitTime = &t
		}
	}

	result.RealizedMFE = mfe
	result.RealizedMAE = mae
	result.MFEATR = mfe / atr
	result.MAEATR = mae / atr

	var resolvedAt *time.Time
	switch {
	case targetHitTime != nil && stopHitTime != nil:
		if e.targetWins(*targetHitTime, *stopHitTime) {
			result.Outcome = models.OutcomePass
			result.TargetHitFirst = true
			resolvedAt = targetHitTime
		} else {
			result.Outcome = models.OutcomeFail
			result.StopHitFirst = true
			resolvedAt = stopHitTime
		}
	case targetHitTime != nil:
		result.Outcome = models.OutcomePass
		result.TargetHitFirst = true
		resolvedAt = targetHitTime
	case stopHitTime != nil:
		result.Outcome = models.OutcomeFail
		result.StopHitFirst = true
		resolvedAt = stopHitTime
	default:
		// Neither boundary reached over the whole horizon. EXPIRED counts as
		// a failure for calibration; resolution time is the last candle.
		result.Outcome = models.OutcomeExpired
		result.NeitherHit = true
		t := forward[len(forward)-1].Bucket
		resolvedAt = &t
	}

	result.ResolvedAt = resolvedAt
	if resolvedAt != nil {
		secs := int64(resolvedAt.Sub(opp.IssuedAt) / time.Second)
		result.TimeToResolution = &secs
	}

	return result
}

func (e *Evaluator) targetWins(targetAt, stopAt time.Time) bool {
	if targetAt.Equal(stopAt) {
		return e.tieBreak == TieBreakTargetWins
	}
	return targetAt.Before(stopAt)
}
