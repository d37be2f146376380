package repository

import (
	"context"
	"time"

	"TruthGate/internal/domain/models"
)

// CandleStore reads immutable OHLCV history.
type CandleStore interface {
	// EntryCandle returns the nearest 1m candle within tolerance of issueTime,
	// or nil when no candle exists in the window. Absence is a valid input,
	// not an error.
	EntryCandle(ctx context.Context, ticker string, issueTime time.Time, tolerance time.Duration) (*models.Candle, error)
	// ForwardCandles returns 1m candles in [from, to], ordered by time
	// ascending. The entry bar is part of the walk.
	ForwardCandles(ctx context.Context, ticker string, from, to time.Time) ([]models.Candle, error)
	// ATR computes the period-SMA of true range over 5m candles as of the given
	// time. Returns 0 when there is not enough history.
	ATR(ctx context.Context, ticker string, asOf time.Time, period int) (float64, error)
}

// OpportunityLog persists issued opportunities with their shrink-adjusted
// probability.
type OpportunityLog interface {
	Insert(ctx context.Context, o *models.Opportunity, adjustedProbability, shrinkFactor float64) error
}

// EvaluationHistory is the durable, append-only store of evaluation results.
type EvaluationHistory interface {
	// Unevaluated lists opportunities whose horizon window has elapsed and
	// which have no evaluation result yet.
	Unevaluated(ctx context.Context, now time.Time, limit int) ([]models.Opportunity, error)
	HasResult(ctx context.Context, opportunityID string) (bool, error)
	// AppendResult stores a result. Re-appending the same opportunity id must
	// be idempotent, not duplicative.
	AppendResult(ctx context.Context, res *models.EvaluationResult) error
	// BucketCounters aggregates resolved outcomes over the lookback window,
	// grouped by (horizon, regime, attention).
	BucketCounters(ctx context.Context, lookback time.Duration) ([]models.BucketCounters, error)
}

// StateStore reads and publishes shared operational state.
type StateStore interface {
	// ExecutionEnabled reads the kill switch. Callers treat any error as
	// disabled.
	ExecutionEnabled(ctx context.Context) (bool, error)
	RegimeStatus(ctx context.Context) (models.RegimeStatus, error)
	PublishCalibration(ctx context.Context, state *models.CalibrationState) error
	LoadCalibration(ctx context.Context) (*models.CalibrationState, error)
}

// Metrics records operational metrics.
type Metrics interface {
	RecordEvaluation(horizon, outcome string)
	RecordGatewayDecision(result, reason string)
	RecordCalibrationRun(buckets int)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
