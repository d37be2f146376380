package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"TruthGate/internal/domain/models"
	pkgch "TruthGate/pkg/clickhouse"
	applogger "TruthGate/pkg/logger"
)

// CHOpportunityLog appends issued opportunities to ClickHouse.
type CHOpportunityLog struct {
	db *sql.DB
	l  *applogger.Logger
}

func NewCHOpportunityLog(ch *pkgch.Client) *CHOpportunityLog {
	return &CHOpportunityLog{db: ch.DB()}
}

// SetLogger injects a structured logger.
func (s *CHOpportunityLog) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CHOpportunityLog) Insert(ctx context.Context, o *models.Opportunity, adjustedProbability, shrinkFactor float64) error {
	const q = `
        INSERT INTO opportunity_log
            (id, ticker, horizon, issued_at, probability_raw, probability_adjusted,
             shrink_factor, regime_state, attention_bucket, target_atr, stop_atr)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `
	_, err := s.db.ExecContext(ctx, q,
		o.ID, o.Ticker, string(o.Horizon), o.IssuedAt,
		o.Probability, adjustedProbability, shrinkFactor,
		o.RegimeState, o.AttentionBucket, o.TargetATR, o.StopATR,
	)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse opportunity insert error",
				applogger.String("id", o.ID),
				applogger.Error(err),
			)
		}
		return fmt.Errorf("insert opportunity: %w", err)
	}
	return nil
}

// CHEvaluationHistory is the append-only evaluation record. ReplacingMergeTree
// keyed on opportunity_id makes repeated appends of the same result collapse
// to one row.
type CHEvaluationHistory struct {
	db *sql.DB
	l  *applogger.Logger
}

func NewCHEvaluationHistory(ch *pkgch.Client) *CHEvaluationHistory {
	return &CHEvaluationHistory{db: ch.DB()}
}

// SetLogger injects a structured logger.
func (s *CHEvaluationHistory) SetLogger(l *applogger.Logger) { s.l = l }

// horizonMinutesExpr maps a horizon label to its window length inside SQL,
// mirroring models.Horizon.Minutes.
const horizonMinutesExpr = `multiIf(
    o.horizon = 'H30', 30,
    o.horizon = 'H2H', 120,
    o.horizon = 'HDAY', 390,
    o.horizon = 'HWEEK', 1950,
    120)`

// Unevaluated returns opportunities whose horizon window has fully elapsed
// as of now and which have no row in the performance log yet.
func (s *CHEvaluationHistory) Unevaluated(ctx context.Context, now time.Time, limit int) ([]models.Opportunity, error) {
	q := `
        SELECT o.id, o.ticker, o.horizon, o.issued_at, o.probability_raw,
               o.regime_state, o.attention_bucket, o.target_atr, o.stop_atr
        FROM opportunity_log AS o FINAL
        WHERE addMinutes(o.issued_at, ` + horizonMinutesExpr + `) <= ?
          AND o.id NOT IN (SELECT opportunity_id FROM performance_log)
        ORDER BY o.issued_at ASC
        LIMIT ?
    `
	rows, err := s.db.QueryContext(ctx, q, now, limit)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse unevaluated query error", applogger.Error(err))
		}
		return nil, fmt.Errorf("unevaluated: %w", err)
	}
	defer rows.Close()

	out := make([]models.Opportunity, 0, limit)
	for rows.Next() {
		var (
			o       models.Opportunity
			horizon string
		)
		if err := rows.Scan(&o.ID, &o.Ticker, &horizon, &o.IssuedAt, &o.Probability,
			&o.RegimeState, &o.AttentionBucket, &o.TargetATR, &o.StopATR); err != nil {
			return nil, fmt.Errorf("scan opportunity: %w", err)
		}
		o.Horizon = models.Horizon(horizon)
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (s *CHEvaluationHistory) HasResult(ctx context.Context, opportunityID string) (bool, error) {
	const q = `SELECT count() FROM performance_log WHERE opportunity_id = ?`

	var n uint64
	if err := s.db.QueryRowContext(ctx, q, opportunityID).Scan(&n); err != nil {
		return false, fmt.Errorf("has result: %w", err)
	}
	return n > 0, nil
}

func (s *CHEvaluationHistory) AppendResult(ctx context.Context, res *models.EvaluationResult) error {
	const q = `
        INSERT INTO performance_log
            (opportunity_id, ticker, horizon, issued_at, regime_state, attention_bucket,
             probability_issued, outcome, entry_price, target_price, stop_price, atr_value,
             realized_mfe, realized_mae, mfe_atr, mae_atr,
             target_hit_first, stop_hit_first, neither_hit,
             resolved_at, time_to_resolution, reason, evaluated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `
	_, err := s.db.ExecContext(ctx, q,
		res.OpportunityID, res.Ticker, string(res.Horizon), res.IssuedAt,
		res.RegimeState, res.AttentionBucket, res.ProbabilityIssued,
		string(res.Outcome), res.EntryPrice, res.TargetPrice, res.StopPrice, res.ATRValue,
		res.RealizedMFE, res.RealizedMAE, res.MFEATR, res.MAEATR,
		boolToUInt8(res.TargetHitFirst), boolToUInt8(res.StopHitFirst), boolToUInt8(res.NeitherHit),
		res.ResolvedAt, res.TimeToResolution, res.Reason, res.EvaluatedAt,
	)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse result insert error",
				applogger.String("opportunity_id", res.OpportunityID),
				applogger.Error(err),
			)
		}
		return fmt.Errorf("append result: %w", err)
	}
	return nil
}

// BucketCounters aggregates resolved outcomes over the lookback window.
// NO_DATA rows are excluded: they say nothing about prediction quality.
func (s *CHEvaluationHistory) BucketCounters(ctx context.Context, lookback time.Duration) ([]models.BucketCounters, error) {
	const q = `
        SELECT horizon, regime_state, attention_bucket,
               countIf(outcome = 'PASS')    AS pass_count,
               countIf(outcome = 'FAIL')    AS fail_count,
               countIf(outcome = 'EXPIRED') AS expired_count,
               avg(probability_issued)      AS avg_probability
        FROM performance_log FINAL
        WHERE evaluated_at >= ? AND outcome != 'NO_DATA'
        GROUP BY horizon, regime_state, attention_bucket
    `
	since := time.Now().UTC().Add(-lookback)
	rows, err := s.db.QueryContext(ctx, q, since)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse bucket_counters query error", applogger.Error(err))
		}
		return nil, fmt.Errorf("bucket counters: %w", err)
	}
	defer rows.Close()

	out := make([]models.BucketCounters, 0, 64)
	for rows.Next() {
		var (
			c       models.BucketCounters
			horizon string
			pass    uint64
			fail    uint64
			expired uint64
		)
		if err := rows.Scan(&horizon, &c.Key.Regime, &c.Key.Attention,
			&pass, &fail, &expired, &c.AvgProbability); err != nil {
			return nil, fmt.Errorf("scan counters: %w", err)
		}
		c.Key.Horizon = models.Horizon(horizon)
		c.PassCount = int(pass)
		c.FailCount = int(fail)
		c.ExpiredCount = int(expired)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
