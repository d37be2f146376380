package repository

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"TruthGate/internal/domain/models"
	pkgch "TruthGate/pkg/clickhouse"
	applogger "TruthGate/pkg/logger"
)

// CHMarketStore reads OHLCV history from ClickHouse. Candle tables are
// written upstream by the ingest pipeline; this store never inserts.
type CHMarketStore struct {
	db *sql.DB
	l  *applogger.Logger
}

func NewCHMarketStore(ch *pkgch.Client) *CHMarketStore {
	return &CHMarketStore{db: ch.DB()}
}

// SetLogger injects a structured logger.
func (s *CHMarketStore) SetLogger(l *applogger.Logger) { s.l = l }

// EntryCandle finds the 1m candle closest to issueTime within the tolerance
// window. A missing candle is a nil result, not an error: markets close.
func (s *CHMarketStore) EntryCandle(ctx context.Context, ticker string, issueTime time.Time, tolerance time.Duration) (*models.Candle, error) {
	const q = `
        SELECT bucket, ticker, open, high, low, close, vol
        FROM candles_1m
        WHERE ticker = ? AND bucket >= ? AND bucket <= ?
        ORDER BY abs(dateDiff('second', bucket, toDateTime(?))) ASC
        LIMIT 1
    `
	from := issueTime.Add(-tolerance)
	to := issueTime.Add(tolerance)

	var c models.Candle
	err := s.db.QueryRowContext(ctx, q, ticker, from, to, issueTime).
		Scan(&c.Bucket, &c.Ticker, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse entry_candle query error",
				applogger.String("ticker", ticker),
				applogger.Time("issue_time", issueTime),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("entry candle: %w", err)
	}
	return &c, nil
}

// ForwardCandles returns 1m candles from `from` through `to`, both inclusive,
// ordered ascending. The lower bound is inclusive so the entry bar itself
// participates in hit detection: a stop or target touched inside the entry
// bar resolves the opportunity there.
func (s *CHMarketStore) ForwardCandles(ctx context.Context, ticker string, from, to time.Time) ([]models.Candle, error) {
	const q = `
        SELECT bucket, ticker, open, high, low, close, vol
        FROM candles_1m
        WHERE ticker = ? AND bucket >= ? AND bucket <= ?
        ORDER BY bucket ASC
    `
	rows, err := s.db.QueryContext(ctx, q, ticker, from, to)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse forward_candles query error",
				applogger.String("ticker", ticker),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("forward candles: %w", err)
	}
	defer rows.Close()

	out := make([]models.Candle, 0, 512)
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Bucket, &c.Ticker, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

// ATR computes the period-SMA of true range over 5m candles ending at or
// before asOf. Returns 0 when fewer than period+1 candles exist: the true
// range of the oldest bar needs its predecessor's close.
func (s *CHMarketStore) ATR(ctx context.Context, ticker string, asOf time.Time, period int) (float64, error) {
	const q = `
        SELECT bucket, ticker, open, high, low, close, vol
        FROM candles_5m
        WHERE ticker = ? AND bucket <= ?
        ORDER BY bucket DESC
        LIMIT ?
    `
	rows, err := s.db.QueryContext(ctx, q, ticker, asOf, period+1)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse atr query error",
				applogger.String("ticker", ticker),
				applogger.Error(err),
			)
		}
		return 0, fmt.Errorf("atr candles: %w", err)
	}
	defer rows.Close()

	candles := make([]models.Candle, 0, period+1)
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Bucket, &c.Ticker, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return 0, fmt.Errorf("scan candle: %w", err)
		}
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("rows: %w", err)
	}

	// rows arrive newest-first; TR needs chronological order
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}
	return AverageTrueRange(candles, period), nil
}

// AverageTrueRange computes the simple moving average of true range over the
// last period bars of a chronologically ordered candle series. True range is
// max(high-low, |high-prevClose|, |low-prevClose|). Returns 0 on insufficient
// history.
func AverageTrueRange(candles []models.Candle, period int) float64 {
	if period <= 0 || len(candles) < period+1 {
		return 0
	}

	var sum float64
	start := len(candles) - period
	for i := start; i < len(candles); i++ {
		prevClose := candles[i-1].Close
		tr := candles[i].High - candles[i].Low
		tr = math.Max(tr, math.Abs(candles[i].High-prevClose))
		tr = math.Max(tr, math.Abs(candles[i].Low-prevClose))
		sum += tr
	}
	return sum / float64(period)
}
