package repository

import (
	"math"
	"testing"
	"time"

	"TruthGate/internal/domain/models"
)

func bar(minute int, high, low, close float64) models.Candle {
	return models.Candle{
		Bucket: time.Date(2025, 6, 2, 14, minute, 0, 0, time.UTC),
		Ticker: "AAPL",
		High:   high,
		Low:    low,
		Close:  close,
	}
}

func TestAverageTrueRangeSimple(t *testing.T) {
	// constant 2-point high-low ranges, no gaps between closes
	candles := []models.Candle{
		bar(0, 102, 100, 101),
		bar(5, 103, 101, 102),
		bar(10, 104, 102, 103),
	}
	got := AverageTrueRange(candles, 2)
	if math.Abs(got-2.0) > 1e-9 {
		t.Fatalf("expected ATR 2.0, got %v", got)
	}
}

func TestAverageTrueRangeGapDominates(t *testing.T) {
	// the second bar gaps down: TR must use distance from the prior close
	candles := []models.Candle{
		bar(0, 102, 100, 101),
		bar(5, 96, 95, 95.5), // |low-prevClose| = 6 beats high-low = 1
	}
	got := AverageTrueRange(candles, 1)
	if math.Abs(got-6.0) > 1e-9 {
		t.Fatalf("expected gap-driven TR 6.0, got %v", got)
	}
}

func TestAverageTrueRangeInsufficientHistory(t *testing.T) {
	candles := []models.Candle{bar(0, 102, 100, 101)}
	if got := AverageTrueRange(candles, 14); got != 0 {
		t.Fatalf("expected 0 on insufficient history, got %v", got)
	}
	if got := AverageTrueRange(nil, 14); got != 0 {
		t.Fatalf("expected 0 on empty input, got %v", got)
	}
}
