package calibration

import (
	"time"

	"TruthGate/internal/domain/models"
)

// DefaultMinSamples is the evidence threshold below which a bucket gets the
// conservative default shrink instead of a rate-derived one.
const DefaultMinSamples = 10

// DefaultShrink applies when there is no calibration data at all, or not
// enough of it.
const DefaultShrink = 0.90

// Aggregator recomputes a complete calibration snapshot from per-bucket
// counters. Each run replaces the previous snapshot wholesale; buckets are
// never mutated incrementally.
type Aggregator struct {
	minSamples int
}

func NewAggregator(minSamples int) *Aggregator {
	if minSamples <= 0 {
		minSamples = DefaultMinSamples
	}
	return &Aggregator{minSamples: minSamples}
}

// Aggregate builds a CalibrationState from bucket counters. Empty buckets
// are skipped; global stats cover the union of all samples, with avg
// probability weighted by bucket size.
func (a *Aggregator) Aggregate(counters []models.BucketCounters, now time.Time) *models.CalibrationState {
	state := &models.CalibrationState{
		ComputedAt: now,
		Version:    now.UnixNano(),
		Buckets:    make(map[models.BucketKey]models.CalibrationBucket, len(counters)),
	}

	var (
		totalPass    int
		totalFail    int
		totalExpired int
		probWeighted float64
	)

	for _, c := range counters {
		total := c.Total()
		if total == 0 {
			continue
		}

		passRate := float64(c.PassCount) / float64(total)
		state.Buckets[c.Key] = models.CalibrationBucket{
			Key:            c.Key,
			TotalSignals:   total,
			PassCount:      c.PassCount,
			FailCount:      c.FailCount,
			ExpiredCount:   c.ExpiredCount,
			PassRate:       passRate,
			AvgProbability: c.AvgProbability,
			ShrinkFactor:   a.shrinkFor(passRate, total),
		}

		totalPass += c.PassCount
		totalFail += c.FailCount
		totalExpired += c.ExpiredCount
		probWeighted += c.AvgProbability * float64(total)
	}

	totalSignals := totalPass + totalFail + totalExpired
	state.Global = models.GlobalStats{
		TotalSignals: totalSignals,
		TotalPass:    totalPass,
		TotalFail:    totalFail,
		TotalExpired: totalExpired,
		Shrink:       DefaultShrink,
	}
	if totalSignals > 0 {
		state.Global.PassRate = float64(totalPass) / float64(totalSignals)
		state.Global.AvgProbability = probWeighted / float64(totalSignals)
		state.Global.Shrink = a.shrinkFor(state.Global.PassRate, totalSignals)
	}

	return state
}

// shrinkFor maps a historical pass rate to a multiplicative confidence
// discount. The table is deliberately asymmetric: overconfidence is
// penalized hard, and no bucket can ever earn a factor above 1.0.
func (a *Aggregator) shrinkFor(passRate float64, sampleSize int) float64 {
	if sampleSize < a.minSamples {
		return DefaultShrink
	}

	switch {
	case passRate < 0.35:
		return 0.50
	case passRate < 0.45:
		return 0.70
	case passRate < 0.50:
		return 0.85
	case passRate < 0.55:
		return 0.95
	default:
		return 1.00
	}
}

// BrierScore measures calibration quality: the mean squared error between
// issued probabilities and realized binary outcomes. Lower is better.
// Returns 1.0 (worst) when the inputs are empty or mismatched in length.
func BrierScore(predictions []float64, outcomes []float64) float64 {
	if len(predictions) == 0 || len(predictions) != len(outcomes) {
		return 1.0
	}

	var sum float64
	for i, p := range predictions {
		d := p - outcomes[i]
		sum += d * d
	}
	return sum / float64(len(predictions))
}
