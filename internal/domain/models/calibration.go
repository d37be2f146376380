package models

import (
	"encoding/json"
	"sort"
	"time"
)

// BucketKey identifies a calibration bucket. A structured key avoids the
// collisions a concatenated label string would allow.
type BucketKey struct {
	Horizon   Horizon `json:"horizon"`
	Regime    string  `json:"regime"`
	Attention string  `json:"attention"`
}

// BucketCounters is the aggregate input for one bucket, computed by the
// evaluation history store.
type BucketCounters struct {
	Key            BucketKey
	PassCount      int
	FailCount      int
	ExpiredCount   int
	AvgProbability float64
}

// Total returns the bucket sample size. EXPIRED counts toward the total
// because an expired signal is a failed prediction for calibration purposes.
func (c BucketCounters) Total() int {
	return c.PassCount + c.FailCount + c.ExpiredCount
}

// CalibrationBucket is one recomputed bucket in a snapshot.
type CalibrationBucket struct {
	Key            BucketKey `json:"key"`
	TotalSignals   int       `json:"total_signals"`
	PassCount      int       `json:"pass_count"`
	FailCount      int       `json:"fail_count"`
	ExpiredCount   int       `json:"expired_count"`
	PassRate       float64   `json:"pass_rate"`
	AvgProbability float64   `json:"avg_probability"`
	ShrinkFactor   float64   `json:"shrink_factor"`
}

// GlobalStats mirrors the per-bucket computation over all samples and is
// the fallback when a specific bucket is missing.
type GlobalStats struct {
	TotalSignals   int     `json:"total_signals"`
	TotalPass      int     `json:"total_pass"`
	TotalFail      int     `json:"total_fail"`
	TotalExpired   int     `json:"total_expired"`
	PassRate       float64 `json:"pass_rate"`
	AvgProbability float64 `json:"avg_probability"`
	Shrink         float64 `json:"shrink"`
}

// CalibrationState is a complete published snapshot. It is recomputed
// wholesale on every calibration run and replaced atomically; it is never
// mutated after publication.
type CalibrationState struct {
	ComputedAt time.Time                       `json:"computed_at"`
	Version    int64                           `json:"version"`
	Buckets    map[BucketKey]CalibrationBucket `json:"-"`
	Global     GlobalStats                     `json:"global"`
}

// calibrationStateJSON flattens the bucket map for serialization; struct
// keys cannot be JSON object keys.
type calibrationStateJSON struct {
	ComputedAt time.Time           `json:"computed_at"`
	Version    int64               `json:"version"`
	Buckets    []CalibrationBucket `json:"buckets"`
	Global     GlobalStats         `json:"global"`
}

func (s CalibrationState) MarshalJSON() ([]byte, error) {
	out := calibrationStateJSON{
		ComputedAt: s.ComputedAt,
		Version:    s.Version,
		Buckets:    make([]CalibrationBucket, 0, len(s.Buckets)),
		Global:     s.Global,
	}
	for _, b := range s.Buckets {
		out.Buckets = append(out.Buckets, b)
	}
	// Stable bucket order keeps two publishes of the same state
	// byte-identical and diffable.
	sort.Slice(out.Buckets, func(i, j int) bool {
		a, b := out.Buckets[i].Key, out.Buckets[j].Key
		if a.Horizon != b.Horizon {
			return a.Horizon < b.Horizon
		}
		if a.Regime != b.Regime {
			return a.Regime < b.Regime
		}
		return a.Attention < b.Attention
	})
	return json.Marshal(out)
}

func (s *CalibrationState) UnmarshalJSON(data []byte) error {
	var in calibrationStateJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	s.ComputedAt = in.ComputedAt
	s.Version = in.Version
	s.Global = in.Global
	s.Buckets = make(map[BucketKey]CalibrationBucket, len(in.Buckets))
	for _, b := range in.Buckets {
		s.Buckets[b.Key] = b
	}
	return nil
}
