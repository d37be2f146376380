package models

import "time"

// Horizon is a fixed-duration evaluation window class.
type Horizon string

const (
	H30   Horizon = "H30"   // 30 minutes
	H2H   Horizon = "H2H"   // 2 hours
	HDAY  Horizon = "HDAY"  // full trading day (6.5 hours)
	HWEEK Horizon = "HWEEK" // 5 trading days
)

// Minutes returns the horizon duration in minutes. Unknown horizons
// fall back to H2H, matching upstream scanner behavior.
func (h Horizon) Minutes() int {
	switch h {
	case H30:
		return 30
	case H2H:
		return 120
	case HDAY:
		return 390
	case HWEEK:
		return 1950
	default:
		return 120
	}
}

// Duration returns the horizon as a time.Duration.
func (h Horizon) Duration() time.Duration {
	return time.Duration(h.Minutes()) * time.Minute
}

// IsValid reports whether h is a supported horizon class.
func (h Horizon) IsValid() bool {
	switch h {
	case H30, H2H, HDAY, HWEEK:
		return true
	default:
		return false
	}
}

// Opportunity is an issued trading signal pending outcome evaluation.
// Records are immutable once issued; this service only reads them.
type Opportunity struct {
	ID              string    `json:"id" validate:"required"`
	Ticker          string    `json:"ticker" validate:"required"`
	Horizon         Horizon   `json:"horizon" validate:"required,oneof=H30 H2H HDAY HWEEK"`
	IssuedAt        time.Time `json:"issued_at" validate:"required"`
	Probability     float64   `json:"probability" validate:"gte=0,lte=1"`
	RegimeState     string    `json:"regime_state"`
	AttentionBucket string    `json:"attention_bucket"`
	TargetATR       float64   `json:"target_atr" validate:"gte=0"` // target distance in ATR units, 0 = default
	StopATR         float64   `json:"stop_atr" validate:"gte=0"`   // stop distance in ATR units, 0 = default
}

// Default risk multipliers applied when an opportunity carries none.
const (
	DefaultTargetATR = 2.0
	DefaultStopATR   = 1.0
)

// Candle represents a single OHLCV bar.
type Candle struct {
	Bucket time.Time
	Ticker string
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Outcome classifies an evaluated opportunity.
type Outcome string

const (
	OutcomePass    Outcome = "PASS"
	OutcomeFail    Outcome = "FAIL"
	OutcomeExpired Outcome = "EXPIRED"
	OutcomeNoData  Outcome = "NO_DATA"
)

// EvaluationResult is produced exactly once per opportunity and is
// append-only history afterwards.
type EvaluationResult struct {
	OpportunityID     string    `json:"opportunity_id"`
	Ticker            string    `json:"ticker"`
	Horizon           Horizon   `json:"horizon"`
	IssuedAt          time.Time `json:"issued_at"`
	RegimeState       string    `json:"regime_state"`
	AttentionBucket   string    `json:"attention_bucket"`
	ProbabilityIssued float64   `json:"probability_issued"`

	Outcome     Outcome `json:"outcome"`
	EntryPrice  float64 `json:"entry_price"`
	TargetPrice float64 `json:"target_price"`
	StopPrice   float64 `json:"stop_price"`
	ATRValue    float64 `json:"atr_value"`

	RealizedMFE float64 `json:"realized_mfe"` // max favorable excursion, price units
	RealizedMAE float64 `json:"realized_mae"` // max adverse excursion, price units
	MFEATR      float64 `json:"mfe_atr"`      // MFE in ATR units
	MAEATR      float64 `json:"mae_atr"`      // MAE in ATR units

	TargetHitFirst bool `json:"target_hit_first"`
	StopHitFirst   bool `json:"stop_hit_first"`
	NeitherHit     bool `json:"neither_hit"`

	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
	TimeToResolution *int64     `json:"time_to_resolution,omitempty"` // seconds from issue to resolution

	Reason      string    `json:"reason,omitempty"` // populated for NO_DATA
	EvaluatedAt time.Time `json:"evaluated_at"`
}
