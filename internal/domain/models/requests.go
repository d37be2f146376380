package models

// ShrinkRequest looks up the shrink factor for one calibration bucket.
type ShrinkRequest struct {
	Horizon   string `query:"horizon" json:"horizon" validate:"required,oneof=H30 H2H HDAY HWEEK"`
	Regime    string `query:"regime" json:"regime" validate:"required"`
	Attention string `query:"attention" json:"attention" default:"UNKNOWN"`
}

// ProposeRequest submits a candidate execution to the risk gateway.
type ProposeRequest struct {
	Ticker     string `json:"ticker" validate:"required"`
	Horizon    string `json:"horizon" validate:"required,oneof=H30 H2H HDAY HWEEK"`
	SignalTime string `json:"signal_time" validate:"required"` // RFC3339 or unix seconds
}

// TruthRunRequest triggers a manual truth-test batch.
type TruthRunRequest struct {
	Limit int `json:"limit" default:"500" validate:"gte=1,lte=5000"`
}
