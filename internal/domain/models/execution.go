package models

import "time"

// RegimeApproved is the only market state in which execution is permitted.
const RegimeApproved = "GREEN"

// RegimeStatus is the externally published market regime label.
type RegimeStatus struct {
	State     string    `json:"state"`
	Reason    string    `json:"reason,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ExecutionProposal describes a candidate trade submitted to the risk gateway.
type ExecutionProposal struct {
	Ticker     string    `json:"ticker" validate:"required"`
	Horizon    Horizon   `json:"horizon" validate:"required,oneof=H30 H2H HDAY HWEEK"`
	SignalTime time.Time `json:"signal_time" validate:"required"`
}

// RejectReason enumerates the machine-distinguishable gate rejections.
type RejectReason string

const (
	ReasonKillSwitchDisabled RejectReason = "kill_switch_disabled"
	ReasonRegimeNotApproved  RejectReason = "regime_not_approved"
	ReasonDuplicateExecution RejectReason = "duplicate_execution"
	ReasonInCooldown         RejectReason = "in_cooldown"
)

// ExecutionDecision is the gateway verdict for one proposal.
type ExecutionDecision struct {
	Authorized   bool         `json:"authorized"`
	Reason       RejectReason `json:"reason,omitempty"`
	Detail       string       `json:"detail,omitempty"`
	ExecutionID  string       `json:"execution_id"`
	Ticker       string       `json:"ticker"`
	PriorTradeAt *time.Time   `json:"prior_trade_at,omitempty"` // set on cooldown rejections
	DecidedAt    time.Time    `json:"decided_at"`
}
