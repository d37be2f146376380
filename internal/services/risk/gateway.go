package risk

import (
	"context"
	"fmt"
	"time"

	"TruthGate/internal/domain/models"
	"TruthGate/internal/domain/repository"
	"TruthGate/pkg/cache"
	"TruthGate/pkg/logger"
	"TruthGate/pkg/util"
)

const (
	seenKeyPrefix     = "execution:seen:"
	cooldownKeyPrefix = "execution:cooldown:"

	DefaultCooldownWindow = 60 * time.Minute
	DefaultIdempotencyTTL = 24 * time.Hour
	DefaultStoreTimeout   = 2 * time.Second
)

// DecisionSink receives every decision the gateway emits, authorized or not.
// The gateway never blocks on a sink.
type DecisionSink interface {
	BroadcastDecision(decision *models.ExecutionDecision)
}

// Gateway decides whether an execution proposal may proceed. Gates run in a
// fixed order and every store failure rejects: when shared state cannot be
// read, the gateway refuses to trade.
type Gateway struct {
	state   repository.StateStore
	cache   cache.Service
	metrics repository.Metrics
	log     *logger.Logger

	cooldownWindow time.Duration
	idempotencyTTL time.Duration
	storeTimeout   time.Duration
	sink           DecisionSink
}

type GatewayOption func(*Gateway)

func WithCooldownWindow(d time.Duration) GatewayOption {
	return func(g *Gateway) {
		if d > 0 {
			g.cooldownWindow = d
		}
	}
}

func WithIdempotencyTTL(d time.Duration) GatewayOption {
	return func(g *Gateway) {
		if d > 0 {
			g.idempotencyTTL = d
		}
	}
}

func WithStoreTimeout(d time.Duration) GatewayOption {
	return func(g *Gateway) {
		if d > 0 {
			g.storeTimeout = d
		}
	}
}

func WithDecisionSink(sink DecisionSink) GatewayOption {
	return func(g *Gateway) { g.sink = sink }
}

func NewGateway(state repository.StateStore, c cache.Service, metrics repository.Metrics, log *logger.Logger, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		state:          state,
		cache:          c,
		metrics:        metrics,
		log:            log,
		cooldownWindow: DefaultCooldownWindow,
		idempotencyTTL: DefaultIdempotencyTTL,
		storeTimeout:   DefaultStoreTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ExecutionID builds the deterministic identity of a proposal. Two producers
// proposing the same signal must derive the same id byte for byte.
func ExecutionID(p *models.ExecutionProposal) string {
	return fmt.Sprintf("%s:%s:%s", p.Ticker, p.Horizon, util.FormatSignalTime(p.SignalTime))
}

// Authorize runs the proposal through every gate in order: kill switch,
// market regime, idempotency, cooldown. The first gate that rejects wins;
// only a proposal that clears all four is authorized, and authorization
// immediately records the cooldown for the ticker.
func (g *Gateway) Authorize(ctx context.Context, p *models.ExecutionProposal) *models.ExecutionDecision {
	start := time.Now()
	decision := &models.ExecutionDecision{
		ExecutionID: ExecutionID(p),
		Ticker:      p.Ticker,
		DecidedAt:   time.Now().UTC(),
	}

	ctx, cancel := context.WithTimeout(ctx, g.storeTimeout)
	defer cancel()

	g.runGates(ctx, p, decision)

	if decision.Authorized {
		g.metrics.RecordGatewayDecision("authorized", "")
	} else {
		g.metrics.RecordGatewayDecision("rejected", string(decision.Reason))
	}
	g.metrics.RecordLatency("gateway_authorize", time.Since(start).Seconds())
	g.log.Info("execution decision",
		logger.String("execution_id", decision.ExecutionID),
		logger.Bool("authorized", decision.Authorized),
		logger.String("reason", string(decision.Reason)))

	if g.sink != nil {
		g.sink.BroadcastDecision(decision)
	}
	return decision
}

func (g *Gateway) runGates(ctx context.Context, p *models.ExecutionProposal, decision *models.ExecutionDecision) {
	// Gate 1: kill switch. Unreadable state means disabled.
	enabled, err := g.state.ExecutionEnabled(ctx)
	if err != nil {
		g.metrics.RecordError("gateway_state_read")
		g.reject(decision, models.ReasonKillSwitchDisabled, fmt.Sprintf("kill switch unreadable: %v", err))
		return
	}
	if !enabled {
		g.reject(decision, models.ReasonKillSwitchDisabled, "execution disabled by kill switch")
		return
	}

	// Gate 2: market regime must be GREEN.
	regime, err := g.state.RegimeStatus(ctx)
	if err != nil {
		g.metrics.RecordError("gateway_state_read")
		g.reject(decision, models.ReasonRegimeNotApproved, fmt.Sprintf("regime unreadable: %v", err))
		return
	}
	if regime.State != models.RegimeApproved {
		g.reject(decision, models.ReasonRegimeNotApproved, fmt.Sprintf("market regime is %s", regime.State))
		return
	}

	// Gate 3: idempotency. SetIfAbsent is the atomic claim on the execution
	// id; the loser of a race sees the key already present.
	claimed, err := g.cache.SetIfAbsent(ctx, seenKeyPrefix+decision.ExecutionID, time.Now().UTC().Format(time.RFC3339), g.idempotencyTTL)
	if err != nil {
		g.metrics.RecordError("gateway_cache")
		g.reject(decision, models.ReasonDuplicateExecution, fmt.Sprintf("idempotency store unavailable: %v", err))
		return
	}
	if !claimed {
		g.reject(decision, models.ReasonDuplicateExecution, "execution id already claimed")
		return
	}

	// Gate 4: per-ticker cooldown.
	cooldownKey := cooldownKeyPrefix + p.Ticker
	var priorRaw string
	err = g.cache.Get(ctx, cooldownKey, &priorRaw)
	switch {
	case err == nil:
		prior, parseErr := time.Parse(time.RFC3339, priorRaw)
		if parseErr != nil {
			g.metrics.RecordError("gateway_cooldown_parse")
			g.reject(decision, models.ReasonInCooldown, fmt.Sprintf("cooldown record unreadable: %v", parseErr))
			return
		}
		decision.PriorTradeAt = &prior
		g.reject(decision, models.ReasonInCooldown, fmt.Sprintf("last trade for %s at %s", p.Ticker, prior.Format(time.RFC3339)))
		return
	case err == cache.ErrCacheMiss:
		// no recent trade, fall through
	default:
		g.metrics.RecordError("gateway_cache")
		g.reject(decision, models.ReasonInCooldown, fmt.Sprintf("cooldown store unavailable: %v", err))
		return
	}

	if err := g.cache.Set(ctx, cooldownKey, time.Now().UTC().Format(time.RFC3339), g.cooldownWindow); err != nil {
		g.metrics.RecordError("gateway_cache")
		g.reject(decision, models.ReasonInCooldown, fmt.Sprintf("cooldown record failed: %v", err))
		return
	}

	decision.Authorized = true
}

func (g *Gateway) reject(decision *models.ExecutionDecision, reason models.RejectReason, detail string) {
	decision.Authorized = false
	decision.Reason = reason
	decision.Detail = detail
}
