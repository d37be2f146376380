package usecase

import (
	"context"
	"sync"
	"time"

	"TruthGate/internal/domain/models"
	"TruthGate/internal/domain/repository"
	"TruthGate/internal/services/truth"
	"TruthGate/pkg/logger"
)

const (
	DefaultEntryTolerance = 2 * time.Minute
	DefaultATRPeriod      = 14
	DefaultBatchLimit     = 500
	DefaultWorkers        = 4
	DefaultStoreTimeout   = 10 * time.Second
)

// resultPublisher is the slice of the Kafka producer the runner needs.
type resultPublisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
}

// RunStats summarizes one evaluation sweep.
type RunStats struct {
	Scanned int `json:"scanned"`
	Pass    int `json:"pass"`
	Fail    int `json:"fail"`
	Expired int `json:"expired"`
	NoData  int `json:"no_data"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}

// TruthRunner sweeps matured opportunities, walks their forward candles and
// appends the verdicts. Evaluation is fail-open: a store failure on one
// opportunity produces a NO_DATA record, never a dropped signal.
type TruthRunner struct {
	candles   repository.CandleStore
	history   repository.EvaluationHistory
	evaluator *truth.Evaluator
	publisher resultPublisher
	metrics   repository.Metrics
	log       *logger.Logger

	entryTolerance time.Duration
	atrPeriod      int
	batchLimit     int
	workers        int
	storeTimeout   time.Duration
	topic          string
}

type TruthRunnerOption func(*TruthRunner)

func WithEntryTolerance(d time.Duration) TruthRunnerOption {
	return func(r *TruthRunner) {
		if d > 0 {
			r.entryTolerance = d
		}
	}
}

func WithATRPeriod(n int) TruthRunnerOption {
	return func(r *TruthRunner) {
		if n > 0 {
			r.atrPeriod = n
		}
	}
}

func WithBatchLimit(n int) TruthRunnerOption {
	return func(r *TruthRunner) {
		if n > 0 {
			r.batchLimit = n
		}
	}
}

func WithWorkers(n int) TruthRunnerOption {
	return func(r *TruthRunner) {
		if n > 0 {
			r.workers = n
		}
	}
}

func WithRunnerStoreTimeout(d time.Duration) TruthRunnerOption {
	return func(r *TruthRunner) {
		if d > 0 {
			r.storeTimeout = d
		}
	}
}

// WithResultPublisher wires the Kafka producer and topic for evaluation
// results. Without it, results stay in ClickHouse only.
func WithResultPublisher(p resultPublisher, topic string) TruthRunnerOption {
	return func(r *TruthRunner) {
		r.publisher = p
		r.topic = topic
	}
}

func NewTruthRunner(
	candles repository.CandleStore,
	history repository.EvaluationHistory,
	evaluator *truth.Evaluator,
	metrics repository.Metrics,
	log *logger.Logger,
	opts ...TruthRunnerOption,
) *TruthRunner {
	r := &TruthRunner{
		candles:        candles,
		history:        history,
		evaluator:      evaluator,
		metrics:        metrics,
		log:            log,
		entryTolerance: DefaultEntryTolerance,
		atrPeriod:      DefaultATRPeriod,
		batchLimit:     DefaultBatchLimit,
		workers:        DefaultWorkers,
		storeTimeout:   DefaultStoreTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunOnce evaluates every matured, unevaluated opportunity once. Individual
// failures are counted, not fatal; only an unreadable work list aborts the
// sweep.
func (r *TruthRunner) RunOnce(ctx context.Context) (RunStats, error) {
	return r.RunBatch(ctx, r.batchLimit)
}

// RunBatch is RunOnce with an explicit batch size, for operator-triggered
// sweeps.
func (r *TruthRunner) RunBatch(ctx context.Context, limit int) (RunStats, error) {
	if limit <= 0 {
		limit = r.batchLimit
	}

	start := time.Now()
	var stats RunStats

	pending, err := r.history.Unevaluated(ctx, time.Now().UTC(), limit)
	if err != nil {
		r.metrics.RecordError("truth_list_pending")
		return stats, err
	}
	stats.Scanned = len(pending)
	if len(pending) == 0 {
		return stats, nil
	}

	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		work = make(chan models.Opportunity)
	)

	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for opp := range work {
				outcome, err := r.evaluateOne(ctx, &opp)
				mu.Lock()
				switch {
				case err != nil:
					stats.Errors++
				case outcome == "":
					stats.Skipped++
				case outcome == models.OutcomePass:
					stats.Pass++
				case outcome == models.OutcomeFail:
					stats.Fail++
				case outcome == models.OutcomeExpired:
					stats.Expired++
				default:
					stats.NoData++
				}
				mu.Unlock()
			}
		}()
	}

	for _, opp := range pending {
		work <- opp
	}
	close(work)
	wg.Wait()

	r.metrics.RecordLatency("truth_run", time.Since(start).Seconds())
	r.log.Info("truth run complete",
		logger.Int("scanned", stats.Scanned),
		logger.Int("pass", stats.Pass),
		logger.Int("fail", stats.Fail),
		logger.Int("expired", stats.Expired),
		logger.Int("no_data", stats.NoData),
		logger.Int("skipped", stats.Skipped),
		logger.Int("errors", stats.Errors),
		logger.Duration("duration_ms", time.Since(start)),
	)
	return stats, nil
}

// evaluateOne produces and persists the verdict for a single opportunity.
// The empty outcome means the opportunity already had a result.
func (r *TruthRunner) evaluateOne(parent context.Context, opp *models.Opportunity) (models.Outcome, error) {
	ctx, cancel := context.WithTimeout(parent, r.storeTimeout)
	defer cancel()

	done, err := r.history.HasResult(ctx, opp.ID)
	if err != nil {
		r.metrics.RecordError("truth_has_result")
		return "", err
	}
	if done {
		return "", nil
	}

	result := r.evaluate(ctx, opp)

	if err := r.history.AppendResult(ctx, result); err != nil {
		r.metrics.RecordError("truth_append_result")
		r.log.Error("append evaluation result failed",
			logger.String("opportunity_id", opp.ID),
			logger.Error(err),
		)
		return "", err
	}

	r.metrics.RecordEvaluation(string(opp.Horizon), string(result.Outcome))
	if r.publisher != nil {
		if err := r.publisher.Publish(ctx, r.topic, []byte(opp.ID), result); err != nil {
			// the durable record exists; a feed miss is log-worthy, not fatal
			r.metrics.RecordError("truth_publish_result")
			r.log.Warn("publish evaluation result failed",
				logger.String("opportunity_id", opp.ID),
				logger.Error(err),
			)
		}
	}
	return result.Outcome, nil
}

// evaluate gathers market data and runs the candle walk. Any data-fetch
// failure degrades to a NO_DATA verdict with the reason attached.
func (r *TruthRunner) evaluate(ctx context.Context, opp *models.Opportunity) *models.EvaluationResult {
	now := time.Now().UTC()

	entry, err := r.candles.EntryCandle(ctx, opp.Ticker, opp.IssuedAt, r.entryTolerance)
	if err != nil {
		r.metrics.RecordError("truth_entry_candle")
		return r.noData(opp, now, "entry candle lookup failed: "+err.Error())
	}
	if entry == nil {
		return r.evaluator.Evaluate(opp, nil, nil, 0, now)
	}

	atr, err := r.candles.ATR(ctx, opp.Ticker, opp.IssuedAt, r.atrPeriod)
	if err != nil {
		r.metrics.RecordError("truth_atr")
		return r.noData(opp, now, "atr lookup failed: "+err.Error())
	}

	windowEnd := opp.IssuedAt.Add(opp.Horizon.Duration())
	forward, err := r.candles.ForwardCandles(ctx, opp.Ticker, entry.Bucket, windowEnd)
	if err != nil {
		r.metrics.RecordError("truth_forward_candles")
		return r.noData(opp, now, "forward candle lookup failed: "+err.Error())
	}

	return r.evaluator.Evaluate(opp, entry, forward, atr, now)
}

func (r *TruthRunner) noData(opp *models.Opportunity, now time.Time, reason string) *models.EvaluationResult {
	return &models.EvaluationResult{
		OpportunityID:     opp.ID,
		Ticker:            opp.Ticker,
		Horizon:           opp.Horizon,
		IssuedAt:          opp.IssuedAt,
		RegimeState:       opp.RegimeState,
		AttentionBucket:   opp.AttentionBucket,
		ProbabilityIssued: opp.Probability,
		Outcome:           models.OutcomeNoData,
		Reason:            reason,
		EvaluatedAt:       now,
	}
}
