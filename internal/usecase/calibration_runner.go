package usecase

import (
	"context"
	"sync/atomic"
	"time"

	"TruthGate/internal/domain/models"
	"TruthGate/internal/domain/repository"
	"TruthGate/internal/services/calibration"
	"TruthGate/pkg/cache"
	"TruthGate/pkg/logger"
)

const (
	DefaultLookback = 30 * 24 * time.Hour

	calibrationLockKey = "calibration:lock"
	calibrationLockTTL = 5 * time.Minute
)

// CalibrationRunner recomputes the calibration table and publishes it. The
// latest snapshot is kept in an atomic pointer so shrink lookups never block
// behind a recompute, and a distributed lock keeps concurrent instances from
// racing a run.
type CalibrationRunner struct {
	history    repository.EvaluationHistory
	state      repository.StateStore
	aggregator *calibration.Aggregator
	locks      cache.Service
	metrics    repository.Metrics
	log        *logger.Logger

	lookback time.Duration
	current  atomic.Pointer[models.CalibrationState]
}

type CalibrationRunnerOption func(*CalibrationRunner)

func WithLookback(d time.Duration) CalibrationRunnerOption {
	return func(r *CalibrationRunner) {
		if d > 0 {
			r.lookback = d
		}
	}
}

func NewCalibrationRunner(
	history repository.EvaluationHistory,
	state repository.StateStore,
	aggregator *calibration.Aggregator,
	locks cache.Service,
	metrics repository.Metrics,
	log *logger.Logger,
	opts ...CalibrationRunnerOption,
) *CalibrationRunner {
	r := &CalibrationRunner{
		history:    history,
		state:      state,
		aggregator: aggregator,
		locks:      locks,
		metrics:    metrics,
		log:        log,
		lookback:   DefaultLookback,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Warm loads the last published snapshot so shrink lookups have data before
// the first local recompute. Absence is fine: lookups fall back to the
// conservative default.
func (r *CalibrationRunner) Warm(ctx context.Context) error {
	state, err := r.state.LoadCalibration(ctx)
	if err != nil {
		return err
	}
	if state != nil {
		r.current.Store(state)
		r.log.Info("calibration snapshot warmed",
			logger.Int64("version", state.Version),
			logger.Int("buckets", len(state.Buckets)),
		)
	}
	return nil
}

// RunOnce recomputes the full calibration table from the evaluation history
// and publishes it. Returns without error when another instance holds the
// run lock.
func (r *CalibrationRunner) RunOnce(ctx context.Context) error {
	start := time.Now()

	locked, err := r.locks.TryLock(ctx, calibrationLockKey, calibrationLockTTL)
	if err != nil {
		r.metrics.RecordError("calibration_lock")
		return err
	}
	if !locked {
		r.log.Debug("calibration run skipped, lock held elsewhere")
		return nil
	}
	defer func() {
		if err := r.locks.Unlock(context.WithoutCancel(ctx), calibrationLockKey); err != nil {
			r.log.Warn("calibration unlock failed", logger.Error(err))
		}
	}()

	counters, err := r.history.BucketCounters(ctx, r.lookback)
	if err != nil {
		r.metrics.RecordError("calibration_counters")
		return err
	}

	snapshot := r.aggregator.Aggregate(counters, time.Now().UTC())

	if err := r.state.PublishCalibration(ctx, snapshot); err != nil {
		r.metrics.RecordError("calibration_publish")
		return err
	}
	r.current.Store(snapshot)

	r.metrics.RecordCalibrationRun(len(snapshot.Buckets))
	r.metrics.RecordLatency("calibration_run", time.Since(start).Seconds())
	r.log.Info("calibration run complete",
		logger.Int64("version", snapshot.Version),
		logger.Int("buckets", len(snapshot.Buckets)),
		logger.Int("total_signals", snapshot.Global.TotalSignals),
		logger.Duration("duration_ms", time.Since(start)),
	)
	return nil
}

// Snapshot returns the most recent calibration state, nil before the first
// warm or run.
func (r *CalibrationRunner) Snapshot() *models.CalibrationState {
	return r.current.Load()
}

// ShrinkFor resolves the shrink factor for one signal from the current
// snapshot.
func (r *CalibrationRunner) ShrinkFor(horizon models.Horizon, regime, attention string) float64 {
	return calibration.GetShrinkFactor(r.current.Load(), horizon, regime, attention)
}
