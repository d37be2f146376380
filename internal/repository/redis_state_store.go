package repository

import (
	"context"
	"fmt"
	"strings"

	"TruthGate/internal/domain/models"
	"TruthGate/pkg/cache"
	applogger "TruthGate/pkg/logger"
)

const (
	killSwitchKey  = "execution:enabled"
	marketStateKey = "market:state"
	calibrationKey = "calibration:state"
)

// RedisStateStore reads and publishes shared operational state through the
// key-value store. The kill switch and regime keys are written by the
// operator tooling; the calibration snapshot is written here.
type RedisStateStore struct {
	cache cache.Service
	l     *applogger.Logger
}

func NewRedisStateStore(c cache.Service) *RedisStateStore {
	return &RedisStateStore{cache: c}
}

// SetLogger injects a structured logger.
func (s *RedisStateStore) SetLogger(l *applogger.Logger) { s.l = l }

// ExecutionEnabled reads the kill switch. An absent key means disabled:
// execution must be switched on explicitly. The value comparison is
// case-insensitive so an operator writing "True" still enables.
func (s *RedisStateStore) ExecutionEnabled(ctx context.Context) (bool, error) {
	var raw string
	err := s.cache.Get(ctx, killSwitchKey, &raw)
	if err == cache.ErrCacheMiss {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read kill switch: %w", err)
	}
	return strings.EqualFold(raw, "true"), nil
}

// RegimeStatus reads the published market regime. An absent key yields an
// empty state, which no gate treats as approved.
func (s *RedisStateStore) RegimeStatus(ctx context.Context) (models.RegimeStatus, error) {
	var status models.RegimeStatus
	err := s.cache.Get(ctx, marketStateKey, &status)
	if err == cache.ErrCacheMiss {
		return models.RegimeStatus{}, nil
	}
	if err != nil {
		return models.RegimeStatus{}, fmt.Errorf("read regime: %w", err)
	}
	return status, nil
}

// PublishCalibration replaces the shared calibration snapshot. No TTL: a
// stale snapshot is better than none, and every run overwrites it.
func (s *RedisStateStore) PublishCalibration(ctx context.Context, state *models.CalibrationState) error {
	if err := s.cache.Set(ctx, calibrationKey, state, 0); err != nil {
		if s.l != nil {
			s.l.Error("publish calibration failed", applogger.Error(err))
		}
		return fmt.Errorf("publish calibration: %w", err)
	}
	if s.l != nil {
		s.l.Info("calibration snapshot published",
			applogger.Int64("version", state.Version),
			applogger.Int("buckets", len(state.Buckets)),
		)
	}
	return nil
}

// LoadCalibration reads the shared snapshot, nil when none was ever
// published.
func (s *RedisStateStore) LoadCalibration(ctx context.Context) (*models.CalibrationState, error) {
	var state models.CalibrationState
	err := s.cache.Get(ctx, calibrationKey, &state)
	if err == cache.ErrCacheMiss {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load calibration: %w", err)
	}
	return &state, nil
}
