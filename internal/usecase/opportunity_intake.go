package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"TruthGate/internal/domain/models"
	"TruthGate/internal/domain/repository"
	"TruthGate/internal/services/calibration"
	"TruthGate/pkg/logger"
	"TruthGate/pkg/util"
)

// OpportunityIntake consumes issued opportunities from Kafka, applies the
// current shrink factor to the raw probability and appends the signal to the
// opportunity log. Malformed messages are dropped after logging: replaying a
// bad payload cannot make it parse.
type OpportunityIntake struct {
	topic       string
	oplog       repository.OpportunityLog
	calibration *CalibrationRunner
	metrics     repository.Metrics
	log         *logger.Logger
	validate    *validator.Validate
}

func NewOpportunityIntake(
	topic string,
	oplog repository.OpportunityLog,
	calibration *CalibrationRunner,
	metrics repository.Metrics,
	log *logger.Logger,
) *OpportunityIntake {
	return &OpportunityIntake{
		topic:       topic,
		oplog:       oplog,
		calibration: calibration,
		metrics:     metrics,
		log:         log,
		validate:    validator.New(),
	}
}

func (h *OpportunityIntake) Topic() string { return h.topic }

// Handle processes one opportunity message. A store error is returned so the
// consumer retries; a validation error is swallowed after logging.
func (h *OpportunityIntake) Handle(ctx context.Context, data []byte) error {
	var opp models.Opportunity
	if err := json.Unmarshal(data, &opp); err != nil {
		h.metrics.RecordError("intake_unmarshal")
		h.log.Warn("opportunity message unparseable", logger.Error(err))
		return nil
	}
	if opp.ID == "" {
		opp.ID = fmt.Sprintf("%s:%s:%s", opp.Ticker, opp.Horizon, util.FormatSignalTime(opp.IssuedAt))
	}
	if err := h.validate.StructCtx(ctx, &opp); err != nil {
		h.metrics.RecordError("intake_invalid")
		h.log.Warn("opportunity message invalid",
			logger.String("id", opp.ID),
			logger.Error(err),
		)
		return nil
	}

	shrink := h.calibration.ShrinkFor(opp.Horizon, opp.RegimeState, opp.AttentionBucket)
	adjusted := calibration.ApplyShrink(opp.Probability, shrink)

	if err := h.oplog.Insert(ctx, &opp, adjusted, shrink); err != nil {
		h.metrics.RecordError("intake_insert")
		return err
	}

	h.log.Info("opportunity recorded",
		logger.String("id", opp.ID),
		logger.String("ticker", opp.Ticker),
		logger.String("horizon", string(opp.Horizon)),
		logger.Float64("probability_raw", opp.Probability),
		logger.Float64("probability_adjusted", adjusted),
		logger.Float64("shrink_factor", shrink),
		logger.Time("issued_at", opp.IssuedAt.UTC()),
	)
	return nil
}
