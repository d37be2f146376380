package usecase

import (
	"context"

	"TruthGate/pkg/logger"
	"TruthGate/pkg/queue"
)

const (
	JobTypeTruthRun       = "truth_run"
	JobTypeCalibrationRun = "calibration_run"
)

// TruthRunPayload is the optional body of a truth_run job.
type TruthRunPayload struct {
	Limit int `json:"limit"`
}

// TruthRunJob runs an evaluation sweep when a truth_run message arrives on
// the job queue. Operator tooling enqueues these outside the regular
// interval schedule.
type TruthRunJob struct {
	runner *TruthRunner
	log    *logger.Logger
}

func NewTruthRunJob(runner *TruthRunner, log *logger.Logger) *TruthRunJob {
	return &TruthRunJob{runner: runner, log: log}
}

func (j *TruthRunJob) Name() string { return "truth-run" }
func (j *TruthRunJob) Type() string { return JobTypeTruthRun }

func (j *TruthRunJob) Handle(ctx context.Context, payload interface{}) error {
	limit := 0
	if payload != nil {
		if p, err := queue.ParsePayload[TruthRunPayload](payload); err == nil {
			limit = p.Limit
		}
	}

	stats, err := j.runner.RunBatch(ctx, limit)
	if err != nil {
		return err
	}
	j.log.Info("queued truth run finished",
		logger.Int("scanned", stats.Scanned),
		logger.Int("errors", stats.Errors),
	)
	return nil
}

// CalibrationRunJob triggers a calibration recompute from the job queue.
type CalibrationRunJob struct {
	runner *CalibrationRunner
}

func NewCalibrationRunJob(runner *CalibrationRunner) *CalibrationRunJob {
	return &CalibrationRunJob{runner: runner}
}

func (j *CalibrationRunJob) Name() string { return "calibration-run" }
func (j *CalibrationRunJob) Type() string { return JobTypeCalibrationRun }

func (j *CalibrationRunJob) Handle(ctx context.Context, _ interface{}) error {
	return j.runner.RunOnce(ctx)
}

var (
	_ queue.Job = (*TruthRunJob)(nil)
	_ queue.Job = (*CalibrationRunJob)(nil)
)
