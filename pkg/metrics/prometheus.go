package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	evaluations      *prometheus.CounterVec
	gatewayDecisions *prometheus.CounterVec
	calibrationRuns  prometheus.Counter
	calibrationSize  prometheus.Gauge
	errorsTotal      *prometheus.CounterVec
	latency          *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		evaluations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "truthgate_evaluations_total",
				Help: "Total opportunity evaluations by horizon and outcome",
			},
			[]string{"horizon", "outcome"},
		),
		gatewayDecisions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "truthgate_gateway_decisions_total",
				Help: "Execution gateway decisions by result and rejection reason",
			},
			[]string{"result", "reason"},
		),
		calibrationRuns: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "truthgate_calibration_runs_total",
				Help: "Completed calibration recomputations",
			},
		),
		calibrationSize: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "truthgate_calibration_buckets",
				Help: "Bucket count in the currently published calibration snapshot",
			},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "truthgate_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "truthgate_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordEvaluation records a completed opportunity evaluation.
func (r *Recorder) RecordEvaluation(horizon, outcome string) {
	r.evaluations.WithLabelValues(horizon, outcome).Inc()
}

// RecordGatewayDecision records an authorize/reject decision.
func (r *Recorder) RecordGatewayDecision(result, reason string) {
	r.gatewayDecisions.WithLabelValues(result, reason).Inc()
}

// RecordCalibrationRun records a published calibration snapshot.
func (r *Recorder) RecordCalibrationRun(buckets int) {
	r.calibrationRuns.Inc()
	r.calibrationSize.Set(float64(buckets))
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
