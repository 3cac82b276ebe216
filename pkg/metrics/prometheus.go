package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	stepsTotal       *prometheus.CounterVec
	stepLatency      *prometheus.HistogramVec
	warningsTotal    *prometheus.CounterVec
	skippedTotal     *prometheus.CounterVec
	predictionsTotal *prometheus.CounterVec
	accuracy         *prometheus.GaugeVec
	beliefEntropy    *prometheus.GaugeVec
	errorsTotal      *prometheus.CounterVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		stepsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regimecast_steps_total",
				Help: "Total number of filtering steps processed",
			},
			[]string{"symbol"},
		),
		stepLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "regimecast_step_duration_seconds",
				Help:    "Duration of one filter/learn/forecast step in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"symbol"},
		),
		warningsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regimecast_warnings_total",
				Help: "Total number of numerical and convergence warnings",
			},
			[]string{"kind"},
		),
		skippedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regimecast_skipped_observations_total",
				Help: "Observations whose learning update was skipped as malformed",
			},
			[]string{"node"},
		),
		predictionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regimecast_predictions_total",
				Help: "Resolved predictions by outcome",
			},
			[]string{"node", "outcome"},
		),
		accuracy: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "regimecast_prediction_accuracy",
				Help: "Running share of resolved predictions that were correct",
			},
			[]string{"node"},
		),
		beliefEntropy: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "regimecast_belief_entropy",
				Help: "Normalized entropy of the current belief per hidden node",
			},
			[]string{"node"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regimecast_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
	}
}

// RecordStep records one completed engine step and its latency.
func (r *Recorder) RecordStep(symbol string, seconds float64) {
	r.stepsTotal.WithLabelValues(symbol).Inc()
	r.stepLatency.WithLabelValues(symbol).Observe(seconds)
}

// RecordWarning records a numerical or convergence warning.
func (r *Recorder) RecordWarning(kind string) {
	r.warningsTotal.WithLabelValues(kind).Inc()
}

// RecordSkipped records an observation whose learning update was skipped.
func (r *Recorder) RecordSkipped(node string) {
	r.skippedTotal.WithLabelValues(node).Inc()
}

// RecordPrediction records a resolved prediction outcome.
func (r *Recorder) RecordPrediction(node string, correct bool) {
	outcome := "incorrect"
	if correct {
		outcome = "correct"
	}
	r.predictionsTotal.WithLabelValues(node, outcome).Inc()
}

// SetAccuracy publishes the running accuracy for a node.
func (r *Recorder) SetAccuracy(node string, ratio float64) {
	r.accuracy.WithLabelValues(node).Set(ratio)
}

// SetEntropy publishes the normalized belief entropy for a hidden node.
func (r *Recorder) SetEntropy(node string, value float64) {
	r.beliefEntropy.WithLabelValues(node).Set(value)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}
