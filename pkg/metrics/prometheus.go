package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	inferences     *prometheus.CounterVec
	parseFailures  *prometheus.CounterVec
	eventsTotal    *prometheus.CounterVec
	signalsTotal   *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
	latency        *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		inferences: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cryptoscanner_inference_requests_total",
				Help: "Inference requests by provider and status",
			},
			[]string{"provider", "status"},
		),
		parseFailures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cryptoscanner_parse_failures_total",
				Help: "AI response parse failures by stage",
			},
			[]string{"stage"},
		),
		eventsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cryptoscanner_events_processed_total",
				Help: "Events processed by terminal status",
			},
			[]string{"status"},
		),
		signalsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cryptoscanner_signals_total",
				Help: "Signals produced by class",
			},
			[]string{"class"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cryptoscanner_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cryptoscanner_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordInference records one inference call against a provider.
func (r *Recorder) RecordInference(provider, status string) {
	r.inferences.WithLabelValues(provider, status).Inc()
}

// RecordParseFailure records a failed parse of an AI response.
func (r *Recorder) RecordParseFailure(stage string) {
	r.parseFailures.WithLabelValues(stage).Inc()
}

// RecordEventProcessed records an event reaching a terminal status.
func (r *Recorder) RecordEventProcessed(status string) {
	r.eventsTotal.WithLabelValues(status).Inc()
}

// RecordSignal records a produced signal by class.
func (r *Recorder) RecordSignal(class string) {
	r.signalsTotal.WithLabelValues(class).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
