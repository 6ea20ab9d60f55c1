package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Exchange outcome label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Recorder receives exchange observations and experiment lifecycle events.
type Recorder interface {
	ObserveExchange(slot, model, status string, tokens int, dur time.Duration)
	ExperimentStarted()
	ExperimentEnded()
}

// NoOpRecorder discards all observations.
type NoOpRecorder struct{}

// ObserveExchange implements Recorder.
func (NoOpRecorder) ObserveExchange(string, string, string, int, time.Duration) {}

// ExperimentStarted implements Recorder.
func (NoOpRecorder) ExperimentStarted() {}

// ExperimentEnded implements Recorder.
func (NoOpRecorder) ExperimentEnded() {}

// PrometheusRecorder exports observations as Prometheus metrics.
//
// Metrics:
//   - agentdialog_exchanges_total{slot,model,status}
//   - agentdialog_tokens_total{slot,model}
//   - agentdialog_exchange_duration_seconds{model}
//   - agentdialog_active_experiments
type PrometheusRecorder struct {
	// Exchanges counts completion exchanges by slot, model and outcome.
	Exchanges *prometheus.CounterVec

	// Tokens tracks token consumption by slot and model.
	Tokens *prometheus.CounterVec

	// Duration measures exchange latency in seconds.
	// Buckets: 0.1s, 0.5s, 1s, 2s, 5s, 10s, 30s, 60s, 120s
	Duration *prometheus.HistogramVec

	// Active is the number of live experiments and sessions.
	Active prometheus.Gauge
}

// NewPrometheusRecorder registers the metrics with reg. A nil reg uses the
// default registerer.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &PrometheusRecorder{
		Exchanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentdialog_exchanges_total",
				Help: "Total number of completion exchanges by slot, model and status",
			},
			[]string{"slot", "model", "status"},
		),
		Tokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentdialog_tokens_total",
				Help: "Total number of tokens consumed by slot and model",
			},
			[]string{"slot", "model"},
		),
		Duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentdialog_exchange_duration_seconds",
				Help:    "Duration of completion exchanges in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"model"},
		),
		Active: factory.NewGauge(prometheus.GaugeOpts{
			Name: "agentdialog_active_experiments",
			Help: "Number of live experiments and sessions",
		}),
	}
}

// ObserveExchange implements Recorder.
func (r *PrometheusRecorder) ObserveExchange(slot, model, status string, tokens int, dur time.Duration) {
	r.Exchanges.WithLabelValues(slot, model, status).Inc()
	if tokens > 0 {
		r.Tokens.WithLabelValues(slot, model).Add(float64(tokens))
	}
	r.Duration.WithLabelValues(model).Observe(dur.Seconds())
}

// ExperimentStarted implements Recorder.
func (r *PrometheusRecorder) ExperimentStarted() { r.Active.Inc() }

// ExperimentEnded implements Recorder.
func (r *PrometheusRecorder) ExperimentEnded() { r.Active.Dec() }
