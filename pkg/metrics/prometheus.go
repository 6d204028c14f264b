// Package metrics provides Prometheus-based metrics recording for LLM
// calls and conversation outcomes.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder records LLM and pipeline metrics. It satisfies
// agent.MetricsRecorder.
type PrometheusRecorder struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	proposalsTotal  *prometheus.CounterVec
	roundsTotal     *prometheus.CounterVec
	chairTotal      *prometheus.CounterVec
}

// NewPrometheusRecorder creates and registers the metric vectors with
// the default registry. Call once per process.
func NewPrometheusRecorder() *PrometheusRecorder {
	return &PrometheusRecorder{
		requestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_requests_total",
				Help: "Total number of LLM requests by model, role, and status",
			},
			[]string{"model", "role", "status", "error_type"},
		),
		requestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "llm_request_duration_seconds",
				Help:    "Duration of LLM requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"model", "role"},
		),
		proposalsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parliament_proposals_total",
				Help: "Expert proposals collected per round, by validity",
			},
			[]string{"status"},
		),
		roundsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parliament_rounds_total",
				Help: "Conversation rounds completed, by phase",
			},
			[]string{"phase"},
		),
		chairTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parliament_chair_responses_total",
				Help: "Chair summary outcomes by mode",
			},
			[]string{"mode"},
		),
	}
}

// ObserveLLMRequest records one completed LLM call.
func (p *PrometheusRecorder) ObserveLLMRequest(model, role string, success bool, errorType string, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	p.requestsTotal.WithLabelValues(model, role, status, errorType).Inc()
	p.requestDuration.WithLabelValues(model, role).Observe(duration.Seconds())
}

// IncProposals counts collected proposals by validity status.
func (p *PrometheusRecorder) IncProposals(status string, n int) {
	p.proposalsTotal.WithLabelValues(status).Add(float64(n))
}

// IncRound counts a completed round in the given phase.
func (p *PrometheusRecorder) IncRound(phase string) {
	p.roundsTotal.WithLabelValues(phase).Inc()
}

// IncChairResponse counts a chair outcome by response mode.
func (p *PrometheusRecorder) IncChairResponse(mode string) {
	p.chairTotal.WithLabelValues(mode).Inc()
}
