package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/compliance-pipeline-client/internal/core/domain"
)

// PipelineMetrics covers the polling loops, outcome sequencing and every
// backend HTTP attempt.
type PipelineMetrics struct {
	registry *prometheus.Registry
	service  string

	pollsTotal         *prometheus.CounterVec
	loopsFinishedTotal *prometheus.CounterVec
	staleTotal         *prometheus.CounterVec
	backendCallsTotal  *prometheus.CounterVec
	backendDuration    *prometheus.HistogramVec
}

func NewPipelineMetrics(service string, registry *prometheus.Registry) *PipelineMetrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	pollsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cpc",
			Subsystem: "pipeline",
			Name:      "polls_total",
			Help:      "Total poll attempts by loop and outcome.",
		},
		[]string{"service", "loop", "status"},
	)
	loopsFinishedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cpc",
			Subsystem: "pipeline",
			Name:      "loops_finished_total",
			Help:      "Total finished polling loops by final state.",
		},
		[]string{"service", "loop", "state"},
	)
	staleTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cpc",
			Subsystem: "outcomes",
			Name:      "stale_responses_total",
			Help:      "Responses dropped because a newer request was issued on the same channel.",
		},
		[]string{"service", "channel"},
	)
	backendCallsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cpc",
			Subsystem: "backend",
			Name:      "calls_total",
			Help:      "Total backend HTTP attempts by operation and result.",
		},
		[]string{"service", "operation", "result"},
	)
	backendDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cpc",
			Subsystem: "backend",
			Name:      "call_duration_seconds",
			Help:      "Backend HTTP attempt duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "operation"},
	)

	registry.MustRegister(pollsTotal, loopsFinishedTotal, staleTotal, backendCallsTotal, backendDuration)

	return &PipelineMetrics{
		registry:           registry,
		service:            service,
		pollsTotal:         pollsTotal,
		loopsFinishedTotal: loopsFinishedTotal,
		staleTotal:         staleTotal,
		backendCallsTotal:  backendCallsTotal,
		backendDuration:    backendDuration,
	}
}

func (m *PipelineMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *PipelineMetrics) ObservePoll(loop string, err error) {
	m.pollsTotal.WithLabelValues(m.service, loop, resultLabel(err)).Inc()
}

func (m *PipelineMetrics) ObserveLoopFinished(loop string, state domain.LoopState) {
	m.loopsFinishedTotal.WithLabelValues(m.service, loop, string(state)).Inc()
}

func (m *PipelineMetrics) ObserveStaleResponse(channel string) {
	m.staleTotal.WithLabelValues(m.service, channel).Inc()
}

func (m *PipelineMetrics) ObserveBackendCall(operation string, duration time.Duration, err error) {
	m.backendCallsTotal.WithLabelValues(m.service, operation, resultLabel(err)).Inc()
	m.backendDuration.WithLabelValues(m.service, operation).Observe(duration.Seconds())
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrTemporary):
		return "temporary"
	case errors.Is(err, domain.ErrProcessingFailed):
		return "failed"
	default:
		return "error"
	}
}
