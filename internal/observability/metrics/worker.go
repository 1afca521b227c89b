package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry
	service  string

	sessionTotal    *prometheus.CounterVec
	sessionDuration *prometheus.HistogramVec
	sessionInFlight prometheus.Gauge
	eventLag        *prometheus.HistogramVec
}

func NewWorkerMetrics(service string, registry *prometheus.Registry) *WorkerMetrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	sessionTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cpc",
			Subsystem: "worker",
			Name:      "session_runs_total",
			Help:      "Total driven sessions by status.",
		},
		[]string{"service", "status"},
	)
	sessionDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cpc",
			Subsystem: "worker",
			Name:      "session_run_duration_seconds",
			Help:      "Time from document upload event to report readiness.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200, 1800},
		},
		[]string{"service", "status"},
	)
	sessionInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "cpc",
			Subsystem: "worker",
			Name:      "session_runs_in_flight",
			Help:      "Number of sessions currently driven by the worker.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	eventLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cpc",
			Subsystem: "worker",
			Name:      "event_lag_seconds",
			Help:      "Delay between lifecycle event publication and handling.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)

	registry.MustRegister(sessionTotal, sessionDuration, sessionInFlight, eventLag)

	return &WorkerMetrics{
		registry:        registry,
		service:         service,
		sessionTotal:    sessionTotal,
		sessionDuration: sessionDuration,
		sessionInFlight: sessionInFlight,
		eventLag:        eventLag,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartSession() {
	m.sessionInFlight.Inc()
}

func (m *WorkerMetrics) FinishSession(duration time.Duration, err error) {
	m.sessionInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.sessionTotal.WithLabelValues(m.service, status).Inc()
	m.sessionDuration.WithLabelValues(m.service, status).Observe(duration.Seconds())
}

func (m *WorkerMetrics) ObserveEventLag(lag time.Duration) {
	if lag < 0 {
		return
	}
	m.eventLag.WithLabelValues(m.service).Observe(lag.Seconds())
}
