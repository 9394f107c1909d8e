package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bsqa",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, route and status code.",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "bsqa",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.3, 0.5, 1, 2, 5},
	}, []string{"method", "route"})

	SavesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bsqa",
		Name:      "saves_total",
		Help:      "Settings saves by result (ok, local_only, invalid, conflict, error).",
	}, []string{"result"})

	ImportsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bsqa",
		Name:      "imports_total",
		Help:      "Settings imports by result (ok, invalid).",
	}, []string{"result"})

	RemoteRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bsqa",
		Name:      "remote_requests_total",
		Help:      "Requests to the QA backend by operation and status.",
	}, []string{"op", "status"})

	RemoteRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "bsqa",
		Name:      "remote_request_duration_seconds",
		Help:      "QA backend request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 20},
	}, []string{"op"})

	StaleResponsesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bsqa",
		Name:      "stale_responses_total",
		Help:      "Backend responses discarded because a newer request superseded them.",
	}, []string{"op"})

	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "bsqa",
		Name:      "active_sessions",
		Help:      "Open form sessions.",
	})

	ExternalChangesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "bsqa",
		Name:      "external_changes_total",
		Help:      "Settings changes made by another process and picked up by the watcher.",
	})
)

var registerOnce sync.Once

// Register adds every collector to reg. Repeated calls are no-ops, so
// tests that build several servers do not panic on duplicate registration.
func Register(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		reg.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			SavesTotal,
			ImportsTotal,
			RemoteRequestsTotal,
			RemoteRequestDuration,
			StaleResponsesTotal,
			ActiveSessions,
			ExternalChangesTotal,
		)
	})
}
