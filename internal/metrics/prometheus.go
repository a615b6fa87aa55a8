package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus mirrors of the wizard metrics, exported on /metrics alongside
// the process defaults. The in-memory store stays authoritative for the
// staff endpoint; these exist for scraping.
var (
	finishTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wizard_finish_total",
		Help: "Total wizard finish attempts by outcome",
	}, []string{"outcome"})

	finishDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wizard_finish_duration_seconds",
		Help:    "Wizard finish latency by outcome",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})

	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total HTTP requests by method, path and status",
	}, []string{"method", "path", "status"})
)

// PrometheusSink returns a latency sink that forwards every recorded finish
// latency to the Prometheus histogram and counter
func PrometheusSink() LatencySink {
	return func(latency float64, correlationID, outcome string) {
		if outcome == "" {
			outcome = "other"
		}
		finishTotal.WithLabelValues(outcome).Inc()
		finishDuration.WithLabelValues(outcome).Observe(latency)
	}
}

// CountHTTPRequest records one served HTTP request
func CountHTTPRequest(method, path, status string) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
}
