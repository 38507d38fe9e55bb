// Package metrics declares the Prometheus collectors exported at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Admissions counts registration submissions by resource kind and
	// outcome code ("ok", "capacity_exceeded", ...).
	Admissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "registration_admissions_total", Help: "Registration submissions by kind and outcome"},
		[]string{"kind", "outcome"},
	)
	RegistrationTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "registration_transitions_total", Help: "Registration lifecycle actions by event and outcome"},
		[]string{"event", "outcome"},
	)
	ResourceTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "resource_transitions_total", Help: "Resource lifecycle actions by event and outcome"},
		[]string{"event", "outcome"},
	)
	CertificatesIssued = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "certificates_issued_total", Help: "Certificates newly issued"},
	)
	NotifyDropped = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "notify_dropped_total", Help: "Side-effect messages dropped because the buffer was full"},
	)
	NotifyFailed = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "notify_failed_total", Help: "Side-effect messages the backend failed to accept"},
	)
	StatsCacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "stats_cache_requests_total", Help: "Statistics projection lookups by result"},
		[]string{"result"},
	)

	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Count of HTTP requests"},
		[]string{"method", "route", "code"},
	)
	HTTPLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

func init() {
	prometheus.MustRegister(
		Admissions,
		RegistrationTransitions,
		ResourceTransitions,
		CertificatesIssued,
		NotifyDropped,
		NotifyFailed,
		StatsCacheHits,
		HTTPRequests,
		HTTPLatency,
	)
}
