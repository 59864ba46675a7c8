// Package metrics exposes Prometheus counters for the request lifecycle.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the application collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry      *prometheus.Registry
	requestsTotal prometheus.Counter
	statusChanges *prometheus.CounterVec
	notifications *prometheus.CounterVec
	rateLimited   prometheus.Counter
	exportedTotal prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "adamara",
			Name:      "ad_requests_created_total",
			Help:      "Ad requests accepted through the intake form.",
		}),
		statusChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "adamara",
			Name:      "ad_request_status_changes_total",
			Help:      "Ad request status changes by target status.",
		}, []string{"status"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "adamara",
			Name:      "notifications_total",
			Help:      "Requester notifications by kind and result.",
		}, []string{"kind", "result"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "adamara",
			Name:      "http_rate_limited_total",
			Help:      "HTTP requests rejected by the rate limiter.",
		}),
		exportedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "adamara",
			Name:      "ad_requests_exported_total",
			Help:      "Ad requests written to CSV exports.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestsTotal,
		m.statusChanges,
		m.notifications,
		m.rateLimited,
		m.exportedTotal,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RequestCreated() {
	if m == nil {
		return
	}
	m.requestsTotal.Inc()
}

func (m *Metrics) StatusChanged(status string) {
	if m == nil {
		return
	}
	m.statusChanges.WithLabelValues(status).Inc()
}

// Notification records the outcome of one notification attempt.
// result is "sent" or "failed".
func (m *Metrics) Notification(kind, result string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

func (m *Metrics) Exported(n int) {
	if m == nil {
		return
	}
	m.exportedTotal.Add(float64(n))
}
