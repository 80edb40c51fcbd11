// Package metrics exposes Prometheus instrumentation for the chat API.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	registry *prometheus.Registry

	// Chat pipeline metrics
	ChatRequestsTotal   *prometheus.CounterVec
	ChatRequestDuration *prometheus.HistogramVec

	// Session metrics
	SessionsActive       prometheus.Gauge
	SessionsCreatedTotal prometheus.Counter
	SessionsDeletedTotal prometheus.Counter

	// Provider metrics
	ProviderErrorsTotal *prometheus.CounterVec
}

// New creates and registers all metrics
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		ChatRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chat_requests_total",
				Help: "Total number of chat requests",
			},
			[]string{"user_type", "status"},
		),
		ChatRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chat_request_duration_seconds",
				Help:    "Duration of chat requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"user_type"},
		),
		SessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sessions_active",
				Help: "Number of live chat sessions in the registry",
			},
		),
		SessionsCreatedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sessions_created_total",
				Help: "Total number of provider sessions created",
			},
		),
		SessionsDeletedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sessions_deleted_total",
				Help: "Total number of sessions removed from the registry",
			},
		),
		ProviderErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "provider_errors_total",
				Help: "Total number of provider errors by kind",
			},
			[]string{"kind"},
		),
	}

	registry.MustRegister(
		m.ChatRequestsTotal,
		m.ChatRequestDuration,
		m.SessionsActive,
		m.SessionsCreatedTotal,
		m.SessionsDeletedTotal,
		m.ProviderErrorsTotal,
	)

	return m
}

// Handler returns an HTTP handler serving the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
