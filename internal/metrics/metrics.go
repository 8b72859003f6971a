// Package metrics provides Prometheus metrics for the API client, view server, and digest.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects bookrisk Prometheus metrics on a private registry.
// All recording methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	APIRequests *prometheus.CounterVec
	APILatency  *prometheus.HistogramVec
	APIRetries  *prometheus.CounterVec

	HTTPRequests *prometheus.CounterVec

	DigestCycles     *prometheus.CounterVec
	DigestAlerts     prometheus.Counter
	RankedEvents     prometheus.Gauge
	CarryForwardSeen prometheus.Counter
}

// New creates a metrics collector with every metric registered.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		APIRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookrisk_api_requests_total",
				Help: "Backend API requests by endpoint and status code",
			},
			[]string{"endpoint", "code"},
		),
		APILatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bookrisk_api_request_duration_seconds",
				Help:    "Backend API request latency including retries",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
			},
			[]string{"endpoint"},
		),
		APIRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookrisk_api_retries_total",
				Help: "Backend API request retries",
			},
			[]string{"endpoint"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookrisk_http_requests_total",
				Help: "View server requests by route and status code",
			},
			[]string{"route", "code"},
		),
		DigestCycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bookrisk_digest_cycles_total",
				Help: "Digest monitor cycles by outcome",
			},
			[]string{"status"},
		),
		DigestAlerts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bookrisk_digest_alerts_total",
			Help: "Events sent in Book Risk digests",
		}),
		RankedEvents: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bookrisk_ranked_events",
			Help: "Events in the most recent ranked list",
		}),
		CarryForwardSeen: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bookrisk_carry_forward_buckets_total",
			Help: "Carry-forward buckets served by the bucket view",
		}),
	}
	m.registerAll()
	return m
}

func (m *Metrics) registerAll() {
	m.registry.MustRegister(
		m.APIRequests,
		m.APILatency,
		m.APIRetries,
		m.HTTPRequests,
		m.DigestCycles,
		m.DigestAlerts,
		m.RankedEvents,
		m.CarryForwardSeen,
	)
}

// Registry returns the prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordAPIRequest records one completed backend call. code is 0 on transport failure.
func (m *Metrics) RecordAPIRequest(endpoint string, code int, seconds float64) {
	if m == nil {
		return
	}
	m.APIRequests.WithLabelValues(endpoint, strconv.Itoa(code)).Inc()
	m.APILatency.WithLabelValues(endpoint).Observe(seconds)
}

func (m *Metrics) RecordAPIRetry(endpoint string) {
	if m == nil {
		return
	}
	m.APIRetries.WithLabelValues(endpoint).Inc()
}

func (m *Metrics) RecordHTTPRequest(route string, code int) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// RecordDigest records one monitor cycle and how many alerts it sent.
func (m *Metrics) RecordDigest(status string, alerts int) {
	if m == nil {
		return
	}
	m.DigestCycles.WithLabelValues(status).Inc()
	m.DigestAlerts.Add(float64(alerts))
}

func (m *Metrics) SetRankedEvents(n int) {
	if m == nil {
		return
	}
	m.RankedEvents.Set(float64(n))
}

func (m *Metrics) AddCarryForward(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.CarryForwardSeen.Add(float64(n))
}
