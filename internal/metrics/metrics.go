// Package metrics exposes Prometheus metrics for Smart Pot Core.
//
// All collectors live on a private registry owned by a Metrics value, so
// tests and multiple servers never collide on global registration.
package metrics

import (
	"database/sql"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "smartpot"

// Label values for AuthAttempts.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics holds the registry and every collector the service updates.
type Metrics struct {
	Registry *prometheus.Registry

	AppInfo *prometheus.GaugeVec

	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// ReadingsIngested counts stored sensor readings by source (api, mqtt).
	ReadingsIngested *prometheus.CounterVec
	// ReadingsRejected counts readings refused by source and reason.
	ReadingsRejected *prometheus.CounterVec
	// AuthAttempts counts password and refresh grants by grant and outcome.
	AuthAttempts *prometheus.CounterVec
	// Registrations counts created accounts.
	Registrations prometheus.Counter
	// RefreshTokensPurged counts rows removed by the expiry sweep.
	RefreshTokensPurged prometheus.Counter
}

// New creates a Metrics with Go runtime and process collectors registered.
func New(version string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	m := &Metrics{
		Registry: reg,
		AppInfo: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "app_info",
			Help:      "Application version information (always 1, version in labels)",
		}, []string{"version"}),
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			// argon2id logins sit around 50-100ms, so the middle buckets are dense.
			Buckets: []float64{.001, .005, .01, .025, .05, .075, .1, .25, .5, 1, 2.5, 5},
		}, []string{"method", "route"}),
		HTTPRequestsInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Current number of HTTP requests being processed",
		}),
		ReadingsIngested: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sensor_readings_ingested_total",
			Help:      "Sensor readings stored, by source",
		}, []string{"source"}),
		ReadingsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sensor_readings_rejected_total",
			Help:      "Sensor readings refused, by source and reason",
		}, []string{"source", "reason"}),
		AuthAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_attempts_total",
			Help:      "Token grants by grant type and outcome",
		}, []string{"grant", "outcome"}),
		Registrations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "user_registrations_total",
			Help:      "Accounts created",
		}),
		RefreshTokensPurged: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_tokens_purged_total",
			Help:      "Expired refresh tokens removed by the cleanup loop",
		}),
	}
	m.AppInfo.WithLabelValues(version).Set(1)
	return m
}

// RegisterDB exposes connection pool statistics for db.
func (m *Metrics) RegisterDB(db *sql.DB) error {
	return m.Registry.Register(collectors.NewDBStatsCollector(db, "smartpot"))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
