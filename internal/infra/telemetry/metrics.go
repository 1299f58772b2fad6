package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the Prometheus collectors exported by the service.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	LoginsTotal     *prometheus.CounterVec
	ActiveSessions  prometheus.Gauge
	OAuthCallbacks  *prometheus.CounterVec
}

// NewMetrics registers and returns the service metric collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		RequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "edu_auth",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "edu_auth",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		LoginsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "edu_auth",
			Name:      "logins_total",
			Help:      "Login attempts by method and outcome",
		}, []string{"method", "outcome"}),
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "edu_auth",
			Name:      "active_sessions",
			Help:      "Sessions created minus sessions destroyed since start",
		}),
		OAuthCallbacks: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "edu_auth",
			Name:      "oauth_callbacks_total",
			Help:      "OAuth callback results by channel and outcome",
		}, []string{"channel", "outcome"}),
	}
}
