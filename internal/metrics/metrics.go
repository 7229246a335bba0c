package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/schoolresults/server/internal/apperr"
)

const namespace = "licensing"

// Metrics holds the Prometheus collectors of the licensing server. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	licenseOps    *prometheus.CounterVec
	sessionChecks *prometheus.CounterVec
	sessionsSwept prometheus.Counter
	rateLimited   *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

// New registers the collectors with reg
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		licenseOps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "license_operations_total",
			Help:      "License operations by operation and result kind.",
		}, []string{"operation", "result"}),
		sessionChecks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admin_session_verifications_total",
			Help:      "Admin session token verifications by result kind.",
		}, []string{"result"}),
		sessionsSwept: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admin_sessions_swept_total",
			Help:      "Expired admin sessions removed by the periodic sweep.",
		}),
		rateLimited: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_requests_total",
			Help:      "Requests rejected by the rate limiter.",
		}, []string{"route"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route, method and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
	}
}

func result(err error) string {
	if err == nil {
		return "ok"
	}
	return string(apperr.KindOf(err))
}

// LicenseOp counts a license operation outcome
func (m *Metrics) LicenseOp(operation string, err error) {
	if m == nil {
		return
	}
	m.licenseOps.WithLabelValues(operation, result(err)).Inc()
}

// SessionCheck counts an admin session verification outcome
func (m *Metrics) SessionCheck(err error) {
	if m == nil {
		return
	}
	m.sessionChecks.WithLabelValues(result(err)).Inc()
}

// SessionsSwept adds n removed sessions
func (m *Metrics) SessionsSwept(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.sessionsSwept.Add(float64(n))
}

// RateLimited counts a rejected request
func (m *Metrics) RateLimited(route string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(route).Inc()
}

// ObserveHTTP records a request duration in seconds
func (m *Metrics) ObserveHTTP(route, method, status string, seconds float64) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(route, method, status).Observe(seconds)
}
