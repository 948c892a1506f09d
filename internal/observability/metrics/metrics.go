// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the service collectors. A nil *Metrics is valid and
// records nothing, which keeps handler tests free of registry setup.
type Metrics struct {
	HTTPRequestsTotal          *prometheus.CounterVec
	HTTPRequestDurationSeconds *prometheus.HistogramVec
	AuthLoginsTotal            *prometheus.CounterVec
	AuthRegistrationsTotal     *prometheus.CounterVec
	EmailsSentTotal            *prometheus.CounterVec
	ReviewsCreatedTotal        prometheus.Counter
}

// New builds the collectors with a constant service label and registers
// them on reg.
func New(service string, reg prometheus.Registerer) *Metrics {
	labels := prometheus.Labels{"service": service}
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "http_requests_total",
				Help:        "Total number of HTTP requests.",
				ConstLabels: labels,
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "http_request_duration_seconds",
				Help:        "Duration of HTTP requests.",
				Buckets:     prometheus.DefBuckets,
				ConstLabels: labels,
			},
			[]string{"method", "path"},
		),
		AuthLoginsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "auth_logins_total",
				Help:        "Total number of login attempts.",
				ConstLabels: labels,
			},
			[]string{"result"},
		),
		AuthRegistrationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "auth_registrations_total",
				Help:        "Total number of registration attempts.",
				ConstLabels: labels,
			},
			[]string{"result"},
		),
		EmailsSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "emails_sent_total",
				Help:        "Total number of transactional emails by kind and result.",
				ConstLabels: labels,
			},
			[]string{"kind", "result"},
		),
		ReviewsCreatedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name:        "reviews_created_total",
				Help:        "Total number of reviews created.",
				ConstLabels: labels,
			},
		),
	}
	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDurationSeconds,
		m.AuthLoginsTotal,
		m.AuthRegistrationsTotal,
		m.EmailsSentTotal,
		m.ReviewsCreatedTotal,
	)
	return m
}

// Result label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

func result(ok bool) string {
	if ok {
		return ResultSuccess
	}
	return ResultFailure
}

// ObserveRequest records one served request.
func (m *Metrics) ObserveRequest(method, path string, status int, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDurationSeconds.WithLabelValues(method, path).Observe(seconds)
}

// Login records a login attempt.
func (m *Metrics) Login(ok bool) {
	if m == nil {
		return
	}
	m.AuthLoginsTotal.WithLabelValues(result(ok)).Inc()
}

// Registration records a signup attempt.
func (m *Metrics) Registration(ok bool) {
	if m == nil {
		return
	}
	m.AuthRegistrationsTotal.WithLabelValues(result(ok)).Inc()
}

// Email records a send attempt of the given kind.
func (m *Metrics) Email(kind string, ok bool) {
	if m == nil {
		return
	}
	m.EmailsSentTotal.WithLabelValues(kind, result(ok)).Inc()
}

// ReviewCreated counts a new review.
func (m *Metrics) ReviewCreated() {
	if m == nil {
		return
	}
	m.ReviewsCreatedTotal.Inc()
}
