package metrics

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/foxzi/broadcast/internal/composer"
)

var (
	globalMetrics *Metrics
	globalMu      sync.RWMutex
)

// Submission results used as label values
const (
	ResultSuccess      = "success"
	ResultFailure      = "failure"
	ResultRejected     = "rejected"
	ReasonNoMessage    = "no_message"
	ReasonNoGroups     = "no_groups"
	ReasonUnknownGroup = "unknown_group"
)

// Metrics holds all Prometheus metrics for the broadcast service
type Metrics struct {
	// Submission counters
	SubmissionsTotal      *prometheus.CounterVec
	GroupsTargetedTotal   prometheus.Counter
	ValidationErrors      *prometheus.CounterVec
	WebhookDuration       prometheus.Histogram
	WebhookResponsesTotal *prometheus.CounterVec
	SendsInFlight         prometheus.Gauge

	// HTTP metrics
	HTTPRequestsTotal          *prometheus.CounterVec
	HTTPRequestDurationSeconds *prometheus.HistogramVec
	HTTPErrorsTotal            *prometheus.CounterVec

	// Sessions
	SessionsActive prometheus.Gauge

	UptimeSeconds prometheus.GaugeFunc

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()
	started := time.Now()

	m := &Metrics{
		SubmissionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "broadcast_submissions_total",
				Help: "Total number of broadcast submissions by result",
			},
			[]string{"result"},
		),
		GroupsTargetedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "broadcast_groups_targeted_total",
				Help: "Total number of groups targeted by successful submissions",
			},
		),
		ValidationErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "broadcast_validation_errors_total",
				Help: "Total number of submissions rejected before reaching the webhook",
			},
			[]string{"reason"},
		),
		WebhookDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "broadcast_webhook_duration_seconds",
				Help:    "Webhook round trip duration in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		WebhookResponsesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "broadcast_webhook_responses_total",
				Help: "Webhook responses by status class",
			},
			[]string{"class"},
		),
		SendsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "broadcast_sends_in_flight",
				Help: "Number of webhook requests currently in flight",
			},
		),

		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "broadcast_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "broadcast_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "broadcast_http_errors_total",
				Help: "Total number of HTTP error responses",
			},
			[]string{"error_type"},
		),

		SessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "broadcast_sessions_active",
				Help: "Number of form sessions held in memory",
			},
		),

		UptimeSeconds: prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "broadcast_uptime_seconds",
				Help: "Process uptime in seconds",
			},
			func() float64 { return time.Since(started).Seconds() },
		),

		registry: reg,
	}

	reg.MustRegister(
		m.SubmissionsTotal,
		m.GroupsTargetedTotal,
		m.ValidationErrors,
		m.WebhookDuration,
		m.WebhookResponsesTotal,
		m.SendsInFlight,
		m.HTTPRequestsTotal,
		m.HTTPRequestDurationSeconds,
		m.HTTPErrorsTotal,
		m.SessionsActive,
		m.UptimeSeconds,
	)

	return m
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SetGlobal sets the global metrics instance
func SetGlobal(m *Metrics) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalMetrics = m
}

// Global returns the global metrics instance
func Global() *Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}

// IncValidationError counts a submission rejected locally
func IncValidationError(reason string) {
	if m := Global(); m != nil {
		m.ValidationErrors.WithLabelValues(reason).Inc()
	}
}

// ObserveValidation counts err when it is a composer validation error
func ObserveValidation(err error) {
	switch {
	case errors.Is(err, composer.ErrNoMessage):
		IncValidationError(ReasonNoMessage)
		IncRejected()
	case errors.Is(err, composer.ErrNoGroups):
		IncValidationError(ReasonNoGroups)
		IncRejected()
	}
}

// IncRejected counts a submission refused before any network call
func IncRejected() {
	if m := Global(); m != nil {
		m.SubmissionsTotal.WithLabelValues(ResultRejected).Inc()
	}
}

// SetSessionsActive records how many form sessions are alive
func SetSessionsActive(n int) {
	if m := Global(); m != nil {
		m.SessionsActive.Set(float64(n))
	}
}
