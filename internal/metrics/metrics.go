package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels shared by the session and API recorders.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Metrics holds all Prometheus metrics for tirecode.
//
// All recording methods are safe on a nil receiver so components can take an
// optional *Metrics without guarding every call.
type Metrics struct {
	// Auth endpoint calls
	SessionRequests *prometheus.CounterVec
	SessionDuration *prometheus.HistogramVec

	// Session lifecycle
	RefreshOutcomes *prometheus.CounterVec
	SchedulerArms   *prometheus.CounterVec
	SessionState    *prometheus.GaugeVec
	NextRefresh     prometheus.Gauge

	// REST API calls
	APIRequests  *prometheus.CounterVec
	APIDuration  *prometheus.HistogramVec
	BreakerState *prometheus.GaugeVec

	// Error metrics (by structured error code)
	Errors *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		SessionRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tirecode_session_requests_total",
				Help: "Total number of auth endpoint calls",
			},
			[]string{"operation", "outcome"},
		),
		SessionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tirecode_session_request_duration_seconds",
				Help:    "Auth endpoint call latency in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"operation"},
		),

		RefreshOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tirecode_session_refresh_total",
				Help: "Session refresh attempts by trigger and outcome",
			},
			[]string{"trigger", "outcome"},
		),
		SchedulerArms: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tirecode_scheduler_arms_total",
				Help: "Total number of refresh timers armed",
			},
			[]string{"reason"},
		),
		SessionState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tirecode_session_state",
				Help: "1 for the current session state, 0 otherwise",
			},
			[]string{"state"},
		),
		NextRefresh: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "tirecode_session_next_refresh_timestamp_seconds",
				Help: "Unix time of the next scheduled refresh, 0 when none is armed",
			},
		),

		APIRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tirecode_api_requests_total",
				Help: "Total number of REST API calls",
			},
			[]string{"method", "route", "status"},
		),
		APIDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tirecode_api_request_duration_seconds",
				Help:    "REST API call latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		BreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tirecode_circuit_breaker_state",
				Help: "Current state of the circuit breaker (0=closed, 1=half-open, 2=open)",
			},
			[]string{"name"},
		),

		Errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tirecode_errors_total",
				Help: "Total number of errors by error code",
			},
			[]string{"error_code", "component"},
		),
	}
}

// ObserveSession records one auth endpoint call.
func (m *Metrics) ObserveSession(operation string, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.SessionRequests.WithLabelValues(operation, outcome(err)).Inc()
	m.SessionDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// ObserveRefresh records the outcome of a refresh attempt. result is a short
// classification such as "success", "expired" or "unavailable".
func (m *Metrics) ObserveRefresh(trigger, result string) {
	if m == nil {
		return
	}
	m.RefreshOutcomes.WithLabelValues(trigger, result).Inc()
}

// ObserveArm records a refresh timer being armed for at.
func (m *Metrics) ObserveArm(reason string, at time.Time) {
	if m == nil {
		return
	}
	m.SchedulerArms.WithLabelValues(reason).Inc()
	m.NextRefresh.Set(float64(at.Unix()))
}

// ClearNextRefresh records that no refresh timer is armed.
func (m *Metrics) ClearNextRefresh() {
	if m == nil {
		return
	}
	m.NextRefresh.Set(0)
}

// SetSessionState marks state as current among states.
func (m *Metrics) SetSessionState(state string, states ...string) {
	if m == nil {
		return
	}
	for _, s := range states {
		m.SessionState.WithLabelValues(s).Set(0)
	}
	m.SessionState.WithLabelValues(state).Set(1)
}

// ObserveAPI records one REST API call. status 0 means no response.
func (m *Metrics) ObserveAPI(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	label := "none"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.APIRequests.WithLabelValues(method, route, label).Inc()
	m.APIDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// SetBreakerState records a circuit breaker state (0=closed, 1=half-open, 2=open).
func (m *Metrics) SetBreakerState(name string, state float64) {
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(name).Set(state)
}

// RecordError counts an error by its structured code.
func (m *Metrics) RecordError(code, component string) {
	if m == nil || code == "" {
		return
	}
	m.Errors.WithLabelValues(code, component).Inc()
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeSuccess
}
