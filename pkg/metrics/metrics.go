// Package metrics provides Prometheus instrumentation for the control
// stack. A nil *Recorder is valid and records nothing, so components
// accept one without nil checks at every call site.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder holds the Prometheus collectors for the stack.
type Recorder struct {
	commandsTotal   *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec

	poolConnectionsActive *prometheus.GaugeVec
	poolConnectionsIdle   *prometheus.GaugeVec
	poolAcquiresTotal     *prometheus.CounterVec
	poolExhaustedTotal    *prometheus.CounterVec
	poolDiscardedTotal    *prometheus.CounterVec

	breakerState       *prometheus.GaugeVec
	breakerTransitions *prometheus.CounterVec
	breakerRejections  *prometheus.CounterVec

	retryAttempts *prometheus.HistogramVec

	authFailuresTotal *prometheus.CounterVec
}

// NewRecorder creates a Recorder and registers its collectors with reg.
// Pass prometheus.DefaultRegisterer for the default registry.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "avlink",
			Name:      "commands_total",
			Help:      "Device commands executed, by endpoint, command and outcome.",
		}, []string{"endpoint", "command", "outcome"}),
		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "avlink",
			Name:      "command_duration_seconds",
			Help:      "Device command round-trip latency.",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"endpoint", "command"}),
		poolConnectionsActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "avlink",
			Subsystem: "pool",
			Name:      "connections_active",
			Help:      "Connections currently borrowed from the pool.",
		}, []string{"endpoint"}),
		poolConnectionsIdle: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "avlink",
			Subsystem: "pool",
			Name:      "connections_idle",
			Help:      "Connections sitting idle in the pool.",
		}, []string{"endpoint"}),
		poolAcquiresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "avlink",
			Subsystem: "pool",
			Name:      "acquires_total",
			Help:      "Pool acquire attempts, by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		poolExhaustedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "avlink",
			Subsystem: "pool",
			Name:      "exhausted_total",
			Help:      "Acquire attempts that timed out at capacity.",
		}, []string{"endpoint"}),
		poolDiscardedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "avlink",
			Subsystem: "pool",
			Name:      "discarded_total",
			Help:      "Connections discarded on validation failure, by reason.",
		}, []string{"endpoint", "reason"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "avlink",
			Subsystem: "breaker",
			Name:      "state",
			Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open).",
		}, []string{"endpoint"}),
		breakerTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "avlink",
			Subsystem: "breaker",
			Name:      "transitions_total",
			Help:      "Circuit breaker state transitions.",
		}, []string{"endpoint", "from", "to"}),
		breakerRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "avlink",
			Subsystem: "breaker",
			Name:      "rejections_total",
			Help:      "Calls rejected because the circuit was open.",
		}, []string{"endpoint"}),
		retryAttempts: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "avlink",
			Subsystem: "retry",
			Name:      "attempts",
			Help:      "Attempts consumed per resilient operation.",
			Buckets:   []float64{1, 2, 3, 4, 5, 8, 13},
		}, []string{"endpoint", "command"}),
		authFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "avlink",
			Subsystem: "auth",
			Name:      "failures_total",
			Help:      "Authentication failures, by endpoint.",
		}, []string{"endpoint"}),
	}

	reg.MustRegister(
		r.commandsTotal,
		r.commandDuration,
		r.poolConnectionsActive,
		r.poolConnectionsIdle,
		r.poolAcquiresTotal,
		r.poolExhaustedTotal,
		r.poolDiscardedTotal,
		r.breakerState,
		r.breakerTransitions,
		r.breakerRejections,
		r.retryAttempts,
		r.authFailuresTotal,
	)

	return r
}

// ObserveCommand records one command execution.
func (r *Recorder) ObserveCommand(endpoint, command, outcome string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.commandsTotal.WithLabelValues(endpoint, command, outcome).Inc()
	r.commandDuration.WithLabelValues(endpoint, command).Observe(elapsed.Seconds())
}

// SetPoolSizes records the active/idle connection counts for an endpoint.
func (r *Recorder) SetPoolSizes(endpoint string, active, idle int) {
	if r == nil {
		return
	}
	r.poolConnectionsActive.WithLabelValues(endpoint).Set(float64(active))
	r.poolConnectionsIdle.WithLabelValues(endpoint).Set(float64(idle))
}

// ObserveAcquire records a pool acquire attempt.
func (r *Recorder) ObserveAcquire(endpoint, outcome string) {
	if r == nil {
		return
	}
	r.poolAcquiresTotal.WithLabelValues(endpoint, outcome).Inc()
}

// ObservePoolExhausted records an acquire that timed out at capacity.
func (r *Recorder) ObservePoolExhausted(endpoint string) {
	if r == nil {
		return
	}
	r.poolExhaustedTotal.WithLabelValues(endpoint).Inc()
}

// ObservePoolDiscard records a connection discarded during validation.
func (r *Recorder) ObservePoolDiscard(endpoint, reason string) {
	if r == nil {
		return
	}
	r.poolDiscardedTotal.WithLabelValues(endpoint, reason).Inc()
}

// SetBreakerState records the current breaker state for an endpoint.
func (r *Recorder) SetBreakerState(endpoint string, state int) {
	if r == nil {
		return
	}
	r.breakerState.WithLabelValues(endpoint).Set(float64(state))
}

// ObserveBreakerTransition records a breaker state transition.
func (r *Recorder) ObserveBreakerTransition(endpoint, from, to string) {
	if r == nil {
		return
	}
	r.breakerTransitions.WithLabelValues(endpoint, from, to).Inc()
}

// ObserveBreakerRejection records a call rejected by an open circuit.
func (r *Recorder) ObserveBreakerRejection(endpoint string) {
	if r == nil {
		return
	}
	r.breakerRejections.WithLabelValues(endpoint).Inc()
}

// ObserveRetryAttempts records attempts consumed by a resilient operation.
func (r *Recorder) ObserveRetryAttempts(endpoint, command string, attempts int) {
	if r == nil {
		return
	}
	r.retryAttempts.WithLabelValues(endpoint, command).Observe(float64(attempts))
}

// ObserveAuthFailure records an authentication failure.
func (r *Recorder) ObserveAuthFailure(endpoint string) {
	if r == nil {
		return
	}
	r.authFailuresTotal.WithLabelValues(endpoint).Inc()
}
