package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilRecorderIsSafe(t *testing.T) {
	var r *Recorder

	// None of these should panic.
	r.ObserveCommand("h:4352", "power_on", "success", time.Millisecond)
	r.SetPoolSizes("h:4352", 1, 2)
	r.ObserveAcquire("h:4352", "reuse")
	r.ObservePoolExhausted("h:4352")
	r.ObservePoolDiscard("h:4352", "stale")
	r.SetBreakerState("h:4352", 1)
	r.ObserveBreakerTransition("h:4352", "closed", "open")
	r.ObserveBreakerRejection("h:4352")
	r.ObserveRetryAttempts("h:4352", "power_on", 3)
	r.ObserveAuthFailure("h:4352")
}

func TestRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	r.ObserveCommand("10.0.0.5:4352", "power_on", "success", 50*time.Millisecond)
	r.ObserveCommand("10.0.0.5:4352", "power_on", "success", 70*time.Millisecond)
	r.ObserveCommand("10.0.0.5:4352", "power_off", "failure", 10*time.Millisecond)

	if got := testutil.ToFloat64(r.commandsTotal.WithLabelValues("10.0.0.5:4352", "power_on", "success")); got != 2 {
		t.Errorf("commands_total{power_on,success}: got %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.commandsTotal.WithLabelValues("10.0.0.5:4352", "power_off", "failure")); got != 1 {
		t.Errorf("commands_total{power_off,failure}: got %v, want 1", got)
	}

	r.SetPoolSizes("10.0.0.5:4352", 3, 1)
	if got := testutil.ToFloat64(r.poolConnectionsActive.WithLabelValues("10.0.0.5:4352")); got != 3 {
		t.Errorf("pool active: got %v, want 3", got)
	}
	if got := testutil.ToFloat64(r.poolConnectionsIdle.WithLabelValues("10.0.0.5:4352")); got != 1 {
		t.Errorf("pool idle: got %v, want 1", got)
	}

	r.SetBreakerState("10.0.0.5:4352", 2)
	if got := testutil.ToFloat64(r.breakerState.WithLabelValues("10.0.0.5:4352")); got != 2 {
		t.Errorf("breaker state: got %v, want 2", got)
	}

	r.ObserveBreakerTransition("10.0.0.5:4352", "open", "half-open")
	if got := testutil.ToFloat64(r.breakerTransitions.WithLabelValues("10.0.0.5:4352", "open", "half-open")); got != 1 {
		t.Errorf("breaker transitions: got %v, want 1", got)
	}
}
