package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/avlink-protocol/avlink-go/pkg/metrics"
	"github.com/avlink-protocol/avlink-go/pkg/telemetry"
)

// ErrCircuitOpen marks a call rejected because the endpoint's circuit
// is open. Terminal for the call; the facade never retries it.
var ErrCircuitOpen = errors.New("circuit open")

// Default configuration values.
const (
	DefaultFailureThreshold = 5
	DefaultSuccessThreshold = 2
	DefaultTimeout          = 30 * time.Second
	DefaultHalfOpenMaxCalls = 1
)

// State represents the breaker state.
type State uint8

const (
	// StateClosed admits all calls and counts consecutive failures.
	StateClosed State = iota

	// StateOpen rejects all calls until the cooldown elapses.
	StateOpen

	// StateHalfOpen admits a bounded number of probe calls.
	StateHalfOpen
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// OpenError is the rejection returned while the circuit is open.
type OpenError struct {
	// Endpoint whose circuit rejected the call.
	Endpoint string

	// Remaining cooldown before the breaker will probe again.
	Remaining time.Duration
}

// Error implements the error interface.
func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit open for %s (retry in %s)", e.Endpoint, e.Remaining.Round(time.Millisecond))
}

// Is allows errors.Is(err, ErrCircuitOpen).
func (e *OpenError) Is(target error) bool {
	return target == ErrCircuitOpen
}

// Config controls breaker thresholds. Zero values select the defaults.
type Config struct {
	// FailureThreshold is the consecutive-failure count that trips
	// the breaker.
	FailureThreshold int

	// SuccessThreshold is the consecutive probe successes required to
	// close a half-open breaker.
	SuccessThreshold int

	// Timeout is the open-state cooldown before probing resumes.
	Timeout time.Duration

	// HalfOpenMaxCalls caps concurrent probes while half-open.
	HalfOpenMaxCalls int

	// ExcludedErrors are not counted as failures (matched with
	// errors.Is). Device-level rejections that say nothing about
	// endpoint health belong here.
	ExcludedErrors []error
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = DefaultFailureThreshold
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = DefaultSuccessThreshold
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.HalfOpenMaxCalls <= 0 {
		c.HalfOpenMaxCalls = DefaultHalfOpenMaxCalls
	}
	return c
}

// Stats holds per-breaker counters.
type Stats struct {
	Calls        uint64
	Successes    uint64
	Failures     uint64
	Rejections   uint64
	StateChanges uint64

	// TimeOpen is the cumulative time spent in the open state.
	TimeOpen time.Duration
}

// Breaker is a circuit breaker for one endpoint.
// Safe for concurrent use.
type Breaker struct {
	endpoint string
	cfg      Config
	logger   telemetry.Logger
	rec      *metrics.Recorder

	mu                  sync.Mutex
	state               State
	consecutiveFailures int
	halfOpenSuccesses   int
	halfOpenInFlight    int
	openedAt            time.Time
	stats               Stats

	// now is replaceable for tests.
	now func() time.Time
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithLogger attaches a telemetry logger.
func WithLogger(l telemetry.Logger) Option {
	return func(b *Breaker) { b.logger = l }
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(r *metrics.Recorder) Option {
	return func(b *Breaker) { b.rec = r }
}

// New creates a Breaker for the endpoint.
func New(endpoint string, cfg Config, opts ...Option) *Breaker {
	b := &Breaker{
		endpoint: endpoint,
		cfg:      cfg.withDefaults(),
		state:    StateClosed,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// State returns the current state, applying the lazy Open->HalfOpen
// transition when the cooldown has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpen()
	return b.state
}

// Allow reports whether a call may proceed. On rejection it returns an
// *OpenError carrying the remaining cooldown. A permitted call MUST be
// followed by Record.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.maybeHalfOpen()
	b.stats.Calls++

	switch b.state {
	case StateClosed:
		return nil
	case StateHalfOpen:
		if b.halfOpenInFlight >= b.cfg.HalfOpenMaxCalls {
			b.reject()
			return &OpenError{Endpoint: b.endpoint}
		}
		b.halfOpenInFlight++
		return nil
	default:
		b.reject()
		return &OpenError{
			Endpoint:  b.endpoint,
			Remaining: b.remaining(),
		}
	}
}

// Record feeds a call outcome back into the state machine.
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	wasHalfOpen := b.state == StateHalfOpen
	if wasHalfOpen && b.halfOpenInFlight > 0 {
		b.halfOpenInFlight--
	}

	if err != nil && b.excluded(err) {
		// Says nothing about endpoint health.
		return
	}

	if err != nil {
		b.stats.Failures++
		switch b.state {
		case StateClosed:
			b.consecutiveFailures++
			if b.consecutiveFailures >= b.cfg.FailureThreshold {
				b.transition(StateOpen, "failure threshold reached")
			}
		case StateHalfOpen:
			b.transition(StateOpen, "probe failed")
		}
		return
	}

	b.stats.Successes++
	switch b.state {
	case StateClosed:
		b.consecutiveFailures = 0
	case StateHalfOpen:
		b.halfOpenSuccesses++
		if b.halfOpenSuccesses >= b.cfg.SuccessThreshold {
			b.transition(StateClosed, "probe succeeded")
		}
	}
}

// Do runs op under the breaker: rejected immediately when open,
// recorded as a success or failure otherwise.
func (b *Breaker) Do(ctx context.Context, op func(ctx context.Context) error) error {
	if err := b.Allow(); err != nil {
		return err
	}
	err := op(ctx)
	b.Record(err)
	return err
}

// Reset forces the breaker closed and clears its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateClosed {
		b.transition(StateClosed, "manual reset")
	}
	b.consecutiveFailures = 0
	b.halfOpenSuccesses = 0
	b.halfOpenInFlight = 0
}

// Stats returns a snapshot of the breaker's counters.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.stats
	if b.state == StateOpen {
		s.TimeOpen += b.now().Sub(b.openedAt)
	}
	return s
}

// Endpoint returns the endpoint this breaker guards.
func (b *Breaker) Endpoint() string { return b.endpoint }

// maybeHalfOpen applies the lazy Open->HalfOpen transition.
// Caller holds b.mu.
func (b *Breaker) maybeHalfOpen() {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.Timeout {
		b.transition(StateHalfOpen, "cooldown elapsed")
	}
}

func (b *Breaker) remaining() time.Duration {
	r := b.cfg.Timeout - b.now().Sub(b.openedAt)
	if r < 0 {
		r = 0
	}
	return r
}

func (b *Breaker) reject() {
	b.stats.Rejections++
	b.rec.ObserveBreakerRejection(b.endpoint)
}

// transition moves the breaker to a new state. Caller holds b.mu.
func (b *Breaker) transition(to State, reason string) {
	from := b.state
	if from == to {
		return
	}

	if from == StateOpen {
		b.stats.TimeOpen += b.now().Sub(b.openedAt)
	}

	b.state = to
	b.stats.StateChanges++
	switch to {
	case StateOpen:
		b.openedAt = b.now()
	case StateHalfOpen:
		b.halfOpenSuccesses = 0
		b.halfOpenInFlight = 0
	case StateClosed:
		b.consecutiveFailures = 0
	}

	b.rec.SetBreakerState(b.endpoint, int(to))
	b.rec.ObserveBreakerTransition(b.endpoint, from.String(), to.String())
	telemetry.Emit(b.logger, telemetry.Event{
		Timestamp: b.now(),
		Endpoint:  b.endpoint,
		Layer:     telemetry.LayerResilience,
		Category:  telemetry.CategoryCircuit,
		Circuit: &telemetry.CircuitEvent{
			OldState:            from.String(),
			NewState:            to.String(),
			ConsecutiveFailures: b.consecutiveFailures,
			Reason:              reason,
		},
	})
}

func (b *Breaker) excluded(err error) bool {
	for _, ex := range b.cfg.ExcludedErrors {
		if errors.Is(err, ex) {
			return true
		}
	}
	return false
}
