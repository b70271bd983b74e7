package breaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

// newTestBreaker returns a breaker with a controllable clock.
func newTestBreaker(cfg Config) (*Breaker, *time.Time) {
	b := New("host:4352", cfg)
	now := time.Now()
	b.now = func() time.Time { return now }
	return b, &now
}

func failN(b *Breaker, n int) {
	for i := 0; i < n; i++ {
		b.Allow()
		b.Record(errBoom)
	}
}

func TestTripsAtFailureThreshold(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 3})

	failN(b, 2)
	if b.State() != StateClosed {
		t.Fatalf("state after 2 failures: got %v, want CLOSED", b.State())
	}

	failN(b, 1)
	if b.State() != StateOpen {
		t.Fatalf("state after 3 failures: got %v, want OPEN", b.State())
	}

	err := b.Allow()
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Allow while open: got %v, want ErrCircuitOpen", err)
	}

	var oe *OpenError
	if !errors.As(err, &oe) {
		t.Fatal("rejection is not an *OpenError")
	}
	if oe.Remaining <= 0 || oe.Remaining > DefaultTimeout {
		t.Errorf("Remaining: got %v, want (0, %v]", oe.Remaining, DefaultTimeout)
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 3})

	failN(b, 2)
	b.Allow()
	b.Record(nil)
	failN(b, 2)

	if b.State() != StateClosed {
		t.Errorf("state: got %v, want CLOSED (failures not consecutive)", b.State())
	}
}

func TestHalfOpenAfterTimeout(t *testing.T) {
	b, now := newTestBreaker(Config{FailureThreshold: 1, Timeout: 10 * time.Second})

	failN(b, 1)
	if b.State() != StateOpen {
		t.Fatalf("state: got %v, want OPEN", b.State())
	}

	*now = now.Add(9 * time.Second)
	if b.State() != StateOpen {
		t.Fatalf("state before cooldown: got %v, want OPEN", b.State())
	}

	*now = now.Add(2 * time.Second)
	if b.State() != StateHalfOpen {
		t.Fatalf("state after cooldown: got %v, want HALF_OPEN", b.State())
	}
}

func TestHalfOpenClosesAfterSuccessThreshold(t *testing.T) {
	b, now := newTestBreaker(Config{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		Timeout:          time.Second,
		HalfOpenMaxCalls: 2,
	})

	failN(b, 1)
	*now = now.Add(2 * time.Second)

	for i := 0; i < 2; i++ {
		if err := b.Allow(); err != nil {
			t.Fatalf("probe %d rejected: %v", i, err)
		}
		b.Record(nil)
	}

	if b.State() != StateClosed {
		t.Errorf("state after probes: got %v, want CLOSED", b.State())
	}
}

func TestHalfOpenFailureReopens(t *testing.T) {
	b, now := newTestBreaker(Config{FailureThreshold: 1, Timeout: time.Second})

	failN(b, 1)
	*now = now.Add(2 * time.Second)

	if err := b.Allow(); err != nil {
		t.Fatalf("probe rejected: %v", err)
	}
	b.Record(errBoom)

	if b.State() != StateOpen {
		t.Errorf("state after failed probe: got %v, want OPEN", b.State())
	}
}

func TestHalfOpenLimitsConcurrentProbes(t *testing.T) {
	b, now := newTestBreaker(Config{
		FailureThreshold: 1,
		Timeout:          time.Second,
		HalfOpenMaxCalls: 1,
	})

	failN(b, 1)
	*now = now.Add(2 * time.Second)

	if err := b.Allow(); err != nil {
		t.Fatalf("first probe rejected: %v", err)
	}
	if err := b.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("second concurrent probe: got %v, want ErrCircuitOpen", err)
	}
}

func TestExcludedErrorsNotCounted(t *testing.T) {
	excluded := errors.New("device busy")
	b, _ := newTestBreaker(Config{
		FailureThreshold: 2,
		ExcludedErrors:   []error{excluded},
	})

	for i := 0; i < 5; i++ {
		b.Allow()
		b.Record(excluded)
	}

	if b.State() != StateClosed {
		t.Errorf("state: got %v, want CLOSED (excluded errors counted)", b.State())
	}
}

func TestReset(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 1})

	failN(b, 1)
	if b.State() != StateOpen {
		t.Fatalf("state: got %v, want OPEN", b.State())
	}

	b.Reset()
	if b.State() != StateClosed {
		t.Errorf("state after reset: got %v, want CLOSED", b.State())
	}
	if err := b.Allow(); err != nil {
		t.Errorf("Allow after reset: got %v, want nil", err)
	}
}

func TestDoRecordsOutcome(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 2})

	err := b.Do(context.Background(), func(ctx context.Context) error { return errBoom })
	if !errors.Is(err, errBoom) {
		t.Fatalf("Do: got %v, want errBoom", err)
	}
	err = b.Do(context.Background(), func(ctx context.Context) error { return errBoom })
	if !errors.Is(err, errBoom) {
		t.Fatalf("Do: got %v, want errBoom", err)
	}

	err = b.Do(context.Background(), func(ctx context.Context) error { return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Do while open: got %v, want ErrCircuitOpen", err)
	}
}

func TestStats(t *testing.T) {
	b, now := newTestBreaker(Config{FailureThreshold: 1, Timeout: time.Minute})

	b.Allow()
	b.Record(nil)
	failN(b, 1)
	b.Allow() // rejected

	s := b.Stats()
	if s.Calls != 3 {
		t.Errorf("Calls: got %d, want 3", s.Calls)
	}
	if s.Successes != 1 {
		t.Errorf("Successes: got %d, want 1", s.Successes)
	}
	if s.Failures != 1 {
		t.Errorf("Failures: got %d, want 1", s.Failures)
	}
	if s.Rejections != 1 {
		t.Errorf("Rejections: got %d, want 1", s.Rejections)
	}
	if s.StateChanges != 1 {
		t.Errorf("StateChanges: got %d, want 1", s.StateChanges)
	}

	*now = now.Add(30 * time.Second)
	if got := b.Stats().TimeOpen; got != 30*time.Second {
		t.Errorf("TimeOpen: got %v, want 30s", got)
	}
}

func TestRegistrySharesConfigPerEndpoint(t *testing.T) {
	r := NewRegistry(Config{FailureThreshold: 1})

	a := r.Get("a:4352")
	if r.Get("a:4352") != a {
		t.Error("Get returned a different breaker for the same endpoint")
	}
	bB := r.Get("b:23")
	if bB == a {
		t.Error("distinct endpoints share a breaker")
	}

	a.Allow()
	a.Record(errBoom)
	if a.State() != StateOpen {
		t.Fatalf("a state: got %v, want OPEN", a.State())
	}
	if bB.State() != StateClosed {
		t.Errorf("b state: got %v, want CLOSED (isolation broken)", bB.State())
	}

	agg := r.AggregateStats()
	if agg.Failures != 1 || agg.StateChanges != 1 {
		t.Errorf("aggregate: got %+v", agg)
	}

	r.ResetAll()
	if a.State() != StateClosed {
		t.Errorf("a state after ResetAll: got %v, want CLOSED", a.State())
	}
}
