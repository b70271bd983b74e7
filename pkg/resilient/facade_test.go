package resilient

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/avlink-protocol/avlink-go/internal/stubdevice"
	"github.com/avlink-protocol/avlink-go/pkg/breaker"
	"github.com/avlink-protocol/avlink-go/pkg/controller"
	"github.com/avlink-protocol/avlink-go/pkg/hitachi"
	"github.com/avlink-protocol/avlink-go/pkg/pjlink"
	"github.com/avlink-protocol/avlink-go/pkg/pool"
	"github.com/avlink-protocol/avlink-go/pkg/protocol"
)

func startStub(t *testing.T) *stubdevice.PJLinkServer {
	t.Helper()
	srv := stubdevice.NewPJLinkServer()
	if err := srv.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(srv.Close)
	return srv
}

// flakyDialer fails the first n dials, then delegates to net.Dialer.
type flakyDialer struct {
	mu       sync.Mutex
	failures int
	dials    int
}

func (d *flakyDialer) dial(ctx context.Context, endpoint string) (net.Conn, error) {
	d.mu.Lock()
	d.dials++
	fail := d.dials <= d.failures
	d.mu.Unlock()
	if fail {
		return nil, &protocol.ConnectionError{Endpoint: endpoint, Op: "dial", Err: errors.New("simulated refuse")}
	}
	var nd net.Dialer
	return nd.DialContext(ctx, "tcp", endpoint)
}

func fixedNoDelay(maxRetries int) RetryPolicy {
	return RetryPolicy{Strategy: StrategyFixed, MaxRetries: maxRetries, BaseDelay: 0}
}

func TestRetriesTransientDialFailures(t *testing.T) {
	srv := startStub(t)
	dialer := &flakyDialer{failures: 3}

	ctl := controller.New(pjlink.NewCodec(), controller.Config{Endpoint: srv.Addr()},
		controller.WithDialer(dialer.dial))
	defer ctl.Close()

	f := New(ctl, WithRetryPolicy(fixedNoDelay(3)))

	res := f.PowerOn(context.Background())
	if !res.Success {
		t.Fatalf("expected success, got %v (code %s)", res.Err, res.Code)
	}
	if res.Attempts != 4 {
		t.Errorf("attempts: got %d, want 4", res.Attempts)
	}
	if res.Code != "" {
		t.Errorf("code on success: got %q", res.Code)
	}
}

func TestRetryBudgetExhausted(t *testing.T) {
	srv := startStub(t)
	dialer := &flakyDialer{failures: 10}

	ctl := controller.New(pjlink.NewCodec(), controller.Config{Endpoint: srv.Addr()},
		controller.WithDialer(dialer.dial))
	defer ctl.Close()

	f := New(ctl, WithRetryPolicy(fixedNoDelay(2)))

	res := f.PowerOn(context.Background())
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Attempts != 3 {
		t.Errorf("attempts: got %d, want 3", res.Attempts)
	}
	if res.Code != CodeConnectionFailed {
		t.Errorf("code: got %q, want %q", res.Code, CodeConnectionFailed)
	}
	if !errors.Is(res.Err, protocol.ErrConnectionFailed) {
		t.Errorf("err: got %v", res.Err)
	}
}

func TestOpenBreakerFailsFast(t *testing.T) {
	srv := startStub(t)

	ctl := controller.New(pjlink.NewCodec(), controller.Config{Endpoint: srv.Addr()})
	defer ctl.Close()

	brk := breaker.New(srv.Addr(), breaker.Config{FailureThreshold: 1, Timeout: time.Hour})
	brk.Record(errors.New("prior failure"))
	if brk.State() != breaker.StateOpen {
		t.Fatalf("breaker state: got %v, want open", brk.State())
	}

	f := New(ctl, WithBreaker(brk), WithRetryPolicy(fixedNoDelay(3)))

	res := f.PowerOn(context.Background())
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Attempts != 1 {
		t.Errorf("attempts: got %d, want 1", res.Attempts)
	}
	if res.Code != CodeCircuitOpen {
		t.Errorf("code: got %q, want %q", res.Code, CodeCircuitOpen)
	}
	if res.CircuitState != breaker.StateOpen {
		t.Errorf("circuit state: got %v, want open", res.CircuitState)
	}
	// The stub saw no traffic.
	if n := len(srv.Received()); n != 0 {
		t.Errorf("stub received %d lines, want 0", n)
	}
}

func TestBreakerOpensMidRetryLoop(t *testing.T) {
	srv := startStub(t)
	dialer := &flakyDialer{failures: 10}

	ctl := controller.New(pjlink.NewCodec(), controller.Config{Endpoint: srv.Addr()},
		controller.WithDialer(dialer.dial))
	defer ctl.Close()

	brk := breaker.New(srv.Addr(), breaker.Config{FailureThreshold: 2, Timeout: time.Hour})
	f := New(ctl, WithBreaker(brk), WithRetryPolicy(fixedNoDelay(5)))

	res := f.PowerOn(context.Background())
	if res.Success {
		t.Fatal("expected failure")
	}
	// Attempts 1 and 2 fail and trip the breaker; the re-check before
	// attempt 3 rejects.
	if res.Attempts != 3 {
		t.Errorf("attempts: got %d, want 3", res.Attempts)
	}
	if res.Code != CodeCircuitOpen {
		t.Errorf("code: got %q, want %q", res.Code, CodeCircuitOpen)
	}
}

func TestNoRetryOnCapabilityError(t *testing.T) {
	srv := startStub(t)

	ctl := controller.New(pjlink.NewCodec(), controller.Config{Endpoint: srv.Addr()})
	defer ctl.Close()

	f := New(ctl, WithRetryPolicy(fixedNoDelay(3)))

	// Freeze needs Class 2; the stub negotiates nothing without auth.
	res := f.Freeze(context.Background())
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Attempts != 1 {
		t.Errorf("attempts: got %d, want 1", res.Attempts)
	}
	if res.Code != CodeCapabilityUnsupported {
		t.Errorf("code: got %q, want %q", res.Code, CodeCapabilityUnsupported)
	}
}

func TestNoRetryOnAuthLockout(t *testing.T) {
	srv := stubdevice.NewPJLinkServer()
	srv.Password = "right"
	if err := srv.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(srv.Close)

	ctl := controller.New(pjlink.NewCodec(), controller.Config{
		Endpoint:        srv.Addr(),
		Secret:          "wrong",
		MaxAuthFailures: 1,
		LockoutDuration: time.Hour,
	})
	defer ctl.Close()

	f := New(ctl, WithRetryPolicy(fixedNoDelay(5)))

	// First call fails on the wire and trips the lockout. Credential
	// rejections are terminal, so a single attempt.
	res := f.PowerOn(context.Background())
	if res.Attempts != 1 {
		t.Errorf("first call attempts: got %d, want 1", res.Attempts)
	}
	if res.Code != CodeAuthFailed {
		t.Errorf("first call code: got %q, want %q", res.Code, CodeAuthFailed)
	}

	// Second call hits the local lockout without dialing.
	res = f.PowerOn(context.Background())
	if res.Attempts != 1 {
		t.Errorf("second call attempts: got %d, want 1", res.Attempts)
	}
	if res.Code != CodeAuthLockedOut {
		t.Errorf("second call code: got %q, want %q", res.Code, CodeAuthLockedOut)
	}
}

func TestSuccessfulCommandCarriesPayload(t *testing.T) {
	srv := startStub(t)

	ctl := controller.New(pjlink.NewCodec(), controller.Config{Endpoint: srv.Addr()})
	defer ctl.Close()

	f := New(ctl)

	res := f.PowerState(context.Background())
	if !res.Success {
		t.Fatalf("expected success, got %v", res.Err)
	}
	if res.Value["power"] != "off" {
		t.Errorf("power: got %q, want off", res.Value["power"])
	}
	if res.Attempts != 1 {
		t.Errorf("attempts: got %d", res.Attempts)
	}
	if res.Elapsed <= 0 {
		t.Error("elapsed not recorded")
	}
}

func TestPoolBackedFacade(t *testing.T) {
	srv := startStub(t)

	var nd net.Dialer
	p := pool.New(pool.Config{MaxPerEndpoint: 2}, func(ctx context.Context, endpoint string) (net.Conn, error) {
		return nd.DialContext(ctx, "tcp", endpoint)
	})
	defer p.Close()

	ctl := controller.New(pjlink.NewCodec(), controller.Config{Endpoint: srv.Addr()},
		controller.WithPool(p))
	defer ctl.Close()

	f := New(ctl)
	if res := f.PowerOn(context.Background()); !res.Success {
		t.Fatalf("power on via pool failed: %v", res.Err)
	}
	if res := f.PowerState(context.Background()); !res.Success || res.Value["power"] != "on" {
		t.Fatalf("power state via pool: %+v", res)
	}
}

func TestMuteStateAndTemperatureQueries(t *testing.T) {
	srv := stubdevice.NewHitachiServer()
	if err := srv.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(srv.Close)

	ctl := controller.New(hitachi.NewCodec(), controller.Config{Endpoint: srv.Addr()})
	defer ctl.Close()

	f := New(ctl)

	if res := f.MuteOn(context.Background()); !res.Success {
		t.Fatalf("MuteOn failed: %v", res.Err)
	}
	res := f.MuteState(context.Background())
	if !res.Success {
		t.Fatalf("MuteState failed: %v", res.Err)
	}
	if res.Value["mute"] != "on" {
		t.Errorf("mute: got %q, want on", res.Value["mute"])
	}

	res = f.Temperature(context.Background())
	if !res.Success {
		t.Fatalf("Temperature failed: %v", res.Err)
	}
	if res.Value["temperature"] != "41" {
		t.Errorf("temperature: got %q, want 41", res.Value["temperature"])
	}
}

func TestBackoffHonorsCancellation(t *testing.T) {
	srv := startStub(t)
	dialer := &flakyDialer{failures: 10}

	ctl := controller.New(pjlink.NewCodec(), controller.Config{Endpoint: srv.Addr()},
		controller.WithDialer(dialer.dial))
	defer ctl.Close()

	f := New(ctl, WithRetryPolicy(RetryPolicy{
		Strategy:   StrategyFixed,
		MaxRetries: 5,
		BaseDelay:  10 * time.Second,
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	res := f.PowerOn(ctx)
	if res.Success {
		t.Fatal("expected failure")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("backoff ignored cancellation, took %v", elapsed)
	}
	if res.Code != CodeCancelled {
		t.Errorf("code: got %q, want %q", res.Code, CodeCancelled)
	}
}
