package pool

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"
)

// pipeDialer hands out net.Pipe client ends and keeps the server ends
// alive so reads don't immediately EOF.
type pipeDialer struct {
	mu      sync.Mutex
	dials   int
	servers []net.Conn
}

func (d *pipeDialer) dial(ctx context.Context, endpoint string) (net.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	client, server := net.Pipe()
	d.servers = append(d.servers, server)
	return client, nil
}

func (d *pipeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *pipeDialer) closeAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range d.servers {
		s.Close()
	}
}

func newTestPool(t *testing.T, cfg Config) (*Pool, *pipeDialer) {
	t.Helper()
	d := &pipeDialer{}
	p := New(cfg, d.dial)
	t.Cleanup(func() {
		p.Close()
		d.closeAll()
	})
	return p, d
}

func TestAcquireReusesIdleConnection(t *testing.T) {
	p, d := newTestPool(t, Config{MaxPerEndpoint: 2})

	conn1, err := p.Acquire(context.Background(), "host:4352")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if conn1.State() != StateInUse {
		t.Errorf("state: got %v, want %v", conn1.State(), StateInUse)
	}

	if err := p.Release(conn1, false); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if conn1.State() != StateIdle {
		t.Errorf("state after release: got %v, want %v", conn1.State(), StateIdle)
	}

	conn2, err := p.Acquire(context.Background(), "host:4352")
	if err != nil {
		t.Fatalf("second Acquire failed: %v", err)
	}
	if conn2.ID() != conn1.ID() {
		t.Error("idle connection was not reused")
	}
	if conn2.UseCount() != 2 {
		t.Errorf("UseCount: got %d, want 2", conn2.UseCount())
	}
	if d.dialCount() != 1 {
		t.Errorf("dials: got %d, want 1", d.dialCount())
	}
}

func TestAcquireRespectsCap(t *testing.T) {
	p, _ := newTestPool(t, Config{MaxPerEndpoint: 2})

	conn1, err := p.Acquire(context.Background(), "host:4352")
	if err != nil {
		t.Fatalf("Acquire 1 failed: %v", err)
	}
	conn2, err := p.Acquire(context.Background(), "host:4352")
	if err != nil {
		t.Fatalf("Acquire 2 failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := p.Acquire(ctx, "host:4352"); !errors.Is(err, ErrPoolExhausted) {
		t.Errorf("Acquire at cap: got %v, want ErrPoolExhausted", err)
	}

	p.Release(conn1, false)
	p.Release(conn2, false)
}

func TestAcquireWaitsForRelease(t *testing.T) {
	p, _ := newTestPool(t, Config{MaxPerEndpoint: 1})

	conn1, err := p.Acquire(context.Background(), "host:4352")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	go func() {
		time.Sleep(30 * time.Millisecond)
		p.Release(conn1, false)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	conn2, err := p.Acquire(ctx, "host:4352")
	if err != nil {
		t.Fatalf("waiting Acquire failed: %v", err)
	}
	if conn2.ID() != conn1.ID() {
		t.Error("waiter did not receive the released connection")
	}
	p.Release(conn2, false)
}

func TestReleaseDiscardCloses(t *testing.T) {
	p, d := newTestPool(t, Config{MaxPerEndpoint: 2})

	conn1, err := p.Acquire(context.Background(), "host:4352")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if err := p.Release(conn1, true); err != nil {
		t.Fatalf("Release(discard) failed: %v", err)
	}
	if conn1.State() != StateClosed {
		t.Errorf("state after discard: got %v, want %v", conn1.State(), StateClosed)
	}

	conn2, err := p.Acquire(context.Background(), "host:4352")
	if err != nil {
		t.Fatalf("Acquire after discard failed: %v", err)
	}
	if conn2.ID() == conn1.ID() {
		t.Error("discarded connection was vended again")
	}
	if d.dialCount() != 2 {
		t.Errorf("dials: got %d, want 2", d.dialCount())
	}
	p.Release(conn2, false)
}

func TestValidationEvicts(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{
			name: "max lifetime",
			cfg:  Config{MaxPerEndpoint: 2, ValidateOnBorrow: true, MaxLifetime: time.Nanosecond},
		},
		{
			name: "idle timeout",
			cfg:  Config{MaxPerEndpoint: 2, ValidateOnBorrow: true, IdleTimeout: time.Nanosecond},
		},
		{
			name: "max uses",
			cfg:  Config{MaxPerEndpoint: 2, ValidateOnBorrow: true, MaxUses: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, d := newTestPool(t, tt.cfg)

			conn1, err := p.Acquire(context.Background(), "host:4352")
			if err != nil {
				t.Fatalf("Acquire failed: %v", err)
			}
			p.Release(conn1, false)
			time.Sleep(time.Millisecond)

			conn2, err := p.Acquire(context.Background(), "host:4352")
			if err != nil {
				t.Fatalf("Acquire after eviction failed: %v", err)
			}
			if conn2.ID() == conn1.ID() {
				t.Error("expired connection was reused")
			}
			if d.dialCount() != 2 {
				t.Errorf("dials: got %d, want 2", d.dialCount())
			}
			p.Release(conn2, false)
		})
	}
}

func TestLivenessProbeEvictsDeadConnection(t *testing.T) {
	p, d := newTestPool(t, Config{
		MaxPerEndpoint:   2,
		ValidateOnBorrow: true,
		LivenessProbe:    true,
	})

	conn1, err := p.Acquire(context.Background(), "host:4352")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	p.Release(conn1, false)

	// Kill the server side so the probe sees EOF.
	d.closeAll()

	conn2, err := p.Acquire(context.Background(), "host:4352")
	if err != nil {
		t.Fatalf("Acquire after peer close failed: %v", err)
	}
	if conn2.ID() == conn1.ID() {
		t.Error("dead connection passed the liveness probe")
	}
	p.Release(conn2, true)
}

func TestInvariantNeverVendedTwice(t *testing.T) {
	p, _ := newTestPool(t, Config{MaxPerEndpoint: 3})

	var mu sync.Mutex
	inUse := make(map[string]bool)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				conn, err := p.Acquire(ctx, "host:4352")
				cancel()
				if err != nil {
					continue
				}

				mu.Lock()
				if inUse[conn.ID()] {
					t.Errorf("connection %s vended twice", conn.ID())
				}
				inUse[conn.ID()] = true
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				delete(inUse, conn.ID())
				mu.Unlock()

				p.Release(conn, false)
			}
		}()
	}
	wg.Wait()

	active, idle := p.Stats("host:4352")
	if active != 0 {
		t.Errorf("active after drain: got %d, want 0", active)
	}
	if active+idle > 3 {
		t.Errorf("active+idle exceeds cap: %d", active+idle)
	}
}

func TestSweeperPrunesIdle(t *testing.T) {
	p, _ := newTestPool(t, Config{
		MaxPerEndpoint:   2,
		ValidateOnBorrow: true,
		IdleTimeout:      10 * time.Millisecond,
		SweepInterval:    20 * time.Millisecond,
	})

	conn, err := p.Acquire(context.Background(), "host:4352")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	p.Release(conn, false)

	deadline := time.Now().Add(time.Second)
	for {
		_, idle := p.Stats("host:4352")
		if idle == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("sweeper did not prune the expired idle connection")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestClosedPoolRejectsAcquire(t *testing.T) {
	d := &pipeDialer{}
	p := New(Config{MaxPerEndpoint: 2}, d.dial)

	conn, err := p.Acquire(context.Background(), "host:4352")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, err := p.Acquire(context.Background(), "host:4352"); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Acquire on closed pool: got %v, want ErrPoolClosed", err)
	}

	// Active connection handed back after Close gets closed.
	p.Release(conn, false)
	if conn.State() != StateClosed {
		t.Errorf("state after release into closed pool: got %v, want %v", conn.State(), StateClosed)
	}
	d.closeAll()
}

func TestReleaseForeignConnection(t *testing.T) {
	p, _ := newTestPool(t, Config{MaxPerEndpoint: 2})

	client, server := net.Pipe()
	defer server.Close()
	foreign := newConn("other:23", client)

	if err := p.Release(foreign, false); !errors.Is(err, ErrNotOwned) {
		t.Errorf("Release of foreign conn: got %v, want ErrNotOwned", err)
	}
}
