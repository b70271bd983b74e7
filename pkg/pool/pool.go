package pool

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/avlink-protocol/avlink-go/pkg/metrics"
	"github.com/avlink-protocol/avlink-go/pkg/protocol"
	"github.com/avlink-protocol/avlink-go/pkg/telemetry"
)

// Pool errors.
var (
	// ErrPoolExhausted indicates no connection became available within
	// the caller's deadline.
	ErrPoolExhausted = errors.New("connection pool exhausted")

	// ErrPoolClosed indicates the pool has been shut down.
	ErrPoolClosed = errors.New("connection pool closed")

	// ErrNotOwned indicates a released connection does not belong to
	// this pool.
	ErrNotOwned = errors.New("connection not owned by pool")
)

// Default configuration values.
const (
	DefaultMaxPerEndpoint = 4
	DefaultMaxLifetime    = 30 * time.Minute
	DefaultIdleTimeout    = 5 * time.Minute
	DefaultAcquireTimeout = 5 * time.Second
	DefaultDialTimeout    = 5 * time.Second
)

// DialFunc establishes a new transport connection to an endpoint.
type DialFunc func(ctx context.Context, endpoint string) (net.Conn, error)

// Config controls pool sizing and validation behavior.
// Zero values select the defaults above.
type Config struct {
	// MaxPerEndpoint caps active+idle connections per endpoint.
	MaxPerEndpoint int

	// MaxLifetime evicts connections older than this at borrow time.
	MaxLifetime time.Duration

	// MaxUses evicts connections borrowed more than this many times.
	// Zero means unlimited.
	MaxUses int

	// IdleTimeout evicts connections idle longer than this.
	IdleTimeout time.Duration

	// AcquireTimeout bounds Acquire when the caller's context carries
	// no deadline.
	AcquireTimeout time.Duration

	// DialTimeout bounds each dial attempt.
	DialTimeout time.Duration

	// ValidateOnBorrow enables borrow-time validation. Disabled only
	// for tests; production pools should leave it on.
	ValidateOnBorrow bool

	// LivenessProbe enables a non-blocking read probe during
	// validation. Requires ValidateOnBorrow.
	LivenessProbe bool

	// SweepInterval enables a background goroutine that validates
	// idle connections. Zero disables the sweeper.
	SweepInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxPerEndpoint <= 0 {
		c.MaxPerEndpoint = DefaultMaxPerEndpoint
	}
	if c.MaxLifetime <= 0 {
		c.MaxLifetime = DefaultMaxLifetime
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = DefaultAcquireTimeout
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	return c
}

// Pool is a bounded per-endpoint connection cache.
// Safe for concurrent use.
type Pool struct {
	cfg    Config
	dial   DialFunc
	logger telemetry.Logger
	rec    *metrics.Recorder

	mu        sync.Mutex
	endpoints map[string]*endpointPool
	closed    bool

	sweepStop chan struct{}
	sweepDone chan struct{}
}

// endpointPool holds the idle and active sets for one endpoint.
// All mutations happen under mu so a connection is never vended twice.
type endpointPool struct {
	mu      sync.Mutex
	idle    []*Conn
	active  map[string]*Conn
	dialing int

	// notify wakes one waiter when a connection is released.
	notify chan struct{}
}

func newEndpointPool() *endpointPool {
	return &endpointPool{
		active: make(map[string]*Conn),
		notify: make(chan struct{}, 1),
	}
}

func (ep *endpointPool) size() int {
	return len(ep.idle) + len(ep.active) + ep.dialing
}

func (ep *endpointPool) signal() {
	select {
	case ep.notify <- struct{}{}:
	default:
	}
}

// Option configures a Pool.
type Option func(*Pool)

// WithLogger attaches a telemetry logger.
func WithLogger(l telemetry.Logger) Option {
	return func(p *Pool) { p.logger = l }
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(r *metrics.Recorder) Option {
	return func(p *Pool) { p.rec = r }
}

// New creates a Pool. A nil dial uses net.Dialer over TCP.
func New(cfg Config, dial DialFunc, opts ...Option) *Pool {
	if dial == nil {
		dial = func(ctx context.Context, endpoint string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "tcp", endpoint)
		}
	}

	p := &Pool{
		cfg:       cfg.withDefaults(),
		dial:      dial,
		endpoints: make(map[string]*endpointPool),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.cfg.SweepInterval > 0 {
		p.sweepStop = make(chan struct{})
		p.sweepDone = make(chan struct{})
		go p.sweepLoop()
	}

	return p
}

func (p *Pool) endpoint(endpoint string) (*endpointPool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPoolClosed
	}
	ep, ok := p.endpoints[endpoint]
	if !ok {
		ep = newEndpointPool()
		p.endpoints[endpoint] = ep
	}
	return ep, nil
}

// Acquire returns a connection to the endpoint, reusing an idle one
// when possible. It blocks until a connection is available or the
// context expires, returning ErrPoolExhausted in the latter case.
func (p *Pool) Acquire(ctx context.Context, endpoint string) (*Conn, error) {
	ep, err := p.endpoint(endpoint)
	if err != nil {
		return nil, err
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.AcquireTimeout)
		defer cancel()
	}

	for {
		p.mu.Lock()
		closed := p.closed
		p.mu.Unlock()
		if closed {
			return nil, ErrPoolClosed
		}

		conn, canDial := p.tryAcquire(ep)
		if conn != nil {
			p.rec.ObserveAcquire(endpoint, "reuse")
			p.reportSizes(endpoint, ep)
			return conn, nil
		}

		if canDial {
			conn, err := p.dialNew(ctx, endpoint, ep)
			if err != nil {
				return nil, err
			}
			p.rec.ObserveAcquire(endpoint, "dial")
			p.reportSizes(endpoint, ep)
			return conn, nil
		}

		select {
		case <-ctx.Done():
			p.rec.ObserveAcquire(endpoint, "exhausted")
			p.rec.ObservePoolExhausted(endpoint)
			p.emitPoolEvent(endpoint, ep, telemetry.PoolExhausted)
			return nil, fmt.Errorf("%w: %s", ErrPoolExhausted, endpoint)
		case <-ep.notify:
			// A connection was released; try again.
		}
	}
}

// tryAcquire pops an idle connection, discarding invalid ones.
// Returns (nil, true) when the caller should dial a fresh connection.
func (p *Pool) tryAcquire(ep *endpointPool) (*Conn, bool) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	for len(ep.idle) > 0 {
		// LIFO keeps the warmest connection in rotation.
		conn := ep.idle[len(ep.idle)-1]
		ep.idle = ep.idle[:len(ep.idle)-1]

		if reason, ok := p.validate(conn); !ok {
			p.discard(conn, reason, ep)
			continue
		}

		conn.markBorrowed()
		ep.active[conn.ID()] = conn
		return conn, false
	}

	if ep.size() < p.cfg.MaxPerEndpoint {
		// Reserve the slot so concurrent acquires respect the cap
		// while the dial is in flight.
		ep.dialing++
		return nil, true
	}
	return nil, false
}

func (p *Pool) dialNew(ctx context.Context, endpoint string, ep *endpointPool) (*Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, p.cfg.DialTimeout)
	nc, err := p.dial(dialCtx, endpoint)
	cancel()

	ep.mu.Lock()
	defer ep.mu.Unlock()
	ep.dialing--

	if err != nil {
		ep.signal()
		return nil, &protocol.ConnectionError{Endpoint: endpoint, Op: "dial", Err: err}
	}

	conn := newConn(endpoint, nc)
	ep.active[conn.ID()] = conn
	return conn, nil
}

// Release returns a connection to the pool. With discard true, or when
// the pool is closed or the connection fails re-validation, the socket
// is closed instead of being parked idle.
func (p *Pool) Release(conn *Conn, discard bool) error {
	if conn == nil {
		return nil
	}

	p.mu.Lock()
	closed := p.closed
	ep := p.endpoints[conn.Endpoint()]
	p.mu.Unlock()

	if ep == nil {
		_ = conn.close()
		return ErrNotOwned
	}

	ep.mu.Lock()
	if _, ok := ep.active[conn.ID()]; !ok {
		ep.mu.Unlock()
		_ = conn.close()
		return ErrNotOwned
	}
	delete(ep.active, conn.ID())

	switch {
	case discard:
		p.discard(conn, "discarded", ep)
	case closed:
		_ = conn.close()
	default:
		if reason, ok := p.validate(conn); !ok {
			p.discard(conn, reason, ep)
		} else {
			conn.setState(StateIdle)
			conn.touch()
			ep.idle = append(ep.idle, conn)
		}
	}
	ep.signal()
	ep.mu.Unlock()

	p.reportSizes(conn.Endpoint(), ep)
	return nil
}

// validate checks a connection at borrow/release time.
// Caller holds ep.mu.
func (p *Pool) validate(conn *Conn) (reason string, ok bool) {
	if !p.cfg.ValidateOnBorrow {
		if conn.State() == StateClosed {
			return "closed", false
		}
		return "", true
	}

	switch {
	case conn.State() == StateClosed:
		return "closed", false
	case time.Since(conn.CreatedAt()) > p.cfg.MaxLifetime:
		return "max_lifetime", false
	case p.cfg.MaxUses > 0 && conn.UseCount() >= p.cfg.MaxUses:
		return "max_uses", false
	case time.Since(conn.LastUsedAt()) > p.cfg.IdleTimeout:
		return "idle_timeout", false
	}

	if p.cfg.LivenessProbe && !probeAlive(conn.NetConn()) {
		return "dead", false
	}
	return "", true
}

// probeAlive performs a non-blocking read. A timeout means the socket
// is quiet and healthy; EOF or buffered bytes on a request/response
// protocol both mean the connection cannot be reused.
func probeAlive(nc net.Conn) bool {
	if err := nc.SetReadDeadline(time.Now()); err != nil {
		return false
	}
	defer nc.SetReadDeadline(time.Time{})

	var buf [1]byte
	n, err := nc.Read(buf[:])
	if n > 0 {
		return false
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}

// discard marks a connection stale and closes it. Caller holds ep.mu.
func (p *Pool) discard(conn *Conn, reason string, ep *endpointPool) {
	conn.setState(StateStale)
	_ = conn.close()

	p.rec.ObservePoolDiscard(conn.Endpoint(), reason)
	telemetry.Emit(p.logger, telemetry.Event{
		Timestamp:    time.Now(),
		ConnectionID: conn.ID(),
		Endpoint:     conn.Endpoint(),
		Layer:        telemetry.LayerResilience,
		Category:     telemetry.CategoryPool,
		Pool: &telemetry.PoolEvent{
			Kind:   telemetry.PoolDiscarded,
			Active: len(ep.active),
			Idle:   len(ep.idle),
		},
	})
}

func (p *Pool) emitPoolEvent(endpoint string, ep *endpointPool, kind telemetry.PoolEventKind) {
	ep.mu.Lock()
	active, idle := len(ep.active), len(ep.idle)
	ep.mu.Unlock()

	telemetry.Emit(p.logger, telemetry.Event{
		Timestamp: time.Now(),
		Endpoint:  endpoint,
		Layer:     telemetry.LayerResilience,
		Category:  telemetry.CategoryPool,
		Pool:      &telemetry.PoolEvent{Kind: kind, Active: active, Idle: idle},
	})
}

func (p *Pool) reportSizes(endpoint string, ep *endpointPool) {
	if p.rec == nil {
		return
	}
	ep.mu.Lock()
	active, idle := len(ep.active), len(ep.idle)
	ep.mu.Unlock()
	p.rec.SetPoolSizes(endpoint, active, idle)
}

// Stats reports the active and idle counts for an endpoint.
func (p *Pool) Stats(endpoint string) (active, idle int) {
	p.mu.Lock()
	ep := p.endpoints[endpoint]
	p.mu.Unlock()
	if ep == nil {
		return 0, 0
	}
	ep.mu.Lock()
	defer ep.mu.Unlock()
	return len(ep.active), len(ep.idle)
}

// sweepLoop periodically validates idle connections.
func (p *Pool) sweepLoop() {
	defer close(p.sweepDone)
	ticker := time.NewTicker(p.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.sweepStop:
			return
		case <-ticker.C:
			p.sweep()
		}
	}
}

func (p *Pool) sweep() {
	p.mu.Lock()
	eps := make(map[string]*endpointPool, len(p.endpoints))
	for name, ep := range p.endpoints {
		eps[name] = ep
	}
	p.mu.Unlock()

	for endpoint, ep := range eps {
		ep.mu.Lock()
		kept := ep.idle[:0]
		for _, conn := range ep.idle {
			if reason, ok := p.validate(conn); !ok {
				p.discard(conn, reason, ep)
			} else {
				kept = append(kept, conn)
			}
		}
		ep.idle = kept
		ep.mu.Unlock()

		p.reportSizes(endpoint, ep)
	}
}

// Close shuts the pool down, closing all idle connections. Active
// connections are closed as they are released.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	eps := p.endpoints
	p.mu.Unlock()

	if p.sweepStop != nil {
		close(p.sweepStop)
		<-p.sweepDone
	}

	for _, ep := range eps {
		ep.mu.Lock()
		for _, conn := range ep.idle {
			_ = conn.close()
		}
		ep.idle = nil
		ep.signal()
		ep.mu.Unlock()
	}
	return nil
}
