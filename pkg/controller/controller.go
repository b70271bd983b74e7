package controller

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/avlink-protocol/avlink-go/pkg/metrics"
	"github.com/avlink-protocol/avlink-go/pkg/pool"
	"github.com/avlink-protocol/avlink-go/pkg/protocol"
	"github.com/avlink-protocol/avlink-go/pkg/telemetry"
	"github.com/avlink-protocol/avlink-go/pkg/transport"
)

// ErrClosed marks operations on a closed controller.
var ErrClosed = errors.New("controller closed")

// Default timeouts.
const (
	DefaultConnectTimeout = 5 * time.Second
	DefaultIOTimeout      = 5 * time.Second
)

// State is the session state.
type State uint8

const (
	// StateDisconnected indicates no live connection.
	StateDisconnected State = iota

	// StateConnecting indicates a connect in progress.
	StateConnecting

	// StateConnected indicates a live, unauthenticated connection.
	StateConnected

	// StateAuthenticated indicates a live, authenticated connection.
	StateAuthenticated

	// StateError indicates the last connect or exchange failed.
	StateError

	// StateClosed indicates the controller was closed for good.
	StateClosed
)

// String returns the session state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateAuthenticated:
		return "AUTHENTICATED"
	case StateError:
		return "ERROR"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Config holds the per-device session parameters.
type Config struct {
	// Endpoint is the device's host:port.
	Endpoint string

	// Secret is the authentication password. Never logged.
	Secret string

	// ConnectTimeout bounds the dial plus handshake.
	ConnectTimeout time.Duration

	// IOTimeout bounds each wire read and write.
	IOTimeout time.Duration

	// MaxAuthFailures trips the local lockout.
	MaxAuthFailures int

	// LockoutDuration is the local auth cooldown.
	LockoutDuration time.Duration

	// HistorySize caps the command history ring.
	HistorySize int
}

func (c Config) withDefaults() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.IOTimeout <= 0 {
		c.IOTimeout = DefaultIOTimeout
	}
	return c
}

// Controller is a stateful session for one device.
// Safe for concurrent use; operations on the single underlying
// connection are serialized.
type Controller struct {
	cfg   Config
	codec protocol.Codec

	dial   pool.DialFunc
	pl     *pool.Pool
	logger telemetry.Logger
	rec    *metrics.Recorder

	// mu serializes connect/exchange/close; request-response
	// protocols allow one in-flight command per connection anyway.
	mu       chan struct{}
	state    State
	netConn  net.Conn
	poolConn *pool.Conn
	framer   *transport.Framer
	connID   string

	auth *authTracker
	hist *history
}

// Option configures a Controller.
type Option func(*Controller)

// WithPool makes the controller borrow its connection from a pool
// instead of dialing directly.
func WithPool(p *pool.Pool) Option {
	return func(c *Controller) { c.pl = p }
}

// WithDialer overrides the transport dialer (tests, TLS wrappers).
func WithDialer(d pool.DialFunc) Option {
	return func(c *Controller) { c.dial = d }
}

// WithLogger attaches a telemetry logger.
func WithLogger(l telemetry.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(r *metrics.Recorder) Option {
	return func(c *Controller) { c.rec = r }
}

// New creates a Controller for one device. The codec must be dedicated
// to this controller: it carries per-connection negotiation state.
func New(codec protocol.Codec, cfg Config, opts ...Option) *Controller {
	cfg = cfg.withDefaults()
	c := &Controller{
		cfg:   cfg,
		codec: codec,
		mu:    make(chan struct{}, 1),
		state: StateDisconnected,
		auth:  newAuthTracker(cfg.MaxAuthFailures, cfg.LockoutDuration),
		hist:  newHistory(cfg.HistorySize),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.dial == nil {
		c.dial = func(ctx context.Context, endpoint string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "tcp", endpoint)
		}
	}
	return c
}

// lock acquires the session mutex, honoring ctx cancellation.
func (c *Controller) lock(ctx context.Context) error {
	select {
	case c.mu <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) unlock() {
	<-c.mu
}

// Endpoint returns the device's host:port.
func (c *Controller) Endpoint() string { return c.cfg.Endpoint }

// Protocol returns the codec's identifier.
func (c *Controller) Protocol() protocol.ID { return c.codec.Protocol() }

// Capabilities returns the codec's capability descriptor at its
// current negotiation state.
func (c *Controller) Capabilities() protocol.Capabilities {
	return c.codec.Capabilities()
}

// State returns the session state.
func (c *Controller) State() State {
	c.mu <- struct{}{}
	defer c.unlock()
	return c.state
}

// AuthState returns the session's authentication state.
func (c *Controller) AuthState() AuthState {
	s, _, _ := c.auth.snapshot()
	return s
}

// AuthFailures returns the consecutive auth failure count.
func (c *Controller) AuthFailures() int {
	_, n, _ := c.auth.snapshot()
	return n
}

// IsLockedOut reports whether the local lockout is active.
func (c *Controller) IsLockedOut() bool {
	return errors.Is(c.auth.checkLockout(), ErrAuthLockedOut)
}

// ClearLockout manually resets the lockout and failure count.
func (c *Controller) ClearLockout() {
	c.auth.clear()
}

// History returns the recent command log, oldest first.
func (c *Controller) History() []HistoryEntry {
	return c.hist.snapshot()
}

// Connect establishes the session: dial (or pool acquire), greeting,
// authentication, and a capability query on protocols that support
// one. A no-op when already connected. While the lockout is active it
// fails immediately with a *LockoutError, without touching the wire.
func (c *Controller) Connect(ctx context.Context) error {
	if err := c.lock(ctx); err != nil {
		return err
	}
	defer c.unlock()
	return c.connectLocked(ctx)
}

func (c *Controller) connectLocked(ctx context.Context) error {
	switch c.state {
	case StateConnected, StateAuthenticated:
		return nil
	case StateClosed:
		return ErrClosed
	}

	if err := c.auth.checkLockout(); err != nil {
		var le *LockoutError
		if errors.As(err, &le) {
			c.emitAuth(telemetry.AuthLockout, c.AuthFailures(), &le.Until)
		}
		return err
	}

	c.setState(StateConnecting, "connect requested")

	ctx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	if err := c.open(ctx); err != nil {
		c.teardown()
		c.setState(StateError, "connect failed")
		return err
	}

	if err := c.handshake(ctx); err != nil {
		c.teardown()
		c.setState(StateError, "handshake failed")
		return err
	}
	return nil
}

// open obtains the transport connection and builds the framer.
func (c *Controller) open(ctx context.Context) error {
	if c.pl != nil {
		pc, err := c.pl.Acquire(ctx, c.cfg.Endpoint)
		if err != nil {
			return err
		}
		c.poolConn = pc
		c.netConn = pc.NetConn()
		c.connID = pc.ID()
	} else {
		nc, err := c.dial(ctx, c.cfg.Endpoint)
		if err != nil {
			return &protocol.ConnectionError{Endpoint: c.cfg.Endpoint, Op: "dial", Err: err}
		}
		c.netConn = nc
		c.connID = uuid.NewString()
	}

	// Stale negotiation state (auth token) must not leak into a fresh
	// connection.
	if ca, ok := c.codec.(interface{ ClearAuth() }); ok {
		ca.ClearAuth()
	}

	c.framer = transport.NewFramer(c.netConn, c.codec)
	c.framer.SetIOTimeout(c.cfg.IOTimeout)
	c.framer.SetLogger(c.logger, c.connID)
	return nil
}

// handshake runs the greeting, authentication and capability query.
func (c *Controller) handshake(ctx context.Context) error {
	if init := c.codec.InitialHandshake(); init != nil {
		if err := c.framer.Send(ctx, init); err != nil {
			return err
		}
	}

	var hs protocol.Handshake
	if c.codec.ExpectsGreeting() {
		greeting, err := c.framer.ReadGreeting(ctx)
		if err != nil {
			return err
		}
		hs, err = c.codec.ProcessHandshake(greeting)
		if err != nil {
			if errors.Is(err, protocol.ErrAuthFailed) {
				c.noteAuthFailure()
			}
			return err
		}
	}

	if hs.RequiresAuth {
		if err := c.authenticate(ctx, hs.Challenge); err != nil {
			return err
		}
	}

	c.setState(StateConnected, "transport established")

	if hs.RequiresAuth {
		// One capability/class query before reporting success: it
		// negotiates the protocol class and, on token-prefixed
		// protocols, is the first moment a bad secret can surface.
		if c.codec.Capabilities().Supports(protocol.CommandClassQuery) {
			resp, err := c.exchange(ctx, protocol.NewCommand(protocol.CommandClassQuery))
			if err != nil {
				return err
			}
			if !resp.Success && resp.Code == protocol.CodeAuthFailed {
				c.noteAuthFailure()
				return &protocol.AuthError{Reason: "credential rejected on capability query"}
			}
		}

		c.auth.recordSuccess()
		c.emitAuth(telemetry.AuthSuccess, 0, nil)
		c.setState(StateAuthenticated, "authenticated")
	}
	return nil
}

// authenticate computes and, where the protocol asks for it, transmits
// the auth token and verifies the acknowledgement.
func (c *Controller) authenticate(ctx context.Context, challenge []byte) error {
	token, err := c.codec.AuthResponse(challenge, c.cfg.Secret)
	if err != nil {
		return err
	}
	if token == nil {
		// Token is embedded in every encoded command instead.
		return nil
	}

	if err := c.framer.Send(ctx, token); err != nil {
		return err
	}

	n := c.codec.AuthAckSize()
	if n == 0 {
		return nil
	}
	ack, err := c.framer.ReadN(ctx, n)
	if err != nil {
		return err
	}
	if err := c.codec.AuthConfirm(ack); err != nil {
		if errors.Is(err, protocol.ErrAuthFailed) {
			c.noteAuthFailure()
		}
		return err
	}
	return nil
}

// Do executes one logical command, reconnecting lazily when the
// session is down. Device-reported failures come back in the Response;
// errors mean the exchange itself failed.
func (c *Controller) Do(ctx context.Context, cmd protocol.Command) (protocol.Response, error) {
	if err := c.lock(ctx); err != nil {
		return protocol.Response{}, err
	}
	defer c.unlock()

	if c.state == StateClosed {
		return protocol.Response{}, ErrClosed
	}

	if err := c.connectLocked(ctx); err != nil {
		return protocol.Response{}, err
	}

	// After connect: class negotiation may have widened the
	// capability set.
	if !c.codec.Capabilities().Supports(cmd.Type) {
		return protocol.Response{}, &protocol.CapabilityError{
			Op:       cmd.Type,
			Protocol: string(c.codec.Protocol()),
		}
	}

	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := c.exchange(ctx, cmd)
	elapsed := time.Since(start)

	entry := HistoryEntry{
		Command:  cmd.String(),
		Start:    start,
		Duration: elapsed,
		Success:  err == nil && resp.Success,
	}
	outcome := "success"
	switch {
	case err != nil:
		entry.Err = err.Error()
		outcome = "error"
	case !resp.Success:
		entry.Err = resp.Message
		outcome = "failure"
	}
	c.hist.add(entry)
	c.rec.ObserveCommand(c.cfg.Endpoint, cmd.Type.String(), outcome, elapsed)

	if err != nil {
		if errors.Is(err, protocol.ErrConnectionFailed) {
			// Connection is suspect; drop it and reconnect lazily on
			// the next call.
			c.teardown()
			c.setState(StateError, "exchange failed")
		}
		return protocol.Response{}, err
	}

	if !resp.Success && resp.Code == protocol.CodeAuthFailed {
		c.noteAuthFailure()
		c.teardown()
		c.setState(StateError, "credential rejected")
		return protocol.Response{}, &protocol.AuthError{Reason: resp.Message}
	}

	return resp, nil
}

// exchange encodes, sends and decodes one command on the live framer.
func (c *Controller) exchange(ctx context.Context, cmd protocol.Command) (protocol.Response, error) {
	wire, err := c.codec.Encode(cmd)
	if err != nil {
		return protocol.Response{}, err
	}
	if err := c.framer.Send(ctx, wire); err != nil {
		return protocol.Response{}, err
	}
	raw, err := c.framer.ReadResponse(ctx)
	if err != nil {
		return protocol.Response{}, err
	}
	return c.codec.Decode(cmd, raw)
}

// noteAuthFailure feeds the lockout tracker and telemetry.
func (c *Controller) noteAuthFailure() {
	c.rec.ObserveAuthFailure(c.cfg.Endpoint)
	locked, failures := c.auth.recordFailure()
	if locked {
		_, _, until := c.auth.snapshot()
		c.emitAuth(telemetry.AuthLockout, failures, &until)
		return
	}
	c.emitAuth(telemetry.AuthFailure, failures, nil)
}

// Disconnect tears the session down. The controller stays usable:
// the next operation reconnects.
func (c *Controller) Disconnect() {
	c.mu <- struct{}{}
	defer c.unlock()
	if c.state == StateClosed {
		return
	}
	c.teardown()
	c.setState(StateDisconnected, "disconnect requested")
}

// Close tears the session down for good.
func (c *Controller) Close() error {
	c.mu <- struct{}{}
	defer c.unlock()
	if c.state == StateClosed {
		return nil
	}
	c.teardown()
	c.setState(StateClosed, "closed")
	return nil
}

// teardown releases the transport connection. Caller holds the lock.
func (c *Controller) teardown() {
	if c.poolConn != nil {
		// The pool owns the socket; discard so a suspect connection
		// is never re-vended.
		_ = c.pl.Release(c.poolConn, true)
		c.poolConn = nil
	} else if c.netConn != nil {
		_ = c.netConn.Close()
	}
	c.netConn = nil
	c.framer = nil
}

// setState transitions the session state and emits telemetry.
// Caller holds the lock.
func (c *Controller) setState(to State, reason string) {
	from := c.state
	if from == to {
		return
	}
	c.state = to
	telemetry.Emit(c.logger, telemetry.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.connID,
		Endpoint:     c.cfg.Endpoint,
		Protocol:     string(c.codec.Protocol()),
		Layer:        telemetry.LayerSession,
		Category:     telemetry.CategoryState,
		StateChange: &telemetry.StateChangeEvent{
			Entity:   telemetry.StateEntitySession,
			OldState: from.String(),
			NewState: to.String(),
			Reason:   reason,
		},
	})
}

// emitAuth reports an auth outcome. Neither the secret nor the token
// ever appears in the event.
func (c *Controller) emitAuth(outcome telemetry.AuthOutcome, failures int, until *time.Time) {
	telemetry.Emit(c.logger, telemetry.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.connID,
		Endpoint:     c.cfg.Endpoint,
		Protocol:     string(c.codec.Protocol()),
		Layer:        telemetry.LayerSession,
		Category:     telemetry.CategoryAuth,
		Auth: &telemetry.AuthEvent{
			Outcome:      outcome,
			FailureCount: failures,
			LockedUntil:  until,
		},
	})
}
