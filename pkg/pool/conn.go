package pool

import (
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ConnState represents the lifecycle state of a pooled connection.
type ConnState uint8

const (
	// StateIdle indicates the connection is parked in the pool.
	StateIdle ConnState = iota

	// StateInUse indicates the connection is borrowed by a caller.
	StateInUse

	// StateStale indicates the connection failed validation and is
	// about to be closed.
	StateStale

	// StateClosed indicates the underlying socket is closed.
	StateClosed
)

// String returns a human-readable state name.
func (s ConnState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateInUse:
		return "IN_USE"
	case StateStale:
		return "STALE"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Conn is a pooled TCP connection. It wraps the raw socket with the
// bookkeeping the pool needs for validation and eviction.
type Conn struct {
	id       string
	endpoint string
	netConn  net.Conn
	created  time.Time

	mu       sync.Mutex
	state    ConnState
	lastUsed time.Time
	useCount int
}

func newConn(endpoint string, nc net.Conn) *Conn {
	now := time.Now()
	return &Conn{
		id:       uuid.NewString(),
		endpoint: endpoint,
		netConn:  nc,
		created:  now,
		state:    StateInUse,
		lastUsed: now,
		useCount: 1,
	}
}

// ID returns the connection's unique identifier.
func (c *Conn) ID() string { return c.id }

// Endpoint returns the remote host:port.
func (c *Conn) Endpoint() string { return c.endpoint }

// NetConn returns the underlying socket for I/O.
func (c *Conn) NetConn() net.Conn { return c.netConn }

// CreatedAt returns when the connection was dialed.
func (c *Conn) CreatedAt() time.Time { return c.created }

// LastUsedAt returns when the connection was last borrowed or released.
func (c *Conn) LastUsedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastUsed
}

// UseCount returns how many times the connection has been borrowed.
func (c *Conn) UseCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.useCount
}

// State returns the current lifecycle state.
func (c *Conn) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Conn) setState(s ConnState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Conn) touch() {
	c.mu.Lock()
	c.lastUsed = time.Now()
	c.mu.Unlock()
}

func (c *Conn) markBorrowed() {
	c.mu.Lock()
	c.state = StateInUse
	c.lastUsed = time.Now()
	c.useCount++
	c.mu.Unlock()
}

// close closes the socket and marks the connection Closed.
// Safe to call more than once.
func (c *Conn) close() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosed
	c.mu.Unlock()
	return c.netConn.Close()
}
