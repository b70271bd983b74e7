package telemetry

import "time"

// Event represents a stack event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID uniquely identifies the connection (UUID), when the
	// event is tied to one.
	ConnectionID string `cbor:"2,keyasint,omitempty"`

	// Endpoint is the remote host:port.
	Endpoint string `cbor:"3,keyasint,omitempty"`

	// Protocol is the normalized protocol identifier.
	Protocol string `cbor:"4,keyasint,omitempty"`

	// Direction indicates message flow for frame events.
	Direction Direction `cbor:"5,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"6,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"7,keyasint"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"8,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"9,keyasint,omitempty"`
	Auth        *AuthEvent        `cbor:"10,keyasint,omitempty"`
	Circuit     *CircuitEvent     `cbor:"11,keyasint,omitempty"`
	Pool        *PoolEvent        `cbor:"12,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"13,keyasint,omitempty"`
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates incoming bytes.
	DirectionIn Direction = 0
	// DirectionOut indicates outgoing bytes.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which layer of the stack captured the event.
type Layer uint8

const (
	// LayerTransport is the raw socket layer.
	LayerTransport Layer = 0
	// LayerCodec is the protocol encode/decode layer.
	LayerCodec Layer = 1
	// LayerSession is the device controller layer.
	LayerSession Layer = 2
	// LayerResilience is the pool/breaker/facade layer.
	LayerResilience Layer = 3
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerCodec:
		return "CODEC"
	case LayerSession:
		return "SESSION"
	case LayerResilience:
		return "RESILIENCE"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryFrame indicates raw wire traffic.
	CategoryFrame Category = 0
	// CategoryState indicates a state change.
	CategoryState Category = 1
	// CategoryAuth indicates an authentication outcome.
	CategoryAuth Category = 2
	// CategoryCircuit indicates a circuit breaker transition.
	CategoryCircuit Category = 3
	// CategoryPool indicates a connection pool event.
	CategoryPool Category = 4
	// CategoryError indicates an error event.
	CategoryError Category = 5
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryFrame:
		return "FRAME"
	case CategoryState:
		return "STATE"
	case CategoryAuth:
		return "AUTH"
	case CategoryCircuit:
		return "CIRCUIT"
	case CategoryPool:
		return "POOL"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// MaxFrameDataSize is the maximum frame data size to include in events.
// Larger frames are truncated to avoid excessive memory usage.
const MaxFrameDataSize = 4096

// FrameEvent captures raw wire bytes at the transport layer.
type FrameEvent struct {
	// Size is the full frame size in bytes.
	Size int `cbor:"1,keyasint"`

	// Data is the raw bytes (may be truncated).
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// NewFrameEvent builds a frame event, truncating oversized payloads.
func NewFrameEvent(data []byte) *FrameEvent {
	fe := &FrameEvent{Size: len(data), Data: data}
	if len(data) > MaxFrameDataSize {
		fe.Data = data[:MaxFrameDataSize]
		fe.Truncated = true
	}
	return fe
}

// StateChangeEvent captures connection and session lifecycle changes.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityConnection indicates a pooled connection state change.
	StateEntityConnection StateEntity = 0
	// StateEntitySession indicates a controller session state change.
	StateEntitySession StateEntity = 1
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntitySession:
		return "SESSION"
	default:
		return "UNKNOWN"
	}
}

// AuthEvent captures an authentication outcome. It never carries the
// secret or the computed token.
type AuthEvent struct {
	// Outcome of the attempt.
	Outcome AuthOutcome `cbor:"1,keyasint"`

	// FailureCount is the consecutive failure count after this attempt.
	FailureCount int `cbor:"2,keyasint,omitempty"`

	// LockedUntil is set when the outcome is a lockout.
	LockedUntil *time.Time `cbor:"3,keyasint,omitempty"`
}

// AuthOutcome classifies an authentication attempt.
type AuthOutcome uint8

const (
	// AuthSuccess indicates accepted credentials.
	AuthSuccess AuthOutcome = 0
	// AuthFailure indicates rejected credentials.
	AuthFailure AuthOutcome = 1
	// AuthLockout indicates the local lockout engaged.
	AuthLockout AuthOutcome = 2
)

// String returns the outcome name.
func (o AuthOutcome) String() string {
	switch o {
	case AuthSuccess:
		return "SUCCESS"
	case AuthFailure:
		return "FAILURE"
	case AuthLockout:
		return "LOCKOUT"
	default:
		return "UNKNOWN"
	}
}

// CircuitEvent captures a circuit breaker transition.
type CircuitEvent struct {
	// OldState is the state before the transition.
	OldState string `cbor:"1,keyasint"`

	// NewState is the state after the transition.
	NewState string `cbor:"2,keyasint"`

	// ConsecutiveFailures at the moment of transition.
	ConsecutiveFailures int `cbor:"3,keyasint,omitempty"`

	// Reason for the transition (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// PoolEvent captures a connection pool occurrence.
type PoolEvent struct {
	// Kind of pool event.
	Kind PoolEventKind `cbor:"1,keyasint"`

	// Active and Idle counts at the time of the event.
	Active int `cbor:"2,keyasint"`
	Idle   int `cbor:"3,keyasint"`
}

// PoolEventKind classifies pool events.
type PoolEventKind uint8

const (
	// PoolExhausted indicates an acquire timed out at capacity.
	PoolExhausted PoolEventKind = 0
	// PoolDiscarded indicates a connection failed validation.
	PoolDiscarded PoolEventKind = 1
)

// String returns the pool event kind name.
func (k PoolEventKind) String() string {
	switch k {
	case PoolExhausted:
		return "EXHAUSTED"
	case PoolDiscarded:
		return "DISCARDED"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"3,keyasint,omitempty"`
}
