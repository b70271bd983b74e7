package protocol

import (
	"io"
	"time"
)

// ID is a normalized protocol identifier ("pjlink", "hitachi").
type ID string

// Known protocol identifiers.
const (
	// PJLink is the JBMIA PJLink text protocol.
	PJLink ID = "pjlink"

	// Hitachi is the Hitachi binary framed protocol.
	Hitachi ID = "hitachi"
)

// Handshake describes what a codec learned from the server greeting.
type Handshake struct {
	// RequiresAuth reports whether the connection demands
	// challenge-response authentication.
	RequiresAuth bool

	// Challenge is the server-supplied random material when
	// RequiresAuth is true. Its format is codec-specific.
	Challenge []byte
}

// Capabilities is the static per-protocol declaration of supported
// logical operations. Callers consult it instead of probing with errors.
type Capabilities struct {
	Power       bool
	Input       bool
	InputList   bool
	Mute        bool
	Freeze      bool
	Blank       bool
	Lamp        bool
	Filter      bool
	Temperature bool
	ErrorStatus bool
	Info        bool
	Serial      bool
	ImageAdjust bool

	// Auth reports whether the protocol can demand authentication.
	Auth bool
}

// Supports reports whether the given operation is available.
func (c Capabilities) Supports(t CommandType) bool {
	switch t {
	case CommandPowerOn, CommandPowerOff, CommandPowerQuery:
		return c.Power
	case CommandInputSelect, CommandInputQuery:
		return c.Input
	case CommandInputList:
		return c.InputList
	case CommandMuteOn, CommandMuteOff, CommandMuteQuery:
		return c.Mute
	case CommandFreeze, CommandUnfreeze, CommandFreezeQuery:
		return c.Freeze
	case CommandBlank, CommandUnblank:
		return c.Blank
	case CommandLampQuery:
		return c.Lamp
	case CommandFilterQuery:
		return c.Filter
	case CommandTemperatureQuery:
		return c.Temperature
	case CommandErrorQuery:
		return c.ErrorStatus
	case CommandNameQuery, CommandInfoQuery, CommandClassQuery:
		return c.Info
	case CommandSerialQuery:
		return c.Serial
	case CommandImageAdjust:
		return c.ImageAdjust
	case CommandRaw:
		return true
	default:
		return false
	}
}

// Codec encodes logical commands to wire bytes and decodes wire bytes to
// logical responses for one vendor protocol. Implementations carry
// per-connection negotiation state (auth token, protocol class) and are
// safe for use by one connection at a time.
type Codec interface {
	// Protocol returns the codec's identifier.
	Protocol() ID

	// Capabilities returns the static capability descriptor for the
	// codec at its currently negotiated class.
	Capabilities() Capabilities

	// Encode translates a command into wire bytes. Unsupported
	// operations return a *CapabilityError before any I/O.
	Encode(cmd Command) ([]byte, error)

	// Decode translates wire bytes into a response for the command
	// that produced them. Vendor-reported failures come back as a
	// non-success Response, not an error; only malformed data is an
	// error.
	Decode(cmd Command, data []byte) (Response, error)

	// InitialHandshake returns bytes the client must send immediately
	// after connecting, or nil when the server speaks first.
	InitialHandshake() []byte

	// ExpectsGreeting reports whether the server sends a greeting that
	// must be read before the first command (PJLink always greets; a
	// raw-mode binary connection never does).
	ExpectsGreeting() bool

	// ReadGreeting reads one complete server greeting from r. Only
	// called when ExpectsGreeting reports true.
	ReadGreeting(r io.Reader) ([]byte, error)

	// ReadResponse reads the bytes of exactly one response from r.
	// The codec owns the framing: line-terminated for text protocols,
	// tag-prefixed for binary ones.
	ReadResponse(r io.Reader) ([]byte, error)

	// ProcessHandshake parses the server greeting and derives the
	// authentication requirement.
	ProcessHandshake(data []byte) (Handshake, error)

	// AuthResponse computes the authentication token for a challenge.
	// It returns the bytes to transmit to the server, or nil when the
	// token is instead embedded into every encoded command. The
	// secret never appears in logs or telemetry.
	AuthResponse(challenge []byte, secret string) ([]byte, error)

	// AuthAckSize returns the number of acknowledgement bytes the
	// server sends after the auth token, or 0 when the protocol gives
	// no explicit ack (auth failures then surface on the first
	// command).
	AuthAckSize() int

	// AuthConfirm verifies the server's auth acknowledgement when
	// AuthAckSize is non-zero.
	AuthConfirm(data []byte) error
}

// Pacer is implemented by codecs whose hardware silently drops commands
// issued faster than a minimum spacing. The spacing must be enforced per
// physical connection, not per caller.
type Pacer interface {
	// MinCommandInterval returns the mandatory delay between the start
	// of consecutive commands on one connection.
	MinCommandInterval() time.Duration
}

// FrameRedactor is implemented by codecs whose wire frames carry
// credential material. RedactFrame returns a copy of the frame safe to
// record in telemetry; the original is sent unmodified. Auth tokens and
// anything derived from the device secret must not survive redaction.
type FrameRedactor interface {
	RedactFrame(data []byte) []byte
}
