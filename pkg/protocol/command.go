package protocol

import (
	"fmt"
	"time"
)

// CommandType identifies a logical device operation.
type CommandType uint8

const (
	// CommandUnknown is the zero value and never valid on the wire.
	CommandUnknown CommandType = iota

	// Power control.
	CommandPowerOn
	CommandPowerOff
	CommandPowerQuery

	// Input selection.
	CommandInputSelect
	CommandInputQuery
	CommandInputList

	// Audio/video mute.
	CommandMuteOn
	CommandMuteOff
	CommandMuteQuery

	// Picture freeze and blanking (not supported by every protocol).
	CommandFreeze
	CommandUnfreeze
	CommandFreezeQuery
	CommandBlank
	CommandUnblank

	// Status queries.
	CommandLampQuery
	CommandErrorQuery
	CommandFilterQuery
	CommandTemperatureQuery

	// Identity and metadata queries.
	CommandClassQuery
	CommandNameQuery
	CommandInfoQuery
	CommandSerialQuery

	// ImageAdjust is a generic get/set of a vendor image parameter.
	CommandImageAdjust

	// CommandRaw passes pre-encoded bytes through unchanged.
	CommandRaw
)

// String returns the command type name.
func (t CommandType) String() string {
	switch t {
	case CommandPowerOn:
		return "POWER_ON"
	case CommandPowerOff:
		return "POWER_OFF"
	case CommandPowerQuery:
		return "POWER_QUERY"
	case CommandInputSelect:
		return "INPUT_SELECT"
	case CommandInputQuery:
		return "INPUT_QUERY"
	case CommandInputList:
		return "INPUT_LIST"
	case CommandMuteOn:
		return "MUTE_ON"
	case CommandMuteOff:
		return "MUTE_OFF"
	case CommandMuteQuery:
		return "MUTE_QUERY"
	case CommandFreeze:
		return "FREEZE"
	case CommandUnfreeze:
		return "UNFREEZE"
	case CommandFreezeQuery:
		return "FREEZE_QUERY"
	case CommandBlank:
		return "BLANK"
	case CommandUnblank:
		return "UNBLANK"
	case CommandLampQuery:
		return "LAMP_QUERY"
	case CommandErrorQuery:
		return "ERROR_QUERY"
	case CommandFilterQuery:
		return "FILTER_QUERY"
	case CommandTemperatureQuery:
		return "TEMPERATURE_QUERY"
	case CommandClassQuery:
		return "CLASS_QUERY"
	case CommandNameQuery:
		return "NAME_QUERY"
	case CommandInfoQuery:
		return "INFO_QUERY"
	case CommandSerialQuery:
		return "SERIAL_QUERY"
	case CommandImageAdjust:
		return "IMAGE_ADJUST"
	case CommandRaw:
		return "RAW"
	default:
		return "UNKNOWN"
	}
}

// Command is an immutable logical command built by a codec-specific
// factory or directly by the controller. Params carries codec-specific
// arguments ("input", "item", "value", …) as opaque strings.
type Command struct {
	Type    CommandType
	Params  map[string]string
	Timeout time.Duration
}

// NewCommand creates a command with no parameters.
func NewCommand(t CommandType) Command {
	return Command{Type: t}
}

// NewCommandWithParams creates a command with the given parameters.
// The map is copied so the command stays immutable.
func NewCommandWithParams(t CommandType, params map[string]string) Command {
	cp := make(map[string]string, len(params))
	for k, v := range params {
		cp[k] = v
	}
	return Command{Type: t, Params: cp}
}

// Param returns the named parameter, or "" if absent.
func (c Command) Param(name string) string {
	return c.Params[name]
}

// WithTimeout returns a copy of the command with a per-call timeout.
func (c Command) WithTimeout(d time.Duration) Command {
	c.Timeout = d
	return c
}

// String returns a loggable form of the command. Parameter values are
// included; secrets never travel as command parameters.
func (c Command) String() string {
	if len(c.Params) == 0 {
		return c.Type.String()
	}
	return fmt.Sprintf("%s%v", c.Type, c.Params)
}

// Response is the decoded result of one command exchange.
// Produced by Codec.Decode and immutable afterwards.
type Response struct {
	// Success reports whether the device acknowledged the command.
	Success bool

	// Payload carries decoded response data keyed by codec-specific
	// names ("power", "input", "hours", …). Nil for plain acks.
	Payload map[string]string

	// Code is a stable machine-checkable error code when Success is
	// false ("" otherwise).
	Code string

	// Message is a human-readable error description when Success is
	// false ("" otherwise).
	Message string

	// Raw preserves the undecoded wire bytes for diagnostics.
	Raw []byte
}

// OK returns a successful response with no payload.
func OK(raw []byte) Response {
	return Response{Success: true, Raw: raw}
}

// OKPayload returns a successful response carrying decoded data.
func OKPayload(raw []byte, payload map[string]string) Response {
	return Response{Success: true, Payload: payload, Raw: raw}
}

// Value returns the named payload entry, or "" if absent.
func (r Response) Value(name string) string {
	return r.Payload[name]
}
