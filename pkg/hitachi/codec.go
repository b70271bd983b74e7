package hitachi

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/avlink-protocol/avlink-go/pkg/protocol"
)

// Protocol constants.
const (
	// DefaultRawPort carries unauthenticated raw frames.
	DefaultRawPort = 23

	// DefaultAuthPort carries framed traffic behind the MD5 handshake.
	DefaultAuthPort = 9715

	// ChallengeLength is the length of the random auth challenge.
	ChallengeLength = 8

	// authTokenLength is the raw MD5 digest length sent back.
	authTokenLength = 16

	// MinCommandDelay is the mandatory spacing between commands on one
	// connection. Commands issued faster are silently dropped by the
	// hardware regardless of network latency.
	MinCommandDelay = 40 * time.Millisecond
)

// Response tags.
const (
	tagACK   = 0x06
	tagNAK   = 0x15
	tagError = 0x1C
	tagData  = 0x1D
	tagBusy  = 0x1F
)

// codeAuthError inside a 0x1F reply marks an authentication failure;
// any other code means the projector is busy.
const codeAuthError = 0x0400

// KnownReplyTag reports whether b opens a valid reply. Protocol
// detection uses it to classify an otherwise silent port.
func KnownReplyTag(b byte) bool {
	switch b {
	case tagACK, tagNAK, tagError, tagData, tagBusy:
		return true
	default:
		return false
	}
}

// Item codes.
const (
	ItemPower       = 0x6000
	ItemInput       = 0x2000
	ItemBlank       = 0x3000
	ItemFreeze      = 0x3002
	ItemMute        = 0x0720
	ItemErrorStatus = 0x6020
	ItemLampHours   = 0x9010
	ItemFilterHours = 0x9020
	ItemTemperature = 0x0520
)

// inputSettings maps friendly input names to setting values.
var inputSettings = map[string]uint16{
	"rgb1":      0x00,
	"video1":    0x01,
	"svideo1":   0x02,
	"hdmi1":     0x03,
	"rgb2":      0x04,
	"component": 0x05,
	"hdmi2":     0x0D,
}

// inputSettingNames is the reverse of inputSettings.
var inputSettingNames = map[uint16]string{
	0x00: "rgb1",
	0x01: "video1",
	0x02: "svideo1",
	0x03: "hdmi1",
	0x04: "rgb2",
	0x05: "component",
	0x0D: "hdmi2",
}

// imageItems maps adjustable picture parameters to item codes.
var imageItems = map[string]uint16{
	"brightness": 0x2003,
	"contrast":   0x2004,
	"color":      0x2005,
	"tint":       0x2006,
	"sharpness":  0x2007,
}

// errorStatusNames maps error-status data values to names.
var errorStatusNames = map[uint16]string{
	0: "normal",
	1: "cover",
	2: "fan",
	3: "lamp",
	4: "temperature",
	5: "airflow",
	6: "lamp_time",
	7: "cold",
	8: "filter",
}

// Mode selects the wire mode.
type Mode uint8

const (
	// ModeRaw is the unauthenticated mode (port 23).
	ModeRaw Mode = iota

	// ModeAuth is the framed, authenticated mode (port 9715).
	ModeAuth
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeRaw:
		return "RAW"
	case ModeAuth:
		return "AUTH"
	default:
		return "UNKNOWN"
	}
}

// Codec implements the Hitachi binary framed protocol.
type Codec struct {
	mode Mode

	// lastToken is the auth token last produced by AuthResponse, kept
	// so RedactFrame can recognize and mask it.
	lastToken []byte
}

// Compile-time interface satisfaction checks.
var (
	_ protocol.Codec         = (*Codec)(nil)
	_ protocol.Pacer         = (*Codec)(nil)
	_ protocol.FrameRedactor = (*Codec)(nil)
)

// NewCodec creates a codec in raw (unauthenticated) mode.
func NewCodec() *Codec {
	return &Codec{mode: ModeRaw}
}

// NewAuthCodec creates a codec for the authenticated port.
func NewAuthCodec() *Codec {
	return &Codec{mode: ModeAuth}
}

// Protocol returns the codec identifier.
func (c *Codec) Protocol() protocol.ID {
	return protocol.Hitachi
}

// Mode returns the wire mode.
func (c *Codec) Mode() Mode {
	return c.mode
}

// Capabilities returns the static descriptor. The protocol cannot
// enumerate inputs or report free-form device info.
func (c *Codec) Capabilities() protocol.Capabilities {
	return protocol.Capabilities{
		Power:       true,
		Input:       true,
		InputList:   false,
		Mute:        true,
		Freeze:      true,
		Blank:       true,
		Lamp:        true,
		Filter:      true,
		Temperature: true,
		ErrorStatus: true,
		Info:        false,
		Serial:      false,
		ImageAdjust: true,
		Auth:        c.mode == ModeAuth,
	}
}

// MinCommandInterval implements protocol.Pacer.
func (c *Codec) MinCommandInterval() time.Duration {
	return MinCommandDelay
}

// InitialHandshake returns nil: the client sends nothing before the
// first command (raw mode) or waits for the challenge (auth mode).
func (c *Codec) InitialHandshake() []byte {
	return nil
}

// ExpectsGreeting reports whether the server opens with a challenge.
func (c *Codec) ExpectsGreeting() bool {
	return c.mode == ModeAuth
}

// ReadGreeting reads the 8-byte auth challenge. Only called in auth
// mode.
func (c *Codec) ReadGreeting(r io.Reader) ([]byte, error) {
	buf := make([]byte, ChallengeLength)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadResponse reads one tag-framed response. ACK and NAK are a single
// byte; error, data and busy replies carry two more.
func (c *Codec) ReadResponse(r io.Reader) ([]byte, error) {
	var tag [1]byte
	if _, err := io.ReadFull(r, tag[:]); err != nil {
		return nil, err
	}
	switch tag[0] {
	case tagACK, tagNAK:
		return tag[:], nil
	case tagError, tagData, tagBusy:
		buf := make([]byte, 3)
		buf[0] = tag[0]
		if _, err := io.ReadFull(r, buf[1:]); err != nil {
			return nil, err
		}
		return buf, nil
	default:
		return nil, &protocol.ProtocolError{
			Reason: fmt.Sprintf("unknown response tag 0x%02X", tag[0]),
			Raw:    tag[:],
		}
	}
}

// ProcessHandshake parses the 8-byte auth challenge. Raw-mode
// connections have no greeting.
func (c *Codec) ProcessHandshake(data []byte) (protocol.Handshake, error) {
	if c.mode == ModeRaw {
		return protocol.Handshake{}, nil
	}
	if len(data) != ChallengeLength {
		return protocol.Handshake{}, &protocol.ProtocolError{
			Reason: fmt.Sprintf("auth challenge length %d, want %d", len(data), ChallengeLength),
			Raw:    data,
		}
	}
	challenge := make([]byte, ChallengeLength)
	copy(challenge, data)
	return protocol.Handshake{RequiresAuth: true, Challenge: challenge}, nil
}

// AuthResponse returns the 16 raw bytes of MD5(challenge‖password).
func (c *Codec) AuthResponse(challenge []byte, secret string) ([]byte, error) {
	if len(challenge) != ChallengeLength {
		return nil, fmt.Errorf("challenge length %d, want %d", len(challenge), ChallengeLength)
	}
	sum := md5.Sum(append(append([]byte{}, challenge...), []byte(secret)...))
	c.lastToken = sum[:]
	return sum[:], nil
}

// RedactFrame replaces a transmitted auth token with zero bytes of the
// same length so recorded frames carry no credential-derived material.
func (c *Codec) RedactFrame(data []byte) []byte {
	if len(c.lastToken) == 0 || !bytes.Equal(data, c.lastToken) {
		return data
	}
	return make([]byte, len(data))
}

// AuthAckSize returns 1: the server acknowledges the token with a
// single byte.
func (c *Codec) AuthAckSize() int {
	if c.mode == ModeRaw {
		return 0
	}
	return 1
}

// AuthConfirm verifies the 1-byte ack: non-zero means success.
func (c *Codec) AuthConfirm(data []byte) error {
	if len(data) != 1 {
		return &protocol.ProtocolError{Reason: fmt.Sprintf("auth ack length %d, want 1", len(data)), Raw: data}
	}
	if data[0] == 0 {
		return &protocol.AuthError{Reason: "auth token rejected"}
	}
	return nil
}

// Encode translates a command into a 13-byte frame.
func (c *Codec) Encode(cmd protocol.Command) ([]byte, error) {
	switch cmd.Type {
	case protocol.CommandPowerOn:
		return BuildPacket(ActionSet, ItemPower, 1), nil
	case protocol.CommandPowerOff:
		return BuildPacket(ActionSet, ItemPower, 0), nil
	case protocol.CommandPowerQuery:
		return BuildPacket(ActionGet, ItemPower, 0), nil

	case protocol.CommandInputSelect:
		setting, err := resolveInputSetting(cmd.Param("input"))
		if err != nil {
			return nil, &protocol.DeviceError{Code: protocol.CodeBadParameter, Message: err.Error()}
		}
		return BuildPacket(ActionSet, ItemInput, setting), nil
	case protocol.CommandInputQuery:
		return BuildPacket(ActionGet, ItemInput, 0), nil

	case protocol.CommandMuteOn:
		return BuildPacket(ActionSet, ItemMute, 1), nil
	case protocol.CommandMuteOff:
		return BuildPacket(ActionSet, ItemMute, 0), nil
	case protocol.CommandMuteQuery:
		return BuildPacket(ActionGet, ItemMute, 0), nil

	case protocol.CommandFreeze:
		return BuildPacket(ActionSet, ItemFreeze, 1), nil
	case protocol.CommandUnfreeze:
		return BuildPacket(ActionSet, ItemFreeze, 0), nil
	case protocol.CommandFreezeQuery:
		return BuildPacket(ActionGet, ItemFreeze, 0), nil

	case protocol.CommandBlank:
		return BuildPacket(ActionSet, ItemBlank, 1), nil
	case protocol.CommandUnblank:
		return BuildPacket(ActionSet, ItemBlank, 0), nil

	case protocol.CommandLampQuery:
		return BuildPacket(ActionGet, ItemLampHours, 0), nil
	case protocol.CommandFilterQuery:
		return BuildPacket(ActionGet, ItemFilterHours, 0), nil
	case protocol.CommandErrorQuery:
		return BuildPacket(ActionGet, ItemErrorStatus, 0), nil
	case protocol.CommandTemperatureQuery:
		return BuildPacket(ActionGet, ItemTemperature, 0), nil

	case protocol.CommandImageAdjust:
		return c.encodeImageAdjust(cmd)

	case protocol.CommandRaw:
		return []byte(cmd.Param("data")), nil

	default:
		return nil, &protocol.CapabilityError{Op: cmd.Type, Protocol: "hitachi"}
	}
}

// encodeImageAdjust builds a frame for a generic picture parameter.
// Params: "item" (name or hex code), "action" (get/set/increment/
// decrement/execute, default get), "value" (for set).
func (c *Codec) encodeImageAdjust(cmd protocol.Command) ([]byte, error) {
	item, err := resolveImageItem(cmd.Param("item"))
	if err != nil {
		return nil, &protocol.DeviceError{Code: protocol.CodeBadParameter, Message: err.Error()}
	}

	action := ActionGet
	var setting uint16
	switch cmd.Param("action") {
	case "", "get":
	case "set":
		action = ActionSet
		v, err := strconv.ParseUint(cmd.Param("value"), 10, 16)
		if err != nil {
			return nil, &protocol.DeviceError{Code: protocol.CodeBadParameter, Message: fmt.Sprintf("bad value %q", cmd.Param("value"))}
		}
		setting = uint16(v)
	case "increment":
		action = ActionIncrement
	case "decrement":
		action = ActionDecrement
	case "execute":
		action = ActionExecute
	default:
		return nil, &protocol.DeviceError{Code: protocol.CodeBadParameter, Message: fmt.Sprintf("bad action %q", cmd.Param("action"))}
	}

	return BuildPacket(action, item, setting), nil
}

// Decode interprets a tagged response for the command that produced it.
func (c *Codec) Decode(cmd protocol.Command, data []byte) (protocol.Response, error) {
	if len(data) == 0 {
		return protocol.Response{}, &protocol.ProtocolError{Reason: "empty response"}
	}

	switch data[0] {
	case tagACK:
		return protocol.OK(data), nil

	case tagNAK:
		return protocol.Response{
			Success: false,
			Code:    protocol.CodeBadParameter,
			Message: "command rejected (NAK)",
			Raw:     data,
		}, nil

	case tagError:
		if len(data) < 3 {
			return protocol.Response{}, &protocol.ProtocolError{Reason: "truncated error reply", Raw: data}
		}
		code := binary.LittleEndian.Uint16(data[1:3])
		return protocol.Response{
			Success: false,
			Code:    protocol.CodeDeviceFailure,
			Message: fmt.Sprintf("device error 0x%04X", code),
			Raw:     data,
		}, nil

	case tagData:
		if len(data) < 3 {
			return protocol.Response{}, &protocol.ProtocolError{Reason: "truncated data reply", Raw: data}
		}
		value := binary.LittleEndian.Uint16(data[1:3])
		return c.decodeValue(cmd, value, data)

	case tagBusy:
		if len(data) < 3 {
			return protocol.Response{}, &protocol.ProtocolError{Reason: "truncated busy reply", Raw: data}
		}
		code := binary.LittleEndian.Uint16(data[1:3])
		if code == codeAuthError {
			return protocol.Response{
				Success: false,
				Code:    protocol.CodeAuthFailed,
				Message: "authentication error",
				Raw:     data,
			}, nil
		}
		return protocol.Response{
			Success: false,
			Code:    protocol.CodeDeviceBusy,
			Message: fmt.Sprintf("device busy (0x%04X)", code),
			Raw:     data,
		}, nil

	default:
		return protocol.Response{}, &protocol.ProtocolError{
			Reason: fmt.Sprintf("unknown response tag 0x%02X", data[0]),
			Raw:    data,
		}
	}
}

// decodeValue interprets a data reply per the originating command.
func (c *Codec) decodeValue(cmd protocol.Command, value uint16, raw []byte) (protocol.Response, error) {
	switch cmd.Type {
	case protocol.CommandPowerQuery:
		var state string
		switch value {
		case 0:
			state = "off"
		case 1:
			state = "on"
		case 2:
			state = "cooling"
		default:
			return protocol.Response{}, &protocol.ProtocolError{Reason: fmt.Sprintf("unknown power state %d", value), Raw: raw}
		}
		return protocol.OKPayload(raw, map[string]string{"power": state}), nil

	case protocol.CommandInputQuery:
		name, ok := inputSettingNames[value]
		if !ok {
			name = strconv.Itoa(int(value))
		}
		return protocol.OKPayload(raw, map[string]string{
			"input": strconv.Itoa(int(value)),
			"name":  name,
		}), nil

	case protocol.CommandMuteQuery:
		return protocol.OKPayload(raw, map[string]string{"mute": onOff(value)}), nil

	case protocol.CommandFreezeQuery:
		return protocol.OKPayload(raw, map[string]string{"freeze": onOff(value)}), nil

	case protocol.CommandLampQuery:
		return protocol.OKPayload(raw, map[string]string{"lamp1_hours": strconv.Itoa(int(value))}), nil

	case protocol.CommandFilterQuery:
		return protocol.OKPayload(raw, map[string]string{"filter_hours": strconv.Itoa(int(value))}), nil

	case protocol.CommandTemperatureQuery:
		return protocol.OKPayload(raw, map[string]string{"temperature": strconv.Itoa(int(value))}), nil

	case protocol.CommandErrorQuery:
		name, ok := errorStatusNames[value]
		if !ok {
			name = fmt.Sprintf("unknown(%d)", value)
		}
		return protocol.OKPayload(raw, map[string]string{"status": name}), nil

	default:
		return protocol.OKPayload(raw, map[string]string{"value": strconv.Itoa(int(value))}), nil
	}
}

// onOff maps 0/1 to off/on.
func onOff(v uint16) string {
	if v == 0 {
		return "off"
	}
	return "on"
}

// resolveInputSetting turns a friendly name or numeric string into an
// input setting value.
func resolveInputSetting(input string) (uint16, error) {
	if setting, ok := inputSettings[input]; ok {
		return setting, nil
	}
	v, err := strconv.ParseUint(input, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("unknown input %q", input)
	}
	return uint16(v), nil
}

// resolveImageItem turns a parameter name or hex code into an item code.
func resolveImageItem(item string) (uint16, error) {
	if code, ok := imageItems[item]; ok {
		return code, nil
	}
	v, err := strconv.ParseUint(item, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("unknown image item %q", item)
	}
	return uint16(v), nil
}

// KnownInputs returns the friendly input names the codec can select.
func KnownInputs() []string {
	names := make([]string, 0, len(inputSettings))
	for name := range inputSettings {
		names = append(names, name)
	}
	return names
}
