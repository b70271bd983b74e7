package pjlink

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/avlink-protocol/avlink-go/pkg/protocol"
)

// Protocol constants.
const (
	// DefaultPort is the PJLink TCP port.
	DefaultPort = 4352

	// Terminator ends every command and response line.
	Terminator = '\r'

	// ChallengeLength is the length of the random key announced by an
	// authenticating projector.
	ChallengeLength = 8
)

// Four-letter PJLink command bodies.
const (
	opPower  = "POWR"
	opInput  = "INPT"
	opMute   = "AVMT"
	opError  = "ERST"
	opLamp   = "LAMP"
	opInputs = "INST"
	opName   = "NAME"
	opInfo1  = "INF1"
	opInfo2  = "INF2"
	opInfo   = "INFO"
	opClass  = "CLSS"
	opFreeze = "FREZ"
	opFilter = "FILT"
	opSerial = "SNUM"
)

// Codec implements the PJLink text protocol. It carries per-connection
// negotiation state (auth token, protocol class) and must not be shared
// across connections.
type Codec struct {
	class     int
	authToken string
}

// NewCodec creates a PJLink codec. The class defaults to 1 until a
// CLSS response is decoded.
func NewCodec() *Codec {
	return &Codec{class: 1}
}

// Compile-time interface satisfaction checks.
var (
	_ protocol.Codec         = (*Codec)(nil)
	_ protocol.FrameRedactor = (*Codec)(nil)
)

// Protocol returns the codec identifier.
func (c *Codec) Protocol() protocol.ID {
	return protocol.PJLink
}

// Class returns the negotiated PJLink class (1 or 2).
func (c *Codec) Class() int {
	return c.class
}

// Capabilities returns the descriptor for the negotiated class.
// Freeze, filter hours and serial number require Class 2.
func (c *Codec) Capabilities() protocol.Capabilities {
	class2 := c.class >= 2
	return protocol.Capabilities{
		Power:       true,
		Input:       true,
		InputList:   true,
		Mute:        true,
		Freeze:      class2,
		Blank:       true, // blanking maps onto AVMT video mute
		Lamp:        true,
		Filter:      class2,
		Temperature: false,
		ErrorStatus: true,
		Info:        true,
		Serial:      class2,
		ImageAdjust: false,
		Auth:        true,
	}
}

// InitialHandshake returns nil: the projector speaks first.
func (c *Codec) InitialHandshake() []byte {
	return nil
}

// ExpectsGreeting returns true: a PJLink projector always announces
// PJLINK 0 or PJLINK 1 on connect.
func (c *Codec) ExpectsGreeting() bool {
	return true
}

// AuthAckSize returns 0: PJLink sends no auth acknowledgement. A wrong
// password surfaces as ERRA on the first command.
func (c *Codec) AuthAckSize() int {
	return 0
}

// AuthConfirm is a no-op for PJLink.
func (c *Codec) AuthConfirm([]byte) error {
	return nil
}

// maxLineLength guards line reads against a stream that never
// terminates. The longest legitimate PJLink line is an INST or INFO
// response well under this.
const maxLineLength = 512

// readLine reads bytes up to and including the terminating CR.
func readLine(r io.Reader) ([]byte, error) {
	line := make([]byte, 0, 32)
	var b [1]byte
	for {
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return nil, err
		}
		line = append(line, b[0])
		if b[0] == Terminator || b[0] == '\n' {
			return line, nil
		}
		if len(line) >= maxLineLength {
			return nil, &protocol.ProtocolError{Reason: "unterminated line", Raw: line}
		}
	}
}

// ReadGreeting reads the PJLINK greeting line.
func (c *Codec) ReadGreeting(r io.Reader) ([]byte, error) {
	return readLine(r)
}

// ReadResponse reads one CR-terminated response line.
func (c *Codec) ReadResponse(r io.Reader) ([]byte, error) {
	return readLine(r)
}

// ProcessHandshake parses the PJLINK greeting line.
func (c *Codec) ProcessHandshake(data []byte) (protocol.Handshake, error) {
	line := strings.TrimRight(string(data), "\r\n")
	switch {
	case strings.EqualFold(line, "PJLINK 0"):
		return protocol.Handshake{}, nil
	case len(line) >= 8 && strings.EqualFold(line[:8], "PJLINK 1"):
		seed := strings.TrimSpace(line[8:])
		if len(seed) != ChallengeLength {
			return protocol.Handshake{}, &protocol.ProtocolError{
				Reason: fmt.Sprintf("auth challenge length %d, want %d", len(seed), ChallengeLength),
				Raw:    data,
			}
		}
		return protocol.Handshake{RequiresAuth: true, Challenge: []byte(seed)}, nil
	case strings.EqualFold(line, "PJLINK ERRA"):
		return protocol.Handshake{}, &protocol.AuthError{Reason: "connection rejected (ERRA)"}
	default:
		return protocol.Handshake{}, &protocol.ProtocolError{Reason: "unrecognized greeting", Raw: data}
	}
}

// AuthResponse computes the token for the connection and retains it.
// It returns nil: with PJLink authentication active, the token is not
// sent on its own but prefixes every command line on the connection.
func (c *Codec) AuthResponse(challenge []byte, secret string) ([]byte, error) {
	c.authToken = AuthToken(challenge, secret)
	return nil, nil
}

// ClearAuth drops the cached token (used on reconnect).
func (c *Codec) ClearAuth() {
	c.authToken = ""
}

// RedactFrame masks the auth token prefix so recorded frames carry no
// credential-derived material.
func (c *Codec) RedactFrame(data []byte) []byte {
	if c.authToken == "" || !bytes.HasPrefix(data, []byte(c.authToken)) {
		return data
	}
	out := append([]byte(nil), data...)
	for i := range c.authToken {
		out[i] = '*'
	}
	return out
}

// Encode translates a command into its wire line. Class 2 operations
// against a Class 1 device fail with a capability error before any I/O.
func (c *Codec) Encode(cmd protocol.Command) ([]byte, error) {
	if cmd.Type == protocol.CommandRaw {
		return []byte(cmd.Param("data")), nil
	}
	class, op, param, err := c.wireParts(cmd)
	if err != nil {
		return nil, err
	}
	line := fmt.Sprintf("%s%%%d%s %s%c", c.authToken, class, op, param, Terminator)
	return []byte(line), nil
}

// wireParts maps a logical command to (class digit, op, parameter).
func (c *Codec) wireParts(cmd protocol.Command) (int, string, string, error) {
	switch cmd.Type {
	case protocol.CommandPowerOn:
		return 1, opPower, "1", nil
	case protocol.CommandPowerOff:
		return 1, opPower, "0", nil
	case protocol.CommandPowerQuery:
		return 1, opPower, "?", nil
	case protocol.CommandInputSelect:
		code, err := ResolveInput(cmd.Param("input"))
		if err != nil {
			return 0, "", "", &protocol.DeviceError{Code: protocol.CodeBadParameter, Message: err.Error()}
		}
		return 1, opInput, code, nil
	case protocol.CommandInputQuery:
		return 1, opInput, "?", nil
	case protocol.CommandInputList:
		return 1, opInputs, "?", nil
	case protocol.CommandMuteOn:
		return 1, opMute, "31", nil
	case protocol.CommandMuteOff:
		return 1, opMute, "30", nil
	case protocol.CommandMuteQuery:
		return 1, opMute, "?", nil
	case protocol.CommandBlank:
		// PJLink has no dedicated blank op; video mute blanks the image.
		return 1, opMute, "11", nil
	case protocol.CommandUnblank:
		return 1, opMute, "10", nil
	case protocol.CommandLampQuery:
		return 1, opLamp, "?", nil
	case protocol.CommandErrorQuery:
		return 1, opError, "?", nil
	case protocol.CommandClassQuery:
		return 1, opClass, "?", nil
	case protocol.CommandNameQuery:
		return 1, opName, "?", nil
	case protocol.CommandInfoQuery:
		return 1, opInfo, "?", nil
	case protocol.CommandFreeze:
		if c.class < 2 {
			return 0, "", "", &protocol.CapabilityError{Op: cmd.Type, Protocol: "pjlink class 1"}
		}
		return 2, opFreeze, "1", nil
	case protocol.CommandUnfreeze:
		if c.class < 2 {
			return 0, "", "", &protocol.CapabilityError{Op: cmd.Type, Protocol: "pjlink class 1"}
		}
		return 2, opFreeze, "0", nil
	case protocol.CommandFreezeQuery:
		if c.class < 2 {
			return 0, "", "", &protocol.CapabilityError{Op: cmd.Type, Protocol: "pjlink class 1"}
		}
		return 2, opFreeze, "?", nil
	case protocol.CommandFilterQuery:
		if c.class < 2 {
			return 0, "", "", &protocol.CapabilityError{Op: cmd.Type, Protocol: "pjlink class 1"}
		}
		return 2, opFilter, "?", nil
	case protocol.CommandSerialQuery:
		if c.class < 2 {
			return 0, "", "", &protocol.CapabilityError{Op: cmd.Type, Protocol: "pjlink class 1"}
		}
		return 2, opSerial, "?", nil
	default:
		return 0, "", "", &protocol.CapabilityError{Op: cmd.Type, Protocol: "pjlink"}
	}
}

// Decode parses a response line for the command that produced it.
// Vendor errors (ERR1..ERR4, ERRA) come back as a non-success Response.
func (c *Codec) Decode(cmd protocol.Command, data []byte) (protocol.Response, error) {
	line := strings.TrimRight(string(data), "\r\n")

	// Expected shape: %<class><4-char-op>=<body>, so the separator
	// sits at index 6 on every well-formed line.
	eq := strings.IndexByte(line, '=')
	if len(line) < 7 || line[0] != '%' || eq != 6 {
		return protocol.Response{}, &protocol.ProtocolError{Reason: "response does not match %Xbody=… grammar", Raw: data}
	}
	op := strings.ToUpper(line[2:eq])
	body := line[eq+1:]

	switch strings.ToUpper(body) {
	case "ERR1":
		return failure(data, protocol.CodeUndefinedCommand, "undefined command"), nil
	case "ERR2":
		return failure(data, protocol.CodeBadParameter, "out-of-parameter"), nil
	case "ERR3":
		return failure(data, protocol.CodeDeviceBusy, "unavailable time"), nil
	case "ERR4":
		return failure(data, protocol.CodeDeviceFailure, "projector/display failure"), nil
	case "ERRA":
		return failure(data, protocol.CodeAuthFailed, "authentication rejected"), nil
	}

	return c.decodeBody(cmd, op, body, data)
}

// decodeBody interprets a successful response body per operation.
func (c *Codec) decodeBody(cmd protocol.Command, op, body string, raw []byte) (protocol.Response, error) {
	switch op {
	case opPower:
		if body == "OK" {
			return protocol.OK(raw), nil
		}
		state, err := powerStateName(body)
		if err != nil {
			return protocol.Response{}, &protocol.ProtocolError{Reason: err.Error(), Raw: raw}
		}
		return protocol.OKPayload(raw, map[string]string{"power": state}), nil

	case opInput:
		if body == "OK" {
			return protocol.OK(raw), nil
		}
		if !ValidInputCode(body) {
			return protocol.Response{}, &protocol.ProtocolError{Reason: fmt.Sprintf("invalid input code %q", body), Raw: raw}
		}
		return protocol.OKPayload(raw, map[string]string{
			"input": body,
			"name":  InputName(body),
		}), nil

	case opInputs:
		codes := strings.Fields(body)
		names := make([]string, 0, len(codes))
		for _, code := range codes {
			if !ValidInputCode(code) {
				return protocol.Response{}, &protocol.ProtocolError{Reason: fmt.Sprintf("invalid input code %q in list", code), Raw: raw}
			}
			names = append(names, InputName(code))
		}
		return protocol.OKPayload(raw, map[string]string{
			"inputs": strings.Join(codes, " "),
			"names":  strings.Join(names, " "),
		}), nil

	case opMute:
		if body == "OK" {
			return protocol.OK(raw), nil
		}
		state, err := muteStateName(body)
		if err != nil {
			return protocol.Response{}, &protocol.ProtocolError{Reason: err.Error(), Raw: raw}
		}
		return protocol.OKPayload(raw, map[string]string{"mute": state}), nil

	case opLamp:
		payload, err := parseLamp(body)
		if err != nil {
			return protocol.Response{}, &protocol.ProtocolError{Reason: err.Error(), Raw: raw}
		}
		return protocol.OKPayload(raw, payload), nil

	case opError:
		payload, err := parseErrorStatus(body)
		if err != nil {
			return protocol.Response{}, &protocol.ProtocolError{Reason: err.Error(), Raw: raw}
		}
		return protocol.OKPayload(raw, payload), nil

	case opClass:
		// Class negotiation: a CLSS=2 reply unlocks the Class 2 builders.
		if body != "1" && body != "2" {
			return protocol.Response{}, &protocol.ProtocolError{Reason: fmt.Sprintf("unknown class %q", body), Raw: raw}
		}
		c.class = int(body[0] - '0')
		return protocol.OKPayload(raw, map[string]string{"class": body}), nil

	case opFreeze:
		if body == "OK" {
			return protocol.OK(raw), nil
		}
		switch body {
		case "0":
			return protocol.OKPayload(raw, map[string]string{"freeze": "off"}), nil
		case "1":
			return protocol.OKPayload(raw, map[string]string{"freeze": "on"}), nil
		}
		return protocol.Response{}, &protocol.ProtocolError{Reason: fmt.Sprintf("unknown freeze state %q", body), Raw: raw}

	case opFilter:
		return protocol.OKPayload(raw, map[string]string{"filter_hours": body}), nil

	case opSerial:
		return protocol.OKPayload(raw, map[string]string{"serial": body}), nil

	case opName:
		return protocol.OKPayload(raw, map[string]string{"name": body}), nil

	case opInfo1:
		return protocol.OKPayload(raw, map[string]string{"manufacturer": body}), nil

	case opInfo2:
		return protocol.OKPayload(raw, map[string]string{"model": body}), nil

	case opInfo:
		return protocol.OKPayload(raw, map[string]string{"info": body}), nil

	default:
		// Unknown op in an otherwise well-formed line: hand the body back.
		return protocol.OKPayload(raw, map[string]string{"data": body}), nil
	}
}

// failure builds a non-success response for a vendor-reported error.
func failure(raw []byte, code, message string) protocol.Response {
	return protocol.Response{Success: false, Code: code, Message: message, Raw: raw}
}

// powerStateName maps POWR query digits to state names.
func powerStateName(body string) (string, error) {
	switch body {
	case "0":
		return "off", nil
	case "1":
		return "on", nil
	case "2":
		return "cooling", nil
	case "3":
		return "warm-up", nil
	default:
		return "", fmt.Errorf("unknown power state %q", body)
	}
}

// muteStateName maps AVMT query codes to state names.
func muteStateName(body string) (string, error) {
	switch body {
	case "11":
		return "video", nil
	case "21":
		return "audio", nil
	case "31":
		return "both", nil
	case "30", "10", "20":
		return "off", nil
	default:
		return "", fmt.Errorf("unknown mute state %q", body)
	}
}

// parseLamp parses LAMP responses: space-separated pairs of
// cumulative hours and on/off flag, one pair per lamp.
func parseLamp(body string) (map[string]string, error) {
	fields := strings.Fields(body)
	if len(fields) == 0 || len(fields)%2 != 0 {
		return nil, fmt.Errorf("lamp response %q is not hour/state pairs", body)
	}
	payload := make(map[string]string, len(fields))
	for i := 0; i < len(fields); i += 2 {
		lamp := i/2 + 1
		payload[fmt.Sprintf("lamp%d_hours", lamp)] = fields[i]
		switch fields[i+1] {
		case "0":
			payload[fmt.Sprintf("lamp%d_on", lamp)] = "false"
		case "1":
			payload[fmt.Sprintf("lamp%d_on", lamp)] = "true"
		default:
			return nil, fmt.Errorf("lamp state %q is not 0/1", fields[i+1])
		}
	}
	return payload, nil
}

// errorStatusParts orders the six ERST digits.
var errorStatusParts = []string{"fan", "lamp", "temperature", "cover", "filter", "other"}

// parseErrorStatus parses the six-digit ERST body. Each digit is
// 0 (ok), 1 (warning) or 2 (error).
func parseErrorStatus(body string) (map[string]string, error) {
	if len(body) != len(errorStatusParts) {
		return nil, fmt.Errorf("error status %q is not %d digits", body, len(errorStatusParts))
	}
	payload := make(map[string]string, len(errorStatusParts))
	for i, part := range errorStatusParts {
		switch body[i] {
		case '0':
			payload[part] = "ok"
		case '1':
			payload[part] = "warning"
		case '2':
			payload[part] = "error"
		default:
			return nil, fmt.Errorf("error status digit %q out of range", body[i])
		}
	}
	return payload, nil
}
