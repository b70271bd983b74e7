package protocol

import (
	"errors"
	"testing"
)

func TestCommandTypeString(t *testing.T) {
	tests := []struct {
		t    CommandType
		want string
	}{
		{CommandPowerOn, "POWER_ON"},
		{CommandPowerOff, "POWER_OFF"},
		{CommandInputSelect, "INPUT_SELECT"},
		{CommandMuteQuery, "MUTE_QUERY"},
		{CommandFreeze, "FREEZE"},
		{CommandTemperatureQuery, "TEMPERATURE_QUERY"},
		{CommandRaw, "RAW"},
		{CommandUnknown, "UNKNOWN"},
		{CommandType(200), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.t.String(); got != tt.want {
			t.Errorf("CommandType(%d).String() = %q, want %q", tt.t, got, tt.want)
		}
	}
}

func TestCommandImmutability(t *testing.T) {
	params := map[string]string{"input": "hdmi1"}
	cmd := NewCommandWithParams(CommandInputSelect, params)

	// Mutating the source map must not affect the command.
	params["input"] = "rgb1"

	if got := cmd.Param("input"); got != "hdmi1" {
		t.Errorf("Param(input) = %q, want hdmi1", got)
	}
}

func TestCapabilitiesSupports(t *testing.T) {
	caps := Capabilities{Power: true, Mute: true}

	if !caps.Supports(CommandPowerOn) {
		t.Error("expected power on to be supported")
	}
	if !caps.Supports(CommandMuteQuery) {
		t.Error("expected mute query to be supported")
	}
	if caps.Supports(CommandFreeze) {
		t.Error("freeze should not be supported")
	}
	if caps.Supports(CommandLampQuery) {
		t.Error("lamp query should not be supported")
	}
	if !caps.Supports(CommandRaw) {
		t.Error("raw should always be supported")
	}
}

func TestCapabilityErrorIs(t *testing.T) {
	err := &CapabilityError{Op: CommandFreeze, Protocol: "pjlink"}
	if !errors.Is(err, ErrCapabilityUnsupported) {
		t.Error("CapabilityError should match ErrCapabilityUnsupported")
	}
}

func TestAuthErrorIs(t *testing.T) {
	err := &AuthError{Reason: "ERRA"}
	if !errors.Is(err, ErrAuthFailed) {
		t.Error("AuthError should match ErrAuthFailed")
	}
}

func TestProtocolErrorIs(t *testing.T) {
	err := &ProtocolError{Reason: "short frame", Raw: []byte{0x01}}
	if !errors.Is(err, ErrMalformedResponse) {
		t.Error("ProtocolError should match ErrMalformedResponse")
	}
}

func TestDeviceErrorRetryable(t *testing.T) {
	busy := &DeviceError{Code: CodeDeviceBusy, Message: "device busy"}
	if !busy.Retryable() {
		t.Error("busy should be retryable")
	}
	bad := &DeviceError{Code: CodeBadParameter, Message: "out of range"}
	if bad.Retryable() {
		t.Error("bad parameter should not be retryable")
	}
}
