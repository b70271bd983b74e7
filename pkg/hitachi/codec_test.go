package hitachi

import (
	"bytes"
	"crypto/md5"
	"errors"
	"testing"

	"github.com/avlink-protocol/avlink-go/pkg/protocol"
)

func TestEncodeCommands(t *testing.T) {
	tests := []struct {
		name string
		cmd  protocol.Command
		want Packet
	}{
		{"power on", protocol.NewCommand(protocol.CommandPowerOn), Packet{ActionSet, ItemPower, 1}},
		{"power off", protocol.NewCommand(protocol.CommandPowerOff), Packet{ActionSet, ItemPower, 0}},
		{"power query", protocol.NewCommand(protocol.CommandPowerQuery), Packet{ActionGet, ItemPower, 0}},
		{"input hdmi1", protocol.NewCommandWithParams(protocol.CommandInputSelect, map[string]string{"input": "hdmi1"}), Packet{ActionSet, ItemInput, 0x03}},
		{"input numeric", protocol.NewCommandWithParams(protocol.CommandInputSelect, map[string]string{"input": "5"}), Packet{ActionSet, ItemInput, 0x05}},
		{"mute on", protocol.NewCommand(protocol.CommandMuteOn), Packet{ActionSet, ItemMute, 1}},
		{"freeze", protocol.NewCommand(protocol.CommandFreeze), Packet{ActionSet, ItemFreeze, 1}},
		{"blank", protocol.NewCommand(protocol.CommandBlank), Packet{ActionSet, ItemBlank, 1}},
		{"lamp query", protocol.NewCommand(protocol.CommandLampQuery), Packet{ActionGet, ItemLampHours, 0}},
		{"error query", protocol.NewCommand(protocol.CommandErrorQuery), Packet{ActionGet, ItemErrorStatus, 0}},
		{"temperature query", protocol.NewCommand(protocol.CommandTemperatureQuery), Packet{ActionGet, ItemTemperature, 0}},
		{"brightness up", protocol.NewCommandWithParams(protocol.CommandImageAdjust, map[string]string{"item": "brightness", "action": "increment"}), Packet{ActionIncrement, 0x2003, 0}},
		{"contrast set", protocol.NewCommandWithParams(protocol.CommandImageAdjust, map[string]string{"item": "contrast", "action": "set", "value": "42"}), Packet{ActionSet, 0x2004, 42}},
	}

	c := NewCodec()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := c.Encode(tt.cmd)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			got, err := ParsePacket(frame)
			if err != nil {
				t.Fatalf("encoded frame does not parse: %v", err)
			}
			if got != tt.want {
				t.Errorf("Encode = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestEncodeUnsupported(t *testing.T) {
	unsupported := []protocol.CommandType{
		protocol.CommandInputList,
		protocol.CommandNameQuery,
		protocol.CommandInfoQuery,
		protocol.CommandSerialQuery,
		protocol.CommandClassQuery,
	}
	c := NewCodec()
	for _, ct := range unsupported {
		if _, err := c.Encode(protocol.NewCommand(ct)); !errors.Is(err, protocol.ErrCapabilityUnsupported) {
			t.Errorf("%s: err = %v, want capability error", ct, err)
		}
	}
}

func TestDecodeResponses(t *testing.T) {
	c := NewCodec()

	t.Run("ack", func(t *testing.T) {
		resp, err := c.Decode(protocol.NewCommand(protocol.CommandPowerOn), []byte{0x06})
		if err != nil || !resp.Success {
			t.Fatalf("ack: resp=%+v err=%v", resp, err)
		}
	})

	t.Run("nak", func(t *testing.T) {
		resp, err := c.Decode(protocol.NewCommand(protocol.CommandPowerOn), []byte{0x15})
		if err != nil {
			t.Fatal(err)
		}
		if resp.Success || resp.Code != protocol.CodeBadParameter {
			t.Errorf("nak: resp=%+v", resp)
		}
	})

	t.Run("device error", func(t *testing.T) {
		resp, err := c.Decode(protocol.NewCommand(protocol.CommandPowerOn), []byte{0x1C, 0x34, 0x12})
		if err != nil {
			t.Fatal(err)
		}
		if resp.Success || resp.Code != protocol.CodeDeviceFailure {
			t.Errorf("device error: resp=%+v", resp)
		}
	})

	t.Run("power data", func(t *testing.T) {
		resp, err := c.Decode(protocol.NewCommand(protocol.CommandPowerQuery), []byte{0x1D, 0x01, 0x00})
		if err != nil {
			t.Fatal(err)
		}
		if resp.Value("power") != "on" {
			t.Errorf("power = %q, want on", resp.Value("power"))
		}
	})

	t.Run("cooling data", func(t *testing.T) {
		resp, err := c.Decode(protocol.NewCommand(protocol.CommandPowerQuery), []byte{0x1D, 0x02, 0x00})
		if err != nil {
			t.Fatal(err)
		}
		if resp.Value("power") != "cooling" {
			t.Errorf("power = %q, want cooling", resp.Value("power"))
		}
	})

	t.Run("input data", func(t *testing.T) {
		resp, err := c.Decode(protocol.NewCommand(protocol.CommandInputQuery), []byte{0x1D, 0x03, 0x00})
		if err != nil {
			t.Fatal(err)
		}
		if resp.Value("name") != "hdmi1" {
			t.Errorf("name = %q, want hdmi1", resp.Value("name"))
		}
	})

	t.Run("lamp hours", func(t *testing.T) {
		resp, err := c.Decode(protocol.NewCommand(protocol.CommandLampQuery), []byte{0x1D, 0xF4, 0x01})
		if err != nil {
			t.Fatal(err)
		}
		if resp.Value("lamp1_hours") != "500" {
			t.Errorf("hours = %q, want 500", resp.Value("lamp1_hours"))
		}
	})

	t.Run("busy", func(t *testing.T) {
		resp, err := c.Decode(protocol.NewCommand(protocol.CommandPowerOn), []byte{0x1F, 0x01, 0x00})
		if err != nil {
			t.Fatal(err)
		}
		if resp.Code != protocol.CodeDeviceBusy {
			t.Errorf("code = %q, want busy", resp.Code)
		}
	})

	t.Run("auth error", func(t *testing.T) {
		resp, err := c.Decode(protocol.NewCommand(protocol.CommandPowerOn), []byte{0x1F, 0x00, 0x04})
		if err != nil {
			t.Fatal(err)
		}
		if resp.Code != protocol.CodeAuthFailed {
			t.Errorf("code = %q, want auth failed", resp.Code)
		}
	})

	t.Run("unknown tag", func(t *testing.T) {
		if _, err := c.Decode(protocol.NewCommand(protocol.CommandPowerOn), []byte{0x99}); !errors.Is(err, protocol.ErrMalformedResponse) {
			t.Errorf("err = %v, want malformed response", err)
		}
	})

	t.Run("empty", func(t *testing.T) {
		if _, err := c.Decode(protocol.NewCommand(protocol.CommandPowerOn), nil); err == nil {
			t.Error("empty response accepted")
		}
	})
}

func TestAuthHandshake(t *testing.T) {
	c := NewAuthCodec()

	if !c.ExpectsGreeting() {
		t.Fatal("auth mode must expect a greeting")
	}

	challenge := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
	hs, err := c.ProcessHandshake(challenge)
	if err != nil {
		t.Fatalf("ProcessHandshake failed: %v", err)
	}
	if !hs.RequiresAuth {
		t.Fatal("expected auth to be required")
	}

	token, err := c.AuthResponse(hs.Challenge, "hunter2")
	if err != nil {
		t.Fatalf("AuthResponse failed: %v", err)
	}
	want := md5.Sum(append(append([]byte{}, challenge...), []byte("hunter2")...))
	if !bytes.Equal(token, want[:]) {
		t.Errorf("token = % X, want % X", token, want)
	}
	if len(token) != 16 {
		t.Errorf("token length = %d, want 16 raw bytes", len(token))
	}

	if c.AuthAckSize() != 1 {
		t.Errorf("AuthAckSize = %d, want 1", c.AuthAckSize())
	}
	if err := c.AuthConfirm([]byte{0x01}); err != nil {
		t.Errorf("non-zero ack rejected: %v", err)
	}
	if err := c.AuthConfirm([]byte{0x00}); !errors.Is(err, protocol.ErrAuthFailed) {
		t.Errorf("zero ack err = %v, want auth failure", err)
	}
}

func TestRawModeHandshake(t *testing.T) {
	c := NewCodec()
	if c.ExpectsGreeting() {
		t.Error("raw mode must not expect a greeting")
	}
	if c.AuthAckSize() != 0 {
		t.Error("raw mode has no auth ack")
	}
	hs, err := c.ProcessHandshake(nil)
	if err != nil {
		t.Fatalf("ProcessHandshake failed: %v", err)
	}
	if hs.RequiresAuth {
		t.Error("raw mode must not require auth")
	}
}

func TestMinCommandInterval(t *testing.T) {
	var p protocol.Pacer = NewCodec()
	if got := p.MinCommandInterval(); got != MinCommandDelay {
		t.Errorf("MinCommandInterval = %v, want %v", got, MinCommandDelay)
	}
}
