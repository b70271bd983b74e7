package pjlink

import (
	"errors"
	"strings"
	"testing"

	"github.com/avlink-protocol/avlink-go/pkg/protocol"
)

func TestEncodeClass1Commands(t *testing.T) {
	tests := []struct {
		name string
		cmd  protocol.Command
		want string
	}{
		{"power on", protocol.NewCommand(protocol.CommandPowerOn), "%1POWR 1\r"},
		{"power off", protocol.NewCommand(protocol.CommandPowerOff), "%1POWR 0\r"},
		{"power query", protocol.NewCommand(protocol.CommandPowerQuery), "%1POWR ?\r"},
		{"input by code", protocol.NewCommandWithParams(protocol.CommandInputSelect, map[string]string{"input": "31"}), "%1INPT 31\r"},
		{"input by name", protocol.NewCommandWithParams(protocol.CommandInputSelect, map[string]string{"input": "hdmi1"}), "%1INPT 31\r"},
		{"input query", protocol.NewCommand(protocol.CommandInputQuery), "%1INPT ?\r"},
		{"input list", protocol.NewCommand(protocol.CommandInputList), "%1INST ?\r"},
		{"mute on", protocol.NewCommand(protocol.CommandMuteOn), "%1AVMT 31\r"},
		{"mute off", protocol.NewCommand(protocol.CommandMuteOff), "%1AVMT 30\r"},
		{"blank", protocol.NewCommand(protocol.CommandBlank), "%1AVMT 11\r"},
		{"unblank", protocol.NewCommand(protocol.CommandUnblank), "%1AVMT 10\r"},
		{"lamp query", protocol.NewCommand(protocol.CommandLampQuery), "%1LAMP ?\r"},
		{"error query", protocol.NewCommand(protocol.CommandErrorQuery), "%1ERST ?\r"},
		{"class query", protocol.NewCommand(protocol.CommandClassQuery), "%1CLSS ?\r"},
		{"name query", protocol.NewCommand(protocol.CommandNameQuery), "%1NAME ?\r"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCodec()
			got, err := c.Encode(tt.cmd)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("Encode = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEncodeClass2RequiresNegotiation(t *testing.T) {
	class2Cmds := []protocol.CommandType{
		protocol.CommandFreeze,
		protocol.CommandUnfreeze,
		protocol.CommandFreezeQuery,
		protocol.CommandFilterQuery,
		protocol.CommandSerialQuery,
	}

	c := NewCodec()
	for _, ct := range class2Cmds {
		_, err := c.Encode(protocol.NewCommand(ct))
		if !errors.Is(err, protocol.ErrCapabilityUnsupported) {
			t.Errorf("%s at class 1: err = %v, want capability error", ct, err)
		}
	}

	// A CLSS=2 reply unlocks them.
	if _, err := c.Decode(protocol.NewCommand(protocol.CommandClassQuery), []byte("%1CLSS=2\r")); err != nil {
		t.Fatalf("Decode CLSS failed: %v", err)
	}
	got, err := c.Encode(protocol.NewCommand(protocol.CommandFreeze))
	if err != nil {
		t.Fatalf("Encode freeze at class 2 failed: %v", err)
	}
	if string(got) != "%2FREZ 1\r" {
		t.Errorf("Encode freeze = %q, want %%2FREZ 1\\r", got)
	}
}

func TestEncodeUnsupported(t *testing.T) {
	c := NewCodec()
	_, err := c.Encode(protocol.NewCommand(protocol.CommandTemperatureQuery))
	if !errors.Is(err, protocol.ErrCapabilityUnsupported) {
		t.Errorf("temperature query: err = %v, want capability error", err)
	}
}

func TestEncodeBadInput(t *testing.T) {
	tests := []string{"", "99", "1", "311", "hdmi9", "61"}
	c := NewCodec()
	for _, input := range tests {
		cmd := protocol.NewCommandWithParams(protocol.CommandInputSelect, map[string]string{"input": input})
		if _, err := c.Encode(cmd); err == nil {
			t.Errorf("Encode(input=%q) succeeded, want error", input)
		}
	}
}

func TestEncodeWithAuthToken(t *testing.T) {
	c := NewCodec()
	hs, err := c.ProcessHandshake([]byte("PJLINK 1 498e4a67\r"))
	if err != nil {
		t.Fatalf("ProcessHandshake failed: %v", err)
	}
	if !hs.RequiresAuth {
		t.Fatal("expected auth to be required")
	}
	if _, err := c.AuthResponse(hs.Challenge, "JBMIAProjectorLink"); err != nil {
		t.Fatalf("AuthResponse failed: %v", err)
	}

	got, err := c.Encode(protocol.NewCommand(protocol.CommandPowerOn))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	// Worked example from the PJLink specification.
	want := "5d8409bc1c3fa39749434aa3a5c38682%1POWR 1\r"
	if string(got) != want {
		t.Errorf("Encode = %q, want %q", got, want)
	}
}

func TestProcessHandshake(t *testing.T) {
	tests := []struct {
		name     string
		greeting string
		wantAuth bool
		wantErr  bool
	}{
		{"no auth", "PJLINK 0\r", false, false},
		{"auth", "PJLINK 1 12345678\r", true, false},
		{"auth lowercase", "pjlink 1 abcdef01\r", true, false},
		{"erra", "PJLINK ERRA\r", false, true},
		{"short challenge", "PJLINK 1 1234\r", false, true},
		{"garbage", "NOT A PROJECTOR\r", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCodec()
			hs, err := c.ProcessHandshake([]byte(tt.greeting))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ProcessHandshake failed: %v", err)
			}
			if hs.RequiresAuth != tt.wantAuth {
				t.Errorf("RequiresAuth = %v, want %v", hs.RequiresAuth, tt.wantAuth)
			}
		})
	}
}

func TestDecodeDeviceErrors(t *testing.T) {
	tests := []struct {
		line     string
		wantCode string
	}{
		{"%1POWR=ERR1\r", protocol.CodeUndefinedCommand},
		{"%1INPT=ERR2\r", protocol.CodeBadParameter},
		{"%1POWR=ERR3\r", protocol.CodeDeviceBusy},
		{"%1POWR=ERR4\r", protocol.CodeDeviceFailure},
		{"%1POWR=ERRA\r", protocol.CodeAuthFailed},
	}

	c := NewCodec()
	for _, tt := range tests {
		resp, err := c.Decode(protocol.NewCommand(protocol.CommandPowerOn), []byte(tt.line))
		if err != nil {
			t.Fatalf("Decode(%q) failed: %v", tt.line, err)
		}
		if resp.Success {
			t.Errorf("Decode(%q) succeeded, want failure", tt.line)
		}
		if resp.Code != tt.wantCode {
			t.Errorf("Decode(%q) code = %q, want %q", tt.line, resp.Code, tt.wantCode)
		}
	}
}

func TestDecodeQueries(t *testing.T) {
	tests := []struct {
		name    string
		cmd     protocol.CommandType
		line    string
		wantKey string
		wantVal string
	}{
		{"power off", protocol.CommandPowerQuery, "%1POWR=0\r", "power", "off"},
		{"power on", protocol.CommandPowerQuery, "%1POWR=1\r", "power", "on"},
		{"power cooling", protocol.CommandPowerQuery, "%1POWR=2\r", "power", "cooling"},
		{"power warm-up", protocol.CommandPowerQuery, "%1POWR=3\r", "power", "warm-up"},
		{"input", protocol.CommandInputQuery, "%1INPT=31\r", "name", "hdmi1"},
		{"mute both", protocol.CommandMuteQuery, "%1AVMT=31\r", "mute", "both"},
		{"mute off", protocol.CommandMuteQuery, "%1AVMT=30\r", "mute", "off"},
		{"mute video", protocol.CommandMuteQuery, "%1AVMT=11\r", "mute", "video"},
		{"name", protocol.CommandNameQuery, "%1NAME=Lecture Hall\r", "name", "Lecture Hall"},
	}

	c := NewCodec()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := c.Decode(protocol.NewCommand(tt.cmd), []byte(tt.line))
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if !resp.Success {
				t.Fatalf("Decode failed with code %s", resp.Code)
			}
			if got := resp.Value(tt.wantKey); got != tt.wantVal {
				t.Errorf("payload[%s] = %q, want %q", tt.wantKey, got, tt.wantVal)
			}
		})
	}
}

func TestDecodeInputList(t *testing.T) {
	c := NewCodec()
	resp, err := c.Decode(protocol.NewCommand(protocol.CommandInputList), []byte("%1INST=11 21 31 32\r"))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got := resp.Value("inputs"); got != "11 21 31 32" {
		t.Errorf("inputs = %q", got)
	}
	names := strings.Fields(resp.Value("names"))
	want := []string{"rgb1", "video1", "hdmi1", "hdmi2"}
	if len(names) != len(want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestDecodeLamp(t *testing.T) {
	c := NewCodec()
	resp, err := c.Decode(protocol.NewCommand(protocol.CommandLampQuery), []byte("%1LAMP=500 1 1000 0\r"))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if resp.Value("lamp1_hours") != "500" || resp.Value("lamp1_on") != "true" {
		t.Errorf("lamp1 = %s/%s", resp.Value("lamp1_hours"), resp.Value("lamp1_on"))
	}
	if resp.Value("lamp2_hours") != "1000" || resp.Value("lamp2_on") != "false" {
		t.Errorf("lamp2 = %s/%s", resp.Value("lamp2_hours"), resp.Value("lamp2_on"))
	}
}

func TestDecodeErrorStatus(t *testing.T) {
	c := NewCodec()
	resp, err := c.Decode(protocol.NewCommand(protocol.CommandErrorQuery), []byte("%1ERST=002100\r"))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	want := map[string]string{
		"fan": "ok", "lamp": "ok", "temperature": "error",
		"cover": "warning", "filter": "ok", "other": "ok",
	}
	for k, v := range want {
		if got := resp.Value(k); got != v {
			t.Errorf("payload[%s] = %q, want %q", k, got, v)
		}
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := []string{
		"", "POWR=OK", "%1POWR OK", "%1ERST=12\r", "%1POWR=9\r",
		"%=AAAAAA\r",  // separator before the op field
		"%1POW=OKOK\r", // op shorter than four chars
	}
	c := NewCodec()
	for _, line := range tests {
		if _, err := c.Decode(protocol.NewCommand(protocol.CommandPowerQuery), []byte(line)); !errors.Is(err, protocol.ErrMalformedResponse) {
			t.Errorf("Decode(%q) err = %v, want malformed response", line, err)
		}
	}
}
