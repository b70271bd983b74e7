package controller

import (
	"context"
	"sort"
	"strings"

	"github.com/avlink-protocol/avlink-go/pkg/protocol"
)

// PowerOn turns the device on.
func (c *Controller) PowerOn(ctx context.Context) (protocol.Response, error) {
	return c.Do(ctx, protocol.NewCommand(protocol.CommandPowerOn))
}

// PowerOff turns the device off.
func (c *Controller) PowerOff(ctx context.Context) (protocol.Response, error) {
	return c.Do(ctx, protocol.NewCommand(protocol.CommandPowerOff))
}

// PowerState queries the power state ("on", "off", "cooling",
// "warming").
func (c *Controller) PowerState(ctx context.Context) (string, error) {
	resp, err := c.Do(ctx, protocol.NewCommand(protocol.CommandPowerQuery))
	if err != nil {
		return "", err
	}
	if !resp.Success {
		return "", deviceErr(resp)
	}
	return resp.Value("power"), nil
}

// SetInput selects an input by friendly name ("hdmi1") or native code.
func (c *Controller) SetInput(ctx context.Context, nameOrCode string) (protocol.Response, error) {
	return c.Do(ctx, protocol.NewCommandWithParams(protocol.CommandInputSelect, map[string]string{
		"input": strings.ToLower(strings.TrimSpace(nameOrCode)),
	}))
}

// CurrentInput queries the active input, returning its friendly name
// when one is known, otherwise the native code.
func (c *Controller) CurrentInput(ctx context.Context) (string, error) {
	resp, err := c.Do(ctx, protocol.NewCommand(protocol.CommandInputQuery))
	if err != nil {
		return "", err
	}
	if !resp.Success {
		return "", deviceErr(resp)
	}
	if name := resp.Value("name"); name != "" {
		return name, nil
	}
	return resp.Value("input"), nil
}

// AvailableInputs queries the device's input list.
func (c *Controller) AvailableInputs(ctx context.Context) ([]string, error) {
	resp, err := c.Do(ctx, protocol.NewCommand(protocol.CommandInputList))
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, deviceErr(resp)
	}
	inputs := strings.Fields(resp.Value("inputs"))
	sort.Strings(inputs)
	return inputs, nil
}

// MuteOn mutes audio and video.
func (c *Controller) MuteOn(ctx context.Context) (protocol.Response, error) {
	return c.Do(ctx, protocol.NewCommand(protocol.CommandMuteOn))
}

// MuteOff restores audio and video.
func (c *Controller) MuteOff(ctx context.Context) (protocol.Response, error) {
	return c.Do(ctx, protocol.NewCommand(protocol.CommandMuteOff))
}

// MuteState queries the mute state.
func (c *Controller) MuteState(ctx context.Context) (string, error) {
	resp, err := c.Do(ctx, protocol.NewCommand(protocol.CommandMuteQuery))
	if err != nil {
		return "", err
	}
	if !resp.Success {
		return "", deviceErr(resp)
	}
	return resp.Value("mute"), nil
}

// Freeze freezes the picture where the protocol supports it.
func (c *Controller) Freeze(ctx context.Context) (protocol.Response, error) {
	return c.Do(ctx, protocol.NewCommand(protocol.CommandFreeze))
}

// Unfreeze releases a frozen picture.
func (c *Controller) Unfreeze(ctx context.Context) (protocol.Response, error) {
	return c.Do(ctx, protocol.NewCommand(protocol.CommandUnfreeze))
}

// Blank blanks the projected image.
func (c *Controller) Blank(ctx context.Context) (protocol.Response, error) {
	return c.Do(ctx, protocol.NewCommand(protocol.CommandBlank))
}

// Unblank restores the projected image.
func (c *Controller) Unblank(ctx context.Context) (protocol.Response, error) {
	return c.Do(ctx, protocol.NewCommand(protocol.CommandUnblank))
}

// LampHours queries lamp usage. The payload carries one entry per
// lamp ("lamp1_hours", …).
func (c *Controller) LampHours(ctx context.Context) (map[string]string, error) {
	return c.queryPayload(ctx, protocol.CommandLampQuery)
}

// FilterHours queries filter usage.
func (c *Controller) FilterHours(ctx context.Context) (map[string]string, error) {
	return c.queryPayload(ctx, protocol.CommandFilterQuery)
}

// Temperature queries device temperature where supported.
func (c *Controller) Temperature(ctx context.Context) (map[string]string, error) {
	return c.queryPayload(ctx, protocol.CommandTemperatureQuery)
}

// ErrorStatus queries the device's error flags.
func (c *Controller) ErrorStatus(ctx context.Context) (map[string]string, error) {
	return c.queryPayload(ctx, protocol.CommandErrorQuery)
}

// Info queries device identity (name, manufacturer, model, firmware).
func (c *Controller) Info(ctx context.Context) (map[string]string, error) {
	info := make(map[string]string)
	for _, t := range []protocol.CommandType{protocol.CommandNameQuery, protocol.CommandInfoQuery} {
		resp, err := c.Do(ctx, protocol.NewCommand(t))
		if err != nil {
			return nil, err
		}
		if !resp.Success {
			continue
		}
		for k, v := range resp.Payload {
			info[k] = v
		}
	}
	return info, nil
}

// Ping verifies the device answers at all, using the cheapest query
// the protocol offers.
func (c *Controller) Ping(ctx context.Context) error {
	resp, err := c.Do(ctx, protocol.NewCommand(protocol.CommandPowerQuery))
	if err != nil {
		return err
	}
	if !resp.Success {
		return deviceErr(resp)
	}
	return nil
}

func (c *Controller) queryPayload(ctx context.Context, t protocol.CommandType) (map[string]string, error) {
	resp, err := c.Do(ctx, protocol.NewCommand(t))
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, deviceErr(resp)
	}
	return resp.Payload, nil
}

func deviceErr(resp protocol.Response) error {
	return &protocol.DeviceError{Code: resp.Code, Message: resp.Message}
}
