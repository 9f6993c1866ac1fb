package lw3

import (
	"context"
	"fmt"
	"regexp"
	"slices"

	"github.com/KevinKickass/OpenMatrixCore/internal/matrix"
	"go.uber.org/zap"
)

// Crosspoint nodes per family.
const (
	generalCrosspoint = "/MEDIA/VIDEO/XP"
	mx2Crosspoint     = "/MEDIA/XP/VIDEO"
	usbSwitchNode     = "/MEDIA/USB/USBSWITCH"
	macrosNode        = "/CTRL/MACROS"
)

// Preset ids end up inside a node path or method argument.
var presetIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// SwitchCommand builds the crosspoint switch for family.
func SwitchCommand(family DeviceFamily, input, output string) (Command, error) {
	if matrix.KindOf(input) != matrix.PortInput {
		return Command{}, fmt.Errorf("%w: not an input port: %q", ErrInvalidArgument, input)
	}
	if matrix.KindOf(output) != matrix.PortOutput {
		return Command{}, fmt.Errorf("%w: not an output port: %q", ErrInvalidArgument, output)
	}

	switch family {
	case FamilyGeneral:
		return Call(generalCrosspoint, "switch", input+":"+output), nil
	case FamilyMX2:
		return Call(mx2Crosspoint, "switch", input+":"+output), nil
	default:
		return Command{}, fmt.Errorf("%w: device not identified", ErrUnknownFamily)
	}
}

// PresetCommand builds the preset recall for family.
func PresetCommand(family DeviceFamily, id string) (Command, error) {
	if !presetIDPattern.MatchString(id) {
		return Command{}, fmt.Errorf("%w: invalid preset id %q", ErrInvalidArgument, id)
	}

	switch family {
	case FamilyGeneral:
		return Call("/PRESETS/AVC", "load", id), nil
	case FamilyMX2:
		return Call("/MEDIA/PRESET/"+id, "load"), nil
	default:
		return Command{}, fmt.Errorf("%w: device not identified", ErrUnknownFamily)
	}
}

// USBHostCommand selects the USB host. "0" switches the USB link off.
func USBHostCommand(host string) Command {
	return Set(usbSwitchNode, "HostSelect", host)
}

func MacroCommand(name string) Command {
	return Call(macrosNode, "run", name)
}

// Switch routes input to output and waits for the device reply.
func (c *Client) Switch(ctx context.Context, input, output string) (string, error) {
	cmd, err := SwitchCommand(c.Family(), input, output)
	if err != nil {
		return "", err
	}
	return c.runAction(ctx, "XPT Result", cmd)
}

// LoadPreset recalls a preset the bring-up listed.
func (c *Client) LoadPreset(ctx context.Context, id string) (string, error) {
	known := slices.ContainsFunc(c.model.Presets(), func(p matrix.Preset) bool { return p.ID == id })
	if !known {
		return "", fmt.Errorf("%w: unknown preset %q", ErrInvalidArgument, id)
	}
	cmd, err := PresetCommand(c.Family(), id)
	if err != nil {
		return "", err
	}
	return c.runAction(ctx, "Preset Load Result", cmd)
}

// SwitchUSB selects a USB host. Only available when the probe found one.
func (c *Client) SwitchUSB(ctx context.Context, host string) (string, error) {
	if host != "0" && !slices.Contains(c.model.USBHosts(), host) {
		return "", fmt.Errorf("%w: unknown USB host %q", ErrInvalidArgument, host)
	}
	return c.runAction(ctx, "Switch USB Result", USBHostCommand(host))
}

// RunMacro starts a macro the probe discovered.
func (c *Client) RunMacro(ctx context.Context, name string) (string, error) {
	if !slices.Contains(c.model.Macros(), name) {
		return "", fmt.Errorf("%w: unknown macro %q", ErrInvalidArgument, name)
	}
	return c.runAction(ctx, "Run Macro Result", MacroCommand(name))
}

func (c *Client) runAction(ctx context.Context, label string, cmd Command) (string, error) {
	result, err := c.SendContext(ctx, cmd.String())
	if err != nil {
		return "", fmt.Errorf("%s failed: %w", cmd.Verb, err)
	}
	c.logger.Info(label,
		zap.String("command", cmd.String()),
		zap.String("result", result))
	return result, nil
}
