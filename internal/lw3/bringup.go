package lw3

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/KevinKickass/OpenMatrixCore/internal/matrix"
	"go.uber.org/zap"
)

// DeviceFamily selects the node layout a device speaks.
type DeviceFamily int

const (
	FamilyUnknown DeviceFamily = iota
	// FamilyGeneral covers MMX, MEX, OPTC and friends (/MEDIA/VIDEO/XP).
	FamilyGeneral
	// FamilyMX2 covers the MX2 matrix line (/MEDIA/XP/VIDEO).
	FamilyMX2
)

func (f DeviceFamily) String() string {
	switch f {
	case FamilyGeneral:
		return "general"
	case FamilyMX2:
		return "mx2"
	default:
		return "unknown"
	}
}

var (
	generalFamilyPatterns = []*regexp.Regexp{
		regexp.MustCompile(`OPTC-[TR]X|MMX\d+x\d+|UMX-TPS-[TR]X100`),
		regexp.MustCompile(`(^MEX-)|HDMI-TPS-[TR]X200|HDMI-3D-OPT|SW4-OPT|MODEX`),
	}
	mx2FamilyPattern = regexp.MustCompile(`^MX2`)

	productNamePrefix = regexp.MustCompile(`^.+ProductName=`)

	videoTextListing = regexp.MustCompile(`/MEDIA/VIDEO/(.+?)\.Text=(.+)$`)
	mx2NameListing   = regexp.MustCompile(`/MEDIA/NAMES/VIDEO\.(.+?)=\d+;(.+)$`)
	avcPresetListing = regexp.MustCompile(`/PRESETS/AVC/(.+?)\.Name=(.+)$`)
	mx2PresetListing = regexp.MustCompile(`/MEDIA/PRESET/(.+?)\.Name=(.+)$`)
	usbHostListing   = regexp.MustCompile(`Enable(\d+)=`)
	macroListing     = regexp.MustCompile(`MACROS.\d+=\d+;.+;(\w+)$`)
)

// DetectFamily maps a product name to its device family.
func DetectFamily(productName string) (DeviceFamily, error) {
	for _, p := range generalFamilyPatterns {
		if p.MatchString(productName) {
			return FamilyGeneral, nil
		}
	}
	if mx2FamilyPattern.MatchString(productName) {
		return FamilyMX2, nil
	}
	return FamilyUnknown, fmt.Errorf("%w: %q", ErrUnknownFamily, productName)
}

// bringUp identifies the device and probes optional capabilities. Replies
// arrive on the reader goroutine and drive the family procedure from there.
func (c *Client) bringUp() {
	c.sendDiscovery(Get("/.ProductName"), c.identify)
	c.sendDiscovery(Get("/MEDIA/USB/USBSWITCH.*"), c.probeUSB)
	c.sendDiscovery(Get("/CTRL/MACROS.*"), c.probeMacros)
}

func (c *Client) sendDiscovery(cmd Command, fn ResponseFunc) {
	if err := c.SendCommand(cmd, fn); err != nil {
		c.logger.Warn("Discovery command not sent",
			zap.String("command", cmd.String()),
			zap.Error(err))
	}
}

func (c *Client) identify(body string) {
	product := strings.TrimSpace(productNamePrefix.ReplaceAllString(body, ""))
	c.logger.Info("Connected to an LW3 device",
		zap.String("device", c.Address()),
		zap.String("product", product))

	family, err := DetectFamily(product)
	if err != nil {
		c.logger.Warn("Unknown LW3 device, use with caution",
			zap.String("product", product),
			zap.Error(err))
		family = FamilyMX2
	}

	c.setFamily(family)
	c.model.SetIdentity(product, family.String())

	switch family {
	case FamilyGeneral:
		c.initGeneral()
	case FamilyMX2:
		c.initMX2()
	}
	c.dispatcher.Notify(matrix.ChangeStructural)
}

func (c *Client) initGeneral() {
	c.sendDiscovery(Get("/MEDIA/VIDEO/*.Text"), func(body string) {
		c.model.ReplacePorts(parsePortListing(body, videoTextListing))
		c.dispatcher.Notify(matrix.ChangeStructural)
	})
	c.sendDiscovery(Get("/PRESETS/AVC/*.Name"), func(body string) {
		c.model.SetPresets(parsePresetListing(body, avcPresetListing))
		c.dispatcher.Notify(matrix.ChangeStructural)
	})
	c.sendDiscovery(Open("/MEDIA/VIDEO/XP"), nil)
	c.sendDiscovery(Get("/MEDIA/VIDEO/XP.DestinationConnectionList"), c.routeListing)
}

func (c *Client) initMX2() {
	c.sendDiscovery(Get("/MEDIA/NAMES/VIDEO.*"), func(body string) {
		c.model.ReplacePorts(parsePortListing(body, mx2NameListing))
		c.dispatcher.Notify(matrix.ChangeStructural)
	})
	c.sendDiscovery(Get("/MEDIA/PRESET/*.Name"), func(body string) {
		c.model.SetPresets(parsePresetListing(body, mx2PresetListing))
		c.dispatcher.Notify(matrix.ChangeStructural)
	})
	c.sendDiscovery(Open("/MEDIA/XP/VIDEO"), nil)
	c.sendDiscovery(Get("/MEDIA/XP/VIDEO.DestinationConnectionList"), c.routeListing)
}

// routeListing feeds a GET reply through the subscription table so the
// destination list is parsed exactly like a pushed change.
func (c *Client) routeListing(body string) {
	for _, line := range strings.Split(body, Delimiter) {
		c.dispatcher.RouteLine(line)
	}
}

func (c *Client) probeUSB(body string) {
	hosts := parseCapture(body, usbHostListing)
	if len(hosts) == 0 {
		c.logger.Debug("No USB switch on device")
		return
	}
	c.model.SetUSBHosts(hosts)
	c.logger.Info("USB host switching available", zap.Strings("hosts", hosts))
	c.dispatcher.Notify(matrix.ChangeStructural)
}

func (c *Client) probeMacros(body string) {
	macros := parseCapture(body, macroListing)
	if len(macros) == 0 {
		c.logger.Debug("No macros on device")
		return
	}
	c.model.SetMacros(macros)
	c.logger.Info("Macros available", zap.Strings("macros", macros))
	c.dispatcher.Notify(matrix.ChangeStructural)
}

// parsePortListing collects port id -> name from a multi-line GET reply.
// Lines whose id is neither input nor output are skipped by the model.
func parsePortListing(body string, pattern *regexp.Regexp) map[string]string {
	names := make(map[string]string)
	for _, line := range strings.Split(body, Delimiter) {
		if m := pattern.FindStringSubmatch(line); m != nil {
			names[m[1]] = m[2]
		}
	}
	return names
}

func parsePresetListing(body string, pattern *regexp.Regexp) []matrix.Preset {
	var presets []matrix.Preset
	for _, line := range strings.Split(body, Delimiter) {
		if m := pattern.FindStringSubmatch(line); m != nil {
			presets = append(presets, matrix.Preset{ID: m[1], Name: m[2]})
		}
	}
	return presets
}

// parseCapture returns the first submatch of every matching line.
func parseCapture(body string, pattern *regexp.Regexp) []string {
	var out []string
	for _, line := range strings.Split(body, Delimiter) {
		if m := pattern.FindStringSubmatch(line); m != nil {
			out = append(out, m[1])
		}
	}
	return out
}
