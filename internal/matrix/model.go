package matrix

import (
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Preset is a stored crosspoint configuration on the device.
type Preset struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// Choice is a selectable entry for collaborators rendering dropdowns.
type Choice struct {
	ID    string `json:"id" yaml:"id"`
	Label string `json:"label" yaml:"label"`
}

// Snapshot is an immutable copy of the model.
type Snapshot struct {
	ProductName  string            `json:"product_name" yaml:"product_name"`
	Family       string            `json:"family" yaml:"family"`
	Inputs       map[string]string `json:"inputs" yaml:"inputs"`
	Outputs      map[string]string `json:"outputs" yaml:"outputs"`
	Destinations []string          `json:"destinations" yaml:"destinations"`
	Presets      []Preset          `json:"presets" yaml:"presets"`
	USBHosts     []string          `json:"usb_hosts,omitempty" yaml:"usb_hosts,omitempty"`
	Macros       []string          `json:"macros,omitempty" yaml:"macros,omitempty"`
}

// Model is the local mirror of a matrix switcher. Only the protocol engine
// mutates it; collaborators read through the accessors.
type Model struct {
	mu sync.RWMutex

	productName  string
	family       string
	inputs       map[string]string
	outputs      map[string]string
	destinations []string
	presets      []Preset
	usbHosts     []string
	macros       []string
}

func NewModel() *Model {
	return &Model{
		inputs:  make(map[string]string),
		outputs: make(map[string]string),
	}
}

// Reset drops everything. Used when the connection target changes.
func (m *Model) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.productName = ""
	m.family = ""
	m.inputs = make(map[string]string)
	m.outputs = make(map[string]string)
	m.destinations = nil
	m.presets = nil
	m.usbHosts = nil
	m.macros = nil
}

func (m *Model) SetIdentity(productName, family string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.productName = productName
	m.family = family
}

func (m *Model) ProductName() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.productName
}

// SetPort stores the display name of an input or output port.
func (m *Model) SetPort(portID, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch KindOf(portID) {
	case PortInput:
		m.inputs[portID] = name
	case PortOutput:
		m.outputs[portID] = name
	default:
		return fmt.Errorf("not a port id: %q", portID)
	}
	return nil
}

// ReplacePorts rebuilds both port maps from a discovery listing.
func (m *Model) ReplacePorts(names map[string]string) {
	inputs := make(map[string]string)
	outputs := make(map[string]string)
	for id, name := range names {
		switch KindOf(id) {
		case PortInput:
			inputs[id] = name
		case PortOutput:
			outputs[id] = name
		}
	}

	m.mu.Lock()
	m.inputs = inputs
	m.outputs = outputs
	m.mu.Unlock()
}

func (m *Model) Inputs() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyMap(m.inputs)
}

func (m *Model) Outputs() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyMap(m.outputs)
}

// InputChoices returns the inputs ordered by port number.
func (m *Model) InputChoices() []Choice {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return choices(m.inputs)
}

// OutputChoices returns the outputs ordered by port number.
func (m *Model) OutputChoices() []Choice {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return choices(m.outputs)
}

// SetDestinations replaces the destination connection list wholesale.
func (m *Model) SetDestinations(list []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.destinations = slices.Clone(list)
}

func (m *Model) Destinations() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.destinations)
}

// SourceFor returns the source port routed to output number n (1-based).
func (m *Model) SourceFor(output int) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if output < 1 || output > len(m.destinations) {
		return "", false
	}
	return m.destinations[output-1], true
}

// IsRouted reports whether input number in is routed to output number out.
func (m *Model) IsRouted(in, out int) bool {
	src, ok := m.SourceFor(out)
	return ok && src == InputID(in)
}

func (m *Model) SetPresets(presets []Preset) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.presets = slices.Clone(presets)
}

// RenamePreset updates a preset that is already known. Unknown ids are ignored.
func (m *Model) RenamePreset(id, name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.presets {
		if m.presets[i].ID == id {
			m.presets[i].Name = name
			return true
		}
	}
	return false
}

func (m *Model) Presets() []Preset {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.presets)
}

func (m *Model) SetUSBHosts(hosts []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usbHosts = slices.Clone(hosts)
}

func (m *Model) USBHosts() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.usbHosts)
}

func (m *Model) SetMacros(macros []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.macros = slices.Clone(macros)
}

func (m *Model) Macros() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.macros)
}

func (m *Model) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return Snapshot{
		ProductName:  m.productName,
		Family:       m.family,
		Inputs:       copyMap(m.inputs),
		Outputs:      copyMap(m.outputs),
		Destinations: slices.Clone(m.destinations),
		Presets:      slices.Clone(m.presets),
		USBHosts:     slices.Clone(m.usbHosts),
		Macros:       slices.Clone(m.macros),
	}
}

func copyMap(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func choices(names map[string]string) []Choice {
	out := make([]Choice, 0, len(names))
	for id, name := range names {
		out = append(out, Choice{ID: id, Label: name})
	}
	slices.SortFunc(out, func(a, b Choice) int {
		if d := PortNumber(a.ID) - PortNumber(b.ID); d != 0 {
			return d
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}
