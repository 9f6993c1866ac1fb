package matrix

import (
	"regexp"
	"strconv"
)

var (
	inputPortPattern  = regexp.MustCompile(`^I\d+$`)
	outputPortPattern = regexp.MustCompile(`^O\d+$`)
)

// PortKind tells inputs from outputs.
type PortKind int

const (
	PortUnknown PortKind = iota
	PortInput
	PortOutput
)

// KindOf returns the kind of an LW3 port id such as "I3" or "O12".
func KindOf(portID string) PortKind {
	switch {
	case inputPortPattern.MatchString(portID):
		return PortInput
	case outputPortPattern.MatchString(portID):
		return PortOutput
	default:
		return PortUnknown
	}
}

// IsInputPort reports whether s has the shape of an input port id.
func IsInputPort(s string) bool {
	return inputPortPattern.MatchString(s)
}

// InputID builds the port id for input number n.
func InputID(n int) string {
	return "I" + strconv.Itoa(n)
}

// OutputID builds the port id for output number n.
func OutputID(n int) string {
	return "O" + strconv.Itoa(n)
}

// PortNumber extracts the numeric part of a port id, -1 when there is none.
func PortNumber(portID string) int {
	if len(portID) < 2 {
		return -1
	}
	n, err := strconv.Atoi(portID[1:])
	if err != nil {
		return -1
	}
	return n
}
