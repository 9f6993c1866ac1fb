package lw3

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned by Send when there is no live connection.
	// The command is dropped, nothing is queued.
	ErrNotConnected = errors.New("not connected")

	// ErrAlreadyConnected is returned by Connect on a live connection.
	ErrAlreadyConnected = errors.New("already connected")

	// ErrRequestTimeout is delivered to a pending request that outlived
	// the configured request timeout.
	ErrRequestTimeout = errors.New("request timed out")

	// ErrConnectionReset is delivered to pending requests abandoned by a
	// disconnect or a target change.
	ErrConnectionReset = errors.New("connection reset")

	// ErrTransactionIDInUse is returned in strict mode when the next
	// transaction id still has a pending request.
	ErrTransactionIDInUse = errors.New("transaction id still pending")

	// ErrInvalidArgument rejects an action before anything is sent.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnknownFamily marks a product name that matched no known device family.
	ErrUnknownFamily = errors.New("unknown LW3 device family")
)

// DeviceError is error text the device reported inside a block.
type DeviceError struct {
	ID   string
	Text string
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("device error in block %s: %s", e.ID, e.Text)
}

// MalformedError describes an unsolicited payload a handler could not accept.
type MalformedError struct {
	Line   string
	Reason string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed payload (%s): %q", e.Reason, e.Line)
}
