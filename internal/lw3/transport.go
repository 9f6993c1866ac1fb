package lw3

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"go.bug.st/serial"
)

// DefaultPort is the LW3 TCP port.
const DefaultPort = 6107

// Dialer opens the byte stream to a device.
type Dialer interface {
	Dial(ctx context.Context) (io.ReadWriteCloser, error)
	// Address identifies the device in logs.
	Address() string
}

// TCPDialer reaches a device over the network.
type TCPDialer struct {
	Host    string
	Port    int
	Timeout time.Duration
}

func (d TCPDialer) Address() string {
	port := d.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(d.Host, strconv.Itoa(port))
}

func (d TCPDialer) Dial(ctx context.Context) (io.ReadWriteCloser, error) {
	if d.Host == "" {
		return nil, fmt.Errorf("no host configured")
	}

	dialer := net.Dialer{Timeout: d.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", d.Address())
	if err != nil {
		return nil, fmt.Errorf("connection failed: %w", err)
	}
	return conn, nil
}

// SerialDialer reaches a device on its RS-232 or USB control port.
type SerialDialer struct {
	PortPath string
	BaudRate int
}

func (d SerialDialer) Address() string {
	return d.PortPath
}

func (d SerialDialer) Dial(ctx context.Context) (io.ReadWriteCloser, error) {
	baud := d.BaudRate
	if baud == 0 {
		baud = 115200
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(d.PortPath, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", d.PortPath, err)
	}
	if err := ctx.Err(); err != nil {
		port.Close()
		return nil, err
	}
	return port, nil
}
