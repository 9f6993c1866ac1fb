package lw3

import (
	"bufio"
	"context"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/KevinKickass/OpenMatrixCore/internal/matrix"
	"go.uber.org/zap"
)

// request is one command line received by the fake device.
type request struct {
	ID      string
	Command string
}

// fakeDevice speaks LW3 over net.Pipe. With a responder set it answers
// every request itself, otherwise the test reads Requests and replies.
type fakeDevice struct {
	t *testing.T

	// respond returns the body lines for a command. nil means manual mode.
	respond func(command string) []string

	mu       sync.Mutex
	conn     net.Conn
	received []string
	dials    int

	Requests chan request
	writeMu  sync.Mutex
}

func newFakeDevice(t *testing.T, respond func(command string) []string) *fakeDevice {
	t.Helper()
	return &fakeDevice{t: t, respond: respond}
}

func (d *fakeDevice) Address() string {
	return "fake:6107"
}

func (d *fakeDevice) Dial(ctx context.Context) (io.ReadWriteCloser, error) {
	client, server := net.Pipe()

	requests := make(chan request, 256)

	d.mu.Lock()
	d.conn = server
	d.dials++
	d.Requests = requests
	d.mu.Unlock()

	go d.readLoop(server, requests)
	if d.respond != nil {
		go d.respondLoop(requests)
	}
	return client, nil
}

func (d *fakeDevice) readLoop(conn net.Conn, requests chan request) {
	defer close(requests)

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		text := strings.TrimSuffix(scanner.Text(), "\r")
		id, command, ok := strings.Cut(text, "#")
		if !ok {
			continue
		}

		d.mu.Lock()
		d.received = append(d.received, command)
		d.mu.Unlock()

		requests <- request{ID: id, Command: command}
	}
}

func (d *fakeDevice) respondLoop(requests chan request) {
	for req := range requests {
		if err := d.Reply(req.ID, d.respond(req.Command)...); err != nil {
			return
		}
	}
}

// Reply writes a response block for id.
func (d *fakeDevice) Reply(id string, lines ...string) error {
	var b strings.Builder
	b.WriteString("{" + id + "\r\n")
	for _, l := range lines {
		b.WriteString(l + "\r\n")
	}
	b.WriteString("}\r\n")
	return d.write(b.String())
}

// Push writes an unsolicited line.
func (d *fakeDevice) Push(line string) error {
	return d.write(line + "\r\n")
}

func (d *fakeDevice) write(s string) error {
	d.mu.Lock()
	conn := d.conn
	d.mu.Unlock()

	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	_, err := conn.Write([]byte(s))
	return err
}

// Hangup drops the connection from the device side.
func (d *fakeDevice) Hangup() {
	d.mu.Lock()
	conn := d.conn
	d.mu.Unlock()
	conn.Close()
}

func (d *fakeDevice) Received() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.received...)
}

func (d *fakeDevice) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// Next waits for the next request in manual mode.
func (d *fakeDevice) Next() request {
	d.t.Helper()

	d.mu.Lock()
	requests := d.Requests
	d.mu.Unlock()

	select {
	case req, ok := <-requests:
		if !ok {
			d.t.Fatal("device connection closed while waiting for a request")
		}
		return req
	case <-time.After(2 * time.Second):
		d.t.Fatal("timed out waiting for a request")
	}
	return request{}
}

func newTestClient(t *testing.T, dialer Dialer, opts Options) *Client {
	t.Helper()

	c := NewClient(dialer, matrix.NewModel(), opts, zap.NewNop())
	t.Cleanup(func() { c.Close() })
	return c
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
