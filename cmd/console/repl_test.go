package main

import (
	"bufio"
	"bytes"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/KevinKickass/OpenMatrixCore/internal/lw3"
	"github.com/KevinKickass/OpenMatrixCore/internal/matrix"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

func meetingRoom(command string) []string {
	switch command {
	case "GET /.ProductName":
		return []string{"pr /.ProductName=MX2-4x4-HDMI20"}
	case "GET /MEDIA/NAMES/VIDEO.*":
		return []string{"pw /MEDIA/NAMES/VIDEO.I1=1;Table", "pw /MEDIA/NAMES/VIDEO.O1=1;Screen"}
	case "GET /MEDIA/PRESET/*.Name":
		return []string{"pw /MEDIA/PRESET/1.Name=Meeting"}
	case "GET /MEDIA/XP/VIDEO.DestinationConnectionList":
		return []string{"pr /MEDIA/XP/VIDEO.DestinationConnectionList=I1"}
	case "GET /MEDIA/USB/USBSWITCH.*", "GET /CTRL/MACROS.*":
		return []string{"pE " + command + " %E001:No such node"}
	default:
		return []string{"mO " + command}
	}
}

func newTestConsole(t *testing.T) (*console, *bytes.Buffer) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			id, command, _ := strings.Cut(scanner.Text(), "#")
			reply := "{" + id + "\r\n"
			for _, line := range meetingRoom(command) {
				reply += line + "\r\n"
			}
			conn.Write([]byte(reply + "}\r\n"))
		}
	}()

	dialer := lw3.TCPDialer{Host: "127.0.0.1", Port: ln.Addr().(*net.TCPAddr).Port, Timeout: time.Second}
	client := lw3.NewClient(dialer, matrix.NewModel(), lw3.Options{}, zap.NewNop())
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for len(client.Model().Destinations()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("bring-up did not complete")
		}
		time.Sleep(5 * time.Millisecond)
	}

	out := &bytes.Buffer{}
	return &console{client: client, out: out, timeout: 2 * time.Second}, out
}

func TestConsoleCommands(t *testing.T) {
	c, out := newTestConsole(t)

	tests := []struct {
		line string
		want string
	}{
		{"GET /.ProductName", "pr /.ProductName=MX2-4x4-HDMI20"},
		{"get /MEDIA/XP/VIDEO.DestinationConnectionList", "DestinationConnectionList=I1"},
		{"switch i1 o1", "mO CALL /MEDIA/XP/VIDEO:switch(I1:O1)"},
		{"preset 1", "mO CALL /MEDIA/PRESET/1:load()"},
		{"macro nope", "unknown macro"},
		{"switch I1", "usage: switch"},
		{"status", "family:  mx2"},
		{"DELETE /X", "unsupported verb"},
		{"help", "Commands:"},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			out.Reset()
			if c.execute(tt.line) {
				t.Fatal("execute asked to quit")
			}
			if !strings.Contains(out.String(), tt.want) {
				t.Errorf("output = %q, want it to contain %q", out.String(), tt.want)
			}
		})
	}
}

func TestConsoleModelDump(t *testing.T) {
	c, out := newTestConsole(t)
	c.execute("model")

	var snap matrix.Snapshot
	if err := yaml.Unmarshal(out.Bytes(), &snap); err != nil {
		t.Fatalf("yaml: %v\n%s", err, out)
	}
	if snap.ProductName != "MX2-4x4-HDMI20" || snap.Inputs["I1"] != "Table" || len(snap.Presets) != 1 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestConsoleQuit(t *testing.T) {
	c, _ := newTestConsole(t)

	for _, line := range []string{"quit", "exit", "  QUIT  "} {
		if !c.execute(line) {
			t.Errorf("execute(%q) did not quit", line)
		}
	}
	if c.execute("   ") {
		t.Error("blank line quit")
	}
}
