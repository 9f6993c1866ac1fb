package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/KevinKickass/OpenMatrixCore/internal/lw3"
	"gopkg.in/yaml.v3"
)

const helpText = `Commands:
  GET|SET|CALL|OPEN <path>...   send a raw LW3 command and print the reply
  model                         dump the device model as YAML
  status                        connection state, session and family
  switch <input> <output>       route a crosspoint, e.g. switch I1 O2
  preset <id>                   recall a preset
  usb <host>                    select a USB host, 0 switches off
  macro <name>                  run a macro
  help                          this text
  quit                          leave the console
`

// console executes one input line at a time against the client.
type console struct {
	client  *lw3.Client
	out     io.Writer
	timeout time.Duration
}

// execute runs line and reports whether the console should exit.
func (c *console) execute(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	switch strings.ToLower(fields[0]) {
	case "quit", "exit":
		return true
	case "help", "?":
		fmt.Fprint(c.out, helpText)
	case "model":
		c.dumpModel()
	case "status":
		fmt.Fprintf(c.out, "state:   %s\naddress: %s\nsession: %s\nfamily:  %s\npending: %d\n",
			c.client.State(), c.client.Address(), c.client.Session(), c.client.Family(), c.client.Pending())
	case "switch":
		if len(fields) != 3 {
			fmt.Fprintln(c.out, "usage: switch <input> <output>")
			return false
		}
		c.run(func(ctx context.Context) (string, error) {
			return c.client.Switch(ctx, strings.ToUpper(fields[1]), strings.ToUpper(fields[2]))
		})
	case "preset":
		if len(fields) != 2 {
			fmt.Fprintln(c.out, "usage: preset <id>")
			return false
		}
		c.run(func(ctx context.Context) (string, error) {
			return c.client.LoadPreset(ctx, fields[1])
		})
	case "usb":
		if len(fields) != 2 {
			fmt.Fprintln(c.out, "usage: usb <host>")
			return false
		}
		c.run(func(ctx context.Context) (string, error) {
			return c.client.SwitchUSB(ctx, fields[1])
		})
	case "macro":
		if len(fields) != 2 {
			fmt.Fprintln(c.out, "usage: macro <name>")
			return false
		}
		c.run(func(ctx context.Context) (string, error) {
			return c.client.RunMacro(ctx, fields[1])
		})
	default:
		verb, err := lw3.ParseVerb(line)
		if err != nil {
			fmt.Fprintf(c.out, "error: %v (try help)\n", err)
			return false
		}
		_, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
		command := string(verb) + " " + strings.TrimSpace(rest)
		c.run(func(ctx context.Context) (string, error) {
			return c.client.SendContext(ctx, command)
		})
	}
	return false
}

func (c *console) run(fn func(ctx context.Context) (string, error)) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	body, err := fn(ctx)
	if err != nil {
		fmt.Fprintf(c.out, "error: %v\n", err)
		return
	}
	if body != "" {
		fmt.Fprintln(c.out, body)
	}
}

func (c *console) dumpModel() {
	data, err := yaml.Marshal(c.client.Model().Snapshot())
	if err != nil {
		fmt.Fprintf(c.out, "error: %v\n", err)
		return
	}
	c.out.Write(data)
}
