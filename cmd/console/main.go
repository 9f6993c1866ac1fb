package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/KevinKickass/OpenMatrixCore/internal/config"
	"github.com/KevinKickass/OpenMatrixCore/internal/lw3"
	"github.com/KevinKickass/OpenMatrixCore/internal/matrix"
	"github.com/KevinKickass/OpenMatrixCore/internal/system"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "read the device section from this config file")
	host := flag.String("host", "", "device host (tcp)")
	port := flag.Int("port", lw3.DefaultPort, "device port (tcp)")
	serialPort := flag.String("serial", "", "serial port instead of tcp, e.g. /dev/ttyUSB0")
	baud := flag.Int("baud", 115200, "serial baud rate")
	timeout := flag.Duration("timeout", 5*time.Second, "reply timeout per command")
	verbose := flag.Bool("v", false, "log protocol traffic")
	flag.Parse()

	target := config.DeviceConfig{Transport: "tcp", Host: *host, Port: *port, DialTimeout: 5 * time.Second}
	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		target = cfg.Device
	}
	if *serialPort != "" {
		target.Transport = "serial"
		target.SerialPort = *serialPort
		target.BaudRate = *baud
	}

	logger, err := newLogger(*verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	dialer, err := system.NewDialer(target)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid target: %v (use -host or -serial)\n", err)
		os.Exit(2)
	}

	client := lw3.NewClient(dialer, matrix.NewModel(), lw3.Options{RequestTimeout: *timeout}, logger)
	client.OnStateChange(func(from, to lw3.ConnState, session string) {
		if to == lw3.Disconnected && from == lw3.Connected {
			fmt.Fprintln(os.Stderr, "connection lost")
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), target.DialTimeout+time.Second)
	err = client.Connect(ctx)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	fmt.Printf("Connected to %s, type help for commands\n", dialer.Address())

	editor := NewLineEditor()
	defer editor.Close()

	c := &console{client: client, out: os.Stdout, timeout: *timeout}
	for {
		line, err := editor.GetLine("lw3> ")
		if err != nil {
			if !errors.Is(err, io.EOF) {
				fmt.Fprintf(os.Stderr, "read error: %v\n", err)
			}
			return
		}
		if c.execute(line) {
			return
		}
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}
