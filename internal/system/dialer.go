package system

import (
	"fmt"

	"github.com/KevinKickass/OpenMatrixCore/internal/config"
	"github.com/KevinKickass/OpenMatrixCore/internal/lw3"
)

// NewDialer builds the LW3 transport for a device configuration.
func NewDialer(cfg config.DeviceConfig) (lw3.Dialer, error) {
	switch cfg.Transport {
	case "", "tcp":
		if cfg.Host == "" {
			return nil, fmt.Errorf("tcp transport needs a host")
		}
		return lw3.TCPDialer{Host: cfg.Host, Port: cfg.Port, Timeout: cfg.DialTimeout}, nil
	case "serial":
		if cfg.SerialPort == "" {
			return nil, fmt.Errorf("serial transport needs a serial port")
		}
		return lw3.SerialDialer{PortPath: cfg.SerialPort, BaudRate: cfg.BaudRate}, nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}
