package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
device:
  host: 10.0.0.50
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Device.Port != 6107 {
		t.Errorf("device.port = %d, want 6107", cfg.Device.Port)
	}
	if cfg.Device.Transport != "tcp" {
		t.Errorf("device.transport = %q", cfg.Device.Transport)
	}
	if cfg.Device.RequestTimeout != 30*time.Second {
		t.Errorf("device.request_timeout = %v", cfg.Device.RequestTimeout)
	}
	if !cfg.Reconnect.Enabled || cfg.Reconnect.MaxDelay != time.Minute {
		t.Errorf("reconnect = %+v", cfg.Reconnect)
	}
	if cfg.Server.HTTPPort != 8080 {
		t.Errorf("server.http_port = %d", cfg.Server.HTTPPort)
	}
	if cfg.Events.NATS.SubjectPrefix != "omc.matrix" {
		t.Errorf("events.nats.subject_prefix = %q", cfg.Events.NATS.SubjectPrefix)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, `
device:
  host: 10.0.0.50
`)
	t.Setenv("OMC_DEVICE_HOST", "matrix.local")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Device.Host != "matrix.local" {
		t.Errorf("device.host = %q, want env override", cfg.Device.Host)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Device:    DeviceConfig{Transport: "tcp", Host: "h", Port: 6107},
			Reconnect: ReconnectConfig{InitialDelay: time.Second, MaxDelay: time.Minute},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid tcp", func(c *Config) {}, false},
		{"tcp without host", func(c *Config) { c.Device.Host = "" }, true},
		{"serial", func(c *Config) { c.Device.Transport = "serial"; c.Device.SerialPort = "/dev/ttyUSB0" }, false},
		{"serial without port", func(c *Config) { c.Device.Transport = "serial" }, true},
		{"unknown transport", func(c *Config) { c.Device.Transport = "udp" }, true},
		{"bad port", func(c *Config) { c.Device.Port = 70000 }, true},
		{"backoff inverted", func(c *Config) { c.Reconnect.MaxDelay = time.Millisecond }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			if err := c.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestJWTSecretFallback(t *testing.T) {
	a := AuthConfig{JWTSecretEnv: "OMC_TEST_JWT_SECRET"}

	t.Setenv("OMC_TEST_JWT_SECRET", "")
	if a.IsProductionReady() {
		t.Error("development fallback reported production ready")
	}

	t.Setenv("OMC_TEST_JWT_SECRET", "0123456789abcdef0123456789abcdef")
	if !a.IsProductionReady() {
		t.Error("32 char secret not production ready")
	}
}
