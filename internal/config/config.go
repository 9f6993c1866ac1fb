package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Device    DeviceConfig    `mapstructure:"device"`
	Reconnect ReconnectConfig `mapstructure:"reconnect"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Journal   JournalConfig   `mapstructure:"journal"`
	Events    EventsConfig    `mapstructure:"events"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	GRPCPort        int           `mapstructure:"grpc_port"`
	HTTPPort        int           `mapstructure:"http_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DeviceConfig describes the LW3 device and the link to it.
type DeviceConfig struct {
	Transport      string        `mapstructure:"transport"` // tcp | serial
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	SerialPort     string        `mapstructure:"serial_port"`
	BaudRate       int           `mapstructure:"baud_rate"`
	DialTimeout    time.Duration `mapstructure:"dial_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`
	StrictIDs      bool          `mapstructure:"strict_transaction_ids"`
}

type ReconnectConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
}

// Auth Configuration
type AuthConfig struct {
	JWTSecretEnv   string        `mapstructure:"jwt_secret_env"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

// JournalConfig enables the Postgres audit journal.
type JournalConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Database DatabaseConfig `mapstructure:"database"`
	// BufferSize bounds queued entries; overflow is dropped and logged.
	BufferSize int `mapstructure:"buffer_size"`
}

type DatabaseConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
}

type EventsConfig struct {
	NATS NATSConfig `mapstructure:"nats"`
}

type NATSConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
	MaxReconnects int    `mapstructure:"max_reconnects"`
}

type LogConfig struct {
	Development bool `mapstructure:"development"`
}

func Load(path string) (*Config, error) {
	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	// Defaults setzen
	viper.SetDefault("server.grpc_port", 50051)
	viper.SetDefault("server.http_port", 8080)
	viper.SetDefault("server.shutdown_timeout", "30s")

	viper.SetDefault("device.transport", "tcp")
	viper.SetDefault("device.port", 6107)
	viper.SetDefault("device.baud_rate", 115200)
	viper.SetDefault("device.dial_timeout", "5s")
	viper.SetDefault("device.write_timeout", "5s")
	viper.SetDefault("device.request_timeout", "30s")
	viper.SetDefault("device.sweep_interval", "1s")
	viper.SetDefault("device.strict_transaction_ids", false)

	viper.SetDefault("reconnect.enabled", true)
	viper.SetDefault("reconnect.initial_delay", "1s")
	viper.SetDefault("reconnect.max_delay", "60s")

	// Auth Defaults
	viper.SetDefault("auth.jwt_secret_env", "JWT_SECRET")
	viper.SetDefault("auth.access_token_ttl", "60m")

	viper.SetDefault("journal.enabled", false)
	viper.SetDefault("journal.buffer_size", 256)
	viper.SetDefault("journal.database.port", 5432)
	viper.SetDefault("journal.database.max_connections", 5)

	viper.SetDefault("events.nats.enabled", false)
	viper.SetDefault("events.nats.url", "nats://localhost:4222")
	viper.SetDefault("events.nats.subject_prefix", "omc.matrix")
	viper.SetDefault("events.nats.max_reconnects", 10)

	viper.SetDefault("log.development", false)

	// Environment Variables mit Prefix OMC_, z.B. OMC_DEVICE_HOST
	viper.SetEnvPrefix("OMC")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects configurations the LW3 client cannot start with.
func (c *Config) Validate() error {
	switch c.Device.Transport {
	case "tcp":
		if c.Device.Host == "" {
			return fmt.Errorf("device.host is required for tcp transport")
		}
	case "serial":
		if c.Device.SerialPort == "" {
			return fmt.Errorf("device.serial_port is required for serial transport")
		}
	default:
		return fmt.Errorf("unknown device.transport %q", c.Device.Transport)
	}

	if c.Device.Port <= 0 || c.Device.Port > 65535 {
		return fmt.Errorf("device.port out of range: %d", c.Device.Port)
	}
	if c.Reconnect.MaxDelay < c.Reconnect.InitialDelay {
		return fmt.Errorf("reconnect.max_delay must not be below reconnect.initial_delay")
	}
	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// JWT Secret aus Environment Variable laden
func (a *AuthConfig) GetJWTSecret() string {
	envVar := a.JWTSecretEnv
	if envVar == "" {
		envVar = "JWT_SECRET" // Fallback
	}

	secret := os.Getenv(envVar)
	if secret == "" {
		// Development Fallback (MIT WARNING!)
		return "dev-secret-change-in-production-min-32-chars"
	}
	return secret
}

// Helper um zu prüfen ob Production-Ready
func (a *AuthConfig) IsProductionReady() bool {
	secret := a.GetJWTSecret()
	return secret != "dev-secret-change-in-production-min-32-chars" && len(secret) >= 32
}
