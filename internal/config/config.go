package config

import (
	"fmt"
	"time"
)

// Database drivers understood by the store factory.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	LogFormat         string        `mapstructure:"log_format" yaml:"log_format"`

	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Redis    RedisConfig    `mapstructure:"redis" yaml:"redis"`
	JWT      JWTConfig      `mapstructure:"jwt" yaml:"jwt"`
	WS       WSConfig       `mapstructure:"ws" yaml:"ws"`
}

// DatabaseConfig selects the durable message store.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"`
	DSN    string `mapstructure:"dsn" yaml:"dsn"`
}

// RedisConfig enables the shared presence registry and cross-instance fan-out.
// An empty Addr keeps everything in-process.
type RedisConfig struct {
	Addr          string `mapstructure:"addr" yaml:"addr"`
	Password      string `mapstructure:"password" yaml:"password"`
	DB            int    `mapstructure:"db" yaml:"db"`
	ChannelPrefix string `mapstructure:"channel_prefix" yaml:"channel_prefix"`
}

// JWTConfig controls how connection tokens are validated.
type JWTConfig struct {
	Secret   string `mapstructure:"secret" yaml:"secret"`
	Issuer   string `mapstructure:"issuer" yaml:"issuer"`
	Audience string `mapstructure:"audience" yaml:"audience"`
	Required bool   `mapstructure:"required" yaml:"required"`
}

// WSConfig tunes the WebSocket transport.
type WSConfig struct {
	AllowMultipleSessions bool          `mapstructure:"allow_multiple_sessions" yaml:"allow_multiple_sessions"`
	OutboundBuffer        int           `mapstructure:"outbound_buffer" yaml:"outbound_buffer"`
	MaxMessageBytes       int64         `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	IdleTimeout           time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	PingInterval          time.Duration `mapstructure:"ping_interval" yaml:"ping_interval"`
	RateLimitPerMinute    int           `mapstructure:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
	AllowedOrigins        []string      `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		LogFormat:         "console",
		Database: DatabaseConfig{
			Driver: DriverSQLite,
			DSN:    "relay.db",
		},
		Redis: RedisConfig{
			ChannelPrefix: "relay:",
		},
		JWT: JWTConfig{
			Issuer:   "greentech",
			Audience: "greentech-chat",
		},
		WS: WSConfig{
			AllowMultipleSessions: true,
			OutboundBuffer:        64,
			MaxMessageBytes:       1 << 20,
			PingInterval:          30 * time.Second,
			RateLimitPerMinute:    0,
		},
	}
}

// Validate reports configuration that cannot be served.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database dsn is required")
	}
	if c.WS.OutboundBuffer <= 0 {
		return fmt.Errorf("ws.outbound_buffer must be positive, got %d", c.WS.OutboundBuffer)
	}
	if c.WS.MaxMessageBytes <= 0 {
		return fmt.Errorf("ws.max_message_bytes must be positive, got %d", c.WS.MaxMessageBytes)
	}
	if c.JWT.Required && c.JWT.Secret == "" {
		return fmt.Errorf("jwt.required is set but jwt.secret is empty")
	}
	return nil
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.Database.Driver != "" {
		c.Database.Driver = other.Database.Driver
	}
	if other.Database.DSN != "" {
		c.Database.DSN = other.Database.DSN
	}
	if other.Redis.Addr != "" {
		c.Redis.Addr = other.Redis.Addr
	}
}
