package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	bridgeerrors "wsbridge/pkg/errors"
)

// Config represents the full bridge configuration
type Config struct {
	TCP        TCPConfig       `yaml:"tcp"`
	WS         WSConfig        `yaml:"ws"`
	BufferSize int             `yaml:"buffer_size"`
	Logging    LoggingConfig   `yaml:"logging"`
	Reconnect  ReconnectConfig `yaml:"reconnect"`
	Pending    PendingConfig   `yaml:"pending"`
	History    HistoryConfig   `yaml:"history"`
}

// TCPConfig identifies the legacy device endpoint
type TCPConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// WSConfig identifies the WebSocket listen endpoint
type WSConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// LoggingConfig represents logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ReconnectConfig controls automatic redial of the TCP link after loss.
// Disabled by default: inbound client messages are dropped while the link
// is down.
type ReconnectConfig struct {
	Enabled     bool `yaml:"enabled"`
	MinDelayMs  int  `yaml:"min_delay_ms"`
	MaxDelayMs  int  `yaml:"max_delay_ms"`
	MaxAttempts int  `yaml:"max_attempts"`
}

// MinDelay returns the minimum redial delay
func (c ReconnectConfig) MinDelay() time.Duration {
	return time.Duration(c.MinDelayMs) * time.Millisecond
}

// MaxDelay returns the maximum redial delay
func (c ReconnectConfig) MaxDelay() time.Duration {
	return time.Duration(c.MaxDelayMs) * time.Millisecond
}

// PendingConfig controls buffering of client messages during a link outage.
// Only meaningful when reconnect is enabled.
type PendingConfig struct {
	Enabled bool `yaml:"enabled"`
	Limit   int  `yaml:"limit"`
}

// HistoryConfig controls the optional connection event log
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Backend string `yaml:"backend"` // sqlite | mysql
	DSN     string `yaml:"dsn"`
}

// Default values for optional settings
const (
	DefaultWSHost       = "localhost"
	DefaultWSPort       = 5050
	DefaultBufferSize   = 1024
	DefaultMinDelayMs   = 500
	DefaultMaxDelayMs   = 30000
	DefaultPendingLimit = 256
)

// DefaultConfig returns a configuration with all optional fields populated.
// TCP host and port are required and left empty.
func DefaultConfig() *Config {
	return &Config{
		WS: WSConfig{
			Host: DefaultWSHost,
			Port: DefaultWSPort,
		},
		BufferSize: DefaultBufferSize,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Reconnect: ReconnectConfig{
			Enabled:    false,
			MinDelayMs: DefaultMinDelayMs,
			MaxDelayMs: DefaultMaxDelayMs,
		},
		Pending: PendingConfig{
			Enabled: false,
			Limit:   DefaultPendingLimit,
		},
		History: HistoryConfig{
			Enabled: false,
			Backend: "sqlite",
			DSN:     "./bridge-events.db",
		},
	}
}

// New returns a validated configuration for the given TCP endpoint with
// all other settings at their defaults.
func New(tcpHost string, tcpPort int) (*Config, error) {
	cfg := DefaultConfig()
	cfg.TCP.Host = tcpHost
	cfg.TCP.Port = tcpPort
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfig loads configuration from file and environment variables
// and validates the result.
func LoadConfig(configPath string) (*Config, error) {
	cfg, err := Load(configPath)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Load builds a configuration from defaults, an optional YAML file, and
// environment overrides, without validating. Callers that layer further
// overrides (such as command-line flags) validate afterwards.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		if err := loadFromFile(configPath, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides applies environment variable overrides
func applyEnvOverrides(cfg *Config) {
	if host := os.Getenv("BRIDGE_TCP_HOST"); host != "" {
		cfg.TCP.Host = host
	}

	if port := os.Getenv("BRIDGE_TCP_PORT"); port != "" {
		if val, err := strconv.Atoi(port); err == nil {
			cfg.TCP.Port = val
		}
	}

	if host := os.Getenv("BRIDGE_WS_HOST"); host != "" {
		cfg.WS.Host = host
	}

	if port := os.Getenv("BRIDGE_WS_PORT"); port != "" {
		if val, err := strconv.Atoi(port); err == nil {
			cfg.WS.Port = val
		}
	}

	if size := os.Getenv("BRIDGE_BUFFER_SIZE"); size != "" {
		if val, err := strconv.Atoi(size); err == nil {
			cfg.BufferSize = val
		}
	}

	if level := os.Getenv("BRIDGE_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}

	if format := os.Getenv("BRIDGE_LOG_FORMAT"); format != "" {
		cfg.Logging.Format = format
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.TCP.Host == "" {
		return fmt.Errorf("%w: tcp host cannot be empty", bridgeerrors.ErrInvalidConfig)
	}

	if c.TCP.Port < 1 || c.TCP.Port > 65535 {
		return fmt.Errorf("%w: tcp port %d out of range", bridgeerrors.ErrInvalidConfig, c.TCP.Port)
	}

	if c.WS.Host == "" {
		return fmt.Errorf("%w: ws host cannot be empty", bridgeerrors.ErrInvalidConfig)
	}

	if c.WS.Port < 1 || c.WS.Port > 65535 {
		return fmt.Errorf("%w: ws port %d out of range", bridgeerrors.ErrInvalidConfig, c.WS.Port)
	}

	if c.BufferSize < 1 {
		return fmt.Errorf("%w: buffer size must be positive", bridgeerrors.ErrInvalidConfig)
	}

	if !isValidLogLevel(c.Logging.Level) {
		return fmt.Errorf("%w: invalid log level %q", bridgeerrors.ErrInvalidConfig, c.Logging.Level)
	}

	if c.Reconnect.Enabled {
		if c.Reconnect.MinDelayMs <= 0 || c.Reconnect.MaxDelayMs < c.Reconnect.MinDelayMs {
			return fmt.Errorf("%w: reconnect delays misordered", bridgeerrors.ErrInvalidConfig)
		}
		if c.Reconnect.MaxAttempts < 0 {
			return fmt.Errorf("%w: reconnect max attempts cannot be negative", bridgeerrors.ErrInvalidConfig)
		}
	}

	if c.Pending.Enabled {
		if !c.Reconnect.Enabled {
			return fmt.Errorf("%w: pending buffer requires reconnect", bridgeerrors.ErrInvalidConfig)
		}
		if c.Pending.Limit < 1 {
			return fmt.Errorf("%w: pending limit must be positive", bridgeerrors.ErrInvalidConfig)
		}
	}

	if c.History.Enabled {
		switch c.History.Backend {
		case "sqlite", "mysql":
		default:
			return fmt.Errorf("%w: unsupported history backend %q", bridgeerrors.ErrInvalidConfig, c.History.Backend)
		}
		if c.History.DSN == "" {
			return fmt.Errorf("%w: history dsn cannot be empty", bridgeerrors.ErrInvalidConfig)
		}
	}

	return nil
}

// TCPAddr returns the host:port of the TCP endpoint
func (c *Config) TCPAddr() string {
	return fmt.Sprintf("%s:%d", c.TCP.Host, c.TCP.Port)
}

// WSAddr returns the host:port the WebSocket server listens on
func (c *Config) WSAddr() string {
	return fmt.Sprintf("%s:%d", c.WS.Host, c.WS.Port)
}

// isValidLogLevel checks if the log level is valid
func isValidLogLevel(level string) bool {
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}

// String returns a string representation of the configuration (for logging)
func (c *Config) String() string {
	return fmt.Sprintf("Config{TCP: %s, WS: %s, BufferSize: %d, Reconnect: %v}",
		c.TCPAddr(), c.WSAddr(), c.BufferSize, c.Reconnect.Enabled)
}
