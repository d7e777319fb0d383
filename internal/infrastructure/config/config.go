package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for SpoolDock Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Printers  PrintersConfig  `yaml:"printers"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// PrintersConfig contains settings for the printer session layer.
type PrintersConfig struct {
	// GracePeriod is how long (seconds) a connection is still reported as
	// connected after an unexpected drop, to suppress UI flapping.
	GracePeriod int `yaml:"grace_period"`

	// ConnectTimeout is the maximum time (seconds) to wait for the MQTT
	// session and authentication to come up before Connect fails.
	ConnectTimeout int `yaml:"connect_timeout"`

	// AutoConnectDelay is the startup delay (seconds) before the
	// auto-connect sweep runs.
	AutoConnectDelay int `yaml:"auto_connect_delay"`

	// QoS is the MQTT QoS level used for report subscriptions and
	// request publishes.
	QoS int `yaml:"qos"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings for telemetry history.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// DiscoveryConfig contains printer discovery listener settings.
type DiscoveryConfig struct {
	Enabled bool `yaml:"enabled"`

	// Port is the UDP port SSDP announcements arrive on.
	Port int `yaml:"port"`

	// TTL is how long (seconds) a discovered printer stays listed
	// after its last announcement.
	TTL int `yaml:"ttl"`
}

// LoggingConfig contains structured logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains API authentication settings.
type SecurityConfig struct {
	// APIKeysEnabled enforces X-API-Key authentication on the REST API.
	// WebSocket and health endpoints remain open for local UI devices.
	APIKeysEnabled bool `yaml:"api_keys_enabled"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: SPOOLDOCK_SECTION_KEY
// For example: SPOOLDOCK_DATABASE_PATH, SPOOLDOCK_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := Default()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with sensible defaults.
// A SpoolDock instance with no config file runs entirely from these.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:        "./data/spooldock.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Printers: PrintersConfig{
			GracePeriod:      30,
			ConnectTimeout:   10,
			AutoConnectDelay: 1,
			QoS:              0,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 3000,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			Enabled:       false,
			BatchSize:     100,
			FlushInterval: 10,
		},
		Discovery: DiscoveryConfig{
			Enabled: true,
			Port:    2021,
			TTL:     300,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: SPOOLDOCK_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("SPOOLDOCK_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// API
	if v := os.Getenv("SPOOLDOCK_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("SPOOLDOCK_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// Printers
	if v := os.Getenv("SPOOLDOCK_PRINTERS_GRACE_PERIOD"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			cfg.Printers.GracePeriod = secs
		}
	}

	// InfluxDB
	if v := os.Getenv("SPOOLDOCK_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("SPOOLDOCK_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// Printer session validation
	if c.Printers.GracePeriod < 0 {
		errs = append(errs, "printers.grace_period must not be negative")
	}
	if c.Printers.ConnectTimeout < 1 {
		errs = append(errs, "printers.connect_timeout must be at least 1 second")
	}
	if c.Printers.QoS < 0 || c.Printers.QoS > 2 {
		errs = append(errs, "printers.qos must be 0, 1, or 2")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// InfluxDB validation (only when enabled)
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Token == "" {
			errs = append(errs, "influxdb.token is required when influxdb is enabled (set SPOOLDOCK_INFLUXDB_TOKEN)")
		}
	}

	// Discovery validation
	if c.Discovery.Enabled && (c.Discovery.Port < 1 || c.Discovery.Port > 65535) {
		errs = append(errs, "discovery.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetGracePeriod returns the connectivity grace window as a Duration.
func (c *Config) GetGracePeriod() time.Duration {
	return time.Duration(c.Printers.GracePeriod) * time.Second
}

// GetConnectTimeout returns the printer connect timeout as a Duration.
func (c *Config) GetConnectTimeout() time.Duration {
	return time.Duration(c.Printers.ConnectTimeout) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
