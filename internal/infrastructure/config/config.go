package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the MELCloud bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Bridge      BridgeConfig      `yaml:"bridge"`
	MELCloud    MELCloudConfig    `yaml:"melcloud"`
	Coordinator CoordinatorConfig `yaml:"coordinator"`
	Database    DatabaseConfig    `yaml:"database"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	API         APIConfig         `yaml:"api"`
	WebSocket   WebSocketConfig   `yaml:"websocket"`
	InfluxDB    InfluxDBConfig    `yaml:"influxdb"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// BridgeConfig identifies this bridge instance on MQTT.
type BridgeConfig struct {
	ID          string `yaml:"id"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// MELCloudConfig contains MELCloud account and accessory settings.
type MELCloudConfig struct {
	BaseURL        string `yaml:"base_url"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	Language       int    `yaml:"language"`
	AppVersion     string `yaml:"app_version"`
	RequestTimeout int    `yaml:"request_timeout"`

	// Accessory information overrides. Empty values fall back to what
	// MELCloud reports (serial number) or to built-in defaults.
	Model        string `yaml:"model"`
	Manufacturer string `yaml:"manufacturer"`
	SerialNumber string `yaml:"serial_number"`
}

// CoordinatorConfig contains request coordinator settings.
type CoordinatorConfig struct {
	// CacheTTL is how long a fetched snapshot is served, in seconds.
	CacheTTL int `yaml:"cache_ttl"`

	// FetchTimeout bounds a single device fetch, in seconds.
	FetchTimeout int `yaml:"fetch_timeout"`

	// UpdateTimeout bounds a single device update, in seconds.
	UpdateTimeout int `yaml:"update_timeout"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains WebSocket event stream settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: MELCLOUD_BRIDGE_SECTION_KEY
// For example: MELCLOUD_BRIDGE_MELCLOUD_PASSWORD, MELCLOUD_BRIDGE_API_PORT
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Bridge: BridgeConfig{
			ID:          "melcloud-01",
			TopicPrefix: "melcloud",
		},
		MELCloud: MELCloudConfig{
			BaseURL:        "https://app.melcloud.com/Mitsubishi.Wifi.Client/",
			Language:       0,
			AppVersion:     "1.9.3.0",
			RequestTimeout: 15,
			Manufacturer:   "Mitsubishi",
		},
		Coordinator: CoordinatorConfig{
			CacheTTL:      60,
			FetchTimeout:  15,
			UpdateTimeout: 15,
		},
		Database: DatabaseConfig{
			Path:        "./data/melcloud.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Enabled: true,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "melcloud-bridge",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8088,
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
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: MELCLOUD_BRIDGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// MELCloud credentials
	if v := os.Getenv("MELCLOUD_BRIDGE_MELCLOUD_USERNAME"); v != "" {
		cfg.MELCloud.Username = v
	}
	if v := os.Getenv("MELCLOUD_BRIDGE_MELCLOUD_PASSWORD"); v != "" {
		cfg.MELCloud.Password = v
	}
	if v := os.Getenv("MELCLOUD_BRIDGE_MELCLOUD_BASE_URL"); v != "" {
		cfg.MELCloud.BaseURL = v
	}

	// Coordinator
	if v := os.Getenv("MELCLOUD_BRIDGE_COORDINATOR_CACHE_TTL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Coordinator.CacheTTL = n
		}
	}

	// Database
	if v := os.Getenv("MELCLOUD_BRIDGE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("MELCLOUD_BRIDGE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("MELCLOUD_BRIDGE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("MELCLOUD_BRIDGE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("MELCLOUD_BRIDGE_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("MELCLOUD_BRIDGE_API_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = n
		}
	}

	// InfluxDB
	if v := os.Getenv("MELCLOUD_BRIDGE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("MELCLOUD_BRIDGE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Bridge.ID == "" {
		errs = append(errs, "bridge.id is required")
	}
	if c.Bridge.TopicPrefix == "" || strings.ContainsAny(c.Bridge.TopicPrefix, "+#/") {
		errs = append(errs, "bridge.topic_prefix must be a single topic level without wildcards")
	}

	// MELCloud credentials are required; nothing works without a session.
	if c.MELCloud.Username == "" {
		errs = append(errs, "melcloud.username is required (set MELCLOUD_BRIDGE_MELCLOUD_USERNAME)")
	}
	if c.MELCloud.Password == "" {
		errs = append(errs, "melcloud.password is required (set MELCLOUD_BRIDGE_MELCLOUD_PASSWORD)")
	}
	if c.MELCloud.RequestTimeout < 1 {
		errs = append(errs, "melcloud.request_timeout must be at least 1 second")
	}

	if c.Coordinator.CacheTTL < 1 {
		errs = append(errs, "coordinator.cache_ttl must be at least 1 second")
	}
	if c.Coordinator.FetchTimeout < 1 {
		errs = append(errs, "coordinator.fetch_timeout must be at least 1 second")
	}
	if c.Coordinator.UpdateTimeout < 1 {
		errs = append(errs, "coordinator.update_timeout must be at least 1 second")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when influxdb is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetCacheTTL returns the coordinator cache lifetime as a Duration.
func (c *Config) GetCacheTTL() time.Duration {
	return time.Duration(c.Coordinator.CacheTTL) * time.Second
}

// GetFetchTimeout returns the device fetch timeout as a Duration.
func (c *Config) GetFetchTimeout() time.Duration {
	return time.Duration(c.Coordinator.FetchTimeout) * time.Second
}

// GetUpdateTimeout returns the device update timeout as a Duration.
func (c *Config) GetUpdateTimeout() time.Duration {
	return time.Duration(c.Coordinator.UpdateTimeout) * time.Second
}

// GetRequestTimeout returns the MELCloud HTTP client timeout as a Duration.
func (c *Config) GetRequestTimeout() time.Duration {
	return time.Duration(c.MELCloud.RequestTimeout) * time.Second
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
