package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for tswrite.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Batch      BatchConfig      `yaml:"batch"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	UDP        UDPConfig        `yaml:"udp"`
	DeadLetter DeadLetterConfig `yaml:"dead_letter"`
	Database   DatabaseConfig   `yaml:"database"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	API        APIConfig        `yaml:"api"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// BatchConfig controls the batching write path.
//
// FlushInterval and JitterInterval are counted in TimeUnit.
type BatchConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Actions         int    `yaml:"actions"`
	FlushInterval   int    `yaml:"flush_interval"`
	JitterInterval  int    `yaml:"jitter_interval"`
	TimeUnit        string `yaml:"time_unit"`
	BufferLimit     int    `yaml:"buffer_limit"`
	Consistency     string `yaml:"consistency"`
	Database        string `yaml:"database"`
	RetentionPolicy string `yaml:"retention_policy"`
}

// InfluxDBConfig contains InfluxDB 1.x HTTP connection settings.
type InfluxDBConfig struct {
	Enabled  bool   `yaml:"enabled"`
	URL      string `yaml:"url"`
	Token    string `yaml:"token"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Timeout  int    `yaml:"timeout"`
}

// UDPConfig contains settings for the InfluxDB UDP listener path.
type UDPConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Host            string `yaml:"host"`
	MaxDatagramSize int    `yaml:"max_datagram_size"`
}

// DeadLetterConfig selects where permanently lost points are recorded.
type DeadLetterConfig struct {
	Store       bool   `yaml:"store"`
	Publish     bool   `yaml:"publish"`
	TopicPrefix string `yaml:"topic_prefix"`
	Timeout     int    `yaml:"timeout"`
	MaxLines    int    `yaml:"max_lines"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
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
	Host        string           `yaml:"host"`
	Port        int              `yaml:"port"`
	MaxBodySize int64            `yaml:"max_body_size"`
	TLS         TLSConfig        `yaml:"tls"`
	Timeouts    APITimeoutConfig `yaml:"timeouts"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// timeUnits maps batch.time_unit values to durations.
var timeUnits = map[string]time.Duration{
	"ns": time.Nanosecond,
	"us": time.Microsecond,
	"ms": time.Millisecond,
	"s":  time.Second,
	"m":  time.Minute,
}

var consistencyLevels = []string{"all", "any", "one", "quorum"}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults), skipped when path is empty
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: TSWRITE_SECTION_KEY
// For example: TSWRITE_INFLUXDB_URL, TSWRITE_API_PORT
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Batch: BatchConfig{
			Enabled:       true,
			Actions:       1000,
			FlushInterval: 1000,
			TimeUnit:      "ms",
			BufferLimit:   10000,
			Consistency:   "one",
			Database:      "telemetry",
		},
		InfluxDB: InfluxDBConfig{
			Enabled: true,
			URL:     "http://localhost:8086",
			Timeout: 10,
		},
		UDP: UDPConfig{
			Host:            "localhost",
			MaxDatagramSize: 1400,
		},
		DeadLetter: DeadLetterConfig{
			TopicPrefix: "tswrite",
			Timeout:     5,
			MaxLines:    1000,
		},
		Database: DatabaseConfig{
			Path:        "./data/tswrite.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "tswrite",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host:        "0.0.0.0",
			Port:        8087,
			MaxBodySize: 10 << 20,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: TSWRITE_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	// Batch
	if v := os.Getenv("TSWRITE_BATCH_DATABASE"); v != "" {
		cfg.Batch.Database = v
	}
	if v := os.Getenv("TSWRITE_BATCH_RETENTION_POLICY"); v != "" {
		cfg.Batch.RetentionPolicy = v
	}

	// InfluxDB
	if v := os.Getenv("TSWRITE_INFLUXDB_URL"); v != "" {
		cfg.InfluxDB.URL = v
	}
	if v := os.Getenv("TSWRITE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
	if v := os.Getenv("TSWRITE_INFLUXDB_USERNAME"); v != "" {
		cfg.InfluxDB.Username = v
	}
	if v := os.Getenv("TSWRITE_INFLUXDB_PASSWORD"); v != "" {
		cfg.InfluxDB.Password = v
	}

	// Database
	if v := os.Getenv("TSWRITE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("TSWRITE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("TSWRITE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("TSWRITE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("TSWRITE_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("TSWRITE_API_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing TSWRITE_API_PORT: %w", err)
		}
		cfg.API.Port = port
	}

	// Logging
	if v := os.Getenv("TSWRITE_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	return nil
}

// Validate checks the configuration for errors.
//
// Every problem is collected so a broken file can be fixed in one pass.
func (c *Config) Validate() error {
	var errs []string

	// Batch validation
	if c.Batch.Actions <= 0 {
		errs = append(errs, "batch.actions must be positive")
	}
	if _, ok := timeUnits[c.Batch.TimeUnit]; !ok {
		errs = append(errs, fmt.Sprintf("batch.time_unit %q must be one of ns, us, ms, s, m", c.Batch.TimeUnit))
	}
	if c.Batch.FlushInterval <= 0 {
		errs = append(errs, "batch.flush_interval must be positive")
	}
	if c.Batch.JitterInterval < 0 {
		errs = append(errs, "batch.jitter_interval must not be negative")
	}
	if c.Batch.BufferLimit < 0 {
		errs = append(errs, "batch.buffer_limit must not be negative")
	}
	if !validConsistency(c.Batch.Consistency) {
		errs = append(errs, "batch.consistency must be all, any, one, or quorum")
	}

	// Transport validation
	if !c.InfluxDB.Enabled && !c.UDP.Enabled {
		errs = append(errs, "at least one of influxdb.enabled or udp.enabled is required")
	}
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}
	if c.InfluxDB.Timeout < 0 {
		errs = append(errs, "influxdb.timeout must not be negative")
	}
	if c.UDP.Enabled {
		if c.UDP.Host == "" {
			errs = append(errs, "udp.host is required when udp is enabled")
		}
		if c.UDP.MaxDatagramSize < 64 || c.UDP.MaxDatagramSize > 65507 {
			errs = append(errs, "udp.max_datagram_size must be between 64 and 65507")
		}
	}

	// Dead letter validation
	if c.DeadLetter.Store && c.Database.Path == "" {
		errs = append(errs, "database.path is required when dead_letter.store is enabled")
	}
	if c.DeadLetter.Publish && c.DeadLetter.TopicPrefix == "" {
		errs = append(errs, "dead_letter.topic_prefix is required when dead_letter.publish is enabled")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.API.MaxBodySize <= 0 {
		errs = append(errs, "api.max_body_size must be positive")
	}
	if c.API.TLS.Enabled && (c.API.TLS.CertFile == "" || c.API.TLS.KeyFile == "") {
		errs = append(errs, "api.tls.cert_file and api.tls.key_file are required when tls is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func validConsistency(level string) bool {
	for _, l := range consistencyLevels {
		if level == l {
			return true
		}
	}
	return false
}

// GetFlushInterval returns the batch flush interval as a Duration.
func (c *Config) GetFlushInterval() time.Duration {
	return time.Duration(c.Batch.FlushInterval) * timeUnits[c.Batch.TimeUnit]
}

// GetJitterInterval returns the batch jitter bound as a Duration.
func (c *Config) GetJitterInterval() time.Duration {
	return time.Duration(c.Batch.JitterInterval) * timeUnits[c.Batch.TimeUnit]
}

// GetDeadLetterTimeout returns how long a dead-letter sink may take per report.
func (c *Config) GetDeadLetterTimeout() time.Duration {
	return time.Duration(c.DeadLetter.Timeout) * time.Second
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
