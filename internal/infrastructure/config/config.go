package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for indihub.
// All configuration is loaded from YAML and can be overridden by environment
// variables and then by command-line flags.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Limits       LimitsConfig       `yaml:"limits"`
	Control      ControlConfig      `yaml:"control"`
	Drivers      []string           `yaml:"drivers"`
	LocalDrivers LocalDriversConfig `yaml:"local_drivers"`
	DriverLog    DriverLogConfig    `yaml:"driver_log"`
	Logging      LoggingConfig      `yaml:"logging"`
	Database     DatabaseConfig     `yaml:"database"`
	MQTT         MQTTConfig         `yaml:"mqtt"`
	InfluxDB     InfluxDBConfig     `yaml:"influxdb"`
	API          APIConfig          `yaml:"api"`
	Discovery    DiscoveryConfig    `yaml:"discovery"`
	Telemetry    TelemetryConfig    `yaml:"telemetry"`
}

// ServerConfig contains the protocol listener settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// LimitsConfig contains the broker's operational limits.
type LimitsConfig struct {
	// MaxQueueMB is the queued megabytes above which a client is disconnected.
	MaxQueueMB int `yaml:"max_queue_mb"`

	// MaxStreamMB is the queued megabytes above which streaming BLOB frames
	// are dropped for a client. 0 disables dropping.
	MaxStreamMB int `yaml:"max_stream_mb"`

	// MaxRestarts caps restarts per driver. 0 means unlimited.
	MaxRestarts int `yaml:"max_restarts"`

	// RestartDelay is the wait before relaunching a failed driver (seconds).
	RestartDelay int `yaml:"restart_delay"`

	// TickInterval is how often the restart list is serviced (milliseconds).
	TickInterval int `yaml:"tick_interval"`
}

// ControlConfig contains the dynamic control channel settings.
type ControlConfig struct {
	// FIFO is the path of the named pipe read for start/stop commands.
	// Empty disables the control channel.
	FIFO string `yaml:"fifo"`
}

// LocalDriversConfig controls how local drivers are reached.
type LocalDriversConfig struct {
	// Mode is "fifo" (driver FIFOs created by an external launcher) or
	// "exec" (the broker spawns the driver binary).
	Mode string `yaml:"mode"`

	// FIFODir holds <driver>.in and <driver>.out in fifo mode.
	FIFODir string `yaml:"fifo_dir"`

	// StopTimeout is how long an exec-mode driver gets to exit after
	// SIGTERM (seconds).
	StopTimeout int `yaml:"stop_timeout"`

	// DialTimeout bounds remote driver connects (seconds).
	DialTimeout int `yaml:"dial_timeout"`
}

// DriverLogConfig contains the driver message log settings.
type DriverLogConfig struct {
	// Dir receives <YYYY-MM-DD>.islog files. Empty disables the log.
	Dir string `yaml:"dir"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
	// Retention is how many days of broker events are kept. 0 keeps all.
	Retention int `yaml:"retention_days"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
	// AcceptControl subscribes to the control topic and executes the
	// start/stop commands published there.
	AcceptControl bool `yaml:"accept_control"`
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

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled   bool             `yaml:"enabled"`
	Host      string           `yaml:"host"`
	Port      int              `yaml:"port"`
	Timeouts  APITimeoutConfig `yaml:"timeouts"`
	CORS      CORSConfig       `yaml:"cors"`
	WebSocket WebSocketConfig  `yaml:"websocket"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains event stream settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// DiscoveryConfig contains mDNS/DNS-SD advertisement settings.
type DiscoveryConfig struct {
	Enabled bool `yaml:"enabled"`
	// Instance is the advertised service instance name. Defaults to the
	// host name.
	Instance string `yaml:"instance"`
	Domain   string `yaml:"domain"`
}

// TelemetryConfig controls periodic broker statistics collection.
type TelemetryConfig struct {
	// Interval between snapshots (seconds). 0 disables collection.
	Interval int `yaml:"interval"`
}

// Load reads configuration from a YAML file and applies environment variable
// overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults), skipped when path is empty
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern INDIHUB_SECTION_KEY, for example
// INDIHUB_SERVER_PORT or INDIHUB_MQTT_HOST.
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

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

// defaultConfig returns a Config with the stock broker limits.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "",
			Port: 7624,
		},
		Limits: LimitsConfig{
			MaxQueueMB:   128,
			MaxStreamMB:  5,
			MaxRestarts:  0,
			RestartDelay: 10,
			TickInterval: 1000,
		},
		LocalDrivers: LocalDriversConfig{
			Mode:        "fifo",
			FIFODir:     "/tmp/indihub",
			StopTimeout: 5,
			DialTimeout: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Database: DatabaseConfig{
			Enabled:     false,
			Path:        "./data/indihub.db",
			WALMode:     true,
			BusyTimeout: 5,
			Retention:   30,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "indihub",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			URL:           "http://localhost:8086",
			Bucket:        "indihub",
			BatchSize:     100,
			FlushInterval: 10,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8624,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
			WebSocket: WebSocketConfig{
				MaxMessageSize: 8192,
				PingInterval:   30,
				PongTimeout:    10,
			},
		},
		Discovery: DiscoveryConfig{
			Domain: "local.",
		},
		Telemetry: TelemetryConfig{
			Interval: 10,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the
// configuration. Malformed numbers are reported rather than ignored.
func applyEnvOverrides(cfg *Config) error {
	strs := map[string]*string{
		"INDIHUB_SERVER_HOST":        &cfg.Server.Host,
		"INDIHUB_CONTROL_FIFO":       &cfg.Control.FIFO,
		"INDIHUB_LOCAL_DRIVERS_MODE": &cfg.LocalDrivers.Mode,
		"INDIHUB_LOCAL_DRIVERS_DIR":  &cfg.LocalDrivers.FIFODir,
		"INDIHUB_DRIVER_LOG_DIR":     &cfg.DriverLog.Dir,
		"INDIHUB_LOGGING_LEVEL":      &cfg.Logging.Level,
		"INDIHUB_DATABASE_PATH":      &cfg.Database.Path,
		"INDIHUB_MQTT_HOST":          &cfg.MQTT.Broker.Host,
		"INDIHUB_MQTT_USERNAME":      &cfg.MQTT.Auth.Username,
		"INDIHUB_MQTT_PASSWORD":      &cfg.MQTT.Auth.Password,
		"INDIHUB_INFLUXDB_URL":       &cfg.InfluxDB.URL,
		"INDIHUB_INFLUXDB_TOKEN":     &cfg.InfluxDB.Token,
		"INDIHUB_API_HOST":           &cfg.API.Host,
		"INDIHUB_DISCOVERY_INSTANCE": &cfg.Discovery.Instance,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"INDIHUB_SERVER_PORT":          &cfg.Server.Port,
		"INDIHUB_LIMITS_MAX_QUEUE_MB":  &cfg.Limits.MaxQueueMB,
		"INDIHUB_LIMITS_MAX_STREAM_MB": &cfg.Limits.MaxStreamMB,
		"INDIHUB_LIMITS_MAX_RESTARTS":  &cfg.Limits.MaxRestarts,
		"INDIHUB_MQTT_PORT":            &cfg.MQTT.Broker.Port,
		"INDIHUB_API_PORT":             &cfg.API.Port,
	}
	var errs []string
	for key, dst := range ints {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %q is not a number", key, v))
			continue
		}
		*dst = n
	}

	if v := os.Getenv("INDIHUB_DRIVERS"); v != "" {
		cfg.Drivers = strings.Fields(v)
	}

	if len(errs) > 0 {
		return fmt.Errorf("environment overrides: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	if c.Limits.MaxQueueMB < 1 {
		errs = append(errs, "limits.max_queue_mb must be at least 1")
	}
	if c.Limits.MaxStreamMB < 0 {
		errs = append(errs, "limits.max_stream_mb must not be negative")
	}
	if c.Limits.MaxRestarts < 0 {
		errs = append(errs, "limits.max_restarts must not be negative")
	}
	if c.Limits.RestartDelay < 1 {
		errs = append(errs, "limits.restart_delay must be at least 1 second")
	}
	if c.Limits.TickInterval < 10 {
		errs = append(errs, "limits.tick_interval must be at least 10 milliseconds")
	}

	switch c.LocalDrivers.Mode {
	case "fifo":
		if c.LocalDrivers.FIFODir == "" {
			errs = append(errs, "local_drivers.fifo_dir is required in fifo mode")
		}
	case "exec":
	default:
		errs = append(errs, "local_drivers.mode must be fifo or exec")
	}

	for _, name := range c.Drivers {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, "drivers must not contain empty names")
			break
		}
	}

	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when the database is enabled")
	}

	if c.MQTT.Enabled {
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, "mqtt.qos must be 0, 1, or 2")
		}
		if c.MQTT.Broker.Host == "" {
			errs = append(errs, "mqtt.broker.host is required when MQTT is enabled")
		}
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" || c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.url, influxdb.org and influxdb.bucket are required when InfluxDB is enabled")
		}
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.API.Enabled && c.API.Port == c.Server.Port && c.API.Host == c.Server.Host {
		errs = append(errs, "api.port must differ from server.port")
	}

	if c.Telemetry.Interval < 0 {
		errs = append(errs, "telemetry.interval must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// MaxQueueBytes returns limits.max_queue_mb in bytes.
func (c *Config) MaxQueueBytes() int {
	return c.Limits.MaxQueueMB * 1024 * 1024
}

// MaxStreamBytes returns limits.max_stream_mb in bytes.
func (c *Config) MaxStreamBytes() int {
	return c.Limits.MaxStreamMB * 1024 * 1024
}

// RestartDelay returns the driver restart delay as a Duration.
func (c *Config) RestartDelay() time.Duration {
	return time.Duration(c.Limits.RestartDelay) * time.Second
}

// TickInterval returns the restart list service interval as a Duration.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Limits.TickInterval) * time.Millisecond
}

// ListenAddr returns the protocol listener address.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// APIAddr returns the HTTP API listener address.
func (c *Config) APIAddr() string {
	return fmt.Sprintf("%s:%d", c.API.Host, c.API.Port)
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
