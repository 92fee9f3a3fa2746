package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Auth modes accepted by AuthConfig.Mode.
const (
	AuthModeStrict     = "strict"
	AuthModePermissive = "permissive"
)

// Config is the root configuration structure for Bumper.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig       `yaml:"site"`
	Listeners []ListenerConfig `yaml:"listeners"`
	HTTP      HTTPConfig       `yaml:"http"`
	Auth      AuthConfig       `yaml:"auth"`
	Relay     RelayConfig      `yaml:"relay"`
	Sweeper   SweeperConfig    `yaml:"sweeper"`
	Services  ServicesConfig   `yaml:"services"`
	Database  DatabaseConfig   `yaml:"database"`
	MQTT      MQTTConfig       `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig   `yaml:"influxdb"`
	Metrics   MetricsConfig    `yaml:"metrics"`
	Events    EventsConfig     `yaml:"events"`
	Logging   LoggingConfig    `yaml:"logging"`
}

// SiteConfig contains deployment-specific information.
type SiteConfig struct {
	Name string `yaml:"name"`

	// Announce is the address handed to devices in service discovery
	// replies. Empty means "first non-loopback IPv4 address of this host".
	Announce string `yaml:"announce"`
}

// ListenerConfig describes one HTTP endpoint. Every listener serves the
// same route table.
type ListenerConfig struct {
	Name string    `yaml:"name"`
	Host string    `yaml:"host"`
	Port int       `yaml:"port"`
	TLS  TLSConfig `yaml:"tls"`
}

// Address returns the host:port the listener binds to.
func (l ListenerConfig) Address() string {
	return net.JoinHostPort(l.Host, strconv.Itoa(l.Port))
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// HTTPConfig contains settings shared by every listener.
type HTTPConfig struct {
	Timeouts     HTTPTimeoutConfig `yaml:"timeouts"`
	MaxBodyBytes int64             `yaml:"max_body_bytes"`
}

// HTTPTimeoutConfig contains HTTP timeout settings in seconds.
type HTTPTimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// AuthConfig contains session settings.
type AuthConfig struct {
	// Mode is "strict" (devices must already be bound to an account) or
	// "permissive" (accounts are provisioned on first contact).
	Mode string `yaml:"mode"`

	// TokenTTL is the lifetime of an access token.
	TokenTTL time.Duration `yaml:"token_ttl"`

	// DefaultAccount is the account id unknown devices are attached to in
	// permissive mode.
	DefaultAccount string `yaml:"default_account"`
}

// Permissive reports whether accounts are auto-provisioned.
func (a AuthConfig) Permissive() bool {
	return a.Mode == AuthModePermissive
}

// RelayConfig contains command relay settings.
type RelayConfig struct {
	// Deadline is how long a devmanager request waits for the bot's reply.
	Deadline time.Duration `yaml:"deadline"`

	// MaxPending caps outstanding commands. 0 means unbounded.
	MaxPending int `yaml:"max_pending"`
}

// SweeperConfig contains maintenance loop settings.
type SweeperConfig struct {
	Interval        time.Duration `yaml:"interval"`
	PresenceSilence time.Duration `yaml:"presence_silence"`
	BusSilence      time.Duration `yaml:"bus_silence"`
	AuditRetention  time.Duration `yaml:"audit_retention"` // zero keeps the journal forever
}

// ServicesConfig contains the endpoints returned by FindBest lookups.
type ServicesConfig struct {
	MsgPort    int    `yaml:"msg_port"`
	UpdateHost string `yaml:"update_host"`
	UpdatePort int    `yaml:"update_port"`
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
	KeepAlive int                 `yaml:"keepalive"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	CAFile   string `yaml:"ca_file"`
	Insecure bool   `yaml:"insecure"`
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

// MetricsConfig contains Prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// EventsConfig contains WebSocket event stream settings.
type EventsConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
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
//  2. YAML file values (override defaults), skipped when path is empty
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: BUMPER_SECTION_KEY
// For example: BUMPER_DATABASE_PATH, BUMPER_AUTH_MODE
//
// Parameters:
//   - path: Path to the YAML configuration file (may be empty)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
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

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration without reading any file.
func Default() *Config {
	return defaultConfig()
}

// defaultConfig returns a Config with the ports and timings real devices expect.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			Name: "bumper",
		},
		Listeners: []ListenerConfig{
			{
				Name: "tls",
				Host: "0.0.0.0",
				Port: 443,
				TLS: TLSConfig{
					Enabled:  true,
					CertFile: "./certs/cert.pem",
					KeyFile:  "./certs/key.pem",
				},
			},
			{
				Name: "plain",
				Host: "0.0.0.0",
				Port: 8007,
			},
		},
		HTTP: HTTPConfig{
			Timeouts: HTTPTimeoutConfig{
				Read:  30,
				Write: 90,
				Idle:  120,
			},
			MaxBodyBytes: 1 << 20,
		},
		Auth: AuthConfig{
			Mode:           AuthModePermissive,
			TokenTTL:       time.Hour,
			DefaultAccount: "tmpuser",
		},
		Relay: RelayConfig{
			Deadline:   10 * time.Second,
			MaxPending: 1024,
		},
		Sweeper: SweeperConfig{
			Interval:        30 * time.Second,
			PresenceSilence: 5 * time.Minute,
			BusSilence:      10 * time.Minute,
			AuditRetention:  30 * 24 * time.Hour,
		},
		Services: ServicesConfig{
			MsgPort:    5223,
			UpdateHost: "47.88.66.164",
			UpdatePort: 8005,
		},
		Database: DatabaseConfig{
			Path:        "./data/bumper.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Enabled: true,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     8883,
				TLS:      true,
				Insecure: true,
				ClientID: "helperbot@bumper/helperbot",
			},
			QoS:       1,
			KeepAlive: 60,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			Bucket:        "bumper",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Events: EventsConfig{
			Enabled:        true,
			Path:           "/api/events",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: BUMPER_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BUMPER_ANNOUNCE"); v != "" {
		cfg.Site.Announce = v
	}

	// Auth
	if v := os.Getenv("BUMPER_AUTH_MODE"); v != "" {
		cfg.Auth.Mode = strings.ToLower(v)
	}
	if v := os.Getenv("BUMPER_AUTH_TOKEN_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Auth.TokenTTL = d
		}
	}

	// Relay
	if v := os.Getenv("BUMPER_RELAY_DEADLINE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Relay.Deadline = d
		}
	}

	// Database
	if v := os.Getenv("BUMPER_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("BUMPER_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("BUMPER_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("BUMPER_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("BUMPER_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("BUMPER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Listener validation
	if len(c.Listeners) == 0 {
		errs = append(errs, "at least one listener is required")
	}
	names := make(map[string]bool, len(c.Listeners))
	ports := make(map[int]bool, len(c.Listeners))
	for i, l := range c.Listeners {
		if l.Name == "" {
			errs = append(errs, fmt.Sprintf("listeners[%d].name is required", i))
		} else if names[l.Name] {
			errs = append(errs, fmt.Sprintf("listeners[%d].name %q is duplicated", i, l.Name))
		}
		names[l.Name] = true

		if l.Port < 1 || l.Port > 65535 {
			errs = append(errs, fmt.Sprintf("listeners[%d].port must be between 1 and 65535", i))
		} else if ports[l.Port] {
			errs = append(errs, fmt.Sprintf("listeners[%d].port %d is duplicated", i, l.Port))
		}
		ports[l.Port] = true

		if l.TLS.Enabled && (l.TLS.CertFile == "" || l.TLS.KeyFile == "") {
			errs = append(errs, fmt.Sprintf("listeners[%d].tls requires cert_file and key_file", i))
		}
	}

	// Auth validation
	switch c.Auth.Mode {
	case AuthModeStrict, AuthModePermissive:
	default:
		errs = append(errs, "auth.mode must be strict or permissive")
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, "auth.token_ttl must be positive")
	}
	if c.Auth.Permissive() && c.Auth.DefaultAccount == "" {
		errs = append(errs, "auth.default_account is required in permissive mode")
	}

	// Relay and sweeper validation
	if c.Relay.Deadline <= 0 {
		errs = append(errs, "relay.deadline must be positive")
	}
	if c.HTTP.Timeouts.Write > 0 && c.GetWriteTimeout() <= c.Relay.Deadline {
		errs = append(errs, "http.timeouts.write must exceed relay.deadline")
	}
	if c.Relay.MaxPending < 0 {
		errs = append(errs, "relay.max_pending must not be negative")
	}
	if c.Sweeper.Interval <= 0 {
		errs = append(errs, "sweeper.interval must be positive")
	}
	if c.Sweeper.AuditRetention < 0 {
		errs = append(errs, "sweeper.audit_retention must not be negative")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// OverrideListenHost points every listener at host. Used by --listen.
func (c *Config) OverrideListenHost(host string) {
	for i := range c.Listeners {
		c.Listeners[i].Host = host
	}
}

// AnnounceAddress returns the configured announce address, falling back to
// the first non-loopback IPv4 address of this host, then to 127.0.0.1.
func (c *Config) AnnounceAddress() string {
	if c.Site.Announce != "" {
		return c.Site.Announce
	}

	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "127.0.0.1"
	}
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipNet.IP.To4(); ip4 != nil {
			return ip4.String()
		}
	}
	return "127.0.0.1"
}

// GetReadTimeout returns the HTTP read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.HTTP.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the HTTP write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.HTTP.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the HTTP idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.HTTP.Timeouts.Idle) * time.Second
}
