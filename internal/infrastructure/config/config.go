package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is everything the hearth reads at boot. Values load in three
// layers: hardcoded defaults, then the YAML file, then HEARTH_* environment
// variables for the handful of settings that carry secrets or vary per host.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Polling   PollingConfig   `yaml:"polling"`
	Devices   []DeviceConfig  `yaml:"devices"`
	Security  SecurityConfig  `yaml:"security"`
}

type SiteConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig delays are in seconds. MaxAttempts 0 retries forever.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig values are in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// PollingConfig holds the site-wide polling defaults. Individual devices
// can override the interval; backoff policy is shared.
type PollingConfig struct {
	// DefaultInterval is the poll interval used when a device does not
	// specify one. In seconds. Default: 30.
	DefaultInterval int `yaml:"default_interval"`

	// BackoffUnit is the per-failure retry delay increment, in seconds.
	// Default: 5.
	BackoffUnit int `yaml:"backoff_unit"`

	// MaxBackoff caps the retry delay, in seconds. Default: 600.
	MaxBackoff int `yaml:"max_backoff"`
}

// DeviceConfig describes a device seeded from configuration at startup.
// Devices declared here are upserted into the registry on boot; devices
// added via the API persist independently.
type DeviceConfig struct {
	// Name is the human-readable device name.
	Name string `yaml:"name"`

	// Slug is the stable identifier used in MQTT topics and API paths.
	// Derived from Name when empty.
	Slug string `yaml:"slug"`

	// Adapter selects the vendor adapter: "httpjson" or "mqttpush".
	Adapter string `yaml:"adapter"`

	// Endpoint is the adapter-specific address. For httpjson this is the
	// device base URL; for mqttpush it is the vendor's state topic.
	Endpoint string `yaml:"endpoint"`

	// Token is an optional bearer token for adapters that authenticate.
	Token string `yaml:"token"`

	// PollInterval overrides polling.default_interval, in seconds.
	PollInterval int `yaml:"poll_interval"`

	// Labels are free-form key/value annotations.
	Labels map[string]string `yaml:"labels"`
}

type SecurityConfig struct {
	JWT       JWTConfig       `yaml:"jwt"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// JWTConfig TTLs are in minutes.
type JWTConfig struct {
	Secret          string `yaml:"secret"`
	AccessTokenTTL  int    `yaml:"access_token_ttl"`
	RefreshTokenTTL int    `yaml:"refresh_token_ttl"`
}

type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
}

// Load reads path, layers it over the defaults, applies HEARTH_*
// environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "site-001",
			Name:     "Hearth",
			Timezone: "UTC",
		},
		Database: DatabaseConfig{
			Path:        "./data/hearth.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "hearth-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8090,
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
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Polling: PollingConfig{
			DefaultInterval: 30,
			BackoffUnit:     5,
			MaxBackoff:      600,
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL:  15,
				RefreshTokenTTL: 1440,
			},
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 100,
			},
		},
	}
}

// applyEnvOverrides covers the settings that are secrets or host-specific.
// Everything else belongs in the YAML file.
func (c *Config) applyEnvOverrides() {
	overrides := []struct {
		env  string
		dest *string
	}{
		{"HEARTH_DATABASE_PATH", &c.Database.Path},
		{"HEARTH_MQTT_HOST", &c.MQTT.Broker.Host},
		{"HEARTH_MQTT_USERNAME", &c.MQTT.Auth.Username},
		{"HEARTH_MQTT_PASSWORD", &c.MQTT.Auth.Password},
		{"HEARTH_API_HOST", &c.API.Host},
		{"HEARTH_INFLUXDB_TOKEN", &c.InfluxDB.Token},
		{"HEARTH_JWT_SECRET", &c.Security.JWT.Secret},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.dest = v
		}
	}
}

// Validate collects every problem rather than stopping at the first, so
// a bad config file surfaces all its errors in one run.
func (c *Config) Validate() error {
	var errs []string
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	if c.Site.ID == "" {
		fail("site.id is required")
	}
	if c.Database.Path == "" {
		fail("database.path is required")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		fail("mqtt.qos must be 0, 1, or 2")
	}
	if c.API.Port < 1 || c.API.Port > 65535 {
		fail("api.port must be between 1 and 65535")
	}

	if c.Polling.DefaultInterval <= 0 {
		fail("polling.default_interval must be positive")
	}
	if c.Polling.BackoffUnit <= 0 {
		fail("polling.backoff_unit must be positive")
	}
	if c.Polling.MaxBackoff < c.Polling.BackoffUnit {
		fail("polling.max_backoff must be at least polling.backoff_unit")
	}

	for i, d := range c.Devices {
		if d.Name == "" {
			fail("devices[%d].name is required", i)
		}
		switch d.Adapter {
		case "httpjson", "mqttpush":
		default:
			fail("devices[%d].adapter must be httpjson or mqttpush", i)
		}
		if d.Endpoint == "" {
			fail("devices[%d].endpoint is required", i)
		}
		if d.PollInterval < 0 {
			fail("devices[%d].poll_interval must not be negative", i)
		}
	}

	// An empty or weak JWT secret would let an attacker forge tokens and
	// control physical devices through the API.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret == "" {
		fail("security.jwt.secret is required (set HEARTH_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		fail("security.jwt.secret must be at least 32 characters for adequate security")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// PollInterval resolves the effective poll interval for one device entry.
func (c *Config) PollInterval(d DeviceConfig) time.Duration {
	if d.PollInterval > 0 {
		return time.Duration(d.PollInterval) * time.Second
	}
	return time.Duration(c.Polling.DefaultInterval) * time.Second
}

func (c *Config) BackoffUnit() time.Duration {
	return time.Duration(c.Polling.BackoffUnit) * time.Second
}

func (c *Config) MaxBackoff() time.Duration {
	return time.Duration(c.Polling.MaxBackoff) * time.Second
}
