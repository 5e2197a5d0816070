package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// InsecureDevSecret is substituted for an empty JWT secret when dev_mode is
// enabled. It is public knowledge and must never be used in production.
const InsecureDevSecret = "smartpot-dev-only-insecure-signing-secret" //nolint:gosec // documented development default

// knownInsecureSecrets are signing secrets that have shipped in examples and
// are rejected outside dev mode.
var knownInsecureSecrets = []string{
	"secretkeyexample",
	"changeme",
	InsecureDevSecret,
}

// Config is the root configuration structure for Smart Pot Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	DevMode  bool           `yaml:"dev_mode"`
	Database DatabaseConfig `yaml:"database"`
	API      APIConfig      `yaml:"api"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
	Security SecurityConfig `yaml:"security"`

	warnings []string
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
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

// MQTTConfig contains settings for the optional MQTT sensor ingest.
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

// MQTTReconnectConfig contains MQTT reconnection settings in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains settings for the optional InfluxDB reading mirror.
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

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains token settings. TTLs are in minutes.
type JWTConfig struct {
	Secret          string `yaml:"secret"`
	AccessTokenTTL  int    `yaml:"access_token_ttl"`
	RefreshTokenTTL int    `yaml:"refresh_token_ttl"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults); a missing file is not an error
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: SMARTPOT_SECTION_KEY
// For example: SMARTPOT_DATABASE_PATH, SMARTPOT_JWT_SECRET
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			cfg.warn(fmt.Sprintf("config file %s not found, using defaults and environment", path))
		case err != nil:
			return nil, fmt.Errorf("reading config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file: %w", err)
			}
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}

	cfg.applyDevDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadDotEnv populates the process environment from dotenv files.
// Variables already set in the environment win. Missing files are skipped.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

// defaultConfig returns a Config with sensible defaults.
// The JWT secret has no default.
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:        "./data/smartpot.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8000,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "smartpot-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			URL:           "http://localhost:8086",
			Org:           "smartpot",
			Bucket:        "sensor_readings",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL:  15,
				RefreshTokenTTL: 1440,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) error {
	var errs []string

	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %q is not an integer", key, v))
				return
			}
			*dst = n
		}
	}
	setBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %q is not a boolean", key, v))
				return
			}
			*dst = b
		}
	}

	setBool("SMARTPOT_DEV_MODE", &cfg.DevMode)

	// Database
	setString("SMARTPOT_DATABASE_PATH", &cfg.Database.Path)

	// API
	setString("SMARTPOT_API_HOST", &cfg.API.Host)
	setInt("SMARTPOT_API_PORT", &cfg.API.Port)

	// MQTT
	setBool("SMARTPOT_MQTT_ENABLED", &cfg.MQTT.Enabled)
	setString("SMARTPOT_MQTT_HOST", &cfg.MQTT.Broker.Host)
	setString("SMARTPOT_MQTT_USERNAME", &cfg.MQTT.Auth.Username)
	setString("SMARTPOT_MQTT_PASSWORD", &cfg.MQTT.Auth.Password)

	// InfluxDB
	setBool("SMARTPOT_INFLUXDB_ENABLED", &cfg.InfluxDB.Enabled)
	setString("SMARTPOT_INFLUXDB_URL", &cfg.InfluxDB.URL)
	setString("SMARTPOT_INFLUXDB_TOKEN", &cfg.InfluxDB.Token)

	// Logging
	setString("SMARTPOT_LOG_LEVEL", &cfg.Logging.Level)
	setString("SMARTPOT_LOG_FORMAT", &cfg.Logging.Format)

	// Security - JWT secret (IMPORTANT: always set in production)
	setString("SMARTPOT_JWT_SECRET", &cfg.Security.JWT.Secret)

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// applyDevDefaults fills insecure development defaults when dev mode is on
// and records a warning for each one.
func (c *Config) applyDevDefaults() {
	if !c.DevMode {
		return
	}
	if c.Security.JWT.Secret == "" {
		c.Security.JWT.Secret = InsecureDevSecret
		c.warn("dev_mode: using the built-in insecure JWT secret; set SMARTPOT_JWT_SECRET before deploying")
	}
}

func (c *Config) warn(msg string) {
	c.warnings = append(c.warnings, msg)
}

// Warnings returns non-fatal configuration issues detected during Load.
func (c *Config) Warnings() []string {
	return c.warnings
}

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.API.TLS.Enabled && (c.API.TLS.CertFile == "" || c.API.TLS.KeyFile == "") {
		errs = append(errs, "api.tls requires cert_file and key_file")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
	}

	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when influxdb is enabled")
	}

	if c.Security.JWT.AccessTokenTTL <= 0 {
		errs = append(errs, "security.jwt.access_token_ttl must be positive")
	}
	if c.Security.JWT.RefreshTokenTTL <= 0 {
		errs = append(errs, "security.jwt.refresh_token_ttl must be positive")
	}

	// The signing secret protects every user's data: anyone holding it can
	// mint a token for any user id.
	const minJWTSecretLength = 32
	switch {
	case c.Security.JWT.Secret == "":
		errs = append(errs, "security.jwt.secret is required (set SMARTPOT_JWT_SECRET environment variable)")
	case !c.DevMode && isKnownInsecureSecret(c.Security.JWT.Secret):
		errs = append(errs, "security.jwt.secret is a published example value and must be replaced")
	case len(c.Security.JWT.Secret) < minJWTSecretLength:
		errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func isKnownInsecureSecret(secret string) bool {
	for _, s := range knownInsecureSecrets {
		if secret == s {
			return true
		}
	}
	return false
}

// ListenAddr returns the host:port the API server binds to.
func (c *Config) ListenAddr() string {
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

// AccessTTL returns the access token lifetime.
func (j JWTConfig) AccessTTL() time.Duration {
	return time.Duration(j.AccessTokenTTL) * time.Minute
}

// RefreshTTL returns the refresh token lifetime.
func (j JWTConfig) RefreshTTL() time.Duration {
	return time.Duration(j.RefreshTokenTTL) * time.Minute
}
