package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const validJWTSecret = "test-secret-key-at-least-32-chars!"

// clearEnv blanks every SMARTPOT_* variable the loader reads so the
// developer's shell cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"SMARTPOT_DEV_MODE",
		"SMARTPOT_DATABASE_PATH",
		"SMARTPOT_API_HOST",
		"SMARTPOT_API_PORT",
		"SMARTPOT_MQTT_ENABLED",
		"SMARTPOT_MQTT_HOST",
		"SMARTPOT_MQTT_USERNAME",
		"SMARTPOT_MQTT_PASSWORD",
		"SMARTPOT_INFLUXDB_ENABLED",
		"SMARTPOT_INFLUXDB_URL",
		"SMARTPOT_INFLUXDB_TOKEN",
		"SMARTPOT_LOG_LEVEL",
		"SMARTPOT_LOG_FORMAT",
		"SMARTPOT_JWT_SECRET",
	} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
database:
  path: "/tmp/smartpot-test.db"
  wal_mode: true
  busy_timeout: 5
api:
  host: "127.0.0.1"
  port: 9000
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
    access_token_ttl: 30
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/tmp/smartpot-test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/smartpot-test.db")
	}
	if cfg.ListenAddr() != "127.0.0.1:9000" {
		t.Errorf("ListenAddr() = %q, want %q", cfg.ListenAddr(), "127.0.0.1:9000")
	}
	if cfg.Security.JWT.AccessTokenTTL != 30 {
		t.Errorf("AccessTokenTTL = %d, want 30", cfg.Security.JWT.AccessTokenTTL)
	}
	// Unset values keep their defaults.
	if cfg.Security.JWT.RefreshTokenTTL != 1440 {
		t.Errorf("RefreshTokenTTL = %d, want default 1440", cfg.Security.JWT.RefreshTokenTTL)
	}
	if len(cfg.Warnings()) != 0 {
		t.Errorf("Warnings() = %v, want none", cfg.Warnings())
	}
}

func TestLoad_MissingFileUsesEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("SMARTPOT_JWT_SECRET", validJWTSecret)
	t.Setenv("SMARTPOT_DATABASE_PATH", "/var/lib/smartpot/pots.db")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Path != "/var/lib/smartpot/pots.db" {
		t.Errorf("Database.Path = %q, want env override", cfg.Database.Path)
	}
	if len(cfg.Warnings()) != 1 {
		t.Errorf("Warnings() = %v, want one missing-file warning", cfg.Warnings())
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "invalid: [yaml: content")

	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_MissingSecret(t *testing.T) {
	clearEnv(t)

	_, err := Load("")
	if err == nil {
		t.Fatal("Load() expected error without a JWT secret, got nil")
	}
	if !strings.Contains(err.Error(), "SMARTPOT_JWT_SECRET") {
		t.Errorf("error %q should name SMARTPOT_JWT_SECRET", err)
	}
}

func TestLoad_DevModeInsecureSecret(t *testing.T) {
	clearEnv(t)
	t.Setenv("SMARTPOT_DEV_MODE", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Security.JWT.Secret != InsecureDevSecret {
		t.Errorf("Secret = %q, want InsecureDevSecret", cfg.Security.JWT.Secret)
	}
	if len(cfg.Warnings()) == 0 {
		t.Error("Warnings() empty, want insecure-secret warning")
	}
}

func TestLoad_InvalidEnvValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"non-numeric port", "SMARTPOT_API_PORT", "eighty"},
		{"non-boolean flag", "SMARTPOT_MQTT_ENABLED", "sometimes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("SMARTPOT_JWT_SECRET", validJWTSecret)
			t.Setenv(tt.key, tt.value)

			if _, err := Load(""); err == nil {
				t.Errorf("Load() with %s=%q expected error, got nil", tt.key, tt.value)
			}
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	content := "SMARTPOT_JWT_SECRET=" + validJWTSecret + "\nSMARTPOT_API_PORT=8123\n"
	if err := os.WriteFile(envPath, []byte(content), 0600); err != nil {
		t.Fatalf("writing .env: %v", err)
	}
	// t.Setenv above registered cleanup for these keys; unset them so
	// godotenv treats them as absent.
	os.Unsetenv("SMARTPOT_JWT_SECRET")
	os.Unsetenv("SMARTPOT_API_PORT")

	if err := LoadDotEnv(envPath, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.API.Port != 8123 {
		t.Errorf("API.Port = %d, want 8123 from .env", cfg.API.Port)
	}
}

func TestConfig_Validate(t *testing.T) {
	base := func() *Config {
		cfg := defaultConfig()
		cfg.Security.JWT.Secret = validJWTSecret
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid config", func(*Config) {}, false},
		{"missing database path", func(c *Config) { c.Database.Path = "" }, true},
		{"port too high", func(c *Config) { c.API.Port = 70000 }, true},
		{"invalid QoS", func(c *Config) { c.MQTT.QoS = 3 }, true},
		{"tls without cert", func(c *Config) { c.API.TLS.Enabled = true }, true},
		{"mqtt enabled without host", func(c *Config) {
			c.MQTT.Enabled = true
			c.MQTT.Broker.Host = ""
		}, true},
		{"influx enabled without bucket", func(c *Config) {
			c.InfluxDB.Enabled = true
			c.InfluxDB.Bucket = ""
		}, true},
		{"zero access ttl", func(c *Config) { c.Security.JWT.AccessTokenTTL = 0 }, true},
		{"short secret", func(c *Config) { c.Security.JWT.Secret = "too-short" }, true},
		{"original example secret", func(c *Config) { c.Security.JWT.Secret = "secretkeyexample" }, true},
		{"dev secret outside dev mode", func(c *Config) { c.Security.JWT.Secret = InsecureDevSecret }, true},
		{"dev secret in dev mode", func(c *Config) {
			c.DevMode = true
			c.Security.JWT.Secret = InsecureDevSecret
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTimeoutsAndTTLs(t *testing.T) {
	cfg := defaultConfig()

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %vs, want 30s", got)
	}
	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %vs, want 60s", got)
	}
	if got := cfg.Security.JWT.AccessTTL().Minutes(); got != 15 {
		t.Errorf("AccessTTL() = %vm, want 15m", got)
	}
	if got := cfg.Security.JWT.RefreshTTL().Hours(); got != 24 {
		t.Errorf("RefreshTTL() = %vh, want 24h", got)
	}
}
