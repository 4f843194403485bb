// Package config loads daemon settings from a YAML file with environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/org/legacyvault/internal/crypto"
	"github.com/org/legacyvault/internal/objectstore"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "LEGACY_"

// Config contains server configuration parameters.
type Config struct {
	ListenAddr  string `yaml:"listen_addr" env:"LISTEN_ADDR"`
	TLSCertFile string `yaml:"tls_cert" env:"TLS_CERT"`
	TLSKeyFile  string `yaml:"tls_key" env:"TLS_KEY"`
	LogLevel    string `yaml:"log_level" env:"LOG_LEVEL"`
	// LogFormat is "console" or "json".
	LogFormat string `yaml:"log_format" env:"LOG_FORMAT"`

	Storage     Storage            `yaml:"storage" envPrefix:"STORAGE_"`
	KDF         KDF                `yaml:"kdf" envPrefix:"KDF_"`
	Session     Session            `yaml:"session" envPrefix:"SESSION_"`
	Mail        Mail               `yaml:"mail" envPrefix:"MAIL_"`
	ObjectStore objectstore.Config `yaml:"object_store" envPrefix:"OBJECT_STORE_"`

	// ActivityRefreshInterval is how often an unlocked session counts as activity.
	ActivityRefreshInterval time.Duration `yaml:"activity_refresh_interval" env:"ACTIVITY_REFRESH_INTERVAL"`
}

// Storage selects the persistence backend.
type Storage struct {
	Driver        string `yaml:"driver" env:"DRIVER"`
	SQLitePath    string `yaml:"sqlite_path" env:"SQLITE_PATH"`
	PostgresURL   string `yaml:"postgres_url" env:"POSTGRES_URL"`
	MigrationsDir string `yaml:"migrations_dir" env:"MIGRATIONS_DIR"`
}

// KDF contains key-derivation parameters applied at first run.
type KDF struct {
	Iterations int `yaml:"iterations" env:"ITERATIONS"`
}

// Session controls unlock tokens.
type Session struct {
	TTL time.Duration `yaml:"ttl" env:"TTL"`
}

// Mail configures outbound delivery.
type Mail struct {
	// Driver is "resend" or "log".
	Driver         string `yaml:"driver" env:"DRIVER"`
	ResendAPIKey   string `yaml:"resend_api_key" env:"RESEND_API_KEY"`
	ResendEndpoint string `yaml:"resend_endpoint" env:"RESEND_ENDPOINT"`
	FromAddress    string `yaml:"from_address" env:"FROM_ADDRESS"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ListenAddr: ":8300",
		LogLevel:   "info",
		LogFormat:  "console",
		Storage: Storage{
			Driver:        "sqlite",
			SQLitePath:    "legacy.db",
			MigrationsDir: "migrations",
		},
		KDF:                     KDF{Iterations: crypto.DefaultIterations},
		Session:                 Session{TTL: 30 * time.Minute},
		Mail:                    Mail{Driver: "resend"},
		ObjectStore:             objectstore.Config{Bucket: "legacy-backups"},
		ActivityRefreshInterval: time.Minute,
	}
}

// Load applies path (when it exists) and then the environment over Default.
// found reports whether the file was read.
func Load(path string) (cfg *Config, found bool, err error) {
	cfg = Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		found = true
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, true, fmt.Errorf("parsing %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, false, fmt.Errorf("reading %s: %w", path, err)
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, found, fmt.Errorf("failed to parse environment: %w", err)
	}
	if v := os.Getenv("DATABASE_URL"); v != "" && cfg.Storage.PostgresURL == "" {
		cfg.Storage.PostgresURL = v
	}
	if v := os.Getenv("RESEND_API_KEY"); v != "" && cfg.Mail.ResendAPIKey == "" {
		cfg.Mail.ResendAPIKey = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, found, err
	}
	return cfg, found, nil
}

// Validate rejects settings the daemon cannot start with.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			return errors.New("storage.sqlite_path must be set for the sqlite driver")
		}
	case "postgres":
		if c.Storage.PostgresURL == "" {
			return errors.New("storage.postgres_url must be configured (or DATABASE_URL env var)")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Mail.Driver {
	case "resend", "log":
	default:
		return fmt.Errorf("unknown mail driver %q", c.Mail.Driver)
	}
	if c.KDF.Iterations < crypto.MinIterations {
		return fmt.Errorf("kdf.iterations must be at least %d", crypto.MinIterations)
	}
	if c.Session.TTL <= 0 {
		return errors.New("session.ttl must be positive")
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return errors.New("tls_cert and tls_key must be set together")
	}
	return nil
}
