package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DatabaseConfig selects the SQL driver and data source.
type DatabaseConfig struct {
	// Driver is "sqlite" or "pgx".
	Driver string `mapstructure:"driver" yaml:"driver"`
	DSN    string `mapstructure:"dsn" yaml:"dsn"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// SchedulerConfig controls the periodic refresh of all accounts.
type SchedulerConfig struct {
	// Interval between refresh cycles.
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`

	// Workers bounds how many accounts refresh at once.
	Workers int `mapstructure:"workers" yaml:"workers"`

	// AccountTimeout abandons a single account's refresh or reconciliation.
	AccountTimeout time.Duration `mapstructure:"account_timeout" yaml:"account_timeout"`

	// PerAccountConcurrency bounds provider calls within one account.
	PerAccountConcurrency int `mapstructure:"per_account_concurrency" yaml:"per_account_concurrency"`
}

// CredentialsConfig locates the deployment secret used to encrypt tokens.
type CredentialsConfig struct {
	SecretKey  string `mapstructure:"secret_key" yaml:"secret_key"`
	UseKeyring bool   `mapstructure:"use_keyring" yaml:"use_keyring"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// EventsConfig selects where task transitions are published.
type EventsConfig struct {
	// Backend is one of "none", "memory", "redis" or "nats".
	Backend string `mapstructure:"backend" yaml:"backend"`
	URL     string `mapstructure:"url" yaml:"url"`
	Subject string `mapstructure:"subject" yaml:"subject"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Database    DatabaseConfig    `mapstructure:"database" yaml:"database"`
	Server      ServerConfig      `mapstructure:"server" yaml:"server"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler" yaml:"scheduler"`
	Credentials CredentialsConfig `mapstructure:"credentials" yaml:"credentials"`
	Logging     LoggingConfig     `mapstructure:"logging" yaml:"logging"`
	Events      EventsConfig      `mapstructure:"events" yaml:"events"`
	Metrics     MetricsConfig     `mapstructure:"metrics" yaml:"metrics"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/ambrose/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "ambrose", "config.yaml")
}

// DefaultAppConfig returns the configuration used when no file exists.
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		Database: DatabaseConfig{Driver: "sqlite", DSN: "ambrose.db"},
		Server:   ServerConfig{Addr: ":8080"},
		Scheduler: SchedulerConfig{
			Interval:              60 * time.Second,
			Workers:               4,
			AccountTimeout:        45 * time.Second,
			PerAccountConcurrency: 4,
		},
		Credentials: CredentialsConfig{UseKeyring: true},
		Logging:     LoggingConfig{Level: "info", Format: "json"},
		Events:      EventsConfig{Backend: "none", Subject: "ambrose.tasks"},
		Metrics:     MetricsConfig{Enabled: true},
	}
}

func setDefaults(v *viper.Viper) {
	d := DefaultAppConfig()
	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.dsn", d.Database.DSN)
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("scheduler.interval", d.Scheduler.Interval)
	v.SetDefault("scheduler.workers", d.Scheduler.Workers)
	v.SetDefault("scheduler.account_timeout", d.Scheduler.AccountTimeout)
	v.SetDefault("scheduler.per_account_concurrency", d.Scheduler.PerAccountConcurrency)
	v.SetDefault("credentials.secret_key", "")
	v.SetDefault("credentials.use_keyring", d.Credentials.UseKeyring)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("events.backend", d.Events.Backend)
	v.SetDefault("events.url", "")
	v.SetDefault("events.subject", d.Events.Subject)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// Environment variables prefixed with AMBROSE_ override file values
// (e.g. AMBROSE_DATABASE_DSN). A missing file yields the defaults.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("AMBROSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var pathErr *os.PathError
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &pathErr) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := DefaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.Scheduler.Workers < 1 {
		cfg.Scheduler.Workers = 1
	}
	if cfg.Scheduler.PerAccountConcurrency < 1 {
		cfg.Scheduler.PerAccountConcurrency = 1
	}
	if cfg.Scheduler.Interval <= 0 {
		return nil, fmt.Errorf("scheduler.interval must be positive, got %s", cfg.Scheduler.Interval)
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("database", cfg.Database)
	v.Set("server", cfg.Server)
	v.Set("scheduler", map[string]any{
		"interval":                cfg.Scheduler.Interval.String(),
		"workers":                 cfg.Scheduler.Workers,
		"account_timeout":         cfg.Scheduler.AccountTimeout.String(),
		"per_account_concurrency": cfg.Scheduler.PerAccountConcurrency,
	})
	v.Set("credentials", cfg.Credentials)
	v.Set("logging", cfg.Logging)
	v.Set("events", cfg.Events)
	v.Set("metrics", cfg.Metrics)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
