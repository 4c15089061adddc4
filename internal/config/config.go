// Package config loads and validates the security service configuration using Viper.
//
// Configuration is layered: built-in defaults < YAML config file < environment
// variables. Environment variables use the ATP_ prefix (e.g., ATP_REDIS_ADDR
// overrides redis.addr in the YAML). This layering allows the same binary to
// run with a config.yaml in local development and with pure environment
// variables in containerized deployments — no recompilation or different
// binaries needed.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Security      SecurityConfig      `mapstructure:"security"`
	APIKeys       APIKeysConfig       `mapstructure:"api_keys"`
	Jobs          JobsConfig          `mapstructure:"jobs"`
	RateLimiting  RateLimitingConfig  `mapstructure:"rate_limiting"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Telemetry     TelemetryConfig     `mapstructure:"telemetry"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// GetAddress returns the server address in host:port format
func (c *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RedisConfig holds connection settings for the backing key-value store.
// An empty Addr selects the in-memory store, which is suitable only for
// local development and tests (state does not survive a restart).
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// SecurityConfig holds the audit/detection engine configuration
type SecurityConfig struct {
	// RetentionDays is the TTL applied to events and alerts (default 90)
	RetentionDays int             `mapstructure:"retention_days"`
	Detectors     DetectorsConfig `mapstructure:"detectors"`
	Patterns      PatternsConfig  `mapstructure:"patterns"`
}

// Retention returns the event/alert retention window as a duration.
func (c *SecurityConfig) Retention() time.Duration {
	days := c.RetentionDays
	if days <= 0 {
		days = 90
	}
	return time.Duration(days) * 24 * time.Hour
}

// DetectorsConfig tunes the inline sliding-window anomaly detectors.
// The sample sizes bound how many recent index entries a detector reads per
// event; they are cost caps, not correctness guarantees — a burst larger than
// the sample can produce false negatives, by intent.
type DetectorsConfig struct {
	// FailedLoginThreshold is the number of failed logins from one IP
	// within FailedLoginWindow that raises an alert (default 5)
	FailedLoginThreshold int `mapstructure:"failed_login_threshold"`
	// FailedLoginWindow is the trailing window for the brute-force check (default 15m)
	FailedLoginWindow time.Duration `mapstructure:"failed_login_window"`
	// FailedLoginSample bounds how many recent IP events are examined (default 20)
	FailedLoginSample int `mapstructure:"failed_login_sample"`
	// HighRiskThreshold is the risk score at which a single event alerts (default 70)
	HighRiskThreshold int `mapstructure:"high_risk_threshold"`
	// DataAccessThreshold is the number of read/export actions by one user
	// within DataAccessWindow that raises an alert (default 100)
	DataAccessThreshold int `mapstructure:"data_access_threshold"`
	// DataAccessWindow is the trailing window for the data-access check (default 1h)
	DataAccessWindow time.Duration `mapstructure:"data_access_window"`
	// DataAccessSample bounds how many recent user events are examined (default 100)
	DataAccessSample int `mapstructure:"data_access_sample"`
}

// PatternsConfig tunes the scheduled threat-pattern sweep
type PatternsConfig struct {
	// SweepInterval is how often the pattern engine runs (default 5m)
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	// Window is the trailing interval of events each sweep examines (default 1h)
	Window time.Duration `mapstructure:"window"`
	// SampleSize bounds how many recent events each sweep examines (default 500)
	SampleSize int `mapstructure:"sample_size"`
}

// APIKeysConfig holds credential generation and rotation configuration
type APIKeysConfig struct {
	// Prefix identifies keys issued by this service (default "atp")
	Prefix string `mapstructure:"prefix"`
	// ExpiryDays is the default key lifetime (default 90)
	ExpiryDays int `mapstructure:"expiry_days"`
	// MaxActivePerUser caps live keys per user; oldest are evicted first (default 5)
	MaxActivePerUser int `mapstructure:"max_active_per_user"`
	// RotationIntervalDays is the key age at which rotation replaces it (default 30)
	RotationIntervalDays int `mapstructure:"rotation_interval_days"`
	// GracePeriodDays is how long a rotated-out key remains valid (default 7)
	GracePeriodDays int `mapstructure:"grace_period_days"`
	// DeactivatedTTL is the residual TTL on deactivated records, kept for
	// audit visibility (default 5m)
	DeactivatedTTL time.Duration `mapstructure:"deactivated_ttl"`
	// ExpiryWarningDays is how far ahead of expiry the warning notification
	// goes out (default 7)
	ExpiryWarningDays int `mapstructure:"expiry_warning_days"`
}

// JobsConfig holds background job schedules. All jobs are idempotent and
// assume at-least-once execution.
type JobsConfig struct {
	// KeyMaintenanceInterval drives expired-key cleanup and the pending
	// deactivation sweep (default 1h)
	KeyMaintenanceInterval time.Duration `mapstructure:"key_maintenance_interval"`
	// RotationSweepInterval drives the fleet-wide key rotation sweep (default 168h)
	RotationSweepInterval time.Duration `mapstructure:"rotation_sweep_interval"`
	// DailyReportInterval drives the security report job (default 24h)
	DailyReportInterval time.Duration `mapstructure:"daily_report_interval"`
	// MetricsSnapshotInterval drives the store-counter → Prometheus copy (default 1h)
	MetricsSnapshotInterval time.Duration `mapstructure:"metrics_snapshot_interval"`
	// ExpiryNotifierInterval drives the key expiry warning scan (default 24h)
	ExpiryNotifierInterval time.Duration `mapstructure:"expiry_notifier_interval"`
}

// RateLimitingConfig holds request rate limiting configuration
type RateLimitingConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig holds observability configuration
type TelemetryConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	Metrics     MetricsConfig `mapstructure:"metrics"`
}

// MetricsConfig holds Prometheus metrics configuration
type MetricsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	PrometheusPort int  `mapstructure:"prometheus_port"`
}

// NotificationsConfig holds outbound alert/report dispatch configuration
type NotificationsConfig struct {
	// Enabled globally toggles outbound notifications
	Enabled bool `mapstructure:"enabled"`
	// Channels lists the configured destinations (email, chat, pager, ...)
	Channels []ChannelConfig `mapstructure:"channels"`
}

// ChannelConfig holds configuration for a single notification channel
type ChannelConfig struct {
	// Name is the logical channel name the engine routes to (email/chat/pager)
	Name string `mapstructure:"name"`
	// Type is the delivery mechanism (webhook, file)
	Type string `mapstructure:"type"`
	// MinSeverity filters out messages below this severity (default low)
	MinSeverity string `mapstructure:"min_severity"`
	// Webhook configuration
	Webhook *WebhookChannelConfig `mapstructure:"webhook"`
	// File configuration
	File *FileChannelConfig `mapstructure:"file"`
}

// WebhookChannelConfig holds webhook delivery configuration
type WebhookChannelConfig struct {
	URL           string            `mapstructure:"url"`
	Headers       map[string]string `mapstructure:"headers"`
	TimeoutSecs   int               `mapstructure:"timeout_secs"`
	BatchSize     int               `mapstructure:"batch_size"`
	FlushInterval int               `mapstructure:"flush_interval_secs"`
}

// FileChannelConfig holds file delivery configuration
type FileChannelConfig struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// bindEnvVars explicitly binds environment variables to config keys.
// This is necessary because AutomaticEnv() doesn't work well with nested
// structs during Unmarshal. viper.BindEnv only errors when called with zero
// keys; since every key here is a non-empty hardcoded string, any error
// indicates a programming bug and is surfaced to the caller.
func bindEnvVars(v *viper.Viper) error {
	keys := []string{
		// Server
		"server.host",
		"server.port",
		"server.read_timeout",
		"server.write_timeout",

		// Redis
		"redis.addr",
		"redis.password",
		"redis.db",

		// Security engine
		"security.retention_days",
		"security.detectors.failed_login_threshold",
		"security.detectors.failed_login_window",
		"security.detectors.failed_login_sample",
		"security.detectors.high_risk_threshold",
		"security.detectors.data_access_threshold",
		"security.detectors.data_access_window",
		"security.detectors.data_access_sample",
		"security.patterns.sweep_interval",
		"security.patterns.window",
		"security.patterns.sample_size",

		// API keys
		"api_keys.prefix",
		"api_keys.expiry_days",
		"api_keys.max_active_per_user",
		"api_keys.rotation_interval_days",
		"api_keys.grace_period_days",
		"api_keys.deactivated_ttl",
		"api_keys.expiry_warning_days",

		// Jobs
		"jobs.key_maintenance_interval",
		"jobs.rotation_sweep_interval",
		"jobs.daily_report_interval",
		"jobs.metrics_snapshot_interval",
		"jobs.expiry_notifier_interval",

		// Rate limiting
		"rate_limiting.enabled",
		"rate_limiting.requests_per_minute",
		"rate_limiting.burst",

		// Logging
		"logging.level",
		"logging.format",

		// Telemetry
		"telemetry.enabled",
		"telemetry.service_name",
		"telemetry.metrics.enabled",
		"telemetry.metrics.prometheus_port",

		// Notifications
		"notifications.enabled",
	}

	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind env var for %s: %w", key, err)
		}
	}
	return nil
}

// Load reads configuration from defaults, an optional YAML file, and the
// environment, then validates the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)

	// Set config file path if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config.yaml in common locations
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/travel-planner")
	}

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults and environment variables
	}

	// Enable environment variable support
	v.SetEnvPrefix("ATP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicitly bind environment variables for nested structures
	// This is necessary because AutomaticEnv() doesn't work well with Unmarshal()
	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	// Unmarshal configuration
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Expand environment variables in sensitive fields
	cfg.Redis.Password = os.ExpandEnv(cfg.Redis.Password)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")

	// Redis defaults — empty addr selects the in-memory store
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	// Security engine defaults
	v.SetDefault("security.retention_days", 90)
	v.SetDefault("security.detectors.failed_login_threshold", 5)
	v.SetDefault("security.detectors.failed_login_window", "15m")
	v.SetDefault("security.detectors.failed_login_sample", 20)
	v.SetDefault("security.detectors.high_risk_threshold", 70)
	v.SetDefault("security.detectors.data_access_threshold", 100)
	v.SetDefault("security.detectors.data_access_window", "1h")
	v.SetDefault("security.detectors.data_access_sample", 100)
	v.SetDefault("security.patterns.sweep_interval", "5m")
	v.SetDefault("security.patterns.window", "1h")
	v.SetDefault("security.patterns.sample_size", 500)

	// API key defaults
	v.SetDefault("api_keys.prefix", "atp")
	v.SetDefault("api_keys.expiry_days", 90)
	v.SetDefault("api_keys.max_active_per_user", 5)
	v.SetDefault("api_keys.rotation_interval_days", 30)
	v.SetDefault("api_keys.grace_period_days", 7)
	v.SetDefault("api_keys.deactivated_ttl", "5m")
	v.SetDefault("api_keys.expiry_warning_days", 7)

	// Job schedule defaults
	v.SetDefault("jobs.key_maintenance_interval", "1h")
	v.SetDefault("jobs.rotation_sweep_interval", "168h")
	v.SetDefault("jobs.daily_report_interval", "24h")
	v.SetDefault("jobs.metrics_snapshot_interval", "1h")
	v.SetDefault("jobs.expiry_notifier_interval", "24h")

	// Rate limiting defaults
	v.SetDefault("rate_limiting.enabled", true)
	v.SetDefault("rate_limiting.requests_per_minute", 200)
	v.SetDefault("rate_limiting.burst", 50)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.service_name", "travel-planner-security")
	v.SetDefault("telemetry.metrics.enabled", true)
	v.SetDefault("telemetry.metrics.prometheus_port", 9090)

	// Notification defaults
	v.SetDefault("notifications.enabled", false)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate server
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	// Validate security engine tunables
	if c.Security.RetentionDays < 0 {
		return fmt.Errorf("security.retention_days must not be negative")
	}
	if c.Security.Detectors.FailedLoginThreshold < 1 {
		return fmt.Errorf("security.detectors.failed_login_threshold must be >= 1")
	}
	if c.Security.Detectors.HighRiskThreshold < 0 || c.Security.Detectors.HighRiskThreshold > 100 {
		return fmt.Errorf("security.detectors.high_risk_threshold must be in [0,100]")
	}
	if c.Security.Detectors.DataAccessThreshold < 1 {
		return fmt.Errorf("security.detectors.data_access_threshold must be >= 1")
	}
	if c.Security.Patterns.SampleSize < 1 {
		return fmt.Errorf("security.patterns.sample_size must be >= 1")
	}

	// Validate API key settings
	if c.APIKeys.Prefix == "" {
		return fmt.Errorf("api_keys.prefix is required")
	}
	if c.APIKeys.MaxActivePerUser < 1 {
		return fmt.Errorf("api_keys.max_active_per_user must be >= 1")
	}
	if c.APIKeys.GracePeriodDays < 0 {
		return fmt.Errorf("api_keys.grace_period_days must not be negative")
	}

	// Validate notification channels
	if c.Notifications.Enabled {
		for i, ch := range c.Notifications.Channels {
			if ch.Name == "" {
				return fmt.Errorf("notifications.channels[%d].name is required", i)
			}
			switch ch.Type {
			case "webhook":
				if ch.Webhook == nil || ch.Webhook.URL == "" {
					return fmt.Errorf("notifications.channels[%d]: webhook.url is required", i)
				}
			case "file":
				if ch.File == nil || ch.File.Path == "" {
					return fmt.Errorf("notifications.channels[%d]: file.path is required", i)
				}
			default:
				return fmt.Errorf("notifications.channels[%d]: unknown type %q", i, ch.Type)
			}
		}
	}

	// Validate logging level
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	return nil
}
