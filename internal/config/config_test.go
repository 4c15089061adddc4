package config

import (
	"os"
	"testing"
	"time"
)

// writeTempConfig creates a temp YAML file and registers a cleanup to remove it.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp("", "config-test-*.yaml")
	if err != nil {
		t.Fatal("CreateTemp:", err)
	}
	t.Cleanup(func() { os.Remove(f.Name()) })
	if _, err := f.WriteString(content); err != nil {
		t.Fatal("WriteString:", err)
	}
	f.Close()
	return f.Name()
}

// ---------------------------------------------------------------------------
// Load — file, defaults, environment layering
// ---------------------------------------------------------------------------

func TestLoad_WithConfigFile(t *testing.T) {
	const content = `
server:
  host: "testhost"
  port: 9999
redis:
  addr: ""
security:
  retention_days: 30
api_keys:
  prefix: "atp"
logging:
  level: "debug"
`
	path := writeTempConfig(t, content)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Host != "testhost" {
		t.Errorf("Server.Host = %q, want testhost", cfg.Server.Host)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("Server.Port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Security.RetentionDays != 30 {
		t.Errorf("Security.RetentionDays = %d, want 30", cfg.Security.RetentionDays)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	// A nearly empty file exercises setDefaults for everything unspecified.
	path := writeTempConfig(t, "logging:\n  level: \"info\"\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("default Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("default Server.Host = %q, want 0.0.0.0", cfg.Server.Host)
	}
	if cfg.Security.RetentionDays != 90 {
		t.Errorf("default Security.RetentionDays = %d, want 90", cfg.Security.RetentionDays)
	}
	if cfg.Security.Detectors.FailedLoginThreshold != 5 {
		t.Errorf("default FailedLoginThreshold = %d, want 5", cfg.Security.Detectors.FailedLoginThreshold)
	}
	if cfg.Security.Detectors.FailedLoginWindow != 15*time.Minute {
		t.Errorf("default FailedLoginWindow = %v, want 15m", cfg.Security.Detectors.FailedLoginWindow)
	}
	if cfg.Security.Patterns.SweepInterval != 5*time.Minute {
		t.Errorf("default Patterns.SweepInterval = %v, want 5m", cfg.Security.Patterns.SweepInterval)
	}
	if cfg.APIKeys.Prefix != "atp" {
		t.Errorf("default APIKeys.Prefix = %q, want atp", cfg.APIKeys.Prefix)
	}
	if cfg.APIKeys.RotationIntervalDays != 30 {
		t.Errorf("default APIKeys.RotationIntervalDays = %d, want 30", cfg.APIKeys.RotationIntervalDays)
	}
	if cfg.Jobs.DailyReportInterval != 24*time.Hour {
		t.Errorf("default Jobs.DailyReportInterval = %v, want 24h", cfg.Jobs.DailyReportInterval)
	}
	if !cfg.RateLimiting.Enabled {
		t.Error("default RateLimiting.Enabled = false, want true")
	}
	if cfg.Notifications.Enabled {
		t.Error("default Notifications.Enabled = true, want false")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ATP_SERVER_PORT", "9191")
	t.Setenv("ATP_REDIS_ADDR", "redis.internal:6379")
	t.Setenv("ATP_SECURITY_DETECTORS_HIGH_RISK_THRESHOLD", "85")

	path := writeTempConfig(t, "logging:\n  level: \"info\"\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 9191 {
		t.Errorf("Server.Port = %d, want env override 9191", cfg.Server.Port)
	}
	if cfg.Redis.Addr != "redis.internal:6379" {
		t.Errorf("Redis.Addr = %q, want env override", cfg.Redis.Addr)
	}
	if cfg.Security.Detectors.HighRiskThreshold != 85 {
		t.Errorf("HighRiskThreshold = %d, want env override 85", cfg.Security.Detectors.HighRiskThreshold)
	}
}

func TestLoad_RedisPasswordExpansion(t *testing.T) {
	t.Setenv("TEST_REDIS_PASS", "s3cret")
	const content = `
redis:
  password: "${TEST_REDIS_PASS}"
logging:
  level: "info"
`
	path := writeTempConfig(t, content)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Redis.Password != "s3cret" {
		t.Errorf("Redis.Password = %q, want expanded secret", cfg.Redis.Password)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeTempConfig(t, "server: [unclosed")
	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Error("Load() expected error for missing explicit config file, got nil")
	}
}

// ---------------------------------------------------------------------------
// Config.Validate
// ---------------------------------------------------------------------------

func minimalValidConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080},
		Security: SecurityConfig{
			RetentionDays: 90,
			Detectors: DetectorsConfig{
				FailedLoginThreshold: 5,
				HighRiskThreshold:    70,
				DataAccessThreshold:  100,
			},
			Patterns: PatternsConfig{SampleSize: 500},
		},
		APIKeys: APIKeysConfig{Prefix: "atp", MaxActivePerUser: 5},
		Logging: LoggingConfig{Level: "info"},
	}
}

func TestValidate(t *testing.T) {
	t.Run("valid minimal config passes", func(t *testing.T) {
		if err := minimalValidConfig().Validate(); err != nil {
			t.Errorf("Validate() unexpected error: %v", err)
		}
	})

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port 0", func(c *Config) { c.Server.Port = 0 }},
		{"port 70000", func(c *Config) { c.Server.Port = 70000 }},
		{"negative retention", func(c *Config) { c.Security.RetentionDays = -1 }},
		{"failed login threshold 0", func(c *Config) { c.Security.Detectors.FailedLoginThreshold = 0 }},
		{"high risk threshold 101", func(c *Config) { c.Security.Detectors.HighRiskThreshold = 101 }},
		{"data access threshold 0", func(c *Config) { c.Security.Detectors.DataAccessThreshold = 0 }},
		{"pattern sample size 0", func(c *Config) { c.Security.Patterns.SampleSize = 0 }},
		{"empty key prefix", func(c *Config) { c.APIKeys.Prefix = "" }},
		{"max active per user 0", func(c *Config) { c.APIKeys.MaxActivePerUser = 0 }},
		{"negative grace period", func(c *Config) { c.APIKeys.GracePeriodDays = -1 }},
		{"invalid log level", func(c *Config) { c.Logging.Level = "verbose" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := minimalValidConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() expected error, got nil")
			}
		})
	}

	t.Run("notification channel validation", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Notifications = NotificationsConfig{
			Enabled:  true,
			Channels: []ChannelConfig{{Name: "chat", Type: "webhook"}},
		}
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for webhook channel without url, got nil")
		}

		cfg.Notifications.Channels[0].Webhook = &WebhookChannelConfig{URL: "https://hooks.example.com/x"}
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() unexpected error: %v", err)
		}

		cfg.Notifications.Channels = append(cfg.Notifications.Channels,
			ChannelConfig{Name: "pager", Type: "smoke-signal"})
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for unknown channel type, got nil")
		}
	})

	t.Run("all valid log levels pass", func(t *testing.T) {
		for _, level := range []string{"debug", "info", "warn", "error"} {
			cfg := minimalValidConfig()
			cfg.Logging.Level = level
			if err := cfg.Validate(); err != nil {
				t.Errorf("Validate() unexpected error for log level %q: %v", level, err)
			}
		}
	})
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func TestGetAddress(t *testing.T) {
	tests := []struct {
		name string
		cfg  ServerConfig
		want string
	}{
		{"default", ServerConfig{Host: "0.0.0.0", Port: 8080}, "0.0.0.0:8080"},
		{"localhost", ServerConfig{Host: "localhost", Port: 3000}, "localhost:3000"},
		{"empty host", ServerConfig{Host: "", Port: 8080}, ":8080"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.GetAddress(); got != tt.want {
				t.Errorf("GetAddress() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRetention(t *testing.T) {
	tests := []struct {
		days int
		want time.Duration
	}{
		{90, 90 * 24 * time.Hour},
		{7, 7 * 24 * time.Hour},
		{0, 90 * 24 * time.Hour},
		{-5, 90 * 24 * time.Hour},
	}
	for _, tt := range tests {
		cfg := SecurityConfig{RetentionDays: tt.days}
		if got := cfg.Retention(); got != tt.want {
			t.Errorf("Retention() with %d days = %v, want %v", tt.days, got, tt.want)
		}
	}
}
