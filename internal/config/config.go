package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the lifecycle engine.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	MailWizz  MailWizzConfig  `yaml:"mailwizz"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Consumer  ConsumerConfig  `yaml:"consumer"`
	Sweeps    SweepsConfig    `yaml:"sweeps"`
	Links     LinksConfig     `yaml:"links"`
	Analytics AnalyticsConfig `yaml:"analytics"`
}

// ServerConfig holds HTTP server configuration for the webhook gateway.
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with container detection.
func (c ServerConfig) GetHost() string {
	// In a container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds Redis settings for distributed sweep locks.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Enabled  bool   `yaml:"enabled"`
}

// MailWizzConfig holds the external subscriber platform API configuration.
type MailWizzConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	ListUID        string `yaml:"list_uid"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
}

// Timeout returns the configured timeout as a duration.
func (c MailWizzConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// WebhookConfig holds inbound webhook authentication settings.
type WebhookConfig struct {
	Secret string `yaml:"secret"`
}

// ConsumerConfig holds change-event consumer settings.
type ConsumerConfig struct {
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`
	BatchSize           int `yaml:"batch_size"`
}

// PollInterval returns the poll interval as a duration.
func (c ConsumerConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// SweepsConfig holds schedules and thresholds for the batch sweeps.
type SweepsConfig struct {
	Timezone string `yaml:"timezone"`

	StopConditions ScheduleConfig `yaml:"stop_conditions"`
	Inactivity     ScheduleConfig `yaml:"inactivity"`
	WeeklyStats    ScheduleConfig `yaml:"weekly_stats"`
	MonthlyStats   ScheduleConfig `yaml:"monthly_stats"`
	Anniversary    ScheduleConfig `yaml:"anniversary"`

	PageSize             int `yaml:"page_size"`
	OnboardingWindowDays int `yaml:"onboarding_window_days"`
	InactivityDays       int `yaml:"inactivity_days"`
	ReengagementCooldown int `yaml:"reengagement_cooldown_days"`
}

// ScheduleConfig describes when a sweep runs. Hour/Minute are in the sweeps
// timezone. Weekday is used by weekly sweeps (0=Sunday), MonthDay by monthly.
type ScheduleConfig struct {
	Hour     int  `yaml:"hour"`
	Minute   int  `yaml:"minute"`
	Weekday  int  `yaml:"weekday"`
	MonthDay int  `yaml:"month_day"`
	Enabled  bool `yaml:"enabled"`
}

// Location resolves the configured timezone, falling back to UTC.
func (c SweepsConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// LinksConfig holds user-facing URLs injected into transactional sends.
type LinksConfig struct {
	TrustpilotURL string `yaml:"trustpilot_url"`
	DashboardURL  string `yaml:"dashboard_url"`
	RetryURL      string `yaml:"retry_url"`
	InvoiceBase   string `yaml:"invoice_base"`
}

// AnalyticsConfig holds analytics sink settings.
type AnalyticsConfig struct {
	BufferSize int  `yaml:"buffer_size"`
	Enabled    bool `yaml:"enabled"`
}

// Load reads and parses the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.MailWizz.TimeoutSeconds == 0 {
		cfg.MailWizz.TimeoutSeconds = 30
	}
	if cfg.MailWizz.MaxRetries == 0 {
		cfg.MailWizz.MaxRetries = 3
	}
	if cfg.Consumer.PollIntervalSeconds == 0 {
		cfg.Consumer.PollIntervalSeconds = 5
	}
	if cfg.Consumer.BatchSize == 0 {
		cfg.Consumer.BatchSize = 100
	}
	if cfg.Sweeps.Timezone == "" {
		cfg.Sweeps.Timezone = "Europe/Paris"
	}
	if cfg.Sweeps.PageSize == 0 {
		cfg.Sweeps.PageSize = 100
	}
	if cfg.Sweeps.OnboardingWindowDays == 0 {
		cfg.Sweeps.OnboardingWindowDays = 30
	}
	if cfg.Sweeps.InactivityDays == 0 {
		cfg.Sweeps.InactivityDays = 30
	}
	if cfg.Sweeps.ReengagementCooldown == 0 {
		cfg.Sweeps.ReengagementCooldown = 7
	}
	applyScheduleDefaults(&cfg.Sweeps.StopConditions, 8, 0)
	applyScheduleDefaults(&cfg.Sweeps.Inactivity, 9, 0)
	applyScheduleDefaults(&cfg.Sweeps.WeeklyStats, 8, 0)
	if cfg.Sweeps.WeeklyStats.Weekday == 0 {
		cfg.Sweeps.WeeklyStats.Weekday = 1 // Monday
	}
	applyScheduleDefaults(&cfg.Sweeps.MonthlyStats, 8, 0)
	if cfg.Sweeps.MonthlyStats.MonthDay == 0 {
		cfg.Sweeps.MonthlyStats.MonthDay = 1
	}
	applyScheduleDefaults(&cfg.Sweeps.Anniversary, 10, 0)
	if cfg.Analytics.BufferSize == 0 {
		cfg.Analytics.BufferSize = 1024
	}
	if cfg.Links.TrustpilotURL == "" {
		cfg.Links.TrustpilotURL = "https://www.trustpilot.com/review/expatline.com"
	}
	if cfg.Links.DashboardURL == "" {
		cfg.Links.DashboardURL = "https://expatline.com/dashboard"
	}
	if cfg.Links.RetryURL == "" {
		cfg.Links.RetryURL = "https://expatline.com/billing/retry"
	}
	if cfg.Links.InvoiceBase == "" {
		cfg.Links.InvoiceBase = "https://expatline.com/invoices"
	}

	return &cfg, nil
}

func applyScheduleDefaults(s *ScheduleConfig, hour, minute int) {
	if s.Hour == 0 && s.Minute == 0 {
		s.Hour = hour
		s.Minute = minute
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It loads a .env file (if present) before reading env vars, so secrets can
// live in .env locally and in real env vars in deployment.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("MAILWIZZ_API_KEY"); v != "" {
		cfg.MailWizz.APIKey = v
	}
	if v := os.Getenv("MAILWIZZ_BASE_URL"); v != "" {
		cfg.MailWizz.BaseURL = v
	}
	if v := os.Getenv("MAILWIZZ_LIST_UID"); v != "" {
		cfg.MailWizz.ListUID = v
	}
	if v := os.Getenv("MAILWIZZ_WEBHOOK_SECRET"); v != "" {
		cfg.Webhook.Secret = v
	}

	return cfg, nil
}
