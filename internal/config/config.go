package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/brightgive/donor-engine/internal/domain"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Mail       MailConfig       `yaml:"mail"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
	Schedule   ScheduleConfig   `yaml:"schedule"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with container detection
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

// DatabaseConfig holds Postgres connection configuration
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds Redis configuration for rate limiting and locks
type RedisConfig struct {
	URL     string `yaml:"url"`
	Enabled bool   `yaml:"enabled"`
}

// MailConfig holds mail provider configuration. Provider selects which
// sender the dispatcher uses: "ses", "resend", or "log" for dry runs.
type MailConfig struct {
	Provider     string `yaml:"provider"`
	FromName     string `yaml:"from_name"`
	FromEmail    string `yaml:"from_email"`
	ReplyTo      string `yaml:"reply_to"`
	SESAccessKey string `yaml:"ses_access_key"`
	SESSecretKey string `yaml:"ses_secret_key"`
	SESRegion    string `yaml:"ses_region"`
	ResendAPIKey string `yaml:"resend_api_key"`
}

// DispatcherConfig holds dispatch worker tuning
type DispatcherConfig struct {
	Workers             int `yaml:"workers"`
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`
	OrgPerMinuteLimit   int `yaml:"org_per_minute_limit"`
	OrgDailyLimit       int `yaml:"org_daily_limit"`
}

// PollInterval returns the configured poll interval as a duration
func (c DispatcherConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// ScheduleConfig holds the platform-wide default schedule policy applied
// when an organization has not saved its own.
type ScheduleConfig struct {
	DailyLimit      int    `yaml:"daily_limit"`
	MinGapSeconds   int    `yaml:"min_gap_seconds"`
	MaxGapSeconds   int    `yaml:"max_gap_seconds"`
	Timezone        string `yaml:"timezone"`
	AllowedWeekdays []int  `yaml:"allowed_weekdays"`
	WindowStart     string `yaml:"window_start"`
	WindowEnd       string `yaml:"window_end"`
}

// DefaultPolicy converts the schedule section into a domain policy.
func (c ScheduleConfig) DefaultPolicy() domain.SchedulePolicy {
	weekdays := make([]time.Weekday, len(c.AllowedWeekdays))
	for i, d := range c.AllowedWeekdays {
		weekdays[i] = time.Weekday(d)
	}
	return domain.SchedulePolicy{
		DailyLimit:      c.DailyLimit,
		MinGapSeconds:   c.MinGapSeconds,
		MaxGapSeconds:   c.MaxGapSeconds,
		Timezone:        c.Timezone,
		AllowedWeekdays: weekdays,
		DefaultWindow:   domain.TimeWindow{Start: c.WindowStart, End: c.WindowEnd},
	}
}

// Load reads and parses the configuration file
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
	if cfg.Mail.Provider == "" {
		cfg.Mail.Provider = "log"
	}
	if cfg.Mail.SESRegion == "" {
		cfg.Mail.SESRegion = "us-east-1"
	}
	if cfg.Dispatcher.Workers == 0 {
		cfg.Dispatcher.Workers = 4
	}
	if cfg.Dispatcher.PollIntervalSeconds == 0 {
		cfg.Dispatcher.PollIntervalSeconds = 5
	}
	if cfg.Dispatcher.OrgPerMinuteLimit == 0 {
		cfg.Dispatcher.OrgPerMinuteLimit = 60
	}
	if cfg.Dispatcher.OrgDailyLimit == 0 {
		cfg.Dispatcher.OrgDailyLimit = 10000
	}
	if cfg.Schedule.DailyLimit == 0 {
		cfg.Schedule.DailyLimit = 150
	}
	if cfg.Schedule.MinGapSeconds == 0 {
		cfg.Schedule.MinGapSeconds = 45
	}
	if cfg.Schedule.MaxGapSeconds == 0 {
		cfg.Schedule.MaxGapSeconds = 180
	}
	if cfg.Schedule.Timezone == "" {
		cfg.Schedule.Timezone = "America/New_York"
	}
	if len(cfg.Schedule.AllowedWeekdays) == 0 {
		cfg.Schedule.AllowedWeekdays = []int{1, 2, 3, 4, 5}
	}
	if cfg.Schedule.WindowStart == "" {
		cfg.Schedule.WindowStart = "09:00"
	}
	if cfg.Schedule.WindowEnd == "" {
		cfg.Schedule.WindowEnd = "17:00"
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		cfg.Redis.URL = redisURL
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("MAIL_PROVIDER"); v != "" {
		cfg.Mail.Provider = v
	}
	if v := os.Getenv("MAIL_FROM_NAME"); v != "" {
		cfg.Mail.FromName = v
	}
	if v := os.Getenv("MAIL_FROM_EMAIL"); v != "" {
		cfg.Mail.FromEmail = v
	}
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.Mail.SESAccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.Mail.SESSecretKey = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.Mail.SESRegion = v
	}
	if v := os.Getenv("RESEND_API_KEY"); v != "" {
		cfg.Mail.ResendAPIKey = v
	}
	if v := os.Getenv("DISPATCHER_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Dispatcher.Workers = n
		}
	}

	return cfg, nil
}
