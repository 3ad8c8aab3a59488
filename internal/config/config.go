// Package config loads service configuration from a YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment variable read by Load.
// Nested keys are separated by a double underscore, for example
// INCIDENT_TRACKER_SERVER__PORT or INCIDENT_TRACKER_DATABASE__URL.
const EnvPrefix = "INCIDENT_TRACKER_"

// Storage drivers.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Config is the complete service configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Storage       StorageConfig       `koanf:"storage"`
	Database      DatabaseConfig      `koanf:"database"`
	Log           LogConfig           `koanf:"log"`
	CORS          CORSConfig          `koanf:"cors"`
	Notifications NotificationsConfig `koanf:"notifications"`
}

// ServerConfig configures the HTTP listeners.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port" validate:"required"`
	MetricsPort       string        `koanf:"metrics_port"`
	ReadTimeout       time.Duration `koanf:"read_timeout" validate:"gt=0"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout" validate:"gt=0"`
	WriteTimeout      time.Duration `koanf:"write_timeout" validate:"gt=0"`
	IdleTimeout       time.Duration `koanf:"idle_timeout" validate:"gt=0"`
	RequestTimeout    time.Duration `koanf:"request_timeout" validate:"gt=0"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

// StorageConfig selects the incident store.
type StorageConfig struct {
	Driver string `koanf:"driver" validate:"oneof=memory postgres"`
}

// DatabaseConfig configures the PostgreSQL store.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns" validate:"gte=1"`
	MaxIdleConns    int           `koanf:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout" validate:"gt=0"`
	ConnectAttempts int           `koanf:"connect_attempts" validate:"gte=1"`
	MigrateOnStart  bool          `koanf:"migrate_on_start"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

// CORSConfig configures cross-origin access to the API.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// NotificationsConfig configures incident lifecycle notifications.
type NotificationsConfig struct {
	Enabled       bool                `koanf:"enabled"`
	BaseURL       string              `koanf:"base_url" validate:"omitempty,url"`
	QueueCapacity int                 `koanf:"queue_capacity" validate:"gte=1"`
	Channels      []ChannelConfig     `koanf:"channels" validate:"dive"`
	Worker        WorkerConfig        `koanf:"worker"`
	Retry         RetryConfig         `koanf:"retry"`
	Mattermost    MattermostConfig    `koanf:"mattermost"`
	Webhook       WebhookSenderConfig `koanf:"webhook"`
	Email         EmailConfig         `koanf:"email"`
}

// ChannelConfig is a single notification destination.
type ChannelConfig struct {
	Name   string `koanf:"name" validate:"required"`
	Type   string `koanf:"type" validate:"oneof=mattermost webhook email"`
	Target string `koanf:"target" validate:"required"` // URL, or comma separated addresses for email
}

// WorkerConfig configures the notification delivery workers.
type WorkerConfig struct {
	BatchSize    int           `koanf:"batch_size" validate:"gte=1"`
	PollInterval time.Duration `koanf:"poll_interval" validate:"gt=0"`
	NumWorkers   int           `koanf:"num_workers" validate:"gte=1"`
	SendTimeout  time.Duration `koanf:"send_timeout" validate:"gte=0"`
}

// RetryConfig configures delivery retries.
type RetryConfig struct {
	MaxAttempts       int           `koanf:"max_attempts" validate:"gte=1"`
	InitialBackoff    time.Duration `koanf:"initial_backoff" validate:"gt=0"`
	MaxBackoff        time.Duration `koanf:"max_backoff" validate:"gtefield=InitialBackoff"`
	BackoffMultiplier float64       `koanf:"backoff_multiplier" validate:"gte=1"`
}

// MattermostConfig configures the Mattermost sender.
type MattermostConfig struct {
	Username string        `koanf:"username"`
	IconURL  string        `koanf:"icon_url" validate:"omitempty,url"`
	Timeout  time.Duration `koanf:"timeout"`
}

// WebhookSenderConfig configures the generic webhook sender.
type WebhookSenderConfig struct {
	Timeout   time.Duration     `koanf:"timeout"`
	RateLimit float64           `koanf:"rate_limit" validate:"gte=0"`
	Burst     int               `koanf:"burst" validate:"gte=0"`
	Headers   map[string]string `koanf:"headers"`
}

// EmailConfig configures the SMTP sender used by email channels.
type EmailConfig struct {
	SMTPHost     string        `koanf:"smtp_host"`
	SMTPPort     int           `koanf:"smtp_port" validate:"gte=0,lte=65535"`
	SMTPUser     string        `koanf:"smtp_user"`
	SMTPPassword string        `koanf:"smtp_password"`
	FromAddress  string        `koanf:"from_address"`
	BatchSize    int           `koanf:"batch_size" validate:"gte=0"`
	DialTimeout  time.Duration `koanf:"dial_timeout"`
}

// Default returns the configuration used for any value not set explicitly.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              "8080",
			MetricsPort:       "9090",
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
			RequestTimeout:    30 * time.Second,
			ShutdownTimeout:   30 * time.Second,
		},
		Storage: StorageConfig{Driver: StorageMemory},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnectTimeout:  30 * time.Second,
			ConnectAttempts: 5,
			MigrateOnStart:  true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Notifications: NotificationsConfig{
			QueueCapacity: 1000,
			Worker: WorkerConfig{
				BatchSize:    100,
				PollInterval: time.Second,
				NumWorkers:   2,
				SendTimeout:  15 * time.Second,
			},
			Retry: RetryConfig{
				MaxAttempts:       3,
				InitialBackoff:    time.Second,
				MaxBackoff:        5 * time.Minute,
				BackoffMultiplier: 2.0,
			},
			Email: EmailConfig{
				SMTPPort:  587,
				BatchSize: 50,
			},
		},
	}
}

// Load reads the configuration. Values come from Default, then the YAML
// file at path (skipped when path is empty), then environment variables.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps INCIDENT_TRACKER_DATABASE__MAX_OPEN_CONNS to database.max_open_conns.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if c.Storage.Driver == StoragePostgres && c.Database.URL == "" {
		return errors.New("invalid config: database.url is required for postgres storage")
	}
	if c.Notifications.Enabled && len(c.Notifications.Channels) == 0 {
		return errors.New("invalid config: notifications enabled without channels")
	}
	for _, ch := range c.Notifications.Channels {
		if err := ch.validateTarget(); err != nil {
			return fmt.Errorf("invalid config: channel %s: %w", ch.Name, err)
		}
		if ch.Type == "email" && (c.Notifications.Email.SMTPHost == "" || c.Notifications.Email.FromAddress == "") {
			return fmt.Errorf("invalid config: channel %s: email channels need notifications.email.smtp_host and from_address", ch.Name)
		}
	}
	return nil
}

func (ch ChannelConfig) validateTarget() error {
	if ch.Type != "email" {
		if err := validate.Var(ch.Target, "url"); err != nil {
			return errors.New("target must be a URL")
		}
		return nil
	}

	var n int
	for _, addr := range strings.Split(ch.Target, ",") {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		if err := validate.Var(addr, "email"); err != nil {
			return fmt.Errorf("invalid email address %q", addr)
		}
		n++
	}
	if n == 0 {
		return errors.New("target lists no email addresses")
	}
	return nil
}
