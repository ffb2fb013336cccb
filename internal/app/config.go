package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"golang.org/x/text/language"
)

// Config represents the runtime configuration of the reminder service.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Push        PushConfig        `mapstructure:"push"`
	Reminders   RemindersConfig   `mapstructure:"reminders"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	Events      EventsConfig      `mapstructure:"events"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port            int             `mapstructure:"port"`
	LogLevel        string          `mapstructure:"log_level"`
	AllowedOrigins  []string        `mapstructure:"allowed_origins"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig bounds API requests per caller and route.
type RateLimitConfig struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver          string            `mapstructure:"driver"`
	Path            string            `mapstructure:"path"`
	DSN             string            `mapstructure:"dsn"`
	Host            string            `mapstructure:"host"`
	Port            int               `mapstructure:"port"`
	Name            string            `mapstructure:"name"`
	Username        string            `mapstructure:"username"`
	Password        string            `mapstructure:"password"`
	Options         map[string]string `mapstructure:"options"`
	MaxOpenConns    int               `mapstructure:"max_open_conns"`
	MaxIdleConns    int               `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration     `mapstructure:"conn_max_lifetime"`
}

// AuthConfig captures authentication settings shared with the main application.
type AuthConfig struct {
	JWT JWTSettings `mapstructure:"jwt"`
}

// JWTSettings configures bearer token validation.
type JWTSettings struct {
	Secret   string        `mapstructure:"secret"`
	Issuer   string        `mapstructure:"issuer"`
	Audience string        `mapstructure:"audience"`
	TTL      time.Duration `mapstructure:"access_token_ttl"`
	Leeway   time.Duration `mapstructure:"leeway"`
}

// PushConfig configures Web Push delivery.
type PushConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	VAPIDPublicKey  string        `mapstructure:"vapid_public_key"`
	VAPIDPrivateKey string        `mapstructure:"vapid_private_key"`
	Subject         string        `mapstructure:"subject"`
	TTL             time.Duration `mapstructure:"ttl"`
	Urgency         string        `mapstructure:"urgency"`
	Timeout         time.Duration `mapstructure:"timeout"`
	Concurrency     int           `mapstructure:"concurrency"`
	RateLimit       float64       `mapstructure:"rate_limit"`
	RateBurst       int           `mapstructure:"rate_burst"`
	DispatchTimeout time.Duration `mapstructure:"dispatch_timeout"`
}

// RemindersConfig configures reminder scanning.
type RemindersConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	DedupWindow     time.Duration `mapstructure:"dedup_window"`
	Timezone        string        `mapstructure:"timezone"`
	Locale          string        `mapstructure:"locale"`
	TaskURLTemplate string        `mapstructure:"task_url_template"`
	OpenStatuses    []string      `mapstructure:"open_statuses"`
	Concurrency     int           `mapstructure:"concurrency"`
	SessionIdleTTL  time.Duration `mapstructure:"session_idle_ttl"`
}

// MaintenanceConfig schedules background housekeeping.
type MaintenanceConfig struct {
	Enabled               bool          `mapstructure:"enabled"`
	SessionReapSchedule   string        `mapstructure:"session_reap_schedule"`
	SubscriptionSchedule  string        `mapstructure:"subscription_schedule"`
	SubscriptionMaxAge    time.Duration `mapstructure:"subscription_max_age"`
	NotificationSchedule  string        `mapstructure:"notification_schedule"`
	NotificationRetention time.Duration `mapstructure:"notification_retention"`
}

// EventsConfig configures cross-instance event fan-out.
type EventsConfig struct {
	NATS NATSConfig `mapstructure:"nats"`
}

// NATSConfig holds NATS connection options.
type NATSConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	URL           string        `mapstructure:"url"`
	SubjectPrefix string        `mapstructure:"subject_prefix"`
	Name          string        `mapstructure:"name"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

// MonitoringConfig enables metrics and health endpoints.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Health     HealthConfig     `mapstructure:"health_check"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// HealthConfig toggles health endpoints.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("REMINDERS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	}
	if c.Reminders.Interval <= 0 {
		return errors.New("config: reminders.interval must be positive")
	}
	if c.Reminders.DedupWindow <= 0 {
		return errors.New("config: reminders.dedup_window must be positive")
	}
	if _, err := c.Reminders.Location(); err != nil {
		return err
	}
	if _, err := language.Parse(c.Reminders.Locale); err != nil {
		return fmt.Errorf("config: reminders.locale %q: %w", c.Reminders.Locale, err)
	}
	if c.Reminders.TaskURLTemplate != "" && !strings.Contains(c.Reminders.TaskURLTemplate, "{id}") {
		return errors.New("config: reminders.task_url_template must contain {id}")
	}
	switch strings.ToLower(c.Push.Urgency) {
	case "", "very-low", "low", "normal", "high":
	default:
		return fmt.Errorf("config: push.urgency %q is not a Web Push urgency", c.Push.Urgency)
	}
	if (c.Push.VAPIDPublicKey == "") != (c.Push.VAPIDPrivateKey == "") {
		return errors.New("config: push.vapid_public_key and push.vapid_private_key must be set together")
	}
	return nil
}

// Location resolves the configured reminder time zone.
func (r RemindersConfig) Location() (*time.Location, error) {
	name := strings.TrimSpace(r.Timezone)
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("config: reminders.timezone %q: %w", name, err)
	}
	return loc, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.rate_limit.requests", 120)
	v.SetDefault("server.rate_limit.window", "1m")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/reminders.sqlite")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("auth.jwt.issuer", "")
	v.SetDefault("auth.jwt.access_token_ttl", "15m")
	v.SetDefault("auth.jwt.leeway", "30s")

	v.SetDefault("push.enabled", true)
	v.SetDefault("push.subject", "mailto:admin@example.com")
	v.SetDefault("push.ttl", "24h")
	v.SetDefault("push.urgency", "normal")
	v.SetDefault("push.timeout", "10s")
	v.SetDefault("push.concurrency", 4)
	v.SetDefault("push.rate_limit", 50)
	v.SetDefault("push.rate_burst", 10)
	v.SetDefault("push.dispatch_timeout", "30s")

	v.SetDefault("reminders.interval", "1h")
	v.SetDefault("reminders.dedup_window", "24h")
	v.SetDefault("reminders.timezone", "America/Sao_Paulo")
	v.SetDefault("reminders.locale", "pt-BR")
	v.SetDefault("reminders.task_url_template", "/tasks?task={id}")
	v.SetDefault("reminders.open_statuses", []string{"todo", "in_progress", "review"})
	v.SetDefault("reminders.concurrency", 4)
	v.SetDefault("reminders.session_idle_ttl", "3h")

	v.SetDefault("maintenance.enabled", true)
	v.SetDefault("maintenance.session_reap_schedule", "@every 5m")
	v.SetDefault("maintenance.subscription_schedule", "@daily")
	v.SetDefault("maintenance.subscription_max_age", "1440h") // 60 days
	v.SetDefault("maintenance.notification_schedule", "@daily")
	v.SetDefault("maintenance.notification_retention", "2160h") // 90 days

	v.SetDefault("events.nats.enabled", false)
	v.SetDefault("events.nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("events.nats.subject_prefix", "agency.events")
	v.SetDefault("events.nats.name", "reminders")
	v.SetDefault("events.nats.max_reconnects", -1)
	v.SetDefault("events.nats.reconnect_wait", "2s")

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
	v.SetDefault("monitoring.health_check.enabled", true)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
