package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config represents the runtime configuration for the Smart Post backend.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Media         MediaConfig         `mapstructure:"media"`
	Maintenance   MaintenanceConfig   `mapstructure:"maintenance"`
	Monitoring    MonitoringConfig    `mapstructure:"monitoring"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	LogLevel        string        `mapstructure:"log_level"`
	LogFormat       string        `mapstructure:"log_format"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	TrustedProxies  []string      `mapstructure:"trusted_proxies"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string            `mapstructure:"driver"`
	Path     string            `mapstructure:"path"`
	DSN      string            `mapstructure:"dsn"`
	Host     string            `mapstructure:"host"`
	Port     int               `mapstructure:"port"`
	Name     string            `mapstructure:"name"`
	User     string            `mapstructure:"user"`
	Password string            `mapstructure:"password"`
	Options  map[string]string `mapstructure:"options"`
}

// AuthConfig captures authentication settings.
type AuthConfig struct {
	JWT          JWTSettings     `mapstructure:"jwt"`
	SeedDemoUser bool            `mapstructure:"seed_demo_user"`
	RateLimit    RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig bounds signup and login attempts per client.
type RateLimitConfig struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
	// Store is "memory" or "database". The database store shares counters across instances.
	Store string `mapstructure:"store"`
}

// JWTSettings configures JWT access tokens.
type JWTSettings struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"access_token_ttl"`
}

// NotificationsConfig selects and tunes the delivery channels.
type NotificationsConfig struct {
	ChannelTimeout   time.Duration  `mapstructure:"channel_timeout"`
	PushPlaceholders bool           `mapstructure:"push_placeholders"`
	Realtime         RealtimeConfig `mapstructure:"realtime"`
	Kafka            KafkaConfig    `mapstructure:"kafka"`
}

// RealtimeConfig toggles websocket fan-out.
type RealtimeConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// KafkaConfig configures the event bus channel.
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// MediaConfig configures ephemeral media storage.
type MediaConfig struct {
	UploadDir      string        `mapstructure:"upload_dir"`
	TTL            time.Duration `mapstructure:"ttl"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes"`
}

// MaintenanceConfig schedules background jobs.
type MaintenanceConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	MediaSchedule     string `mapstructure:"media_schedule"`
	RateLimitSchedule string `mapstructure:"rate_limit_schedule"`
}

// MonitoringConfig enables health checks and metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// PrometheusConfig toggles the metrics endpoint.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
// Values are read from config/config.yaml (or the supplied paths) and SMARTPOST_* env vars.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("SMARTPOST")
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

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.trusted_proxies", []string{})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/smartpost.sqlite")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.host", "")
	v.SetDefault("database.port", 0)
	v.SetDefault("database.name", "")
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")

	v.SetDefault("auth.jwt.secret", "")
	v.SetDefault("auth.jwt.issuer", "smartpost")
	v.SetDefault("auth.jwt.access_token_ttl", "12h")
	v.SetDefault("auth.seed_demo_user", true)
	v.SetDefault("auth.rate_limit.requests", 20)
	v.SetDefault("auth.rate_limit.window", "1m")
	v.SetDefault("auth.rate_limit.store", "memory")

	v.SetDefault("notifications.channel_timeout", "5s")
	v.SetDefault("notifications.push_placeholders", true)
	v.SetDefault("notifications.realtime.enabled", true)
	v.SetDefault("notifications.kafka.enabled", false)
	v.SetDefault("notifications.kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("notifications.kafka.topic", "smartpost.notifications")

	v.SetDefault("media.upload_dir", "./data/uploads")
	v.SetDefault("media.ttl", "180s")
	v.SetDefault("media.max_upload_bytes", 50<<20)

	v.SetDefault("maintenance.enabled", true)
	v.SetDefault("maintenance.media_schedule", "@every 5m")
	v.SetDefault("maintenance.rate_limit_schedule", "@every 10m")

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
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
