package config

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator"
	_ "github.com/joho/godotenv/autoload"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/providers/env"
)

type Config struct {
	Primary  Primary        `koanf:"primary"`
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Webhook  WebhookConfig  `koanf:"webhook"`
	Peer     PeerConfig     `koanf:"peer"`
	Retry    RetryConfig    `koanf:"retry"`
	Logger   LoggerConfig   `koanf:"logger"`
	Worker   WorkerConfig   `koanf:"worker"`
}

type Primary struct {
	Env string `koanf:"env" validate:"required"`
}

type ServerConfig struct {
	Port         string        `koanf:"port" validate:"required"`
	ReadTimeout  time.Duration `koanf:"read_timeout" validate:"required"`
	WriteTimeout time.Duration `koanf:"write_timeout" validate:"required"`
	IdleTimeout  time.Duration `koanf:"idle_timeout" validate:"required"`
	// PublicURL is the externally reachable base used when registering the
	// receive endpoint with the peer.
	PublicURL string `koanf:"public_url"`
}

type DatabaseConfig struct {
	Host            string        `koanf:"host" validate:"required"`
	Port            int           `koanf:"port" validate:"required"`
	User            string        `koanf:"user" validate:"required"`
	Password        string        `koanf:"password" validate:"required"`
	Name            string        `koanf:"name" validate:"required"`
	SSLMode         string        `koanf:"ssl_mode" validate:"required"`
	MaxOpenConns    int           `koanf:"max_open_conns" validate:"required"`
	MaxIdleConns    int           `koanf:"max_idle_conns" validate:"required"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime" validate:"required"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time" validate:"required"`
}

// WebhookConfig drives the signing protocol shared with the peer.
// EnforceSignature is explicit configuration, never inferred from the
// environment or from payload shape.
type WebhookConfig struct {
	WebhookID        string        `koanf:"webhook_id"`
	SharedSecret     string        `koanf:"shared_secret" validate:"required"`
	Source           string        `koanf:"source"`
	ProtocolVersion  string        `koanf:"protocol_version"`
	FreshnessWindow  time.Duration `koanf:"freshness_window"`
	EnforceSignature bool          `koanf:"enforce_signature"`
}

type PeerConfig struct {
	// ReceiveURL is the peer's inbound webhook endpoint.
	ReceiveURL string `koanf:"receive_url" validate:"required"`
	// APIBaseURL is the peer's REST base, used for sync and registration.
	APIBaseURL string        `koanf:"api_base_url" validate:"required"`
	Timeout    time.Duration `koanf:"timeout"`
}

type RetryConfig struct {
	BaseDelay  int32 `koanf:"base_delay"`
	MaxRetries int32 `koanf:"max_retries"`
}

type LoggerConfig struct {
	Level string `koanf:"level"`
}

type WorkerConfig struct {
	Interval    time.Duration `koanf:"interval" validate:"required"`
	BatchSize   int           `koanf:"batch_size" validate:"required"`
	MaxAttempts int           `koanf:"max_attempts"`
}

// NewLogger builds the process logger from the configured level.
func (c LoggerConfig) NewLogger() *slog.Logger {
	var level slog.Level
	switch strings.ToLower(c.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
}

func LoadConfig() (*Config, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
	k := koanf.New(".")

	err := k.Load(env.Provider("GATEWAY_", ".", func(s string) string {
		return strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(s, "GATEWAY_")),
			"__",
			".",
		)
	}), nil)
	if err != nil {
		logger.Error("failed to load environment variables", "error", err)
		return nil, err
	}

	mainConfig := &Config{}

	err = k.Unmarshal("", mainConfig)
	if err != nil {
		logger.Error("could not unmarshal main config", "error", err)
		return nil, err
	}

	applyDefaults(mainConfig)

	validate := validator.New()

	err = validate.Struct(mainConfig)
	if err != nil {
		logger.Error("config validation failed", "error", err)
		return nil, err
	}

	return mainConfig, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Webhook.WebhookID == "" {
		cfg.Webhook.WebhookID = "DCB-LEMX-WEBHOOK-001"
	}
	if cfg.Webhook.Source == "" {
		cfg.Webhook.Source = "dcb_treasury"
	}
	if cfg.Webhook.ProtocolVersion == "" {
		cfg.Webhook.ProtocolVersion = "1.0.0"
	}
	if cfg.Webhook.FreshnessWindow == 0 {
		cfg.Webhook.FreshnessWindow = 5 * time.Minute
	}
	if cfg.Peer.Timeout == 0 {
		cfg.Peer.Timeout = 10 * time.Second
	}
	if cfg.Retry.BaseDelay == 0 {
		cfg.Retry.BaseDelay = 1
	}
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry.MaxRetries = 3
	}
	if cfg.Worker.MaxAttempts == 0 {
		cfg.Worker.MaxAttempts = 5
	}
}
