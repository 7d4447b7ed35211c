package config

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
	"github.com/kursadbilgin/campaign-engine/internal/domain"
)

type Config struct {
	DatabaseDSN string `env:"DATABASE_DSN,required=true"`
	RedisURL    string `env:"REDIS_URL"`
	RabbitMQURL string `env:"RABBITMQ_URL"`

	WhatsGateBaseURL    string `env:"WHATSGATE_BASE_URL,default=https://whatsgate.ru/api/v1"`
	WhatsGateWhatsappID string `env:"WHATSGATE_WHATSAPP_ID"`
	WhatsGateAPIKey     string `env:"WHATSGATE_API_KEY"`

	GatewayTimeoutSec          int `env:"GATEWAY_TIMEOUT_SEC,default=30"`
	GatewayBreakerFailures     int `env:"GATEWAY_BREAKER_FAILURES,default=5"`
	GatewayBreakerOpenSec      int `env:"GATEWAY_BREAKER_OPEN_SEC,default=30"`
	GatewayUnreachableAfterSec int `env:"GATEWAY_UNREACHABLE_AFTER_SEC,default=600"`

	MaxMediaBytes           int64 `env:"MAX_MEDIA_BYTES,default=10485760"`
	MaxMessagesPerHour      int   `env:"MAX_MESSAGES_PER_HOUR,default=3600"`
	TestMessageRatePerSec   int   `env:"TEST_MESSAGE_RATE_PER_SEC,default=1"`
	RecoveryScanIntervalSec int   `env:"RECOVERY_SCAN_INTERVAL_SEC,default=30"`
	LeaseTTLSec             int   `env:"LEASE_TTL_SEC,default=60"`
	ShutdownTimeoutSec      int   `env:"SHUTDOWN_TIMEOUT_SEC,default=15"`

	APIPort  int    `env:"API_PORT,default=8080"`
	LogLevel string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	positive := map[string]int{
		"GATEWAY_TIMEOUT_SEC":           c.GatewayTimeoutSec,
		"GATEWAY_BREAKER_FAILURES":      c.GatewayBreakerFailures,
		"GATEWAY_BREAKER_OPEN_SEC":      c.GatewayBreakerOpenSec,
		"GATEWAY_UNREACHABLE_AFTER_SEC": c.GatewayUnreachableAfterSec,
		"MAX_MESSAGES_PER_HOUR":         c.MaxMessagesPerHour,
		"TEST_MESSAGE_RATE_PER_SEC":     c.TestMessageRatePerSec,
		"RECOVERY_SCAN_INTERVAL_SEC":    c.RecoveryScanIntervalSec,
		"LEASE_TTL_SEC":                 c.LeaseTTLSec,
		"SHUTDOWN_TIMEOUT_SEC":          c.ShutdownTimeoutSec,
	}
	for name, value := range positive {
		if value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, value)
		}
	}
	if c.MaxMediaBytes <= 0 {
		return fmt.Errorf("MAX_MEDIA_BYTES must be positive, got %d", c.MaxMediaBytes)
	}
	return nil
}

// DefaultGatewaySettings is used until settings are saved through the API.
func (c *Config) DefaultGatewaySettings() domain.GatewaySettings {
	return domain.GatewaySettings{
		BaseURL:    c.WhatsGateBaseURL,
		WhatsappID: c.WhatsGateWhatsappID,
		APIKey:     c.WhatsGateAPIKey,
	}
}

func (c *Config) GatewayTimeout() time.Duration {
	return time.Duration(c.GatewayTimeoutSec) * time.Second
}

func (c *Config) GatewayBreakerOpen() time.Duration {
	return time.Duration(c.GatewayBreakerOpenSec) * time.Second
}

func (c *Config) GatewayUnreachableAfter() time.Duration {
	return time.Duration(c.GatewayUnreachableAfterSec) * time.Second
}

func (c *Config) RecoveryScanInterval() time.Duration {
	return time.Duration(c.RecoveryScanIntervalSec) * time.Second
}

func (c *Config) LeaseTTL() time.Duration {
	return time.Duration(c.LeaseTTLSec) * time.Second
}

func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSec) * time.Second
}
