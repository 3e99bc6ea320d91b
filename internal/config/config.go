// Package config holds the runtime settings of the points server and its tools.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	defaultListenAddr      = ":8080"
	defaultDatabaseURL     = DatabaseMemory
	defaultStoreDriver     = StoreDriverGorm
	defaultAPIBaseURL      = "https://api.telegram.org"
	defaultGatewayTimeout  = 10 * time.Second
	defaultAllowedOrigin   = "*"
	defaultNotifyWorkers   = 2
	defaultNotifyQueueSize = 256
	defaultLogLevel        = "info"
	webhookPath            = "/api/telegram-webhook"
	maxWebhookSecretLength = 256
	webhookSecretCharset   = "A-Z, a-z, 0-9, _ and -"
)

// DatabaseMemory selects the process-local store.
const DatabaseMemory = "memory"

// Store drivers for postgres URLs.
const (
	StoreDriverGorm = "gorm"
	StoreDriverPgx  = "pgx"
)

var (
	// ErrMissingBotToken reports an unset bot token.
	ErrMissingBotToken = errors.New("bot token is required")
	// ErrInvalidConfig reports any other rejected setting.
	ErrInvalidConfig = errors.New("invalid config")
)

// Config aggregates runtime settings for pointsd.
type Config struct {
	ListenAddr        string
	GRPCListenAddr    string
	DatabaseURL       string
	StoreDriver       string
	BotToken          string
	AppURL            string
	WebhookSecret     string
	APIBaseURL        string
	GatewayTimeout    time.Duration
	AllowedOrigins    []string
	NotifyWorkers     int
	NotifyQueueSize   int
	NotifySendTimeout time.Duration
	LogLevel          string
}

// Validate applies defaults and rejects unusable settings.
func (cfg *Config) Validate() error {
	cfg.ListenAddr = defaultIfEmpty(cfg.ListenAddr, defaultListenAddr)
	cfg.GRPCListenAddr = strings.TrimSpace(cfg.GRPCListenAddr)
	cfg.DatabaseURL = defaultIfEmpty(cfg.DatabaseURL, defaultDatabaseURL)
	cfg.StoreDriver = strings.ToLower(defaultIfEmpty(cfg.StoreDriver, defaultStoreDriver))
	cfg.APIBaseURL = strings.TrimRight(defaultIfEmpty(cfg.APIBaseURL, defaultAPIBaseURL), "/")
	cfg.AppURL = strings.TrimRight(strings.TrimSpace(cfg.AppURL), "/")
	cfg.BotToken = strings.TrimSpace(cfg.BotToken)
	cfg.LogLevel = strings.ToLower(defaultIfEmpty(cfg.LogLevel, defaultLogLevel))
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = defaultGatewayTimeout
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{defaultAllowedOrigin}
	}
	if cfg.NotifyWorkers <= 0 {
		cfg.NotifyWorkers = defaultNotifyWorkers
	}
	if cfg.NotifyQueueSize <= 0 {
		cfg.NotifyQueueSize = defaultNotifyQueueSize
	}
	if cfg.NotifySendTimeout <= 0 {
		cfg.NotifySendTimeout = cfg.GatewayTimeout
	}

	if cfg.BotToken == "" {
		return ErrMissingBotToken
	}
	if cfg.StoreDriver != StoreDriverGorm && cfg.StoreDriver != StoreDriverPgx {
		return fmt.Errorf("%w: store driver %q must be %s or %s", ErrInvalidConfig, cfg.StoreDriver, StoreDriverGorm, StoreDriverPgx)
	}
	if cfg.AppURL != "" {
		if err := requireHTTPURL(cfg.AppURL); err != nil {
			return fmt.Errorf("%w: app url: %v", ErrInvalidConfig, err)
		}
	}
	if err := requireHTTPURL(cfg.APIBaseURL); err != nil {
		return fmt.Errorf("%w: api base url: %v", ErrInvalidConfig, err)
	}
	if err := validateWebhookSecret(cfg.WebhookSecret); err != nil {
		return err
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: log level %q", ErrInvalidConfig, cfg.LogLevel)
	}
	return nil
}

// WebhookURL is the endpoint Telegram should deliver updates to.
func (cfg Config) WebhookURL() (string, error) {
	appURL := strings.TrimRight(strings.TrimSpace(cfg.AppURL), "/")
	if appURL == "" {
		return "", fmt.Errorf("%w: app url is required to derive the webhook url", ErrInvalidConfig)
	}
	if err := requireHTTPURL(appURL); err != nil {
		return "", fmt.Errorf("%w: app url: %v", ErrInvalidConfig, err)
	}
	return appURL + webhookPath, nil
}

// ParseAllowedOrigins splits comma-delimited origins into a slice.
func ParseAllowedOrigins(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}
	return normalized
}

func defaultIfEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}

func requireHTTPURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("scheme %q is not http(s)", parsed.Scheme)
	}
	if parsed.Host == "" {
		return errors.New("host is required")
	}
	return nil
}

// Telegram accepts 1-256 characters from A-Z, a-z, 0-9, _ and -.
func validateWebhookSecret(secret string) error {
	if secret == "" {
		return nil
	}
	if len(secret) > maxWebhookSecretLength {
		return fmt.Errorf("%w: webhook secret longer than %d characters", ErrInvalidConfig, maxWebhookSecretLength)
	}
	for _, character := range secret {
		switch {
		case character >= 'A' && character <= 'Z',
			character >= 'a' && character <= 'z',
			character >= '0' && character <= '9',
			character == '_', character == '-':
		default:
			return fmt.Errorf("%w: webhook secret may only contain %s", ErrInvalidConfig, webhookSecretCharset)
		}
	}
	return nil
}
