package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAppName             = "CongoPay Settlement"
	defaultAppEnv              = "development"
	defaultPort                = "8080"
	defaultLogLevel            = "info"
	defaultShutdownDelay       = 10 * time.Second
	defaultIdempotencyTTL      = 24 * time.Hour
	defaultGatewayTimeout      = 30 * time.Second
	defaultStatementDescriptor = "CONGOPAY"
	defaultMangopayBaseURL     = "https://api.sandbox.mangopay.com"
	defaultNotificationsTopic  = "participant-notifications"
	defaultDBMaxConns          = 10
	defaultDBMaxConnLifetime   = 30 * time.Minute
	defaultDBConnectTimeout    = 5 * time.Second
	idemTTLSecondsEnvVar       = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar           = "IDEMPOTENCY_TTL"
	shutdownSecondsEnvVar      = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar     = "SHUTDOWN_TIMEOUT"
	gatewaySecondsEnvVar       = "GATEWAY_TIMEOUT_SECONDS"
	gatewayDurationEnvVar      = "GATEWAY_TIMEOUT"
	dbLifetimeSecondsEnvVar    = "DB_MAX_CONN_LIFETIME_SECONDS"
	dbLifetimeDurationEnvVar   = "DB_MAX_CONN_LIFETIME"
	dbConnectSecondsEnvVar     = "DB_CONNECT_TIMEOUT_SECONDS"
	dbConnectDurationEnvVar    = "DB_CONNECT_TIMEOUT"

	// card statement descriptors are capped by the card networks
	maxDescriptorLen = 22
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	DatabaseURL    string
	RedisURL       string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	DBMaxConns        int32
	DBMinConns        int32
	DBMaxConnLifetime time.Duration
	DBConnectTimeout  time.Duration

	StripeSecretKey       string
	StripePlatformAccount string
	StatementDescriptor   string

	MangopayBaseURL  string
	MangopayClientID string
	MangopayAPIKey   string

	GatewayTimeout time.Duration

	KafkaBrokers       []string
	NotificationsTopic string

	NewRelicLicenseKey string
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:               getEnv("APP_NAME", defaultAppName),
		AppEnv:                getEnv("APP_ENV", defaultAppEnv),
		Port:                  getEnv("PORT", defaultPort),
		LogLevel:              strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisURL:              os.Getenv("REDIS_URL"),
		StripeSecretKey:       os.Getenv("STRIPE_SECRET_KEY"),
		StripePlatformAccount: os.Getenv("STRIPE_PLATFORM_ACCOUNT"),
		StatementDescriptor:   getEnv("STATEMENT_DESCRIPTOR", defaultStatementDescriptor),
		MangopayBaseURL:       strings.TrimRight(getEnv("MANGOPAY_BASE_URL", defaultMangopayBaseURL), "/"),
		MangopayClientID:      os.Getenv("MANGOPAY_CLIENT_ID"),
		MangopayAPIKey:        os.Getenv("MANGOPAY_API_KEY"),
		KafkaBrokers:          splitList(os.Getenv("KAFKA_BROKERS")),
		NotificationsTopic:    getEnv("NOTIFICATIONS_TOPIC", defaultNotificationsTopic),
		NewRelicLicenseKey:    os.Getenv("NEW_RELIC_LICENSE_KEY"),
	}

	var err error
	if cfg.ShutdownPeriod, err = durationEnv(shutdownSecondsEnvVar, shutdownDurationEnvVar, defaultShutdownDelay); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationEnv(idemTTLSecondsEnvVar, idemTTLDurEnvVar, defaultIdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.GatewayTimeout, err = durationEnv(gatewaySecondsEnvVar, gatewayDurationEnvVar, defaultGatewayTimeout); err != nil {
		return Config{}, err
	}

	if cfg.DBMaxConnLifetime, err = durationEnv(dbLifetimeSecondsEnvVar, dbLifetimeDurationEnvVar, defaultDBMaxConnLifetime); err != nil {
		return Config{}, err
	}
	if cfg.DBConnectTimeout, err = durationEnv(dbConnectSecondsEnvVar, dbConnectDurationEnvVar, defaultDBConnectTimeout); err != nil {
		return Config{}, err
	}
	if cfg.DBMaxConns, err = int32Env("DB_MAX_CONNS", defaultDBMaxConns); err != nil {
		return Config{}, err
	}
	if cfg.DBMinConns, err = int32Env("DB_MIN_CONNS", 0); err != nil {
		return Config{}, err
	}
	if cfg.DBMaxConns <= 0 || cfg.DBMinConns < 0 || cfg.DBMinConns > cfg.DBMaxConns {
		return Config{}, fmt.Errorf("invalid DB_MIN_CONNS/DB_MAX_CONNS: %d/%d", cfg.DBMinConns, cfg.DBMaxConns)
	}

	required := []struct {
		name  string
		value string
	}{
		{"DATABASE_URL", cfg.DatabaseURL},
		{"REDIS_URL", cfg.RedisURL},
		{"STRIPE_SECRET_KEY", cfg.StripeSecretKey},
		{"STRIPE_PLATFORM_ACCOUNT", cfg.StripePlatformAccount},
		{"MANGOPAY_CLIENT_ID", cfg.MangopayClientID},
		{"MANGOPAY_API_KEY", cfg.MangopayAPIKey},
	}
	for _, r := range required {
		if r.value == "" {
			return Config{}, fmt.Errorf("%s must be set", r.name)
		}
	}

	if len(cfg.StatementDescriptor) > maxDescriptorLen {
		return Config{}, fmt.Errorf("invalid STATEMENT_DESCRIPTOR: longer than %d characters", maxDescriptorLen)
	}

	return cfg, nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// NotificationsEnabled reports whether notifications are published to Kafka.
func (c Config) NotificationsEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// durationEnv reads a whole number of seconds from secondsKey, or else a
// Go duration string from durationKey.
func durationEnv(secondsKey, durationKey string, fallback time.Duration) (time.Duration, error) {
	if v := os.Getenv(secondsKey); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	if v := os.Getenv(durationKey); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", durationKey, err)
		}
		return d, nil
	}
	return fallback, nil
}

func int32Env(key string, fallback int32) (int32, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return int32(n), nil
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
