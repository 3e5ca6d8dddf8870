/**
 * @description
 * This package handles configuration management for the marketplace binaries.
 * It uses the Viper library to read configuration from environment variables
 * and an optional .env file, providing a single Config shared by the API,
 * the scheduler and the seeder.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"errors"
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the marketplace.
type Config struct {
	ServerPort         string `mapstructure:"SERVER_PORT"`
	AppEnv             string `mapstructure:"APP_ENV"`
	DatabaseURL        string `mapstructure:"DATABASE_URL"`
	SessionSecret      string `mapstructure:"SESSION_SECRET"`
	CORSAllowedOrigins string `mapstructure:"CORS_ALLOWED_ORIGINS"`

	StripeSecretKey     string `mapstructure:"STRIPE_SECRET_KEY"`
	StripePublicKey     string `mapstructure:"STRIPE_PUBLIC_KEY"`
	StripeWebhookSecret string `mapstructure:"STRIPE_WEBHOOK_SECRET"`
	StripeAPIBaseURL    string `mapstructure:"STRIPE_API_BASE_URL"`

	RabbitMQURL         string `mapstructure:"RABBITMQ_URL"`
	EventExchange       string `mapstructure:"EVENT_EXCHANGE"`
	PropertyFanoutQueue string `mapstructure:"PROPERTY_FANOUT_QUEUE"`

	RedisURL                string `mapstructure:"REDIS_URL"`
	RedisKeyPrefix          string `mapstructure:"REDIS_KEY_PREFIX"`
	PropertyCacheTTLSeconds int    `mapstructure:"PROPERTY_CACHE_TTL_SECONDS"`
	LoginRateLimitPerMinute int    `mapstructure:"LOGIN_RATE_LIMIT_PER_MINUTE"`
	// TrustProxyHeaders takes the client address from X-Forwarded-For and
	// X-Real-IP. Only enable it behind a proxy that overwrites those headers.
	TrustProxyHeaders bool `mapstructure:"TRUST_PROXY_HEADERS"`

	ExpireListingsSchedule     string `mapstructure:"EXPIRE_LISTINGS_SCHEDULE"`
	LapseSubscriptionsSchedule string `mapstructure:"LAPSE_SUBSCRIPTIONS_SCHEDULE"`
	PruneSessionsSchedule      string `mapstructure:"PRUNE_SESSIONS_SCHEDULE"`
	PruneOutboxSchedule        string `mapstructure:"PRUNE_OUTBOX_SCHEDULE"`
	OutboxRetentionDays        int    `mapstructure:"OUTBOX_RETENTION_DAYS"`

	SeedAdminPassword string `mapstructure:"SEED_ADMIN_PASSWORD"`
	SeedDemoPassword  string `mapstructure:"SEED_DEMO_PASSWORD"`
}

var configKeys = []string{
	"SERVER_PORT",
	"APP_ENV",
	"DATABASE_URL",
	"SESSION_SECRET",
	"CORS_ALLOWED_ORIGINS",
	"STRIPE_SECRET_KEY",
	"STRIPE_PUBLIC_KEY",
	"STRIPE_WEBHOOK_SECRET",
	"STRIPE_API_BASE_URL",
	"RABBITMQ_URL",
	"EVENT_EXCHANGE",
	"PROPERTY_FANOUT_QUEUE",
	"REDIS_URL",
	"REDIS_KEY_PREFIX",
	"PROPERTY_CACHE_TTL_SECONDS",
	"LOGIN_RATE_LIMIT_PER_MINUTE",
	"TRUST_PROXY_HEADERS",
	"EXPIRE_LISTINGS_SCHEDULE",
	"LAPSE_SUBSCRIPTIONS_SCHEDULE",
	"PRUNE_SESSIONS_SCHEDULE",
	"PRUNE_OUTBOX_SCHEDULE",
	"OUTBOX_RETENTION_DAYS",
	"SEED_ADMIN_PASSWORD",
	"SEED_DEMO_PASSWORD",
}

// ErrSessionSecretMissing is returned when the API is configured without a session secret.
var ErrSessionSecretMissing = errors.New("SESSION_SECRET must be set in environment variables")

// LoadConfig reads configuration from environment variables and an optional
// .env file in path.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "https://*,http://*")
	viper.SetDefault("STRIPE_API_BASE_URL", "https://api.stripe.com")
	viper.SetDefault("EVENT_EXCHANGE", "zimproperty.events")
	viper.SetDefault("PROPERTY_FANOUT_QUEUE", "zimproperty.property_fanout")
	viper.SetDefault("REDIS_KEY_PREFIX", "zimproperty")
	viper.SetDefault("PROPERTY_CACHE_TTL_SECONDS", 60)
	viper.SetDefault("LOGIN_RATE_LIMIT_PER_MINUTE", 10)
	viper.SetDefault("TRUST_PROXY_HEADERS", false)
	viper.SetDefault("EXPIRE_LISTINGS_SCHEDULE", "*/15 * * * *")
	viper.SetDefault("LAPSE_SUBSCRIPTIONS_SCHEDULE", "0 * * * *")
	viper.SetDefault("PRUNE_SESSIONS_SCHEDULE", "30 3 * * *")
	viper.SetDefault("PRUNE_OUTBOX_SCHEDULE", "45 3 * * *")
	viper.SetDefault("OUTBOX_RETENTION_DAYS", 7)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	for _, key := range configKeys {
		_ = viper.BindEnv(key)
	}
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "ZIMPROPERTY_REDIS_URL")

	// Attempt to read the config file. It's okay if it doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
		err = nil
	}

	if err = viper.Unmarshal(&config); err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.AppEnv = strings.ToLower(strings.TrimSpace(config.AppEnv))
	config.SessionSecret = strings.TrimSpace(config.SessionSecret)
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisKeyPrefix = strings.TrimSuffix(strings.TrimSpace(config.RedisKeyPrefix), ":")
	if config.RedisKeyPrefix == "" {
		config.RedisKeyPrefix = "zimproperty"
	}
	if strings.TrimSpace(config.EventExchange) == "" {
		config.EventExchange = "zimproperty.events"
	}
	if config.PropertyCacheTTLSeconds < 0 {
		log.Printf("level=warn component=config msg=\"negative property cache ttl; disabling cache\" ttl=%d", config.PropertyCacheTTLSeconds)
		config.PropertyCacheTTLSeconds = 0
	}
	if config.LoginRateLimitPerMinute < 0 {
		config.LoginRateLimitPerMinute = 0
	}
	if config.OutboxRetentionDays < 1 {
		config.OutboxRetentionDays = 1
	}

	return
}

// IsProduction reports whether cookies should be marked Secure.
func (c Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// AllowedOrigins splits CORS_ALLOWED_ORIGINS on commas.
func (c Config) AllowedOrigins() []string {
	var origins []string
	for _, origin := range strings.Split(c.CORSAllowedOrigins, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

// ValidateAPI checks the settings the HTTP API cannot start without.
func (c Config) ValidateAPI() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return errors.New("DATABASE_URL must be set in environment variables")
	}
	if c.SessionSecret == "" {
		return ErrSessionSecretMissing
	}
	return nil
}
