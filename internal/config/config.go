/**
 * @description
 * This package handles the configuration management for the portal-service. It uses
 * the Viper library to read configuration from environment variables and an optional
 * .env file.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/transfa/portal-service/internal/domain"
)

const (
	defaultBankAPIBaseURL    = "http://localhost:8080/api"
	defaultRateLimitPrefix   = "portal:rate_limit"
	defaultEventsExchange    = "portal.events"
	defaultSweepSchedule     = "@every 5m"
	defaultVerifyPerMinute   = 20
	defaultSessionTTLMinutes = 30
	defaultBankTimeoutSecs   = 30
	defaultBalanceRevealSecs = 10
	defaultCVVRevealSecs     = 30
)

// Config holds all the configuration variables for the portal-service.
type Config struct {
	ServerPort                string `mapstructure:"SERVER_PORT"`
	BankAPIBaseURL            string `mapstructure:"BANK_API_BASE_URL"`
	BankAPITimeoutSeconds     int    `mapstructure:"BANK_API_TIMEOUT_SECONDS"`
	TransferAuthMode          string `mapstructure:"TRANSFER_AUTH_MODE"`
	TransferReverifyOnFailure bool   `mapstructure:"TRANSFER_REVERIFY_ON_FAILURE"`
	DatabaseURL               string `mapstructure:"DATABASE_URL"`
	RedisURL                  string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix      string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	VerifyRateLimitPerMinute  int    `mapstructure:"VERIFY_RATE_LIMIT_PER_MINUTE"`
	RabbitMQURL               string `mapstructure:"RABBITMQ_URL"`
	PortalEventsExchange      string `mapstructure:"PORTAL_EVENTS_EXCHANGE"`
	SessionTTLMinutes         int    `mapstructure:"SESSION_TTL_MINUTES"`
	SessionSweepSchedule      string `mapstructure:"SESSION_SWEEP_SCHEDULE"`
	BalanceRevealSeconds      int    `mapstructure:"BALANCE_REVEAL_SECONDS"`
	CVVRevealSeconds          int    `mapstructure:"CVV_REVEAL_SECONDS"`
	AllowedOrigins            string `mapstructure:"ALLOWED_ORIGINS"`
	CookieSecure              bool   `mapstructure:"COOKIE_SECURE"`
}

// LoadConfig reads configuration from environment variables and an optional .env file in path.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "8090")
	viper.SetDefault("BANK_API_BASE_URL", defaultBankAPIBaseURL)
	viper.SetDefault("BANK_API_TIMEOUT_SECONDS", defaultBankTimeoutSecs)
	viper.SetDefault("TRANSFER_AUTH_MODE", string(domain.AuthModePIN))
	viper.SetDefault("TRANSFER_REVERIFY_ON_FAILURE", false)
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", defaultRateLimitPrefix)
	viper.SetDefault("VERIFY_RATE_LIMIT_PER_MINUTE", defaultVerifyPerMinute)
	viper.SetDefault("PORTAL_EVENTS_EXCHANGE", defaultEventsExchange)
	viper.SetDefault("SESSION_TTL_MINUTES", defaultSessionTTLMinutes)
	viper.SetDefault("SESSION_SWEEP_SCHEDULE", defaultSweepSchedule)
	viper.SetDefault("BALANCE_REVEAL_SECONDS", defaultBalanceRevealSecs)
	viper.SetDefault("CVV_REVEAL_SECONDS", defaultCVVRevealSecs)
	viper.SetDefault("ALLOWED_ORIGINS", "http://localhost:3000")
	viper.SetDefault("COOKIE_SECURE", false)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("BANK_API_BASE_URL", "BANK_API_BASE_URL", "API_BASE_URL")
	_ = viper.BindEnv("BANK_API_TIMEOUT_SECONDS")
	_ = viper.BindEnv("TRANSFER_AUTH_MODE")
	_ = viper.BindEnv("TRANSFER_REVERIFY_ON_FAILURE")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "PORTAL_REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("VERIFY_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("PORTAL_EVENTS_EXCHANGE")
	_ = viper.BindEnv("SESSION_TTL_MINUTES")
	_ = viper.BindEnv("SESSION_SWEEP_SCHEDULE")
	_ = viper.BindEnv("BALANCE_REVEAL_SECONDS")
	_ = viper.BindEnv("CVV_REVEAL_SECONDS")
	_ = viper.BindEnv("ALLOWED_ORIGINS")
	_ = viper.BindEnv("COOKIE_SECURE")

	// It's okay if the config file doesn't exist.
	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}

	config.BankAPIBaseURL = strings.TrimRight(strings.TrimSpace(config.BankAPIBaseURL), "/")
	if config.BankAPIBaseURL == "" {
		config.BankAPIBaseURL = defaultBankAPIBaseURL
	}
	if config.BankAPITimeoutSeconds <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive bank api timeout; using default\" value=%d", config.BankAPITimeoutSeconds)
		config.BankAPITimeoutSeconds = defaultBankTimeoutSecs
	}

	rawMode := strings.ToLower(strings.TrimSpace(config.TransferAuthMode))
	config.TransferAuthMode = string(domain.ParseTransferAuthMode(rawMode))
	if rawMode != "" && rawMode != config.TransferAuthMode {
		log.Printf("level=warn component=config msg=\"unknown TRANSFER_AUTH_MODE; falling back to pin\" value=%q", rawMode)
	}

	config.DatabaseURL = strings.TrimSpace(config.DatabaseURL)
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RabbitMQURL = strings.TrimSpace(config.RabbitMQURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = defaultRateLimitPrefix
	}
	config.PortalEventsExchange = strings.TrimSpace(config.PortalEventsExchange)
	if config.PortalEventsExchange == "" {
		config.PortalEventsExchange = defaultEventsExchange
	}
	config.SessionSweepSchedule = strings.TrimSpace(config.SessionSweepSchedule)
	if config.SessionSweepSchedule == "" {
		config.SessionSweepSchedule = defaultSweepSchedule
	}

	if config.VerifyRateLimitPerMinute < 0 {
		log.Printf("level=warn component=config msg=\"negative verify rate limit configured; disabling limiter\" value=%d", config.VerifyRateLimitPerMinute)
		config.VerifyRateLimitPerMinute = 0
	}
	if config.SessionTTLMinutes <= 0 {
		config.SessionTTLMinutes = defaultSessionTTLMinutes
	}
	if config.BalanceRevealSeconds <= 0 {
		config.BalanceRevealSeconds = defaultBalanceRevealSecs
	}
	if config.CVVRevealSeconds <= 0 {
		config.CVVRevealSeconds = defaultCVVRevealSecs
	}

	return
}

// BankAPITimeout is the per-request timeout for backend calls.
func (c Config) BankAPITimeout() time.Duration {
	return time.Duration(c.BankAPITimeoutSeconds) * time.Second
}

// SessionTTL is the maximum lifetime of a portal session.
func (c Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

// BalanceRevealTTL is how long a revealed balance stays visible.
func (c Config) BalanceRevealTTL() time.Duration {
	return time.Duration(c.BalanceRevealSeconds) * time.Second
}

// CVVRevealTTL is how long a revealed CVV stays visible.
func (c Config) CVVRevealTTL() time.Duration {
	return time.Duration(c.CVVRevealSeconds) * time.Second
}

// AuthMode returns the parsed transfer authorization mode.
func (c Config) AuthMode() domain.TransferAuthMode {
	return domain.ParseTransferAuthMode(c.TransferAuthMode)
}

// Origins splits ALLOWED_ORIGINS into a list, dropping blanks.
func (c Config) Origins() []string {
	var origins []string
	for _, origin := range strings.Split(c.AllowedOrigins, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
