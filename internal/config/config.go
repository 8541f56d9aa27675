/**
 * @description
 * This file handles configuration management for the provision-service.
 * It uses the Viper library to read settings from environment variables or a
 * .env file, with defaults for everything that has a sane one.
 *
 * @dependencies
 * - github.com/spf13/viper: For configuration management.
 */
package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
)

// Config stores all configuration for the application.
type Config struct {
	ServerPort    string `mapstructure:"SERVER_PORT"`
	PublicBaseURL string `mapstructure:"PUBLIC_BASE_URL"`

	DatabaseURL string `mapstructure:"DATABASE_URL"`
	RedisURL    string `mapstructure:"REDIS_URL"`
	RabbitMQURL string `mapstructure:"RABBITMQ_URL"`

	ProviderAPIBaseURL string `mapstructure:"PROVIDER_API_BASE_URL"`
	ProviderAPIKey     string `mapstructure:"PROVIDER_API_KEY"`

	OAuthClientID     string `mapstructure:"OAUTH_CLIENT_ID"`
	OAuthClientSecret string `mapstructure:"OAUTH_CLIENT_SECRET"`
	OAuthAuthorizeURL string `mapstructure:"OAUTH_AUTHORIZE_URL"`
	OAuthTokenURL     string `mapstructure:"OAUTH_TOKEN_URL"`
	OAuthRedirectURL  string `mapstructure:"OAUTH_REDIRECT_URL"`
	OAuthScope        string `mapstructure:"OAUTH_SCOPE"`

	StateSigningSecret string `mapstructure:"STATE_SIGNING_SECRET"`

	CreateRateLimit         int `mapstructure:"CREATE_RATE_LIMIT"`
	CreateRateWindowSeconds int `mapstructure:"CREATE_RATE_WINDOW_SECONDS"`
	RouteRateLimit          int `mapstructure:"ROUTE_RATE_LIMIT"`
	RouteRateWindowSeconds  int `mapstructure:"ROUTE_RATE_WINDOW_SECONDS"`

	MinTTLMs int64 `mapstructure:"MIN_TTL_MS"`
	MaxTTLMs int64 `mapstructure:"MAX_TTL_MS"`

	DeletionJobSchedule string `mapstructure:"DELETION_JOB_SCHEDULE"`
	StaleSweepSchedule  string `mapstructure:"STALE_SWEEP_SCHEDULE"`
	DeletionMaxAttempts int    `mapstructure:"DELETION_MAX_ATTEMPTS"`
	SweepPageSize       int    `mapstructure:"SWEEP_PAGE_SIZE"`

	ClaimSuccessURL string `mapstructure:"CLAIM_SUCCESS_URL"`
	ClaimErrorURL   string `mapstructure:"CLAIM_ERROR_URL"`

	AnalyticsExchange string `mapstructure:"ANALYTICS_EXCHANGE"`
}

var requiredKeys = []string{
	"PROVIDER_API_BASE_URL",
	"PROVIDER_API_KEY",
	"STATE_SIGNING_SECRET",
	"CLAIM_SUCCESS_URL",
	"CLAIM_ERROR_URL",
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig() (*Config, error) {
	viper.AddConfigPath(".")
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("SERVER_PORT", "8086")
	viper.SetDefault("PUBLIC_BASE_URL", "http://localhost:8086")
	viper.SetDefault("CREATE_RATE_LIMIT", 30)
	viper.SetDefault("CREATE_RATE_WINDOW_SECONDS", 60)
	viper.SetDefault("ROUTE_RATE_LIMIT", 10)
	viper.SetDefault("ROUTE_RATE_WINDOW_SECONDS", 60)
	viper.SetDefault("MIN_TTL_MS", 1800000)
	viper.SetDefault("MAX_TTL_MS", 86400000)
	viper.SetDefault("DELETION_JOB_SCHEDULE", "@every 30s")
	viper.SetDefault("STALE_SWEEP_SCHEDULE", "@every 1h")
	viper.SetDefault("DELETION_MAX_ATTEMPTS", 5)
	viper.SetDefault("SWEEP_PAGE_SIZE", 100)
	viper.SetDefault("OAUTH_SCOPE", "openid profile")
	viper.SetDefault("ANALYTICS_EXCHANGE", "flashpg.events")

	// Bind envs explicitly so containers pick them up reliably
	keys := []string{
		"SERVER_PORT", "PUBLIC_BASE_URL",
		"DATABASE_URL", "REDIS_URL", "RABBITMQ_URL",
		"PROVIDER_API_BASE_URL", "PROVIDER_API_KEY",
		"OAUTH_CLIENT_ID", "OAUTH_CLIENT_SECRET", "OAUTH_AUTHORIZE_URL",
		"OAUTH_TOKEN_URL", "OAUTH_REDIRECT_URL", "OAUTH_SCOPE",
		"STATE_SIGNING_SECRET",
		"CREATE_RATE_LIMIT", "CREATE_RATE_WINDOW_SECONDS",
		"ROUTE_RATE_LIMIT", "ROUTE_RATE_WINDOW_SECONDS",
		"MIN_TTL_MS", "MAX_TTL_MS",
		"DELETION_JOB_SCHEDULE", "STALE_SWEEP_SCHEDULE",
		"DELETION_MAX_ATTEMPTS", "SWEEP_PAGE_SIZE",
		"CLAIM_SUCCESS_URL", "CLAIM_ERROR_URL",
		"ANALYTICS_EXCHANGE",
	}
	for _, key := range keys {
		_ = viper.BindEnv(key)
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("Warning: Error reading config file: %s", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	for _, key := range requiredKeys {
		if strings.TrimSpace(viper.GetString(key)) == "" {
			return nil, fmt.Errorf("missing required configuration: %s", key)
		}
	}

	return &config, nil
}
