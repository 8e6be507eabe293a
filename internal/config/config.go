package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	BackendMemory    = "memory"
	BackendSQLCipher = "sqlcipher"
	BackendRedis     = "redis"
	BackendConsole   = "console"
	BackendAMQP      = "amqp"
)

const minKeyLength = 32

type Config struct {
	// Challenge policy
	OTPValiditySeconds        int `mapstructure:"OTP_VALIDITY_SECONDS"`
	OTPAttemptsLimit          int `mapstructure:"OTP_ATTEMPTS_LIMIT"`
	OTPLockDurationHours      int `mapstructure:"OTP_LOCK_DURATION_HOURS"`
	ResetTokenValidityMinutes int `mapstructure:"RESET_TOKEN_VALIDITY_MINUTES"`

	// Customer directory
	DirectoryBackend string `mapstructure:"DIRECTORY_BACKEND"`
	DBPath           string `mapstructure:"DB_PATH"`
	DBEncryptionKey  string `mapstructure:"DB_ENCRYPTION_KEY"`
	AppEncryptionKey string `mapstructure:"APP_ENCRYPTION_KEY"`

	// Codes, tokens and onboarding locks
	StateBackend   string `mapstructure:"STATE_BACKEND"`
	RedisURL       string `mapstructure:"REDIS_URL"`
	RedisKeyPrefix string `mapstructure:"REDIS_KEY_PREFIX"`

	// Code delivery
	DeliveryBackend string `mapstructure:"DELIVERY_BACKEND"`
	RabbitMQURL     string `mapstructure:"RABBITMQ_URL"`
	OTPExchange     string `mapstructure:"OTP_EXCHANGE"`

	// Audit configuration
	AuditLogPath   string `mapstructure:"AUDIT_LOG_PATH"`
	AuditAsyncMode bool   `mapstructure:"AUDIT_ASYNC_MODE"`

	// Rate limiting
	RateLimitRPS   float64 `mapstructure:"RATE_LIMIT_REQUESTS_PER_SECOND"`
	RateLimitBurst int     `mapstructure:"RATE_LIMIT_BURST"`

	// Application settings
	MetricsAddr        string `mapstructure:"METRICS_ADDR"`
	Environment        string `mapstructure:"APP_ENV"`
	LogLevel           string `mapstructure:"LOG_LEVEL"`
	TermsConditionsURL string `mapstructure:"TERMS_CONDITIONS_URL"`
}

var defaults = map[string]any{
	"OTP_VALIDITY_SECONDS":           30,
	"OTP_ATTEMPTS_LIMIT":             3,
	"OTP_LOCK_DURATION_HOURS":        3,
	"RESET_TOKEN_VALIDITY_MINUTES":   5,
	"DIRECTORY_BACKEND":              BackendMemory,
	"DB_PATH":                        "./data/serendib.db",
	"DB_ENCRYPTION_KEY":              "",
	"APP_ENCRYPTION_KEY":             "",
	"STATE_BACKEND":                  BackendMemory,
	"REDIS_URL":                      "",
	"REDIS_KEY_PREFIX":               "serendib:auth",
	"DELIVERY_BACKEND":               BackendConsole,
	"RABBITMQ_URL":                   "",
	"OTP_EXCHANGE":                   "serendib.otp",
	"AUDIT_LOG_PATH":                 "",
	"AUDIT_ASYNC_MODE":               false,
	"RATE_LIMIT_REQUESTS_PER_SECOND": 1.0,
	"RATE_LIMIT_BURST":               10,
	"METRICS_ADDR":                   "",
	"APP_ENV":                        "development",
	"LOG_LEVEL":                      "info",
	"TERMS_CONDITIONS_URL":           "http://serendibank.lk/terms",
}

// Load reads configuration from the environment, after merging a .env file
// if one exists.
func Load() (*Config, error) {
	// Load .env file if exists (not required in production)
	_ = godotenv.Load()

	for key, value := range defaults {
		viper.SetDefault(key, value)
	}
	viper.AutomaticEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks limits and the settings each selected backend needs
func (c *Config) Validate() error {
	if c.OTPValiditySeconds <= 0 {
		return fmt.Errorf("OTP_VALIDITY_SECONDS must be positive")
	}
	if c.OTPAttemptsLimit <= 0 {
		return fmt.Errorf("OTP_ATTEMPTS_LIMIT must be positive")
	}
	if c.OTPLockDurationHours <= 0 {
		return fmt.Errorf("OTP_LOCK_DURATION_HOURS must be positive")
	}
	if c.ResetTokenValidityMinutes <= 0 {
		return fmt.Errorf("RESET_TOKEN_VALIDITY_MINUTES must be positive")
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS_PER_SECOND and RATE_LIMIT_BURST must be positive")
	}

	switch c.DirectoryBackend {
	case BackendMemory:
	case BackendSQLCipher:
		if len(c.DBEncryptionKey) < minKeyLength {
			return fmt.Errorf("DB_ENCRYPTION_KEY must be at least %d characters", minKeyLength)
		}
		if len(c.AppEncryptionKey) < minKeyLength {
			return fmt.Errorf("APP_ENCRYPTION_KEY must be at least %d characters", minKeyLength)
		}
	default:
		return fmt.Errorf("unknown DIRECTORY_BACKEND %q", c.DirectoryBackend)
	}

	switch c.StateBackend {
	case BackendMemory:
	case BackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required for the redis state backend")
		}
	default:
		return fmt.Errorf("unknown STATE_BACKEND %q", c.StateBackend)
	}

	switch c.DeliveryBackend {
	case BackendConsole:
	case BackendAMQP:
		if c.RabbitMQURL == "" {
			return fmt.Errorf("RABBITMQ_URL is required for the amqp delivery backend")
		}
	default:
		return fmt.Errorf("unknown DELIVERY_BACKEND %q", c.DeliveryBackend)
	}

	return nil
}

func (c *Config) OTPValidity() time.Duration {
	return time.Duration(c.OTPValiditySeconds) * time.Second
}

func (c *Config) LockDuration() time.Duration {
	return time.Duration(c.OTPLockDurationHours) * time.Hour
}

func (c *Config) ResetTokenValidity() time.Duration {
	return time.Duration(c.ResetTokenValidityMinutes) * time.Minute
}
