package config

import (
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	DatabaseURL  string
	Port         string
	IsProduction bool

	// Idempotency and orchestration tunables.
	ClaimTTL          time.Duration
	ResultTTL         time.Duration
	FingerprintWindow time.Duration
	GatewayTimeout    time.Duration
	WebhookEventTTL   time.Duration

	// DefaultPlatformFeeRate applies when a payment request carries no rate.
	DefaultPlatformFeeRate decimal.Decimal

	// Rate limiting for the payment endpoints, in limiter format (e.g. "60-M").
	RateLimit string

	// Kafka event publishing. Disabled when no brokers are configured.
	KafkaBrokers []string
	KafkaTopic   string
}

// LoadConfig loads configuration from environment variables and .env file if present.
func LoadConfig() (*Config, error) {
	// Attempt to load .env file, ignore error if it doesn't exist
	_ = godotenv.Load()

	viper.SetDefault("PGSQL_URL", "")
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("IS_PRODUCTION", false)
	viper.SetDefault("CLAIM_TTL", "2m")
	viper.SetDefault("RESULT_TTL", "24h")
	viper.SetDefault("FINGERPRINT_WINDOW", "5m")
	viper.SetDefault("GATEWAY_TIMEOUT", "10s")
	viper.SetDefault("WEBHOOK_EVENT_TTL", "2m")
	viper.SetDefault("DEFAULT_PLATFORM_FEE_RATE", "0.10")
	viper.SetDefault("RATE_LIMIT", "60-M")
	viper.SetDefault("KAFKA_BROKERS", "")
	viper.SetDefault("KAFKA_TOPIC", "ledger.transactions")

	viper.AutomaticEnv()

	cfg := &Config{}

	cfg.DatabaseURL = viper.GetString("PGSQL_URL")
	if cfg.DatabaseURL == "" {
		log.Println("Warning: PGSQL_URL environment variable not set.")
	}

	cfg.Port = viper.GetString("PORT")
	cfg.IsProduction = viper.GetBool("IS_PRODUCTION")

	cfg.ClaimTTL = parseDurationOrDefault("CLAIM_TTL", 2*time.Minute)
	cfg.ResultTTL = parseDurationOrDefault("RESULT_TTL", 24*time.Hour)
	cfg.FingerprintWindow = parseDurationOrDefault("FINGERPRINT_WINDOW", 5*time.Minute)
	cfg.GatewayTimeout = parseDurationOrDefault("GATEWAY_TIMEOUT", 10*time.Second)
	cfg.WebhookEventTTL = parseDurationOrDefault("WEBHOOK_EVENT_TTL", 2*time.Minute)

	feeRateStr := viper.GetString("DEFAULT_PLATFORM_FEE_RATE")
	feeRate, err := decimal.NewFromString(feeRateStr)
	if err != nil || feeRate.IsNegative() {
		log.Printf("Warning: Invalid value for DEFAULT_PLATFORM_FEE_RATE ('%s'). Defaulting to 0.10.\n", feeRateStr)
		feeRate = decimal.NewFromFloat(0.10)
	}
	cfg.DefaultPlatformFeeRate = feeRate

	cfg.RateLimit = viper.GetString("RATE_LIMIT")

	if brokers := viper.GetString("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}
	cfg.KafkaTopic = viper.GetString("KAFKA_TOPIC")

	return cfg, nil
}

func parseDurationOrDefault(key string, fallback time.Duration) time.Duration {
	raw := viper.GetString(key)
	d, err := time.ParseDuration(raw)
	if err != nil {
		if raw != "" {
			log.Printf("Warning: Invalid value for %s ('%s'). Defaulting to %s.\n", key, raw, fallback)
		}
		return fallback
	}
	return d
}
