// Package config loads process configuration into a single struct
// built from environment variables with sane defaults, optionally
// overridden by a .env file in development via joho/godotenv.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Idempotency  IdempotencyConfig
	Fraud        FraudConfig
	Webhook      WebhookConfig
	EventBus     EventBusConfig
	MpesaAdapter MpesaAdapterConfig
	CryptoAdapter CryptoAdapterConfig
}

type ServerConfig struct {
	Addr         string
	Env          string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

type IdempotencyConfig struct {
	TTL time.Duration
}

type FraudConfig struct {
	Enabled        bool
	ScoreThreshold string
}

type WebhookConfig struct {
	RetryAttempts    int
	RetryBaseDelay   time.Duration
	PollPeriod       time.Duration
	RequestTimeout   time.Duration
	BatchSize        int
	Secret           string
}

type EventBusConfig struct {
	Partitions int
}

type MpesaAdapterConfig struct {
	BaseURL     string
	Email       string
	Password    string
	WebhookBase string
}

type CryptoAdapterConfig struct {
	BaseURL  string
	Email    string
	Password string
}

// Load reads .env (if present) then builds a Config from the
// environment, falling back to development-friendly defaults for
// every recognized key.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Addr:         getEnv("SERVER_ADDR", ":8080"),
			Env:          getEnv("APP_ENV", "development"),
			ReadTimeout:  getDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			DSN:             getEnv("DATABASE_DSN", "paymentcore:paymentcore@tcp(localhost:3306)/paymentcore?charset=utf8mb4&parseTime=True&loc=UTC"),
			MaxIdleConns:    getInt("DATABASE_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    getInt("DATABASE_MAX_OPEN_CONNS", 100),
			ConnMaxLifetime: getDuration("DATABASE_CONN_MAX_LIFETIME", time.Hour),
		},
		Idempotency: IdempotencyConfig{
			TTL: getDuration("IDEMPOTENCY_TTL", 86400*time.Second),
		},
		Fraud: FraudConfig{
			Enabled:        getBool("FRAUD_ENABLED", true),
			ScoreThreshold: getEnv("FRAUD_SCORE_THRESHOLD", "0.70"),
		},
		Webhook: WebhookConfig{
			RetryAttempts:  getInt("WEBHOOK_RETRY_ATTEMPTS", 3),
			RetryBaseDelay: getDuration("WEBHOOK_RETRY_BASE_DELAY", time.Second),
			PollPeriod:     getDuration("WEBHOOK_POLL_PERIOD", 2*time.Second),
			RequestTimeout: getDuration("WEBHOOK_REQUEST_TIMEOUT", 5*time.Second),
			BatchSize:      getInt("WEBHOOK_BATCH_SIZE", 50),
			Secret:         getEnv("WEBHOOK_SECRET", ""),
		},
		EventBus: EventBusConfig{
			Partitions: getInt("EVENT_BUS_PARTITIONS", 8),
		},
		MpesaAdapter: MpesaAdapterConfig{
			BaseURL:     getEnv("MPESA_BASE_URL", "https://card-api.theliberec.com"),
			Email:       getEnv("MPESA_EMAIL", ""),
			Password:    getEnv("MPESA_PASSWORD", ""),
			WebhookBase: getEnv("MPESA_WEBHOOK_BASE_URL", ""),
		},
		CryptoAdapter: CryptoAdapterConfig{
			BaseURL:  getEnv("CRYPTO_BASE_URL", "https://api.swapuzi.com"),
			Email:    getEnv("CRYPTO_EMAIL", ""),
			Password: getEnv("CRYPTO_PASSWORD", ""),
		},
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
