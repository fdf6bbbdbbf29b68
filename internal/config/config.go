package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type AppConfig struct {
	HTTPAddr     string
	KafkaBrokers []string
	GroupID      string
	RedisAddr    string
	RedisPass    string

	Bus    BusConfig
	Ledger LedgerConfig
	Fraud  FraudConfig
}

// BusConfig bounds publish retries and the consumer delivery policy.
type BusConfig struct {
	PublishAttempts int
	PublishBackoff  time.Duration
	ConsumeAttempts int
	ConsumeBackoff  time.Duration
	DedupTTL        time.Duration
}

// LedgerConfig carries the settlement policy knobs. OpeningBalance is the
// stipend credited to a wallet created implicitly by a transfer; it exists so
// lazy creation is an explicit policy rather than a buried literal.
type LedgerConfig struct {
	OpeningBalance decimal.Decimal
	Currency       string
	LockTimeout    time.Duration
}

// FraudConfig holds the scoring rule thresholds. The defaults mirror the
// production tuning; there is no derivation behind them, so they stay
// configuration rather than constants.
type FraudConfig struct {
	HighAmountThreshold decimal.Decimal
	RapidWindow         time.Duration
	RapidCount          int
	RoundUnit           decimal.Decimal
}

func Load() AppConfig {
	if err := godotenv.Load(); err != nil {
		log.Println("Settlement: No .env file found, relying on system env vars")
	}

	return AppConfig{
		HTTPAddr:     getEnv("HTTP_ADDR", ":8080"),
		KafkaBrokers: getEnvSlice("KAFKA_BROKERS", []string{"kafka:9092"}),
		GroupID:      getEnv("KAFKA_GROUP_ID", ""),
		RedisAddr:    getEnv("REDIS_ADDR", "redis:6379"),
		RedisPass:    getEnv("REDIS_PASS", ""),
		Bus: BusConfig{
			PublishAttempts: getEnvInt("PUBLISH_ATTEMPTS", 3),
			PublishBackoff:  getEnvDuration("PUBLISH_BACKOFF", 200*time.Millisecond),
			ConsumeAttempts: getEnvInt("CONSUME_ATTEMPTS", 3),
			ConsumeBackoff:  getEnvDuration("CONSUME_BACKOFF", 500*time.Millisecond),
			DedupTTL:        getEnvDuration("DEDUP_TTL", 24*time.Hour),
		},
		Ledger: LedgerConfig{
			OpeningBalance: getEnvDecimal("WALLET_OPENING_BALANCE", "10000.00"),
			Currency:       getEnv("WALLET_CURRENCY", "INR"),
			LockTimeout:    getEnvDuration("ACCOUNT_LOCK_TIMEOUT", 3*time.Second),
		},
		Fraud: FraudConfig{
			HighAmountThreshold: getEnvDecimal("FRAUD_HIGH_AMOUNT_THRESHOLD", "100000"),
			RapidWindow:         getEnvDuration("FRAUD_RAPID_WINDOW", 5*time.Minute),
			RapidCount:          getEnvInt("FRAUD_RAPID_COUNT", 5),
			RoundUnit:           getEnvDecimal("FRAUD_ROUND_UNIT", "10000"),
		},
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvSlice(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		return strings.Split(v, ",")
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Printf("[Config] invalid int for %s, using default %d", key, fallback)
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		log.Printf("[Config] invalid duration for %s, using default %s", key, fallback)
	}
	return fallback
}

func getEnvDecimal(key, fallback string) decimal.Decimal {
	if v := os.Getenv(key); v != "" {
		if d, err := decimal.NewFromString(v); err == nil {
			return d
		}
		log.Printf("[Config] invalid decimal for %s, using default %s", key, fallback)
	}
	return decimal.RequireFromString(fallback)
}
