package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	Environment string
	// Database
	DBDriver       string
	DBDSN          string
	DBMaxOpenConns int
	// Operation reservations
	IdempotencyHeader        string
	IdempotencyTTL           time.Duration
	IdempotencyPruneInterval time.Duration
	// JWT
	AuthEnabled bool
	JWTSecret   string
	JWTTTL      time.Duration
	// Kafka
	KafkaEnabled        bool
	KafkaBrokers        []string
	KafkaTopicMovements string
	KafkaClientID       string
	KafkaAcks           string
	KafkaRetries        int
	// Redis
	RedisEnabled  bool
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	StockCacheTTL time.Duration
	// Tracing
	OTelEnabled    bool
	OTelEndpoint   string
	OTelAuthHeader string
}

func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),

		DBDriver:       getEnv("DB_DRIVER", "sqlite3"),
		DBDSN:          getEnv("DB_DSN", "directstock.db"),
		DBMaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 10),

		IdempotencyHeader:        getEnv("IDEMPOTENCY_HEADER", "X-Operation-ID"),
		IdempotencyTTL:           getEnvAsDuration("IDEMPOTENCY_TTL", 0),
		IdempotencyPruneInterval: getEnvAsDuration("IDEMPOTENCY_PRUNE_INTERVAL", time.Hour),

		AuthEnabled: getEnvAsBool("AUTH_ENABLED", false),
		JWTSecret:   getEnv("JWT_SECRET", "your-secret-key-change-in-production-min-32-chars"),
		JWTTTL:      getEnvAsDuration("JWT_TTL", 8*time.Hour),

		KafkaEnabled:        getEnvAsBool("KAFKA_ENABLED", false),
		KafkaBrokers:        getEnvAsList("KAFKA_BROKERS", "localhost:9093"),
		KafkaTopicMovements: getEnv("KAFKA_TOPIC_MOVEMENTS", "inventory.movements"),
		KafkaClientID:       getEnv("KAFKA_CLIENT_ID", "directstock"),
		KafkaAcks:           getEnv("KAFKA_ACKS", "all"),
		KafkaRetries:        getEnvAsInt("KAFKA_RETRIES", 3),

		RedisEnabled:  getEnvAsBool("REDIS_ENABLED", false),
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),
		StockCacheTTL: getEnvAsDuration("STOCK_CACHE_TTL", 30*time.Second),

		OTelEnabled:    getEnvAsBool("OTEL_ENABLED", false),
		OTelEndpoint:   getEnv("OTEL_ENDPOINT", "localhost:4318"),
		OTelAuthHeader: getEnv("OTEL_AUTH_HEADER", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return result
}

// getEnvAsDuration accepts Go durations ("90s", "24h") or a bare number of seconds
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	result, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return result
}

// getEnvAsList splits a comma-separated value, dropping blanks
func getEnvAsList(key, defaultValue string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, defaultValue), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
