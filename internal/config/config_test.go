package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "sqlite3", cfg.DBDriver)
	assert.Equal(t, "X-Operation-ID", cfg.IdempotencyHeader)
	assert.Equal(t, time.Duration(0), cfg.IdempotencyTTL)
	assert.False(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{"localhost:9093"}, cfg.KafkaBrokers)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("IDEMPOTENCY_HEADER", "Idempotency-Key")
	t.Setenv("IDEMPOTENCY_TTL", "72h")
	t.Setenv("STOCK_CACHE_TTL", "15")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "k1:9092, ,k2:9092")
	t.Setenv("REDIS_DB", "not-a-number")

	cfg := Load()

	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, "Idempotency-Key", cfg.IdempotencyHeader)
	assert.Equal(t, 72*time.Hour, cfg.IdempotencyTTL)
	assert.Equal(t, 15*time.Second, cfg.StockCacheTTL)
	assert.True(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 0, cfg.RedisDB)
}
