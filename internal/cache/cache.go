package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// ErrCacheMiss is returned by Get for absent or expired keys
var ErrCacheMiss = errors.New("cache miss")

// Cache defines the interface for cache operations
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// DeleteByPrefix drops every key starting with prefix
	DeleteByPrefix(ctx context.Context, prefix string) error
	Close() error
}

// RedisConfig selects the Redis server
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// NewCache connects to Redis, falling back to an in-process cache when it is unreachable
func NewCache(cfg RedisConfig, logger *zap.Logger) Cache {
	rdb := redis.NewClient(&redis.Options{
		Addr:            fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password:        cfg.Password,
		DB:              cfg.DB,
		PoolSize:        10,
		MinIdleConns:    2,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     3 * time.Second,
		WriteTimeout:    3 * time.Second,
		MaxRetries:      3,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("Failed to connect to Redis, using in-memory cache",
			zap.String("host", cfg.Host),
			zap.String("port", cfg.Port),
			zap.Error(err),
		)
		rdb.Close()
		return NewInMemoryCache()
	}

	logger.Info("Redis cache initialized",
		zap.String("host", cfg.Host),
		zap.String("port", cfg.Port),
		zap.Int("db", cfg.DB),
	)
	return NewRedisCache(rdb, logger)
}

// RedisCache implements Cache using Redis
type RedisCache struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedisCache(client *redis.Client, logger *zap.Logger) *RedisCache {
	return &RedisCache{client: client, logger: logger}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrCacheMiss
	}
	if err != nil {
		c.logger.Warn("Redis Get error", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("redis get error: %w", err)
	}
	return val, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		c.logger.Warn("Redis Set error", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("redis set error: %w", err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.logger.Warn("Redis Delete error", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("redis delete error: %w", err)
	}
	return nil
}

func (c *RedisCache) DeleteByPrefix(ctx context.Context, prefix string) error {
	iter := c.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	keys := make([]string, 0)
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.logger.Warn("Redis Scan error", zap.String("prefix", prefix), zap.Error(err))
		return fmt.Errorf("redis scan error: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis delete by prefix error: %w", err)
	}
	c.logger.Debug("Deleted keys by prefix", zap.String("prefix", prefix), zap.Int("count", len(keys)))
	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// InMemoryCache is the fallback when Redis is not available
type InMemoryCache struct {
	mu   sync.Mutex
	data map[string]cacheEntry
	now  func() time.Time
}

type cacheEntry struct {
	value     []byte
	expiresAt time.Time
}

func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{data: make(map[string]cacheEntry), now: time.Now}
}

func (c *InMemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.data[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	if !entry.expiresAt.IsZero() && c.now().After(entry.expiresAt) {
		delete(c.data, key)
		return nil, ErrCacheMiss
	}
	return entry.value, nil
}

// Set stores value; a ttl of zero never expires
func (c *InMemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry := cacheEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}
	c.data[key] = entry
	return nil
}

func (c *InMemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func (c *InMemoryCache) DeleteByPrefix(ctx context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.data {
		if strings.HasPrefix(key, prefix) {
			delete(c.data, key)
		}
	}
	return nil
}

func (c *InMemoryCache) Close() error { return nil }

// GetJSON decodes a cached value into dest
func GetJSON(ctx context.Context, cache Cache, key string, dest interface{}) error {
	data, err := cache.Get(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// SetJSON encodes value and stores it
func SetJSON(ctx context.Context, cache Cache, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return cache.Set(ctx, key, data, ttl)
}
