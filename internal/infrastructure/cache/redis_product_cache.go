package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/marketsync/backend/internal/domain/ledger"
)

// RedisProductCache implements ProductCache on redis, sharing resolved
// products across passes and processes. Serialization errors and redis
// errors degrade to cache misses; the backend lookup is the fallback.
type RedisProductCache struct {
	client    *redis.Client
	keyPrefix string
}

// RedisConfig holds redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewRedisProductCache creates a redis-backed product cache and verifies the
// connection.
func NewRedisProductCache(cfg RedisConfig) (*RedisProductCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisProductCache{
		client:    client,
		keyPrefix: "sync:catalog:",
	}, nil
}

// NewRedisProductCacheWithClient creates a cache with an existing client
func NewRedisProductCacheWithClient(client *redis.Client, keyPrefix string) *RedisProductCache {
	if keyPrefix == "" {
		keyPrefix = "sync:catalog:"
	}
	return &RedisProductCache{client: client, keyPrefix: keyPrefix}
}

// Get returns the cached product and true, or nil and false on a miss
func (c *RedisProductCache) Get(ctx context.Context, key string) (*ledger.ProductRef, bool) {
	raw, err := c.client.Get(ctx, c.keyPrefix+key).Bytes()
	if err != nil {
		return nil, false
	}

	var ref ledger.ProductRef
	if err := json.Unmarshal(raw, &ref); err != nil {
		return nil, false
	}
	return &ref, true
}

// Set stores the product under key for ttl
func (c *RedisProductCache) Set(ctx context.Context, key string, ref *ledger.ProductRef, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	raw, err := json.Marshal(ref)
	if err != nil {
		return
	}
	c.client.Set(ctx, c.keyPrefix+key, raw, ttl)
}

// Close closes the redis client
func (c *RedisProductCache) Close() error {
	return c.client.Close()
}

// Ensure RedisProductCache implements ProductCache
var _ ProductCache = (*RedisProductCache)(nil)
