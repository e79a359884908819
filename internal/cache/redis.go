// Package cache keeps query embeddings in Redis so repeated chat questions skip
// the embedding API.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/BestAchadirect/Project-WebChat-sub001/internal/config"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "webchat:qemb:"

// RedisEmbeddingCache stores query vectors keyed by model and query hash.
type RedisEmbeddingCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisEmbeddingCache connects to Redis and verifies the connection with PING.
func NewRedisEmbeddingCache(ctx context.Context, cfg *config.RedisConfig) (*RedisEmbeddingCache, error) {
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        []string{cfg.Addr},
		Password:     cfg.Password,
		DB:           cfg.DB,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return NewRedisEmbeddingCacheFromClient(client, cfg.TTL), nil
}

// NewRedisEmbeddingCacheFromClient wraps an existing client.
func NewRedisEmbeddingCacheFromClient(client redis.UniversalClient, ttl time.Duration) *RedisEmbeddingCache {
	return &RedisEmbeddingCache{client: client, ttl: ttl}
}

// Key returns the Redis key for a model/query pair.
func Key(model, query string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + query))
	return keyPrefix + hex.EncodeToString(sum[:])
}

// Get returns the cached vector. A miss is (nil, false, nil).
func (c *RedisEmbeddingCache) Get(ctx context.Context, model, query string) ([]float32, bool, error) {
	raw, err := c.client.Get(ctx, Key(model, query)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil {
		return nil, false, err
	}
	return vec, true, nil
}

// Set stores a vector with the configured TTL.
func (c *RedisEmbeddingCache) Set(ctx context.Context, model, query string, vec []float32) error {
	raw, err := json.Marshal(vec)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, Key(model, query), raw, c.ttl).Err()
}

// Close closes the Redis connection
func (c *RedisEmbeddingCache) Close() error {
	return c.client.Close()
}
