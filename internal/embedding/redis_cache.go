package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/rueidis"

	"github.com/hyperjump/coskb/pkg/utils"
)

// ErrCacheMiss is returned by SharedCache.Get when the key is absent.
var ErrCacheMiss = errors.New("embedding cache miss")

// SharedCache is a cache shared between processes, consulted after the in-process LRU.
type SharedCache interface {
	Get(ctx context.Context, key string) ([]float32, error)
	Set(ctx context.Context, key string, vec []float32) error
	Close()
}

// RedisCacheConfig holds connection parameters for RedisCache.
type RedisCacheConfig struct {
	Addrs     []string
	Password  string
	KeyPrefix string
	TTL       time.Duration
}

// RedisCache stores embeddings in Redis as little-endian float32 blobs under
// sha256-hashed keys.
type RedisCache struct {
	client rueidis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache connects to Redis via rueidis.
func NewRedisCache(cfg RedisCacheConfig) (*RedisCache, error) {
	if len(cfg.Addrs) == 0 {
		return nil, errors.New("redis cache: addrs is required")
	}
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Password:     cfg.Password,
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("redis cache: create client: %w", err)
	}
	return &RedisCache{client: client, prefix: cfg.KeyPrefix, ttl: cfg.TTL}, nil
}

// Get returns the cached vector for key or ErrCacheMiss.
func (c *RedisCache) Get(ctx context.Context, key string) ([]float32, error) {
	cmd := c.client.B().Get().Key(c.redisKey(key)).Build()
	data, err := c.client.Do(ctx, cmd).AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrCacheMiss
	}
	return utils.DecodeFloat32s(data)
}

// Set stores vec under key with the configured TTL.
func (c *RedisCache) Set(ctx context.Context, key string, vec []float32) error {
	b := c.client.B().Set().Key(c.redisKey(key)).Value(rueidis.BinaryString(utils.EncodeFloat32s(vec)))
	var cmd rueidis.Completed
	if c.ttl > 0 {
		cmd = b.Ex(c.ttl).Build()
	} else {
		cmd = b.Build()
	}
	if err := c.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Close shuts down the client.
func (c *RedisCache) Close() {
	c.client.Close()
}

func (c *RedisCache) redisKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return c.prefix + hex.EncodeToString(h[:])
}
