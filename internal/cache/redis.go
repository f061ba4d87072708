package cache

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
)

// RedisStore implements Store against a Redis instance so separate scan
// processes can share one response cache. Redis handles expiry natively;
// failures degrade to cache misses rather than failing the fetch.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects a Redis-backed cache using the given client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "keyflip:cache:"}
}

func (c *RedisStore) Get(ctx context.Context, fingerprint string) ([]byte, bool) {
	body, err := c.client.Get(ctx, c.prefix+fingerprint).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		log.Warn().Err(err).Msg("redis cache read failed, treating as miss")
		return nil, false
	}
	return body, true
}

func (c *RedisStore) Put(ctx context.Context, fingerprint string, body []byte, ttl time.Duration) {
	if err := c.client.Set(ctx, c.prefix+fingerprint, body, ttl).Err(); err != nil {
		log.Warn().Err(err).Msg("redis cache write failed")
	}
}
