package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is a namespaced string cache over Redis. The pipeline uses it for
// short-TTL resolved delivery URLs; the TTL stays far below the signing
// expiry so cached entries never outlive their validity.
type Cache struct {
	Redis     redis.UniversalClient
	Namespace string
}

// Create Redis connection
func NewCache(namespace string, redisCl redis.UniversalClient) *Cache {
	return &Cache{
		Namespace: namespace,
		Redis:     redisCl,
	}
}

// Get value from Redis
func (c *Cache) Get(ctx context.Context, key string) (string, error) {
	cmd := c.Redis.Get(ctx, c.Namespace+":"+key)
	return cmd.Val(), cmd.Err()
}

// Store data to Redis
func (c *Cache) Store(ctx context.Context, key string, ttl time.Duration, value string) error {
	return c.Redis.Set(ctx, c.Namespace+":"+key, value, ttl).Err()
}

// Delete key from Redis
func (c *Cache) Remove(ctx context.Context, key string) error {
	return c.Redis.Del(ctx, c.Namespace+":"+key).Err()
}

// Flush clears every key under the namespace.
func (c *Cache) Flush(ctx context.Context) error {
	keys := c.Redis.Keys(ctx, c.Namespace+":*")
	//using pipeline to delete keys efficiently
	pl := c.Redis.Pipeline()

	for _, key := range keys.Val() {
		pl.Del(ctx, key)
	}

	_, err := pl.Exec(ctx)
	return err
}
