package vault

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisBackend stores secrets as plain string values in Redis, keyed by
// path. A concrete, swappable Backend implementation for deployments
// that centralize secrets outside the process environment.
type RedisBackend struct {
	Client *redis.Client
}

// NewRedisBackend builds a Backend backed by the given Redis client.
func NewRedisBackend(client *redis.Client) *RedisBackend {
	return &RedisBackend{Client: client}
}

func (b *RedisBackend) GetSecret(ctx context.Context, path string) (string, bool, error) {
	val, err := b.Client.Get(ctx, path).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (b *RedisBackend) IsAvailable(ctx context.Context) bool {
	return b.Client.Ping(ctx).Err() == nil
}
