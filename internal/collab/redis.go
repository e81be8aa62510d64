package collab

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// NewRedisStore returns a Store backed by Redis hashes. The client is owned
// by the caller.
func NewRedisStore(client *redis.Client) Store {
	return &jsonStore{backend: &redisBackend{client: client}}
}

type redisBackend struct {
	client *redis.Client
}

func (b *redisBackend) hget(ctx context.Context, key, field string) ([]byte, bool, error) {
	data, err := b.client.HGet(ctx, key, field).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (b *redisBackend) hset(ctx context.Context, key, field string, value []byte) error {
	return b.client.HSet(ctx, key, field, value).Err()
}

func (b *redisBackend) hdel(ctx context.Context, key, field string) error {
	return b.client.HDel(ctx, key, field).Err()
}

func (b *redisBackend) ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}
