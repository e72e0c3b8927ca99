package slot

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps slots as plain Redis string keys under a prefix.
type RedisStore struct {
	client   *redis.Client
	prefix   string
	maxBytes int
}

func NewRedisStore(client *redis.Client, prefix string, maxBytes int) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, maxBytes: maxBytes}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return data, err
}

func (s *RedisStore) Put(ctx context.Context, key string, data []byte) error {
	if err := checkQuota(s.maxBytes, data); err != nil {
		return err
	}
	return s.client.Set(ctx, s.prefix+key, data, 0).Err()
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key).Err()
}
