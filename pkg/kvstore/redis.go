package kvstore

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

type RedisStore struct {
	rdb redis.UniversalClient
}

func NewRedisStore(rdb redis.UniversalClient) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return v, err
}

func (s *RedisStore) SetMany(ctx context.Context, entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}

	pairs := make([]any, 0, len(entries)*2)
	for _, e := range entries {
		pairs = append(pairs, e.Key, e.Value)
	}

	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		return pipe.MSet(ctx, pairs...).Err()
	})
	return err
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
