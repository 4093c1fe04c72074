package kvstore

import (
	"context"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/loopverse/campus/core"
)

// RedisStore namespaces every key with a prefix so several clients can share one server.
type RedisStore struct {
	client *redis.Client
	prefix string
}

var _ core.KVStore = (*RedisStore)(nil) // interface compliance check

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

// NewRedisClient opens a client from the storage config and checks the connection.
func NewRedisClient(ctx context.Context, conf core.StorageConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     conf.RedisAddress,
		Password: conf.RedisPassword,
		DB:       conf.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "pinging redis")
	}
	return client, nil
}

func (s *RedisStore) key(k string) string { return s.prefix + k }

func (s *RedisStore) GetItem(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, s.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", core.ErrItemNotFound
		}
		return "", errors.Wrap(err, "redis GET")
	}
	return val, nil
}

func (s *RedisStore) SetItem(ctx context.Context, key, value string) error {
	return errors.Wrap(s.client.Set(ctx, s.key(key), value, 0).Err(), "redis SET")
}

func (s *RedisStore) RemoveItem(ctx context.Context, key string) error {
	return errors.Wrap(s.client.Del(ctx, s.key(key)).Err(), "redis DEL")
}
