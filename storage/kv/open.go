package kvstore

import (
	"context"

	"github.com/pkg/errors"

	"github.com/loopverse/campus/core"
)

// Open returns the store selected by conf.Driver and a func releasing its resources.
func Open(ctx context.Context, conf core.StorageConfig) (core.KVStore, func() error, error) {
	noop := func() error { return nil }

	switch conf.Driver {
	case core.StorageMemory:
		return NewMemoryStore(), noop, nil
	case core.StorageFile:
		store, err := NewFileStore(conf.Path)
		if err != nil {
			return nil, nil, err
		}
		return store, noop, nil
	case core.StorageRedis:
		client, err := NewRedisClient(ctx, conf)
		if err != nil {
			return nil, nil, err
		}
		return NewRedisStore(client, conf.RedisPrefix), client.Close, nil
	default:
		return nil, nil, errors.Errorf("unknown storage driver %q", conf.Driver)
	}
}
