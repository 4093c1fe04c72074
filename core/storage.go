package core

import "context"

// KVStore is a small persistent key-value store holding opaque strings (usually JSON blobs).
// GetItem returns ErrItemNotFound when the key holds no value.
type KVStore interface {
	GetItem(ctx context.Context, key string) (string, error)
	SetItem(ctx context.Context, key, value string) error
	RemoveItem(ctx context.Context, key string) error
}
