package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a key is missing from storage.
var ErrNotFound = errors.New("storage: key not found")

// KV is the durable key-value store the engine persists through.
//
// Getters return the provided default when the key is absent. Set operations
// have apply-eventually durability: the write is applied in order but may not
// reach stable media until Commit is called. Commit forces all prior writes
// durable and reports whether that succeeded.
type KV interface {
	GetString(ctx context.Context, key, def string) (string, error)
	GetInt(ctx context.Context, key string, def int) (int, error)
	GetInt64(ctx context.Context, key string, def int64) (int64, error)
	GetBool(ctx context.Context, key string, def bool) (bool, error)

	SetString(ctx context.Context, key, value string) error
	SetInt(ctx context.Context, key string, value int) error
	SetInt64(ctx context.Context, key string, value int64) error
	SetBool(ctx context.Context, key string, value bool) error

	Delete(ctx context.Context, key string) error

	// Commit forces every prior write durable before returning.
	Commit(ctx context.Context) error

	Close() error
}
