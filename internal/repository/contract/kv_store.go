package contract

import (
	"context"
	"errors"
	"time"
)

const MaxKVValueSize = 16 * 1024

var (
	ErrValueTooLarge  = errors.New("kv value exceeds 16 KiB")
	ErrUpdateConflict = errors.New("kv update kept conflicting")
)

// KVStore holds short-lived per-user values. Reads renew the TTL.
type KVStore interface {
	// Get returns nil when the key is absent.
	Get(ctx context.Context, userID int64, key string, ttl time.Duration) ([]byte, error)
	Put(ctx context.Context, userID int64, key string, value []byte, ttl time.Duration) error
	// Update runs fn as an atomic read-modify-write for the user. fn gets
	// nil when the key is absent; returning nil deletes the key.
	Update(ctx context.Context, userID int64, key string, ttl time.Duration, fn func(current []byte) ([]byte, error)) error
	Delete(ctx context.Context, userID int64, key string) error
}
