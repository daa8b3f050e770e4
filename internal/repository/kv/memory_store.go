package kv

import (
	"context"
	"fmt"
	"time"

	"ai-genbot-gateway/internal/repository/contract"

	"github.com/patrickmn/go-cache"
)

// MemoryStore keeps sessions in process. Used when no Redis is configured
// and by tests; it does not survive restarts.
type MemoryStore struct {
	cache *cache.Cache
	locks *userLocks
}

func NewMemoryStore() contract.KVStore {
	// Entries carry their own TTL; expired ones are purged every 10 minutes.
	return &MemoryStore{
		cache: cache.New(time.Hour, 10*time.Minute),
		locks: newUserLocks(),
	}
}

func memKey(userID int64, key string) string {
	return fmt.Sprintf("%d:%s", userID, key)
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (s *MemoryStore) Get(ctx context.Context, userID int64, key string, ttl time.Duration) ([]byte, error) {
	unlock := s.locks.lock(userID)
	defer unlock()

	k := memKey(userID, key)
	x, found := s.cache.Get(k)
	if !found {
		return nil, nil
	}
	raw := x.([]byte)
	s.cache.Set(k, raw, ttl)
	return copyBytes(raw), nil
}

func (s *MemoryStore) Put(ctx context.Context, userID int64, key string, value []byte, ttl time.Duration) error {
	if len(value) > contract.MaxKVValueSize {
		return contract.ErrValueTooLarge
	}
	unlock := s.locks.lock(userID)
	defer unlock()

	s.cache.Set(memKey(userID, key), copyBytes(value), ttl)
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, userID int64, key string, ttl time.Duration, fn func([]byte) ([]byte, error)) error {
	unlock := s.locks.lock(userID)
	defer unlock()

	k := memKey(userID, key)
	var current []byte
	if x, found := s.cache.Get(k); found {
		current = copyBytes(x.([]byte))
	}

	next, err := fn(current)
	if err != nil {
		return err
	}
	if next == nil {
		s.cache.Delete(k)
		return nil
	}
	if len(next) > contract.MaxKVValueSize {
		return contract.ErrValueTooLarge
	}
	s.cache.Set(k, copyBytes(next), ttl)
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, userID int64, key string) error {
	unlock := s.locks.lock(userID)
	defer unlock()

	s.cache.Delete(memKey(userID, key))
	return nil
}
