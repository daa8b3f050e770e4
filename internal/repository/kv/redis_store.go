package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ai-genbot-gateway/internal/repository/contract"

	"github.com/redis/go-redis/v9"
)

const maxTxRetries = 10

type RedisStore struct {
	client redis.UniversalClient
	prefix string
	locks  *userLocks
}

func NewRedisStore(client redis.UniversalClient, prefix string) contract.KVStore {
	if prefix == "" {
		prefix = "genbot"
	}
	return &RedisStore{client: client, prefix: prefix, locks: newUserLocks()}
}

func (s *RedisStore) key(userID int64, key string) string {
	return fmt.Sprintf("%s:session:%d:%s", s.prefix, userID, key)
}

func (s *RedisStore) Get(ctx context.Context, userID int64, key string, ttl time.Duration) ([]byte, error) {
	var cmd *redis.StringCmd
	if ttl > 0 {
		cmd = s.client.GetEx(ctx, s.key(userID, key), ttl)
	} else {
		cmd = s.client.Get(ctx, s.key(userID, key))
	}
	raw, err := cmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func (s *RedisStore) Put(ctx context.Context, userID int64, key string, value []byte, ttl time.Duration) error {
	if len(value) > contract.MaxKVValueSize {
		return contract.ErrValueTooLarge
	}
	return s.client.Set(ctx, s.key(userID, key), value, ttl).Err()
}

// Update serialises writers of this process with a per-user mutex and
// other processes with WATCH/MULTI, retrying when the key moved underneath.
func (s *RedisStore) Update(ctx context.Context, userID int64, key string, ttl time.Duration, fn func([]byte) ([]byte, error)) error {
	unlock := s.locks.lock(userID)
	defer unlock()

	k := s.key(userID, key)
	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, k).Bytes()
		if errors.Is(err, redis.Nil) {
			current = nil
		} else if err != nil {
			return err
		}

		next, err := fn(current)
		if err != nil {
			return err
		}
		if len(next) > contract.MaxKVValueSize {
			return contract.ErrValueTooLarge
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if next == nil {
				pipe.Del(ctx, k)
			} else {
				pipe.Set(ctx, k, next, ttl)
			}
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := s.client.Watch(ctx, txf, k)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return contract.ErrUpdateConflict
}

func (s *RedisStore) Delete(ctx context.Context, userID int64, key string) error {
	return s.client.Del(ctx, s.key(userID, key)).Err()
}
