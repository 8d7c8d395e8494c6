// Package cache keeps cart slots in Redis.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrContention is returned when a slot kept changing under every retry.
var ErrContention = errors.New("redis: slot modified concurrently")

const maxRetries = 100

// SlotStore is a cart.Persister over Redis. Update uses optimistic locking
// (WATCH, then MULTI/EXEC) and retries when another writer got there first.
type SlotStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewSlotStore stores slots under prefix+key. A zero ttl keeps slots
// forever; otherwise every write refreshes it.
func NewSlotStore(client redis.UniversalClient, prefix string, ttl time.Duration) *SlotStore {
	return &SlotStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *SlotStore) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return data, nil
}

func (s *SlotStore) Update(ctx context.Context, key string, fn func([]byte) ([]byte, error)) error {
	rk := s.redisKey(key)
	txf := func(tx *redis.Tx) error {
		old, err := tx.Get(ctx, rk).Bytes()
		if errors.Is(err, redis.Nil) {
			old = nil
		} else if err != nil {
			return err
		}
		next, err := fn(old)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if next == nil {
				pipe.Del(ctx, rk)
				return nil
			}
			pipe.Set(ctx, rk, next, s.ttl)
			return nil
		})
		return err
	}

	for i := 0; i < maxRetries; i++ {
		err := s.client.Watch(ctx, txf, rk)
		if errors.Is(err, redis.TxFailedErr) {
			if err := backoff(ctx, i); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("redis update failed: %w", err)
		}
		return nil
	}
	return fmt.Errorf("%w: %s", ErrContention, key)
}

func (s *SlotStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func backoff(ctx context.Context, attempt int) error {
	d := time.Duration(attempt%10+1) * time.Millisecond
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *SlotStore) redisKey(key string) string { return s.prefix + key }

// NewClient builds a client from a redis:// URL when one is given, else from
// a plain address.
func NewClient(url, addr string) (*redis.Client, error) {
	if url != "" {
		opts, err := redis.ParseURL(url)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opts), nil
	}
	if addr == "" {
		addr = "localhost:6379"
	}
	return redis.NewClient(&redis.Options{Addr: addr}), nil
}
