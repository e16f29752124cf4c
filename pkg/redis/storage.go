package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Storage is a namespaced key-value wrapper over a go-redis client.
// Every key is stored under the configured prefix.
type Storage struct {
	db            redis.UniversalClient
	prefix        string
	scanBatchSize int64
}

// NewStorage wraps client with the prefix and scan batch size from cfg.
func NewStorage(client redis.UniversalClient, cfg Config) *Storage {
	batch := int64(cfg.ScanBatchSize)
	if batch <= 0 {
		batch = 1000
	}
	return &Storage{
		db:            client,
		prefix:        cfg.KeyPrefix,
		scanBatchSize: batch,
	}
}

// Get returns the value for key. A missing key yields nil, false, nil.
func (s *Storage) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.db.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

// Set stores val under key. Zero ttl means no expiration.
func (s *Storage) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	return s.db.Set(ctx, s.prefix+key, val, ttl).Err()
}

// SetNX stores val under key only when the key does not exist and reports whether it did.
func (s *Storage) SetNX(ctx context.Context, key string, val []byte, ttl time.Duration) (bool, error) {
	return s.db.SetNX(ctx, s.prefix+key, val, ttl).Result()
}

const updateAttempts = 3

// Update reads key under WATCH, passes its value to fn and stores what fn
// returns when write is true. A key changed by another client before the
// write is read again; after three lost races Update returns ErrUpdateConflict.
func (s *Storage) Update(
	ctx context.Context,
	key string,
	ttl time.Duration,
	fn func(cur []byte, found bool) (next []byte, write bool, err error),
) error {
	full := s.prefix + key
	txf := func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, full).Bytes()
		found := err == nil
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}

		next, write, err := fn(cur, found)
		if err != nil || !write {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, full, next, ttl)
			return nil
		})
		return err
	}

	for range updateAttempts {
		err := s.db.Watch(ctx, txf, full)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return ErrUpdateConflict
}

// Delete removes keys. Missing keys are ignored.
func (s *Storage) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.prefix + k
	}
	return s.db.Del(ctx, full...).Err()
}

// Keys returns the keys matching pattern (without prefix), using SCAN to avoid blocking Redis.
func (s *Storage) Keys(ctx context.Context, pattern string) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := s.db.Scan(ctx, cursor, s.prefix+pattern, s.scanBatchSize).Result()
		if err != nil {
			return nil, err
		}
		for _, k := range batch {
			keys = append(keys, k[len(s.prefix):])
		}
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

// Conn returns the underlying Redis client.
func (s *Storage) Conn() redis.UniversalClient {
	return s.db
}
