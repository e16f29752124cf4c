package tenant

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/dmitrymomot/storefleet/pkg/cache"
	"github.com/dmitrymomot/storefleet/pkg/logger"
	"github.com/dmitrymomot/storefleet/pkg/redis"
	"github.com/dmitrymomot/storefleet/pkg/secrets"
)

// DefaultCacheTTL bounds how long a cached record may outlive a write made
// where the cache cannot see it.
const DefaultCacheTTL = 5 * time.Minute

// Cache stores records by code. A nil record is a tombstone: Get reports the
// code found with a nil record until the tombstone expires.
type Cache interface {
	Get(ctx context.Context, code string) (r *Record, found bool)
	// Add stores r only when code has no entry, tombstones included.
	Add(ctx context.Context, code string, r *Record) error
	// Set stores r unless the entry holds a tombstone or a record updated after r.
	// A nil r always replaces the entry.
	Set(ctx context.Context, code string, r *Record) error
	Delete(ctx context.Context, code string) error
}

// NoOpCache disables caching.
type NoOpCache struct{}

func (NoOpCache) Get(context.Context, string) (*Record, bool) { return nil, false }
func (NoOpCache) Add(context.Context, string, *Record) error  { return nil }
func (NoOpCache) Set(context.Context, string, *Record) error  { return nil }
func (NoOpCache) Delete(context.Context, string) error        { return nil }

type memoryEntry struct {
	rec     Record
	deleted bool
}

// MemoryCache keeps records in a process-local LRU.
// Writes made by other processes are seen only after the entry expires.
type MemoryCache struct {
	lru *cache.LRU[string, memoryEntry]
}

// NewMemoryCache returns a Cache holding at most size records for ttl each.
// Non-positive ttl means DefaultCacheTTL.
func NewMemoryCache(size int, ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &MemoryCache{lru: cache.New[string, memoryEntry](size, ttl)}
}

func (c *MemoryCache) Get(_ context.Context, code string) (*Record, bool) {
	e, ok := c.lru.Get(code)
	if !ok {
		return nil, false
	}
	if e.deleted {
		return nil, true
	}
	return &e.rec, true
}

func (c *MemoryCache) Add(_ context.Context, code string, r *Record) error {
	c.lru.Update(code, func(_ memoryEntry, ok bool) (memoryEntry, bool) {
		return memoryEntry{rec: *r}, !ok
	})
	return nil
}

func (c *MemoryCache) Set(_ context.Context, code string, r *Record) error {
	if r == nil {
		c.lru.Set(code, memoryEntry{deleted: true})
		return nil
	}
	c.lru.Update(code, func(cur memoryEntry, ok bool) (memoryEntry, bool) {
		return memoryEntry{rec: *r}, !ok || supersedes(r, cur.rec, cur.deleted)
	})
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, code string) error {
	c.lru.Delete(code)
	return nil
}

// supersedes reports whether r may replace a cached entry.
func supersedes(r *Record, cur Record, deleted bool) bool {
	return !deleted && !cur.UpdatedAt.After(r.UpdatedAt)
}

// RedisCacheOption configures a RedisCache.
type RedisCacheOption func(*RedisCache)

// WithCacheSealer seals database passwords before they are written to Redis.
// Entries that fail to open are treated as misses.
func WithCacheSealer(s Sealer) RedisCacheOption {
	return func(c *RedisCache) {
		c.sealer = s
	}
}

// RedisCache keeps records in Redis under "tenant:<code>".
type RedisCache struct {
	store  *redis.Storage
	ttl    time.Duration
	sealer Sealer
}

// NewRedisCache returns a Redis-backed Cache. Non-positive ttl means DefaultCacheTTL.
func NewRedisCache(store *redis.Storage, ttl time.Duration, opts ...RedisCacheOption) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	c := &RedisCache{store: store, ttl: ttl}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// cachedRecord carries the database password, which Record hides from JSON.
type cachedRecord struct {
	Record
	DBPassword string `json:"db_password"`
	Deleted    bool   `json:"deleted,omitempty"`
}

func (c *RedisCache) Get(ctx context.Context, code string) (*Record, bool) {
	data, ok, err := c.store.Get(ctx, cacheKey(code))
	if err != nil || !ok {
		return nil, false
	}
	var cr cachedRecord
	if err := json.Unmarshal(data, &cr); err != nil {
		return nil, false
	}
	if cr.Deleted {
		return nil, true
	}
	r := cr.Record
	r.DB.Password = cr.DBPassword
	if c.sealer != nil && secrets.IsSealed(cr.DBPassword) {
		if r.DB.Password, err = c.sealer.Open(code, cr.DBPassword); err != nil {
			return nil, false
		}
	}
	return &r, true
}

func (c *RedisCache) Add(ctx context.Context, code string, r *Record) error {
	data, err := c.encode(r)
	if err != nil {
		return err
	}
	_, err = c.store.SetNX(ctx, cacheKey(code), data, c.ttl)
	return err
}

func (c *RedisCache) Set(ctx context.Context, code string, r *Record) error {
	if r == nil {
		data, err := json.Marshal(cachedRecord{Record: Record{Code: code}, Deleted: true})
		if err != nil {
			return err
		}
		return c.store.Set(ctx, cacheKey(code), data, c.ttl)
	}

	data, err := c.encode(r)
	if err != nil {
		return err
	}
	return c.store.Update(ctx, cacheKey(code), c.ttl, func(cur []byte, found bool) ([]byte, bool, error) {
		if !found {
			return data, true, nil
		}
		var cr cachedRecord
		if err := json.Unmarshal(cur, &cr); err != nil {
			// unreadable entries are overwritten
			return data, true, nil
		}
		return data, supersedes(r, cr.Record, cr.Deleted), nil
	})
}

func (c *RedisCache) Delete(ctx context.Context, code string) error {
	return c.store.Delete(ctx, cacheKey(code))
}

func (c *RedisCache) encode(r *Record) ([]byte, error) {
	password := r.DB.Password
	if c.sealer != nil && password != "" {
		var err error
		if password, err = c.sealer.Seal(r.Code, password); err != nil {
			return nil, err
		}
	}
	return json.Marshal(cachedRecord{Record: *r, DBPassword: password})
}

func cacheKey(code string) string {
	return "tenant:" + code
}

// CachedRegistry serves FindByCode from a Cache. Reads fill the cache only
// when it has no entry, transitions write the new record through, and a delete
// leaves a tombstone, so a slow read cannot put back a record a write replaced.
// All other calls go straight to the wrapped Registry.
type CachedRegistry struct {
	Registry
	cache Cache
	log   *slog.Logger
}

// NewCachedRegistry wraps next with cache. A nil cache disables caching.
func NewCachedRegistry(next Registry, store Cache, log *slog.Logger) *CachedRegistry {
	if store == nil {
		store = NoOpCache{}
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &CachedRegistry{Registry: next, cache: store, log: log}
}

func (c *CachedRegistry) FindByCode(ctx context.Context, code string) (*Record, error) {
	if r, ok := c.cache.Get(ctx, code); ok {
		if r == nil {
			return nil, ErrTenantNotFound
		}
		return r, nil
	}
	r, err := c.Registry.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Add(ctx, code, r); err != nil {
		c.warn(ctx, "failed to cache tenant record", code, err)
	}
	return r, nil
}

func (c *CachedRegistry) Create(ctx context.Context, r *Record) error {
	if err := c.Registry.Create(ctx, r); err != nil {
		return err
	}
	// a tombstone left by an earlier store with this code
	c.invalidate(ctx, r.Code)
	return nil
}

func (c *CachedRegistry) Transition(ctx context.Context, code string, ev Event) (*Record, error) {
	r, err := c.Registry.Transition(ctx, code, ev)
	if err != nil {
		if !errors.Is(err, ErrTenantNotFound) {
			c.invalidate(ctx, code)
		}
		return nil, err
	}
	if err := c.cache.Set(ctx, code, r); err != nil {
		c.warn(ctx, "failed to write tenant record through cache", code, err)
		c.invalidate(ctx, code)
	}
	return r, nil
}

func (c *CachedRegistry) Delete(ctx context.Context, code string) error {
	err := c.Registry.Delete(ctx, code)
	if err != nil && !errors.Is(err, ErrTenantNotFound) {
		c.invalidate(ctx, code)
		return err
	}
	if serr := c.cache.Set(ctx, code, nil); serr != nil {
		c.warn(ctx, "failed to cache tenant tombstone", code, serr)
		c.invalidate(ctx, code)
	}
	return err
}

func (c *CachedRegistry) invalidate(ctx context.Context, code string) {
	if err := c.cache.Delete(ctx, code); err != nil {
		c.warn(ctx, "failed to invalidate cached tenant record", code, err)
	}
}

func (c *CachedRegistry) warn(ctx context.Context, msg, code string, err error) {
	c.log.WarnContext(ctx, msg, logger.Tenant(code), logger.Error(err))
}
