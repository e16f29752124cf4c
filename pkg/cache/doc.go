// Package cache provides an in-process LRU with per-entry expiry.
//
// It backs the registry cache when no Redis is configured:
//
//	c := cache.New[string, *tenant.Record](1024, 5*time.Minute)
//	c.Set("downtown-01", rec)
//	rec, ok := c.Get("downtown-01")
//
// Expired entries are dropped lazily on Get or when they fall off the end of
// the recency list. There is no background goroutine.
package cache
