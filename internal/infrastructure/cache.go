package infrastructure

import (
	"strings"
	"sync"
	"time"

	"addash/pkg/logger"
	"addash/pkg/metrics"
)

type cacheEntry struct {
	value     any
	expiresAt time.Time
}

// Cache is an in-memory key/value store with per-entry time-to-live and
// lazy eviction on read. There is no background sweep; Clear is invoked on
// date-range changes, which every key embeds, so stale keys cannot
// accumulate unbounded.
//
// In disabled mode (the live/dev execution mode) reads always miss and
// writes are no-ops, so the cache is never load-bearing for correctness.
type Cache struct {
	entries    map[string]cacheEntry
	mutex      sync.Mutex
	disabled   bool
	defaultTTL time.Duration
	now        func() time.Time
	logger     *logger.Logger
	metrics    *metrics.Metrics
}

// CacheOption customizes a Cache.
type CacheOption func(*Cache)

// Disabled puts the cache in the live/dev mode where it stores nothing.
func Disabled(disabled bool) CacheOption {
	return func(c *Cache) { c.disabled = disabled }
}

// WithClock replaces the time source, for tests.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

// creates a new cache with the given default TTL
func NewCache(defaultTTL time.Duration, logger *logger.Logger, metrics *metrics.Metrics, opts ...CacheOption) *Cache {
	c := &Cache{
		entries:    make(map[string]cacheEntry),
		defaultTTL: defaultTTL,
		now:        time.Now,
		logger:     logger,
		metrics:    metrics,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Set stores value under key with the default TTL.
func (c *Cache) Set(key string, value any) {
	c.SetTTL(key, value, c.defaultTTL)
}

// SetTTL stores value under key, expiring ttl from now.
func (c *Cache) SetTTL(key string, value any, ttl time.Duration) {
	if c.disabled {
		return
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.entries[key] = cacheEntry{
		value:     value,
		expiresAt: c.now().Add(ttl),
	}
}

// Get returns the value under key if present and fresh. An expired entry
// is treated as a miss and evicted as a side effect.
func (c *Cache) Get(key string) (any, bool) {
	if c.disabled {
		return nil, false
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}

	if !c.now().Before(entry.expiresAt) {
		delete(c.entries, key)
		c.metrics.RecordCacheEviction("expired")
		return nil, false
	}

	return entry.value, true
}

// Clear drops every entry.
func (c *Cache) Clear() {
	if c.disabled {
		return
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	dropped := len(c.entries)
	c.entries = make(map[string]cacheEntry)

	if dropped > 0 {
		c.logger.WithField("dropped", dropped).Debug("Cache cleared")
	}
}

// ClearPattern drops every entry whose key contains the given substring,
// invalidating one query family without a full flush.
func (c *Cache) ClearPattern(substring string) {
	if c.disabled {
		return
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	dropped := 0
	for key := range c.entries {
		if strings.Contains(key, substring) {
			delete(c.entries, key)
			dropped++
		}
	}

	if dropped > 0 {
		c.logger.WithFields(map[string]any{
			"pattern": substring,
			"dropped": dropped,
		}).Debug("Cache pattern cleared")
	}
}

// Len reports the number of stored entries, expired or not.
func (c *Cache) Len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.entries)
}
