// Package cache is the offline-tolerance layer: a namespaced, JSON-encoded
// key/value cache with timestamp expiry and a stale-if-error fallback, backed
// by an abstract persistent Store.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/SepehrMohammady/IranBlackout/internal/logging"
)

// DefaultTTL matches the mobile client's 30 minute cache window.
const DefaultTTL = 30 * time.Minute

type entry struct {
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"`
	TTLMs     int64           `json:"ttl_ms"`
}

func (e entry) expired(now time.Time) bool {
	age := now.UnixMilli() - e.Timestamp
	return age >= e.TTLMs
}

// Cache namespaces keys under a fixed prefix so cached blobs cannot collide
// with settings or telemetry data in the same store. Store failures are
// logged and treated as a miss; the cache is best-effort, never a
// correctness boundary.
type Cache struct {
	store  Store
	prefix string
	log    *logging.Logger
	now    func() time.Time
}

func New(store Store, prefix string, log *logging.Logger) *Cache {
	return &Cache{store: store, prefix: prefix, log: log, now: time.Now}
}

func (c *Cache) key(k string) string { return c.prefix + k }

// Get unmarshals a valid cached value into dst. Expired entries are evicted
// and reported as a miss.
func (c *Cache) Get(ctx context.Context, key string, dst any) bool {
	e, ok := c.read(ctx, key)
	if !ok {
		return false
	}
	if e.expired(c.now()) {
		if err := c.store.Delete(ctx, c.key(key)); err != nil {
			c.log.Warn("cache evict failed", "key", key, "error", err.Error())
		}
		return false
	}
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		c.log.Warn("cache entry corrupt", "key", key, "error", err.Error())
		return false
	}
	return true
}

// Set writes a value unconditionally. Persistence failures are logged only.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	payload, err := json.Marshal(value)
	if err != nil {
		c.log.Warn("cache marshal failed", "key", key, "error", err.Error())
		return
	}
	raw, err := json.Marshal(entry{Payload: payload, Timestamp: c.now().UnixMilli(), TTLMs: ttl.Milliseconds()})
	if err != nil {
		c.log.Warn("cache marshal failed", "key", key, "error", err.Error())
		return
	}
	if err := c.store.Set(ctx, c.key(key), raw); err != nil {
		c.log.Warn("cache write failed", "key", key, "error", err.Error())
	}
}

// LastWrite reports when a key was last written, expired or not.
func (c *Cache) LastWrite(ctx context.Context, key string) (time.Time, bool) {
	e, ok := c.read(ctx, key)
	if !ok {
		return time.Time{}, false
	}
	return time.UnixMilli(e.Timestamp), true
}

// Clear removes every entry under this cache's namespace.
func (c *Cache) Clear(ctx context.Context) error {
	keys, err := c.store.Keys(ctx, c.prefix)
	if err != nil {
		return fmt.Errorf("list cache keys: %w", err)
	}
	for _, k := range keys {
		if err := c.store.Delete(ctx, k); err != nil {
			return fmt.Errorf("delete %s: %w", k, err)
		}
	}
	return nil
}

// read loads the raw envelope without evicting, so GetOrFetch can fall back
// to an expired payload when the fetch fails.
func (c *Cache) read(ctx context.Context, key string) (entry, bool) {
	raw, ok, err := c.store.Get(ctx, c.key(key))
	if err != nil {
		c.log.Warn("cache read failed", "key", key, "error", err.Error())
		return entry{}, false
	}
	if !ok {
		return entry{}, false
	}
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		c.log.Warn("cache entry corrupt", "key", key, "error", err.Error())
		return entry{}, false
	}
	return e, true
}

// GetOrFetch returns the cached value while it is valid, otherwise invokes
// fetch and caches the result. When fetch fails, the most recent cached value
// is returned regardless of expiry; the fetch error surfaces only if nothing
// was ever cached.
func GetOrFetch[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, fetch func(context.Context) (T, error)) (T, error) {
	var zero T

	e, ok := c.read(ctx, key)
	if ok && !e.expired(c.now()) {
		var v T
		if err := json.Unmarshal(e.Payload, &v); err == nil {
			return v, nil
		}
		c.log.Warn("cache entry corrupt", "key", key)
	}

	v, err := fetch(ctx)
	if err == nil {
		c.Set(ctx, key, v, ttl)
		return v, nil
	}

	if ok {
		var stale T
		if uerr := json.Unmarshal(e.Payload, &stale); uerr == nil {
			c.log.Warn("serving stale cache entry", "key", key, "error", err.Error())
			return stale, nil
		}
	}
	return zero, err
}
