// Package cache memoizes provider lookups by namespace and key
package cache

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/s0up4200/posterarr/art"
	"github.com/s0up4200/posterarr/snapshot"
)

const snapshotKind = "cache"

// Entry is a cached lookup result
type Entry struct {
	art.Result
	CachedAt time.Time `json:"cached_at"`
}

// Option configures a Cache
type Option func(*Cache)

// WithNegativeTTL makes empty results eligible for a fresh lookup once they
// are older than ttl. Zero keeps them forever.
func WithNegativeTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		c.negativeTTL = ttl
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		c.now = now
	}
}

// Cache is a thread-safe namespace -> key -> Entry store
type Cache struct {
	mu          sync.RWMutex
	entries     map[string]map[string]Entry
	negativeTTL time.Duration
	now         func() time.Time
}

// New creates an empty cache
func New(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]map[string]Entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached result for (ns, key)
func (c *Cache) Get(ns, key string) (art.Result, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[ns][key]
	if !ok {
		return art.Result{}, false
	}
	if c.negativeTTL > 0 && e.IsEmpty() && c.now().Sub(e.CachedAt) >= c.negativeTTL {
		return art.Result{}, false
	}
	return e.Result, true
}

// Set stores a result for (ns, key)
func (c *Cache) Set(ns, key string, res art.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	bucket, ok := c.entries[ns]
	if !ok {
		bucket = make(map[string]Entry)
		c.entries[ns] = bucket
	}
	bucket[key] = Entry{
		Result:   art.Result{PosterURL: res.PosterURL, BackgroundURL: res.BackgroundURL, Source: res.Source},
		CachedAt: c.now().UTC(),
	}
}

// Len returns the number of cached entries across all namespaces
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	for _, bucket := range c.entries {
		n += len(bucket)
	}
	return n
}

// Namespaces returns the entry count per namespace
func (c *Cache) Namespaces() map[string]int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]int, len(c.entries))
	for ns, bucket := range c.entries {
		out[ns] = len(bucket)
	}
	return out
}

// Save writes the cache to path
func (c *Cache) Save(path string) error {
	c.mu.RLock()
	data := make(map[string]map[string]Entry, len(c.entries))
	for ns, bucket := range c.entries {
		cp := make(map[string]Entry, len(bucket))
		for k, v := range bucket {
			cp[k] = v
		}
		data[ns] = cp
	}
	c.mu.RUnlock()

	return snapshot.Write(path, snapshotKind, data)
}

// Load merges the snapshot at path into the cache. A missing file is not
// an error.
func (c *Cache) Load(path string) error {
	var data map[string]map[string]Entry
	if err := snapshot.Read(path, snapshotKind, &data); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load cache: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for ns, bucket := range data {
		dst, ok := c.entries[ns]
		if !ok {
			dst = make(map[string]Entry, len(bucket))
			c.entries[ns] = dst
		}
		for k, v := range bucket {
			dst[k] = v
		}
	}
	return nil
}
