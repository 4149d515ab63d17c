// Package memory provides in-process storage: the TTL + LRU result cache
// and the tool registry.
package memory

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/felixgeelhaar/influx-mcp/domain/cache"
)

const (
	defaultMaxSize = 100
	defaultTTL     = 30 * time.Second
)

// cacheEntry holds a cached value with its creation time.
type cacheEntry struct {
	key       string
	value     []byte
	createdAt time.Time
	ttl       time.Duration
}

func (e *cacheEntry) expired(now time.Time) bool {
	return e.ttl > 0 && now.Sub(e.createdAt) > e.ttl
}

// Cache is a capacity-bounded LRU with an independent TTL check on every
// read. TTL is measured from creation: reads move an entry to the front of
// the recency list but never extend its life.
type Cache struct {
	mu        sync.Mutex
	order     *list.List
	items     map[string]*list.Element
	maxSize   int
	ttl       time.Duration
	now       func() time.Time
	hits      int64
	misses    int64
	evictions int64
}

// CacheOption configures the cache.
type CacheOption func(*Cache)

// WithMaxSize sets the maximum number of entries.
func WithMaxSize(size int) CacheOption {
	return func(c *Cache) {
		if size > 0 {
			c.maxSize = size
		}
	}
}

// WithTTL sets the default time-to-live.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) {
		c.ttl = ttl
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) {
		c.now = now
	}
}

// NewCache creates a new in-memory cache.
func NewCache(opts ...CacheOption) *Cache {
	c := &Cache{
		order:   list.New(),
		items:   make(map[string]*list.Element),
		maxSize: defaultMaxSize,
		ttl:     defaultTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get retrieves a value. An expired entry is purged and counted as a miss.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.misses++
		return nil, false, nil
	}
	entry := elem.Value.(*cacheEntry)
	if entry.expired(c.now()) {
		c.remove(elem)
		c.misses++
		return nil, false, nil
	}

	c.order.MoveToFront(elem)
	c.hits++

	value := make([]byte, len(entry.value))
	copy(value, entry.value)
	return value, true, nil
}

// Set stores a value, evicting the least recently used entry when full.
// Overwriting a key resets its age.
func (c *Cache) Set(ctx context.Context, key string, value []byte, opts cache.SetOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return cache.ErrInvalidKey
	}

	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)

	ttl := c.ttl
	if opts.TTL > 0 {
		ttl = opts.TTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry := &cacheEntry{key: key, value: valueCopy, createdAt: c.now(), ttl: ttl}
	if elem, ok := c.items[key]; ok {
		elem.Value = entry
		c.order.MoveToFront(elem)
		return nil
	}

	for c.order.Len() >= c.maxSize {
		c.remove(c.order.Back())
		c.evictions++
	}
	c.items[key] = c.order.PushFront(entry)
	return nil
}

// Delete removes a value from the cache.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.remove(elem)
	}
	return nil
}

// Exists reports whether a live entry is stored under key. It neither
// touches recency nor counts as a lookup.
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return false, nil
	}
	if elem.Value.(*cacheEntry).expired(c.now()) {
		c.remove(elem)
		return false, nil
	}
	return true, nil
}

// Clear removes all entries from the cache. Counters are kept.
func (c *Cache) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.order.Init()
	c.items = make(map[string]*list.Element)
	return nil
}

// EvictExpired purges every expired entry and returns how many were removed.
func (c *Cache) EvictExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var removed int
	for elem := c.order.Back(); elem != nil; {
		prev := elem.Prev()
		if elem.Value.(*cacheEntry).expired(now) {
			c.remove(elem)
			removed++
		}
		elem = prev
	}
	return removed
}

// Stats returns cache statistics.
func (c *Cache) Stats() cache.Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return cache.Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Size:      int64(c.order.Len()),
		MaxSize:   int64(c.maxSize),
	}
}

// Len returns the number of stored entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// remove must be called with the lock held.
func (c *Cache) remove(elem *list.Element) {
	c.order.Remove(elem)
	delete(c.items, elem.Value.(*cacheEntry).key)
}

var (
	_ cache.Cache         = (*Cache)(nil)
	_ cache.StatsProvider = (*Cache)(nil)
	_ cache.Expirer       = (*Cache)(nil)
)
