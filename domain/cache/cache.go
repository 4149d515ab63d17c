// Package cache defines the result cache used by the query pipeline.
package cache

import (
	"context"
	"math"
	"time"
)

// Cache stores serialized query results and metadata lookups.
// Backends are in-memory (TTL + LRU), Redis and BadgerDB.
type Cache interface {
	// Get returns the value and true on a hit. Expired entries are misses.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key. A zero TTL uses the backend default.
	Set(ctx context.Context, key string, value []byte, opts SetOptions) error

	// Delete removes key.
	Delete(ctx context.Context, key string) error

	// Exists reports whether a live entry is stored under key.
	Exists(ctx context.Context, key string) (bool, error)

	// Clear drops every entry.
	Clear(ctx context.Context) error
}

// SetOptions configures how a value is stored.
type SetOptions struct {
	// TTL overrides the backend's default time-to-live.
	TTL time.Duration
}

// Stats are cumulative cache counters.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Size      int64 `json:"size"`
	MaxSize   int64 `json:"max_size"`
}

// HitRate is hits / (hits + misses) rounded to two decimals, or 0 before
// any lookup.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return math.Round(float64(s.Hits)/float64(total)*100) / 100
}

// StatsProvider is implemented by caches that keep counters.
type StatsProvider interface {
	Stats() Stats
}

// Expirer is implemented by caches that need explicit sweeping of expired
// entries. Backends with native expiry do not implement it.
type Expirer interface {
	EvictExpired() int
}
