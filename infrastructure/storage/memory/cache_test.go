package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/influx-mcp/domain/cache"
	"github.com/felixgeelhaar/influx-mcp/infrastructure/storage/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func TestNewCache(t *testing.T) {
	t.Parallel()

	c := memory.NewCache()
	if got := c.Stats().MaxSize; got != 100 {
		t.Errorf("default MaxSize = %d, want 100", got)
	}

	c = memory.NewCache(memory.WithMaxSize(500))
	if got := c.Stats().MaxSize; got != 500 {
		t.Errorf("MaxSize = %d, want 500", got)
	}
}

func TestCache_RoundTripAndExpiry(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	c := memory.NewCache(memory.WithTTL(100*time.Millisecond), memory.WithClock(clock.Now))
	ctx := context.Background()

	if err := c.Set(ctx, "k", []byte("v"), cache.SetOptions{}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, ok, err := c.Get(ctx, "k")
	if err != nil || !ok || string(got) != "v" {
		t.Fatalf("Get() = %q, %v, %v, want v, true, nil", got, ok, err)
	}

	clock.Advance(101 * time.Millisecond)

	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Error("Get() after TTL should miss")
	}
	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("hits/misses = %d/%d, want 1/1", stats.Hits, stats.Misses)
	}
	if stats.Size != 0 {
		t.Errorf("Size = %d, want 0 after expired read", stats.Size)
	}
	if stats.HitRate() != 0.5 {
		t.Errorf("HitRate() = %v, want 0.5", stats.HitRate())
	}
}

func TestCache_ReadsDoNotExtendTTL(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	c := memory.NewCache(memory.WithTTL(time.Second), memory.WithClock(clock.Now))
	ctx := context.Background()

	_ = c.Set(ctx, "k", []byte("v"), cache.SetOptions{})
	for range 3 {
		clock.Advance(300 * time.Millisecond)
		if _, ok, _ := c.Get(ctx, "k"); !ok {
			t.Fatal("entry expired early")
		}
	}
	clock.Advance(200 * time.Millisecond)
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Error("entry outlived its TTL because of reads")
	}
}

func TestCache_LRUEviction(t *testing.T) {
	t.Parallel()

	c := memory.NewCache(memory.WithMaxSize(2), memory.WithTTL(time.Hour))
	ctx := context.Background()

	_ = c.Set(ctx, "a", []byte("1"), cache.SetOptions{})
	_ = c.Set(ctx, "b", []byte("2"), cache.SetOptions{})
	_, _, _ = c.Get(ctx, "a") // b is now least recently used
	_ = c.Set(ctx, "c", []byte("3"), cache.SetOptions{})

	if ok, _ := c.Exists(ctx, "b"); ok {
		t.Error("b should have been evicted")
	}
	for _, k := range []string{"a", "c"} {
		if ok, _ := c.Exists(ctx, k); !ok {
			t.Errorf("%s should still be cached", k)
		}
	}
	if got := c.Stats().Evictions; got != 1 {
		t.Errorf("Evictions = %d, want 1", got)
	}
}

func TestCache_OverwriteResetsAge(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	c := memory.NewCache(memory.WithTTL(time.Second), memory.WithClock(clock.Now))
	ctx := context.Background()

	_ = c.Set(ctx, "k", []byte("old"), cache.SetOptions{})
	clock.Advance(900 * time.Millisecond)
	_ = c.Set(ctx, "k", []byte("new"), cache.SetOptions{})
	clock.Advance(900 * time.Millisecond)

	got, ok, _ := c.Get(ctx, "k")
	if !ok || string(got) != "new" {
		t.Errorf("Get() = %q, %v, want new, true", got, ok)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestCache_PerEntryTTL(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	c := memory.NewCache(memory.WithTTL(time.Hour), memory.WithClock(clock.Now))
	ctx := context.Background()

	_ = c.Set(ctx, "short", []byte("x"), cache.SetOptions{TTL: time.Second})
	clock.Advance(2 * time.Second)
	if ok, _ := c.Exists(ctx, "short"); ok {
		t.Error("per-entry TTL should override the default")
	}
}

func TestCache_EvictExpired(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	c := memory.NewCache(memory.WithTTL(time.Second), memory.WithClock(clock.Now))
	ctx := context.Background()

	_ = c.Set(ctx, "a", []byte("1"), cache.SetOptions{})
	_ = c.Set(ctx, "b", []byte("2"), cache.SetOptions{})
	clock.Advance(500 * time.Millisecond)
	_ = c.Set(ctx, "c", []byte("3"), cache.SetOptions{})
	clock.Advance(600 * time.Millisecond)

	if n := c.EvictExpired(); n != 2 {
		t.Errorf("EvictExpired() = %d, want 2", n)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestCache_CopiesValues(t *testing.T) {
	t.Parallel()

	c := memory.NewCache()
	ctx := context.Background()

	value := []byte("abc")
	_ = c.Set(ctx, "k", value, cache.SetOptions{})
	value[0] = 'X'

	got, _, _ := c.Get(ctx, "k")
	got[1] = 'Y'
	again, _, _ := c.Get(ctx, "k")
	if string(again) != "abc" {
		t.Errorf("stored value = %q, want abc", again)
	}
}

func TestCache_Errors(t *testing.T) {
	t.Parallel()

	c := memory.NewCache()
	if err := c.Set(context.Background(), "", nil, cache.SetOptions{}); !errors.Is(err, cache.ErrInvalidKey) {
		t.Errorf("Set(empty key) error = %v, want ErrInvalidKey", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := c.Get(ctx, "k"); !errors.Is(err, context.Canceled) {
		t.Errorf("Get(cancelled) error = %v, want context.Canceled", err)
	}
}

func TestCache_DeleteAndClear(t *testing.T) {
	t.Parallel()

	c := memory.NewCache()
	ctx := context.Background()

	_ = c.Set(ctx, "a", []byte("1"), cache.SetOptions{})
	_ = c.Set(ctx, "b", []byte("2"), cache.SetOptions{})

	_ = c.Delete(ctx, "a")
	if ok, _ := c.Exists(ctx, "a"); ok {
		t.Error("a should be deleted")
	}
	_ = c.Clear(ctx)
	if c.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", c.Len())
	}
}

func TestCache_Concurrent(t *testing.T) {
	t.Parallel()

	c := memory.NewCache(memory.WithMaxSize(10))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := string(rune('a' + i%15))
			_ = c.Set(ctx, key, []byte{byte(i)}, cache.SetOptions{})
			_, _, _ = c.Get(ctx, key)
		}()
	}
	wg.Wait()

	if c.Len() > 10 {
		t.Errorf("Len() = %d, want at most 10", c.Len())
	}
}
