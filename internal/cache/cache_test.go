package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pacificclimate/impacts/internal/domain"
)

func TestLRUCache(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cache := NewLRUCache(100, WithClock(clock))
	ctx := context.Background()

	t.Run("SetAndGet", func(t *testing.T) {
		err := cache.Set(ctx, "key1", []byte("value1"), time.Minute)
		if err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		val, err := cache.Get(ctx, "key1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}

		if string(val) != "value1" {
			t.Errorf("expected 'value1', got '%s'", string(val))
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		val, err := cache.Get(ctx, "nonexistent")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != nil {
			t.Errorf("expected nil for cache miss, got: %v", val)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = cache.Set(ctx, "key2", []byte("value2"), time.Minute)

		err := cache.Delete(ctx, "key2")
		if err != nil {
			t.Fatalf("Delete failed: %v", err)
		}

		val, _ := cache.Get(ctx, "key2")
		if val != nil {
			t.Error("expected nil after delete")
		}
	})

	t.Run("TTLExpiration", func(t *testing.T) {
		_ = cache.Set(ctx, "expiring", []byte("temp"), 10*time.Minute)

		clock.Advance(9 * time.Minute)
		val, _ := cache.Get(ctx, "expiring")
		if val == nil {
			t.Error("expected value before expiration")
		}

		clock.Advance(time.Minute)
		val, _ = cache.Get(ctx, "expiring")
		if val != nil {
			t.Error("expected nil after expiration")
		}
	})

	t.Run("OverwriteRefreshesTTL", func(t *testing.T) {
		_ = cache.Set(ctx, "refresh", []byte("v1"), time.Minute)
		clock.Advance(50 * time.Second)
		_ = cache.Set(ctx, "refresh", []byte("v2"), time.Minute)
		clock.Advance(50 * time.Second)

		val, _ := cache.Get(ctx, "refresh")
		if string(val) != "v2" {
			t.Errorf("expected 'v2', got '%s'", string(val))
		}
	})

	t.Run("LRUEviction", func(t *testing.T) {
		smallCache := NewLRUCache(3)

		_ = smallCache.Set(ctx, "a", []byte("1"), time.Minute)
		_ = smallCache.Set(ctx, "b", []byte("2"), time.Minute)
		_ = smallCache.Set(ctx, "c", []byte("3"), time.Minute)

		// Access 'a' to make it recently used
		_, _ = smallCache.Get(ctx, "a")

		// Add 'd' - should evict 'b' (oldest accessed)
		_ = smallCache.Set(ctx, "d", []byte("4"), time.Minute)

		val, _ := smallCache.Get(ctx, "b")
		if val != nil {
			t.Error("expected 'b' to be evicted")
		}

		val, _ = smallCache.Get(ctx, "a")
		if val == nil {
			t.Error("expected 'a' to still exist")
		}
	})

	t.Run("RequiresKey", func(t *testing.T) {
		err := cache.Set(ctx, "", []byte("value"), time.Minute)
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}

		_, err = cache.Get(ctx, "")
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("Stats", func(t *testing.T) {
		statsCache := NewLRUCache(50)
		_ = statsCache.Set(ctx, "k1", []byte("v1"), time.Minute)
		_ = statsCache.Set(ctx, "k2", []byte("v2"), time.Minute)

		size, capacity := statsCache.Stats()
		if size != 2 {
			t.Errorf("expected size 2, got %d", size)
		}
		if capacity != 50 {
			t.Errorf("expected capacity 50, got %d", capacity)
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := cache.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("Close", func(t *testing.T) {
		testCache := NewLRUCache(10)
		_ = testCache.Set(ctx, "k", []byte("v"), time.Minute)

		err := testCache.Close()
		if err != nil {
			t.Errorf("Close failed: %v", err)
		}

		val, _ := testCache.Get(ctx, "k")
		if val != nil {
			t.Error("expected cache to be cleared after close")
		}
	})
}

func TestTwoPhaseCache(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()

	newCache := func() (*TwoPhaseCache, *LRUCache) {
		remote := NewLRUCache(100, WithClock(clock))
		return newTwoPhaseCache(NewLRUCache(100, WithClock(clock)), remote, time.Minute), remote
	}

	t.Run("WritesBothLevels", func(t *testing.T) {
		c, remote := newCache()
		if err := c.Set(ctx, "k", []byte("v"), 10*time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		if val, _ := remote.Get(ctx, "k"); string(val) != "v" {
			t.Errorf("expected L2 to hold 'v', got '%s'", string(val))
		}
	})

	t.Run("L1ExpiresBeforeL2", func(t *testing.T) {
		c, _ := newCache()
		_ = c.Set(ctx, "k", []byte("v"), 10*time.Minute)

		clock.Advance(2 * time.Minute)
		size, _ := c.Stats()
		val, _ := c.Get(ctx, "k")
		if string(val) != "v" {
			t.Errorf("expected L2 hit, got '%s'", string(val))
		}
		if size != 1 {
			t.Errorf("expected 1 entry in L1, got %d", size)
		}
	})

	t.Run("PopulatesL1OnL2Hit", func(t *testing.T) {
		c, remote := newCache()
		_ = remote.Set(ctx, "only-remote", []byte("r"), time.Hour)

		if val, _ := c.Get(ctx, "only-remote"); string(val) != "r" {
			t.Fatalf("expected 'r', got '%s'", string(val))
		}
		_ = remote.Delete(ctx, "only-remote")
		if val, _ := c.Get(ctx, "only-remote"); string(val) != "r" {
			t.Errorf("expected L1 to serve 'r', got '%s'", string(val))
		}
	})

	t.Run("Delete", func(t *testing.T) {
		c, remote := newCache()
		_ = c.Set(ctx, "k", []byte("v"), time.Hour)
		_ = c.Delete(ctx, "k")

		if val, _ := c.Get(ctx, "k"); val != nil {
			t.Error("expected nil after delete")
		}
		if val, _ := remote.Get(ctx, "k"); val != nil {
			t.Error("expected L2 to be cleared")
		}
	})
}

func TestNewCache(t *testing.T) {
	t.Run("MemoryType", func(t *testing.T) {
		cfg := domain.CacheConfig{
			Type:         "memory",
			LocalMaxSize: 100,
		}

		cache, err := New(cfg)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer cache.Close()

		_, ok := cache.(*LRUCache)
		if !ok {
			t.Error("expected LRUCache for memory type")
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		cfg := domain.CacheConfig{
			Type: "memcached",
		}

		_, err := New(cfg)
		if err == nil {
			t.Error("expected error for unsupported type")
		}
	})
}
