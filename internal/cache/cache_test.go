// Waypost - Website Visitor Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/waypost

package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
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

func newTestCache(t *testing.T, ttl time.Duration) (*Cache, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	c := newCache("test", ttl, clock.Now, time.Hour)
	t.Cleanup(c.Close)
	return c, clock
}

func TestCacheBasicOperations(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)

	c.Set("key1", "value1")
	value, exists := c.Get("key1")
	if !exists || value != "value1" {
		t.Errorf("Get(key1) = %v, %v", value, exists)
	}

	if _, exists = c.Get("key2"); exists {
		t.Error("Expected key2 to not exist")
	}
}

func TestCacheExpiration(t *testing.T) {
	c, clock := newTestCache(t, 2*time.Second)

	c.Set("key1", "value1")
	clock.Advance(time.Second)
	if _, ok := c.Get("key1"); !ok {
		t.Fatal("Expected key1 before expiry")
	}

	clock.Advance(1500 * time.Millisecond)
	if _, ok := c.Get("key1"); ok {
		t.Error("Expected key1 to be expired")
	}
	if s := c.GetStats(); s.Evictions != 1 || s.Misses != 1 || s.Hits != 1 {
		t.Errorf("stats = %+v", s)
	}
}

func TestCacheDeleteAndClear(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)
	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Error("a should be deleted")
	}

	c.Clear()
	for _, k := range []string{"b", "c"} {
		if _, ok := c.Get(k); ok {
			t.Errorf("%s should be cleared", k)
		}
	}
	if s := c.GetStats(); s.TotalKeys != 0 || s.Evictions != 3 {
		t.Errorf("stats after clear = %+v", s)
	}
}

func TestCacheZeroTTLDisabled(t *testing.T) {
	c, _ := newTestCache(t, 0)
	if c.Enabled() {
		t.Fatal("zero TTL cache should be disabled")
	}
	c.Set("k", "v")
	if _, ok := c.Get("k"); ok {
		t.Error("disabled cache returned a value")
	}

	var nilCache *Cache
	if nilCache.Enabled() {
		t.Error("nil cache should be disabled")
	}
	nilCache.Close()
}

func TestCacheSetWithTTLOverridesDefault(t *testing.T) {
	c, clock := newTestCache(t, time.Minute)

	c.SetWithTTL("short", "v", time.Second)
	c.Set("long", "v")
	clock.Advance(2 * time.Second)

	if _, ok := c.Get("short"); ok {
		t.Error("short entry should have expired")
	}
	if _, ok := c.Get("long"); !ok {
		t.Error("long entry should still be cached")
	}
}

func TestCacheCleanupRemovesExpired(t *testing.T) {
	c, clock := newTestCache(t, time.Minute)

	c.Set("old", 1)
	clock.Advance(30 * time.Second)
	c.Set("new", 2)
	clock.Advance(45 * time.Second)

	c.cleanup()
	s := c.GetStats()
	if s.TotalKeys != 1 || s.Evictions != 1 {
		t.Errorf("stats after cleanup = %+v", s)
	}
	if !s.LastCleanup.Equal(clock.Now()) {
		t.Errorf("LastCleanup = %v", s.LastCleanup)
	}
}

func TestCacheHitRate(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)
	if c.HitRate() != 0 {
		t.Errorf("HitRate() with no traffic = %v", c.HitRate())
	}

	c.Set("k", "v")
	c.Get("k")
	c.Get("k")
	c.Get("k")
	c.Get("missing")
	if got := c.HitRate(); got != 75 {
		t.Errorf("HitRate() = %v, want 75", got)
	}
}

func TestGenerateKey(t *testing.T) {
	type params struct {
		TrackerID string
		Window    string
	}
	a := GenerateKey("summary", params{"T1", "24h"})
	b := GenerateKey("summary", params{"T1", "24h"})
	c := GenerateKey("summary", params{"T1", "7d"})
	d := GenerateKey("breakdown", params{"T1", "24h"})

	if a != b {
		t.Error("identical params should produce identical keys")
	}
	if a == c || a == d {
		t.Error("different params or methods should produce different keys")
	}

	if k := GenerateKey("bad", make(chan int)); k == "" {
		t.Error("unmarshalable params should fall back to a formatted key")
	}
}

func TestCacheConcurrency(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("key-%d-%d", n, j%10)
				c.Set(key, j)
				c.Get(key)
				if j%25 == 0 {
					c.Delete(key)
				}
			}
		}(i)
	}
	wg.Wait()

	if s := c.GetStats(); s.Hits+s.Misses != 2000 {
		t.Errorf("hits+misses = %d, want 2000", s.Hits+s.Misses)
	}
}
