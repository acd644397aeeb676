package cache

import (
	"testing"
	"time"
)

func TestCacheGetPutRoundTrip(t *testing.T) {
	t.Parallel()
	c := New[int](time.Minute, 10)

	if err := c.Put("a", 1); err != nil {
		t.Fatalf("put: %v", err)
	}
	v, ok := c.Get("a")
	if !ok || v != 1 {
		t.Fatalf("got (%v, %v), want (1, true)", v, ok)
	}
}

func TestCacheInvalidKey(t *testing.T) {
	t.Parallel()
	c := New[int](time.Minute, 10)

	if err := c.Put("", 1); err != ErrInvalidKey {
		t.Fatalf("put empty key: got %v, want ErrInvalidKey", err)
	}
	if _, ok := c.Get(""); ok {
		t.Fatalf("get empty key: got ok=true, want false")
	}
}

func TestCacheTTLExpiry(t *testing.T) {
	t.Parallel()
	c := New[int](10 * time.Millisecond, 10)

	if err := c.Put("a", 1); err != nil {
		t.Fatalf("put: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, ok := c.Get("a"); ok {
		t.Fatalf("expected expired entry to read as absent")
	}
}

func TestCacheSizeBound(t *testing.T) {
	t.Parallel()
	c := New[int](time.Minute, 3)

	keys := []string{"a", "b", "c", "d", "e"}
	for i, k := range keys {
		if err := c.Put(k, i); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
		if c.Len() > 3 {
			t.Fatalf("cache size %d exceeds max_size 3 after inserting %s", c.Len(), k)
		}
	}
}

func TestCacheEvictsOldestFirst(t *testing.T) {
	t.Parallel()
	c := New[int](time.Minute, 2)

	c.Put("first", 1)
	c.Put("second", 2)
	c.Put("third", 3) // should evict "first"

	if _, ok := c.Get("first"); ok {
		t.Fatalf("expected oldest entry 'first' to be evicted")
	}
	if _, ok := c.Get("second"); !ok {
		t.Fatalf("expected 'second' to survive eviction")
	}
	if _, ok := c.Get("third"); !ok {
		t.Fatalf("expected newly-inserted 'third' to be present")
	}
}

func TestCacheInvalidateAndClear(t *testing.T) {
	t.Parallel()
	c := New[int](time.Minute, 10)

	c.Put("a", 1)
	c.Put("b", 2)

	c.Invalidate("a")
	if _, ok := c.Get("a"); ok {
		t.Fatalf("expected 'a' to be gone after Invalidate")
	}

	c.Clear()
	if c.Len() != 0 {
		t.Fatalf("expected empty cache after Clear, got len=%d", c.Len())
	}
}
