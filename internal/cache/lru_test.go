package cache

import (
	"testing"
	"time"
)

func TestLRUCacheGetSet(t *testing.T) {
	c := NewLRUCache[string](2, time.Minute)

	if _, ok := c.Get("a"); ok {
		t.Fatal("empty cache should miss")
	}

	c.Set("a", "1")
	if v, ok := c.Get("a"); !ok || v != "1" {
		t.Fatalf("expected hit with 1, got %q/%v", v, ok)
	}

	c.Set("a", "2")
	if v, _ := c.Get("a"); v != "2" {
		t.Fatalf("set should overwrite, got %q", v)
	}
	if c.Size() != 1 {
		t.Fatalf("overwrite should not grow the cache, size %d", c.Size())
	}
}

func TestLRUCacheEvictsOldest(t *testing.T) {
	c := NewLRUCache[int](2, time.Minute)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a") // refresh a so b is the eviction candidate
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Fatal("least recently used entry should be evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Fatal("recently used entry should survive")
	}
	if _, ok := c.Get("c"); !ok {
		t.Fatal("new entry should be present")
	}
}

func TestLRUCacheTTL(t *testing.T) {
	c := NewLRUCache[int](10, 10*time.Millisecond)

	c.Set("a", 1)
	time.Sleep(20 * time.Millisecond)

	if _, ok := c.Get("a"); ok {
		t.Fatal("expired entry should miss")
	}
	if c.Size() != 0 {
		t.Fatalf("expired read should drop the entry, size %d", c.Size())
	}
}

func TestLRUCacheDeletePrefix(t *testing.T) {
	c := NewLRUCache[int](10, time.Minute)

	c.Set("1:2024-01", 1)
	c.Set("1:2024-02", 2)
	c.Set("2:2024-02", 3)

	if n := c.DeletePrefix("1:"); n != 2 {
		t.Fatalf("expected 2 removed, got %d", n)
	}
	if _, ok := c.Get("2:2024-02"); !ok {
		t.Fatal("other users' entries should survive")
	}
	if c.Size() != 1 {
		t.Fatalf("expected size 1, got %d", c.Size())
	}
}

func TestCleanExpired(t *testing.T) {
	c := NewLRUCache[int](10, 10*time.Millisecond)

	c.Set("a", 1)
	c.Set("b", 2)
	time.Sleep(20 * time.Millisecond)

	if n := c.CleanExpired(); n != 2 {
		t.Fatalf("expected 2 cleaned, got %d", n)
	}
	if c.Size() != 0 {
		t.Fatalf("expected empty cache, size %d", c.Size())
	}
}
