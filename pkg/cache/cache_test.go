package cache

import (
	"testing"
	"time"
)

func TestCacheSetGet(t *testing.T) {
	c := New(time.Minute)
	defer c.Stop()

	c.Set("k", "v")
	got, ok := c.Get("k")
	if !ok || got != "v" {
		t.Fatalf("expected hit with %q, got %v (ok=%v)", "v", got, ok)
	}

	if _, ok := c.Get("missing"); ok {
		t.Fatal("expected miss for unknown key")
	}
}

func TestCacheTTLExpiry(t *testing.T) {
	c := New(time.Minute)
	defer c.Stop()

	c.SetWithTTL("k", 1, 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	if _, ok := c.Get("k"); ok {
		t.Fatal("expected entry to expire")
	}
}

func TestCacheDelete(t *testing.T) {
	c := New(time.Minute)
	defer c.Stop()

	c.Set("k", 1)
	c.Delete("k")
	if _, ok := c.Get("k"); ok {
		t.Fatal("expected entry to be gone after delete")
	}
}

func TestCacheInvalidatePrefix(t *testing.T) {
	c := New(time.Minute)
	defer c.Stop()

	c.Set("streams:list", 1)
	c.Set("streams:stats:s1", 2)
	c.Set("users:u1", 3)

	c.Invalidate("streams:")

	if _, ok := c.Get("streams:list"); ok {
		t.Fatal("expected streams:list to be invalidated")
	}
	if _, ok := c.Get("streams:stats:s1"); ok {
		t.Fatal("expected streams:stats:s1 to be invalidated")
	}
	if _, ok := c.Get("users:u1"); !ok {
		t.Fatal("expected users:u1 to survive")
	}

	if c.Size() != 1 {
		t.Fatalf("expected size 1, got %d", c.Size())
	}
}
