package cache_test

import (
	"testing"
	"time"

	"github.com/cambioseguro/portal-bff-go/internal/infra/cache"
)

func TestCache_SetGet(t *testing.T) {
	c := cache.New[string](time.Minute)
	defer c.Close()

	c.Set("k", "v")
	got, ok := c.Get("k")
	if !ok || got != "v" {
		t.Errorf("expected v, got %q (ok=%v)", got, ok)
	}
}

func TestCache_Expiry(t *testing.T) {
	c := cache.New[int](20 * time.Millisecond)
	defer c.Close()

	c.Set("k", 42)
	time.Sleep(40 * time.Millisecond)

	if _, ok := c.Get("k"); ok {
		t.Error("expected the entry to expire")
	}
}

func TestCache_Touch(t *testing.T) {
	c := cache.New[int](50 * time.Millisecond)
	defer c.Close()

	c.Set("k", 42)
	time.Sleep(30 * time.Millisecond)
	c.Touch("k")
	time.Sleep(30 * time.Millisecond)

	if _, ok := c.Get("k"); !ok {
		t.Error("touched entry must outlive its original TTL")
	}
}

func TestCache_DeleteAndFlush(t *testing.T) {
	c := cache.New[int](time.Minute)
	defer c.Close()

	c.Set("a", 1)
	c.Set("b", 2)

	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Error("deleted entry must be gone")
	}

	c.Flush()
	if _, ok := c.Get("b"); ok {
		t.Error("flushed entry must be gone")
	}
}

func TestCache_MissReturnsZeroValue(t *testing.T) {
	c := cache.New[[]string](time.Minute)
	defer c.Close()

	got, ok := c.Get("missing")
	if ok || got != nil {
		t.Errorf("expected zero value on miss, got %v (ok=%v)", got, ok)
	}
}
