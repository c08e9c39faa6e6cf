package backend

import (
	"testing"
	"time"
)

func TestModelCacheExpiry(t *testing.T) {
	cache := newModelCache(50 * time.Millisecond)

	if _, ok := cache.get(); ok {
		t.Fatal("empty cache should miss")
	}

	cache.set([]ModelInfo{{ID: "qwen2.5-coder:7b"}})
	got, ok := cache.get()
	if !ok || len(got) != 1 {
		t.Fatalf("fresh cache should hit, got %v %v", got, ok)
	}

	time.Sleep(80 * time.Millisecond)
	if _, ok := cache.get(); ok {
		t.Fatal("expired cache should miss")
	}
}

func TestModelCacheInvalidate(t *testing.T) {
	cache := newModelCache(time.Hour)
	cache.set([]ModelInfo{{ID: "a"}})
	cache.invalidate()
	if _, ok := cache.get(); ok {
		t.Fatal("invalidated cache should miss")
	}
}

func TestModelCacheCopies(t *testing.T) {
	cache := newModelCache(time.Hour)
	cache.set([]ModelInfo{{ID: "a"}})
	got, _ := cache.get()
	got[0].ID = "mutated"

	again, _ := cache.get()
	if again[0].ID != "a" {
		t.Error("cache returned aliased slice")
	}
}
