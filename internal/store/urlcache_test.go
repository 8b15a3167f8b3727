package store

import (
	"fmt"
	"testing"
)

func TestURLCache_Basic(t *testing.T) {
	cache := NewURLCache(100, 0.001)

	// Test empty cache
	if _, ok := cache.Get("track1"); ok {
		t.Error("Empty cache should not have any entries")
	}

	if cache.Size() != 0 {
		t.Errorf("Empty cache size should be 0, got %d", cache.Size())
	}

	// Test storing and retrieving
	cache.Put("track1", "https://cdn.example/track1.m4a")
	url, ok := cache.Get("track1")
	if !ok {
		t.Error("Cache should have track1 after Put")
	}
	if url != "https://cdn.example/track1.m4a" {
		t.Errorf("Cached URL = %q", url)
	}

	if cache.Size() != 1 {
		t.Errorf("Cache size should be 1, got %d", cache.Size())
	}

	// Test overwriting
	cache.Put("track1", "https://cdn.example/track1-v2.m4a")
	if cache.Size() != 1 {
		t.Errorf("Cache size should still be 1 after overwrite, got %d", cache.Size())
	}
	if url, _ := cache.Get("track1"); url != "https://cdn.example/track1-v2.m4a" {
		t.Errorf("Cached URL after overwrite = %q", url)
	}

	// Empty ids and URLs are never stored
	cache.Put("", "https://cdn.example/x.m4a")
	cache.Put("track2", "")
	if cache.Size() != 1 {
		t.Errorf("Cache size should be 1 after rejecting empty entries, got %d", cache.Size())
	}
}

func TestURLCache_Remove(t *testing.T) {
	cache := NewURLCache(100, 0.001)

	cache.Put("track1", "https://cdn.example/track1.m4a")
	cache.Put("track2", "https://cdn.example/track2.m4a")

	cache.Remove("track1")

	if _, ok := cache.Get("track1"); ok {
		t.Error("Cache should not have track1 after Remove")
	}
	if _, ok := cache.Get("track2"); !ok {
		t.Error("Remove should not affect other entries")
	}
	if cache.Size() != 1 {
		t.Errorf("Cache size should be 1 after Remove, got %d", cache.Size())
	}

	// Removing a missing entry is a no-op
	cache.Remove("track3")
	if cache.Size() != 1 {
		t.Errorf("Cache size should still be 1, got %d", cache.Size())
	}
}

func TestURLCache_Eviction(t *testing.T) {
	cache := NewURLCache(3, 0.001)

	for i := 1; i <= 3; i++ {
		cache.Put(fmt.Sprintf("track%d", i), fmt.Sprintf("https://cdn.example/%d.m4a", i))
	}

	// Touch track1 so track2 becomes the eviction candidate
	cache.Get("track1")

	cache.Put("track4", "https://cdn.example/4.m4a")

	if cache.Size() != 3 {
		t.Errorf("Cache size should stay at capacity 3, got %d", cache.Size())
	}
	if _, ok := cache.Get("track2"); ok {
		t.Error("Least recently used entry should have been evicted")
	}
	if _, ok := cache.Get("track1"); !ok {
		t.Error("Recently used entry should survive eviction")
	}
	if _, ok := cache.Get("track4"); !ok {
		t.Error("Newest entry should be present")
	}
}

func TestURLCache_Clear(t *testing.T) {
	cache := NewURLCache(100, 0.001)

	cache.Put("track1", "https://cdn.example/track1.m4a")
	cache.Put("track2", "https://cdn.example/track2.m4a")

	cache.Clear()

	if cache.Size() != 0 {
		t.Errorf("Cache size should be 0 after Clear, got %d", cache.Size())
	}
	if _, ok := cache.Get("track1"); ok {
		t.Error("Cache should not have track1 after Clear")
	}

	// The cache remains usable after Clear
	cache.Put("track3", "https://cdn.example/track3.m4a")
	if _, ok := cache.Get("track3"); !ok {
		t.Error("Cache should accept entries after Clear")
	}
}
