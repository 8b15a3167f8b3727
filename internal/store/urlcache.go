// Package store provides the session-scoped resolved stream URL cache,
// backed by an LRU cache with a Bloom filter front.
package store

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	lru "github.com/hashicorp/golang-lru/v2"
)

// URLCache is a thread-safe cache mapping track ids to resolved stream URLs.
// The Bloom filter answers the common miss case without touching the LRU.
// Entries live only for the process lifetime; stream URLs from providers
// expire, so persisting them would serve dead links after a restart.
type URLCache struct {
	bloom                  *bloom.BloomFilter
	lru                    *lru.Cache[string, string]
	mutex                  sync.RWMutex
	maxEntries             int
	bloomFalsePositiveRate float64
}

// NewURLCache creates a resolved URL cache holding at most maxEntries.
func NewURLCache(maxEntries int, bloomFalsePositiveRate float64) *URLCache {
	lruCache, _ := lru.New[string, string](maxEntries)

	if maxEntries < 0 || maxEntries > int(^uint(0)>>1) {
		panic("maxEntries value out of range for uint conversion")
	}
	bloomFilter := bloom.NewWithEstimates(uint(maxEntries), bloomFalsePositiveRate)

	return &URLCache{
		bloom:                  bloomFilter,
		lru:                    lruCache,
		maxEntries:             maxEntries,
		bloomFalsePositiveRate: bloomFalsePositiveRate,
	}
}

// Get returns the cached stream URL for a track id, if present.
func (uc *URLCache) Get(trackID string) (string, bool) {
	uc.mutex.RLock()
	defer uc.mutex.RUnlock()

	if !uc.bloom.TestString(trackID) {
		return "", false
	}

	return uc.lru.Get(trackID)
}

// Put stores a resolved stream URL under the track id, evicting the least
// recently used entry when the cache is full.
func (uc *URLCache) Put(trackID, url string) {
	if trackID == "" || url == "" {
		return
	}

	uc.mutex.Lock()
	defer uc.mutex.Unlock()

	uc.bloom.AddString(trackID)
	uc.lru.Add(trackID, url)
}

// Remove drops a track id from the cache, typically because its cached URL
// turned out to be dead.
func (uc *URLCache) Remove(trackID string) {
	uc.mutex.Lock()
	defer uc.mutex.Unlock()

	uc.lru.Remove(trackID)
	// Note: We can't remove from bloom filter as it doesn't support removal
	// This may cause false positives, but that's acceptable for this use case
}

// Size returns the number of cached URLs.
func (uc *URLCache) Size() int {
	uc.mutex.RLock()
	defer uc.mutex.RUnlock()
	return uc.lru.Len()
}

// Clear removes all cached URLs.
func (uc *URLCache) Clear() {
	uc.mutex.Lock()
	defer uc.mutex.Unlock()

	if uc.maxEntries < 0 || uc.maxEntries > int(^uint(0)>>1) {
		panic("maxEntries value out of range for uint conversion")
	}
	uc.bloom = bloom.NewWithEstimates(uint(uc.maxEntries), uc.bloomFalsePositiveRate)
	uc.lru.Purge()
}
