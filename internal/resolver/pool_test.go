package resolver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestPool_Candidates_ContainsAllEndpoints(t *testing.T) {
	cfg := testConfig("https://a.example", "https://b.example", "https://c.example")
	pool := NewPool(cfg, zap.NewNop())

	candidates := pool.Candidates(context.Background())
	if len(candidates) != 3 {
		t.Fatalf("Candidates() returned %d endpoints, want 3", len(candidates))
	}

	seen := make(map[string]bool)
	for _, c := range candidates {
		seen[c] = true
	}
	for _, want := range cfg.Endpoints {
		if !seen[want] {
			t.Errorf("Candidates() missing endpoint %q", want)
		}
	}
}

func TestPool_Candidates_ShufflesOrder(t *testing.T) {
	endpoints := []string{"e0", "e1", "e2", "e3", "e4", "e5", "e6", "e7"}
	pool := NewPool(testConfig(endpoints...), zap.NewNop())

	first := pool.Candidates(context.Background())
	differed := false
	for i := 0; i < 20; i++ {
		next := pool.Candidates(context.Background())
		for j := range next {
			if next[j] != first[j] {
				differed = true
				break
			}
		}
		if differed {
			break
		}
	}
	if !differed {
		t.Error("Candidates() returned identical order on 20 consecutive calls")
	}
}

// Resolutions for different tracks can overlap, so Candidates must tolerate
// concurrent callers. Run with -race to verify the shared shuffle.
func TestPool_Candidates_ConcurrentCallers(t *testing.T) {
	pool := NewPool(testConfig("e0", "e1", "e2", "e3"), zap.NewNop())

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				if got := pool.Candidates(context.Background()); len(got) != 4 {
					t.Errorf("Candidates() returned %d endpoints, want 4", len(got))
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestPool_Candidates_PreferredHostFirst(t *testing.T) {
	directory := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"name":"instance-a","api_url":"https://preferred.example/"},
			{"name":"instance-b","api_url":"https://other.example"}
		]`))
	}))
	defer directory.Close()

	cfg := testConfig("https://a.example", "https://b.example")
	cfg.DirectoryURL = directory.URL
	pool := NewPool(cfg, zap.NewNop())

	candidates := pool.Candidates(context.Background())
	if len(candidates) != 3 {
		t.Fatalf("Candidates() returned %d endpoints, want 3", len(candidates))
	}
	if candidates[0] != "https://preferred.example" {
		t.Errorf("Candidates()[0] = %q, want discovered host first (trailing slash trimmed)", candidates[0])
	}
}

func TestPool_Candidates_DirectoryFailureFallsBack(t *testing.T) {
	directory := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer directory.Close()

	cfg := testConfig("https://a.example", "https://b.example")
	cfg.DirectoryURL = directory.URL
	pool := NewPool(cfg, zap.NewNop())

	candidates := pool.Candidates(context.Background())
	if len(candidates) != 2 {
		t.Fatalf("Candidates() returned %d endpoints, want the 2 static ones", len(candidates))
	}
}

func TestPool_Candidates_DirectoryFetchedOncePerTTL(t *testing.T) {
	calls := 0
	directory := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"name":"a","api_url":"https://preferred.example"}]`))
	}))
	defer directory.Close()

	cfg := testConfig("https://a.example")
	cfg.DirectoryURL = directory.URL
	pool := NewPool(cfg, zap.NewNop())

	for i := 0; i < 5; i++ {
		pool.Candidates(context.Background())
	}
	if calls != 1 {
		t.Errorf("directory fetched %d times within TTL, want 1", calls)
	}
}

func TestHostCache_Expiry(t *testing.T) {
	now := time.Now()
	cache := NewHostCache(10 * time.Minute)
	cache.now = func() time.Time { return now }

	if _, ok := cache.Get(); ok {
		t.Error("Get() on empty cache ok = true, want false")
	}

	cache.Set("https://host.example")
	if host, ok := cache.Get(); !ok || host != "https://host.example" {
		t.Errorf("Get() = %q, %v; want cached host", host, ok)
	}

	now = now.Add(11 * time.Minute)
	if _, ok := cache.Get(); ok {
		t.Error("Get() after TTL ok = true, want false")
	}
}

func TestHostCache_Invalidate(t *testing.T) {
	cache := NewHostCache(time.Hour)
	cache.Set("https://host.example")
	cache.Invalidate()

	if _, ok := cache.Get(); ok {
		t.Error("Get() after Invalidate ok = true, want false")
	}
}
