package cache

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestNullCache(t *testing.T) {
	ctx := context.Background()
	c := NewNullCache()
	defer c.Close()

	// Get always returns miss
	data, hit, err := c.Get(ctx, "key")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if hit {
		t.Error("NullCache.Get should always return miss")
	}
	if data != nil {
		t.Error("NullCache.Get should return nil data")
	}

	// Set does nothing (no error)
	if err := c.Set(ctx, "key", []byte("value"), time.Hour); err != nil {
		t.Errorf("Set error: %v", err)
	}

	// Still a miss after Set
	_, hit, _ = c.Get(ctx, "key")
	if hit {
		t.Error("NullCache should not store data")
	}

	// Delete does nothing (no error)
	if err := c.Delete(ctx, "key"); err != nil {
		t.Errorf("Delete error: %v", err)
	}
}

func TestFileCache(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	c, err := NewFileCache(dir)
	if err != nil {
		t.Fatalf("NewFileCache error: %v", err)
	}
	defer c.Close()

	if _, hit, _ := c.Get(ctx, "missing"); hit {
		t.Error("expected miss for unknown key")
	}

	if err := c.Set(ctx, "osv:lodash", []byte(`{"vulns":[]}`), time.Hour); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	data, hit, err := c.Get(ctx, "osv:lodash")
	if err != nil || !hit {
		t.Fatalf("Get = hit %v err %v, want hit", hit, err)
	}
	if string(data) != `{"vulns":[]}` {
		t.Errorf("data = %s", data)
	}

	// Expired entries are a miss and get removed
	if err := c.Set(ctx, "stale", []byte("x"), time.Nanosecond); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, hit, _ := c.Get(ctx, "stale"); hit {
		t.Error("expired entry should be a miss")
	}

	// Corrupt entries are treated as a miss
	if err := os.WriteFile(c.path("corrupt"), []byte("not json"), 0o644); err == nil {
		if _, hit, _ := c.Get(ctx, "corrupt"); hit {
			t.Error("corrupt entry should be a miss")
		}
	}

	if err := c.Delete(ctx, "osv:lodash"); err != nil {
		t.Errorf("Delete error: %v", err)
	}
	if _, hit, _ := c.Get(ctx, "osv:lodash"); hit {
		t.Error("deleted entry should be a miss")
	}
	if err := c.Delete(ctx, "never-set"); err != nil {
		t.Errorf("Delete of missing key should not error: %v", err)
	}
}

func TestFileCachePruneAndClear(t *testing.T) {
	ctx := context.Background()
	c, err := NewFileCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileCache error: %v", err)
	}
	now := time.Now()
	c.now = func() time.Time { return now }

	_ = c.Set(ctx, "fresh", []byte("1"), time.Hour)
	_ = c.Set(ctx, "forever", []byte("2"), 0)
	_ = c.Set(ctx, "stale", []byte("3"), time.Minute)
	now = now.Add(2 * time.Minute)

	n, err := c.Prune()
	if err != nil || n != 1 {
		t.Fatalf("Prune() = %d, %v; want 1", n, err)
	}
	if _, hit, _ := c.Get(ctx, "fresh"); !hit {
		t.Error("Prune removed a live entry")
	}

	n, err = c.Clear()
	if err != nil || n != 2 {
		t.Fatalf("Clear() = %d, %v; want 2", n, err)
	}
	entries, _ := os.ReadDir(c.Dir())
	if len(entries) != 0 {
		t.Errorf("Clear left %d entries in cache dir", len(entries))
	}
}

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(2)

	_ = c.Set(ctx, "a", []byte("1"), 0)
	_ = c.Set(ctx, "b", []byte("2"), 0)
	_ = c.Set(ctx, "c", []byte("3"), 0)

	if _, hit, _ := c.Get(ctx, "a"); hit {
		t.Error("oldest entry should have been evicted")
	}
	if data, hit, _ := c.Get(ctx, "c"); !hit || string(data) != "3" {
		t.Errorf("Get(c) = %q, %v", data, hit)
	}

	mc := c.(*MemoryCache)
	now := time.Now()
	mc.lru.now = func() time.Time { return now }
	_ = c.Set(ctx, "ttl", []byte("x"), time.Minute)
	now = now.Add(2 * time.Minute)
	if _, hit, _ := c.Get(ctx, "ttl"); hit {
		t.Error("entry past its TTL should be a miss")
	}

	buf := []byte("mutable")
	_ = c.Set(ctx, "copy", buf, 0)
	buf[0] = 'X'
	if data, _, _ := c.Get(ctx, "copy"); string(data) != "mutable" {
		t.Errorf("MemoryCache should store a copy, got %q", data)
	}
}

func TestNewRedisCacheInvalidURL(t *testing.T) {
	if _, err := NewRedisCache(context.Background(), "not-a-redis-url", "pastoralist:"); err == nil {
		t.Error("NewRedisCache should reject an invalid URL")
	}
}

func TestHash(t *testing.T) {
	h1 := Hash([]byte("hello"))
	h2 := Hash([]byte("hello"))
	if h1 != h2 {
		t.Error("Hash should be deterministic")
	}

	h3 := Hash([]byte("world"))
	if h1 == h3 {
		t.Error("Different inputs should produce different hashes")
	}

	// SHA-256 produces 64 hex chars
	if len(h1) != 64 {
		t.Errorf("Hash length should be 64, got %d", len(h1))
	}
}

func TestDefaultKeyer(t *testing.T) {
	k := NewDefaultKeyer()

	if got := k.HTTPKey("npm", "lodash"); got != "http:npm:lodash" {
		t.Errorf("HTTPKey unexpected: %s", got)
	}

	if got := k.AdvisoryKey("osv", "GHSA-35jh-r3h4-6jhm"); got != "advisory:osv:GHSA-35jh-r3h4-6jhm" {
		t.Errorf("AdvisoryKey unexpected: %s", got)
	}

	q1 := k.QueryKey("osv", []string{"lodash@4.17.20"})
	q2 := k.QueryKey("osv", []string{"lodash@4.17.21"})
	if q1 == q2 {
		t.Error("Different package sets should produce different keys")
	}
	if q1 != k.QueryKey("osv", []string{"lodash@4.17.20"}) {
		t.Error("QueryKey should be deterministic")
	}
}
