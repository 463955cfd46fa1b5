package cache

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/surveylens/internal/model"
)

func TestKey(t *testing.T) {
	a := Key("http://api/organizations")
	b := Key("http://api/clauses")

	if !strings.HasPrefix(a, "surveylens:v1:") {
		t.Errorf("expected versioned prefix, got %s", a)
	}
	if a == b {
		t.Error("expected distinct keys for distinct URLs")
	}
	if a != Key("http://api/organizations") {
		t.Error("expected stable keys")
	}
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)

	body := []byte(`[{"id":1}]`)
	if err := c.Set("k", body, 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	body[0] = 'X'

	got, ok := c.Get("k")
	if !ok || string(got) != `[{"id":1}]` {
		t.Errorf("expected stored copy, got %q %v", got, ok)
	}

	got[0] = 'Y'
	again, _ := c.Get("k")
	if again[0] != '[' {
		t.Error("callers must not mutate the cached body")
	}

	_ = c.Delete("k")
	if _, ok := c.Get("k"); ok {
		t.Error("expected miss after delete")
	}
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)
	_ = c.Set("k", []byte("v"), time.Millisecond)

	time.Sleep(5 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Error("expected entry to expire")
	}
}

func TestDiskCache_RoundTripAndExpiry(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskCache(dir, time.Hour)

	if err := c.Set("k", []byte("catalog"), 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got, ok := c.Get("k"); !ok || string(got) != "catalog" {
		t.Errorf("expected hit, got %q %v", got, ok)
	}

	c.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, ok := c.Get("k"); ok {
		t.Error("expected expired entry to miss")
	}
	if _, err := os.Stat(filepath.Join(dir, "k.json")); !os.IsNotExist(err) {
		t.Error("expected expired entry to be removed")
	}
}

func TestDiskCache_CorruptEntryIsAMiss(t *testing.T) {
	dir := t.TempDir()
	c := NewDiskCache(dir, time.Hour)

	if err := os.WriteFile(filepath.Join(dir, "k.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Get("k"); ok {
		t.Error("expected corrupt entry to miss")
	}
	if err := c.Delete("missing"); err != nil {
		t.Errorf("deleting a missing entry should succeed, got %v", err)
	}
}

func TestLayeredCache_PromotesDiskHits(t *testing.T) {
	dir := t.TempDir()

	writer := NewLayeredCache(time.Minute, dir, time.Hour)
	if err := writer.Set("k", []byte("v"), 0); err != nil {
		t.Fatalf("set: %v", err)
	}

	// A fresh process sees only the disk layer
	reader := NewLayeredCache(time.Minute, dir, time.Hour)
	if got, ok := reader.Get("k"); !ok || string(got) != "v" {
		t.Fatalf("expected disk hit, got %q %v", got, ok)
	}
	if _, ok := reader.memory.Get("k"); !ok {
		t.Error("expected disk hit to be promoted to memory")
	}

	if err := reader.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok := reader.Get("k"); ok {
		t.Error("expected miss after clear")
	}
}

func TestNew(t *testing.T) {
	if _, ok := New(model.CacheConfig{}).(Noop); !ok {
		t.Error("expected no-op cache when disabled")
	}
	if _, ok := New(model.CacheConfig{Enabled: true, MemoryTTL: time.Minute}).(*MemoryCache); !ok {
		t.Error("expected memory cache without a dir")
	}
	if _, ok := New(model.CacheConfig{Enabled: true, MemoryTTL: time.Minute, Dir: t.TempDir(), DiskTTL: time.Hour}).(*LayeredCache); !ok {
		t.Error("expected layered cache with a dir")
	}
}
