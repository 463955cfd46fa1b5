package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/ppiankov/surveylens/internal/model"
)

// Cache stores raw response bodies keyed by request URL.
// Only catalog bodies are cached; response records always go to the source.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Key generates a cache key from a request URL
func Key(rawURL string) string {
	hash := sha256.Sum256([]byte(rawURL))
	return "surveylens:v1:" + hex.EncodeToString(hash[:])
}

// New builds the cache described by cfg: memory only when Dir is empty,
// memory in front of disk otherwise, and a no-op cache when disabled.
func New(cfg model.CacheConfig) Cache {
	if !cfg.Enabled {
		return Noop{}
	}
	if cfg.Dir == "" {
		return NewMemoryCache(cfg.MemoryTTL, 2*cfg.MemoryTTL)
	}
	return NewLayeredCache(cfg.MemoryTTL, cfg.Dir, cfg.DiskTTL)
}

// Noop never stores anything
type Noop struct{}

func (Noop) Get(string) ([]byte, bool)               { return nil, false }
func (Noop) Set(string, []byte, time.Duration) error { return nil }
func (Noop) Delete(string) error                     { return nil }
func (Noop) Clear() error                            { return nil }
