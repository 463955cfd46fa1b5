package server

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/ppiankov/surveylens/internal/compare"
)

// sessions keeps one Comparator per client session so that a new
// comparison from the same session supersedes the one in flight.
// Idle sessions expire and have their in-flight work cancelled.
type sessions struct {
	runner compare.Runner
	ttl    time.Duration

	mu    sync.Mutex
	items *gocache.Cache
}

func newSessions(runner compare.Runner, ttl time.Duration) *sessions {
	items := gocache.New(ttl, ttl/2)
	items.OnEvicted(func(_ string, v any) {
		if c, ok := v.(*compare.Comparator); ok {
			c.Cancel()
		}
	})
	return &sessions{runner: runner, ttl: ttl, items: items}
}

// get returns the session's comparator, creating it on first use.
// Every access extends the session's lifetime.
func (s *sessions) get(id string) *compare.Comparator {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := s.items.Get(id); ok {
		c := v.(*compare.Comparator)
		s.items.Set(id, c, s.ttl)
		return c
	}
	c := compare.NewComparator(s.runner)
	s.items.Set(id, c, s.ttl)
	return c
}

func (s *sessions) count() float64 {
	return float64(s.items.ItemCount())
}

// close cancels every in-flight comparison
func (s *sessions) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.items.Items() {
		s.items.Delete(id)
	}
}
