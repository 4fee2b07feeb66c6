package apihttp

import (
	"context"
	"sync"
	"time"

	"ethpulse/internal/cache"
)

const defaultStatsCacheEntries = 256

type statsEntry struct {
	value *cache.Value[any]
	used  time.Time
}

// statsCache keeps one cache.Value per distinct stats query, at most max of them; the
// least recently used entry is dropped first. Writes that change the underlying
// decisions drop every entry.
type statsCache struct {
	mu      sync.Mutex
	max     int
	nowFn   func() time.Time
	entries map[string]*statsEntry
}

func newStatsCache(max int) *statsCache {
	if max <= 0 {
		max = defaultStatsCacheEntries
	}
	return &statsCache{max: max, nowFn: time.Now, entries: map[string]*statsEntry{}}
}

func (s *statsCache) get(key string, load func(ctx context.Context) (any, error)) *cache.Value[any] {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.nowFn()
	if e, ok := s.entries[key]; ok {
		e.used = now
		return e.value
	}
	if len(s.entries) >= s.max {
		s.evictLocked()
	}
	e := &statsEntry{value: cache.New[any](load), used: now}
	s.entries[key] = e
	return e.value
}

func (s *statsCache) evictLocked() {
	var (
		oldestKey string
		oldest    time.Time
		found     bool
	)
	for k, e := range s.entries {
		if !found || e.used.Before(oldest) {
			oldestKey, oldest, found = k, e.used, true
		}
	}
	if found {
		delete(s.entries, oldestKey)
	}
}

// invalidate drops every entry; loads already in flight finish on the detached values.
func (s *statsCache) invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*statsEntry)
}

func (s *statsCache) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
