package gateway

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the in-process fallback counter store used when no Redis
// address is configured. Windows follow the same seed-then-decrement contract
// as the Redis store, so limiter behaviour is identical apart from not being
// shared across gateway replicas.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*countWindow
}

type countWindow struct {
	remaining int64
	resetAt   time.Time
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{windows: make(map[string]*countWindow)}
}

// Take consumes one token from the window for key, creating or resetting the
// window when it has expired.
func (s *MemoryStore) Take(_ context.Context, key string, tokens int, window time.Duration) (int64, error) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.windows[key]
	if !ok || now.After(entry.resetAt) {
		entry = &countWindow{remaining: int64(tokens), resetAt: now.Add(window)}
		s.windows[key] = entry
	}
	entry.remaining--
	s.cleanupLocked(now)
	return entry.remaining, nil
}

// Ping always succeeds; the store lives in process memory.
func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

func (s *MemoryStore) cleanupLocked(now time.Time) {
	if len(s.windows) == 0 {
		return
	}
	for key, entry := range s.windows {
		if now.After(entry.resetAt) {
			delete(s.windows, key)
		}
	}
}
