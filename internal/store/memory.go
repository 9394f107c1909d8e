package store

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryScope lives as long as the process. It backs the session scope of
// `bsqa serve`, where one server process plays the role of the browser tab.
type MemoryScope struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryScope creates an empty in-process scope. A zero ttl keeps entries
// until they are deleted.
func NewMemoryScope(ttl time.Duration) *MemoryScope {
	return &MemoryScope{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Backend implements Scope.
func (s *MemoryScope) Backend() string { return "memory" }

// Get implements Scope.
func (s *MemoryScope) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok || (!e.expiresAt.IsZero() && !s.now().Before(e.expiresAt)) {
		return nil, ErrKeyNotFound
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

// Set implements Scope.
func (s *MemoryScope) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := memoryEntry{value: append([]byte(nil), value...)}
	if s.ttl > 0 {
		e.expiresAt = s.now().Add(s.ttl)
	}
	s.entries[key] = e
	return nil
}

// Delete implements Scope.
func (s *MemoryScope) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// Close implements Scope.
func (s *MemoryScope) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]memoryEntry)
	return nil
}
