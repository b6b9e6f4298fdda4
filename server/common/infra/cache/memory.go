package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryStore keeps keys in process memory. Expired keys are dropped lazily on
// access, so TTL behaviour matches Redis from the caller's point of view.
type MemoryStore struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]memoryEntry
	down    bool
}

func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(time.Now)
}

func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	return &MemoryStore{now: now, entries: map[string]memoryEntry{}}
}

// SetAvailable toggles simulated unavailability; while unavailable every
// operation fails with ErrUnavailable.
func (s *MemoryStore) SetAvailable(ok bool) {
	s.mu.Lock()
	s.down = !ok
	s.mu.Unlock()
}

func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return ErrUnavailable
	}
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = s.now().Add(ttl)
	}
	s.entries[key] = entry
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return "", false, ErrUnavailable
	}
	entry, ok := s.entries[key]
	if !ok {
		return "", false, nil
	}
	if !entry.expiresAt.IsZero() && !s.now().Before(entry.expiresAt) {
		delete(s.entries, key)
		return "", false, nil
	}
	return entry.value, true, nil
}

func (s *MemoryStore) Del(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return ErrUnavailable
	}
	delete(s.entries, key)
	return nil
}

func (s *MemoryStore) IsAlive(context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.down
}

// TTL returns the remaining lifetime of key, or false when it is absent.
func (s *MemoryStore) TTL(key string) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok {
		return 0, false
	}
	if entry.expiresAt.IsZero() {
		return -1, true
	}
	remaining := entry.expiresAt.Sub(s.now())
	if remaining <= 0 {
		return 0, false
	}
	return remaining, true
}
