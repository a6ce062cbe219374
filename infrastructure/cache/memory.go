// Package cache provides ports.CacheStore implementations backed by process
// memory and Redis.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/ahrav/go-trustrag/internal/ports"
)

var _ ports.CacheStore = (*MemoryStore)(nil)

type memoryEntry struct {
	value     any
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryStore is an in-process cache with per-entry expiry. Expired entries
// are dropped lazily on access. The zero value is not usable; call
// NewMemoryStore.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Get returns the value stored under key if it has not expired.
func (m *MemoryStore) Get(_ context.Context, key string) (any, bool, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}

	if entry.expired(m.now()) {
		m.mu.Lock()
		// Re-check under the write lock; a concurrent Set may have refreshed it.
		if current, ok := m.entries[key]; ok && current.expired(m.now()) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return nil, false, nil
	}
	return entry.value, true, nil
}

// Set stores value under key. A zero expiration never expires.
func (m *MemoryStore) Set(_ context.Context, key string, value any, expiration time.Duration) error {
	entry := memoryEntry{value: value}
	if expiration > 0 {
		entry.expiresAt = m.now().Add(expiration)
	}

	m.mu.Lock()
	m.entries[key] = entry
	m.mu.Unlock()
	return nil
}

// Delete removes key. Missing keys are ignored.
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// Clear removes every entry.
func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	m.entries = make(map[string]memoryEntry)
	m.mu.Unlock()
	return nil
}

// Len reports the number of stored entries, including expired ones that
// have not been accessed since expiring.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
