package cache

import (
	"context"
	"path/filepath"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryCache is the in-process fallback tier: a capped map with per-entry
// TTL, evicting the oldest entry once the cap is reached. Grounded on the
// teacher's HNSWIndex mutex-guarded-map idiom; the pack's own
// shared-libs/cache.NewMemoryCache is a stub ("not yet available") so this
// is new code filling that gap for the two-tier design the spec requires.
type MemoryCache struct {
	mu       sync.Mutex
	entries  map[string]memoryEntry
	order    []string // insertion order, oldest first, for capacity eviction
	maxKeys  int
}

// NewMemoryCache constructs an empty fallback cache capped at maxKeys
// entries (0 means unbounded).
func NewMemoryCache(maxKeys int) *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		maxKeys: maxKeys,
	}
}

func (m *MemoryCache) Mode() Mode { return ModeMemory }

func (m *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		delete(m.entries, key)
		return nil, false
	}
	return e.value, true
}

func (m *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	if _, exists := m.entries[key]; !exists {
		if m.maxKeys > 0 && len(m.entries) >= m.maxKeys {
			m.evictOldestLocked()
		}
		m.order = append(m.order, key)
	}
	m.entries[key] = memoryEntry{value: value, expiresAt: expiresAt}
}

func (m *MemoryCache) evictOldestLocked() {
	for len(m.order) > 0 {
		oldest := m.order[0]
		m.order = m.order[1:]
		if _, ok := m.entries[oldest]; ok {
			delete(m.entries, oldest)
			return
		}
	}
}

func (m *MemoryCache) Delete(_ context.Context, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
}

// InvalidatePattern deletes every entry whose key matches pattern under
// filepath.Match glob rules; a malformed pattern matches nothing.
func (m *MemoryCache) InvalidatePattern(_ context.Context, pattern string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.entries {
		if ok, _ := filepath.Match(pattern, key); ok {
			delete(m.entries, key)
		}
	}
}

func (m *MemoryCache) Flush(_ context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]memoryEntry)
	m.order = nil
}

func (m *MemoryCache) Close() error { return nil }
