package cache

import (
	"context"
	"sync"
	"time"
)

type memEntry struct {
	value     []byte
	storedAt  time.Time
	expiresAt time.Time
}

// Memory is an in-process Cache bounded by entry count. When full, the
// entry stored longest ago is evicted.
type Memory struct {
	maxEntries int
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]memEntry
}

// NewMemory returns a Memory cache holding at most maxEntries (0 = unbounded).
func NewMemory(maxEntries int) *Memory {
	return &Memory{
		maxEntries: maxEntries,
		now:        time.Now,
		entries:    make(map[string]memEntry),
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !m.now().Before(e.expiresAt) {
		delete(m.entries, key)
		return nil, false, nil
	}
	return e.value, true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if _, exists := m.entries[key]; !exists && m.maxEntries > 0 && len(m.entries) >= m.maxEntries {
		m.evictOldest()
	}
	m.entries[key] = memEntry{value: value, storedAt: now, expiresAt: now.Add(ttl)}
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Len(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	n := 0
	for _, e := range m.entries {
		if now.Before(e.expiresAt) {
			n++
		}
	}
	return n, nil
}

func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	m.entries = make(map[string]memEntry)
	m.mu.Unlock()
	return nil
}

// evictOldest drops the entry with the earliest store time. Callers hold mu.
func (m *Memory) evictOldest() {
	var oldestKey string
	var oldest time.Time
	first := true
	for k, e := range m.entries {
		if first || e.storedAt.Before(oldest) {
			oldestKey, oldest, first = k, e.storedAt, false
		}
	}
	if !first {
		delete(m.entries, oldestKey)
	}
}
