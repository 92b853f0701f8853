package lock

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	owner   string
	expires time.Time
}

// MemoryBackend is an in-process Backend for unit tests and single-instance
// deployments that don't carry an etcd dependency.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryBackend constructs an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]memoryEntry), now: time.Now}
}

func (m *MemoryBackend) Acquire(ctx context.Context, resource, owner string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if e, ok := m.entries[resource]; ok && e.expires.After(now) {
		return false, nil
	}
	m.entries[resource] = memoryEntry{owner: owner, expires: now.Add(ttl)}
	return true, nil
}

func (m *MemoryBackend) Renew(ctx context.Context, resource, owner string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	e, ok := m.entries[resource]
	if !ok || e.owner != owner || !e.expires.After(now) {
		return false, nil
	}
	e.expires = now.Add(ttl)
	m.entries[resource] = e
	return true, nil
}

func (m *MemoryBackend) Release(ctx context.Context, resource, owner string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[resource]
	if !ok || e.owner != owner {
		return false, nil
	}
	delete(m.entries, resource)
	return true, nil
}
