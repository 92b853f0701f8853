package queue

import (
	"context"
	"sync"
	"time"

	"deployctl/internal/model"
)

// MemoryBackend is an in-process Backend for unit tests and single-process
// deployments.
type MemoryBackend struct {
	mu         sync.Mutex
	ready      map[string][]model.QueueEntry // environment -> FIFO
	processing map[string]map[string]model.QueueEntry
	now        func() time.Time
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		ready:      make(map[string][]model.QueueEntry),
		processing: make(map[string]map[string]model.QueueEntry),
		now:        time.Now,
	}
}

func (m *MemoryBackend) Enqueue(ctx context.Context, environment string, entry model.QueueEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ready[environment] = append(m.ready[environment], entry)
	return nil
}

// Dequeue picks the entry with the highest PriorityBand number, breaking
// ties by EnqueuedAt (FIFO), among entries already visible (EnqueuedAt <=
// now — delayed retries aren't eligible yet).
func (m *MemoryBackend) Dequeue(ctx context.Context, environment, owner string, visibilityTimeout time.Duration) (model.QueueEntry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	queue := m.ready[environment]
	bestIdx := -1
	var best model.QueueEntry
	for i, e := range queue {
		if e.EnqueuedAt.After(now) {
			continue
		}
		if bestIdx == -1 || e.PriorityBand > best.PriorityBand ||
			(e.PriorityBand == best.PriorityBand && e.EnqueuedAt.Before(best.EnqueuedAt)) {
			bestIdx = i
			best = e
		}
	}
	if bestIdx == -1 {
		return model.QueueEntry{}, false, nil
	}

	m.ready[environment] = append(queue[:bestIdx:bestIdx], queue[bestIdx+1:]...)

	best.ProcessingOwner = owner
	best.VisibleAfter = now.Add(visibilityTimeout)
	if m.processing[environment] == nil {
		m.processing[environment] = make(map[string]model.QueueEntry)
	}
	m.processing[environment][best.EnvelopeID] = best
	return best, true, nil
}

func (m *MemoryBackend) Ack(ctx context.Context, environment, envelopeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.processing[environment], envelopeID)
	return nil
}

func (m *MemoryBackend) Sweep(ctx context.Context, environment string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	recovered := 0
	for id, entry := range m.processing[environment] {
		if entry.VisibleAfter.After(now) {
			continue
		}
		delete(m.processing[environment], id)
		entry.ProcessingOwner = ""
		m.ready[environment] = append(m.ready[environment], entry)
		recovered++
	}
	return recovered, nil
}
