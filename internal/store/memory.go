package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"deployctl/internal/model"
)

// MemoryStore is an in-process ports.Store for unit tests that don't need a
// real database round-trip.
type MemoryStore struct {
	mu        sync.Mutex
	deploys   map[string]model.DeploymentRecord
	phases    map[string]model.PhaseRecord
	security  map[string]model.SecurityDecision
	artifacts map[string]model.BuildArtifact
	health    map[string][]model.HealthSample
	events    map[string][]model.DeploymentEvent
	seqs      map[string]uint64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		deploys:   make(map[string]model.DeploymentRecord),
		phases:    make(map[string]model.PhaseRecord),
		security:  make(map[string]model.SecurityDecision),
		artifacts: make(map[string]model.BuildArtifact),
		health:    make(map[string][]model.HealthSample),
		events:    make(map[string][]model.DeploymentEvent),
		seqs:      make(map[string]uint64),
	}
}

func (m *MemoryStore) PutDeployment(ctx context.Context, rec model.DeploymentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deploys[rec.DeploymentID] = rec
	return nil
}

func (m *MemoryStore) GetDeployment(ctx context.Context, deploymentID string) (model.DeploymentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.deploys[deploymentID]
	if !ok {
		return model.DeploymentRecord{}, ErrNotFound
	}
	return rec, nil
}

func (m *MemoryStore) LatestDeployedForInstance(ctx context.Context, instanceID string) (model.DeploymentRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var best model.DeploymentRecord
	found := false
	for _, rec := range m.deploys {
		if rec.InstanceID != instanceID || rec.Status != model.StatusDeployed {
			continue
		}
		if !found || rec.StartedAt.After(best.StartedAt) {
			best = rec
			found = true
		}
	}
	return best, found, nil
}

func phaseKey(deploymentID string, phase model.Phase, attempt int) string {
	return fmt.Sprintf("%s/%s/%d", deploymentID, phase, attempt)
}

func (m *MemoryStore) PutPhaseRecord(ctx context.Context, rec model.PhaseRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phases[phaseKey(rec.DeploymentID, rec.Phase, rec.Attempt)] = rec
	return nil
}

func (m *MemoryStore) GetPhaseRecord(ctx context.Context, deploymentID string, phase model.Phase, attempt int) (model.PhaseRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.phases[phaseKey(deploymentID, phase, attempt)]
	return rec, ok, nil
}

func (m *MemoryStore) PutSecurityDecision(ctx context.Context, deploymentID string, d model.SecurityDecision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.security[deploymentID] = d
	return nil
}

func (m *MemoryStore) PutBuildArtifact(ctx context.Context, deploymentID string, a model.BuildArtifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.artifacts[deploymentID] = a
	return nil
}

func (m *MemoryStore) PutHealthSample(ctx context.Context, deploymentID string, s model.HealthSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.health[deploymentID] = append(m.health[deploymentID], s)
	return nil
}

func (m *MemoryStore) AppendEvent(ctx context.Context, event model.DeploymentEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.events[event.DeploymentID] {
		if e.Seq == event.Seq {
			return nil
		}
	}
	m.events[event.DeploymentID] = append(m.events[event.DeploymentID], event)
	return nil
}

func (m *MemoryStore) ListEvents(ctx context.Context, deploymentID string, afterSeq uint64) ([]model.DeploymentEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.DeploymentEvent
	for _, e := range m.events[deploymentID] {
		if e.Seq > afterSeq {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (m *MemoryStore) NextSeq(ctx context.Context, deploymentID string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seqs[deploymentID]++
	return m.seqs[deploymentID], nil
}
