package store

import (
	"context"
	"testing"
	"time"

	"deployctl/internal/model"
)

func TestMemoryStoreDeploymentRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	rec := model.DeploymentRecord{
		DeploymentID: "dep-1",
		JobID:        "job-1",
		InstanceID:   "i-1",
		Status:       model.StatusDeployed,
		StartedAt:    time.Now(),
	}
	if err := s.PutDeployment(ctx, rec); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := s.GetDeployment(ctx, "dep-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != model.StatusDeployed {
		t.Fatalf("unexpected status: %v", got.Status)
	}

	latest, ok, err := s.LatestDeployedForInstance(ctx, "i-1")
	if err != nil || !ok {
		t.Fatalf("expected latest deployed to be found, ok=%v err=%v", ok, err)
	}
	if latest.DeploymentID != "dep-1" {
		t.Fatalf("unexpected latest deployment: %+v", latest)
	}
}

func TestMemoryStoreGetDeploymentNotFound(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.GetDeployment(context.Background(), "missing")
	if err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreNextSeqIsStrictlyIncreasing(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	var last uint64
	for i := 0; i < 5; i++ {
		next, err := s.NextSeq(ctx, "dep-x")
		if err != nil {
			t.Fatalf("next seq: %v", err)
		}
		if next != last+1 {
			t.Fatalf("expected strictly increasing seq, got %d after %d", next, last)
		}
		last = next
	}
}

func TestMemoryStoreAppendEventIsIdempotentBySeq(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	evt := model.DeploymentEvent{DeploymentID: "dep-1", Seq: 1, Type: model.EventStatusChanged}

	if err := s.AppendEvent(ctx, evt); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.AppendEvent(ctx, evt); err != nil {
		t.Fatalf("append duplicate: %v", err)
	}

	events, err := s.ListEvents(ctx, "dep-1", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected idempotent append to dedupe by seq, got %d events", len(events))
	}
}

func TestMemoryStorePhaseRecordRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	rec := model.PhaseRecord{DeploymentID: "dep-1", Phase: model.PhaseBuild, Attempt: 1, Status: model.PhaseStatusSucceeded, StartedAt: time.Now()}
	if err := s.PutPhaseRecord(ctx, rec); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, ok, err := s.GetPhaseRecord(ctx, "dep-1", model.PhaseBuild, 1)
	if err != nil || !ok {
		t.Fatalf("expected phase record found, ok=%v err=%v", ok, err)
	}
	if got.Status != model.PhaseStatusSucceeded {
		t.Fatalf("unexpected status: %v", got.Status)
	}

	_, ok, err = s.GetPhaseRecord(ctx, "dep-1", model.PhaseBuild, 2)
	if err != nil || ok {
		t.Fatalf("expected attempt 2 to be absent, ok=%v err=%v", ok, err)
	}
}
