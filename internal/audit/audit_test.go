package audit

import (
	"context"
	"testing"
	"time"

	"deployctl/internal/model"
	"deployctl/internal/store"
)

func TestPutDeploymentRejectsWritesAfterTerminal(t *testing.T) {
	g, err := New(store.NewMemoryStore(), nil)
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}
	ctx := context.Background()

	rec := model.DeploymentRecord{DeploymentID: "dep-1", Status: model.StatusDeployed, StartedAt: time.Now()}
	if err := g.PutDeployment(ctx, rec); err != nil {
		t.Fatalf("first write: %v", err)
	}

	rec.Status = model.StatusFailed
	if err := g.PutDeployment(ctx, rec); err != ErrTerminalImmutable {
		t.Fatalf("expected ErrTerminalImmutable, got %v", err)
	}
}

func TestWriteEventRedactsSecretLookingText(t *testing.T) {
	g, err := New(store.NewMemoryStore(), nil)
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}
	ctx := context.Background()

	evt := model.DeploymentEvent{
		DeploymentID: "dep-1",
		Seq:          1,
		Type:         model.EventPhaseFailed,
		Timestamp:    time.Now(),
		Payload:      model.PhaseFailedPayload{Phase: model.PhaseBuild, Detail: "api_key=sk-should-not-leak-123"},
	}
	if err := g.WriteEvent(ctx, evt); err != nil {
		t.Fatalf("write event: %v", err)
	}

	events, err := g.ListEvents(ctx, "dep-1", 0)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}

	payload, ok := events[0].Payload.(model.PhaseFailedPayload)
	if !ok {
		t.Fatalf("expected PhaseFailedPayload, got %T", events[0].Payload)
	}
	if payload.Detail != "[REDACTED]" {
		t.Fatalf("expected detail to be redacted, got %q", payload.Detail)
	}
}

func TestNextSeqDelegatesToStore(t *testing.T) {
	g, err := New(store.NewMemoryStore(), nil)
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}
	ctx := context.Background()

	first, err := g.NextSeq(ctx, "dep-1")
	if err != nil || first != 1 {
		t.Fatalf("expected first seq to be 1, got %d err=%v", first, err)
	}
	second, err := g.NextSeq(ctx, "dep-1")
	if err != nil || second != 2 {
		t.Fatalf("expected second seq to be 2, got %d err=%v", second, err)
	}
}
