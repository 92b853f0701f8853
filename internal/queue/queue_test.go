package queue

import (
	"context"
	"testing"
	"time"

	"deployctl/internal/model"
)

func testQueue() *Queue {
	return New(NewMemoryBackend(), Config{VisibilityTimeout: time.Minute, MaxRetries: 3, PriorityBands: 4})
}

func TestLeaseReturnsHighestPriorityFirst(t *testing.T) {
	q := testQueue()
	ctx := context.Background()
	now := time.Now()

	low := model.DeploymentJob{Environment: model.EnvironmentStaging, Priority: 0}
	high := model.DeploymentJob{Environment: model.EnvironmentStaging, Priority: 3}

	if err := q.Submit(ctx, "env-low", low, now); err != nil {
		t.Fatalf("submit low: %v", err)
	}
	if err := q.Submit(ctx, "env-high", high, now.Add(time.Millisecond)); err != nil {
		t.Fatalf("submit high: %v", err)
	}

	entry, ok, err := q.Lease(ctx, string(model.EnvironmentStaging), "worker-1")
	if err != nil || !ok {
		t.Fatalf("lease: ok=%v err=%v", ok, err)
	}
	if entry.EnvelopeID != "env-high" {
		t.Fatalf("expected higher priority band to be leased first, got %s", entry.EnvelopeID)
	}
}

func TestLeaseIsFIFOWithinBand(t *testing.T) {
	q := testQueue()
	ctx := context.Background()
	now := time.Now()

	job := model.DeploymentJob{Environment: model.EnvironmentProduction, Priority: 1}
	q.Submit(ctx, "first", job, now)
	q.Submit(ctx, "second", job, now.Add(time.Second))

	entry, ok, err := q.Lease(ctx, string(model.EnvironmentProduction), "worker-1")
	if err != nil || !ok || entry.EnvelopeID != "first" {
		t.Fatalf("expected FIFO order to surface 'first', got %+v ok=%v err=%v", entry, ok, err)
	}
}

func TestFailRequeuesUnderMaxRetriesWithBackoff(t *testing.T) {
	q := testQueue()
	ctx := context.Background()
	now := time.Now()

	job := model.DeploymentJob{Environment: model.EnvironmentPreview, Priority: 0, RetryCount: 0}
	q.Submit(ctx, "env-1", job, now)

	entry, ok, _ := q.Lease(ctx, string(model.EnvironmentPreview), "worker-1")
	if !ok {
		t.Fatal("expected lease to succeed")
	}

	retried, err := q.Fail(ctx, string(model.EnvironmentPreview), entry, now)
	if err != nil || !retried {
		t.Fatalf("expected retry, got retried=%v err=%v", retried, err)
	}

	// not visible immediately — backoff hasn't elapsed
	_, ok, _ = q.Lease(ctx, string(model.EnvironmentPreview), "worker-1")
	if ok {
		t.Fatal("expected retried entry to be invisible before backoff elapses")
	}
}

func TestFailDropsAfterMaxRetries(t *testing.T) {
	q := testQueue()
	ctx := context.Background()
	now := time.Now()

	job := model.DeploymentJob{Environment: model.EnvironmentPreview, Priority: 0, RetryCount: 3}
	entry := model.QueueEntry{EnvelopeID: "env-1", Job: job, EnqueuedAt: now}
	q.backend.Enqueue(ctx, string(model.EnvironmentPreview), entry)

	leased, ok, _ := q.Lease(ctx, string(model.EnvironmentPreview), "worker-1")
	if !ok {
		t.Fatal("expected lease to succeed")
	}

	retried, err := q.Fail(ctx, string(model.EnvironmentPreview), leased, now)
	if err != nil {
		t.Fatalf("fail: %v", err)
	}
	if retried {
		t.Fatal("expected no retry once MaxRetries is reached")
	}
}

func TestSweepRecoversAbandonedEntries(t *testing.T) {
	backend := NewMemoryBackend()
	fixed := time.Now()
	backend.now = func() time.Time { return fixed }
	q := New(backend, Config{VisibilityTimeout: time.Second, MaxRetries: 3, PriorityBands: 4})
	ctx := context.Background()

	job := model.DeploymentJob{Environment: model.EnvironmentStaging}
	q.Submit(ctx, "env-1", job, fixed)
	if _, ok, _ := q.Lease(ctx, string(model.EnvironmentStaging), "dead-worker"); !ok {
		t.Fatal("expected lease to succeed")
	}

	backend.now = func() time.Time { return fixed.Add(2 * time.Second) }
	recovered, err := q.Sweep(ctx, string(model.EnvironmentStaging))
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if recovered != 1 {
		t.Fatalf("expected 1 recovered entry, got %d", recovered)
	}

	entry, ok, err := q.Lease(ctx, string(model.EnvironmentStaging), "worker-2")
	if err != nil || !ok || entry.EnvelopeID != "env-1" {
		t.Fatalf("expected recovered entry to be re-leasable, got %+v ok=%v err=%v", entry, ok, err)
	}
}
