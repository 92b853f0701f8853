package worker

import (
	"context"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"

	"deployctl/internal/coordinator"
	"deployctl/internal/lock"
	"deployctl/internal/model"
	"deployctl/internal/phases"
	"deployctl/internal/ports"
	"deployctl/internal/queue"
	"deployctl/internal/rollout"
	"deployctl/internal/store"
)

type fakeDeployer struct {
	result rollout.DeployResult
}

func (f *fakeDeployer) Deploy(ctx context.Context, req rollout.DeployRequest) (rollout.DeployResult, error) {
	return f.result, nil
}

func buildWorker(t *testing.T) (*Worker, *queue.Queue, *store.MemoryStore) {
	t.Helper()
	tmp := t.TempDir()
	st := store.NewMemoryStore()
	clock := ports.NewFakeClock(time.Unix(0, 0))

	q := queue.New(queue.NewMemoryBackend(), queue.Config{VisibilityTimeout: time.Minute, MaxRetries: 3, PriorityBands: 4})
	lockBackend := lock.NewMemoryBackend()

	security := &phases.SecurityPhase{
		VCS: &ports.MockVCS{CloneFunc: func(ctx context.Context, repository, ref, targetDir string) (string, string, error) {
			os.WriteFile(targetDir+"/main.go", []byte("package main"), 0o644)
			return "sha", targetDir, nil
		}},
		Scanner: &ports.MockImageScanner{},
		Store:   st, Clock: clock,
		Config:      phases.SecurityConfig{Policy: model.PolicyStrict},
		ScratchRoot: tmp,
	}
	build := &phases.BuildPhase{
		VCS: &ports.MockVCS{CloneFunc: func(ctx context.Context, repository, ref, targetDir string) (string, string, error) {
			return "sha", targetDir, nil
		}},
		Builder: &ports.MockContainerBuilder{
			DetectFunc: func(ctx context.Context, worktree string) (model.DetectionResult, error) {
				return model.DetectionResult{Language: "go"}, nil
			},
			GenerateDockerfileFunc: func(ctx context.Context, d model.DetectionResult) (string, error) {
				return "FROM golang:1.22", nil
			},
			BuildFunc: func(ctx context.Context, contextDir, imageTag, dockerfile string, sink ports.ProgressSink) (model.BuildArtifact, error) {
				return model.BuildArtifact{ImageTag: imageTag}, nil
			},
		},
		Store: st, Clock: clock, ScratchRoot: tmp,
	}
	deploy := &phases.DeployPhase{
		Deployers: map[model.Strategy]rollout.Deployer{
			model.StrategyRolling: &fakeDeployer{result: rollout.DeployResult{Outcome: rollout.OutcomeSucceeded}},
		},
		Store: st, Clock: clock,
	}

	coord := &coordinator.Coordinator{Security: security, Build: build, Deploy: deploy, Store: st, Clock: clock}

	w := &Worker{
		Queue:       q,
		LockBackend: lockBackend,
		Coordinator: coord,
		Store:       st,
		Clock:       clock,
		Config:      Config{Environment: "staging", LockTTL: 10 * time.Minute},
	}
	return w, q, st
}

func TestWorkerTickProcessesOneJobToDeployed(t *testing.T) {
	w, q, st := buildWorker(t)

	job := model.DeploymentJob{
		DeploymentID: "dep-1",
		Repository:   "acme/widgets",
		Ref:          "main",
		CommitSHA:    "abcdef0123456789",
		InstanceID:   "i-0123abcd",
		Environment:  model.EnvironmentStaging,
		Strategy:     model.StrategyRolling,
		Port:         8080,
		HealthPath:   "/healthz",
	}
	if _, err := Submit(context.Background(), q, job, time.Unix(0, 0)); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	processed, err := w.tick(context.Background(), zap.NewNop())
	if err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	if !processed {
		t.Fatal("expected tick to process the submitted job")
	}

	rec, err := st.GetDeployment(context.Background(), "dep-1")
	if err != nil {
		t.Fatalf("unexpected error fetching deployment: %v", err)
	}
	if rec.Status != model.StatusDeployed {
		t.Fatalf("expected deployed, got %s (failure=%s)", rec.Status, rec.FailureReason)
	}
}

func TestWorkerTickReturnsFalseOnEmptyQueue(t *testing.T) {
	w, _, _ := buildWorker(t)
	processed, err := w.tick(context.Background(), zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if processed {
		t.Fatal("expected no job to be processed from an empty queue")
	}
}

func TestWorkerRequeuesWhenInstanceLocked(t *testing.T) {
	w, q, _ := buildWorker(t)

	// Hold the instance's lock under a different owner so tick can't acquire.
	if ok, err := w.LockBackend.Acquire(context.Background(), lock.ResourceKey("i-0123abcd"), "someone-else", time.Minute); err != nil || !ok {
		t.Fatalf("setup: failed to pre-acquire lock: ok=%v err=%v", ok, err)
	}

	job := model.DeploymentJob{
		DeploymentID: "dep-2",
		Repository:   "acme/widgets",
		Ref:          "main",
		CommitSHA:    "abcdef0123456789",
		InstanceID:   "i-0123abcd",
		Environment:  model.EnvironmentStaging,
		Strategy:     model.StrategyRolling,
		Port:         8080,
		HealthPath:   "/healthz",
	}
	if _, err := Submit(context.Background(), q, job, time.Unix(0, 0)); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	processed, err := w.tick(context.Background(), zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !processed {
		t.Fatal("expected tick to process (and requeue) the job")
	}
}
