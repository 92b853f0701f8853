package phases

import (
	"context"
	"errors"
	"testing"
	"time"

	"deployctl/internal/model"
	"deployctl/internal/ports"
	"deployctl/internal/store"
)

func TestBuildPhaseProducesValidatedImageTag(t *testing.T) {
	tmp := t.TempDir()
	st := store.NewMemoryStore()
	var builtTag string

	phase := &BuildPhase{
		VCS: &ports.MockVCS{CloneFunc: func(ctx context.Context, repository, ref, targetDir string) (string, string, error) {
			return "sha", targetDir, nil
		}},
		Builder: &ports.MockContainerBuilder{
			DetectFunc: func(ctx context.Context, worktree string) (model.DetectionResult, error) {
				return model.DetectionResult{Language: "go", Entrypoint: "./app"}, nil
			},
			GenerateDockerfileFunc: func(ctx context.Context, d model.DetectionResult) (string, error) {
				return "FROM golang:1.22", nil
			},
			BuildFunc: func(ctx context.Context, contextDir, imageTag, dockerfile string, sink ports.ProgressSink) (model.BuildArtifact, error) {
				builtTag = imageTag
				sink.Progress("step 1/3 : FROM golang:1.22")
				return model.BuildArtifact{ImageTag: imageTag, SizeBytes: 1024}, nil
			},
		},
		Store:       st,
		Clock:       ports.NewFakeClock(time.Unix(0, 0)),
		Config:      BuildConfig{LogLineRateLimit: 200},
		ScratchRoot: tmp,
	}

	job := testJob()
	result := phase.Run(context.Background(), job, 1)
	if !result.IsOk() {
		t.Fatalf("expected ok, got %v (%s)", result.Outcome, result.Detail)
	}
	wantPrefix := "acme-widgets:abcdef01"
	if builtTag != wantPrefix {
		t.Errorf("expected image tag %q, got %q", wantPrefix, builtTag)
	}

	artifact, ok := result.Payload.(model.BuildArtifact)
	if !ok {
		t.Fatalf("expected BuildArtifact payload, got %T", result.Payload)
	}
	if artifact.DockerfileProvenance != model.ProvenanceGenerated {
		t.Errorf("expected generated provenance, got %v", artifact.DockerfileProvenance)
	}
}

func TestBuildPhaseRetriesTransientPullFailure(t *testing.T) {
	tmp := t.TempDir()
	st := store.NewMemoryStore()
	attempts := 0

	phase := &BuildPhase{
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
				attempts++
				if attempts < 2 {
					return model.BuildArtifact{}, errors.New("failed to pull base image: connection reset by peer")
				}
				return model.BuildArtifact{ImageTag: imageTag}, nil
			},
		},
		Store:       st,
		Clock:       ports.NewFakeClock(time.Unix(0, 0)),
		Config:      BuildConfig{BaseImageRetries: 2, BaseImageBackoff: time.Millisecond},
		ScratchRoot: tmp,
	}

	result := phase.Run(context.Background(), testJob(), 1)
	if !result.IsOk() {
		t.Fatalf("expected ok after retry, got %v (%s)", result.Outcome, result.Detail)
	}
	if attempts != 2 {
		t.Errorf("expected exactly 2 build attempts, got %d", attempts)
	}
}

func TestBuildPhaseDoesNotRetryNonTransientFailure(t *testing.T) {
	tmp := t.TempDir()
	st := store.NewMemoryStore()
	attempts := 0

	phase := &BuildPhase{
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
				attempts++
				return model.BuildArtifact{}, errors.New("syntax error in Dockerfile")
			},
		},
		Store:       st,
		Clock:       ports.NewFakeClock(time.Unix(0, 0)),
		Config:      BuildConfig{BaseImageRetries: 2, BaseImageBackoff: time.Millisecond},
		ScratchRoot: tmp,
	}

	result := phase.Run(context.Background(), testJob(), 1)
	if !result.IsFailed() {
		t.Fatalf("expected failed, got %v", result.Outcome)
	}
	if attempts != 1 {
		t.Errorf("expected exactly 1 attempt for a non-transient failure, got %d", attempts)
	}
}
