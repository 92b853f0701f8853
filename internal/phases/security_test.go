package phases

import (
	"context"
	"os"
	"testing"
	"time"

	"deployctl/internal/model"
	"deployctl/internal/ports"
	"deployctl/internal/store"
)

func testJob() model.DeploymentJob {
	return model.DeploymentJob{
		JobID:        "job-1",
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
}

func TestSecurityPhaseApprovesCleanScan(t *testing.T) {
	tmp := t.TempDir()
	st := store.NewMemoryStore()
	phase := &SecurityPhase{
		VCS: &ports.MockVCS{CloneFunc: func(ctx context.Context, repository, ref, targetDir string) (string, string, error) {
			if err := os.WriteFile(targetDir+"/main.go", []byte("package main"), 0o644); err != nil {
				return "", "", err
			}
			return "sha123", targetDir, nil
		}},
		Scanner: &ports.MockImageScanner{ScanFilesystemFunc: func(ctx context.Context, path, policy string, timeout time.Duration) (model.ScanReport, error) {
			return model.ScanReport{}, nil
		}},
		Store:       st,
		Clock:       ports.NewFakeClock(time.Unix(0, 0)),
		Config:      SecurityConfig{Policy: model.PolicyStrict, MaxHigh: 5},
		ScratchRoot: tmp,
	}

	result := phase.Run(context.Background(), testJob(), 1)
	if !result.IsOk() {
		t.Fatalf("expected ok, got %v (%s)", result.Outcome, result.Detail)
	}
	decision, ok := result.Payload.(model.SecurityDecision)
	if !ok || decision.Decision != model.VerdictApprove {
		t.Fatalf("expected approve decision, got %+v", result.Payload)
	}
}

func TestSecurityPhaseRejectsOnCritical(t *testing.T) {
	tmp := t.TempDir()
	st := store.NewMemoryStore()
	phase := &SecurityPhase{
		VCS: &ports.MockVCS{CloneFunc: func(ctx context.Context, repository, ref, targetDir string) (string, string, error) {
			os.WriteFile(targetDir+"/main.go", []byte("package main"), 0o644)
			return "sha123", targetDir, nil
		}},
		Scanner: &ports.MockImageScanner{ScanFilesystemFunc: func(ctx context.Context, path, policy string, timeout time.Duration) (model.ScanReport, error) {
			return model.ScanReport{Critical: 1}, nil
		}},
		Store:       st,
		Clock:       ports.NewFakeClock(time.Unix(0, 0)),
		Config:      SecurityConfig{Policy: model.PolicyStrict, MaxHigh: 5},
		ScratchRoot: tmp,
	}

	result := phase.Run(context.Background(), testJob(), 1)
	if !result.IsFailed() || result.Kind != model.ErrorKindSecurityReject {
		t.Fatalf("expected security_rejected failure, got %v/%s", result.Outcome, result.Kind)
	}
	if result.Retryable {
		t.Error("security rejection must not be retryable")
	}
}

func TestSecurityPhaseFailsOnEmptyRepo(t *testing.T) {
	tmp := t.TempDir()
	st := store.NewMemoryStore()
	phase := &SecurityPhase{
		VCS: &ports.MockVCS{CloneFunc: func(ctx context.Context, repository, ref, targetDir string) (string, string, error) {
			return "sha123", targetDir, nil
		}},
		Scanner:     &ports.MockImageScanner{},
		Store:       st,
		Clock:       ports.NewFakeClock(time.Unix(0, 0)),
		Config:      SecurityConfig{Policy: model.PolicyStrict},
		ScratchRoot: tmp,
	}

	result := phase.Run(context.Background(), testJob(), 1)
	if !result.IsFailed() || result.Kind != model.ErrorKindEmptyRepo {
		t.Fatalf("expected empty_repo failure, got %v/%s", result.Outcome, result.Kind)
	}
}

func TestSecurityPhaseTreatsPartialScanAsRetryable(t *testing.T) {
	tmp := t.TempDir()
	st := store.NewMemoryStore()
	phase := &SecurityPhase{
		VCS: &ports.MockVCS{CloneFunc: func(ctx context.Context, repository, ref, targetDir string) (string, string, error) {
			os.WriteFile(targetDir+"/main.go", []byte("package main"), 0o644)
			return "sha123", targetDir, nil
		}},
		Scanner: &ports.MockImageScanner{ScanFilesystemFunc: func(ctx context.Context, path, policy string, timeout time.Duration) (model.ScanReport, error) {
			return model.ScanReport{Partial: true}, nil
		}},
		Store:       st,
		Clock:       ports.NewFakeClock(time.Unix(0, 0)),
		Config:      SecurityConfig{Policy: model.PolicyStrict},
		ScratchRoot: tmp,
	}

	result := phase.Run(context.Background(), testJob(), 1)
	if !result.IsFailed() || result.Kind != model.ErrorKindScannerError || !result.Retryable {
		t.Fatalf("expected retryable scanner_error, got %v/%s retryable=%v", result.Outcome, result.Kind, result.Retryable)
	}
}
