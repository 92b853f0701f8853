package phases

import (
	"context"
	"testing"
	"time"

	"deployctl/internal/model"
	"deployctl/internal/ports"
	"deployctl/internal/rollout"
	"deployctl/internal/store"
)

type fakeDeployer struct {
	result rollout.DeployResult
	err    error
}

func (f *fakeDeployer) Deploy(ctx context.Context, req rollout.DeployRequest) (rollout.DeployResult, error) {
	return f.result, f.err
}

func TestDeployPhaseSucceeds(t *testing.T) {
	st := store.NewMemoryStore()
	job := testJob()
	st.PutDeployment(context.Background(), model.DeploymentRecord{
		DeploymentID:    job.DeploymentID,
		CurrentImageTag: "acme-widgets:abcdef01",
	})

	phase := &DeployPhase{
		Deployers: map[model.Strategy]rollout.Deployer{
			model.StrategyRolling: &fakeDeployer{result: rollout.DeployResult{Outcome: rollout.OutcomeSucceeded}},
		},
		Store: st,
		Clock: ports.NewFakeClock(time.Unix(0, 0)),
	}

	result := phase.Run(context.Background(), job, 1)
	if !result.IsOk() {
		t.Fatalf("expected ok, got %v (%s)", result.Outcome, result.Detail)
	}
}

func TestDeployPhaseDistinguishesRollbackFromNoRollback(t *testing.T) {
	st := store.NewMemoryStore()
	job := testJob()
	st.PutDeployment(context.Background(), model.DeploymentRecord{
		DeploymentID:    job.DeploymentID,
		CurrentImageTag: "acme-widgets:abcdef01",
	})

	phase := &DeployPhase{
		Deployers: map[model.Strategy]rollout.Deployer{
			model.StrategyRolling: &fakeDeployer{result: rollout.DeployResult{Outcome: rollout.OutcomeFailedAndRolledBack, Reason: "health check failed"}},
		},
		Store: st,
		Clock: ports.NewFakeClock(time.Unix(0, 0)),
	}

	result := phase.Run(context.Background(), job, 1)
	if !result.IsFailed() {
		t.Fatalf("expected failed, got %v", result.Outcome)
	}
	outcome, ok := result.Payload.(rollout.DeployResult)
	if !ok || outcome.Outcome != rollout.OutcomeFailedAndRolledBack {
		t.Fatalf("expected FailedAndRolledBack in payload, got %+v", result.Payload)
	}
}

func TestDeployPhaseRejectsUnknownStrategy(t *testing.T) {
	st := store.NewMemoryStore()
	job := testJob()
	job.Strategy = "unknown"

	phase := &DeployPhase{
		Deployers: map[model.Strategy]rollout.Deployer{},
		Store:     st,
		Clock:     ports.NewFakeClock(time.Unix(0, 0)),
	}

	result := phase.Run(context.Background(), job, 1)
	if !result.IsFailed() || result.Kind != model.ErrorKindInput {
		t.Fatalf("expected input failure, got %v/%s", result.Outcome, result.Kind)
	}
}
