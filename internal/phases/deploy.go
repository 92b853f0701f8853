package phases

import (
	"context"
	"fmt"

	"deployctl/internal/model"
	"deployctl/internal/ports"
	"deployctl/internal/rollout"
)

// DeployPhase dispatches to the Deployer matching the job's strategy,
// supplying the artifact under deploy plus the instance's previously
// deployed image tag so the Deployer can roll back to it on failure.
type DeployPhase struct {
	Deployers map[model.Strategy]rollout.Deployer
	Store     ports.Store
	Clock     ports.Clock
	Events    ports.EventSink
}

func (p *DeployPhase) Phase() model.Phase { return model.PhaseDeploy }

func (p *DeployPhase) Run(ctx context.Context, job model.DeploymentJob, attempt int) model.PhaseResult {
	publishPhaseStarted(ctx, p.Events, p.Clock, job.DeploymentID, model.PhaseDeploy, attempt)
	result := recordLifecycle(ctx, p.Store, p.Clock, job.DeploymentID, model.PhaseDeploy, attempt, func() model.PhaseResult {
		return p.run(ctx, job, attempt)
	})
	publishPhaseEvent(ctx, p.Events, p.Clock, job.DeploymentID, model.PhaseDeploy, attempt, result)
	return result
}

func (p *DeployPhase) run(ctx context.Context, job model.DeploymentJob, attempt int) model.PhaseResult {
	deployer, ok := p.Deployers[job.Strategy]
	if !ok {
		return model.Failed(model.ErrorKindInput, fmt.Sprintf("no deployer registered for strategy %q", job.Strategy), false)
	}

	rec, err := p.Store.GetDeployment(ctx, job.DeploymentID)
	if err != nil {
		return model.Failed(model.ErrorKindInfrastructure, fmt.Sprintf("loading deployment record: %v", err), true)
	}
	imageTag := rec.CurrentImageTag
	if imageTag == "" {
		return model.Failed(model.ErrorKindInput, "deployment record has no build artifact image tag", false)
	}

	result, err := deployer.Deploy(ctx, rollout.DeployRequest{
		DeploymentID:     job.DeploymentID,
		InstanceID:       job.InstanceID,
		ImageTag:         imageTag,
		PreviousImageTag: rec.PreviousImageTag,
		Port:             job.Port,
		HealthPath:       job.HealthPath,
		EnvVars:          job.EnvVars,
		Attempt:          attempt,
	})
	if err != nil {
		return model.Failed(model.ErrorKindInfrastructure, fmt.Sprintf("deployer error: %v", err), true)
	}

	if result.Outcome == rollout.OutcomeSucceeded {
		return model.Ok(result)
	}

	// Both failure shapes return a Failed PhaseResult, but the Coordinator
	// needs to tell them apart to pick RolledBack vs Failed (§4.8): it does so
	// by type-asserting Payload back to a rollout.DeployResult rather than by
	// adding a second ErrorKind for the same underlying health-check failure.
	return model.PhaseResult{
		Outcome:   model.OutcomeFailed,
		Payload:   result,
		Kind:      model.ErrorKindHealthFailed,
		Detail:    result.Reason,
		Retryable: false,
	}
}
