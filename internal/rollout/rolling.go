package rollout

import (
	"context"
	"fmt"
	"time"

	"deployctl/internal/ids"
	"deployctl/internal/remoteexec"
)

// RollingState names RollingDeployer's state machine (§4.7.2).
type RollingState string

const (
	RollingPreparing     RollingState = "Preparing"
	RollingStartingNew   RollingState = "StartingNew"
	RollingHealthChecking RollingState = "HealthChecking"
	RollingPromoting     RollingState = "Promoting"
	RollingDraining      RollingState = "Draining"
	RollingSucceeded     RollingState = "Succeeded"
	RollingRollingBack   RollingState = "RollingBack"
	RollingReverted      RollingState = "Reverted"
)

// RollingDeployer implements Deployer with the prepare/side-start/health/
// promote/drain state machine of §4.7.2.
type RollingDeployer struct {
	deps   Deps
	window HealthWindowConfig
	stop   time.Duration
}

func NewRollingDeployer(deps Deps, window HealthWindowConfig, stopTimeout time.Duration) *RollingDeployer {
	return &RollingDeployer{deps: deps, window: window, stop: stopTimeout}
}

func (r *RollingDeployer) Deploy(ctx context.Context, req DeployRequest) (DeployResult, error) {
	start := r.deps.Clock.Now()
	scripts := remoteexec.ScriptSet{ContainerName: "app", Port: req.Port}
	sidePort := req.Port + 1

	publishStatus(ctx, r.deps, req.DeploymentID, string(RollingPreparing), string(RollingPreparing), "")

	prepID := ids.CommandID(req.DeploymentID, "deploy", req.Attempt) + "-prep"
	if _, err := r.deps.Executor.Run(ctx, req.InstanceID, prepID, scripts.Prep(req.ImageTag), 5*time.Minute); err != nil {
		return DeployResult{Outcome: OutcomeFailedNoRollback, Reason: err.Error(), PreviousImageTag: req.PreviousImageTag}, nil
	}

	publishStatus(ctx, r.deps, req.DeploymentID, string(RollingPreparing), string(RollingStartingNew), "")
	startID := ids.CommandID(req.DeploymentID, "deploy", req.Attempt) + "-start"
	if _, err := r.deps.Executor.Run(ctx, req.InstanceID, startID, scripts.StartSide(req.ImageTag, sidePort, req.EnvVars), 2*time.Minute); err != nil {
		return r.rollback(ctx, req, scripts, fmt.Sprintf("starting candidate: %v", err))
	}

	publishStatus(ctx, r.deps, req.DeploymentID, string(RollingStartingNew), string(RollingHealthChecking), "")
	sideURL := fmt.Sprintf("http://%s:%d%s", req.InstanceID, sidePort, req.HealthPath)
	if ok, _ := runHealthWindow(ctx, r.deps, r.window, req.DeploymentID, sideURL, req.Attempt, "candidate"); !ok {
		return r.rollback(ctx, req, scripts, "candidate health window failed")
	}
	if !preSwitchCheck(ctx, r.deps.Prober, sideURL) {
		return r.rollback(ctx, req, scripts, "pre-switch check failed")
	}

	publishStatus(ctx, r.deps, req.DeploymentID, string(RollingHealthChecking), string(RollingPromoting), "")
	promoteID := ids.CommandID(req.DeploymentID, "deploy", req.Attempt) + "-promote"
	if _, err := r.deps.Executor.Run(ctx, req.InstanceID, promoteID, scripts.Promote(), r.stop+30*time.Second); err != nil {
		return r.rollback(ctx, req, scripts, fmt.Sprintf("promoting candidate: %v", err))
	}

	publishStatus(ctx, r.deps, req.DeploymentID, string(RollingPromoting), string(RollingDraining), "")
	prodURL := fmt.Sprintf("http://%s:%d%s", req.InstanceID, req.Port, req.HealthPath)
	if ok, _ := runHealthWindow(ctx, r.deps, r.window, req.DeploymentID, prodURL, req.Attempt, "production"); !ok {
		return r.rollback(ctx, req, scripts, "post-promote health window failed")
	}

	publishStatus(ctx, r.deps, req.DeploymentID, string(RollingDraining), string(RollingSucceeded), "")
	return DeployResult{Outcome: OutcomeSucceeded, Elapsed: r.deps.Clock.Now().Sub(start), PreviousImageTag: req.PreviousImageTag}, nil
}

func (r *RollingDeployer) rollback(ctx context.Context, req DeployRequest, scripts remoteexec.ScriptSet, reason string) (DeployResult, error) {
	publishStatus(ctx, r.deps, req.DeploymentID, "", string(RollingRollingBack), reason)
	r.deps.Events.Publish(ctx, rollbackStartedEvent(req.DeploymentID, r.deps.Clock.Now(), reason, req.PreviousImageTag))

	if req.PreviousImageTag == "" {
		return DeployResult{Outcome: OutcomeFailedNoRollback, Reason: reason, PreviousImageTag: req.PreviousImageTag}, nil
	}

	rollbackID := ids.CommandID(req.DeploymentID, "deploy", req.Attempt) + "-rollback"
	if _, err := r.deps.Executor.Run(ctx, req.InstanceID, rollbackID, scripts.Rollback(req.PreviousImageTag), r.stop+30*time.Second); err != nil {
		return DeployResult{Outcome: OutcomeFailedNoRollback, Reason: fmt.Sprintf("%s; rollback also failed: %v", reason, err), PreviousImageTag: req.PreviousImageTag}, nil
	}

	publishStatus(ctx, r.deps, req.DeploymentID, string(RollingRollingBack), string(RollingReverted), reason)
	return DeployResult{Outcome: OutcomeFailedAndRolledBack, Reason: reason, PreviousImageTag: req.PreviousImageTag}, nil
}
