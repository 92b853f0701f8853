package rollout

import (
	"context"
	"fmt"
	"time"

	"deployctl/internal/ids"
	"deployctl/internal/remoteexec"
)

// CanaryStage is one weighted-traffic step of §4.7.3's default progression:
// (10%, 5min) -> (50%, 5min) -> (100%, 0).
type CanaryStage struct {
	Weight   int // side's weight; 5, 10, 25, 50, 75 or 100
	Duration time.Duration
}

// DefaultCanaryStages is the spec's default progression.
func DefaultCanaryStages() []CanaryStage {
	return []CanaryStage{
		{Weight: 10, Duration: 5 * time.Minute},
		{Weight: 50, Duration: 5 * time.Minute},
		{Weight: 100, Duration: 0},
	}
}

// DefaultErrorRateThreshold is the default fraction of failed probes across both
// addresses that triggers a canary rollback (§4.7.3).
const DefaultErrorRateThreshold = 0.05

// CanaryDeployer adds a weighted-traffic stage sequence between
// StartingNew and Promoting.
type CanaryDeployer struct {
	deps      Deps
	window    HealthWindowConfig
	stop      time.Duration
	stages    []CanaryStage
	threshold float64
}

func NewCanaryDeployer(deps Deps, window HealthWindowConfig, stopTimeout time.Duration, stages []CanaryStage, errorRateThreshold float64) *CanaryDeployer {
	if stages == nil {
		stages = DefaultCanaryStages()
	}
	if errorRateThreshold <= 0 {
		errorRateThreshold = DefaultErrorRateThreshold
	}
	return &CanaryDeployer{deps: deps, window: window, stop: stopTimeout, stages: stages, threshold: errorRateThreshold}
}

func (c *CanaryDeployer) Deploy(ctx context.Context, req DeployRequest) (DeployResult, error) {
	start := c.deps.Clock.Now()
	scripts := remoteexec.ScriptSet{ContainerName: "app", Port: req.Port}
	sidePort := req.Port + 1

	publishStatus(ctx, c.deps, req.DeploymentID, "Preparing", "Preparing", "")
	prepID := ids.CommandID(req.DeploymentID, "deploy", req.Attempt) + "-prep"
	if _, err := c.deps.Executor.Run(ctx, req.InstanceID, prepID, scripts.Prep(req.ImageTag), 5*time.Minute); err != nil {
		return DeployResult{Outcome: OutcomeFailedNoRollback, Reason: err.Error(), PreviousImageTag: req.PreviousImageTag}, nil
	}

	publishStatus(ctx, c.deps, req.DeploymentID, "Preparing", "StartingNew", "")
	startID := ids.CommandID(req.DeploymentID, "deploy", req.Attempt) + "-start"
	if _, err := c.deps.Executor.Run(ctx, req.InstanceID, startID, scripts.StartSide(req.ImageTag, sidePort, req.EnvVars), 2*time.Minute); err != nil {
		return c.rollback(ctx, req, scripts, 0, fmt.Sprintf("starting canary: %v", err))
	}

	publishStatus(ctx, c.deps, req.DeploymentID, "StartingNew", "HealthChecking", "")
	sideURL := fmt.Sprintf("http://%s:%d%s", req.InstanceID, sidePort, req.HealthPath)
	if ok, _ := runHealthWindow(ctx, c.deps, c.window, req.DeploymentID, sideURL, req.Attempt, "canary"); !ok {
		return c.rollback(ctx, req, scripts, 0, "canary health window failed")
	}

	prodURL := fmt.Sprintf("http://%s:%d%s", req.InstanceID, req.Port, req.HealthPath)
	stagesCompleted := 0
	for i, stage := range c.stages {
		publishStatus(ctx, c.deps, req.DeploymentID, "HealthChecking", fmt.Sprintf("CanaryStage%d", i+1), "")

		applyID := ids.CommandID(req.DeploymentID, "deploy", req.Attempt) + fmt.Sprintf("-upstream-%d", i)
		if _, err := c.deps.Executor.Run(ctx, req.InstanceID, applyID, scripts.UpstreamApply(100-stage.Weight, stage.Weight), 30*time.Second); err != nil {
			return c.rollback(ctx, req, scripts, stagesCompleted, fmt.Sprintf("applying stage %d weights: %v", i+1, err))
		}

		ok, errRate := c.observeStage(ctx, req, stage, prodURL, sideURL)
		if !ok || errRate > c.threshold {
			return c.rollback(ctx, req, scripts, stagesCompleted, fmt.Sprintf("stage %d error rate %.3f exceeded threshold %.3f", i+1, errRate, c.threshold))
		}
		stagesCompleted++
	}

	publishStatus(ctx, c.deps, req.DeploymentID, "CanaryStages", "Promoting", "")
	promoteID := ids.CommandID(req.DeploymentID, "deploy", req.Attempt) + "-promote"
	if _, err := c.deps.Executor.Run(ctx, req.InstanceID, promoteID, scripts.Promote(), c.stop+30*time.Second); err != nil {
		return c.rollback(ctx, req, scripts, stagesCompleted, fmt.Sprintf("promoting canary: %v", err))
	}

	publishStatus(ctx, c.deps, req.DeploymentID, "Promoting", "Draining", "")
	if ok, _ := runHealthWindow(ctx, c.deps, c.window, req.DeploymentID, prodURL, req.Attempt, "production"); !ok {
		return c.rollback(ctx, req, scripts, stagesCompleted, "post-promote health window failed")
	}

	publishStatus(ctx, c.deps, req.DeploymentID, "Draining", "Succeeded", "")
	return DeployResult{Outcome: OutcomeSucceeded, Elapsed: c.deps.Clock.Now().Sub(start), StagesCompleted: stagesCompleted, PreviousImageTag: req.PreviousImageTag}, nil
}

// observeStage runs the stage's confirmation window against the production
// address while sampling the side address too, and computes the combined
// error rate across both (§4.7.3, §4.7.4).
func (c *CanaryDeployer) observeStage(ctx context.Context, req DeployRequest, stage CanaryStage, prodURL, sideURL string) (bool, float64) {
	okProd, prodSamples := runHealthWindow(ctx, c.deps, c.window, req.DeploymentID, prodURL, req.Attempt, "stable")
	okSide, sideSamples := runHealthWindow(ctx, c.deps, c.window, req.DeploymentID, sideURL, req.Attempt, "canary")

	total := len(prodSamples) + len(sideSamples)
	failures := 0
	for _, s := range prodSamples {
		if !s.Healthy {
			failures++
		}
	}
	for _, s := range sideSamples {
		if !s.Healthy {
			failures++
		}
	}

	var errRate float64
	if total > 0 {
		errRate = float64(failures) / float64(total)
	}

	if stage.Duration > 0 {
		select {
		case <-ctx.Done():
			return false, errRate
		case <-time.After(stage.Duration - c.window.Interval*time.Duration(c.window.SampleCount)):
		}
	}

	return okProd && okSide, errRate
}

func (c *CanaryDeployer) rollback(ctx context.Context, req DeployRequest, scripts remoteexec.ScriptSet, stagesCompleted int, reason string) (DeployResult, error) {
	publishStatus(ctx, c.deps, req.DeploymentID, "", "RollingBack", reason)
	c.deps.Events.Publish(ctx, rollbackStartedEvent(req.DeploymentID, c.deps.Clock.Now(), reason, req.PreviousImageTag))

	restoreID := ids.CommandID(req.DeploymentID, "deploy", req.Attempt) + "-upstream-restore"
	c.deps.Executor.Run(ctx, req.InstanceID, restoreID, scripts.UpstreamApply(100, 0), 30*time.Second)

	if req.PreviousImageTag == "" {
		return DeployResult{Outcome: OutcomeFailedNoRollback, Reason: reason, StagesCompleted: stagesCompleted, PreviousImageTag: req.PreviousImageTag}, nil
	}

	rollbackID := ids.CommandID(req.DeploymentID, "deploy", req.Attempt) + "-rollback"
	if _, err := c.deps.Executor.Run(ctx, req.InstanceID, rollbackID, scripts.Rollback(req.PreviousImageTag), c.stop+30*time.Second); err != nil {
		return DeployResult{Outcome: OutcomeFailedNoRollback, Reason: fmt.Sprintf("%s; rollback also failed: %v", reason, err), StagesCompleted: stagesCompleted, PreviousImageTag: req.PreviousImageTag}, nil
	}

	publishStatus(ctx, c.deps, req.DeploymentID, "RollingBack", "Reverted", reason)
	return DeployResult{Outcome: OutcomeFailedAndRolledBack, Reason: reason, StagesCompleted: stagesCompleted, PreviousImageTag: req.PreviousImageTag}, nil
}
