// Package coordinator implements the Workflow Coordinator (C8): the
// top-level state machine that drives one deployment through
// Pending->Scanning->Building->Deploying->Verifying and into one of its five
// terminal states, writing the DeploymentRecord as the machine's sole writer
// (§4.8). Grounded on the teacher's internal/runner orchestration loop (one
// struct owning a sequence of steps, persisting state between each) adapted
// from a strategy backtest pipeline to the security/build/deploy sequence.
package coordinator

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"deployctl/internal/logger"
	"deployctl/internal/model"
	"deployctl/internal/phases"
	"deployctl/internal/ports"
	"deployctl/internal/rollout"
)

// Coordinator drives a single DeploymentJob through the phase sequence,
// persisting a DeploymentRecord as it goes.
type Coordinator struct {
	Security *phases.SecurityPhase
	Build    *phases.BuildPhase
	Deploy   *phases.DeployPhase
	Store    ports.Store
	Clock    ports.Clock
	Events   ports.EventSink
}

// Run executes one full pass of the state machine for job and returns the
// DeploymentRecord in its final (possibly non-terminal, if Run itself was
// interrupted by ctx cancellation) state. It never returns a Go error for a
// phase failure: failures are recorded as a terminal DeploymentStatus on the
// record, per §4.8's transition table. A returned error means the record
// itself could not be persisted, which the caller (the Worker Loop) treats
// as a reason to requeue rather than ack.
func (c *Coordinator) Run(ctx context.Context, job model.DeploymentJob, attempt int) (model.DeploymentRecord, error) {
	log := logger.GetLogger(ctx).With(zap.String("deployment_id", job.DeploymentID), zap.Int("attempt", attempt))

	rec, err := c.Store.GetDeployment(ctx, job.DeploymentID)
	if err != nil {
		rec = model.DeploymentRecord{
			DeploymentID: job.DeploymentID,
			JobID:        job.JobID,
			InstanceID:   job.InstanceID,
			Status:       model.StatusPending,
			StartedAt:    c.Clock.Now(),
		}
	}

	var errs *multierror.Error

	rec.Status = model.StatusScanning
	if err := c.transition(ctx, &rec); err != nil {
		errs = multierror.Append(errs, err)
	}

	securityResult := c.Security.Run(ctx, job, attempt)
	if securityResult.IsFailed() {
		return c.fail(ctx, &rec, securityResultStatus(securityResult), securityResult, log, errs)
	}

	rec.Status = model.StatusBuilding
	if err := c.transition(ctx, &rec); err != nil {
		errs = multierror.Append(errs, err)
	}

	buildResult := c.Build.Run(ctx, job, attempt)
	if buildResult.IsFailed() {
		return c.fail(ctx, &rec, model.StatusFailed, buildResult, log, errs)
	}
	if artifact, ok := buildResult.Payload.(model.BuildArtifact); ok {
		rec.CurrentImageTag = artifact.ImageTag
	}

	// The previous image tag is resolved and persisted here, before the
	// Deploying transition, so it survives on rec regardless of what the
	// deploy attempt does to CurrentImageTag afterward (§4.8).
	if prev, found, err := c.Store.LatestDeployedForInstance(ctx, job.InstanceID); err == nil && found {
		rec.PreviousImageTag = prev.CurrentImageTag
	}

	rec.Status = model.StatusDeploying
	if err := c.transition(ctx, &rec); err != nil {
		errs = multierror.Append(errs, err)
	}

	deployResult := c.Deploy.Run(ctx, job, attempt)
	if outcome, ok := deployResult.Payload.(rollout.DeployResult); ok {
		rec.PreviousImageTag = outcome.PreviousImageTag
	}
	if deployResult.IsFailed() {
		status := model.StatusFailed
		if outcome, ok := deployResult.Payload.(rollout.DeployResult); ok && outcome.Outcome == rollout.OutcomeFailedAndRolledBack {
			status = model.StatusRolledBack
		}
		return c.fail(ctx, &rec, status, deployResult, log, errs)
	}

	rec.Status = model.StatusVerifying
	if err := c.transition(ctx, &rec); err != nil {
		errs = multierror.Append(errs, err)
	}

	completed := c.Clock.Now()
	rec.CompletedAt = &completed
	rec.Status = model.StatusDeployed
	if err := c.transition(ctx, &rec); err != nil {
		errs = multierror.Append(errs, err)
	}

	log.Info("deployment succeeded")
	return rec, errs.ErrorOrNil()
}

func securityResultStatus(result model.PhaseResult) model.DeploymentStatus {
	if result.Kind == model.ErrorKindSecurityReject {
		return model.StatusRejected
	}
	return model.StatusFailed
}

func (c *Coordinator) fail(ctx context.Context, rec *model.DeploymentRecord, status model.DeploymentStatus, result model.PhaseResult, log *zap.Logger, errs *multierror.Error) (model.DeploymentRecord, error) {
	completed := c.Clock.Now()
	rec.CompletedAt = &completed
	rec.Status = status
	rec.FailureReason = result.Detail
	rec.FailureKind = result.Kind
	if status == model.StatusRolledBack {
		rec.RollbackReason = result.Detail
	}
	if err := c.transition(ctx, rec); err != nil {
		errs = multierror.Append(errs, err)
	}
	log.Warn("deployment did not succeed", zap.String("status", string(status)), zap.String("kind", string(result.Kind)))
	return *rec, errs.ErrorOrNil()
}

// transition persists rec's current state and publishes a StatusChanged
// event, the way every state change in §4.8's table is observable.
func (c *Coordinator) transition(ctx context.Context, rec *model.DeploymentRecord) error {
	if err := c.Store.PutDeployment(ctx, *rec); err != nil {
		return fmt.Errorf("persisting deployment record (status=%s): %w", rec.Status, err)
	}
	if c.Events != nil {
		c.Events.Publish(ctx, model.DeploymentEvent{
			DeploymentID: rec.DeploymentID,
			Type:         model.EventStatusChanged,
			Timestamp:    c.Clock.Now(),
			Payload:      model.StatusChangedPayload{To: rec.Status},
		})
	}
	return nil
}
