// Package phases implements the Phase Executors (C6): SecurityPhase,
// BuildPhase and DeployPhase, each a run(ctx, job) -> model.PhaseResult unit
// invoked by the Workflow Coordinator in order. Grounded on the teacher's
// internal/runner step functions (one struct per step, a narrow Deps bundle,
// a single Run entrypoint) generalized from a fixed backtest/strategy
// pipeline to the security/build/deploy sequence of §4.6.
package phases

import (
	"context"
	"time"

	"go.uber.org/zap"

	"deployctl/internal/logger"
	"deployctl/internal/model"
	"deployctl/internal/ports"
)

// Executor is the common shape every phase satisfies.
type Executor interface {
	Phase() model.Phase
	Run(ctx context.Context, job model.DeploymentJob, attempt int) model.PhaseResult
}

// recordLifecycle writes a PhaseRecord on entry (Running) and a second one on
// exit (Succeeded/Failed/Skipped), sharing one attempts index across all
// three phases via (deployment_id, phase, attempt).
func recordLifecycle(ctx context.Context, store ports.Store, clock ports.Clock, deploymentID string, phase model.Phase, attempt int, body func() model.PhaseResult) model.PhaseResult {
	log := logger.GetLogger(ctx).With(
		zap.String("deployment_id", deploymentID),
		zap.String("phase", string(phase)),
		zap.Int("attempt", attempt),
	)

	started := clock.Now()
	if err := store.PutPhaseRecord(ctx, model.PhaseRecord{
		DeploymentID: deploymentID,
		Phase:        phase,
		Attempt:      attempt,
		Status:       model.PhaseStatusRunning,
		StartedAt:    started,
	}); err != nil {
		log.Warn("failed to record phase start", zap.Error(err))
	}
	log.Info("phase started")

	result := body()

	finished := clock.Now()
	rec := model.PhaseRecord{
		DeploymentID: deploymentID,
		Phase:        phase,
		Attempt:      attempt,
		StartedAt:    started,
		FinishedAt:   &finished,
	}
	switch result.Outcome {
	case model.OutcomeOk:
		rec.Status = model.PhaseStatusSucceeded
		log.Info("phase succeeded", zap.Duration("elapsed", finished.Sub(started)))
	case model.OutcomeSkipped:
		rec.Status = model.PhaseStatusSkipped
		rec.Diagnostic = result.Reason
		log.Info("phase skipped", zap.String("reason", result.Reason))
	default:
		rec.Status = model.PhaseStatusFailed
		rec.Diagnostic = result.Detail
		log.Warn("phase failed", zap.String("kind", string(result.Kind)), zap.Bool("retryable", result.Retryable))
	}
	if err := store.PutPhaseRecord(ctx, rec); err != nil {
		log.Warn("failed to record phase completion", zap.Error(err))
	}

	return result
}

func publishPhaseEvent(ctx context.Context, sink ports.EventSink, clock ports.Clock, deploymentID string, phase model.Phase, attempt int, result model.PhaseResult) {
	if sink == nil {
		return
	}
	if result.IsFailed() {
		sink.Publish(ctx, model.DeploymentEvent{
			DeploymentID: deploymentID,
			Type:         model.EventPhaseFailed,
			Timestamp:    clock.Now(),
			Payload: model.PhaseFailedPayload{
				Phase:     phase,
				Attempt:   attempt,
				Kind:      result.Kind,
				Detail:    result.Detail,
				Retryable: result.Retryable,
			},
		})
		return
	}
	sink.Publish(ctx, model.DeploymentEvent{
		DeploymentID: deploymentID,
		Type:         model.EventPhaseCompleted,
		Timestamp:    clock.Now(),
		Payload: model.PhaseCompletedPayload{
			Phase:   phase,
			Attempt: attempt,
			Result:  result.Payload,
		},
	})
}

func publishPhaseStarted(ctx context.Context, sink ports.EventSink, clock ports.Clock, deploymentID string, phase model.Phase, attempt int) {
	if sink == nil {
		return
	}
	sink.Publish(ctx, model.DeploymentEvent{
		DeploymentID: deploymentID,
		Type:         model.EventPhaseStarted,
		Timestamp:    clock.Now(),
		Payload:      model.PhaseStartedPayload{Phase: phase, Attempt: attempt},
	})
}

// defaultTimeout returns d if positive, else fallback.
func defaultTimeout(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
