// Package rollout implements the Rollout Strategies (C7): RollingDeployer and
// CanaryDeployer, both satisfying a common Deployer contract dispatched from
// DeployPhase (§4.7). Grounded on the teacher's internal/monitor/bot_monitor.go
// poll-loop idiom (ticker-driven sampling against a bounded window) and the
// RemoteExecutor script idiom in internal/remoteexec, since the teacher's own
// reverse-proxy concept (internal/proxy, since adapted away) assumed a
// long-lived in-process proxy rather than a script applied to the target
// instance.
package rollout

import (
	"context"
	"time"

	"deployctl/internal/model"
	"deployctl/internal/ports"
)

// DeployRequest is one DeployPhase invocation's input (§4.7).
type DeployRequest struct {
	DeploymentID     string
	InstanceID       string
	ImageTag         string
	PreviousImageTag string
	Port             int
	HealthPath       string
	EnvVars          []model.EnvVar
	Attempt          int
}

// DeployOutcome discriminates DeployResult's three shapes.
type DeployOutcome string

const (
	OutcomeSucceeded           DeployOutcome = "succeeded"
	OutcomeFailedAndRolledBack DeployOutcome = "failed_and_rolled_back"
	OutcomeFailedNoRollback    DeployOutcome = "failed_no_rollback"
)

// DeployResult is a Deployer.Deploy call's outcome.
type DeployResult struct {
	Outcome          DeployOutcome
	ContainerID      string
	Elapsed          time.Duration
	Reason           string
	StagesCompleted  int
	PreviousImageTag string
}

// Deployer is the common contract RollingDeployer and CanaryDeployer satisfy.
type Deployer interface {
	Deploy(ctx context.Context, req DeployRequest) (DeployResult, error)
}

// Deps bundles the ports both deployers need; passed once at construction so
// RollingDeployer and CanaryDeployer share the exact same wiring.
type Deps struct {
	Executor ports.RemoteExecutor
	Prober   ports.HealthProber
	Events   ports.EventSink
	Clock    ports.Clock
}

// HealthWindowConfig is §4.7.1's confirmation window, shared by both
// deployers.
type HealthWindowConfig struct {
	Interval                time.Duration
	SampleCount             int
	MinSuccessCount         int
	MaxConsecutiveFailures  int
}

// runHealthWindow samples url every Interval up to SampleCount times,
// publishing a HealthSampled event per sample, and reports whether the
// window passed per §4.7.1's two-part rule.
func runHealthWindow(ctx context.Context, deps Deps, cfg HealthWindowConfig, deploymentID, url string, attempt int, stage string) (bool, []model.HealthSample) {
	var samples []model.HealthSample
	successes := 0
	consecutiveFailures := 0

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for i := 0; i < cfg.SampleCount; i++ {
		sample := deps.Prober.Probe(ctx, url, 2*time.Second)
		sample.Attempt = attempt
		samples = append(samples, sample)

		if deps.Events != nil {
			deps.Events.Publish(ctx, model.DeploymentEvent{
				DeploymentID: deploymentID,
				Type:         model.EventHealthSampled,
				Timestamp:    deps.Clock.Now(),
				Payload:      model.HealthSampledPayload{Sample: sample, Stage: stage},
			})
		}

		if sample.Healthy {
			successes++
			consecutiveFailures = 0
		} else {
			consecutiveFailures++
			if consecutiveFailures >= cfg.MaxConsecutiveFailures {
				return false, samples
			}
		}

		if i < cfg.SampleCount-1 {
			select {
			case <-ctx.Done():
				return false, samples
			case <-ticker.C:
			}
		}
	}

	return successes >= cfg.MinSuccessCount, samples
}

// preSwitchCheck is the optional single-probe-with-retry check Rolling runs
// before cutting traffic (§4.7.1).
func preSwitchCheck(ctx context.Context, prober ports.HealthProber, url string) bool {
	for i := 0; i < 3; i++ {
		sample := prober.Probe(ctx, url, 2*time.Second)
		if sample.Healthy {
			return true
		}
	}
	return false
}

func rollbackStartedEvent(deploymentID string, at time.Time, reason, previousImageTag string) model.DeploymentEvent {
	return model.DeploymentEvent{
		DeploymentID: deploymentID,
		Type:         model.EventRollbackStarted,
		Timestamp:    at,
		Payload: model.RollbackStartedPayload{
			Reason:           reason,
			PreviousImageTag: previousImageTag,
		},
	}
}

func publishStatus(ctx context.Context, deps Deps, deploymentID, from, to, reason string) {
	if deps.Events == nil {
		return
	}
	deps.Events.Publish(ctx, model.DeploymentEvent{
		DeploymentID: deploymentID,
		Type:         model.EventStatusChanged,
		Timestamp:    deps.Clock.Now(),
		Payload: model.StatusChangedPayload{
			From:   model.DeploymentStatus(from),
			To:     model.DeploymentStatus(to),
			Reason: reason,
		},
	})
}
