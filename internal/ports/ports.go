// Package ports declares the capability interfaces the core depends on
// (§4.1): VCS, ImageScanner, ContainerBuilder, RemoteExecutor, HealthProber,
// Clock, EventSink and Store. Every port is synchronous from the caller's
// perspective; concurrency is owned by the core. Shaped after the teacher's
// Runtime interface (internal/runner/interface.go): small verbs, typed
// errors, context-first signatures.
package ports

import (
	"context"
	"time"

	"deployctl/internal/model"
)

// VCS clones a repository worktree and resolves refs to commits.
type VCS interface {
	Clone(ctx context.Context, repository, ref, targetDir string) (resolvedSHA, worktreePath string, err error)
	ResolveSHA(ctx context.Context, repository, ref string) (sha string, err error)
}

// Sentinel VCS errors, classified per §7's error taxonomy.
var (
	ErrVCSUnreachable = newErr("vcs: unreachable")
	ErrVCSAuthDenied  = newErr("vcs: auth denied")
	ErrVCSNotFound    = newErr("vcs: not found")
	ErrVCSDirtyTarget = newErr("vcs: target directory not empty")
)

// ImageScanner performs a deterministic vulnerability scan given the same
// inputs and vulnerability-DB snapshot.
type ImageScanner interface {
	ScanFilesystem(ctx context.Context, path string, policy string, timeout time.Duration) (model.ScanReport, error)
	ScanImage(ctx context.Context, ref string, policy string, timeout time.Duration) (model.ScanReport, error)
}

// ProgressSink receives streamed build output lines (one call per line).
type ProgressSink interface {
	Progress(line string)
}

// ProgressSinkFunc adapts a function to ProgressSink.
type ProgressSinkFunc func(line string)

func (f ProgressSinkFunc) Progress(line string) { f(line) }

// ContainerBuilder detects a project's language/framework, optionally
// generates a Dockerfile, and builds an image.
type ContainerBuilder interface {
	Detect(ctx context.Context, worktree string) (model.DetectionResult, error)
	GenerateDockerfile(ctx context.Context, detection model.DetectionResult) (string, error)
	Build(ctx context.Context, contextDir, imageTag, dockerfile string, sink ProgressSink) (model.BuildArtifact, error)
}

// RemoteExecutor runs an opaque script on a target instance. Implementations
// must provide at-most-once semantics per commandID; callers derive commandID
// from deployment_id+phase+attempt (§4.1, ids.CommandID) for idempotent
// retries.
type RemoteExecutor interface {
	Run(ctx context.Context, instanceID, commandID, script string, timeout time.Duration) (RunResult, error)
}

// RunResult is one RemoteExecutor.Run invocation's outcome.
type RunResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// HealthProber issues a single HTTP health probe.
type HealthProber interface {
	Probe(ctx context.Context, url string, timeout time.Duration) model.HealthSample
}

// Clock is injectable for deterministic tests; Now is wall clock (for
// persisted timestamps), Monotonic is a monotonic duration source.
type Clock interface {
	Now() time.Time
	Monotonic() time.Duration
}

// EventSink publishes a DeploymentEvent. Implementations never block the
// caller beyond a bounded queue (§4.2).
type EventSink interface {
	Publish(ctx context.Context, event model.DeploymentEvent) error
}

// Store is row-level read/write access to the entities of §3. All writes are
// idempotent by (deployment_id, phase, attempt) or an equivalent natural key.
type Store interface {
	PutDeployment(ctx context.Context, rec model.DeploymentRecord) error
	GetDeployment(ctx context.Context, deploymentID string) (model.DeploymentRecord, error)
	LatestDeployedForInstance(ctx context.Context, instanceID string) (model.DeploymentRecord, bool, error)

	PutPhaseRecord(ctx context.Context, rec model.PhaseRecord) error
	GetPhaseRecord(ctx context.Context, deploymentID string, phase model.Phase, attempt int) (model.PhaseRecord, bool, error)

	PutSecurityDecision(ctx context.Context, deploymentID string, d model.SecurityDecision) error
	PutBuildArtifact(ctx context.Context, deploymentID string, a model.BuildArtifact) error
	PutHealthSample(ctx context.Context, deploymentID string, s model.HealthSample) error

	AppendEvent(ctx context.Context, event model.DeploymentEvent) error
	ListEvents(ctx context.Context, deploymentID string, afterSeq uint64) ([]model.DeploymentEvent, error)
	NextSeq(ctx context.Context, deploymentID string) (uint64, error)
}

type sentinelError string

func newErr(s string) error { return sentinelError(s) }
func (e sentinelError) Error() string { return string(e) }
