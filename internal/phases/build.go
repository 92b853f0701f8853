package phases

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"deployctl/internal/model"
	"deployctl/internal/ports"
)

// BuildConfig is BuildPhase's configurable surface (§4.6.2, §6).
type BuildConfig struct {
	Timeout          time.Duration
	BaseImageRetries int
	BaseImageBackoff time.Duration
	LogLineRateLimit int // lines/second; default 200
}

// BuildPhase detects a project's language, generates a Dockerfile when one
// isn't already present, and builds an image, streaming progress lines
// through a rate-limited sink so a runaway build log can't flood the bus.
type BuildPhase struct {
	VCS         ports.VCS
	Builder     ports.ContainerBuilder
	Store       ports.Store
	Clock       ports.Clock
	Events      ports.EventSink
	Config      BuildConfig
	ScratchRoot string
}

func (p *BuildPhase) Phase() model.Phase { return model.PhaseBuild }

func (p *BuildPhase) Run(ctx context.Context, job model.DeploymentJob, attempt int) model.PhaseResult {
	publishPhaseStarted(ctx, p.Events, p.Clock, job.DeploymentID, model.PhaseBuild, attempt)
	result := recordLifecycle(ctx, p.Store, p.Clock, job.DeploymentID, model.PhaseBuild, attempt, func() model.PhaseResult {
		return p.run(ctx, job, attempt)
	})
	publishPhaseEvent(ctx, p.Events, p.Clock, job.DeploymentID, model.PhaseBuild, attempt, result)
	return result
}

func (p *BuildPhase) run(ctx context.Context, job model.DeploymentJob, attempt int) model.PhaseResult {
	scratch := filepath.Join(p.scratchRoot(), fmt.Sprintf("%s-%d-build", job.DeploymentID, attempt))
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return model.Failed(model.ErrorKindInfrastructure, fmt.Sprintf("creating scratch dir: %v", err), true)
	}
	defer func() {
		recover()
		os.RemoveAll(scratch)
	}()

	_, worktree, err := p.VCS.Clone(ctx, job.Repository, job.Ref, scratch)
	if err != nil {
		return classifyVCSError(err)
	}

	detection, err := p.Builder.Detect(ctx, worktree)
	if err != nil {
		return model.Failed(model.ErrorKindBuild, fmt.Sprintf("detecting project type: %v", err), false)
	}

	dockerfile, err := p.Builder.GenerateDockerfile(ctx, detection)
	if err != nil {
		return model.Failed(model.ErrorKindBuild, fmt.Sprintf("generating dockerfile: %v", err), false)
	}

	if job.CommitSHA == "" {
		return model.Failed(model.ErrorKindInput, "job has no resolved commit sha", false)
	}
	sha := job.CommitSHA
	if len(sha) > 8 {
		sha = sha[:8]
	}
	imageTag := fmt.Sprintf("%s:%s", sanitizeRepoName(job.Repository), sha)
	if err := model.ValidateImageTag(imageTag); err != nil {
		return model.Failed(model.ErrorKindInput, err.Error(), false)
	}

	sink := newRateLimitedSink(p.rateLimit(), p.Events, p.Clock, job.DeploymentID)

	timeout := defaultTimeout(p.Config.Timeout, 15*time.Minute)
	buildCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	retries := p.Config.BaseImageRetries
	if retries == 0 {
		retries = 2
	}
	backoff := p.Config.BaseImageBackoff
	if backoff == 0 {
		backoff = 15 * time.Second
	}

	var artifact model.BuildArtifact
	var buildErr error
	for attemptNum := 0; attemptNum <= retries; attemptNum++ {
		artifact, buildErr = p.Builder.Build(buildCtx, worktree, imageTag, dockerfile, sink)
		if buildErr == nil {
			break
		}
		if !isTransientBaseImageError(buildErr) || attemptNum == retries {
			break
		}
		sink.flush()
		select {
		case <-buildCtx.Done():
			buildErr = buildCtx.Err()
		case <-time.After(backoff):
		}
	}
	sink.flush()

	if buildErr != nil {
		return model.Failed(model.ErrorKindBuild, fmt.Sprintf("build failed: %v", buildErr), false)
	}

	artifact.DetectedLanguage = detection.Language
	artifact.DetectedFramework = detection.Framework
	if detection.HasDockerfile {
		artifact.DockerfileProvenance = model.ProvenanceRepository
	} else {
		artifact.DockerfileProvenance = model.ProvenanceGenerated
	}

	if err := p.Store.PutBuildArtifact(ctx, job.DeploymentID, artifact); err != nil {
		return model.Failed(model.ErrorKindInfrastructure, fmt.Sprintf("persisting build artifact: %v", err), true)
	}

	return model.Ok(artifact)
}

func (p *BuildPhase) rateLimit() int {
	if p.Config.LogLineRateLimit > 0 {
		return p.Config.LogLineRateLimit
	}
	return 200
}

func (p *BuildPhase) scratchRoot() string {
	if p.ScratchRoot != "" {
		return p.ScratchRoot
	}
	return os.TempDir()
}

func sanitizeRepoName(repository string) string {
	name := strings.ToLower(repository)
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return b.String()
}

func isTransientBaseImageError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "pull access denied") == false &&
		(strings.Contains(msg, "pull") || strings.Contains(msg, "toomanyrequests") || strings.Contains(msg, "timeout") || strings.Contains(msg, "connection reset"))
}

// rateLimitedSink implements ports.ProgressSink over golang.org/x/time/rate:
// lines within budget are emitted as LogLine events immediately, and lines
// arriving faster than the limit are merged into a tail summary flushed at
// the end of the build rather than dropped silently.
type rateLimitedSink struct {
	limiter      *rate.Limiter
	events       ports.EventSink
	clock        ports.Clock
	deploymentID string
	overflowed   int
	lastLine     string
}

func newRateLimitedSink(linesPerSecond int, events ports.EventSink, clock ports.Clock, deploymentID string) *rateLimitedSink {
	return &rateLimitedSink{
		limiter:      rate.NewLimiter(rate.Limit(linesPerSecond), linesPerSecond),
		events:       events,
		clock:        clock,
		deploymentID: deploymentID,
	}
}

func (s *rateLimitedSink) Progress(line string) {
	if s.events == nil {
		return
	}
	if s.limiter.Allow() {
		s.events.Publish(context.Background(), model.DeploymentEvent{
			DeploymentID: s.deploymentID,
			Type:         model.EventLogLine,
			Timestamp:    s.clock.Now(),
			Payload:      model.LogLinePayload{Phase: model.PhaseBuild, Line: line},
		})
		return
	}
	s.overflowed++
	s.lastLine = line
}

func (s *rateLimitedSink) flush() {
	if s.overflowed == 0 || s.events == nil {
		return
	}
	s.events.Publish(context.Background(), model.DeploymentEvent{
		DeploymentID: s.deploymentID,
		Type:         model.EventPhaseProgress,
		Timestamp:    s.clock.Now(),
		Payload: model.PhaseProgressPayload{
			Phase:   model.PhaseBuild,
			Message: fmt.Sprintf("%d build log lines exceeded the rate limit and were suppressed; last: %s", s.overflowed, s.lastLine),
		},
	})
	s.overflowed = 0
	s.lastLine = ""
}
