package phases

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"deployctl/internal/model"
	"deployctl/internal/ports"
)

// SecurityConfig is SecurityPhase's configurable policy surface (§4.6.1, §6).
type SecurityConfig struct {
	Policy   model.SecurityPolicy
	MaxHigh  int
	Timeout  time.Duration
	SkipDirs []string
}

// SecurityPhase clones the job's ref into a scratch directory, scans the
// worktree's filesystem, derives a SecurityDecision from the scan counts and
// policy, and persists the decision before returning.
type SecurityPhase struct {
	VCS     ports.VCS
	Scanner ports.ImageScanner
	Store   ports.Store
	Clock   ports.Clock
	Events  ports.EventSink
	Config  SecurityConfig
	ScratchRoot string
}

func (p *SecurityPhase) Phase() model.Phase { return model.PhaseSecurity }

func (p *SecurityPhase) Run(ctx context.Context, job model.DeploymentJob, attempt int) model.PhaseResult {
	publishPhaseStarted(ctx, p.Events, p.Clock, job.DeploymentID, model.PhaseSecurity, attempt)
	result := recordLifecycle(ctx, p.Store, p.Clock, job.DeploymentID, model.PhaseSecurity, attempt, func() model.PhaseResult {
		return p.run(ctx, job, attempt)
	})
	publishPhaseEvent(ctx, p.Events, p.Clock, job.DeploymentID, model.PhaseSecurity, attempt, result)
	return result
}

func (p *SecurityPhase) run(ctx context.Context, job model.DeploymentJob, attempt int) model.PhaseResult {
	scratch := filepath.Join(p.scratchRoot(), fmt.Sprintf("%s-%d", job.DeploymentID, attempt))
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return model.Failed(model.ErrorKindInfrastructure, fmt.Sprintf("creating scratch dir: %v", err), true)
	}
	defer func() {
		// Always removed on exit, including on panic, since a leftover scratch
		// tree from a crashed attempt must never block a retry's clone.
		recover()
		os.RemoveAll(scratch)
	}()

	_, worktree, err := p.VCS.Clone(ctx, job.Repository, job.Ref, scratch)
	if err != nil {
		return classifyVCSError(err)
	}

	empty, err := dirIsEmpty(worktree)
	if err != nil {
		return model.Failed(model.ErrorKindInfrastructure, fmt.Sprintf("inspecting worktree: %v", err), true)
	}
	if empty {
		return model.Failed(model.ErrorKindEmptyRepo, "cloned worktree has no files", false)
	}

	timeout := defaultTimeout(p.Config.Timeout, 120*time.Second)
	report, err := p.Scanner.ScanFilesystem(ctx, worktree, string(p.Config.Policy), timeout)
	if err != nil {
		return model.Failed(model.ErrorKindScannerError, fmt.Sprintf("scanner error: %v", err), true)
	}
	if report.Partial {
		return model.Failed(model.ErrorKindScannerError, "scanner returned a partial result", true)
	}

	decision := deriveDecision(report, p.Config, p.Clock.Now())
	if err := p.Store.PutSecurityDecision(ctx, job.DeploymentID, decision); err != nil {
		return model.Failed(model.ErrorKindInfrastructure, fmt.Sprintf("persisting security decision: %v", err), true)
	}

	if decision.Decision == model.VerdictReject {
		return model.Failed(model.ErrorKindSecurityReject, decision.Reasoning, false)
	}
	return model.Ok(decision)
}

func (p *SecurityPhase) scratchRoot() string {
	if p.ScratchRoot != "" {
		return p.ScratchRoot
	}
	return os.TempDir()
}

// deriveDecision applies policy to a scan report (§4.6.1): strict rejects any
// critical or more than MaxHigh highs, balanced rejects only criticals, and
// permissive only warns regardless of counts.
func deriveDecision(report model.ScanReport, cfg SecurityConfig, now time.Time) model.SecurityDecision {
	total := report.Critical + report.High + report.Medium + report.Low
	riskScore := float64(report.Critical)*10 + float64(report.High)*3 + float64(report.Medium)*1 + float64(report.Low)*0.2

	decision := model.VerdictApprove
	var reasons []string
	if total > 0 {
		decision = model.VerdictWarn
		reasons = append(reasons, fmt.Sprintf("found %d vulnerabilities (%d critical, %d high, %d medium, %d low)", total, report.Critical, report.High, report.Medium, report.Low))
	}

	switch cfg.Policy {
	case model.PolicyPermissive:
		// never rejects; at most warns.
	case model.PolicyBalanced:
		if report.Critical > 0 {
			decision = model.VerdictReject
			reasons = append(reasons, "balanced policy rejects any critical finding")
		}
	default: // strict
		maxHigh := cfg.MaxHigh
		if maxHigh == 0 {
			maxHigh = 5
		}
		if report.Critical > 0 {
			decision = model.VerdictReject
			reasons = append(reasons, "strict policy rejects any critical finding")
		} else if report.High > maxHigh {
			decision = model.VerdictReject
			reasons = append(reasons, fmt.Sprintf("strict policy rejects more than %d high findings", maxHigh))
		}
	}

	reasoning := "no findings"
	if len(reasons) > 0 {
		reasoning = reasons[0]
		for _, r := range reasons[1:] {
			reasoning += "; " + r
		}
	}

	return model.SecurityDecision{
		Total:     total,
		Critical:  report.Critical,
		High:      report.High,
		Medium:    report.Medium,
		Low:       report.Low,
		RiskScore: riskScore,
		Decision:  decision,
		Reasoning: reasoning,
		ScannedAt: now,
	}
}

func classifyVCSError(err error) model.PhaseResult {
	switch {
	case err == ports.ErrVCSAuthDenied:
		return model.Failed(model.ErrorKindInput, "vcs auth denied", false)
	case err == ports.ErrVCSNotFound:
		return model.Failed(model.ErrorKindInput, "repository or ref not found", false)
	case err == ports.ErrVCSDirtyTarget:
		return model.Failed(model.ErrorKindInfrastructure, "scratch directory already populated", true)
	default:
		return model.Failed(model.ErrorKindUnreachable, fmt.Sprintf("vcs clone failed: %v", err), true)
	}
}

func dirIsEmpty(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.Name() == ".git" {
			continue
		}
		return false, nil
	}
	return true, nil
}
