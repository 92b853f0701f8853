// Package vcs implements the VCS port (§4.1) by shelling out to the system
// git binary. Grounded on the teacher's internal/docker/data_downloader.go
// idiom of building a shell script with strings.Builder and running it
// through a context-bound exec, generalized here to direct git subcommands
// instead of an in-container Python script since clone/resolve run on the
// orchestrator host, not inside a workload container.
package vcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"deployctl/internal/ports"
)

// GitCLI is a ports.VCS backed by the `git` binary on PATH.
type GitCLI struct{}

func New() *GitCLI { return &GitCLI{} }

// Clone shallow-clones repository at ref into targetDir and resolves HEAD to
// a commit SHA. targetDir may already exist but must be empty (§4.1
// dirty-target check), since a prior failed attempt's leftovers must never
// silently contaminate a fresh checkout.
func (g *GitCLI) Clone(ctx context.Context, repository, ref, targetDir string) (string, string, error) {
	if entries, err := os.ReadDir(targetDir); err == nil && len(entries) > 0 {
		return "", "", ports.ErrVCSDirtyTarget
	}

	if err := g.run(ctx, "", "clone", "--depth", "1", "--branch", ref, repository, targetDir); err != nil {
		if isAuthDenied(err) {
			return "", "", ports.ErrVCSAuthDenied
		}
		if isNotFound(err) {
			return "", "", ports.ErrVCSNotFound
		}
		return "", "", ports.ErrVCSUnreachable
	}

	sha, err := g.revParse(ctx, targetDir, "HEAD")
	if err != nil {
		return "", "", err
	}
	return sha, targetDir, nil
}

// ResolveSHA resolves ref against the remote without a full clone, using
// `git ls-remote`.
func (g *GitCLI) ResolveSHA(ctx context.Context, repository, ref string) (string, error) {
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, "git", "ls-remote", repository, ref)
	cmd.Stdout = &out

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if isAuthDenied(errors.New(stderr.String())) {
			return "", ports.ErrVCSAuthDenied
		}
		return "", ports.ErrVCSUnreachable
	}

	line := strings.TrimSpace(out.String())
	if line == "" {
		return "", ports.ErrVCSNotFound
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", ports.ErrVCSNotFound
	}
	return fields[0], nil
}

func (g *GitCLI) revParse(ctx context.Context, dir, rev string) (string, error) {
	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, "git", "rev-parse", rev)
	cmd.Dir = dir
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", ports.ErrVCSUnreachable
	}
	return strings.TrimSpace(out.String()), nil
}

func (g *GitCLI) run(ctx context.Context, dir string, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, stderr.String())
	}
	return nil
}

func isAuthDenied(err error) bool {
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "permission denied") || strings.Contains(s, "authentication failed") || strings.Contains(s, "could not read username")
}

func isNotFound(err error) bool {
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "not found") || strings.Contains(s, "repository not found") || strings.Contains(s, "does not exist")
}
