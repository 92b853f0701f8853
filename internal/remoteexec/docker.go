// Package remoteexec implements the RemoteExecutor port (§4.1, §6): running
// an opaque shell script against a deployed instance and returning its exit
// code and output. Two backends are provided — Docker (container exec) and
// Kubernetes (pod exec) — selected by how an instance_id resolves, mirroring
// the teacher's split between internal/runner's Docker and Kubernetes
// Runtime implementations of one logical interface.
package remoteexec

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"deployctl/internal/ports"
)

// Docker runs scripts inside the named container via `docker exec`,
// commandID is used purely for log correlation — the docker exec API has no
// native idempotency key, so at-most-once here relies on the caller never
// calling Run twice for the same commandID concurrently (guaranteed by the
// per-deployment single-writer invariant).
type Docker struct {
	cli *client.Client
}

func NewDocker() (*Docker, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	return &Docker{cli: cli}, nil
}

func (d *Docker) Run(ctx context.Context, instanceID, commandID, script string, timeout time.Duration) (ports.RunResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	execConfig := container.ExecOptions{
		Cmd:          []string{"/bin/sh", "-c", script},
		AttachStdout: true,
		AttachStderr: true,
	}
	created, err := d.cli.ContainerExecCreate(ctx, instanceID, execConfig)
	if err != nil {
		return ports.RunResult{}, fmt.Errorf("remoteexec[%s]: exec create: %w", commandID, err)
	}

	attach, err := d.cli.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return ports.RunResult{}, fmt.Errorf("remoteexec[%s]: exec attach: %w", commandID, err)
	}
	defer attach.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, attach.Reader); err != nil {
		return ports.RunResult{}, fmt.Errorf("remoteexec[%s]: reading exec output: %w", commandID, err)
	}

	inspect, err := d.cli.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return ports.RunResult{}, fmt.Errorf("remoteexec[%s]: exec inspect: %w", commandID, err)
	}

	return ports.RunResult{ExitCode: inspect.ExitCode, Stdout: stdout.String(), Stderr: stderr.String()}, nil
}
