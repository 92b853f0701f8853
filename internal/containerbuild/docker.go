// Package containerbuild implements the ContainerBuilder port (§4.1, §4.6.2):
// language/framework detection, best-effort Dockerfile generation, and an
// image build via the docker/docker SDK. Client construction is grounded on
// the teacher's internal/runner/docker_runtime.go NewDockerRuntime (API
// version negotiation, optional TLS), generalized from container lifecycle
// management to a one-shot image build.
package containerbuild

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/docker/docker/api/types/build"
	"github.com/docker/docker/client"

	"deployctl/internal/model"
	"deployctl/internal/ports"
)

// Docker is a ports.ContainerBuilder backed by the local Docker daemon.
type Docker struct {
	cli *client.Client
}

func New() (*Docker, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	return &Docker{cli: cli}, nil
}

// detectors map a marker file to a (language, framework, default entrypoint,
// default Dockerfile) tuple, checked in order — the first match wins.
var detectors = []struct {
	marker      string
	language    string
	framework   string
	entrypoint  string
	dockerfile  string
}{
	{"package.json", "javascript", "node", "node index.js", dockerfileNode},
	{"go.mod", "go", "", "./app", dockerfileGo},
	{"requirements.txt", "python", "", "python main.py", dockerfilePython},
	{"Gemfile", "ruby", "rails", "bundle exec rails server -b 0.0.0.0", dockerfileRuby},
}

func (d *Docker) Detect(ctx context.Context, worktree string) (model.DetectionResult, error) {
	dockerfilePath := filepath.Join(worktree, "Dockerfile")
	if _, err := os.Stat(dockerfilePath); err == nil {
		return model.DetectionResult{HasDockerfile: true, DockerfilePath: dockerfilePath}, nil
	}

	for _, det := range detectors {
		if _, err := os.Stat(filepath.Join(worktree, det.marker)); err == nil {
			return model.DetectionResult{
				Language:   det.language,
				Framework:  det.framework,
				Entrypoint: det.entrypoint,
			}, nil
		}
	}
	return model.DetectionResult{}, fmt.Errorf("containerbuild: unable to detect language for %s", worktree)
}

func (d *Docker) GenerateDockerfile(ctx context.Context, detection model.DetectionResult) (string, error) {
	if detection.HasDockerfile {
		data, err := os.ReadFile(detection.DockerfilePath)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}

	for _, det := range detectors {
		if det.language == detection.Language {
			return strings.ReplaceAll(det.dockerfile, "{{ENTRYPOINT}}", detection.Entrypoint), nil
		}
	}
	return "", fmt.Errorf("containerbuild: no Dockerfile template for language %q", detection.Language)
}

// Build tars contextDir, injects dockerfile as "Dockerfile" in the archive
// root, and streams the result through the docker build API, forwarding each
// output line to sink.
func (d *Docker) Build(ctx context.Context, contextDir, imageTag, dockerfile string, sink ports.ProgressSink) (model.BuildArtifact, error) {
	archive, err := tarContext(contextDir, dockerfile)
	if err != nil {
		return model.BuildArtifact{}, err
	}

	resp, err := d.cli.ImageBuild(ctx, archive, build.ImageBuildOptions{
		Tags:       []string{imageTag},
		Dockerfile: "Dockerfile",
		Remove:     true,
	})
	if err != nil {
		return model.BuildArtifact{}, fmt.Errorf("image build: %w", err)
	}
	defer resp.Body.Close()

	if err := streamProgress(resp.Body, sink); err != nil {
		return model.BuildArtifact{}, err
	}

	inspect, err := d.cli.ImageInspect(ctx, imageTag)
	if err != nil {
		return model.BuildArtifact{}, fmt.Errorf("inspecting built image: %w", err)
	}

	provenance := model.ProvenanceGenerated
	if strings.HasSuffix(dockerfile, "# repository-provided") {
		provenance = model.ProvenanceRepository
	}

	return model.BuildArtifact{
		ImageTag:             imageTag,
		ImageDigest:          inspect.ID,
		SizeBytes:            inspect.Size,
		DockerfileProvenance: provenance,
		Layers:               len(inspect.RootFS.Layers),
	}, nil
}

func tarContext(contextDir, dockerfile string) (io.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	err := filepath.Walk(contextDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		rel, err := filepath.Rel(contextDir, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		hdr := &tar.Header{Name: rel, Mode: 0o644, Size: int64(len(data))}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		_, err = tw.Write(data)
		return err
	})
	if err != nil {
		return nil, err
	}

	hdr := &tar.Header{Name: "Dockerfile", Mode: 0o644, Size: int64(len(dockerfile))}
	if err := tw.WriteHeader(hdr); err != nil {
		return nil, err
	}
	if _, err := tw.Write([]byte(dockerfile)); err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
}

func streamProgress(r io.Reader, sink ports.ProgressSink) error {
	buf := make([]byte, 4096)
	var line strings.Builder
	for {
		n, err := r.Read(buf)
		for _, b := range buf[:n] {
			if b == '\n' {
				if sink != nil && line.Len() > 0 {
					sink.Progress(line.String())
				}
				line.Reset()
				continue
			}
			line.WriteByte(b)
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
