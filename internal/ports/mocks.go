package ports

import (
	"context"
	"time"

	"deployctl/internal/model"
)

// MockVCS is a function-field mock in the teacher's MockRuntime style
// (internal/runner/interface.go): set only the funcs a test needs, leave the
// rest nil and let the zero-value path return a sentinel error.
type MockVCS struct {
	CloneFunc      func(ctx context.Context, repository, ref, targetDir string) (string, string, error)
	ResolveSHAFunc func(ctx context.Context, repository, ref string) (string, error)
}

func (m *MockVCS) Clone(ctx context.Context, repository, ref, targetDir string) (string, string, error) {
	if m.CloneFunc != nil {
		return m.CloneFunc(ctx, repository, ref, targetDir)
	}
	return "", "", ErrVCSUnreachable
}

func (m *MockVCS) ResolveSHA(ctx context.Context, repository, ref string) (string, error) {
	if m.ResolveSHAFunc != nil {
		return m.ResolveSHAFunc(ctx, repository, ref)
	}
	return "", ErrVCSUnreachable
}

// MockImageScanner is a function-field mock for ImageScanner.
type MockImageScanner struct {
	ScanFilesystemFunc func(ctx context.Context, path, policy string, timeout time.Duration) (model.ScanReport, error)
	ScanImageFunc      func(ctx context.Context, ref, policy string, timeout time.Duration) (model.ScanReport, error)
}

func (m *MockImageScanner) ScanFilesystem(ctx context.Context, path, policy string, timeout time.Duration) (model.ScanReport, error) {
	if m.ScanFilesystemFunc != nil {
		return m.ScanFilesystemFunc(ctx, path, policy, timeout)
	}
	return model.ScanReport{}, nil
}

func (m *MockImageScanner) ScanImage(ctx context.Context, ref, policy string, timeout time.Duration) (model.ScanReport, error) {
	if m.ScanImageFunc != nil {
		return m.ScanImageFunc(ctx, ref, policy, timeout)
	}
	return model.ScanReport{}, nil
}

// MockContainerBuilder is a function-field mock for ContainerBuilder.
type MockContainerBuilder struct {
	DetectFunc             func(ctx context.Context, worktree string) (model.DetectionResult, error)
	GenerateDockerfileFunc func(ctx context.Context, detection model.DetectionResult) (string, error)
	BuildFunc              func(ctx context.Context, contextDir, imageTag, dockerfile string, sink ProgressSink) (model.BuildArtifact, error)
}

func (m *MockContainerBuilder) Detect(ctx context.Context, worktree string) (model.DetectionResult, error) {
	if m.DetectFunc != nil {
		return m.DetectFunc(ctx, worktree)
	}
	return model.DetectionResult{}, nil
}

func (m *MockContainerBuilder) GenerateDockerfile(ctx context.Context, detection model.DetectionResult) (string, error) {
	if m.GenerateDockerfileFunc != nil {
		return m.GenerateDockerfileFunc(ctx, detection)
	}
	return "", nil
}

func (m *MockContainerBuilder) Build(ctx context.Context, contextDir, imageTag, dockerfile string, sink ProgressSink) (model.BuildArtifact, error) {
	if m.BuildFunc != nil {
		return m.BuildFunc(ctx, contextDir, imageTag, dockerfile, sink)
	}
	return model.BuildArtifact{}, nil
}

// MockRemoteExecutor is a function-field mock for RemoteExecutor.
type MockRemoteExecutor struct {
	RunFunc func(ctx context.Context, instanceID, commandID, script string, timeout time.Duration) (RunResult, error)
	calls   []string
}

func (m *MockRemoteExecutor) Run(ctx context.Context, instanceID, commandID, script string, timeout time.Duration) (RunResult, error) {
	m.calls = append(m.calls, commandID)
	if m.RunFunc != nil {
		return m.RunFunc(ctx, instanceID, commandID, script, timeout)
	}
	return RunResult{ExitCode: 0}, nil
}

// Calls returns every commandID seen so far, letting idempotence tests assert
// a retried commandID was observed exactly once worth of distinct ids.
func (m *MockRemoteExecutor) Calls() []string { return append([]string(nil), m.calls...) }

// MockHealthProber is a function-field mock for HealthProber.
type MockHealthProber struct {
	ProbeFunc func(ctx context.Context, url string, timeout time.Duration) model.HealthSample
}

func (m *MockHealthProber) Probe(ctx context.Context, url string, timeout time.Duration) model.HealthSample {
	if m.ProbeFunc != nil {
		return m.ProbeFunc(ctx, url, timeout)
	}
	return model.HealthSample{Healthy: true, StatusCode: 200}
}

// SystemClock is the real-time Clock implementation.
type SystemClock struct{ start time.Time }

func NewSystemClock() *SystemClock { return &SystemClock{start: time.Now()} }
func (c *SystemClock) Now() time.Time          { return time.Now() }
func (c *SystemClock) Monotonic() time.Duration { return time.Since(c.start) }

// FakeClock is a test Clock with explicit advance control.
type FakeClock struct {
	current time.Time
	mono    time.Duration
}

func NewFakeClock(start time.Time) *FakeClock { return &FakeClock{current: start} }
func (c *FakeClock) Now() time.Time            { return c.current }
func (c *FakeClock) Monotonic() time.Duration  { return c.mono }
func (c *FakeClock) Advance(d time.Duration) {
	c.current = c.current.Add(d)
	c.mono += d
}
