package model

import "time"

// EnvVar is one environment variable carried by a DeploymentJob. No store row
// or event payload carries env vars. Values marked Secret are not encrypted
// anywhere in this module: the audit gateway never sees them, nothing calls
// secrets.EncryptEnvVars, and a queue backend keeps the job's values as
// submitted.
type EnvVar struct {
	Key    string `json:"key"`
	Value  string `json:"value"`
	Secret bool   `json:"secret,omitempty"`
}

// DeploymentJob is the unit of work a driver submits (§3, §6).
type DeploymentJob struct {
	JobID        string      `json:"job_id"`
	DeploymentID string      `json:"deployment_id"`
	Repository   string      `json:"repository"`
	Ref          string      `json:"ref"`
	CommitSHA    string      `json:"commit_sha,omitempty"`
	InstanceID   string      `json:"instance_id"`
	Environment  Environment `json:"environment"`
	Strategy     Strategy    `json:"strategy"`
	Port         int         `json:"port"`
	HealthPath   string      `json:"health_path"`
	EnvVars      []EnvVar    `json:"env_vars"`
	Priority     int         `json:"priority"`
	SubmittedAt  time.Time   `json:"submitted_at"`
	TriggeredBy  TriggeredBy `json:"triggered_by"`
	RetryCount   int         `json:"retry_count"`
}

// PhaseDuration records how long one phase took, keyed by Phase.
type PhaseDuration struct {
	Phase    Phase         `json:"phase"`
	Duration time.Duration `json:"duration"`
}

// DeploymentRecord is the Coordinator's sole-writer row for a deployment (§3).
type DeploymentRecord struct {
	DeploymentID      string            `json:"deployment_id"`
	JobID             string            `json:"job_id"`
	InstanceID        string            `json:"instance_id"`
	Status            DeploymentStatus  `json:"status"`
	PreviousImageTag  string            `json:"previous_image_tag,omitempty"`
	CurrentImageTag   string            `json:"current_image_tag,omitempty"`
	StartedAt         time.Time         `json:"started_at"`
	CompletedAt       *time.Time        `json:"completed_at,omitempty"`
	PhaseDurations    []PhaseDuration   `json:"phase_durations,omitempty"`
	FailureReason     string            `json:"failure_reason,omitempty"`
	FailureKind       ErrorKind         `json:"failure_kind,omitempty"`
	RollbackReason    string            `json:"rollback_reason,omitempty"`
}

// PhaseRecord is one executor invocation (§3). Idempotent natural key is
// (DeploymentID, Phase, Attempt).
type PhaseRecord struct {
	DeploymentID string      `json:"deployment_id"`
	Phase        Phase       `json:"phase"`
	Attempt      int         `json:"attempt"`
	Status       PhaseStatus `json:"status"`
	StartedAt    time.Time   `json:"started_at"`
	FinishedAt   *time.Time  `json:"finished_at,omitempty"`
	Diagnostic   string      `json:"diagnostic,omitempty"`
}

// SecurityDecision is the computed outcome of SecurityPhase's scan (§3).
type SecurityDecision struct {
	Total     int             `json:"total"`
	Critical  int             `json:"critical"`
	High      int             `json:"high"`
	Medium    int             `json:"medium"`
	Low       int             `json:"low"`
	RiskScore float64         `json:"risk_score"`
	Decision  SecurityVerdict `json:"decision"`
	Reasoning string          `json:"reasoning"`
	ScannedAt time.Time       `json:"scanned_at"`
}

// ScanReport is returned by the ImageScanner port; SecurityDecision is derived
// from it by policy (§4.6.1).
type ScanReport struct {
	Critical int       `json:"critical"`
	High     int       `json:"high"`
	Medium   int       `json:"medium"`
	Low      int       `json:"low"`
	Partial  bool      `json:"partial"`
	ScanTime time.Time `json:"scan_time"`
}

// BuildArtifact is the output of ContainerBuilder.build (§3).
type BuildArtifact struct {
	ImageTag             string           `json:"image_tag"`
	ImageDigest          string           `json:"image_digest"`
	SizeBytes            int64            `json:"size_bytes"`
	BaseImage            string           `json:"base_image"`
	DetectedLanguage     string           `json:"detected_language"`
	DetectedFramework    string           `json:"detected_framework"`
	DockerfileProvenance DockerProvenance `json:"dockerfile_provenance"`
	Layers               int              `json:"layers"`
	BuildDuration        time.Duration    `json:"build_duration"`
}

// DetectionResult is ContainerBuilder.detect's output.
type DetectionResult struct {
	Language         string
	Framework        string
	Entrypoint       string
	HasDockerfile    bool
	DockerfilePath   string
}

// HealthSample is one probe observation (§3).
type HealthSample struct {
	Timestamp  time.Time `json:"timestamp"`
	Attempt    int       `json:"attempt"`
	StatusCode int       `json:"status_code"`
	LatencyMS  int64     `json:"latency_ms"`
	Healthy    bool      `json:"healthy"`
	Error      string    `json:"error,omitempty"`
}

// Lock describes one held distributed-lock lease (§3).
type Lock struct {
	ResourceKey string    `json:"resource_key"`
	OwnerID     string    `json:"owner_id"`
	AcquiredAt  time.Time `json:"acquired_at"`
	TTL         time.Duration
	LeaseEpoch  int64 `json:"lease_epoch"`
}

// QueueEntry is one in-flight item of the Deployment Queue (§3).
type QueueEntry struct {
	EnvelopeID      string        `json:"envelope_id"`
	Job             DeploymentJob `json:"job_payload"`
	EnqueuedAt      time.Time     `json:"enqueued_at"`
	ProcessingOwner string        `json:"processing_owner,omitempty"`
	VisibleAfter    time.Time     `json:"visible_after"`
	PriorityBand    int           `json:"priority_band"`
}
