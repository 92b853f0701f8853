package model

import "time"

// EventType discriminates DeploymentEvent's tagged-union payloads (§3), the
// same "Type field next to Timestamp" shape the pubsub layer uses for bot and
// backtest events.
type EventType string

const (
	EventPhaseStarted   EventType = "phase_started"
	EventPhaseProgress  EventType = "phase_progress"
	EventPhaseCompleted EventType = "phase_completed"
	EventPhaseFailed    EventType = "phase_failed"
	EventHealthSampled  EventType = "health_sampled"
	EventRollbackStarted EventType = "rollback_started"
	EventStatusChanged  EventType = "status_changed"
	EventLogLine        EventType = "log_line"
	EventOverflow       EventType = "overflow"
	EventSnapshot       EventType = "snapshot"
)

// DeploymentEvent is the wire shape published to the Event Bus and written to
// the Audit Store. Seq is strictly increasing within a DeploymentID; gaps are
// never legal for a live subscriber (§4.2, §8 invariant 3).
type DeploymentEvent struct {
	DeploymentID string      `json:"deployment_id"`
	Seq          uint64      `json:"seq"`
	Type         EventType   `json:"type"`
	Timestamp    time.Time   `json:"timestamp"`
	Payload      interface{} `json:"payload"`
}

// PhaseStartedPayload accompanies EventPhaseStarted.
type PhaseStartedPayload struct {
	Phase   Phase `json:"phase"`
	Attempt int   `json:"attempt"`
}

// PhaseProgressPayload accompanies EventPhaseProgress (e.g. build log tail summaries).
type PhaseProgressPayload struct {
	Phase   Phase  `json:"phase"`
	Message string `json:"message"`
}

// PhaseCompletedPayload accompanies EventPhaseCompleted.
type PhaseCompletedPayload struct {
	Phase   Phase       `json:"phase"`
	Attempt int         `json:"attempt"`
	Result  interface{} `json:"result,omitempty"`
}

// PhaseFailedPayload accompanies EventPhaseFailed.
type PhaseFailedPayload struct {
	Phase     Phase     `json:"phase"`
	Attempt   int       `json:"attempt"`
	Kind      ErrorKind `json:"kind"`
	Detail    string    `json:"detail"`
	Retryable bool      `json:"retryable"`
}

// HealthSampledPayload accompanies EventHealthSampled.
type HealthSampledPayload struct {
	Sample HealthSample `json:"sample"`
	Stage  string       `json:"stage,omitempty"`
}

// RollbackStartedPayload accompanies EventRollbackStarted.
type RollbackStartedPayload struct {
	Reason           string `json:"reason"`
	PreviousImageTag string `json:"previous_image_tag,omitempty"`
}

// StatusChangedPayload accompanies EventStatusChanged.
type StatusChangedPayload struct {
	From   DeploymentStatus `json:"from"`
	To     DeploymentStatus `json:"to"`
	Reason string           `json:"reason,omitempty"`
	Kind   ErrorKind        `json:"kind,omitempty"`
}

// LogLinePayload accompanies EventLogLine.
type LogLinePayload struct {
	Phase Phase  `json:"phase"`
	Line  string `json:"line"`
}

// SnapshotPayload is the synthetic first event of a subscribe stream (§6).
type SnapshotPayload struct {
	Record DeploymentRecord `json:"record"`
}
