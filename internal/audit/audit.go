// Package audit is the Audit Store Gateway (C3): an append-only write path
// in front of the Store port that assigns durable sequence numbers, redacts
// secrets before anything touches disk, and satisfies idempotent writes by
// natural key so a retried phase never double-records (§4.3, §8 invariant 8).
// It also implements eventbus.AuditWriter so the Event Bus's synchronous
// write-through lands here.
package audit

import (
	"context"

	"deployctl/internal/model"
	"deployctl/internal/ports"
	"deployctl/internal/secrets"
)

// Gateway wraps a Store with redaction and sequencing.
type Gateway struct {
	store    ports.Store
	redactor *secrets.Redactor
}

// New constructs a Gateway. redactor may be nil, in which case a Redactor
// with the default patterns is used.
func New(store ports.Store, redactor *secrets.Redactor) (*Gateway, error) {
	if redactor == nil {
		var err error
		redactor, err = secrets.NewRedactor(nil)
		if err != nil {
			return nil, err
		}
	}
	return &Gateway{store: store, redactor: redactor}, nil
}

// NextSeq delegates to the Store's durable per-deployment counter.
func (g *Gateway) NextSeq(ctx context.Context, deploymentID string) (uint64, error) {
	return g.store.NextSeq(ctx, deploymentID)
}

// WriteEvent satisfies eventbus.AuditWriter: redact free-text fields, then
// append. AppendEvent is idempotent by (deployment_id, seq) at the Store
// layer, so a redelivered event from a crashed worker's retry is a no-op.
func (g *Gateway) WriteEvent(ctx context.Context, event model.DeploymentEvent) error {
	event.Payload = g.redactPayload(event.Payload)
	return g.store.AppendEvent(ctx, event)
}

// ListEvents returns the durable event log after afterSeq, for a driver that
// reconnects and needs to replay the tail (§6).
func (g *Gateway) ListEvents(ctx context.Context, deploymentID string, afterSeq uint64) ([]model.DeploymentEvent, error) {
	return g.store.ListEvents(ctx, deploymentID, afterSeq)
}

// PutDeployment writes the Coordinator's sole-writer row. Terminal statuses
// are not re-writable; the Coordinator is responsible for never calling this
// again once a record reaches a terminal status (§8 invariant 4), but the
// Gateway defends the invariant here too since it's the gateway's job to be
// the last line of defense before disk.
func (g *Gateway) PutDeployment(ctx context.Context, rec model.DeploymentRecord) error {
	existing, err := g.store.GetDeployment(ctx, rec.DeploymentID)
	if err == nil && existing.Status.Terminal() {
		return ErrTerminalImmutable
	}
	rec.FailureReason = g.redactor.Redact(rec.FailureReason)
	rec.RollbackReason = g.redactor.Redact(rec.RollbackReason)
	return g.store.PutDeployment(ctx, rec)
}

func (g *Gateway) GetDeployment(ctx context.Context, deploymentID string) (model.DeploymentRecord, error) {
	return g.store.GetDeployment(ctx, deploymentID)
}

func (g *Gateway) LatestDeployedForInstance(ctx context.Context, instanceID string) (model.DeploymentRecord, bool, error) {
	return g.store.LatestDeployedForInstance(ctx, instanceID)
}

// PutPhaseRecord is idempotent by (deployment_id, phase, attempt): writing
// the same attempt twice (a crash between commit and ack, then a replay)
// overwrites in place rather than creating a duplicate row.
func (g *Gateway) PutPhaseRecord(ctx context.Context, rec model.PhaseRecord) error {
	rec.Diagnostic = g.redactor.Redact(rec.Diagnostic)
	return g.store.PutPhaseRecord(ctx, rec)
}

func (g *Gateway) GetPhaseRecord(ctx context.Context, deploymentID string, phase model.Phase, attempt int) (model.PhaseRecord, bool, error) {
	return g.store.GetPhaseRecord(ctx, deploymentID, phase, attempt)
}

func (g *Gateway) PutSecurityDecision(ctx context.Context, deploymentID string, d model.SecurityDecision) error {
	d.Reasoning = g.redactor.Redact(d.Reasoning)
	return g.store.PutSecurityDecision(ctx, deploymentID, d)
}

func (g *Gateway) PutBuildArtifact(ctx context.Context, deploymentID string, a model.BuildArtifact) error {
	return g.store.PutBuildArtifact(ctx, deploymentID, a)
}

func (g *Gateway) PutHealthSample(ctx context.Context, deploymentID string, s model.HealthSample) error {
	s.Error = g.redactor.Redact(s.Error)
	return g.store.PutHealthSample(ctx, deploymentID, s)
}

func (g *Gateway) AppendEvent(ctx context.Context, event model.DeploymentEvent) error {
	return g.WriteEvent(ctx, event)
}

// redactPayload walks the handful of payload shapes that carry a free-text
// field and redacts it; everything else passes through unchanged since its
// fields are closed-set enums or numbers, not operator-supplied text.
func (g *Gateway) redactPayload(payload interface{}) interface{} {
	switch p := payload.(type) {
	case model.PhaseProgressPayload:
		p.Message = g.redactor.Redact(p.Message)
		return p
	case model.PhaseFailedPayload:
		p.Detail = g.redactor.Redact(p.Detail)
		return p
	case model.RollbackStartedPayload:
		p.Reason = g.redactor.Redact(p.Reason)
		return p
	case model.StatusChangedPayload:
		p.Reason = g.redactor.Redact(p.Reason)
		return p
	case model.LogLinePayload:
		p.Line = g.redactor.Redact(p.Line)
		return p
	case model.HealthSampledPayload:
		p.Sample.Error = g.redactor.Redact(p.Sample.Error)
		return p
	default:
		return payload
	}
}

// ErrTerminalImmutable is returned when something attempts to overwrite a
// DeploymentRecord that has already reached a terminal status.
var ErrTerminalImmutable = terminalImmutableError{}

type terminalImmutableError struct{}

func (terminalImmutableError) Error() string {
	return "audit: deployment record is terminal and immutable"
}
