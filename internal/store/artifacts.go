package store

import (
	"context"
	"time"

	"deployctl/internal/model"
)

func (s *SQLStore) PutSecurityDecision(ctx context.Context, deploymentID string, d model.SecurityDecision) error {
	q := `
INSERT INTO security_decisions (deployment_id, total, critical, high, medium, low, risk_score, decision, reasoning, scanned_at)
VALUES (` + s.placeholder(1) + `, ` + s.placeholder(2) + `, ` + s.placeholder(3) + `, ` + s.placeholder(4) + `, ` + s.placeholder(5) + `, ` + s.placeholder(6) + `, ` + s.placeholder(7) + `, ` + s.placeholder(8) + `, ` + s.placeholder(9) + `, ` + s.placeholder(10) + `)
ON CONFLICT (deployment_id) DO UPDATE SET
	total = excluded.total, critical = excluded.critical, high = excluded.high, medium = excluded.medium, low = excluded.low,
	risk_score = excluded.risk_score, decision = excluded.decision, reasoning = excluded.reasoning, scanned_at = excluded.scanned_at
`
	_, err := s.db.ExecContext(ctx, q, deploymentID, d.Total, d.Critical, d.High, d.Medium, d.Low,
		d.RiskScore, string(d.Decision), d.Reasoning, d.ScannedAt.UTC().Format(time.RFC3339Nano))
	return err
}

func (s *SQLStore) PutBuildArtifact(ctx context.Context, deploymentID string, a model.BuildArtifact) error {
	q := `
INSERT INTO build_artifacts (deployment_id, image_tag, image_digest, size_bytes, base_image, detected_language, detected_framework, dockerfile_provenance, layers, build_duration_ms)
VALUES (` + s.placeholder(1) + `, ` + s.placeholder(2) + `, ` + s.placeholder(3) + `, ` + s.placeholder(4) + `, ` + s.placeholder(5) + `, ` + s.placeholder(6) + `, ` + s.placeholder(7) + `, ` + s.placeholder(8) + `, ` + s.placeholder(9) + `, ` + s.placeholder(10) + `)
ON CONFLICT (deployment_id) DO UPDATE SET
	image_tag = excluded.image_tag, image_digest = excluded.image_digest, size_bytes = excluded.size_bytes,
	base_image = excluded.base_image, detected_language = excluded.detected_language, detected_framework = excluded.detected_framework,
	dockerfile_provenance = excluded.dockerfile_provenance, layers = excluded.layers, build_duration_ms = excluded.build_duration_ms
`
	_, err := s.db.ExecContext(ctx, q, deploymentID, a.ImageTag, a.ImageDigest, a.SizeBytes, a.BaseImage,
		a.DetectedLanguage, a.DetectedFramework, string(a.DockerfileProvenance), a.Layers, a.BuildDuration.Milliseconds())
	return err
}

func (s *SQLStore) PutHealthSample(ctx context.Context, deploymentID string, sample model.HealthSample) error {
	q := `
INSERT INTO health_samples (deployment_id, attempt, sampled_at, status_code, latency_ms, healthy, error)
VALUES (` + s.placeholder(1) + `, ` + s.placeholder(2) + `, ` + s.placeholder(3) + `, ` + s.placeholder(4) + `, ` + s.placeholder(5) + `, ` + s.placeholder(6) + `, ` + s.placeholder(7) + `)
`
	healthy := 0
	if sample.Healthy {
		healthy = 1
	}
	_, err := s.db.ExecContext(ctx, q, deploymentID, sample.Attempt, sample.Timestamp.UTC().Format(time.RFC3339Nano),
		sample.StatusCode, sample.LatencyMS, healthy, sample.Error)
	return err
}
