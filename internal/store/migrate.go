package store

import "context"

// schema is intentionally driver-portable: no serial/identity columns, no
// jsonb — every driver-specific type is avoided in favor of TEXT/INTEGER/REAL
// so the same statements run against sqlite3 and postgres unchanged, the way
// the teacher's own ent-generated schema stayed driver-agnostic.
const schema = `
CREATE TABLE IF NOT EXISTS deployments (
	deployment_id      TEXT PRIMARY KEY,
	job_id             TEXT NOT NULL,
	instance_id        TEXT NOT NULL,
	status             TEXT NOT NULL,
	previous_image_tag TEXT NOT NULL DEFAULT '',
	current_image_tag  TEXT NOT NULL DEFAULT '',
	started_at         TEXT NOT NULL,
	completed_at       TEXT,
	failure_reason     TEXT NOT NULL DEFAULT '',
	failure_kind       TEXT NOT NULL DEFAULT '',
	rollback_reason    TEXT NOT NULL DEFAULT '',
	phase_durations    TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_deployments_instance ON deployments(instance_id, started_at);

CREATE TABLE IF NOT EXISTS phase_records (
	deployment_id TEXT NOT NULL,
	phase         TEXT NOT NULL,
	attempt       INTEGER NOT NULL,
	status        TEXT NOT NULL,
	started_at    TEXT NOT NULL,
	finished_at   TEXT,
	diagnostic    TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (deployment_id, phase, attempt)
);

CREATE TABLE IF NOT EXISTS security_decisions (
	deployment_id TEXT PRIMARY KEY,
	total         INTEGER NOT NULL,
	critical      INTEGER NOT NULL,
	high          INTEGER NOT NULL,
	medium        INTEGER NOT NULL,
	low           INTEGER NOT NULL,
	risk_score    REAL NOT NULL,
	decision      TEXT NOT NULL,
	reasoning     TEXT NOT NULL DEFAULT '',
	scanned_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS build_artifacts (
	deployment_id        TEXT PRIMARY KEY,
	image_tag            TEXT NOT NULL,
	image_digest         TEXT NOT NULL DEFAULT '',
	size_bytes           INTEGER NOT NULL DEFAULT 0,
	base_image           TEXT NOT NULL DEFAULT '',
	detected_language    TEXT NOT NULL DEFAULT '',
	detected_framework   TEXT NOT NULL DEFAULT '',
	dockerfile_provenance TEXT NOT NULL DEFAULT '',
	layers               INTEGER NOT NULL DEFAULT 0,
	build_duration_ms    INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS health_samples (
	deployment_id TEXT NOT NULL,
	attempt       INTEGER NOT NULL,
	sampled_at    TEXT NOT NULL,
	status_code   INTEGER NOT NULL,
	latency_ms    INTEGER NOT NULL,
	healthy       INTEGER NOT NULL,
	error         TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_health_samples_deployment ON health_samples(deployment_id, attempt);

CREATE TABLE IF NOT EXISTS seq_counters (
	deployment_id TEXT PRIMARY KEY,
	counter       INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
	deployment_id TEXT NOT NULL,
	seq           INTEGER NOT NULL,
	event_type    TEXT NOT NULL,
	occurred_at   TEXT NOT NULL,
	payload       TEXT NOT NULL DEFAULT '{}',
	PRIMARY KEY (deployment_id, seq)
);
`

func (s *SQLStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}
