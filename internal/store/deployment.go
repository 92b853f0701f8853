package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"deployctl/internal/model"
)

// ErrNotFound is returned by Get* lookups that find no row.
var ErrNotFound = errors.New("store: not found")

func (s *SQLStore) PutDeployment(ctx context.Context, rec model.DeploymentRecord) error {
	durations, err := json.Marshal(rec.PhaseDurations)
	if err != nil {
		return err
	}

	var completedAt interface{}
	if rec.CompletedAt != nil {
		completedAt = rec.CompletedAt.UTC().Format(time.RFC3339Nano)
	}

	q := `
INSERT INTO deployments (deployment_id, job_id, instance_id, status, previous_image_tag, current_image_tag, started_at, completed_at, failure_reason, failure_kind, rollback_reason, phase_durations)
VALUES (` + s.placeholder(1) + `, ` + s.placeholder(2) + `, ` + s.placeholder(3) + `, ` + s.placeholder(4) + `, ` + s.placeholder(5) + `, ` + s.placeholder(6) + `, ` + s.placeholder(7) + `, ` + s.placeholder(8) + `, ` + s.placeholder(9) + `, ` + s.placeholder(10) + `, ` + s.placeholder(11) + `, ` + s.placeholder(12) + `)
ON CONFLICT (deployment_id) DO UPDATE SET
	status = excluded.status,
	previous_image_tag = excluded.previous_image_tag,
	current_image_tag = excluded.current_image_tag,
	completed_at = excluded.completed_at,
	failure_reason = excluded.failure_reason,
	failure_kind = excluded.failure_kind,
	rollback_reason = excluded.rollback_reason,
	phase_durations = excluded.phase_durations
`
	_, err = s.db.ExecContext(ctx, q,
		rec.DeploymentID, rec.JobID, rec.InstanceID, string(rec.Status),
		rec.PreviousImageTag, rec.CurrentImageTag,
		rec.StartedAt.UTC().Format(time.RFC3339Nano), completedAt,
		rec.FailureReason, string(rec.FailureKind), rec.RollbackReason, string(durations))
	return err
}

func (s *SQLStore) GetDeployment(ctx context.Context, deploymentID string) (model.DeploymentRecord, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT deployment_id, job_id, instance_id, status, previous_image_tag, current_image_tag, started_at, completed_at, failure_reason, failure_kind, rollback_reason, phase_durations
FROM deployments WHERE deployment_id = `+s.placeholder(1), deploymentID)
	return scanDeploymentRow(row)
}

func scanDeploymentRow(row *sql.Row) (model.DeploymentRecord, error) {
	var rec model.DeploymentRecord
	var status, failureKind string
	var startedAt string
	var completedAt sql.NullString
	var durations string

	if err := row.Scan(&rec.DeploymentID, &rec.JobID, &rec.InstanceID, &status, &rec.PreviousImageTag, &rec.CurrentImageTag,
		&startedAt, &completedAt, &rec.FailureReason, &failureKind, &rec.RollbackReason, &durations); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.DeploymentRecord{}, ErrNotFound
		}
		return model.DeploymentRecord{}, err
	}

	rec.Status = model.DeploymentStatus(status)
	rec.FailureKind = model.ErrorKind(failureKind)
	t, err := time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return model.DeploymentRecord{}, err
	}
	rec.StartedAt = t
	if completedAt.Valid {
		ct, err := time.Parse(time.RFC3339Nano, completedAt.String)
		if err != nil {
			return model.DeploymentRecord{}, err
		}
		rec.CompletedAt = &ct
	}
	if err := json.Unmarshal([]byte(durations), &rec.PhaseDurations); err != nil {
		return model.DeploymentRecord{}, err
	}
	return rec, nil
}

func (s *SQLStore) LatestDeployedForInstance(ctx context.Context, instanceID string) (model.DeploymentRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT deployment_id, job_id, instance_id, status, previous_image_tag, current_image_tag, started_at, completed_at, failure_reason, failure_kind, rollback_reason, phase_durations
FROM deployments WHERE instance_id = `+s.placeholder(1)+` AND status = `+s.placeholder(2)+`
ORDER BY started_at DESC LIMIT 1`, instanceID, string(model.StatusDeployed))

	rec, err := scanDeploymentRow(row)
	if errors.Is(err, ErrNotFound) {
		return model.DeploymentRecord{}, false, nil
	}
	if err != nil {
		return model.DeploymentRecord{}, false, err
	}
	return rec, true, nil
}
