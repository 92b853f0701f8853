package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"deployctl/internal/model"
)

func (s *SQLStore) PutPhaseRecord(ctx context.Context, rec model.PhaseRecord) error {
	var finishedAt interface{}
	if rec.FinishedAt != nil {
		finishedAt = rec.FinishedAt.UTC().Format(time.RFC3339Nano)
	}

	q := `
INSERT INTO phase_records (deployment_id, phase, attempt, status, started_at, finished_at, diagnostic)
VALUES (` + s.placeholder(1) + `, ` + s.placeholder(2) + `, ` + s.placeholder(3) + `, ` + s.placeholder(4) + `, ` + s.placeholder(5) + `, ` + s.placeholder(6) + `, ` + s.placeholder(7) + `)
ON CONFLICT (deployment_id, phase, attempt) DO UPDATE SET
	status = excluded.status,
	finished_at = excluded.finished_at,
	diagnostic = excluded.diagnostic
`
	_, err := s.db.ExecContext(ctx, q, rec.DeploymentID, string(rec.Phase), rec.Attempt, string(rec.Status),
		rec.StartedAt.UTC().Format(time.RFC3339Nano), finishedAt, rec.Diagnostic)
	return err
}

func (s *SQLStore) GetPhaseRecord(ctx context.Context, deploymentID string, phase model.Phase, attempt int) (model.PhaseRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT deployment_id, phase, attempt, status, started_at, finished_at, diagnostic
FROM phase_records WHERE deployment_id = `+s.placeholder(1)+` AND phase = `+s.placeholder(2)+` AND attempt = `+s.placeholder(3),
		deploymentID, string(phase), attempt)

	var rec model.PhaseRecord
	var p, status, startedAt string
	var finishedAt sql.NullString

	if err := row.Scan(&rec.DeploymentID, &p, &rec.Attempt, &status, &startedAt, &finishedAt, &rec.Diagnostic); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.PhaseRecord{}, false, nil
		}
		return model.PhaseRecord{}, false, err
	}

	rec.Phase = model.Phase(p)
	rec.Status = model.PhaseStatus(status)
	t, err := time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return model.PhaseRecord{}, false, err
	}
	rec.StartedAt = t
	if finishedAt.Valid {
		ft, err := time.Parse(time.RFC3339Nano, finishedAt.String)
		if err != nil {
			return model.PhaseRecord{}, false, err
		}
		rec.FinishedAt = &ft
	}
	return rec, true, nil
}
