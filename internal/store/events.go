package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"deployctl/internal/model"
)

func (s *SQLStore) AppendEvent(ctx context.Context, event model.DeploymentEvent) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return err
	}
	q := `
INSERT INTO events (deployment_id, seq, event_type, occurred_at, payload)
VALUES (` + s.placeholder(1) + `, ` + s.placeholder(2) + `, ` + s.placeholder(3) + `, ` + s.placeholder(4) + `, ` + s.placeholder(5) + `)
ON CONFLICT (deployment_id, seq) DO NOTHING
`
	_, err = s.db.ExecContext(ctx, q, event.DeploymentID, event.Seq, string(event.Type),
		event.Timestamp.UTC().Format(time.RFC3339Nano), string(payload))
	return err
}

func (s *SQLStore) ListEvents(ctx context.Context, deploymentID string, afterSeq uint64) ([]model.DeploymentEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT deployment_id, seq, event_type, occurred_at, payload
FROM events WHERE deployment_id = `+s.placeholder(1)+` AND seq > `+s.placeholder(2)+`
ORDER BY seq ASC`, deploymentID, afterSeq)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.DeploymentEvent
	for rows.Next() {
		var e model.DeploymentEvent
		var eventType, occurredAt, payload string
		if err := rows.Scan(&e.DeploymentID, &e.Seq, &eventType, &occurredAt, &payload); err != nil {
			return nil, err
		}
		e.Type = model.EventType(eventType)
		t, err := time.Parse(time.RFC3339Nano, occurredAt)
		if err != nil {
			return nil, err
		}
		e.Timestamp = t
		var p interface{}
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return nil, err
		}
		e.Payload = p
		out = append(out, e)
	}
	return out, rows.Err()
}

// NextSeq is the durable, cross-process source of truth for per-deployment
// sequencing: a dedicated counter row advanced inside a transaction, so two
// workers racing to append an event for the same deployment_id (which §8
// invariant 2 forbids in steady state, but a retried worker after a crash
// can transiently attempt) never hand out the same seq twice.
func (s *SQLStore) NextSeq(ctx context.Context, deploymentID string) (uint64, error) {
	var next uint64
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		q := `
INSERT INTO seq_counters (deployment_id, counter) VALUES (` + s.placeholder(1) + `, 1)
ON CONFLICT (deployment_id) DO UPDATE SET counter = seq_counters.counter + 1
`
		if _, err := tx.ExecContext(ctx, q, deploymentID); err != nil {
			return err
		}
		return tx.QueryRowContext(ctx, `SELECT counter FROM seq_counters WHERE deployment_id = `+s.placeholder(1), deploymentID).Scan(&next)
	})
	return next, err
}
