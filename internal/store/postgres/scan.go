package postgres

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/lib/pq"

	"github.com/groblegark/relay/internal/model"
)

// scannable abstracts over *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.WorkflowRun, error) {
	var (
		r          model.WorkflowRun
		event      string
		status     string
		createdBy  sql.NullString
		startedAt  sql.NullTime
		finishedAt sql.NullTime
	)
	err := row.Scan(
		&r.ID, &r.Workflow, &event, &r.Branch, &r.CommitSHA, &status,
		&r.CreatedAt, &createdBy, &startedAt, &finishedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Event = model.EventKind(event)
	r.Status = model.RunStatus(status)
	r.CreatedBy = createdBy.String
	if startedAt.Valid {
		r.StartedAt = &startedAt.Time
	}
	if finishedAt.Valid {
		r.FinishedAt = &finishedAt.Time
	}
	return &r, nil
}

func scanRunWithTotal(row scannable) (*model.WorkflowRun, int, error) {
	var (
		total      int
		r          model.WorkflowRun
		event      string
		status     string
		createdBy  sql.NullString
		startedAt  sql.NullTime
		finishedAt sql.NullTime
	)
	err := row.Scan(
		&total,
		&r.ID, &r.Workflow, &event, &r.Branch, &r.CommitSHA, &status,
		&r.CreatedAt, &createdBy, &startedAt, &finishedAt,
	)
	if err != nil {
		return nil, 0, err
	}
	r.Event = model.EventKind(event)
	r.Status = model.RunStatus(status)
	r.CreatedBy = createdBy.String
	if startedAt.Valid {
		r.StartedAt = &startedAt.Time
	}
	if finishedAt.Valid {
		r.FinishedAt = &finishedAt.Time
	}
	return &r, total, nil
}

func scanStageResults(rows *sql.Rows) ([]*model.StageResult, error) {
	var results []*model.StageResult
	for rows.Next() {
		var (
			sr         model.StageResult
			outcome    string
			logRef     sql.NullString
			startedAt  sql.NullTime
			finishedAt sql.NullTime
		)
		err := rows.Scan(&sr.RunID, &sr.Name, &outcome, &logRef, &startedAt, &finishedAt)
		if err != nil {
			return nil, err
		}
		sr.Outcome = model.StageOutcome(outcome)
		sr.LogRef = logRef.String
		if startedAt.Valid {
			sr.StartedAt = &startedAt.Time
		}
		if finishedAt.Valid {
			sr.FinishedAt = &finishedAt.Time
		}
		results = append(results, &sr)
	}
	return results, rows.Err()
}

func scanReviews(rows *sql.Rows) ([]*model.Review, error) {
	var reviews []*model.Review
	for rows.Next() {
		var rv model.Review
		err := rows.Scan(&rv.ID, &rv.Branch, &rv.CommitSHA, &rv.Reviewer, &rv.CreatedAt)
		if err != nil {
			return nil, err
		}
		reviews = append(reviews, &rv)
	}
	return reviews, rows.Err()
}

func scanProtection(row scannable) (*model.BranchProtection, error) {
	var p model.BranchProtection
	err := row.Scan(
		&p.Branch,
		pq.Array(&p.RequiredChecks),
		&p.RequiredApprovals,
		&p.DismissStale,
		pq.Array(&p.RestrictPushers),
		&p.AllowForcePush,
		&p.AllowDeletion,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func scanArtifact(row scannable) (*model.Artifact, error) {
	var a model.Artifact
	err := row.Scan(&a.ID, &a.RunID, &a.Name, &a.StorageKey, &a.SizeBytes, &a.CreatedAt, &a.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func scanArtifacts(rows *sql.Rows) ([]*model.Artifact, error) {
	var artifacts []*model.Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, a)
	}
	return artifacts, rows.Err()
}

func scanEvents(rows *sql.Rows) ([]*model.Event, error) {
	var events []*model.Event
	for rows.Next() {
		var (
			e       model.Event
			actor   sql.NullString
			payload []byte
		)
		err := rows.Scan(&e.ID, &e.Topic, &e.RunID, &actor, &payload, &e.CreatedAt)
		if err != nil {
			return nil, err
		}
		e.Actor = actor.String
		e.Payload = json.RawMessage(payload)
		events = append(events, &e)
	}
	return events, rows.Err()
}

// nullTimePtr converts a *time.Time to a driver-friendly NULL when nil.
func nullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
