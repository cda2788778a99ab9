package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/groblegark/relay/internal/model"
)

// runColumns is the column list used for SELECT statements on the runs table.
const runColumns = `id, workflow, event, branch, commit_sha, status,
	created_at, created_by, started_at, finished_at`

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryCreateRun(ctx context.Context, db executor, r *model.WorkflowRun) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO runs (
			id, workflow, event, branch, commit_sha, status,
			created_at, created_by, started_at, finished_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10
		)`,
		r.ID,
		r.Workflow,
		string(r.Event),
		r.Branch,
		r.CommitSHA,
		string(r.Status),
		r.CreatedAt,
		r.CreatedBy,
		nullTimePtr(r.StartedAt),
		nullTimePtr(r.FinishedAt),
	)
	return err
}

func queryGetRun(ctx context.Context, db executor, id string) (*model.WorkflowRun, error) {
	row := db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = $1`, id)
	r, err := scanRun(row)
	if err != nil {
		return nil, err
	}

	// Fetch stage results.
	stages, err := queryGetStageResults(ctx, db, id)
	if err != nil {
		return nil, err
	}
	r.Stages = stages

	return r, nil
}

func queryListRuns(ctx context.Context, db executor, filter model.RunFilter) ([]*model.WorkflowRun, int, error) {
	var (
		whereClauses []string
		args         []any
		argIdx       int
	)

	nextArg := func() string {
		argIdx++
		return fmt.Sprintf("$%d", argIdx)
	}

	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, s := range filter.Status {
			placeholders[i] = nextArg()
			args = append(args, string(s))
		}
		whereClauses = append(whereClauses, "status IN ("+strings.Join(placeholders, ", ")+")")
	}

	if len(filter.Event) > 0 {
		placeholders := make([]string, len(filter.Event))
		for i, e := range filter.Event {
			placeholders[i] = nextArg()
			args = append(args, string(e))
		}
		whereClauses = append(whereClauses, "event IN ("+strings.Join(placeholders, ", ")+")")
	}

	if filter.Branch != "" {
		whereClauses = append(whereClauses, "branch = "+nextArg())
		args = append(args, filter.Branch)
	}

	if filter.CommitSHA != "" {
		whereClauses = append(whereClauses, "commit_sha = "+nextArg())
		args = append(args, filter.CommitSHA)
	}

	if filter.Workflow != "" {
		whereClauses = append(whereClauses, "workflow = "+nextArg())
		args = append(args, filter.Workflow)
	}

	whereSQL := ""
	if len(whereClauses) > 0 {
		whereSQL = " WHERE " + strings.Join(whereClauses, " AND ")
	}

	// Single query with COUNT(*) OVER() to get total and rows atomically.
	dataQuery := "SELECT COUNT(*) OVER() AS total_count, " + runColumns + " FROM runs" + whereSQL + " ORDER BY " + parseSortClause(filter.Sort)

	if filter.Limit > 0 {
		dataQuery += " LIMIT " + nextArg()
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		dataQuery += " OFFSET " + nextArg()
		args = append(args, filter.Offset)
	}

	rows, err := db.QueryContext(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*model.WorkflowRun
	var total int
	for rows.Next() {
		r, t, err := scanRunWithTotal(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan runs: %w", err)
		}
		total = t
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("scan runs: %w", err)
	}

	return runs, total, nil
}

func queryMarkRunStarted(ctx context.Context, db executor, id string) error {
	res, err := db.ExecContext(ctx, `
		UPDATE runs SET status = 'running', started_at = NOW()
		WHERE id = $1 AND status = 'queued'`,
		id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func queryMarkRunFinished(ctx context.Context, db executor, id string, status model.RunStatus) (*model.WorkflowRun, error) {
	row := db.QueryRowContext(ctx, `
		UPDATE runs
		SET status = $2, finished_at = NOW()
		WHERE id = $1 AND finished_at IS NULL
		RETURNING `+runColumns,
		id, string(status),
	)
	r, err := scanRun(row)
	if err != nil {
		return nil, err
	}

	stages, err := queryGetStageResults(ctx, db, id)
	if err != nil {
		return nil, err
	}
	r.Stages = stages

	return r, nil
}

func queryPutStageResult(ctx context.Context, db executor, sr *model.StageResult) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO stage_results (run_id, name, outcome, log_ref, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (run_id, name) DO UPDATE SET
			outcome = $3, log_ref = $4, started_at = $5, finished_at = $6`,
		sr.RunID,
		sr.Name,
		string(sr.Outcome),
		sr.LogRef,
		nullTimePtr(sr.StartedAt),
		nullTimePtr(sr.FinishedAt),
	)
	return err
}

func queryGetStageResults(ctx context.Context, db executor, runID string) ([]*model.StageResult, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT run_id, name, outcome, log_ref, started_at, finished_at
		FROM stage_results
		WHERE run_id = $1
		ORDER BY started_at ASC NULLS LAST, name ASC`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStageResults(rows)
}

// queryGetChecks returns the latest outcome per stage name across all runs
// for the given branch and commit. The newest run wins when several runs
// reported the same check.
func queryGetChecks(ctx context.Context, db executor, branch, commitSHA string) (map[string]model.StageOutcome, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT DISTINCT ON (sr.name) sr.name, sr.outcome
		FROM stage_results sr
		JOIN runs r ON r.id = sr.run_id
		WHERE r.branch = $1 AND r.commit_sha = $2
		ORDER BY sr.name, r.created_at DESC`,
		branch, commitSHA,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	checks := make(map[string]model.StageOutcome)
	for rows.Next() {
		var name, outcome string
		if err := rows.Scan(&name, &outcome); err != nil {
			return nil, err
		}
		checks[name] = model.StageOutcome(outcome)
	}
	return checks, rows.Err()
}

func queryAddReview(ctx context.Context, db executor, rv *model.Review) error {
	return db.QueryRowContext(ctx, `
		INSERT INTO reviews (branch, commit_sha, reviewer)
		VALUES ($1, $2, $3)
		ON CONFLICT (branch, commit_sha, reviewer) DO UPDATE SET reviewer = $3
		RETURNING id, created_at`,
		rv.Branch, rv.CommitSHA, rv.Reviewer,
	).Scan(&rv.ID, &rv.CreatedAt)
}

func queryGetReviews(ctx context.Context, db executor, branch string) ([]*model.Review, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, branch, commit_sha, reviewer, created_at
		FROM reviews
		WHERE branch = $1
		ORDER BY created_at ASC`,
		branch,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReviews(rows)
}

func queryDismissStaleReviews(ctx context.Context, db executor, branch, headSHA string) (int, error) {
	res, err := db.ExecContext(ctx, `
		DELETE FROM reviews
		WHERE branch = $1 AND commit_sha <> $2`,
		branch, headSHA,
	)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

func querySetProtection(ctx context.Context, db executor, p *model.BranchProtection) error {
	return db.QueryRowContext(ctx, `
		INSERT INTO protections (
			branch, required_checks, required_approvals, dismiss_stale,
			restrict_pushers, allow_force_push, allow_deletion
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (branch) DO UPDATE SET
			required_checks = $2, required_approvals = $3, dismiss_stale = $4,
			restrict_pushers = $5, allow_force_push = $6, allow_deletion = $7,
			updated_at = NOW()
		RETURNING created_at, updated_at`,
		p.Branch,
		pq.Array(p.RequiredChecks),
		p.RequiredApprovals,
		p.DismissStale,
		pq.Array(p.RestrictPushers),
		p.AllowForcePush,
		p.AllowDeletion,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func queryGetProtection(ctx context.Context, db executor, branch string) (*model.BranchProtection, error) {
	row := db.QueryRowContext(ctx, `
		SELECT branch, required_checks, required_approvals, dismiss_stale,
			restrict_pushers, allow_force_push, allow_deletion, created_at, updated_at
		FROM protections WHERE branch = $1`, branch)
	return scanProtection(row)
}

func queryListProtections(ctx context.Context, db executor) ([]*model.BranchProtection, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT branch, required_checks, required_approvals, dismiss_stale,
			restrict_pushers, allow_force_push, allow_deletion, created_at, updated_at
		FROM protections ORDER BY branch`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var protections []*model.BranchProtection
	for rows.Next() {
		p, err := scanProtection(rows)
		if err != nil {
			return nil, err
		}
		protections = append(protections, p)
	}
	return protections, rows.Err()
}

func queryDeleteProtection(ctx context.Context, db executor, branch string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM protections WHERE branch = $1`, branch)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func queryCreateArtifact(ctx context.Context, db executor, a *model.Artifact) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO artifacts (id, run_id, name, storage_key, size_bytes, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.RunID, a.Name, a.StorageKey, a.SizeBytes, a.CreatedAt, a.ExpiresAt,
	)
	return err
}

func queryGetArtifact(ctx context.Context, db executor, id string) (*model.Artifact, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, run_id, name, storage_key, size_bytes, created_at, expires_at
		FROM artifacts WHERE id = $1`, id)
	return scanArtifact(row)
}

func queryListArtifacts(ctx context.Context, db executor, runID string) ([]*model.Artifact, error) {
	query := `
		SELECT id, run_id, name, storage_key, size_bytes, created_at, expires_at
		FROM artifacts`
	var args []any
	if runID != "" {
		query += ` WHERE run_id = $1`
		args = append(args, runID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanArtifacts(rows)
}

func queryListExpiredArtifacts(ctx context.Context, db executor, now time.Time) ([]*model.Artifact, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, run_id, name, storage_key, size_bytes, created_at, expires_at
		FROM artifacts WHERE expires_at < $1
		ORDER BY expires_at ASC`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanArtifacts(rows)
}

func queryDeleteArtifact(ctx context.Context, db executor, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM artifacts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func queryRecordEvent(ctx context.Context, db executor, e *model.Event) error {
	return db.QueryRowContext(ctx, `
		INSERT INTO events (topic, run_id, actor, payload)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		e.Topic, e.RunID, e.Actor, []byte(e.Payload),
	).Scan(&e.ID, &e.CreatedAt)
}

func queryGetEvents(ctx context.Context, db executor, runID string) ([]*model.Event, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, topic, run_id, actor, payload, created_at
		FROM events
		WHERE run_id = $1
		ORDER BY created_at ASC`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func parseSortClause(sort string) string {
	if sort == "" {
		return "created_at DESC"
	}
	desc := strings.HasPrefix(sort, "-")
	col := strings.TrimPrefix(sort, "-")
	allowed := map[string]bool{
		"created_at": true, "started_at": true, "finished_at": true,
		"branch": true, "status": true, "workflow": true,
	}
	if !allowed[col] {
		return "created_at DESC"
	}
	if desc {
		return col + " DESC"
	}
	return col + " ASC"
}
