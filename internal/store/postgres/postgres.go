// Package postgres implements the store.Store interface backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/groblegark/relay/internal/model"
	"github.com/groblegark/relay/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements store.Store backed by a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements store.Store.
var _ store.Store = (*PostgresStore)(nil)

// New opens a connection to the PostgreSQL database at the given URL,
// configures the connection pool, and runs any pending migrations.
func New(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) CreateRun(ctx context.Context, run *model.WorkflowRun) error {
	return queryCreateRun(ctx, s.db, run)
}

func (s *PostgresStore) GetRun(ctx context.Context, id string) (*model.WorkflowRun, error) {
	return queryGetRun(ctx, s.db, id)
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter model.RunFilter) ([]*model.WorkflowRun, int, error) {
	return queryListRuns(ctx, s.db, filter)
}

func (s *PostgresStore) MarkRunStarted(ctx context.Context, id string) error {
	return queryMarkRunStarted(ctx, s.db, id)
}

func (s *PostgresStore) MarkRunFinished(ctx context.Context, id string, status model.RunStatus) (*model.WorkflowRun, error) {
	return queryMarkRunFinished(ctx, s.db, id, status)
}

func (s *PostgresStore) PutStageResult(ctx context.Context, result *model.StageResult) error {
	return queryPutStageResult(ctx, s.db, result)
}

func (s *PostgresStore) GetStageResults(ctx context.Context, runID string) ([]*model.StageResult, error) {
	return queryGetStageResults(ctx, s.db, runID)
}

func (s *PostgresStore) GetChecks(ctx context.Context, branch, commitSHA string) (map[string]model.StageOutcome, error) {
	return queryGetChecks(ctx, s.db, branch, commitSHA)
}

func (s *PostgresStore) AddReview(ctx context.Context, review *model.Review) error {
	return queryAddReview(ctx, s.db, review)
}

func (s *PostgresStore) GetReviews(ctx context.Context, branch string) ([]*model.Review, error) {
	return queryGetReviews(ctx, s.db, branch)
}

func (s *PostgresStore) DismissStaleReviews(ctx context.Context, branch, headSHA string) (int, error) {
	return queryDismissStaleReviews(ctx, s.db, branch, headSHA)
}

func (s *PostgresStore) SetProtection(ctx context.Context, protection *model.BranchProtection) error {
	return querySetProtection(ctx, s.db, protection)
}

func (s *PostgresStore) GetProtection(ctx context.Context, branch string) (*model.BranchProtection, error) {
	return queryGetProtection(ctx, s.db, branch)
}

func (s *PostgresStore) ListProtections(ctx context.Context) ([]*model.BranchProtection, error) {
	return queryListProtections(ctx, s.db)
}

func (s *PostgresStore) DeleteProtection(ctx context.Context, branch string) error {
	return queryDeleteProtection(ctx, s.db, branch)
}

func (s *PostgresStore) CreateArtifact(ctx context.Context, artifact *model.Artifact) error {
	return queryCreateArtifact(ctx, s.db, artifact)
}

func (s *PostgresStore) GetArtifact(ctx context.Context, id string) (*model.Artifact, error) {
	return queryGetArtifact(ctx, s.db, id)
}

func (s *PostgresStore) ListArtifacts(ctx context.Context, runID string) ([]*model.Artifact, error) {
	return queryListArtifacts(ctx, s.db, runID)
}

func (s *PostgresStore) ListExpiredArtifacts(ctx context.Context, now time.Time) ([]*model.Artifact, error) {
	return queryListExpiredArtifacts(ctx, s.db, now)
}

func (s *PostgresStore) DeleteArtifact(ctx context.Context, id string) error {
	return queryDeleteArtifact(ctx, s.db, id)
}

func (s *PostgresStore) RecordEvent(ctx context.Context, event *model.Event) error {
	return queryRecordEvent(ctx, s.db, event)
}

func (s *PostgresStore) GetEvents(ctx context.Context, runID string) ([]*model.Event, error) {
	return queryGetEvents(ctx, s.db, runID)
}

// RunInTransaction begins a database transaction, creates a txStore that
// delegates to it, calls fn, and commits on success or rolls back on error.
func (s *PostgresStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	txS := &txStore{tx: tx}
	if err := fn(txS); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// txStore implements store.Store using a *sql.Tx.
type txStore struct {
	tx *sql.Tx
}

// Compile-time check that txStore implements store.Store.
var _ store.Store = (*txStore)(nil)

func (s *txStore) CreateRun(ctx context.Context, run *model.WorkflowRun) error {
	return queryCreateRun(ctx, s.tx, run)
}

func (s *txStore) GetRun(ctx context.Context, id string) (*model.WorkflowRun, error) {
	return queryGetRun(ctx, s.tx, id)
}

func (s *txStore) ListRuns(ctx context.Context, filter model.RunFilter) ([]*model.WorkflowRun, int, error) {
	return queryListRuns(ctx, s.tx, filter)
}

func (s *txStore) MarkRunStarted(ctx context.Context, id string) error {
	return queryMarkRunStarted(ctx, s.tx, id)
}

func (s *txStore) MarkRunFinished(ctx context.Context, id string, status model.RunStatus) (*model.WorkflowRun, error) {
	return queryMarkRunFinished(ctx, s.tx, id, status)
}

func (s *txStore) PutStageResult(ctx context.Context, result *model.StageResult) error {
	return queryPutStageResult(ctx, s.tx, result)
}

func (s *txStore) GetStageResults(ctx context.Context, runID string) ([]*model.StageResult, error) {
	return queryGetStageResults(ctx, s.tx, runID)
}

func (s *txStore) GetChecks(ctx context.Context, branch, commitSHA string) (map[string]model.StageOutcome, error) {
	return queryGetChecks(ctx, s.tx, branch, commitSHA)
}

func (s *txStore) AddReview(ctx context.Context, review *model.Review) error {
	return queryAddReview(ctx, s.tx, review)
}

func (s *txStore) GetReviews(ctx context.Context, branch string) ([]*model.Review, error) {
	return queryGetReviews(ctx, s.tx, branch)
}

func (s *txStore) DismissStaleReviews(ctx context.Context, branch, headSHA string) (int, error) {
	return queryDismissStaleReviews(ctx, s.tx, branch, headSHA)
}

func (s *txStore) SetProtection(ctx context.Context, protection *model.BranchProtection) error {
	return querySetProtection(ctx, s.tx, protection)
}

func (s *txStore) GetProtection(ctx context.Context, branch string) (*model.BranchProtection, error) {
	return queryGetProtection(ctx, s.tx, branch)
}

func (s *txStore) ListProtections(ctx context.Context) ([]*model.BranchProtection, error) {
	return queryListProtections(ctx, s.tx)
}

func (s *txStore) DeleteProtection(ctx context.Context, branch string) error {
	return queryDeleteProtection(ctx, s.tx, branch)
}

func (s *txStore) CreateArtifact(ctx context.Context, artifact *model.Artifact) error {
	return queryCreateArtifact(ctx, s.tx, artifact)
}

func (s *txStore) GetArtifact(ctx context.Context, id string) (*model.Artifact, error) {
	return queryGetArtifact(ctx, s.tx, id)
}

func (s *txStore) ListArtifacts(ctx context.Context, runID string) ([]*model.Artifact, error) {
	return queryListArtifacts(ctx, s.tx, runID)
}

func (s *txStore) ListExpiredArtifacts(ctx context.Context, now time.Time) ([]*model.Artifact, error) {
	return queryListExpiredArtifacts(ctx, s.tx, now)
}

func (s *txStore) DeleteArtifact(ctx context.Context, id string) error {
	return queryDeleteArtifact(ctx, s.tx, id)
}

func (s *txStore) RecordEvent(ctx context.Context, event *model.Event) error {
	return queryRecordEvent(ctx, s.tx, event)
}

func (s *txStore) GetEvents(ctx context.Context, runID string) ([]*model.Event, error) {
	return queryGetEvents(ctx, s.tx, runID)
}

// RunInTransaction on a txStore reuses the existing transaction (no nesting).
func (s *txStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

// Close is a no-op for a transaction store; the parent store owns the connection.
func (s *txStore) Close() error {
	return nil
}
