package store

import (
	"context"
	"time"

	"github.com/groblegark/relay/internal/model"
)

// Store defines the persistence interface for relay.
type Store interface {
	// Workflow runs
	CreateRun(ctx context.Context, run *model.WorkflowRun) error
	GetRun(ctx context.Context, id string) (*model.WorkflowRun, error)
	ListRuns(ctx context.Context, filter model.RunFilter) ([]*model.WorkflowRun, int, error) // returns runs, total count, error
	MarkRunStarted(ctx context.Context, id string) error
	MarkRunFinished(ctx context.Context, id string, status model.RunStatus) (*model.WorkflowRun, error)

	// Stage results (double as status checks)
	PutStageResult(ctx context.Context, result *model.StageResult) error
	GetStageResults(ctx context.Context, runID string) ([]*model.StageResult, error)
	GetChecks(ctx context.Context, branch, commitSHA string) (map[string]model.StageOutcome, error)

	// Reviews
	AddReview(ctx context.Context, review *model.Review) error
	GetReviews(ctx context.Context, branch string) ([]*model.Review, error)
	DismissStaleReviews(ctx context.Context, branch, headSHA string) (int, error)

	// Branch protections
	SetProtection(ctx context.Context, protection *model.BranchProtection) error
	GetProtection(ctx context.Context, branch string) (*model.BranchProtection, error)
	ListProtections(ctx context.Context) ([]*model.BranchProtection, error)
	DeleteProtection(ctx context.Context, branch string) error

	// Artifacts
	CreateArtifact(ctx context.Context, artifact *model.Artifact) error
	GetArtifact(ctx context.Context, id string) (*model.Artifact, error)
	ListArtifacts(ctx context.Context, runID string) ([]*model.Artifact, error)
	ListExpiredArtifacts(ctx context.Context, now time.Time) ([]*model.Artifact, error)
	DeleteArtifact(ctx context.Context, id string) error

	// Events
	RecordEvent(ctx context.Context, event *model.Event) error
	GetEvents(ctx context.Context, runID string) ([]*model.Event, error)

	// Transaction support
	RunInTransaction(ctx context.Context, fn func(tx Store) error) error

	// Lifecycle
	Close() error
}
