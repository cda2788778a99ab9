// Package client provides a transport-agnostic interface for the relay service
// and an HTTP/JSON implementation that talks to the relay REST API.
package client

import (
	"context"

	"github.com/groblegark/relay/internal/model"
	"github.com/groblegark/relay/internal/trigger"
	"github.com/groblegark/relay/internal/workflow"
)

// RelayClient is the interface that all relay CLI commands use to communicate
// with the relay server.
type RelayClient interface {
	// Events and runs
	EmitEvent(ctx context.Context, evt trigger.Event) ([]*model.WorkflowRun, error)
	GetRun(ctx context.Context, id string) (*model.WorkflowRun, error)
	ListRuns(ctx context.Context, req *ListRunsRequest) (*ListRunsResponse, error)
	GetRunEvents(ctx context.Context, id string) ([]*model.Event, error)
	ListWorkflows(ctx context.Context) ([]workflow.Definition, error)

	// Reviews and gate
	AddReview(ctx context.Context, branch, commitSHA, reviewer string) (*model.Review, error)
	GetReviews(ctx context.Context, branch string) ([]*model.Review, error)
	GateDecision(ctx context.Context, branch, commitSHA, pusher string) (*model.Decision, error)

	// Branch protections
	SetProtection(ctx context.Context, p *model.BranchProtection) (*model.BranchProtection, error)
	GetProtection(ctx context.Context, branch string) (*model.BranchProtection, error)
	ListProtections(ctx context.Context) ([]*model.BranchProtection, error)
	DeleteProtection(ctx context.Context, branch string) error

	// Artifacts
	ListRunArtifacts(ctx context.Context, runID string) ([]*model.Artifact, error)
	GetArtifact(ctx context.Context, id string) (*model.Artifact, error)
	DownloadArtifact(ctx context.Context, id string) ([]byte, error)

	// Health
	Health(ctx context.Context) (string, error)

	// Lifecycle
	Close() error
}

// ListRunsRequest holds filter parameters for listing runs.
type ListRunsRequest struct {
	Status    []string
	Event     []string
	Branch    string
	CommitSHA string
	Workflow  string
	Sort      string
	Limit     int
	Offset    int
}

// ListRunsResponse is the response from ListRuns.
type ListRunsResponse struct {
	Runs  []*model.WorkflowRun `json:"runs"`
	Total int                  `json:"total"`
}
