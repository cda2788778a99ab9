package events

import (
	"context"
	"strings"

	"github.com/groblegark/relay/internal/model"
)

// Event topic constants
const (
	TopicRunCreated  = "relay.run.created"
	TopicRunStarted  = "relay.run.started"
	TopicRunFinished = "relay.run.finished"

	TopicStageStarted  = "relay.stage.started"
	TopicStageFinished = "relay.stage.finished"

	// Review and gate events
	TopicReviewAdded       = "relay.review.added"
	TopicReviewsDismissed  = "relay.review.dismissed"
	TopicGateEvaluated     = "relay.gate.evaluated"
	TopicProtectionUpdated = "relay.protection.updated"

	// Artifact events
	TopicArtifactPublished = "relay.artifact.published"
	TopicArtifactExpired   = "relay.artifact.expired"
)

// Event types

type RunCreated struct {
	Run *model.WorkflowRun `json:"run"`
}

type RunStarted struct {
	Run *model.WorkflowRun `json:"run"`
}

type RunFinished struct {
	Run *model.WorkflowRun `json:"run"`
}

type StageStarted struct {
	RunID string `json:"run_id"`
	Stage string `json:"stage"`
}

type StageFinished struct {
	RunID   string             `json:"run_id"`
	Stage   string             `json:"stage"`
	Outcome model.StageOutcome `json:"outcome"`
	LogRef  string             `json:"log_ref,omitempty"`
}

type ReviewAdded struct {
	Review *model.Review `json:"review"`
}

// ReviewsDismissed is emitted when a new head commit invalidates prior
// approvals under the dismiss-stale policy.
type ReviewsDismissed struct {
	Branch    string `json:"branch"`
	CommitSHA string `json:"commit_sha"` // the new head that caused the dismissal
	Dismissed int    `json:"dismissed"`
}

type GateEvaluated struct {
	Decision *model.Decision `json:"decision"`
}

type ProtectionUpdated struct {
	Protection *model.BranchProtection `json:"protection"`
}

type ArtifactPublished struct {
	Artifact *model.Artifact `json:"artifact"`
}

type ArtifactExpired struct {
	ArtifactID string `json:"artifact_id"`
	RunID      string `json:"run_id"`
	Name       string `json:"name"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}

// MatchTopic reports whether a dot-separated topic matches pattern, using the
// NATS subject grammar: "*" matches exactly one segment, ">" matches one or
// more trailing segments.
func MatchTopic(pattern, topic string) bool {
	pat := strings.Split(pattern, ".")
	rest := strings.Split(topic, ".")
	for len(pat) > 0 {
		p := pat[0]
		if p == ">" {
			return len(rest) > 0
		}
		if len(rest) == 0 || (p != "*" && p != rest[0]) {
			return false
		}
		pat, rest = pat[1:], rest[1:]
	}
	return len(rest) == 0
}
