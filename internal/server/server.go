// Package server exposes the relay HTTP/JSON API: event intake, run queries,
// reviews, gate decisions, branch protections, and artifacts.
package server

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/groblegark/relay/internal/artifact"
	"github.com/groblegark/relay/internal/events"
	"github.com/groblegark/relay/internal/model"
	"github.com/groblegark/relay/internal/store"
	"github.com/groblegark/relay/internal/workflow"
)

// Submitter hands accepted runs to the execution pool.
type Submitter interface {
	Submit(runID string)
}

// RelayServer implements the HTTP API backed by the store.
type RelayServer struct {
	store         store.Store
	publisher     events.Publisher
	sseHub        *sseHub
	workflows     []workflow.Definition
	defaultBranch string
	runner        Submitter          // nil when no runner is attached
	blobs         artifact.BlobStore // nil disables artifact downloads
}

// NewRelayServer returns a new RelayServer backed by the given store and
// publisher. runner may be nil; accepted runs then stay queued until a
// runner picks them up. blobs may be nil; artifact downloads then return 404.
func NewRelayServer(s store.Store, p events.Publisher, workflows []workflow.Definition, defaultBranch string, runner Submitter, blobs artifact.BlobStore) *RelayServer {
	return &RelayServer{
		store:         s,
		publisher:     p,
		sseHub:        newSSEHub(),
		workflows:     workflows,
		defaultBranch: defaultBranch,
		runner:        runner,
		blobs:         blobs,
	}
}

// recordAndPublish persists an event to the store and publishes it to NATS.
// Both operations are best-effort; failures are logged but do not block the caller.
func (s *RelayServer) recordAndPublish(ctx context.Context, topic, runID, actor string, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Warn("failed to marshal event", "topic", topic, "run_id", runID, "error", err)
		return
	}
	if err := s.store.RecordEvent(ctx, &model.Event{
		Topic:   topic,
		RunID:   runID,
		Actor:   actor,
		Payload: payload,
	}); err != nil {
		slog.Warn("failed to record event", "topic", topic, "run_id", runID, "error", err)
	}
	if err := s.publisher.Publish(ctx, topic, event); err != nil {
		slog.Warn("failed to publish event", "topic", topic, "run_id", runID, "error", err)
	}
	s.broadcastEvent(topic, event)
}

// inputError indicates invalid user input.
// The transport layer maps this to 400.
type inputError string

func (e inputError) Error() string { return string(e) }
