package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/groblegark/relay/internal/events"
	"github.com/groblegark/relay/internal/idgen"
	"github.com/groblegark/relay/internal/model"
	"github.com/groblegark/relay/internal/trigger"
)

// handleEmitEvent handles POST /v1/events. It evaluates the event against
// every workflow trigger and creates one queued run per match. A non-matching
// event is accepted with an empty run list.
func (s *RelayServer) handleEmitEvent(w http.ResponseWriter, r *http.Request) {
	var evt trigger.Event
	if err := json.NewDecoder(r.Body).Decode(&evt); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	runs, err := s.emitEvent(r.Context(), evt)
	if err != nil {
		var ie inputError
		if errors.As(err, &ie) {
			writeError(w, http.StatusBadRequest, ie.Error())
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	// A non-matching event is accepted without creating anything.
	status := http.StatusCreated
	if len(runs) == 0 {
		status = http.StatusAccepted
	}
	writeJSON(w, status, map[string]any{
		"runs":  runs,
		"total": len(runs),
	})
}

func (s *RelayServer) emitEvent(ctx context.Context, evt trigger.Event) ([]*model.WorkflowRun, error) {
	if !evt.Kind.IsValid() {
		return nil, inputError("kind must be push or pull_request")
	}
	// Runs, reviews and protections all key on the bare branch name, so a
	// refs/heads/ ref from a git hook is reduced to it here once.
	evt.Branch = trigger.NormalizeBranch(evt.Branch)
	if err := model.ValidateBranchName(evt.Branch); err != nil {
		return nil, inputError(err.Error())
	}
	if err := model.ValidateCommitSHA(evt.CommitSHA); err != nil {
		return nil, inputError(err.Error())
	}

	if evt.Kind == model.EventPush {
		s.dismissStaleForPush(ctx, evt)
	}

	runs := []*model.WorkflowRun{}
	for _, def := range s.workflows {
		if !trigger.Match(def, evt, s.defaultBranch) {
			continue
		}

		id, err := idgen.NewRunID()
		if err != nil {
			return nil, err
		}
		run := &model.WorkflowRun{
			ID:        id,
			Workflow:  def.Name,
			Event:     evt.Kind,
			Branch:    evt.Branch,
			CommitSHA: evt.CommitSHA,
			Status:    model.RunQueued,
			CreatedAt: time.Now().UTC(),
			CreatedBy: evt.Actor,
		}
		if err := s.store.CreateRun(ctx, run); err != nil {
			return nil, err
		}

		s.recordAndPublish(ctx, events.TopicRunCreated, run.ID, evt.Actor, events.RunCreated{Run: run})
		if s.runner != nil {
			s.runner.Submit(run.ID)
		}
		runs = append(runs, run)
	}

	return runs, nil
}

// dismissStaleForPush drops approvals granted on older commits of the branch
// when its protection has dismiss_stale set. The push commit becomes the new
// head, so every review on another commit is stale.
func (s *RelayServer) dismissStaleForPush(ctx context.Context, evt trigger.Event) {
	policy, err := s.store.GetProtection(ctx, evt.Branch)
	if errors.Is(err, sql.ErrNoRows) {
		return
	}
	if err != nil || !policy.DismissStale {
		return
	}

	n, err := s.store.DismissStaleReviews(ctx, evt.Branch, evt.CommitSHA)
	if err != nil || n == 0 {
		return
	}
	s.recordAndPublish(ctx, events.TopicReviewsDismissed, "", evt.Actor, events.ReviewsDismissed{
		Branch:    evt.Branch,
		CommitSHA: evt.CommitSHA,
		Dismissed: n,
	})
}

// handleListRuns handles GET /v1/runs.
func (s *RelayServer) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.RunFilter{
		Branch:    q.Get("branch"),
		CommitSHA: q.Get("commit_sha"),
		Workflow:  q.Get("workflow"),
		Sort:      q.Get("sort"),
	}

	if v := q.Get("status"); v != "" {
		for _, st := range strings.Split(v, ",") {
			filter.Status = append(filter.Status, model.RunStatus(st))
		}
	}
	if v := q.Get("event"); v != "" {
		for _, e := range strings.Split(v, ",") {
			filter.Event = append(filter.Event, model.EventKind(e))
		}
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	runs, total, err := s.store.ListRuns(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}

	// Ensure runs is never null in JSON output.
	if runs == nil {
		runs = []*model.WorkflowRun{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"runs":  runs,
		"total": total,
	})
}

// handleGetRun handles GET /v1/runs/{id}.
func (s *RelayServer) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}

	run, err := s.store.GetRun(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get run")
		return
	}

	writeJSON(w, http.StatusOK, run)
}

// handleGetRunEvents handles GET /v1/runs/{id}/events.
func (s *RelayServer) handleGetRunEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}

	evts, err := s.store.GetEvents(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get events")
		return
	}
	if evts == nil {
		evts = []*model.Event{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"events": evts})
}

// handleListWorkflows handles GET /v1/workflows.
func (s *RelayServer) handleListWorkflows(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"workflows": s.workflows,
		"total":     len(s.workflows),
	})
}
