package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/groblegark/relay/internal/events"
	"github.com/groblegark/relay/internal/gate"
	"github.com/groblegark/relay/internal/model"
)

type addReviewInput struct {
	CommitSHA string `json:"commit_sha"`
	Reviewer  string `json:"reviewer"`
}

// handleAddReview handles POST /v1/branches/{branch}/reviews.
func (s *RelayServer) handleAddReview(w http.ResponseWriter, r *http.Request) {
	branch := r.PathValue("branch")
	if err := model.ValidateBranchName(branch); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var in addReviewInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := model.ValidateCommitSHA(in.CommitSHA); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if in.Reviewer == "" {
		writeError(w, http.StatusBadRequest, "reviewer is required")
		return
	}

	review := &model.Review{
		Branch:    branch,
		CommitSHA: in.CommitSHA,
		Reviewer:  in.Reviewer,
	}
	if err := s.store.AddReview(r.Context(), review); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to add review")
		return
	}

	s.recordAndPublish(r.Context(), events.TopicReviewAdded, "", in.Reviewer, events.ReviewAdded{Review: review})

	writeJSON(w, http.StatusCreated, review)
}

// handleGetReviews handles GET /v1/branches/{branch}/reviews.
func (s *RelayServer) handleGetReviews(w http.ResponseWriter, r *http.Request) {
	branch := r.PathValue("branch")
	if branch == "" {
		writeError(w, http.StatusBadRequest, "branch is required")
		return
	}

	reviews, err := s.store.GetReviews(r.Context(), branch)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get reviews")
		return
	}
	if reviews == nil {
		reviews = []*model.Review{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"reviews": reviews})
}

// handleGateDecision handles GET /v1/branches/{branch}/gate.
// Query params: commit_sha (required head commit), pusher (optional).
func (s *RelayServer) handleGateDecision(w http.ResponseWriter, r *http.Request) {
	branch := r.PathValue("branch")
	if branch == "" {
		writeError(w, http.StatusBadRequest, "branch is required")
		return
	}
	headSHA := r.URL.Query().Get("commit_sha")
	if err := model.ValidateCommitSHA(headSHA); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	pusher := r.URL.Query().Get("pusher")

	policy, err := s.store.GetProtection(r.Context(), branch)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "branch is not protected")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get protection")
		return
	}

	checks, err := s.store.GetChecks(r.Context(), branch, headSHA)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get checks")
		return
	}
	reviews, err := s.store.GetReviews(r.Context(), branch)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get reviews")
		return
	}

	decision := gate.Evaluate(policy, checks, reviews, headSHA, pusher)
	s.recordAndPublish(r.Context(), events.TopicGateEvaluated, "", pusher, events.GateEvaluated{Decision: &decision})

	writeJSON(w, http.StatusOK, decision)
}

// handleSetProtection handles PUT /v1/protections/{branch}.
func (s *RelayServer) handleSetProtection(w http.ResponseWriter, r *http.Request) {
	branch := r.PathValue("branch")

	var p model.BranchProtection
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	p.Branch = branch
	if err := model.ValidateProtection(&p); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.store.SetProtection(r.Context(), &p); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to set protection")
		return
	}

	s.recordAndPublish(r.Context(), events.TopicProtectionUpdated, "", "", events.ProtectionUpdated{Protection: &p})

	writeJSON(w, http.StatusOK, &p)
}

// handleGetProtection handles GET /v1/protections/{branch}.
func (s *RelayServer) handleGetProtection(w http.ResponseWriter, r *http.Request) {
	branch := r.PathValue("branch")

	p, err := s.store.GetProtection(r.Context(), branch)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "protection not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get protection")
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// handleListProtections handles GET /v1/protections.
func (s *RelayServer) handleListProtections(w http.ResponseWriter, r *http.Request) {
	protections, err := s.store.ListProtections(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list protections")
		return
	}
	if protections == nil {
		protections = []*model.BranchProtection{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"protections": protections})
}

// handleDeleteProtection handles DELETE /v1/protections/{branch}.
func (s *RelayServer) handleDeleteProtection(w http.ResponseWriter, r *http.Request) {
	branch := r.PathValue("branch")

	if err := s.store.DeleteProtection(r.Context(), branch); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "protection not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete protection")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
