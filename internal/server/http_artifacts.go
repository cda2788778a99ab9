package server

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/groblegark/relay/internal/model"
)

// handleListRunArtifacts handles GET /v1/runs/{id}/artifacts.
func (s *RelayServer) handleListRunArtifacts(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}

	artifacts, err := s.store.ListArtifacts(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list artifacts")
		return
	}
	if artifacts == nil {
		artifacts = []*model.Artifact{}
	}

	writeJSON(w, http.StatusOK, map[string]any{"artifacts": artifacts})
}

// handleGetArtifact handles GET /v1/artifacts/{id}. With ?download=true the
// blob itself is returned instead of the metadata.
func (s *RelayServer) handleGetArtifact(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}

	art, err := s.store.GetArtifact(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "artifact not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get artifact")
		return
	}

	if r.URL.Query().Get("download") != "true" {
		writeJSON(w, http.StatusOK, art)
		return
	}

	if s.blobs == nil {
		writeError(w, http.StatusNotFound, "artifact storage not configured")
		return
	}
	data, err := s.blobs.Get(r.Context(), art.StorageKey)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read artifact")
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="`+art.Name+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
