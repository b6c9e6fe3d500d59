package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/longregen/promptc/internal/domain/models"
	"github.com/longregen/promptc/internal/ports"
)

// CompileService is the slice of the application service the HTTP layer needs
type CompileService interface {
	Compile(ctx context.Context, req *ports.CompileRequest) (*ports.CompileResult, error)
	GetProgress(runID string) <-chan ports.ProgressEvent
	UnsubscribeProgress(runID string, ch <-chan ports.ProgressEvent)
	Abort(runID string) error
	GetRun(ctx context.Context, runID string) (*models.OptimizationRun, error)
	ListRuns(ctx context.Context, status string, limit, offset int) ([]*models.OptimizationRun, error)
	GetCandidates(ctx context.Context, runID string) ([]*models.CandidateRecord, error)
	GetArtifact(ctx context.Context, runID string) (*models.CompiledArtifact, error)
}

type RunHandler struct {
	svc CompileService
}

func NewRunHandler(svc CompileService) *RunHandler {
	return &RunHandler{svc: svc}
}

// Create handles POST /runs
func (h *RunHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req ports.CompileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.svc.Compile(r.Context(), &req)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, result.Run, http.StatusAccepted)
}

// Get handles GET /runs/{id}
func (h *RunHandler) Get(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")

	run, err := h.svc.GetRun(r.Context(), runID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, run, http.StatusOK)
}

// List handles GET /runs
func (h *RunHandler) List(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	limit := parseIntQuery(r, "limit", 50)
	offset := parseIntQuery(r, "offset", 0)

	runs, err := h.svc.ListRuns(r.Context(), status, limit, offset)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, map[string]any{
		"runs":   runs,
		"limit":  limit,
		"offset": offset,
	}, http.StatusOK)
}

// Abort handles POST /runs/{id}/abort
func (h *RunHandler) Abort(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")

	if err := h.svc.Abort(runID); err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, map[string]string{"status": "aborting"}, http.StatusAccepted)
}

// Candidates handles GET /runs/{id}/candidates
func (h *RunHandler) Candidates(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")

	if _, err := h.svc.GetRun(r.Context(), runID); err != nil {
		respondDomainError(w, err)
		return
	}

	candidates, err := h.svc.GetCandidates(r.Context(), runID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, map[string]any{"candidates": candidates}, http.StatusOK)
}

// Artifact handles GET /runs/{id}/artifact. Metadata is returned as JSON;
// ?download=true streams the frozen msgpack payload itself.
func (h *RunHandler) Artifact(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")

	artifact, err := h.svc.GetArtifact(r.Context(), runID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	if r.URL.Query().Get("download") == "true" {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Disposition", `attachment; filename="`+artifact.Name+`.bin"`)
		w.WriteHeader(http.StatusOK)
		w.Write(artifact.Payload)
		return
	}

	respondJSON(w, artifact, http.StatusOK)
}
