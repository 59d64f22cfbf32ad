// Copyright (c) 2025 Northbound System
package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/northbound/codewatch/internal/apperrors"
	"github.com/northbound/codewatch/internal/model"
)

var validate = validator.New()

// createAnalysisRequest is the POST /analyses body, per spec.md §6.
type createAnalysisRequest struct {
	RepositoryID string            `json:"repository_id" validate:"required"`
	CommitSHA    string            `json:"commit_sha"`
	Branch       string            `json:"branch"`
	TriggerType  model.TriggerType `json:"trigger_type" validate:"required,oneof=scheduled webhook manual"`
}

type createAnalysisResponse struct {
	ID     string       `json:"id"`
	Status model.Status `json:"status"`
}

func (s *Server) handleCreateAnalysis(w http.ResponseWriter, r *http.Request) {
	var req createAnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &apperrors.CorruptPayload{Kind: "create_analysis_request", Reason: err.Error()})
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, &apperrors.CorruptPayload{Kind: "create_analysis_request", Reason: err.Error()})
		return
	}

	requestedBy := r.Header.Get("X-API-Key")

	id, err := s.dispatcher.Trigger(r.Context(), req.RepositoryID, req.CommitSHA, req.Branch, req.TriggerType, requestedBy)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, createAnalysisResponse{ID: id, Status: model.StatusPending})
}

// analysisDetail is the GET /analyses/{id} response: the full Analysis
// row, minus nothing — there is no separate "public" projection, since
// the core has no per-field authorization model.
type analysisDetail struct {
	ID           string            `json:"id"`
	RepositoryID string            `json:"repository_id"`
	CommitSHA    string            `json:"commit_sha"`
	Branch       string            `json:"branch"`
	TriggerType  model.TriggerType `json:"trigger_type"`

	Status                model.Status              `json:"status"`
	StaticProgress        int                       `json:"static_progress"`
	EmbeddingsStatus      model.EmbeddingsStatus    `json:"embeddings_status"`
	EmbeddingsProgress    int                       `json:"embeddings_progress"`
	SemanticCacheStatus   model.SemanticCacheStatus `json:"semantic_cache_status"`
	SemanticCacheProgress int                       `json:"semantic_cache_progress"`
	AIScanStatus          model.AIScanStatus        `json:"ai_scan_status"`
	AIScanProgress        int                       `json:"ai_scan_progress"`

	HeartbeatAt   string              `json:"heartbeat_at"`
	VCIScore      float64             `json:"vci_score"`
	TechDebtLevel model.TechDebtLevel `json:"tech_debt_level"`
	Metrics       map[string]any      `json:"metrics"`
	Pinned        bool                `json:"pinned"`

	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func toAnalysisDetail(a *model.Analysis) analysisDetail {
	return analysisDetail{
		ID:                    a.ID,
		RepositoryID:          a.RepositoryID,
		CommitSHA:             a.CommitSHA,
		Branch:                a.Branch,
		TriggerType:           a.TriggerType,
		Status:                a.Status,
		StaticProgress:        a.StaticProgress,
		EmbeddingsStatus:      a.EmbeddingsStatus,
		EmbeddingsProgress:    a.EmbeddingsProgress,
		SemanticCacheStatus:   a.SemanticCacheStatus,
		SemanticCacheProgress: a.SemanticCacheProgress,
		AIScanStatus:          a.AIScanStatus,
		AIScanProgress:        a.AIScanProgress,
		HeartbeatAt:           a.HeartbeatAt.Format(timeFormat),
		VCIScore:              a.VCIScore,
		TechDebtLevel:         a.TechDebtLevel,
		Metrics:               a.Metrics,
		Pinned:                a.Pinned,
		CreatedAt:             a.CreatedAt.Format(timeFormat),
		UpdatedAt:             a.UpdatedAt.Format(timeFormat),
	}
}

func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	a, err := s.store.GetAnalysis(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAnalysisDetail(a))
}

func (s *Server) handleFullStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	full, err := s.state.FullStatus(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, full)
}
