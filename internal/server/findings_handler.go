// Copyright (c) 2025 Northbound System
package server

import "net/http"

// handleIssues returns every Issue merged for this analysis, per spec.md
// §6's `GET /analyses/{id}/issues`.
func (s *Server) handleIssues(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.store.GetAnalysis(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	issues, err := s.store.ListIssuesByAnalysis(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, issues)
}

// handleArchitecture returns the Cluster Analyzer's semantic_cache
// snapshot: summary, dead code, hot spots, insights.
func (s *Server) handleArchitecture(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	a, err := s.store.GetAnalysis(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a.SemanticCache)
}

// handleAIScan returns the AI Scan Worker's self-contained result
// document for this analysis.
func (s *Server) handleAIScan(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	a, err := s.store.GetAnalysis(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a.AIScanCache)
}
