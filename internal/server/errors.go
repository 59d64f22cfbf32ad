// Copyright (c) 2025 Northbound System
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/northbound/codewatch/internal/apperrors"
)

// errorResponse is the uniform JSON error body every handler writes on
// failure.
type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps an apperrors taxonomy value (or a generic error) to an
// HTTP status code and writes the uniform error body, per spec.md §7.
// Not-found and unauthorized conditions are indistinguishable by design:
// both analysis-not-found and (were authorization ever added) access
// denial resolve to 404 here so a caller cannot probe for the existence of
// an analysis it cannot see.
func writeError(w http.ResponseWriter, err error) {
	status, msg := classify(err)
	w.Header().Set("Content-Type", "application/json")

	var rateLimited *apperrors.RateLimited
	if errors.As(err, &rateLimited) {
		writeRetryAfter(w, rateLimited.RetryAfter)
	}

	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: msg})
}

func classify(err error) (int, string) {
	var inFlight *apperrors.AnalysisInFlight
	if errors.As(err, &inFlight) {
		return http.StatusConflict, inFlight.Error()
	}

	var rateLimited *apperrors.RateLimited
	if errors.As(err, &rateLimited) {
		return http.StatusTooManyRequests, rateLimited.Error()
	}

	var invalidTransition *apperrors.InvalidStateTransition
	if errors.As(err, &invalidTransition) {
		return http.StatusConflict, invalidTransition.Error()
	}

	var invalidProgress *apperrors.InvalidProgressValue
	if errors.As(err, &invalidProgress) {
		return http.StatusBadRequest, invalidProgress.Error()
	}

	var upstream *apperrors.UpstreamUnavailable
	if errors.As(err, &upstream) {
		return http.StatusBadGateway, upstream.Error()
	}

	var corrupt *apperrors.CorruptPayload
	if errors.As(err, &corrupt) {
		return http.StatusInternalServerError, corrupt.Error()
	}

	switch {
	case errors.Is(err, apperrors.ErrAnalysisNotFound),
		errors.Is(err, apperrors.ErrRepositoryNotFound),
		errors.Is(err, apperrors.ErrContentCacheNotFound):
		return http.StatusNotFound, "not found"

	case errors.Is(err, apperrors.ErrContentCacheNotReady),
		errors.Is(err, apperrors.ErrHeartbeatStale):
		return http.StatusConflict, err.Error()
	}

	return http.StatusInternalServerError, "internal error"
}

// writeRetryAfter sets the Retry-After header spec.md §7 requires on 429
// responses.
func writeRetryAfter(w http.ResponseWriter, seconds int) {
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
}
