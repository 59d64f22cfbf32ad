// Copyright (c) 2025 Northbound System

// Package server implements the HTTP API spec.md §6 names: triggering
// analyses and retrieving their results, either as a full snapshot, a
// progress poll, or a live event stream. It is built on the standard
// library's http.ServeMux with Go 1.22+ method+pattern routing, matching
// the teacher's preference for no router framework.
package server

import (
	"net/http"

	"github.com/northbound/codewatch/internal/dispatcher"
	"github.com/northbound/codewatch/internal/events"
	"github.com/northbound/codewatch/internal/metrics"
	"github.com/northbound/codewatch/internal/ratelimit"
	"github.com/northbound/codewatch/internal/statesvc"
	"github.com/northbound/codewatch/internal/store"
)

// Server holds every collaborator an HTTP handler needs.
type Server struct {
	store        *store.Store
	state        *statesvc.Service
	dispatcher   *dispatcher.Dispatcher
	bus          *events.Bus
	limiter      ratelimit.Limiter
	httpMetrics  *metrics.HTTPMetrics
	metricsRoute http.Handler
}

// New builds a Server. httpMetrics may be nil to disable per-route
// metrics recording. metricsRoute is the prometheus exposition handler
// mounted at GET /metrics; it is built once by the caller (internal/
// metrics.Handler also returns the meter the rest of the process's
// metrics are built from, so it cannot be constructed twice without
// double-registering the same collectors).
func New(st *store.Store, state *statesvc.Service, disp *dispatcher.Dispatcher, bus *events.Bus, limiter ratelimit.Limiter, httpMetrics *metrics.HTTPMetrics, metricsRoute http.Handler) *Server {
	if limiter == nil {
		limiter = ratelimit.NoopLimiter{}
	}
	return &Server{store: st, state: state, dispatcher: disp, bus: bus, limiter: limiter, httpMetrics: httpMetrics, metricsRoute: metricsRoute}
}

// Handler builds the full route table, each route wrapped in metrics and
// rate-limit middleware, the whole mux wrapped once in traffic logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	s.route(mux, "POST /analyses", "trigger", s.handleCreateAnalysis)
	s.route(mux, "GET /analyses/{id}", "read", s.handleGetAnalysis)
	s.route(mux, "GET /analyses/{id}/full-status", "read", s.handleFullStatus)
	s.route(mux, "GET /analyses/{id}/events", "read", s.handleEvents)
	s.route(mux, "GET /analyses/{id}/issues", "read", s.handleIssues)
	s.route(mux, "GET /analyses/{id}/architecture", "read", s.handleArchitecture)
	s.route(mux, "GET /analyses/{id}/ai-scan", "read", s.handleAIScan)

	if s.metricsRoute != nil {
		mux.Handle("GET /metrics", s.metricsRoute)
	}

	return trafficLogger(mux)
}

// route registers handler at pattern, wrapping it with route-scoped
// metrics recording and the rate-limit scope given.
func (s *Server) route(mux *http.ServeMux, pattern, scope string, handler http.HandlerFunc) {
	wrapped := metricsMiddleware(s.httpMetrics, pattern, handler)
	wrapped = rateLimitMiddleware(s.limiter, scope, wrapped)
	mux.Handle(pattern, wrapped)
}
