// Copyright (c) 2025 Northbound System
package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/northbound/codewatch/internal/logger"
	"github.com/northbound/codewatch/internal/metrics"
	"github.com/northbound/codewatch/internal/ratelimit"
)

// skipLogPaths lists polling endpoints excluded from per-request traffic
// logging, adapted from the teacher's middleware/logger.go skipPaths list
// (there: /api/v1/stats, /api/v1/health, /api/v1/keys; here: the
// full-status polling endpoint and the SSE stream, both hit far more
// often than every other route).
var skipLogPaths = []string{"/analyses/", "/metrics"}

func shouldSkipLog(path string) bool {
	for _, p := range skipLogPaths {
		if strings.HasPrefix(path, p) && (strings.HasSuffix(path, "/full-status") || strings.HasSuffix(path, "/events") || p == "/metrics") {
			return true
		}
	}
	return false
}

// responseWriter wraps http.ResponseWriter to capture the status code
// written, same shape as the teacher's middleware/logger.go.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// responseWriterWithFlush preserves http.Flusher so the SSE handler can
// keep streaming through the logging middleware.
type responseWriterWithFlush struct {
	responseWriter
	http.Flusher
}

func (rw *responseWriterWithFlush) Flush() { rw.Flusher.Flush() }

// trafficLogger logs request entry/exit the way the teacher's
// middleware.TrafficLogger does, generalized to codewatch's own
// high-frequency polling routes.
func trafficLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		log := logger.GetDefault()
		skip := shouldSkipLog(r.URL.Path)

		if !skip {
			log.Info("http request", zap.String("direction", "in"), zap.String("method", r.Method), zap.String("path", r.URL.Path))
		}

		var rw http.ResponseWriter
		if flusher, ok := w.(http.Flusher); ok {
			rw = &responseWriterWithFlush{responseWriter: responseWriter{ResponseWriter: w, statusCode: http.StatusOK}, Flusher: flusher}
		} else {
			rw = &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		}

		next.ServeHTTP(rw, r)

		duration := time.Since(start)
		var status int
		switch v := rw.(type) {
		case *responseWriterWithFlush:
			status = v.statusCode
		case *responseWriter:
			status = v.statusCode
		default:
			status = http.StatusOK
		}

		if !skip || status >= 400 {
			log.Info("http response",
				zap.String("direction", "out"),
				zap.Int("status", status),
				zap.Duration("duration", duration),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path))
		}
	})
}

// metricsMiddleware wraps one named route with request-count/duration/
// inflight recording, via internal/metrics.HTTPMetrics. route is the
// ServeMux pattern the caller registered the handler under (e.g.
// "POST /analyses"), supplied explicitly since net/http does not expose
// the matched pattern back to the handler.
func metricsMiddleware(hm *metrics.HTTPMetrics, route string, next http.Handler) http.Handler {
	if hm == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		done := hm.TrackInflight(r.Context(), route)
		defer done()

		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		var target http.ResponseWriter = rw
		if flusher, ok := w.(http.Flusher); ok {
			// keep http.Flusher visible so the SSE route can still stream
			target = struct {
				*responseWriter
				http.Flusher
			}{rw, flusher}
		}
		next.ServeHTTP(target, r)
		hm.RecordRequest(r.Context(), route, strconv.Itoa(rw.statusCode), time.Since(start))
	})
}

// rateLimitMiddleware enforces limiter's fixed-window quota for the given
// scope, keyed on the caller-supplied X-API-Key header (falling back to
// the remote address), per spec.md §5/§6.
func rateLimitMiddleware(limiter ratelimit.Limiter, scope string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-API-Key")
		if key == "" {
			key = r.RemoteAddr
		}

		if err := limiter.Allow(r.Context(), scope, key); err != nil {
			writeError(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}
