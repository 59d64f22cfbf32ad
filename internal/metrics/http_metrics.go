// Copyright (c) 2025 Northbound System
package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricHTTPRequestsTotal   = "codewatch.http.requests.total"
	metricHTTPRequestDuration = "codewatch.http.request.duration.seconds"
	metricHTTPInflight        = "codewatch.http.inflight.requests"

	attrRoute = "route"
)

// httpDurationBuckets covers a fast status check up to a slow dispatch
// call that waits on the uniqueness lock.
var httpDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// HTTPMetrics holds the Rate/Error/Duration instruments for
// internal/server's middleware chain, following codefang's
// internal/observability.REDMetrics shape.
type HTTPMetrics struct {
	requestsTotal   metric.Int64Counter
	requestDuration metric.Float64Histogram
	inflight        metric.Int64UpDownCounter
}

// NewHTTPMetrics creates the RED instruments from mt.
func NewHTTPMetrics(mt metric.Meter) (*HTTPMetrics, error) {
	b := newMetricBuilder(mt)

	hm := &HTTPMetrics{
		requestsTotal:   b.counter(metricHTTPRequestsTotal, "Total HTTP requests", "{request}"),
		requestDuration: b.histogram(metricHTTPRequestDuration, "HTTP request duration in seconds", "s", httpDurationBuckets...),
		inflight:        b.upDownCounter(metricHTTPInflight, "In-flight HTTP requests", "{request}"),
	}

	if b.err != nil {
		return nil, b.err
	}
	return hm, nil
}

// RecordRequest records one completed request for route at status code
// status (e.g. "200", "429"), with its wall-clock duration.
func (hm *HTTPMetrics) RecordRequest(ctx context.Context, route, status string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String(attrRoute, route),
		attribute.String(attrStatus, status),
	)
	hm.requestsTotal.Add(ctx, 1, attrs)
	hm.requestDuration.Record(ctx, duration.Seconds(), attrs)
}

// TrackInflight increments the in-flight gauge for route and returns a
// function to decrement it, meant to be deferred at the top of a handler.
func (hm *HTTPMetrics) TrackInflight(ctx context.Context, route string) func() {
	attrs := metric.WithAttributes(attribute.String(attrRoute, route))
	hm.inflight.Add(ctx, 1, attrs)
	return func() { hm.inflight.Add(ctx, -1, attrs) }
}
