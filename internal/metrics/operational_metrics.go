// Copyright (c) 2025 Northbound System
package metrics

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricGCDeletedTotal          = "codewatch.gc.caches_deleted.total"
	metricHeartbeatStaleTotal     = "codewatch.heartbeat.tracks_failed.total"
	metricRateLimitRejectedTotal  = "codewatch.ratelimit.rejected.total"

	attrReason = "reason"
	attrScope  = "scope"
)

// OperationalMetrics instruments the three background processes from
// spec.md §5 that keep the system healthy without ever touching an
// Analysis's own pipeline state: the GC Worker (§4.7), the Stuck
// Detector (§4.8), and the dispatch rate limiter (§5's back-pressure).
type OperationalMetrics struct {
	gcDeletedTotal         metric.Int64Counter
	heartbeatStaleTotal    metric.Int64Counter
	rateLimitRejectedTotal metric.Int64Counter
}

// NewOperationalMetrics creates the operational instruments from mt.
func NewOperationalMetrics(mt metric.Meter) (*OperationalMetrics, error) {
	b := newMetricBuilder(mt)

	om := &OperationalMetrics{
		gcDeletedTotal:         b.counter(metricGCDeletedTotal, "Total content caches deleted by the GC sweep", "{cache}"),
		heartbeatStaleTotal:    b.counter(metricHeartbeatStaleTotal, "Total tracks failed by the stuck detector", "{track}"),
		rateLimitRejectedTotal: b.counter(metricRateLimitRejectedTotal, "Total requests rejected by the rate limiter", "{request}"),
	}

	if b.err != nil {
		return nil, b.err
	}
	return om, nil
}

// RecordGCDeletion counts one content cache deleted for reason (the GC
// rule that matched it: "failed_ttl", "stuck_ttl", or "age_ttl").
func (om *OperationalMetrics) RecordGCDeletion(ctx context.Context, reason string) {
	om.gcDeletedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrReason, reason)))
}

// RecordHeartbeatStale counts one track the stuck detector failed.
func (om *OperationalMetrics) RecordHeartbeatStale(ctx context.Context, track string) {
	om.heartbeatStaleTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrTrack, track)))
}

// RecordRateLimitRejected counts one request the limiter rejected for scope.
func (om *OperationalMetrics) RecordRateLimitRejected(ctx context.Context, scope string) {
	om.rateLimitRejectedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrScope, scope)))
}
