// Copyright (c) 2025 Northbound System
package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricTransitionsTotal = "codewatch.track.transitions.total"
	metricTrackDuration    = "codewatch.track.duration.seconds"
	metricIssuesTotal      = "codewatch.aiscan.issues.total"

	attrTrack    = "track"
	attrStatus   = "status"
	attrSeverity = "severity"
)

// trackDurationBuckets covers a few seconds (a cached static pass) up to
// tens of minutes (a large repo's embeddings track).
var trackDurationBuckets = []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800}

// PipelineMetrics instruments the Analysis State Service's transitions
// (spec.md §4.1) and the AI Scan Worker's merged-issue output (spec.md
// §4.5), the two places a sweep through the pipeline's shared state
// produces a countable domain event.
type PipelineMetrics struct {
	transitionsTotal metric.Int64Counter
	trackDuration    metric.Float64Histogram
	issuesTotal      metric.Int64Counter
}

// NewPipelineMetrics creates the pipeline instruments from mt.
func NewPipelineMetrics(mt metric.Meter) (*PipelineMetrics, error) {
	b := newMetricBuilder(mt)

	pm := &PipelineMetrics{
		transitionsTotal: b.counter(metricTransitionsTotal, "Total track status transitions", "{transition}"),
		trackDuration:    b.histogram(metricTrackDuration, "Track wall-clock duration from running to terminal", "s", trackDurationBuckets...),
		issuesTotal:      b.counter(metricIssuesTotal, "Total merged AI scan issues persisted", "{issue}"),
	}

	if b.err != nil {
		return nil, b.err
	}
	return pm, nil
}

// RecordTransition counts one track moving to toStatus.
func (pm *PipelineMetrics) RecordTransition(ctx context.Context, track, toStatus string) {
	pm.transitionsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrTrack, track),
		attribute.String(attrStatus, toStatus),
	))
}

// RecordTrackDuration records the wall-clock time a track spent between
// its started_at and the terminal transition being recorded now.
func (pm *PipelineMetrics) RecordTrackDuration(ctx context.Context, track string, d time.Duration) {
	pm.trackDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String(attrTrack, track)))
}

// RecordIssue counts one merged issue at the given severity.
func (pm *PipelineMetrics) RecordIssue(ctx context.Context, severity string) {
	pm.issuesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrSeverity, severity)))
}
