// Copyright (c) 2025 Northbound System
package metrics_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/northbound/codewatch/internal/metrics"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for i := range rm.ScopeMetrics {
		for j := range rm.ScopeMetrics[i].Metrics {
			if rm.ScopeMetrics[i].Metrics[j].Name == name {
				return &rm.ScopeMetrics[i].Metrics[j]
			}
		}
	}
	return nil
}

func TestPipelineMetrics_RecordTransition(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	pm, err := metrics.NewPipelineMetrics(mp.Meter("test"))
	require.NoError(t, err)

	pm.RecordTransition(context.Background(), "static", "completed")

	rm := collect(t, reader)
	m := findMetric(rm, "codewatch.track.transitions.total")
	require.NotNil(t, m)

	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(1), sum.DataPoints[0].Value)
}

func TestPipelineMetrics_RecordTrackDuration(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	pm, err := metrics.NewPipelineMetrics(mp.Meter("test"))
	require.NoError(t, err)

	pm.RecordTrackDuration(context.Background(), "embeddings", 90*time.Second)

	rm := collect(t, reader)
	m := findMetric(rm, "codewatch.track.duration.seconds")
	require.NotNil(t, m)

	hist, ok := m.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.NotEmpty(t, hist.DataPoints)
	assert.Equal(t, uint64(1), hist.DataPoints[0].Count)
}

func TestPipelineMetrics_RecordIssue(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	pm, err := metrics.NewPipelineMetrics(mp.Meter("test"))
	require.NoError(t, err)

	pm.RecordIssue(context.Background(), "critical")
	pm.RecordIssue(context.Background(), "critical")

	rm := collect(t, reader)
	m := findMetric(rm, "codewatch.aiscan.issues.total")
	require.NotNil(t, m)
	sum := m.Data.(metricdata.Sum[int64])
	assert.Equal(t, int64(2), sum.DataPoints[0].Value)
}

func TestOperationalMetrics_RecordGCDeletion(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	om, err := metrics.NewOperationalMetrics(mp.Meter("test"))
	require.NoError(t, err)

	om.RecordGCDeletion(context.Background(), "age_ttl")

	rm := collect(t, reader)
	require.NotNil(t, findMetric(rm, "codewatch.gc.caches_deleted.total"))
}

func TestOperationalMetrics_RecordHeartbeatStale(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	om, err := metrics.NewOperationalMetrics(mp.Meter("test"))
	require.NoError(t, err)

	om.RecordHeartbeatStale(context.Background(), "static")

	rm := collect(t, reader)
	require.NotNil(t, findMetric(rm, "codewatch.heartbeat.tracks_failed.total"))
}

func TestOperationalMetrics_RecordRateLimitRejected(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	om, err := metrics.NewOperationalMetrics(mp.Meter("test"))
	require.NoError(t, err)

	om.RecordRateLimitRejected(context.Background(), "trigger")

	rm := collect(t, reader)
	require.NotNil(t, findMetric(rm, "codewatch.ratelimit.rejected.total"))
}

func TestHTTPMetrics_RecordRequestAndInflight(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	hm, err := metrics.NewHTTPMetrics(mp.Meter("test"))
	require.NoError(t, err)

	done := hm.TrackInflight(context.Background(), "/analyses")
	hm.RecordRequest(context.Background(), "/analyses", "200", 25*time.Millisecond)
	done()

	rm := collect(t, reader)
	require.NotNil(t, findMetric(rm, "codewatch.http.requests.total"))
	require.NotNil(t, findMetric(rm, "codewatch.http.request.duration.seconds"))
	require.NotNil(t, findMetric(rm, "codewatch.http.inflight.requests"))
}

func TestHandler_BuildsScrapeEndpointAndMeter(t *testing.T) {
	handler, meter, err := metrics.Handler()
	require.NoError(t, err)
	assert.NotNil(t, handler)
	assert.NotNil(t, meter)

	// The returned meter can build instruments immediately.
	_, err = metrics.NewPipelineMetrics(meter)
	require.NoError(t, err)
}
