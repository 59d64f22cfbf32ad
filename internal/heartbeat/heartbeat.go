// Copyright (c) 2025 Northbound System

// Package heartbeat implements the Stuck Detector (spec.md §4.8): a
// periodic sweep that fails every non-terminal track of an analysis whose
// heartbeat has gone stale. This is distinct from the Dispatcher's own
// at-trigger-time staleness check (internal/store.TriggerOrReuse), which
// only supersedes a stuck analysis when someone re-triggers the same
// (repository, commit); this detector is the passive background sweep for
// analyses nobody ever re-triggers.
package heartbeat

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/northbound/codewatch/internal/logger"
	"github.com/northbound/codewatch/internal/metrics"
	"github.com/northbound/codewatch/internal/model"
	"github.com/northbound/codewatch/internal/statesvc"
	"github.com/northbound/codewatch/internal/store"
)

const (
	// DefaultInterval is how often Run sweeps.
	DefaultInterval = 1 * time.Minute
	// DefaultStuckThreshold is spec.md §4.8's default stuck_threshold.
	DefaultStuckThreshold = 10 * time.Minute

	heartbeatStaleReason = "heartbeat_stale"
)

// terminalStatuses per track; a track outside this set is still eligible
// to be failed by the sweep.
var terminalStatuses = map[string]bool{
	"completed": true,
	"failed":    true,
}

// nonTerminalTracks returns every track of a whose status is not
// terminal, in a fixed order so repeated sweeps behave deterministically.
func nonTerminalTracks(a *model.Analysis) []model.Track {
	var tracks []model.Track
	if !terminalStatuses[string(a.Status)] {
		tracks = append(tracks, model.TrackStatic)
	}
	if !terminalStatuses[string(a.EmbeddingsStatus)] {
		tracks = append(tracks, model.TrackEmbeddings)
	}
	if !terminalStatuses[string(a.SemanticCacheStatus)] && a.SemanticCacheStatus != model.SemanticCacheNone {
		tracks = append(tracks, model.TrackSemanticCache)
	}
	if !terminalStatuses[string(a.AIScanStatus)] && a.AIScanStatus != model.AIScanNone {
		tracks = append(tracks, model.TrackAIScan)
	}
	return tracks
}

// Detector periodically fails stuck analyses per spec.md §4.8.
type Detector struct {
	store   *store.Store
	state   *statesvc.Service
	metrics *metrics.OperationalMetrics

	interval       time.Duration
	stuckThreshold time.Duration
}

// New builds a Detector with the default interval and stuck threshold and
// no metrics recording.
func New(st *store.Store, state *statesvc.Service) *Detector {
	return &Detector{store: st, state: state, interval: DefaultInterval, stuckThreshold: DefaultStuckThreshold}
}

// NewWithMetrics builds a Detector that additionally records every failed
// track to om. A nil om behaves like New.
func NewWithMetrics(st *store.Store, state *statesvc.Service, om *metrics.OperationalMetrics) *Detector {
	d := New(st, state)
	d.metrics = om
	return d
}

// Run sweeps on a fixed interval until ctx is cancelled, following
// internal/worker.StartWorkers's context-driven loop shape.
func (d *Detector) Run(ctx context.Context) {
	log := logger.GetDefault()
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.Sweep(ctx); err != nil {
				log.Warn("heartbeat sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep fails every non-terminal track of every analysis whose heartbeat
// is older than the stuck threshold. A transition failure for one track
// (e.g. a concurrent completion raced the sweep) is logged and does not
// stop the sweep from failing the analysis's other stale tracks.
func (d *Detector) Sweep(ctx context.Context) error {
	log := logger.GetDefault()

	stale, err := d.store.ListStaleRunning(ctx, time.Now().UTC().Add(-d.stuckThreshold))
	if err != nil {
		return err
	}

	for _, a := range stale {
		for _, track := range nonTerminalTracks(a) {
			if err := d.state.Transition(ctx, a.ID, track, "failed", heartbeatStaleReason); err != nil {
				log.Warn("heartbeat: failed to fail stale track",
					zap.String("analysis_id", a.ID), zap.String("track", string(track)), zap.Error(err))
				continue
			}
			if d.metrics != nil {
				d.metrics.RecordHeartbeatStale(ctx, string(track))
			}
		}
	}
	return nil
}
