// Copyright (c) 2025 Northbound System

// Package gc implements the GC Worker (spec.md §4.7): a periodic sweep
// that expires failed, orphaned, and aged content-cache entries, deleting
// object-storage bytes before cascading the row delete.
package gc

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/northbound/codewatch/internal/logger"
	"github.com/northbound/codewatch/internal/metrics"
	"github.com/northbound/codewatch/internal/model"
	"github.com/northbound/codewatch/internal/objectstorage"
	"github.com/northbound/codewatch/internal/store"
)

const (
	// DefaultInterval is how often Run sweeps.
	DefaultInterval = 10 * time.Minute
	// DefaultFailedTTL is how long a failed cache survives before
	// deletion, per spec.md §4.7's "failed_ttl".
	DefaultFailedTTL = 24 * time.Hour
	// DefaultStuckTTL is how long an uploading cache may go without an
	// object transition before it's considered orphaned ("stuck_ttl").
	DefaultStuckTTL = 1 * time.Hour
	// DefaultAgeTTL is the LRU age bound for otherwise-healthy,
	// unpinned caches ("age_ttl").
	DefaultAgeTTL = 30 * 24 * time.Hour
)

// Worker periodically expires content-cache entries per spec.md §4.7's
// three deletion rules.
type Worker struct {
	store   *store.Store
	blobs   objectstorage.Store
	metrics *metrics.OperationalMetrics

	interval  time.Duration
	failedTTL time.Duration
	stuckTTL  time.Duration
	ageTTL    time.Duration
}

// New builds a Worker with the default intervals and TTLs and no metrics
// recording.
func New(st *store.Store, blobs objectstorage.Store) *Worker {
	return &Worker{
		store:     st,
		blobs:     blobs,
		interval:  DefaultInterval,
		failedTTL: DefaultFailedTTL,
		stuckTTL:  DefaultStuckTTL,
		ageTTL:    DefaultAgeTTL,
	}
}

// NewWithMetrics builds a Worker that additionally records every
// deletion to om. A nil om behaves like New.
func NewWithMetrics(st *store.Store, blobs objectstorage.Store, om *metrics.OperationalMetrics) *Worker {
	w := New(st, blobs)
	w.metrics = om
	return w
}

// Run sweeps on a fixed interval until ctx is cancelled, following
// internal/worker.StartWorkers's context-driven loop shape.
func (w *Worker) Run(ctx context.Context) {
	log := logger.GetDefault()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.Sweep(ctx); err != nil {
				log.Warn("gc sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep runs one pass of all three deletion rules. It is idempotent:
// re-running after a crash simply re-attempts any deletion that did not
// finish, since object-storage deletes tolerate an already-missing key
// and DeleteContentCache is a plain row delete.
func (w *Worker) Sweep(ctx context.Context) error {
	now := time.Now().UTC()

	if err := w.sweepRule(ctx, now.Add(-w.failedTTL), model.CacheStatusFailed, "failed_ttl"); err != nil {
		return fmt.Errorf("sweep failed caches: %w", err)
	}
	if err := w.sweepRule(ctx, now.Add(-w.stuckTTL), model.CacheStatusUploading, "stuck_ttl"); err != nil {
		return fmt.Errorf("sweep orphaned uploads: %w", err)
	}
	if err := w.sweepRule(ctx, now.Add(-w.ageTTL), model.CacheStatusReady, "age_ttl"); err != nil {
		return fmt.Errorf("sweep aged caches: %w", err)
	}
	return nil
}

func (w *Worker) sweepRule(ctx context.Context, olderThan time.Time, status model.CacheStatus, reason string) error {
	candidates, err := w.store.ListStaleCaches(ctx, olderThan)
	if err != nil {
		return fmt.Errorf("list stale caches: %w", err)
	}
	for _, c := range candidates {
		if c.Status != status {
			continue
		}
		w.deleteCache(ctx, c, reason)
	}
	return nil
}

// deleteCache removes every object-storage entry for c, then cascades the
// row delete. Individual object-delete failures are logged and skipped
// rather than aborting the cache's deletion; a re-run will retry them.
func (w *Worker) deleteCache(ctx context.Context, c *model.RepoContentCache, reason string) {
	log := logger.GetDefault().With(
		zap.String("cache_id", c.ID),
		zap.String("repository_id", c.RepositoryID),
		zap.String("commit_sha", c.CommitSHA),
		zap.String("status", string(c.Status)),
	)

	objects, err := w.store.ListContentObjects(ctx, c.ID)
	if err != nil {
		log.Warn("list content objects failed, skipping cache this pass", zap.Error(err))
		return
	}
	for _, obj := range objects {
		if err := w.blobs.Delete(ctx, obj.ObjectKey); err != nil {
			log.Warn("delete object storage entry failed", zap.String("object_key", obj.ObjectKey), zap.Error(err))
		}
	}

	if err := w.store.DeleteContentCache(ctx, c.ID); err != nil {
		log.Warn("delete content cache row failed", zap.Error(err))
		return
	}
	if w.metrics != nil {
		w.metrics.RecordGCDeletion(ctx, reason)
	}
	log.Info("deleted content cache")
}
