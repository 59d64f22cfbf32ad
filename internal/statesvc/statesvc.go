package statesvc

import (
	"context"
	"fmt"
	"time"

	"github.com/northbound/codewatch/internal/apperrors"
	"github.com/northbound/codewatch/internal/events"
	"github.com/northbound/codewatch/internal/metrics"
	"github.com/northbound/codewatch/internal/model"
	"github.com/northbound/codewatch/internal/store"
)

// Service is the Analysis State Service: the single place that may mutate
// an Analysis's track statuses, enforcing the transition tables and
// progress bounds, then publishing the change on the event bus.
type Service struct {
	store   *store.Store
	bus     *events.Bus
	metrics *metrics.PipelineMetrics
}

// New builds a Service over the given persistence and event-bus handles,
// with no metrics recording.
func New(st *store.Store, bus *events.Bus) *Service {
	return &Service{store: st, bus: bus}
}

// NewWithMetrics builds a Service that additionally records every
// transition and track duration to pm. A nil pm behaves like New.
func NewWithMetrics(st *store.Store, bus *events.Bus, pm *metrics.PipelineMetrics) *Service {
	return &Service{store: st, bus: bus, metrics: pm}
}

func trackState(a *model.Analysis, track model.Track) model.TrackState {
	switch track {
	case model.TrackStatic:
		return model.TrackState{Status: string(a.Status), Progress: a.StaticProgress, StartedAt: a.StaticStartedAt, CompletedAt: a.StaticCompletedAt, Error: a.StaticError}
	case model.TrackEmbeddings:
		return model.TrackState{Status: string(a.EmbeddingsStatus), Progress: a.EmbeddingsProgress, StartedAt: a.EmbeddingsStartedAt, CompletedAt: a.EmbeddingsCompletedAt, Error: a.EmbeddingsError}
	case model.TrackSemanticCache:
		return model.TrackState{Status: string(a.SemanticCacheStatus), Progress: a.SemanticCacheProgress, StartedAt: a.SemanticCacheStartedAt, CompletedAt: a.SemanticCacheCompletedAt, Error: a.SemanticCacheError}
	case model.TrackAIScan:
		return model.TrackState{Status: string(a.AIScanStatus), Progress: a.AIScanProgress, StartedAt: a.AIScanStartedAt, CompletedAt: a.AIScanCompletedAt, Error: a.AIScanError}
	default:
		return model.TrackState{}
	}
}

// Transition moves one track to a new status, validating legality against
// that track's transition table and stamping started_at/completed_at as
// appropriate. errMsg is recorded only when toStatus is a failure status.
func (s *Service) Transition(ctx context.Context, analysisID string, track model.Track, toStatus string, errMsg string) error {
	a, err := s.store.GetAnalysis(ctx, analysisID)
	if err != nil {
		return err
	}
	cur := trackState(a, track)
	if err := checkTransition(string(track), cur.Status, toStatus); err != nil {
		return err
	}

	now := time.Now().UTC()
	next := cur
	next.Status = toStatus
	switch toStatus {
	case "running", "computing":
		next.StartedAt = &now
	case "completed", "failed":
		next.CompletedAt = &now
		if toStatus == "completed" {
			next.Progress = 100
		}
	}
	if toStatus == "failed" {
		next.Error = errMsg
	}

	if err := s.store.UpdateTrackState(ctx, analysisID, track, next); err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.RecordTransition(ctx, string(track), toStatus)
		if (toStatus == "completed" || toStatus == "failed") && cur.StartedAt != nil {
			s.metrics.RecordTrackDuration(ctx, string(track), now.Sub(*cur.StartedAt))
		}
	}

	kind := events.KindStage
	if toStatus == "completed" {
		kind = events.KindComplete
	} else if toStatus == "failed" {
		kind = events.KindError
	}
	s.bus.Publish(events.Event{AnalysisID: analysisID, Kind: kind, Track: track, Status: toStatus, Progress: next.Progress, Message: errMsg})

	// semantic_cache chains after embeddings completion (spec.md §4.1).
	if track == model.TrackEmbeddings && toStatus == "completed" {
		chainErr := s.Transition(ctx, analysisID, model.TrackSemanticCache, "pending", "")
		if chainErr != nil {
			return fmt.Errorf("chain semantic_cache after embeddings: %w", chainErr)
		}
	}
	return nil
}

// UpdateProgress sets one track's progress, rejecting out-of-range or
// regressing values (spec.md §8's progress-monotonicity invariant).
func (s *Service) UpdateProgress(ctx context.Context, analysisID string, track model.Track, progress int) error {
	if progress < 0 || progress > 100 {
		return &apperrors.InvalidProgressValue{Track: string(track), Value: progress, Reason: "out of [0,100] range"}
	}
	a, err := s.store.GetAnalysis(ctx, analysisID)
	if err != nil {
		return err
	}
	cur := trackState(a, track)
	if progress < cur.Progress {
		return &apperrors.InvalidProgressValue{Track: string(track), Value: progress, Reason: "progress cannot regress"}
	}
	cur.Progress = progress
	if err := s.store.UpdateTrackState(ctx, analysisID, track, cur); err != nil {
		return err
	}
	s.bus.Publish(events.Event{AnalysisID: analysisID, Kind: events.KindProgress, Track: track, Status: cur.Status, Progress: progress})
	return s.store.UpdateHeartbeat(ctx, analysisID, time.Now().UTC())
}

// Heartbeat bumps an analysis's liveness timestamp without otherwise
// changing state. Workers call this on a fixed interval while running.
func (s *Service) Heartbeat(ctx context.Context, analysisID string) error {
	return s.store.UpdateHeartbeat(ctx, analysisID, time.Now().UTC())
}

// FullStatus derives the cross-track aggregate view served by
// GET /analyses/{id}/full-status (spec.md §4.1).
func (s *Service) FullStatus(ctx context.Context, analysisID string) (*model.FullStatus, error) {
	a, err := s.store.GetAnalysis(ctx, analysisID)
	if err != nil {
		return nil, err
	}
	return deriveFullStatus(a), nil
}

func deriveFullStatus(a *model.Analysis) *model.FullStatus {
	errs := map[model.Track]string{}
	if a.StaticError != "" {
		errs[model.TrackStatic] = a.StaticError
	}
	if a.EmbeddingsError != "" {
		errs[model.TrackEmbeddings] = a.EmbeddingsError
	}
	if a.SemanticCacheError != "" {
		errs[model.TrackSemanticCache] = a.SemanticCacheError
	}
	if a.AIScanError != "" {
		errs[model.TrackAIScan] = a.AIScanError
	}

	stage, progress, complete := overallStage(a)

	return &model.FullStatus{
		Status:                a.Status,
		StaticProgress:        a.StaticProgress,
		EmbeddingsStatus:      a.EmbeddingsStatus,
		EmbeddingsProgress:    a.EmbeddingsProgress,
		SemanticCacheStatus:   a.SemanticCacheStatus,
		SemanticCacheProgress: a.SemanticCacheProgress,
		AIScanStatus:          a.AIScanStatus,
		AIScanProgress:        a.AIScanProgress,
		HeartbeatAt:           a.HeartbeatAt,
		OverallStage:          stage,
		OverallProgress:       progress,
		IsComplete:            complete,
		Errors:                errs,
	}
}

// overallStage derives the cross-track aggregate per spec.md §4.1: failed
// if any track failed, completed only once every track that applies
// (static, embeddings, semantic_cache, ai_scan) has reached a terminal
// completed state, running if anything is in flight, pending otherwise.
// Progress is the unweighted mean of the four track progresses.
func overallStage(a *model.Analysis) (model.OverallStage, int, bool) {
	if a.Status == model.StatusFailed || a.EmbeddingsStatus == model.EmbeddingsFailed ||
		a.SemanticCacheStatus == model.SemanticCacheFailed || a.AIScanStatus == model.AIScanFailed {
		return model.OverallFailed, overallProgress(a), false
	}

	allCompleted := a.Status == model.StatusCompleted &&
		a.EmbeddingsStatus == model.EmbeddingsCompleted &&
		a.SemanticCacheStatus == model.SemanticCacheCompleted &&
		a.AIScanStatus == model.AIScanCompleted
	if allCompleted {
		return model.OverallCompleted, 100, true
	}

	anyRunning := a.Status == model.StatusRunning || a.EmbeddingsStatus == model.EmbeddingsRunning ||
		a.SemanticCacheStatus == model.SemanticCacheComputing || a.SemanticCacheStatus == model.SemanticCacheGeneratingInsights ||
		a.AIScanStatus == model.AIScanRunning
	if anyRunning {
		return model.OverallRunning, overallProgress(a), false
	}

	anyCompleted := a.Status == model.StatusCompleted || a.EmbeddingsStatus == model.EmbeddingsCompleted ||
		a.SemanticCacheStatus == model.SemanticCacheCompleted || a.AIScanStatus == model.AIScanCompleted
	if anyCompleted {
		return model.OverallRunning, overallProgress(a), false
	}

	return model.OverallPending, overallProgress(a), false
}

func overallProgress(a *model.Analysis) int {
	sum := a.StaticProgress + a.EmbeddingsProgress + a.SemanticCacheProgress + a.AIScanProgress
	return sum / 4
}
