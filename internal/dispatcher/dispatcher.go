// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/northbound/codewatch/internal/apperrors"
	"github.com/northbound/codewatch/internal/model"
	"github.com/northbound/codewatch/internal/queue"
	"github.com/northbound/codewatch/internal/statesvc"
	"github.com/northbound/codewatch/internal/store"
	"github.com/northbound/codewatch/internal/vcs"
)

// Job type names carried on the queue, one per worker in spec.md §4.2 step 5.
const (
	JobTypeStaticAnalysis = "static-analysis"
	JobTypeEmbeddings     = "embeddings"
	JobTypeAIScan         = "ai-scan"
)

// TaskPayload is the body every dispatched job carries: enough for a worker
// to clone the repository on its own and report back against the right
// analysis row. repository_id doubles as the git remote URL the workers and
// internal/vcs resolve against, since the core has no separate repository
// registry (see DESIGN.md's Open Question resolution on this).
type TaskPayload struct {
	AnalysisID   string `json:"analysis_id"`
	RepositoryID string `json:"repository_id"`
	CommitSHA    string `json:"commit_sha"`
}

// Dispatcher implements spec.md §4.2: resolve the commit, acquire the
// logical (repository, commit) lock, insert the Analysis row, transition
// its tracks to pending, and enqueue one independent job per track. It
// never waits for a worker to pick up or finish a job.
type Dispatcher struct {
	store               *store.Store
	state               *statesvc.Service
	heads               vcs.HeadResolver
	jobQueue            queue.Queue
	heartbeatStaleAfter time.Duration
}

// New builds a Dispatcher over the given collaborators. heartbeatStaleAfter
// is the staleness threshold spec.md §4.2 step 2 checks before superseding
// an in-flight analysis.
func New(st *store.Store, state *statesvc.Service, heads vcs.HeadResolver, jobQueue queue.Queue, heartbeatStaleAfter time.Duration) *Dispatcher {
	return &Dispatcher{store: st, state: state, heads: heads, jobQueue: jobQueue, heartbeatStaleAfter: heartbeatStaleAfter}
}

// Trigger runs spec.md §4.2's dispatch protocol and returns the new
// Analysis's id. If an analysis is already in flight for (repositoryID,
// commitSHA), it returns an *apperrors.AnalysisInFlight error (mapped to
// HTTP 409 by internal/server).
func (d *Dispatcher) Trigger(ctx context.Context, repositoryID, commitSHA, branch string, trigger model.TriggerType, requestedBy string) (string, error) {
	if commitSHA == "" {
		resolved, err := d.heads.ResolveHead(ctx, repositoryID, branch)
		if err != nil {
			return "", fmt.Errorf("resolve head for %s@%s: %w", repositoryID, branch, err)
		}
		commitSHA = resolved
	}

	analysis, created, err := d.store.TriggerOrReuse(ctx, repositoryID, commitSHA, branch, trigger, requestedBy, d.heartbeatStaleAfter)
	if err != nil {
		var inFlight *apperrors.AnalysisInFlight
		if errors.As(err, &inFlight) {
			return "", err
		}
		return "", fmt.Errorf("trigger or reuse analysis: %w", err)
	}
	if !created {
		// TriggerOrReuse only returns created=false alongside a non-nil
		// error (the in-flight case handled above), so this is unreachable
		// in practice; guarded defensively since a future store change
		// could violate that contract silently.
		return "", fmt.Errorf("unexpected non-creation without error for %s@%s", repositoryID, commitSHA)
	}

	if err := d.state.Transition(ctx, analysis.ID, model.TrackEmbeddings, "pending", ""); err != nil {
		return "", fmt.Errorf("transition embeddings to pending: %w", err)
	}
	if err := d.state.Transition(ctx, analysis.ID, model.TrackAIScan, "pending", ""); err != nil {
		return "", fmt.Errorf("transition ai_scan to pending: %w", err)
	}

	payload := TaskPayload{AnalysisID: analysis.ID, RepositoryID: repositoryID, CommitSHA: commitSHA}
	for _, jobType := range []string{JobTypeStaticAnalysis, JobTypeEmbeddings, JobTypeAIScan} {
		if err := d.enqueue(ctx, jobType, payload); err != nil {
			return "", fmt.Errorf("enqueue %s job: %w", jobType, err)
		}
	}

	return analysis.ID, nil
}

func (d *Dispatcher) enqueue(ctx context.Context, jobType string, payload TaskPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal task payload: %w", err)
	}
	return d.jobQueue.Enqueue(ctx, queue.Job{Type: jobType, Payload: body, CreatedAt: time.Now().UTC()})
}
