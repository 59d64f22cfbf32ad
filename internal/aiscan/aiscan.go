// Copyright (c) 2025 Northbound System
package aiscan

import (
	"context"
	"fmt"

	"github.com/northbound/codewatch/internal/llm"
	"github.com/northbound/codewatch/internal/metrics"
	"github.com/northbound/codewatch/internal/model"
	"github.com/northbound/codewatch/internal/statesvc"
	"github.com/northbound/codewatch/internal/store"
	"github.com/northbound/codewatch/internal/vcs"
)

const schemaVersion = 1

// investigatedSeverities names the only severities spec.md §4.5 sends to
// the Investigate phase.
var investigatedSeverities = map[model.IssueSeverity]bool{
	model.SeverityCritical: true,
	model.SeverityHigh:     true,
}

// Worker runs the AI Scan Worker's three sub-phases (Broad Scan, Merge,
// Investigate) end to end for one analysis.
type Worker struct {
	store        *store.Store
	state        *statesvc.Service
	cloner       vcs.Cloner
	models       []llm.Client
	investigator *Investigator
	metrics      *metrics.PipelineMetrics
}

// New builds a Worker. investigator may be nil, in which case the
// Investigate phase is skipped and every critical/high issue is persisted
// without an InvestigationResult.
func New(st *store.Store, state *statesvc.Service, cloner vcs.Cloner, models []llm.Client, investigator *Investigator) *Worker {
	return &Worker{store: st, state: state, cloner: cloner, models: models, investigator: investigator}
}

// NewWithMetrics builds a Worker that additionally records one merged
// issue per severity to pm. A nil pm behaves like New.
func NewWithMetrics(st *store.Store, state *statesvc.Service, cloner vcs.Cloner, models []llm.Client, investigator *Investigator, pm *metrics.PipelineMetrics) *Worker {
	w := New(st, state, cloner, models, investigator)
	w.metrics = pm
	return w
}

// Run executes spec.md §4.5's full pipeline for one (repository, commit)
// analysis. On any step failure the ai_scan track is transitioned to
// failed with the error recorded. Merged issues are inserted before the
// ai_scan_cache document is written, so a failure writing that document
// or updating progress leaves the inserted issues stored.
func (w *Worker) Run(ctx context.Context, analysisID, repositoryID, commitSHA string) error {
	if err := w.state.Transition(ctx, analysisID, model.TrackAIScan, string(model.AIScanRunning), ""); err != nil {
		return fmt.Errorf("transition to running: %w", err)
	}

	doc, issues, err := w.compute(ctx, analysisID, repositoryID, commitSHA)
	if err != nil {
		_ = w.state.Transition(ctx, analysisID, model.TrackAIScan, string(model.AIScanFailed), err.Error())
		return err
	}

	if len(issues) > 0 {
		if err := w.store.InsertIssues(ctx, issues); err != nil {
			wrapped := fmt.Errorf("persist issues: %w", err)
			_ = w.state.Transition(ctx, analysisID, model.TrackAIScan, string(model.AIScanFailed), wrapped.Error())
			return wrapped
		}
	}
	doc.Issues = issues

	if err := w.store.SetAIScanCache(ctx, analysisID, doc); err != nil {
		wrapped := fmt.Errorf("persist ai scan cache document: %w", err)
		_ = w.state.Transition(ctx, analysisID, model.TrackAIScan, string(model.AIScanFailed), wrapped.Error())
		return wrapped
	}

	if err := w.state.UpdateProgress(ctx, analysisID, model.TrackAIScan, 100); err != nil {
		_ = w.state.Transition(ctx, analysisID, model.TrackAIScan, string(model.AIScanFailed), err.Error())
		return err
	}

	return w.state.Transition(ctx, analysisID, model.TrackAIScan, string(model.AIScanCompleted), "")
}

func (w *Worker) compute(ctx context.Context, analysisID, repositoryID, commitSHA string) (model.AIScanCacheDoc, []model.Issue, error) {
	repoDir, cleanup, err := w.cloner.Clone(ctx, repositoryID, commitSHA)
	if err != nil {
		return model.AIScanCacheDoc{}, nil, fmt.Errorf("clone %s@%s: %w", repositoryID, commitSHA, err)
	}
	defer cleanup()

	digest, err := BuildDigest(repoDir)
	if err != nil {
		return model.AIScanCacheDoc{}, nil, fmt.Errorf("build repository digest: %w", err)
	}

	modelsQueried := make([]string, 0, len(w.models))
	for _, c := range w.models {
		modelsQueried = append(modelsQueried, c.ModelID())
	}
	total := len(w.models)
	completed := 0
	candidates := BroadScan(ctx, w.models, digest, func(ModelProgress) {
		completed++
		if total == 0 {
			return
		}
		progress := completed * 60 / total // broad scan spans the first 60% of ai_scan progress
		_ = w.state.UpdateProgress(ctx, analysisID, model.TrackAIScan, progress)
	})

	issues := MergeCandidates(analysisID, repositoryID, candidates)

	if w.metrics != nil {
		for _, iss := range issues {
			w.metrics.RecordIssue(ctx, string(iss.Severity))
		}
	}

	if w.investigator != nil {
		investigated := 0
		toInvestigate := 0
		for _, iss := range issues {
			if investigatedSeverities[iss.Severity] {
				toInvestigate++
			}
		}
		for i := range issues {
			if !investigatedSeverities[issues[i].Severity] {
				continue
			}
			result, err := w.investigator.Investigate(ctx, repoDir, issues[i])
			if err != nil {
				return model.AIScanCacheDoc{}, nil, fmt.Errorf("investigate issue %q: %w", issues[i].Title, err)
			}
			issues[i].Investigation = &result
			investigated++
			if toInvestigate > 0 {
				progress := 60 + investigated*40/toInvestigate
				_ = w.state.UpdateProgress(ctx, analysisID, model.TrackAIScan, progress)
			}
		}
	}

	doc := model.AIScanCacheDoc{
		SchemaVersion: schemaVersion,
		RepositoryID:  repositoryID,
		CommitSHA:     commitSHA,
		ModelsQueried: modelsQueried,
	}
	return doc, issues, nil
}
