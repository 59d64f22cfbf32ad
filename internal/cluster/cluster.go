// Copyright (c) 2025 Northbound System

// Package cluster implements the Cluster / Architecture Analyzer
// (spec.md §4.4): density clustering of a commit's function/method
// embeddings, architectural classification of their files, dead-code and
// hot-spot detection over the resulting outliers, deterministic scoring,
// and an LLM-authored architecture summary.
package cluster

import (
	"context"
	"fmt"

	"github.com/northbound/codewatch/internal/callgraph"
	"github.com/northbound/codewatch/internal/llm"
	"github.com/northbound/codewatch/internal/model"
	"github.com/northbound/codewatch/internal/statesvc"
	"github.com/northbound/codewatch/internal/store"
	"github.com/northbound/codewatch/internal/vcs"
	"github.com/northbound/codewatch/internal/vectordb"
)

// churnWindowDays is the hot-spot lookback window spec.md §3 defines a hot
// spot against (changes_90d).
const churnWindowDays = 90

// ageLookbackDays bounds how far back last-modified ages are computed;
// commits older than this are treated as equally stale rather than paid
// for with an unbounded git-log scan.
const ageLookbackDays = 3650

// Analyzer runs the full Cluster / Architecture Analyzer pipeline for one
// analysis.
type Analyzer struct {
	store    *store.Store
	state    *statesvc.Service
	index    vectordb.Index
	cloner   vcs.Cloner
	churn    vcs.ChurnAnalyzer
	coverage CoverageAnalyzer
	callgr   callgraph.Analyzer
	insights llm.Client

	epsilon   float64
	minPoints int
}

// New builds an Analyzer from its collaborators. insightClient may be nil,
// in which case step 9 (LLM insight generation) is skipped and the
// semantic_cache track still completes with Insights left empty.
func New(
	st *store.Store,
	state *statesvc.Service,
	index vectordb.Index,
	cloner vcs.Cloner,
	churn vcs.ChurnAnalyzer,
	coverage CoverageAnalyzer,
	callgr callgraph.Analyzer,
	insightClient llm.Client,
) *Analyzer {
	return &Analyzer{
		store:     st,
		state:     state,
		index:     index,
		cloner:    cloner,
		churn:     churn,
		coverage:  coverage,
		callgr:    callgr,
		insights:  insightClient,
		epsilon:   DefaultEpsilon,
		minPoints: DefaultMinPoints,
	}
}

// Run executes spec.md §4.4's 9-step algorithm for one (repository,
// commit) analysis. repositoryID is the git remote URL used both as the
// vector-index filter key and the clone source. On any step failure the
// semantic_cache track is transitioned to failed with the error recorded.
// Dead-code findings, hot spots and insights are inserted one after
// another before the semantic_cache document is written, so a failure in
// a later write leaves the rows already inserted stored.
func (a *Analyzer) Run(ctx context.Context, analysisID, repositoryID, commitSHA string) error {
	if err := a.state.Transition(ctx, analysisID, model.TrackSemanticCache, "computing", ""); err != nil {
		return fmt.Errorf("transition to computing: %w", err)
	}

	summary, deadCode, hotSpots, err := a.compute(ctx, analysisID, repositoryID, commitSHA)
	if err != nil {
		_ = a.state.Transition(ctx, analysisID, model.TrackSemanticCache, "failed", err.Error())
		return err
	}

	doc := model.SemanticCacheDoc{
		SchemaVersion: schemaVersion,
		RepositoryID:  repositoryID,
		CommitSHA:     commitSHA,
		Summary:       summary,
		DeadCode:      deadCode,
		HotSpots:      hotSpots,
	}

	if err := a.state.Transition(ctx, analysisID, model.TrackSemanticCache, "generating_insights", ""); err != nil {
		_ = a.state.Transition(ctx, analysisID, model.TrackSemanticCache, "failed", err.Error())
		return err
	}

	insights, err := a.generateInsights(ctx, analysisID, summary, deadCode, hotSpots)
	if err != nil {
		_ = a.state.Transition(ctx, analysisID, model.TrackSemanticCache, "failed", err.Error())
		return err
	}
	doc.Insights = insights

	if len(deadCode) > 0 {
		if err := a.store.InsertDeadCodeFindings(ctx, deadCode); err != nil {
			wrapped := fmt.Errorf("persist dead-code findings: %w", err)
			_ = a.state.Transition(ctx, analysisID, model.TrackSemanticCache, "failed", wrapped.Error())
			return wrapped
		}
	}
	if len(hotSpots) > 0 {
		if err := a.store.InsertFileChurnFindings(ctx, hotSpots); err != nil {
			wrapped := fmt.Errorf("persist hot-spot findings: %w", err)
			_ = a.state.Transition(ctx, analysisID, model.TrackSemanticCache, "failed", wrapped.Error())
			return wrapped
		}
	}
	if len(insights) > 0 {
		if err := a.store.InsertInsights(ctx, insights); err != nil {
			wrapped := fmt.Errorf("persist insights: %w", err)
			_ = a.state.Transition(ctx, analysisID, model.TrackSemanticCache, "failed", wrapped.Error())
			return wrapped
		}
	}

	if err := a.store.SetSemanticCache(ctx, analysisID, doc); err != nil {
		wrapped := fmt.Errorf("persist semantic cache document: %w", err)
		_ = a.state.Transition(ctx, analysisID, model.TrackSemanticCache, "failed", wrapped.Error())
		return wrapped
	}

	return a.state.Transition(ctx, analysisID, model.TrackSemanticCache, "completed", "")
}

func (a *Analyzer) compute(ctx context.Context, analysisID, repositoryID, commitSHA string) (model.ArchitectureSummary, []model.DeadCodeFinding, []model.FileChurnFinding, error) {
	points, err := a.index.Scroll(ctx, vectordb.Filter{
		RepositoryID: repositoryID,
		CommitSHA:    commitSHA,
		ChunkTypeIn:  []model.ChunkType{model.ChunkFunction, model.ChunkMethod},
	}, 0)
	if err != nil {
		return model.ArchitectureSummary{}, nil, nil, fmt.Errorf("scroll vector index: %w", err)
	}

	clusters := DensityCluster(points, a.epsilon, a.minPoints)
	centrality := Centrality(points, a.epsilon)

	for _, p := range points {
		if err := a.index.UpdateClusterID(ctx, p.ID, clusters[p.ID]); err != nil {
			return model.ArchitectureSummary{}, nil, nil, fmt.Errorf("write back cluster_id for %s: %w", p.ID, err)
		}
	}

	var outliers []vectordb.Match
	for _, p := range points {
		if clusters[p.ID] == -1 {
			outliers = append(outliers, p)
		}
	}

	repoDir, cleanup, err := a.cloner.Clone(ctx, repositoryID, commitSHA)
	if err != nil {
		return model.ArchitectureSummary{}, nil, nil, fmt.Errorf("clone %s@%s: %w", repositoryID, commitSHA, err)
	}
	defer cleanup()

	var verdicts []callgraph.Reachability
	if a.callgr != nil {
		verdicts, err = a.callgr.Analyze(ctx, repoDir)
		if err != nil {
			return model.ArchitectureSummary{}, nil, nil, fmt.Errorf("call-graph analysis: %w", err)
		}
	}

	ageChurn, err := a.churn.Churn(ctx, repoDir, ageLookbackDays)
	if err != nil {
		return model.ArchitectureSummary{}, nil, nil, fmt.Errorf("compute last-modified ages: %w", err)
	}
	ageDays := lastModifiedAgeDays(ageChurn)

	deadCode := DetectDeadCode(analysisID, repositoryID, outliers, verdicts, centrality, ageDays)

	recentChurn, err := a.churn.Churn(ctx, repoDir, churnWindowDays)
	if err != nil {
		return model.ArchitectureSummary{}, nil, nil, fmt.Errorf("compute churn: %w", err)
	}
	coverage := a.coverage
	if coverage == nil {
		coverage = UnknownCoverageAnalyzer{}
	}
	hotSpots, err := DetectHotSpots(ctx, analysisID, repoDir, recentChurn, coverage)
	if err != nil {
		return model.ArchitectureSummary{}, nil, nil, fmt.Errorf("detect hot spots: %w", err)
	}

	summary := BuildSummary(deadCode, hotSpots, len(points))
	return summary, deadCode, hotSpots, nil
}

func (a *Analyzer) generateInsights(ctx context.Context, analysisID string, summary model.ArchitectureSummary, deadCode []model.DeadCodeFinding, hotSpots []model.FileChurnFinding) ([]model.SemanticAIInsight, error) {
	if a.insights == nil {
		return nil, nil
	}
	insights, err := GenerateInsights(ctx, a.insights, analysisID, summary, deadCode, hotSpots)
	if err != nil {
		return nil, fmt.Errorf("generate insights: %w", err)
	}
	return insights, nil
}
