// Copyright (c) 2025 Northbound System

package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/northbound/codewatch/internal/callgraph"
	"github.com/northbound/codewatch/internal/logger"
	"github.com/northbound/codewatch/internal/model"
	"github.com/northbound/codewatch/internal/processor"
	"github.com/northbound/codewatch/internal/statesvc"
	"github.com/northbound/codewatch/internal/store"
	"github.com/northbound/codewatch/internal/vcs"
)

// Deterministic closed-form VCI scoring, in the style of
// internal/cluster/scoring.go: the source gives no literal coefficients for
// "static quality metrics", only the inputs a composite health score
// should combine, so the weights below are named constants rather than
// guessed published numbers (see DESIGN.md's Open Question resolution).
const (
	vciComplexityWeight  = 0.6
	vciUnreachableWeight = 0.4

	maxAverageComplexityForScore = 20.0
)

// StaticWorker implements the static-analysis track named in spec.md
// §4.2 step 5: clone the commit, walk its source tree, and derive the
// aggregate quality metrics stored on the Analysis row (vci_score,
// tech_debt_level, metrics). The concrete parse is the external
// tokenizer/AST capability spec.md's Non-goals name; this worker stands on
// the same heuristic seam internal/processor and internal/callgraph use
// elsewhere rather than inventing a second parser.
type StaticWorker struct {
	store  *store.Store
	state  *statesvc.Service
	cloner vcs.Cloner
	callgr callgraph.Analyzer
}

// NewStaticWorker builds a StaticWorker from its collaborators.
func NewStaticWorker(st *store.Store, state *statesvc.Service, cloner vcs.Cloner, callgr callgraph.Analyzer) *StaticWorker {
	return &StaticWorker{store: st, state: state, cloner: cloner, callgr: callgr}
}

// Run executes the static track end to end for one analysis.
func (w *StaticWorker) Run(ctx context.Context, analysisID, repositoryID, commitSHA string) error {
	if err := w.state.Transition(ctx, analysisID, model.TrackStatic, "running", ""); err != nil {
		return fmt.Errorf("transition to running: %w", err)
	}
	if err := w.state.UpdateProgress(ctx, analysisID, model.TrackStatic, 1); err != nil {
		return fmt.Errorf("report initial progress: %w", err)
	}

	if err := w.compute(ctx, analysisID, repositoryID, commitSHA); err != nil {
		_ = w.state.Transition(ctx, analysisID, model.TrackStatic, "failed", err.Error())
		return err
	}

	if err := w.state.UpdateProgress(ctx, analysisID, model.TrackStatic, 99); err != nil {
		_ = w.state.Transition(ctx, analysisID, model.TrackStatic, "failed", err.Error())
		return err
	}
	return w.state.Transition(ctx, analysisID, model.TrackStatic, "completed", "")
}

func (w *StaticWorker) compute(ctx context.Context, analysisID, repositoryID, commitSHA string) error {
	repoDir, cleanup, err := w.cloner.Clone(ctx, repositoryID, commitSHA)
	if err != nil {
		return fmt.Errorf("clone %s@%s: %w", repositoryID, commitSHA, err)
	}
	defer cleanup()

	paths, err := walkEmbeddableFiles(repoDir)
	if err != nil {
		return fmt.Errorf("walk repo tree: %w", err)
	}
	if err := w.state.UpdateProgress(ctx, analysisID, model.TrackStatic, 20); err != nil {
		return fmt.Errorf("report progress: %w", err)
	}

	var totalLines, fileCount int
	var complexitySum float64
	log := logger.GetDefault()
	for _, relPath := range paths {
		content, err := os.ReadFile(filepath.Join(repoDir, relPath))
		if err != nil {
			log.Warn("static: skipping unreadable file", zap.String("path", relPath), zap.Error(err))
			continue
		}
		if !utf8.Valid(content) {
			continue
		}
		fileCount++
		totalLines += strings.Count(string(content), "\n") + 1
		complexitySum += processor.EstimateComplexity(string(content))
	}
	if err := w.state.UpdateProgress(ctx, analysisID, model.TrackStatic, 55); err != nil {
		return fmt.Errorf("report progress: %w", err)
	}

	reach, err := w.callgr.Analyze(ctx, repoDir)
	if err != nil {
		return fmt.Errorf("analyze call graph: %w", err)
	}
	var unreachable int
	for _, r := range reach {
		if !r.Reachable {
			unreachable++
		}
	}
	if err := w.state.UpdateProgress(ctx, analysisID, model.TrackStatic, 85); err != nil {
		return fmt.Errorf("report progress: %w", err)
	}

	averageComplexity := 0.0
	if fileCount > 0 {
		averageComplexity = complexitySum / float64(fileCount)
	}
	unreachableRatio := 0.0
	if len(reach) > 0 {
		unreachableRatio = float64(unreachable) / float64(len(reach))
	}

	vci := vciScore(averageComplexity, unreachableRatio)
	level := techDebtLevel(vci)
	metrics := map[string]any{
		"total_lines":         totalLines,
		"file_count":          fileCount,
		"average_complexity":  averageComplexity,
		"unreachable_symbols": unreachable,
		"total_symbols":       len(reach),
	}

	return w.store.SetScore(ctx, analysisID, vci, level, metrics)
}

// vciScore folds average cyclomatic complexity and the unreachable-symbol
// ratio into a single 0-100 health score, higher being healthier.
func vciScore(averageComplexity, unreachableRatio float64) float64 {
	complexityTerm := clamp01Static(averageComplexity / maxAverageComplexityForScore)
	score := 100 * (1 - (vciComplexityWeight*complexityTerm + vciUnreachableWeight*clamp01Static(unreachableRatio)))
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

func clamp01Static(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func techDebtLevel(vci float64) model.TechDebtLevel {
	switch {
	case vci >= 80:
		return model.TechDebtLow
	case vci >= 60:
		return model.TechDebtModerate
	case vci >= 35:
		return model.TechDebtHigh
	default:
		return model.TechDebtCritical
	}
}
