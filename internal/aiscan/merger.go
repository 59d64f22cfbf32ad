// Copyright (c) 2025 Northbound System
package aiscan

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/northbound/codewatch/internal/model"
)

const (
	// SimilarityThreshold is the minimum combined similarity score at
	// which two candidate issues are merged, per spec.md §4.5.
	SimilarityThreshold = 0.82

	titleSimilarityWeight = 0.7
	lineOverlapWeight     = 0.3

	// consensusBoostPerModel is added to a merged issue's confidence for
	// every model beyond the first that agreed on it, capped at 1.0.
	consensusBoostPerModel = 0.08
)

type mergedGroup struct {
	members []model.CandidateIssue
	models  map[string]bool
}

// MergeCandidates deduplicates broad-scan candidates across models into
// Issue rows, per spec.md §4.5's Merge phase. Grouping is greedy: each
// candidate joins the first existing group whose representative it is
// similar enough to, or starts a new group.
func MergeCandidates(analysisID, repositoryID string, candidates []model.CandidateIssue) []model.Issue {
	var groups []*mergedGroup

	for _, c := range candidates {
		placed := false
		for _, g := range groups {
			if candidateSimilarity(g.members[0], c) >= SimilarityThreshold {
				g.members = append(g.members, c)
				g.models[c.ModelID] = true
				placed = true
				break
			}
		}
		if !placed {
			groups = append(groups, &mergedGroup{
				members: []model.CandidateIssue{c},
				models:  map[string]bool{c.ModelID: true},
			})
		}
	}

	issues := make([]model.Issue, 0, len(groups))
	for _, g := range groups {
		issues = append(issues, buildMergedIssue(analysisID, repositoryID, g))
	}
	return issues
}

func buildMergedIssue(analysisID, repositoryID string, g *mergedGroup) model.Issue {
	best := g.members[0]
	for _, m := range g.members[1:] {
		if m.Confidence > best.Confidence {
			best = m
		}
	}

	boosted := best.Confidence + consensusBoostPerModel*float64(len(g.models)-1)
	if boosted > 1.0 {
		boosted = 1.0
	}

	lr := model.LineRange{}
	if best.LineStart != nil {
		lr.Start = *best.LineStart
	}
	if best.LineEnd != nil {
		lr.End = *best.LineEnd
	}

	agreeing := make([]string, 0, len(g.models))
	for id := range g.models {
		agreeing = append(agreeing, id)
	}

	return model.Issue{
		AnalysisID:   analysisID,
		RepositoryID: repositoryID,
		Type:         best.Dimension,
		Severity:     best.Severity,
		Title:        best.Title,
		Description:  best.Description,
		FilePath:     best.File,
		LineRange:    lr,
		Status:       model.IssueOpen,
		Confidence:   boosted,
		Metadata:     map[string]any{"agreeing_models": agreeing},
	}
}

// candidateSimilarity combines exact (file, dimension) agreement with a
// sequence-ratio title similarity and a line-range overlap signal, per
// spec.md §4.5's "(normalized_title, file, dimension, line_range_overlap)".
func candidateSimilarity(a, b model.CandidateIssue) float64 {
	if !strings.EqualFold(a.File, b.File) || !strings.EqualFold(a.Dimension, b.Dimension) {
		return 0
	}
	titleSim := titleSimilarityRatio(normalizeTitle(a.Title), normalizeTitle(b.Title))
	overlap := 0.0
	if rangesOverlap(a.LineStart, a.LineEnd, b.LineStart, b.LineEnd) {
		overlap = 1.0
	}
	return titleSimilarityWeight*titleSim + lineOverlapWeight*overlap
}

func normalizeTitle(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

// titleSimilarityRatio is difflib's classic ratio formula, 2*M/T, computed
// from diffmatchpatch's diff output rather than a custom LCS.
func titleSimilarityRatio(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(a, b, false)
	common := 0
	for _, d := range diffs {
		if d.Type == diffmatchpatch.DiffEqual {
			common += len(d.Text)
		}
	}
	total := len(a) + len(b)
	if total == 0 {
		return 1
	}
	return 2 * float64(common) / float64(total)
}

// rangesOverlap reports whether two inclusive line ranges intersect.
// Missing range information on either side is treated as a non-penalizing
// wildcard rather than a mismatch.
func rangesOverlap(aStart, aEnd, bStart, bEnd *int) bool {
	if aStart == nil || aEnd == nil || bStart == nil || bEnd == nil {
		return true
	}
	return *aStart <= *bEnd && *bStart <= *aEnd
}
