// Copyright (c) 2025 Northbound System
package cluster

import (
	"github.com/northbound/codewatch/internal/callgraph"
	"github.com/northbound/codewatch/internal/model"
	"github.com/northbound/codewatch/internal/vectordb"
)

const heuristicOnlyConfidence = 0.5

func reachabilityIndex(verdicts []callgraph.Reachability) map[string]callgraph.Reachability {
	idx := make(map[string]callgraph.Reachability, len(verdicts))
	for _, v := range verdicts {
		idx[v.Symbol.FilePath+"::"+v.Symbol.Name] = v
	}
	return idx
}

// DetectDeadCode turns clustering outliers that survive architectural
// filtering into DeadCodeFinding rows (spec.md §4.4 step 4). Only points
// that clustering marked as outliers (cluster_id -1) and whose file
// context is not an IsExpectedOutlier are considered; a point is reported
// dead iff the call-graph analyzer also found no reachability path, or
// never heard of the symbol at all (heuristic-only, lower confidence).
func DetectDeadCode(
	analysisID, repositoryID string,
	outliers []vectordb.Match,
	verdicts []callgraph.Reachability,
	centrality map[string]float64,
	lastModifiedAgeDays map[string]int,
) []model.DeadCodeFinding {
	idx := reachabilityIndex(verdicts)
	var findings []model.DeadCodeFinding

	for _, pt := range outliers {
		archCtx := ClassifyFile(pt.Payload.FilePath)
		if IsExpectedOutlier(archCtx) {
			continue
		}

		key := pt.Payload.FilePath + "::" + pt.Payload.Name
		verdict, known := idx[key]
		if known && verdict.Reachable {
			continue
		}

		confidence := heuristicOnlyConfidence
		evidence := "clustering outlier with no identifier-reference evidence of use"
		if known {
			confidence = verdict.Confidence
			evidence = "no call-graph path from any configured entry point"
		}

		lineCount := pt.Payload.LineEnd - pt.Payload.LineStart + 1
		age := lastModifiedAgeDays[pt.Payload.FilePath]
		impact := ImpactScore(lineCount, age, centrality[pt.ID])

		findings = append(findings, model.DeadCodeFinding{
			AnalysisID:      analysisID,
			RepositoryID:    repositoryID,
			FilePath:        pt.Payload.FilePath,
			FunctionName:    pt.Payload.Name,
			LineStart:       pt.Payload.LineStart,
			LineEnd:         pt.Payload.LineEnd,
			LineCount:       lineCount,
			Confidence:      confidence,
			EvidenceText:    evidence,
			SuggestedAction: "Confirm no remaining references, then remove.",
			ImpactScore:     impact,
		})
	}

	return findings
}
