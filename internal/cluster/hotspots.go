// Copyright (c) 2025 Northbound System
package cluster

import (
	"context"
	"fmt"

	"github.com/northbound/codewatch/internal/model"
	"github.com/northbound/codewatch/internal/vcs"
)

const (
	highChurnThreshold   = 10
	lowCoverageThreshold = 0.5
	manyAuthorsThreshold = 3
)

const (
	riskFactorHighChurn   model.RiskFactor = "high_churn"
	riskFactorLowCoverage model.RiskFactor = "low_coverage"
	riskFactorManyAuthors model.RiskFactor = "many_authors"
)

// DetectHotSpots turns raw git-log churn signal into FileChurnFinding rows
// per spec.md §4.4 step 5: invoke the coverage analyzer for each churned
// file, score it, and keep only files crossing the hot-spot threshold
// (FileChurnFinding.IsHotSpot, changes_90d > 10).
func DetectHotSpots(ctx context.Context, analysisID, repoDir string, churn []vcs.FileChurn, coverage CoverageAnalyzer) ([]model.FileChurnFinding, error) {
	var findings []model.FileChurnFinding

	for _, c := range churn {
		rate, err := coverage.CoverageRate(ctx, repoDir, c.Path)
		if err != nil {
			return nil, fmt.Errorf("coverage rate for %s: %w", c.Path, err)
		}

		finding := model.FileChurnFinding{
			AnalysisID:    analysisID,
			FilePath:      c.Path,
			Changes90d:    c.ChangesInWindow,
			CoverageRate:  rate,
			UniqueAuthors: len(c.Authors),
			RiskFactors:   riskFactors(c, rate),
			RiskScore:     RiskScore(c.ChangesInWindow, rate, len(c.Authors)),
		}
		if !finding.IsHotSpot() {
			continue
		}
		findings = append(findings, finding)
	}

	return findings, nil
}

func riskFactors(c vcs.FileChurn, rate *float64) []model.RiskFactor {
	var factors []model.RiskFactor
	if c.ChangesInWindow > highChurnThreshold {
		factors = append(factors, riskFactorHighChurn)
	}
	if rate == nil || *rate < lowCoverageThreshold {
		factors = append(factors, riskFactorLowCoverage)
	}
	if len(c.Authors) > manyAuthorsThreshold {
		factors = append(factors, riskFactorManyAuthors)
	}
	return factors
}
