// Copyright (c) 2025 Northbound System
package cluster

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/northbound/codewatch/internal/vcs"
)

type fakeCoverage struct {
	rates map[string]*float64
}

func (f fakeCoverage) CoverageRate(ctx context.Context, repoDir, filePath string) (*float64, error) {
	return f.rates[filePath], nil
}

func TestDetectHotSpots_FlagsOnlyFilesOverThreshold(t *testing.T) {
	churn := []vcs.FileChurn{
		{Path: "internal/api/handler.go", ChangesInWindow: 25, Authors: []vcs.AuthorStat{{Author: "a"}, {Author: "b"}}},
		{Path: "internal/models/user.go", ChangesInWindow: 2, Authors: []vcs.AuthorStat{{Author: "a"}}},
	}
	cov := 0.9
	findings, err := DetectHotSpots(context.Background(), "a1", "/repo", churn, fakeCoverage{rates: map[string]*float64{"internal/api/handler.go": &cov}})
	require.NoError(t, err)

	require.Len(t, findings, 1)
	assert.Equal(t, "internal/api/handler.go", findings[0].FilePath)
	assert.True(t, findings[0].IsHotSpot())
}

func TestDetectHotSpots_UnknownCoverageAddsRiskFactor(t *testing.T) {
	churn := []vcs.FileChurn{
		{Path: "internal/api/handler.go", ChangesInWindow: 15, Authors: []vcs.AuthorStat{{Author: "a"}}},
	}
	findings, err := DetectHotSpots(context.Background(), "a1", "/repo", churn, UnknownCoverageAnalyzer{})
	require.NoError(t, err)

	require.Len(t, findings, 1)
	assert.Nil(t, findings[0].CoverageRate)
	assert.Contains(t, findings[0].RiskFactors, riskFactorLowCoverage)
}

func TestDetectHotSpots_ManyAuthorsAddsRiskFactor(t *testing.T) {
	churn := []vcs.FileChurn{
		{Path: "internal/api/handler.go", ChangesInWindow: 15, Authors: []vcs.AuthorStat{{Author: "a"}, {Author: "b"}, {Author: "c"}, {Author: "d"}}},
	}
	cov := 0.9
	findings, err := DetectHotSpots(context.Background(), "a1", "/repo", churn, fakeCoverage{rates: map[string]*float64{"internal/api/handler.go": &cov}})
	require.NoError(t, err)

	require.Len(t, findings, 1)
	assert.Contains(t, findings[0].RiskFactors, riskFactorManyAuthors)
}
