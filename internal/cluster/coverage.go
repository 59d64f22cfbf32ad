// Copyright (c) 2025 Northbound System
package cluster

import "context"

// CoverageAnalyzer reports a file's test-coverage rate, the collaborator
// spec.md §4.4 step 5 calls "the Coverage analyzer". Like
// internal/callgraph.Analyzer, this is a stand-in for an external
// capability (running `go test -coverprofile` and parsing it, or reading
// a CI-uploaded coverage report) that spec.md's Non-goals place outside
// this core.
type CoverageAnalyzer interface {
	// CoverageRate returns the fraction of filePath's lines covered by
	// tests, or nil if coverage data isn't available for that file.
	CoverageRate(ctx context.Context, repoDir, filePath string) (*float64, error)
}

// UnknownCoverageAnalyzer always reports unknown coverage. It is the
// default until a real coverage-report integration is wired in; RiskScore
// already treats unknown coverage as the worst case so this stub doesn't
// silently understate risk.
type UnknownCoverageAnalyzer struct{}

func (UnknownCoverageAnalyzer) CoverageRate(ctx context.Context, repoDir, filePath string) (*float64, error) {
	return nil, nil
}
