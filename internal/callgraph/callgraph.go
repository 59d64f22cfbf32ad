// Package callgraph defines the reachability-analysis collaborator that
// spec.md's Non-goals name as external ("the call-graph / AST analysis is
// an external capability"). Analyzer's concrete implementation here is a
// conservative heuristic, not a full compiler front end: it is a stand-in
// for the real external analyzer, not a replacement for one.
package callgraph

import "context"

// Symbol is one named, reachable-or-not unit the dead-code detector reasons
// about: a function, method, or top-level declaration.
type Symbol struct {
	FilePath  string
	Name      string
	LineStart int
	LineEnd   int
}

// Reachability is the Analyzer's verdict for one symbol.
type Reachability struct {
	Symbol     Symbol
	Reachable  bool
	Confidence float64 // 1.0 when call-graph-proven, lower for heuristic-only verdicts
}

// Analyzer reports which symbols in a repository are reachable from a set
// of entry points (main functions, exported package API, HTTP handlers).
type Analyzer interface {
	Analyze(ctx context.Context, repoDir string) ([]Reachability, error)
}
