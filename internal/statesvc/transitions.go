// Package statesvc implements the Analysis State Service (spec.md §4.1):
// the per-track transition tables, progress bounds, derived overall stage,
// and the event publication that feeds the SSE endpoint.
package statesvc

import "github.com/northbound/codewatch/internal/apperrors"

// transitionTable maps a track's current status to the set of statuses it
// may legally move to next. Tracks are data, not code, per spec.md §4.1's
// explicit call for a table-driven state machine rather than a scattered
// if-chain.
//
// Every non-terminal status also lists "failed" as reachable even where
// the forward-only happy path wouldn't otherwise allow it (e.g. "pending"
// for a track that never started running). This is exclusively the
// heartbeat stuck detector's (internal/heartbeat) override path, spec.md
// §4.8's "only mechanism that may externally fail an otherwise-advancing
// analysis" — no normal worker ever transitions a pending track straight
// to failed.
var staticTransitions = map[string][]string{
	"pending":   {"running", "failed"},
	"running":   {"completed", "failed"},
	"completed": {},
	"failed":    {},
}

var embeddingsTransitions = map[string][]string{
	"none":      {"pending", "failed"},
	"pending":   {"running", "failed"},
	"running":   {"completed", "failed"},
	"completed": {},
	"failed":    {},
}

var semanticCacheTransitions = map[string][]string{
	"none":                {"pending", "failed"},
	"pending":             {"computing", "failed"},
	"computing":           {"generating_insights", "failed"},
	"generating_insights": {"completed", "failed"},
	"completed":           {},
	"failed":              {},
}

var aiScanTransitions = map[string][]string{
	"none":      {"pending", "failed"},
	"pending":   {"running", "failed"},
	"running":   {"completed", "failed"},
	"completed": {},
	"failed":    {},
}

func tableFor(track string) (map[string][]string, bool) {
	switch track {
	case "static":
		return staticTransitions, true
	case "embeddings":
		return embeddingsTransitions, true
	case "semantic_cache":
		return semanticCacheTransitions, true
	case "ai_scan":
		return aiScanTransitions, true
	default:
		return nil, false
	}
}

// checkTransition validates that from -> to is legal for track, returning
// apperrors.InvalidStateTransition when it is not.
func checkTransition(track, from, to string) error {
	table, ok := tableFor(track)
	if !ok {
		return &apperrors.InvalidStateTransition{Track: track, From: from, To: to}
	}
	for _, allowed := range table[from] {
		if allowed == to {
			return nil
		}
	}
	return &apperrors.InvalidStateTransition{Track: track, From: from, To: to}
}
