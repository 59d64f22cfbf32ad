// Package apperrors defines the error taxonomy shared across the analysis
// execution core. Sentinel errors follow the plain errors.New style used
// throughout the example pack (e.g. codefang's ErrNotParallelizable);
// errors that carry caller-useful fields are typed structs satisfying the
// standard error interface so callers can errors.As into them.
package apperrors

import (
	"errors"
	"fmt"
)

// Sentinel errors for conditions with no attached data. Compare with
// errors.Is.
var (
	// ErrAnalysisNotFound is returned when an analysis ID does not exist.
	ErrAnalysisNotFound = errors.New("analysis not found")

	// ErrRepositoryNotFound is returned when a repository ID does not exist.
	ErrRepositoryNotFound = errors.New("repository not found")

	// ErrContentCacheNotFound is returned when no cache entry exists for a
	// (repository, commit) pair.
	ErrContentCacheNotFound = errors.New("content cache not found")

	// ErrContentCacheNotReady is returned by get_file/list_tree when a cache
	// entry exists but has not reached status ready.
	ErrContentCacheNotReady = errors.New("content cache not ready")

	// ErrHeartbeatStale is returned by the stuck detector's internal checks
	// when an analysis's heartbeat has exceeded the staleness window.
	ErrHeartbeatStale = errors.New("analysis heartbeat is stale")
)

// InvalidStateTransition is returned when the state service is asked to
// move a track to a status that its transition table does not permit from
// the track's current status.
type InvalidStateTransition struct {
	Track string
	From  string
	To    string
}

func (e *InvalidStateTransition) Error() string {
	return fmt.Sprintf("invalid %s transition: %s -> %s", e.Track, e.From, e.To)
}

// InvalidProgressValue is returned when a progress update falls outside
// [0,100] or regresses a track's progress.
type InvalidProgressValue struct {
	Track   string
	Value   int
	Reason  string
}

func (e *InvalidProgressValue) Error() string {
	return fmt.Sprintf("invalid %s progress %d: %s", e.Track, e.Value, e.Reason)
}

// AnalysisInFlight is returned when a trigger request targets a
// (repository, commit) pair that already has a non-terminal analysis.
type AnalysisInFlight struct {
	RepositoryID string
	CommitSHA    string
	ExistingID   string
}

func (e *AnalysisInFlight) Error() string {
	return fmt.Sprintf("analysis already in flight for %s@%s (id=%s)", e.RepositoryID, e.CommitSHA, e.ExistingID)
}

// RateLimited is returned by the rate limiter when a caller has exceeded
// its fixed-window quota.
type RateLimited struct {
	Scope      string
	RetryAfter int // seconds
}

func (e *RateLimited) Error() string {
	return fmt.Sprintf("rate limited on %s, retry after %ds", e.Scope, e.RetryAfter)
}

// UpstreamUnavailable wraps a failure from an external dependency (vector
// index, object storage, LLM provider, git remote) behind a uniform type so
// HTTP handlers and circuit breakers can classify it without depending on
// the concrete client package.
type UpstreamUnavailable struct {
	Upstream string
	Err      error
}

func (e *UpstreamUnavailable) Error() string {
	return fmt.Sprintf("upstream %s unavailable: %v", e.Upstream, e.Err)
}

func (e *UpstreamUnavailable) Unwrap() error { return e.Err }

// CorruptPayload is returned when a stored JSON document (vector payload,
// semantic_cache, ai_scan_cache) fails schema validation on read or write.
type CorruptPayload struct {
	Kind   string
	Reason string
}

func (e *CorruptPayload) Error() string {
	return fmt.Sprintf("corrupt %s payload: %s", e.Kind, e.Reason)
}
