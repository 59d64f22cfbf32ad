// Package model defines the persistent domain types of the analysis
// execution core: the Analysis record and its three substate tracks, the
// findings an analysis produces, and the content-cache and vector-index
// payload shapes they share.
package model

import "time"

// TriggerType identifies what caused an analysis to be scheduled.
type TriggerType string

const (
	TriggerScheduled TriggerType = "scheduled"
	TriggerWebhook   TriggerType = "webhook"
	TriggerManual    TriggerType = "manual"
)

// Status is the legacy aggregate status of the static-analysis track.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// EmbeddingsStatus tracks the embeddings substate.
type EmbeddingsStatus string

const (
	EmbeddingsNone      EmbeddingsStatus = "none"
	EmbeddingsPending   EmbeddingsStatus = "pending"
	EmbeddingsRunning   EmbeddingsStatus = "running"
	EmbeddingsCompleted EmbeddingsStatus = "completed"
	EmbeddingsFailed    EmbeddingsStatus = "failed"
)

// SemanticCacheStatus tracks the semantic-cache substate, which chains
// after embeddings completion.
type SemanticCacheStatus string

const (
	SemanticCacheNone                SemanticCacheStatus = "none"
	SemanticCachePending             SemanticCacheStatus = "pending"
	SemanticCacheComputing           SemanticCacheStatus = "computing"
	SemanticCacheGeneratingInsights  SemanticCacheStatus = "generating_insights"
	SemanticCacheCompleted           SemanticCacheStatus = "completed"
	SemanticCacheFailed              SemanticCacheStatus = "failed"
)

// AIScanStatus tracks the AI-scan substate.
type AIScanStatus string

const (
	AIScanNone      AIScanStatus = "none"
	AIScanPending   AIScanStatus = "pending"
	AIScanRunning   AIScanStatus = "running"
	AIScanCompleted AIScanStatus = "completed"
	AIScanFailed    AIScanStatus = "failed"
)

// TechDebtLevel is a coarse qualitative bucket derived from VCIScore.
type TechDebtLevel string

const (
	TechDebtLow      TechDebtLevel = "low"
	TechDebtModerate TechDebtLevel = "moderate"
	TechDebtHigh     TechDebtLevel = "high"
	TechDebtCritical TechDebtLevel = "critical"
)

// Track identifies one of the three independently-advancing substates
// understood by the state service. SemanticCache is not independent (it
// chains after Embeddings) but is still addressed as a track for
// transition purposes.
type Track string

const (
	TrackStatic         Track = "static"
	TrackEmbeddings     Track = "embeddings"
	TrackSemanticCache  Track = "semantic_cache"
	TrackAIScan         Track = "ai_scan"
)

// Analysis is the central entity: one row per (repository, commit, trigger,
// started_at) tuple, per spec.md §3.
type Analysis struct {
	ID           string
	RepositoryID string
	CommitSHA    string
	Branch       string
	TriggerType  TriggerType
	RequestedBy  string // opaque caller identity, used only for rate-limit scoping

	Status         Status
	StaticProgress int
	StaticStartedAt   *time.Time
	StaticCompletedAt *time.Time
	StaticError       string

	EmbeddingsStatus    EmbeddingsStatus
	EmbeddingsProgress  int
	EmbeddingsStartedAt   *time.Time
	EmbeddingsCompletedAt *time.Time
	EmbeddingsError       string

	SemanticCacheStatus    SemanticCacheStatus
	SemanticCacheProgress  int
	SemanticCacheStartedAt   *time.Time
	SemanticCacheCompletedAt *time.Time
	SemanticCacheError       string

	AIScanStatus    AIScanStatus
	AIScanProgress  int
	AIScanStartedAt   *time.Time
	AIScanCompletedAt *time.Time
	AIScanError       string

	HeartbeatAt time.Time

	VCIScore      float64 // fixed-point 5,2 semantics; stored as float64, rendered to 2 decimals
	TechDebtLevel TechDebtLevel
	Metrics       map[string]any

	SemanticCache SemanticCacheDoc
	AIScanCache   AIScanCacheDoc

	Pinned bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TrackState is a read-only projection of one track's (status, progress,
// started_at, completed_at, error) tuple, used by the state service's
// transition tables so all four tracks can share one code path.
type TrackState struct {
	Status      string
	Progress    int
	StartedAt   *time.Time
	CompletedAt *time.Time
	Error       string
}

// OverallStage is the derived cross-track status described in spec.md §4.1.
type OverallStage string

const (
	OverallPending   OverallStage = "pending"
	OverallRunning   OverallStage = "running"
	OverallCompleted OverallStage = "completed"
	OverallFailed    OverallStage = "failed"
)

// FullStatus is the payload served by GET /analyses/{id}/full-status.
type FullStatus struct {
	Status                Status              `json:"status"`
	StaticProgress        int                 `json:"static_progress"`
	EmbeddingsStatus      EmbeddingsStatus    `json:"embeddings_status"`
	EmbeddingsProgress    int                 `json:"embeddings_progress"`
	SemanticCacheStatus   SemanticCacheStatus `json:"semantic_cache_status"`
	SemanticCacheProgress int                 `json:"semantic_cache_progress"`
	AIScanStatus          AIScanStatus        `json:"ai_scan_status"`
	AIScanProgress        int                 `json:"ai_scan_progress"`
	HeartbeatAt           time.Time           `json:"heartbeat_at"`
	OverallStage          OverallStage        `json:"overall_stage"`
	OverallProgress       int                 `json:"overall_progress"`
	IsComplete            bool                `json:"is_complete"`
	Errors                map[Track]string    `json:"errors"`
}
