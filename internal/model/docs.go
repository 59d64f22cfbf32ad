package model

// This file defines the two polymorphic JSON documents spec.md §9 asks for:
// semantic_cache and ai_scan_cache. Both are tagged variants rooted at a
// schema_version int; readers decode them through these typed structs
// instead of treating them as opaque maps. internal/store decodes them
// with plain json.Unmarshal and discards its error: a field outside the
// declared shape is ignored, not rejected, and a document that fails to
// decode is left at its zero value.

// ArchitectureSummary is the LLM-ready summary handed to the Cluster
// Analyzer's insight-generation phase (spec.md §4.4 step 8).
type ArchitectureSummary struct {
	HealthScore  int            `json:"health_score"` // [0,100]
	MainConcerns []string       `json:"main_concerns"`
	Counts       map[string]int `json:"counts"`
}

// SemanticCacheDoc is the semantic_cache column's decoded shape: the
// cluster analyzer's snapshot artefacts for one (repository, commit).
type SemanticCacheDoc struct {
	SchemaVersion int                   `json:"schema_version"`
	RepositoryID  string                `json:"repository_id"`
	CommitSHA     string                `json:"commit_sha"`
	Summary       ArchitectureSummary   `json:"summary"`
	DeadCode      []DeadCodeFinding     `json:"dead_code"`
	HotSpots      []FileChurnFinding    `json:"hot_spots"`
	Insights      []SemanticAIInsight  `json:"insights"`
}

// CandidateIssue is one model's raw broad-scan output before merging
// (spec.md §4.5).
type CandidateIssue struct {
	ModelID     string        `json:"model_id"`
	Dimension   string        `json:"dimension"`
	Severity    IssueSeverity `json:"severity"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	File        string        `json:"file"`
	LineStart   *int          `json:"line_start,omitempty"`
	LineEnd     *int          `json:"line_end,omitempty"`
	Confidence  float64       `json:"confidence"`
	Evidence    string        `json:"evidence"`
}

// InvestigationVerdict is the Investigator agent's conclusion.
type InvestigationVerdict string

const (
	VerdictConfirmed    InvestigationVerdict = "confirmed"
	VerdictRefuted      InvestigationVerdict = "refuted"
	VerdictInconclusive InvestigationVerdict = "inconclusive"
)

// ToolInvocation is one value object appended to the investigation trace,
// per spec.md §9 ("sandboxed tool calls" note).
type ToolInvocation struct {
	Tool       string `json:"tool"`
	Input      string `json:"input"`
	Output     string `json:"output"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// InvestigationResult is attached to a merged Issue when it was
// investigated (severity critical/high only).
type InvestigationResult struct {
	Verdict     InvestigationVerdict `json:"verdict"`
	Explanation string                `json:"explanation"`
	Trace       []ToolInvocation      `json:"trace"`
	Iterations  int                   `json:"iterations"`
}

// AIScanCacheDoc is the ai_scan_cache column's decoded shape: the
// self-contained result of a broad-scan + merge + investigate run for one
// commit (spec.md §4.5).
type AIScanCacheDoc struct {
	SchemaVersion int       `json:"schema_version"`
	RepositoryID  string    `json:"repository_id"`
	CommitSHA     string    `json:"commit_sha"`
	ModelsQueried []string  `json:"models_queried"`
	Issues        []Issue   `json:"issues"`
}
