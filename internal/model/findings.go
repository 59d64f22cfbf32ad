package model

// IssueSeverity enumerates the severities an AI-scan issue may carry.
type IssueSeverity string

const (
	SeverityCritical IssueSeverity = "critical"
	SeverityHigh     IssueSeverity = "high"
	SeverityMedium   IssueSeverity = "medium"
	SeverityLow      IssueSeverity = "low"
)

// IssueStatus is the lifecycle of a detected issue after it is persisted.
type IssueStatus string

const (
	IssueOpen    IssueStatus = "open"
	IssueFixed   IssueStatus = "fixed"
	IssueIgnored IssueStatus = "ignored"
	IssueWontFix IssueStatus = "wont_fix"
)

// LineRange is an inclusive [Start, End] line span within a file.
type LineRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Issue is one detected code problem, merged from one or more model
// scanners by the AI Scan Worker's Merger phase.
type Issue struct {
	ID           string
	AnalysisID   string
	RepositoryID string
	Type         string
	Severity     IssueSeverity
	Title        string
	Description  string
	FilePath     string
	LineRange    LineRange
	Status       IssueStatus
	Confidence   float64 // [0,1]
	Metadata     map[string]any

	// Investigation carries the Investigator's verdict, if the issue was
	// investigated (severity critical/high only). Nil if not investigated.
	Investigation *InvestigationResult
}

// DeadCodeFinding records a function unreachable from any entry point, per
// spec.md's dead-code detection algorithm (§4.4).
type DeadCodeFinding struct {
	ID                string
	AnalysisID        string
	RepositoryID      string
	FilePath          string
	FunctionName      string
	LineStart         int
	LineEnd           int
	LineCount         int
	Confidence        float64 // 1.0 = call-graph-proven, lower = heuristic-only
	EvidenceText      string
	SuggestedAction   string
	ImpactScore       int // [0,100]
	IsDismissed       bool
}

// RiskFactor is a short tag explaining a contribution to a hot spot's risk
// score (e.g. "low_coverage", "many_authors", "high_churn").
type RiskFactor string

// FileChurnFinding records a hot-spot file: one with more than 10 changes
// in the last 90 days (spec.md §3).
type FileChurnFinding struct {
	ID           string
	AnalysisID   string
	FilePath     string
	Changes90d   int
	CoverageRate *float64 // nil when unknown
	UniqueAuthors int
	RiskFactors  []RiskFactor
	RiskScore    int // [0,100]
}

// IsHotSpot reports whether this finding crosses the hot-spot threshold
// named in spec.md's glossary.
func (f FileChurnFinding) IsHotSpot() bool {
	return f.Changes90d > 10
}

// InsightType enumerates the kinds of architecture insight the Cluster
// Analyzer's LLM summary phase can produce.
type InsightType string

const (
	InsightDeadCode     InsightType = "dead_code"
	InsightHotSpot      InsightType = "hot_spot"
	InsightArchitecture InsightType = "architecture"
)

// InsightPriority is the urgency the LLM assigned an insight.
type InsightPriority string

const (
	PriorityHigh   InsightPriority = "high"
	PriorityMedium InsightPriority = "medium"
	PriorityLow    InsightPriority = "low"
)

// SemanticAIInsight is one LLM-authored architectural observation derived
// from the cluster summary (spec.md §3).
type SemanticAIInsight struct {
	ID              string
	AnalysisID      string
	InsightType     InsightType
	Title           string
	Description     string
	Priority        InsightPriority
	AffectedFiles   []string
	Evidence        string
	SuggestedAction string
	IsDismissed     bool
}
