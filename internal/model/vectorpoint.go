package model

// ChunkType enumerates the granularity of a chunked code symbol, per
// spec.md §3's vector-index payload schema.
type ChunkType string

const (
	ChunkFunction ChunkType = "function"
	ChunkClass    ChunkType = "class"
	ChunkMethod   ChunkType = "method"
	ChunkModule   ChunkType = "module"
	ChunkBlock    ChunkType = "block"
)

// MaxContentLength is the hard cap on VectorIndexPayload.Content, enforced
// by the embeddings worker when it truncates over-long chunks.
const MaxContentLength = 2000

// VectorIndexPayload is the versioned, field-indexed payload schema carried
// by every point in the vector index (spec.md §3). Field names mirror the
// spec exactly so json round-trips keep their meaning. Unknown keys in a
// raw payload map are rejected by ValidateRawPayload; Validate checks only
// the content-length and truncation invariants.
type VectorIndexPayload struct {
	SchemaVersion int `json:"schema_version"`

	RepositoryID string `json:"repository_id"` // indexed
	CommitSHA    string `json:"commit_sha"`    // indexed
	FilePath     string `json:"file_path"`     // indexed

	Language  string    `json:"language"` // indexed
	ChunkType ChunkType `json:"chunk_type"`

	Name       string `json:"name"`
	LineStart  int    `json:"line_start"`
	LineEnd    int    `json:"line_end"`
	ParentName string `json:"parent_name,omitempty"`
	Docstring  string `json:"docstring,omitempty"`

	Content             string `json:"content"`
	ContentTruncated    bool   `json:"content_truncated"`
	FullContentLength   int    `json:"full_content_length"`
	TokenEstimate       int    `json:"token_estimate"`

	Level              int     `json:"level"`               // indexed
	QualifiedName      string  `json:"qualified_name"`       // indexed
	CyclomaticComplexity float64 `json:"cyclomatic_complexity"` // indexed
	LineCount          int     `json:"line_count"`          // indexed
	ClusterID          int     `json:"cluster_id"`          // indexed, set post-clustering; -1 == outlier, unset == 0 before clustering runs
}

// CurrentSchemaVersion is the schema_version stamped onto every payload
// produced by this build of the embeddings worker.
const CurrentSchemaVersion = 1

// IndexedFields lists every payload field that spec.md §6 requires the
// vector index to maintain a field index for.
var IndexedFields = []string{
	"repository_id", "commit_sha", "file_path", "language",
	"level", "qualified_name", "cyclomatic_complexity", "line_count", "cluster_id",
}

// knownPayloadFields backs Validate's unknown-field rejection when a
// payload is decoded from an arbitrary map (e.g. round-tripped through the
// vector index's generic payload representation).
var knownPayloadFields = map[string]struct{}{
	"schema_version": {}, "repository_id": {}, "commit_sha": {}, "file_path": {},
	"language": {}, "chunk_type": {}, "name": {}, "line_start": {}, "line_end": {},
	"parent_name": {}, "docstring": {}, "content": {}, "content_truncated": {},
	"full_content_length": {}, "token_estimate": {}, "level": {}, "qualified_name": {},
	"cyclomatic_complexity": {}, "line_count": {}, "cluster_id": {},
}

// ValidateRawPayload rejects any key not in the declared schema, per
// spec.md §3/§8: "unknown fields are rejected."
func ValidateRawPayload(raw map[string]any) error {
	for k := range raw {
		if _, ok := knownPayloadFields[k]; !ok {
			return &UnknownPayloadFieldError{Field: k}
		}
	}
	return nil
}

// UnknownPayloadFieldError is returned by ValidateRawPayload.
type UnknownPayloadFieldError struct {
	Field string
}

func (e *UnknownPayloadFieldError) Error() string {
	return "vector index payload: unknown field " + e.Field
}

// Validate enforces the structural invariants spec.md §8 names for every
// vector-index payload: content length cap and the truncation flag's
// relationship to full_content_length.
func (p VectorIndexPayload) Validate() error {
	if len(p.Content) > MaxContentLength {
		return errContentTooLong
	}
	if p.ContentTruncated && p.FullContentLength <= MaxContentLength {
		return errTruncationInconsistent
	}
	return nil
}

var (
	errContentTooLong          = simpleError("vector index payload: content exceeds 2000 characters")
	errTruncationInconsistent  = simpleError("vector index payload: content_truncated=true requires full_content_length > 2000")
)

type simpleError string

func (e simpleError) Error() string { return string(e) }
