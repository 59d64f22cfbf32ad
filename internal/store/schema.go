// Copyright (c) 2025 Northbound System
// Package store is the SQLite persistence layer for the analysis execution
// core, following the-hive's internal/database pattern: one *sql.DB shared
// across small per-entity files, each owning CREATE TABLE IF NOT EXISTS
// schema-in-code and parameterized Exec/Query/Scan methods.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store wraps the shared *sql.DB handle. Every entity-specific file in this
// package (analyses.go, issues.go, ...) defines methods on *Store.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) the SQLite database at path and applies
// the full schema, matching the teacher's "initSchema on construction"
// idiom used by every database/*.go file.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// mattn/go-sqlite3 serializes writers at the file level; a single
	// shared connection avoids "database is locked" errors under the
	// standard library's default connection pooling, and is required for
	// ":memory:" so every caller sees the same in-memory database.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the raw handle for callers (migration command, tests) that
// need it directly.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS analyses (
		id TEXT PRIMARY KEY,
		repository_id TEXT NOT NULL,
		commit_sha TEXT NOT NULL,
		branch TEXT,
		trigger_type TEXT NOT NULL,
		requested_by TEXT,

		status TEXT NOT NULL DEFAULT 'pending',
		static_progress INTEGER NOT NULL DEFAULT 0,
		static_started_at DATETIME,
		static_completed_at DATETIME,
		static_error TEXT,

		embeddings_status TEXT NOT NULL DEFAULT 'none',
		embeddings_progress INTEGER NOT NULL DEFAULT 0,
		embeddings_started_at DATETIME,
		embeddings_completed_at DATETIME,
		embeddings_error TEXT,

		semantic_cache_status TEXT NOT NULL DEFAULT 'none',
		semantic_cache_progress INTEGER NOT NULL DEFAULT 0,
		semantic_cache_started_at DATETIME,
		semantic_cache_completed_at DATETIME,
		semantic_cache_error TEXT,

		ai_scan_status TEXT NOT NULL DEFAULT 'none',
		ai_scan_progress INTEGER NOT NULL DEFAULT 0,
		ai_scan_started_at DATETIME,
		ai_scan_completed_at DATETIME,
		ai_scan_error TEXT,

		heartbeat_at DATETIME,

		vci_score REAL NOT NULL DEFAULT 0,
		tech_debt_level TEXT,
		metrics_json TEXT,

		semantic_cache_json TEXT,
		ai_scan_cache_json TEXT,

		pinned INTEGER NOT NULL DEFAULT 0,

		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_analyses_repo_commit ON analyses(repository_id, commit_sha);
	CREATE INDEX IF NOT EXISTS idx_analyses_heartbeat ON analyses(heartbeat_at) WHERE status = 'running';

	CREATE TABLE IF NOT EXISTS issues (
		id TEXT PRIMARY KEY,
		analysis_id TEXT NOT NULL,
		repository_id TEXT NOT NULL,
		type TEXT NOT NULL,
		severity TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT,
		file_path TEXT,
		line_start INTEGER,
		line_end INTEGER,
		status TEXT NOT NULL DEFAULT 'open',
		confidence REAL NOT NULL DEFAULT 0,
		metadata_json TEXT,
		investigation_json TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_issues_analysis ON issues(analysis_id);
	CREATE INDEX IF NOT EXISTS idx_issues_repo_status ON issues(repository_id, status);

	CREATE TABLE IF NOT EXISTS dead_code_findings (
		id TEXT PRIMARY KEY,
		analysis_id TEXT NOT NULL,
		repository_id TEXT NOT NULL,
		file_path TEXT NOT NULL,
		function_name TEXT NOT NULL,
		line_start INTEGER,
		line_end INTEGER,
		line_count INTEGER,
		confidence REAL NOT NULL DEFAULT 0,
		evidence_text TEXT,
		suggested_action TEXT,
		impact_score INTEGER NOT NULL DEFAULT 0,
		is_dismissed INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_deadcode_analysis ON dead_code_findings(analysis_id);

	CREATE TABLE IF NOT EXISTS file_churn_findings (
		id TEXT PRIMARY KEY,
		analysis_id TEXT NOT NULL,
		file_path TEXT NOT NULL,
		changes_90d INTEGER NOT NULL DEFAULT 0,
		coverage_rate REAL,
		unique_authors INTEGER NOT NULL DEFAULT 0,
		risk_factors_json TEXT,
		risk_score INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_filechurn_analysis ON file_churn_findings(analysis_id);

	CREATE TABLE IF NOT EXISTS semantic_ai_insights (
		id TEXT PRIMARY KEY,
		analysis_id TEXT NOT NULL,
		insight_type TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT,
		priority TEXT NOT NULL,
		affected_files_json TEXT,
		evidence TEXT,
		suggested_action TEXT,
		is_dismissed INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_insights_analysis ON semantic_ai_insights(analysis_id);

	CREATE TABLE IF NOT EXISTS repo_content_caches (
		id TEXT PRIMARY KEY,
		repository_id TEXT NOT NULL,
		commit_sha TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		pinned INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(repository_id, commit_sha)
	);

	CREATE TABLE IF NOT EXISTS repo_content_objects (
		id TEXT PRIMARY KEY,
		cache_id TEXT NOT NULL REFERENCES repo_content_caches(id) ON DELETE CASCADE,
		path TEXT NOT NULL,
		object_key TEXT NOT NULL,
		size_bytes INTEGER NOT NULL DEFAULT 0,
		content_hash TEXT,
		status TEXT NOT NULL DEFAULT 'uploading',
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(cache_id, path)
	);
	CREATE INDEX IF NOT EXISTS idx_objects_cache ON repo_content_objects(cache_id);
	`
	_, err := s.db.Exec(schema)
	return err
}
