package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/northbound/codewatch/internal/model"
)

// InsertIssues bulk-inserts the Merger's final issue set for one analysis.
func (s *Store) InsertIssues(ctx context.Context, issues []model.Issue) error {
	if len(issues) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO issues (
			id, analysis_id, repository_id, type, severity, title, description,
			file_path, line_start, line_end, status, confidence, metadata_json, investigation_json
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("prepare insert issue: %w", err)
	}
	defer stmt.Close()

	for _, iss := range issues {
		if iss.ID == "" {
			iss.ID = uuid.New().String()
		}
		metaJSON, err := json.Marshal(iss.Metadata)
		if err != nil {
			return fmt.Errorf("marshal issue metadata: %w", err)
		}
		var investigationJSON sql.NullString
		if iss.Investigation != nil {
			raw, err := json.Marshal(iss.Investigation)
			if err != nil {
				return fmt.Errorf("marshal investigation: %w", err)
			}
			investigationJSON = sql.NullString{String: string(raw), Valid: true}
		}
		if iss.Status == "" {
			iss.Status = model.IssueOpen
		}
		_, err = stmt.ExecContext(ctx,
			iss.ID, iss.AnalysisID, iss.RepositoryID, iss.Type, string(iss.Severity), iss.Title, iss.Description,
			iss.FilePath, iss.LineRange.Start, iss.LineRange.End, string(iss.Status), iss.Confidence, string(metaJSON), investigationJSON,
		)
		if err != nil {
			return fmt.Errorf("insert issue %s: %w", iss.ID, err)
		}
	}
	return tx.Commit()
}

// ListIssuesByAnalysis returns every issue recorded against an analysis.
func (s *Store) ListIssuesByAnalysis(ctx context.Context, analysisID string) ([]model.Issue, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, analysis_id, repository_id, type, severity, title, description,
			file_path, line_start, line_end, status, confidence, metadata_json, investigation_json
		FROM issues WHERE analysis_id = ? ORDER BY
			CASE severity WHEN 'critical' THEN 0 WHEN 'high' THEN 1 WHEN 'medium' THEN 2 ELSE 3 END, title`,
		analysisID)
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	defer rows.Close()

	var out []model.Issue
	for rows.Next() {
		var iss model.Issue
		var description, filePath, metaJSON sql.NullString
		var investigationJSON sql.NullString
		var lineStart, lineEnd sql.NullInt64

		if err := rows.Scan(&iss.ID, &iss.AnalysisID, &iss.RepositoryID, &iss.Type, &iss.Severity, &iss.Title,
			&description, &filePath, &lineStart, &lineEnd, &iss.Status, &iss.Confidence, &metaJSON, &investigationJSON); err != nil {
			return nil, fmt.Errorf("scan issue: %w", err)
		}
		iss.Description = description.String
		iss.FilePath = filePath.String
		iss.LineRange = model.LineRange{Start: int(lineStart.Int64), End: int(lineEnd.Int64)}
		if metaJSON.Valid && metaJSON.String != "" {
			_ = json.Unmarshal([]byte(metaJSON.String), &iss.Metadata)
		}
		if investigationJSON.Valid && investigationJSON.String != "" {
			iss.Investigation = &model.InvestigationResult{}
			_ = json.Unmarshal([]byte(investigationJSON.String), iss.Investigation)
		}
		out = append(out, iss)
	}
	return out, rows.Err()
}

// UpdateIssueStatus transitions a single issue's lifecycle status, used by
// the issue-triage API surface.
func (s *Store) UpdateIssueStatus(ctx context.Context, issueID string, status model.IssueStatus) error {
	res, err := s.db.ExecContext(ctx, "UPDATE issues SET status = ? WHERE id = ?", string(status), issueID)
	if err != nil {
		return fmt.Errorf("update issue status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("issue %s not found", issueID)
	}
	return nil
}
