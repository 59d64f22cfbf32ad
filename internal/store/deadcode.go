package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/northbound/codewatch/internal/model"
)

// InsertDeadCodeFindings bulk-inserts the cluster analyzer's dead-code
// output for one analysis.
func (s *Store) InsertDeadCodeFindings(ctx context.Context, findings []model.DeadCodeFinding) error {
	if len(findings) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO dead_code_findings (
			id, analysis_id, repository_id, file_path, function_name, line_start, line_end,
			line_count, confidence, evidence_text, suggested_action, impact_score, is_dismissed
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("prepare insert dead code: %w", err)
	}
	defer stmt.Close()

	for _, f := range findings {
		if f.ID == "" {
			f.ID = uuid.New().String()
		}
		_, err := stmt.ExecContext(ctx, f.ID, f.AnalysisID, f.RepositoryID, f.FilePath, f.FunctionName,
			f.LineStart, f.LineEnd, f.LineCount, f.Confidence, f.EvidenceText, f.SuggestedAction, f.ImpactScore, f.IsDismissed)
		if err != nil {
			return fmt.Errorf("insert dead code finding %s: %w", f.ID, err)
		}
	}
	return tx.Commit()
}

// ListDeadCodeByAnalysis returns non-dismissed dead-code findings ordered
// by impact score, descending.
func (s *Store) ListDeadCodeByAnalysis(ctx context.Context, analysisID string) ([]model.DeadCodeFinding, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, analysis_id, repository_id, file_path, function_name, line_start, line_end,
			line_count, confidence, evidence_text, suggested_action, impact_score, is_dismissed
		FROM dead_code_findings WHERE analysis_id = ? AND is_dismissed = 0 ORDER BY impact_score DESC`, analysisID)
	if err != nil {
		return nil, fmt.Errorf("list dead code findings: %w", err)
	}
	defer rows.Close()

	var out []model.DeadCodeFinding
	for rows.Next() {
		var f model.DeadCodeFinding
		var evidence, action sql.NullString
		if err := rows.Scan(&f.ID, &f.AnalysisID, &f.RepositoryID, &f.FilePath, &f.FunctionName,
			&f.LineStart, &f.LineEnd, &f.LineCount, &f.Confidence, &evidence, &action, &f.ImpactScore, &f.IsDismissed); err != nil {
			return nil, fmt.Errorf("scan dead code finding: %w", err)
		}
		f.EvidenceText = evidence.String
		f.SuggestedAction = action.String
		out = append(out, f)
	}
	return out, rows.Err()
}

// DismissDeadCodeFinding marks one finding dismissed, e.g. when a reviewer
// determines the code is reachable through reflection or a build tag this
// build didn't evaluate.
func (s *Store) DismissDeadCodeFinding(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "UPDATE dead_code_findings SET is_dismissed = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("dismiss dead code finding: %w", err)
	}
	return nil
}
