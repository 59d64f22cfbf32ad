package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/northbound/codewatch/internal/model"
)

// InsertInsights bulk-inserts the cluster analyzer's LLM-authored
// architecture insights for one analysis.
func (s *Store) InsertInsights(ctx context.Context, insights []model.SemanticAIInsight) error {
	if len(insights) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO semantic_ai_insights (
			id, analysis_id, insight_type, title, description, priority,
			affected_files_json, evidence, suggested_action, is_dismissed
		) VALUES (?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("prepare insert insight: %w", err)
	}
	defer stmt.Close()

	for _, in := range insights {
		if in.ID == "" {
			in.ID = uuid.New().String()
		}
		filesJSON, err := json.Marshal(in.AffectedFiles)
		if err != nil {
			return fmt.Errorf("marshal affected files: %w", err)
		}
		_, err = stmt.ExecContext(ctx, in.ID, in.AnalysisID, string(in.InsightType), in.Title, in.Description,
			string(in.Priority), string(filesJSON), in.Evidence, in.SuggestedAction, in.IsDismissed)
		if err != nil {
			return fmt.Errorf("insert insight %s: %w", in.ID, err)
		}
	}
	return tx.Commit()
}

// ListInsightsByAnalysis returns non-dismissed insights for an analysis.
func (s *Store) ListInsightsByAnalysis(ctx context.Context, analysisID string) ([]model.SemanticAIInsight, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, analysis_id, insight_type, title, description, priority,
			affected_files_json, evidence, suggested_action, is_dismissed
		FROM semantic_ai_insights WHERE analysis_id = ? AND is_dismissed = 0
		ORDER BY CASE priority WHEN 'high' THEN 0 WHEN 'medium' THEN 1 ELSE 2 END`, analysisID)
	if err != nil {
		return nil, fmt.Errorf("list insights: %w", err)
	}
	defer rows.Close()

	var out []model.SemanticAIInsight
	for rows.Next() {
		var in model.SemanticAIInsight
		var description, evidence, action sql.NullString
		var filesJSON string
		if err := rows.Scan(&in.ID, &in.AnalysisID, &in.InsightType, &in.Title, &description,
			&in.Priority, &filesJSON, &evidence, &action, &in.IsDismissed); err != nil {
			return nil, fmt.Errorf("scan insight: %w", err)
		}
		in.Description = description.String
		in.Evidence = evidence.String
		in.SuggestedAction = action.String
		if filesJSON != "" {
			_ = json.Unmarshal([]byte(filesJSON), &in.AffectedFiles)
		}
		out = append(out, in)
	}
	return out, rows.Err()
}
