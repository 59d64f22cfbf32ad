package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/northbound/codewatch/internal/model"
)

// InsertFileChurnFindings bulk-inserts the hot-spot findings computed for
// one analysis.
func (s *Store) InsertFileChurnFindings(ctx context.Context, findings []model.FileChurnFinding) error {
	if len(findings) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO file_churn_findings (
			id, analysis_id, file_path, changes_90d, coverage_rate, unique_authors, risk_factors_json, risk_score
		) VALUES (?,?,?,?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("prepare insert file churn: %w", err)
	}
	defer stmt.Close()

	for _, f := range findings {
		if f.ID == "" {
			f.ID = uuid.New().String()
		}
		riskJSON, err := json.Marshal(f.RiskFactors)
		if err != nil {
			return fmt.Errorf("marshal risk factors: %w", err)
		}
		var coverage sql.NullFloat64
		if f.CoverageRate != nil {
			coverage = sql.NullFloat64{Float64: *f.CoverageRate, Valid: true}
		}
		_, err = stmt.ExecContext(ctx, f.ID, f.AnalysisID, f.FilePath, f.Changes90d, coverage, f.UniqueAuthors, string(riskJSON), f.RiskScore)
		if err != nil {
			return fmt.Errorf("insert file churn finding %s: %w", f.ID, err)
		}
	}
	return tx.Commit()
}

// ListFileChurnByAnalysis returns hot-spot findings ordered by risk score,
// descending.
func (s *Store) ListFileChurnByAnalysis(ctx context.Context, analysisID string) ([]model.FileChurnFinding, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, analysis_id, file_path, changes_90d, coverage_rate, unique_authors, risk_factors_json, risk_score
		FROM file_churn_findings WHERE analysis_id = ? ORDER BY risk_score DESC`, analysisID)
	if err != nil {
		return nil, fmt.Errorf("list file churn findings: %w", err)
	}
	defer rows.Close()

	var out []model.FileChurnFinding
	for rows.Next() {
		var f model.FileChurnFinding
		var coverage sql.NullFloat64
		var riskJSON string
		if err := rows.Scan(&f.ID, &f.AnalysisID, &f.FilePath, &f.Changes90d, &coverage, &f.UniqueAuthors, &riskJSON, &f.RiskScore); err != nil {
			return nil, fmt.Errorf("scan file churn finding: %w", err)
		}
		if coverage.Valid {
			v := coverage.Float64
			f.CoverageRate = &v
		}
		if riskJSON != "" {
			_ = json.Unmarshal([]byte(riskJSON), &f.RiskFactors)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
