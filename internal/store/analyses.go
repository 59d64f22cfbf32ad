package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/northbound/codewatch/internal/apperrors"
	"github.com/northbound/codewatch/internal/model"
)

// nonTerminalStatuses are the static-track statuses that make an analysis
// "in flight" for the purposes of the dispatcher's at-most-one-in-flight
// invariant (spec.md §4.2).
var nonTerminalStatuses = map[model.Status]bool{
	model.StatusPending: true,
	model.StatusRunning: true,
}

// TriggerOrReuse implements the dispatcher's "lock the row or insert new"
// transactional pattern (spec.md §4.2): it looks for a non-terminal
// analysis of (repositoryID, commitSHA) inside a transaction. If one exists
// with a fresh heartbeat, it returns *apperrors.AnalysisInFlight. If its
// heartbeat is older than heartbeatStaleAfter, the stale row is marked
// failed with reason "heartbeat_stale" and a fresh row is inserted in its
// place. The boolean result reports whether a new row was inserted.
//
// The-hive's database/*.go files never needed a transaction (their writes
// are all single-statement), so this method is grounded directly on
// database/sql's transaction API rather than a teacher file; see DESIGN.md.
func (s *Store) TriggerOrReuse(ctx context.Context, repositoryID, commitSHA, branch string, trigger model.TriggerType, requestedBy string, heartbeatStaleAfter time.Duration) (*model.Analysis, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT id, heartbeat_at FROM analyses
		WHERE repository_id = ? AND commit_sha = ? AND status IN ('pending','running')
		ORDER BY created_at DESC LIMIT 1`, repositoryID, commitSHA)

	var existingID string
	var heartbeatAt time.Time
	switch err := row.Scan(&existingID, &heartbeatAt); {
	case err == nil:
		if time.Since(heartbeatAt) < heartbeatStaleAfter {
			existing, err := s.getAnalysisTx(ctx, tx, existingID)
			if err != nil {
				return nil, false, err
			}
			if err := tx.Commit(); err != nil {
				return nil, false, fmt.Errorf("commit tx: %w", err)
			}
			return existing, false, &apperrors.AnalysisInFlight{RepositoryID: repositoryID, CommitSHA: commitSHA, ExistingID: existingID}
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE analyses SET status = 'failed', static_error = 'heartbeat_stale', updated_at = CURRENT_TIMESTAMP
			WHERE id = ?`, existingID); err != nil {
			return nil, false, fmt.Errorf("mark stale analysis failed: %w", err)
		}
		// fall through to insert a fresh row
	case errors.Is(err, sql.ErrNoRows):
		// fall through to insert
	default:
		return nil, false, fmt.Errorf("query in-flight analysis: %w", err)
	}

	now := time.Now().UTC()
	a := &model.Analysis{
		ID:                  uuid.New().String(),
		RepositoryID:        repositoryID,
		CommitSHA:           commitSHA,
		Branch:              branch,
		TriggerType:         trigger,
		RequestedBy:         requestedBy,
		Status:              model.StatusPending,
		EmbeddingsStatus:    model.EmbeddingsNone,
		SemanticCacheStatus: model.SemanticCacheNone,
		AIScanStatus:        model.AIScanNone,
		HeartbeatAt:         now,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO analyses (
			id, repository_id, commit_sha, branch, trigger_type, requested_by,
			status, embeddings_status, semantic_cache_status, ai_scan_status,
			heartbeat_at, created_at, updated_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.RepositoryID, a.CommitSHA, a.Branch, string(a.TriggerType), a.RequestedBy,
		string(a.Status), string(a.EmbeddingsStatus), string(a.SemanticCacheStatus), string(a.AIScanStatus),
		a.HeartbeatAt, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert analysis: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit tx: %w", err)
	}
	return a, true, nil
}

const analysisColumns = `
	id, repository_id, commit_sha, branch, trigger_type, requested_by,
	status, static_progress, static_started_at, static_completed_at, static_error,
	embeddings_status, embeddings_progress, embeddings_started_at, embeddings_completed_at, embeddings_error,
	semantic_cache_status, semantic_cache_progress, semantic_cache_started_at, semantic_cache_completed_at, semantic_cache_error,
	ai_scan_status, ai_scan_progress, ai_scan_started_at, ai_scan_completed_at, ai_scan_error,
	heartbeat_at, vci_score, tech_debt_level, metrics_json, semantic_cache_json, ai_scan_cache_json,
	pinned, created_at, updated_at`

func scanAnalysis(scan func(...any) error) (*model.Analysis, error) {
	var a model.Analysis
	var branch, requestedBy, staticErr, embeddingsErr, semanticCacheErr, aiScanErr sql.NullString
	var techDebt sql.NullString
	var metricsJSON, semanticCacheJSON, aiScanCacheJSON sql.NullString
	var staticStarted, staticCompleted, embStarted, embCompleted, scStarted, scCompleted, aiStarted, aiCompleted sql.NullTime
	var pinned int

	err := scan(
		&a.ID, &a.RepositoryID, &a.CommitSHA, &branch, &a.TriggerType, &requestedBy,
		&a.Status, &a.StaticProgress, &staticStarted, &staticCompleted, &staticErr,
		&a.EmbeddingsStatus, &a.EmbeddingsProgress, &embStarted, &embCompleted, &embeddingsErr,
		&a.SemanticCacheStatus, &a.SemanticCacheProgress, &scStarted, &scCompleted, &semanticCacheErr,
		&a.AIScanStatus, &a.AIScanProgress, &aiStarted, &aiCompleted, &aiScanErr,
		&a.HeartbeatAt, &a.VCIScore, &techDebt, &metricsJSON, &semanticCacheJSON, &aiScanCacheJSON,
		&pinned, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Branch = branch.String
	a.RequestedBy = requestedBy.String
	a.StaticError = staticErr.String
	a.EmbeddingsError = embeddingsErr.String
	a.SemanticCacheError = semanticCacheErr.String
	a.AIScanError = aiScanErr.String
	a.TechDebtLevel = model.TechDebtLevel(techDebt.String)
	a.Pinned = pinned != 0
	if staticStarted.Valid {
		a.StaticStartedAt = &staticStarted.Time
	}
	if staticCompleted.Valid {
		a.StaticCompletedAt = &staticCompleted.Time
	}
	if embStarted.Valid {
		a.EmbeddingsStartedAt = &embStarted.Time
	}
	if embCompleted.Valid {
		a.EmbeddingsCompletedAt = &embCompleted.Time
	}
	if scStarted.Valid {
		a.SemanticCacheStartedAt = &scStarted.Time
	}
	if scCompleted.Valid {
		a.SemanticCacheCompletedAt = &scCompleted.Time
	}
	if aiStarted.Valid {
		a.AIScanStartedAt = &aiStarted.Time
	}
	if aiCompleted.Valid {
		a.AIScanCompletedAt = &aiCompleted.Time
	}
	if metricsJSON.Valid && metricsJSON.String != "" {
		_ = json.Unmarshal([]byte(metricsJSON.String), &a.Metrics)
	}
	if semanticCacheJSON.Valid && semanticCacheJSON.String != "" {
		_ = json.Unmarshal([]byte(semanticCacheJSON.String), &a.SemanticCache)
	}
	if aiScanCacheJSON.Valid && aiScanCacheJSON.String != "" {
		_ = json.Unmarshal([]byte(aiScanCacheJSON.String), &a.AIScanCache)
	}
	return &a, nil
}

// GetAnalysis loads one analysis by ID.
func (s *Store) GetAnalysis(ctx context.Context, id string) (*model.Analysis, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+analysisColumns+" FROM analyses WHERE id = ?", id)
	a, err := scanAnalysis(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrAnalysisNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get analysis: %w", err)
	}
	return a, nil
}

func (s *Store) getAnalysisTx(ctx context.Context, tx *sql.Tx, id string) (*model.Analysis, error) {
	row := tx.QueryRowContext(ctx, "SELECT "+analysisColumns+" FROM analyses WHERE id = ?", id)
	a, err := scanAnalysis(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrAnalysisNotFound
	}
	return a, err
}

// UpdateTrackState persists a new (status, progress, started_at,
// completed_at, error) tuple for one track. Column names are built from the
// track identifier since the four tracks share an identical column layout.
func (s *Store) UpdateTrackState(ctx context.Context, id string, track model.Track, st model.TrackState) error {
	prefix, err := trackColumnPrefix(track)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
		UPDATE analyses SET
			%s_status = ?, %s_progress = ?, %s_started_at = ?, %s_completed_at = ?, %s_error = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, prefix, prefix, prefix, prefix, prefix)

	res, err := s.db.ExecContext(ctx, query, st.Status, st.Progress, st.StartedAt, st.CompletedAt, st.Error, id)
	if err != nil {
		return fmt.Errorf("update %s track: %w", track, err)
	}
	return checkRowsAffected(res, apperrors.ErrAnalysisNotFound)
}

func trackColumnPrefix(track model.Track) (string, error) {
	switch track {
	case model.TrackStatic:
		return "static", nil
	case model.TrackEmbeddings:
		return "embeddings", nil
	case model.TrackSemanticCache:
		return "semantic_cache", nil
	case model.TrackAIScan:
		return "ai_scan", nil
	default:
		return "", fmt.Errorf("unknown track %q", track)
	}
}

// UpdateHeartbeat bumps heartbeat_at to now, used by every in-flight worker
// to prove liveness to the stuck detector.
func (s *Store) UpdateHeartbeat(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, "UPDATE analyses SET heartbeat_at = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?", at, id)
	if err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return checkRowsAffected(res, apperrors.ErrAnalysisNotFound)
}

// SetScore persists the VCI score, derived tech-debt bucket, and raw
// metrics map produced at the end of the static-analysis track.
func (s *Store) SetScore(ctx context.Context, id string, score float64, level model.TechDebtLevel, metrics map[string]any) error {
	raw, err := json.Marshal(metrics)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE analyses SET vci_score = ?, tech_debt_level = ?, metrics_json = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		score, string(level), string(raw), id)
	if err != nil {
		return fmt.Errorf("set score: %w", err)
	}
	return checkRowsAffected(res, apperrors.ErrAnalysisNotFound)
}

// SetSemanticCache persists the cluster analyzer's output document.
func (s *Store) SetSemanticCache(ctx context.Context, id string, doc model.SemanticCacheDoc) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal semantic cache: %w", err)
	}
	res, err := s.db.ExecContext(ctx, "UPDATE analyses SET semantic_cache_json = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?", string(raw), id)
	if err != nil {
		return fmt.Errorf("set semantic cache: %w", err)
	}
	return checkRowsAffected(res, apperrors.ErrAnalysisNotFound)
}

// SetAIScanCache persists the AI scan worker's merged result document.
func (s *Store) SetAIScanCache(ctx context.Context, id string, doc model.AIScanCacheDoc) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal ai scan cache: %w", err)
	}
	res, err := s.db.ExecContext(ctx, "UPDATE analyses SET ai_scan_cache_json = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?", string(raw), id)
	if err != nil {
		return fmt.Errorf("set ai scan cache: %w", err)
	}
	return checkRowsAffected(res, apperrors.ErrAnalysisNotFound)
}

// ListStaleRunning returns every analysis with a track still "running" whose
// heartbeat is older than olderThan, for the stuck detector's sweep.
func (s *Store) ListStaleRunning(ctx context.Context, olderThan time.Time) ([]*model.Analysis, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+analysisColumns+` FROM analyses
		WHERE heartbeat_at < ? AND (status = 'running' OR embeddings_status = 'running' OR ai_scan_status = 'running' OR semantic_cache_status IN ('computing','generating_insights'))`,
		olderThan)
	if err != nil {
		return nil, fmt.Errorf("list stale running: %w", err)
	}
	defer rows.Close()

	var out []*model.Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan stale analysis: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListByRepository returns analyses for a repository, most recent first,
// for the repository history surface.
func (s *Store) ListByRepository(ctx context.Context, repositoryID string, limit int) ([]*model.Analysis, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, "SELECT "+analysisColumns+" FROM analyses WHERE repository_id = ? ORDER BY created_at DESC LIMIT ?", repositoryID, limit)
	if err != nil {
		return nil, fmt.Errorf("list by repository: %w", err)
	}
	defer rows.Close()

	var out []*model.Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan analysis: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func checkRowsAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
