package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/northbound/codewatch/internal/apperrors"
	"github.com/northbound/codewatch/internal/model"
)

// GetOrCreateContentCache implements the same lock-row-or-insert shape as
// TriggerOrReuse, scoped to the content cache table: it returns the
// existing (repository, commit) cache row if present, otherwise inserts a
// fresh pending one.
func (s *Store) GetOrCreateContentCache(ctx context.Context, repositoryID, commitSHA string) (*model.RepoContentCache, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	existing, err := scanContentCache(tx.QueryRowContext(ctx, `
		SELECT id, repository_id, commit_sha, status, pinned, created_at, updated_at
		FROM repo_content_caches WHERE repository_id = ? AND commit_sha = ?`, repositoryID, commitSHA).Scan)
	switch {
	case err == nil:
		if err := tx.Commit(); err != nil {
			return nil, false, fmt.Errorf("commit tx: %w", err)
		}
		return existing, false, nil
	case errors.Is(err, sql.ErrNoRows):
		// fall through to insert
	default:
		return nil, false, fmt.Errorf("query content cache: %w", err)
	}

	now := time.Now().UTC()
	c := &model.RepoContentCache{
		ID:           uuid.New().String(),
		RepositoryID: repositoryID,
		CommitSHA:    commitSHA,
		Status:       model.CacheStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO repo_content_caches (id, repository_id, commit_sha, status, pinned, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?)`, c.ID, c.RepositoryID, c.CommitSHA, string(c.Status), c.Pinned, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("insert content cache: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit tx: %w", err)
	}
	return c, true, nil
}

func scanContentCache(scan func(...any) error) (*model.RepoContentCache, error) {
	var c model.RepoContentCache
	var pinned int
	if err := scan(&c.ID, &c.RepositoryID, &c.CommitSHA, &c.Status, &pinned, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Pinned = pinned != 0
	return &c, nil
}

// GetContentCache loads a cache row by (repository, commit).
func (s *Store) GetContentCache(ctx context.Context, repositoryID, commitSHA string) (*model.RepoContentCache, error) {
	c, err := scanContentCache(s.db.QueryRowContext(ctx, `
		SELECT id, repository_id, commit_sha, status, pinned, created_at, updated_at
		FROM repo_content_caches WHERE repository_id = ? AND commit_sha = ?`, repositoryID, commitSHA).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrContentCacheNotFound
	}
	return c, err
}

// SetContentCacheStatus updates a cache row's status, called when upload
// completes or when the majority-failure rule (spec.md §4.6) marks it failed.
func (s *Store) SetContentCacheStatus(ctx context.Context, id string, status model.CacheStatus) error {
	res, err := s.db.ExecContext(ctx, "UPDATE repo_content_caches SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?", string(status), id)
	if err != nil {
		return fmt.Errorf("set content cache status: %w", err)
	}
	return checkRowsAffected(res, apperrors.ErrContentCacheNotFound)
}

// UpsertContentObject inserts or updates one file's metadata row within a
// cache, keyed by (cache_id, path).
func (s *Store) UpsertContentObject(ctx context.Context, obj model.RepoContentObject) error {
	if obj.ID == "" {
		obj.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO repo_content_objects (id, cache_id, path, object_key, size_bytes, content_hash, status, updated_at)
		VALUES (?,?,?,?,?,?,?,CURRENT_TIMESTAMP)
		ON CONFLICT(cache_id, path) DO UPDATE SET
			object_key = excluded.object_key, size_bytes = excluded.size_bytes,
			content_hash = excluded.content_hash, status = excluded.status, updated_at = CURRENT_TIMESTAMP`,
		obj.ID, obj.CacheID, obj.Path, obj.ObjectKey, obj.SizeBytes, obj.ContentHash, string(obj.Status))
	if err != nil {
		return fmt.Errorf("upsert content object %s: %w", obj.Path, err)
	}
	return nil
}

// ListContentObjects returns every file recorded against a cache entry,
// the backing data for RepoContentCache.list_tree.
func (s *Store) ListContentObjects(ctx context.Context, cacheID string) ([]model.RepoContentObject, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, cache_id, path, object_key, size_bytes, content_hash, status, updated_at
		FROM repo_content_objects WHERE cache_id = ? ORDER BY path`, cacheID)
	if err != nil {
		return nil, fmt.Errorf("list content objects: %w", err)
	}
	defer rows.Close()

	var out []model.RepoContentObject
	for rows.Next() {
		var o model.RepoContentObject
		if err := rows.Scan(&o.ID, &o.CacheID, &o.Path, &o.ObjectKey, &o.SizeBytes, &o.ContentHash, &o.Status, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan content object: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// GetContentObject fetches one file's metadata within a cache, used by
// get_file to resolve the object-storage key before reading bytes.
func (s *Store) GetContentObject(ctx context.Context, cacheID, path string) (*model.RepoContentObject, error) {
	var o model.RepoContentObject
	err := s.db.QueryRowContext(ctx, `
		SELECT id, cache_id, path, object_key, size_bytes, content_hash, status, updated_at
		FROM repo_content_objects WHERE cache_id = ? AND path = ?`, cacheID, path).
		Scan(&o.ID, &o.CacheID, &o.Path, &o.ObjectKey, &o.SizeBytes, &o.ContentHash, &o.Status, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("content object %s: %w", path, apperrors.ErrContentCacheNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get content object: %w", err)
	}
	return &o, nil
}

// CountObjectStatuses tallies ready vs. failed objects in a cache, the
// input to the majority-failure rule.
func (s *Store) CountObjectStatuses(ctx context.Context, cacheID string) (ready, failed, total int, err error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN status = 'ready' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0),
			COUNT(*)
		FROM repo_content_objects WHERE cache_id = ?`, cacheID)
	if err := row.Scan(&ready, &failed, &total); err != nil {
		return 0, 0, 0, fmt.Errorf("count object statuses: %w", err)
	}
	return ready, failed, total, nil
}

// ListStaleCaches returns unpinned caches older than olderThan, the GC
// worker's sweep target.
func (s *Store) ListStaleCaches(ctx context.Context, olderThan time.Time) ([]*model.RepoContentCache, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, repository_id, commit_sha, status, pinned, created_at, updated_at
		FROM repo_content_caches WHERE pinned = 0 AND updated_at < ?`, olderThan)
	if err != nil {
		return nil, fmt.Errorf("list stale caches: %w", err)
	}
	defer rows.Close()

	var out []*model.RepoContentCache
	for rows.Next() {
		c, err := scanContentCache(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan stale cache: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteContentCache removes a cache row and (via ON DELETE CASCADE) its
// object rows. Callers are responsible for deleting the backing
// object-storage blobs first.
func (s *Store) DeleteContentCache(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM repo_content_caches WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete content cache: %w", err)
	}
	return nil
}
