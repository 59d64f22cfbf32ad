// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package contentcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/northbound/codewatch/internal/apperrors"
	"github.com/northbound/codewatch/internal/model"
	"github.com/northbound/codewatch/internal/objectstorage"
	"github.com/northbound/codewatch/internal/store"
)

// excludedDirs mirrors the embeddings worker's walk exclusions so the
// content cache never uploads VCS internals or dependency trees.
var excludedDirs = map[string]struct{}{
	".git": {}, "node_modules": {}, "vendor": {}, ".venv": {}, "__pycache__": {},
}

// Cache is the commit-scoped read-through cache described in spec.md §4.6:
// metadata lives in internal/store, bytes live in an objectstorage.Store.
type Cache struct {
	store   *store.Store
	objects objectstorage.Store
}

// New constructs a Cache over the given metadata store and object storage
// backend.
func New(st *store.Store, objects objectstorage.Store) *Cache {
	return &Cache{store: st, objects: objects}
}

func objectKey(repositoryID, commitSHA, path string) string {
	return fmt.Sprintf("%s/%s/%s", repositoryID, commitSHA, path)
}

// Ensure idempotently populates the cache for (repositoryID, commitSHA) from
// the given local checkout. If an existing cache is already ready with a
// tree summary present, Ensure does no work. Otherwise it uploads every
// file under localRepoPath, registers a RepoContentObject per file, skips
// re-uploading files whose content_hash is unchanged and already ready, and
// marks the cache failed if the majority of objects fail.
func (c *Cache) Ensure(ctx context.Context, repositoryID, commitSHA, localRepoPath string) error {
	cache, _, err := c.store.GetOrCreateContentCache(ctx, repositoryID, commitSHA)
	if err != nil {
		return fmt.Errorf("get or create content cache: %w", err)
	}

	if cache.Status == model.CacheStatusReady {
		if _, err := c.buildTreeSummary(ctx, cache.ID); err == nil {
			return nil
		}
	}

	if err := c.store.SetContentCacheStatus(ctx, cache.ID, model.CacheStatusUploading); err != nil {
		return fmt.Errorf("mark cache uploading: %w", err)
	}

	existing, err := c.indexExistingObjects(ctx, cache.ID)
	if err != nil {
		return fmt.Errorf("index existing objects: %w", err)
	}

	paths, err := walkFiles(localRepoPath)
	if err != nil {
		return fmt.Errorf("walk repo tree: %w", err)
	}

	for _, relPath := range paths {
		if err := c.uploadOne(ctx, cache.ID, repositoryID, commitSHA, localRepoPath, relPath, existing); err != nil {
			// uploadOne already records the object as failed; keep going so
			// one bad file doesn't abort the whole snapshot.
			continue
		}
	}

	_, failed, total, err := c.store.CountObjectStatuses(ctx, cache.ID)
	if err != nil {
		return fmt.Errorf("count object statuses: %w", err)
	}
	if total > 0 && failed*2 > total {
		return c.store.SetContentCacheStatus(ctx, cache.ID, model.CacheStatusFailed)
	}

	if _, err := c.buildTreeSummary(ctx, cache.ID); err != nil {
		return c.store.SetContentCacheStatus(ctx, cache.ID, model.CacheStatusFailed)
	}

	return c.store.SetContentCacheStatus(ctx, cache.ID, model.CacheStatusReady)
}

func (c *Cache) indexExistingObjects(ctx context.Context, cacheID string) (map[string]model.RepoContentObject, error) {
	objs, err := c.store.ListContentObjects(ctx, cacheID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]model.RepoContentObject, len(objs))
	for _, o := range objs {
		out[o.Path] = o
	}
	return out, nil
}

func (c *Cache) uploadOne(ctx context.Context, cacheID, repositoryID, commitSHA, root, relPath string, existing map[string]model.RepoContentObject) error {
	content, err := os.ReadFile(filepath.Join(root, relPath))
	if err != nil {
		_ = c.store.UpsertContentObject(ctx, model.RepoContentObject{
			CacheID: cacheID, Path: relPath, Status: model.ObjectStatusFailed,
		})
		return err
	}

	sum := sha256.Sum256(content)
	hash := hex.EncodeToString(sum[:])

	if prev, ok := existing[relPath]; ok && prev.ContentHash == hash && prev.Status == model.ObjectStatusReady {
		return nil
	}

	key := objectKey(repositoryID, commitSHA, relPath)
	if err := c.objects.Put(ctx, key, content); err != nil {
		_ = c.store.UpsertContentObject(ctx, model.RepoContentObject{
			CacheID: cacheID, Path: relPath, ObjectKey: key, ContentHash: hash,
			Status: model.ObjectStatusFailed,
		})
		return fmt.Errorf("upload %s: %w", relPath, err)
	}

	return c.store.UpsertContentObject(ctx, model.RepoContentObject{
		CacheID: cacheID, Path: relPath, ObjectKey: key,
		SizeBytes: int64(len(content)), ContentHash: hash, Status: model.ObjectStatusReady,
	})
}

// GetFile returns one file's bytes from a ready cache.
func (c *Cache) GetFile(ctx context.Context, repositoryID, commitSHA, path string) ([]byte, error) {
	cache, err := c.store.GetContentCache(ctx, repositoryID, commitSHA)
	if err != nil {
		return nil, err
	}
	if cache.Status != model.CacheStatusReady {
		return nil, apperrors.ErrContentCacheNotReady
	}

	obj, err := c.store.GetContentObject(ctx, cache.ID, path)
	if err != nil {
		return nil, err
	}
	if obj.Status != model.ObjectStatusReady {
		return nil, fmt.Errorf("content object %s: %w", path, apperrors.ErrContentCacheNotFound)
	}

	return c.objects.Get(ctx, obj.ObjectKey)
}

// ListTree returns the flat and hierarchical tree summary for a ready cache.
func (c *Cache) ListTree(ctx context.Context, repositoryID, commitSHA string) (*model.TreeSummary, error) {
	cache, err := c.store.GetContentCache(ctx, repositoryID, commitSHA)
	if err != nil {
		return nil, err
	}
	if cache.Status != model.CacheStatusReady {
		return nil, apperrors.ErrContentCacheNotReady
	}
	return c.buildTreeSummary(ctx, cache.ID)
}

func (c *Cache) buildTreeSummary(ctx context.Context, cacheID string) (*model.TreeSummary, error) {
	objs, err := c.store.ListContentObjects(ctx, cacheID)
	if err != nil {
		return nil, err
	}
	if len(objs) == 0 {
		return nil, errors.New("content cache has no objects")
	}

	flat := make([]string, 0, len(objs))
	root := &model.TreeNode{Name: "/", Path: "", Type: model.TreeNodeDir}
	dirs := map[string]*model.TreeNode{"": root}

	for _, o := range objs {
		if o.Status != model.ObjectStatusReady {
			continue
		}
		flat = append(flat, o.Path)
		insertIntoTree(root, dirs, o.Path, o.SizeBytes)
	}
	sort.Strings(flat)

	return &model.TreeSummary{FlatPaths: flat, HierarchicalTree: root}, nil
}

func insertIntoTree(root *model.TreeNode, dirs map[string]*model.TreeNode, path string, size int64) {
	parts := strings.Split(path, "/")
	parent := ""
	parentNode := root

	for i, part := range parts {
		isLeaf := i == len(parts)-1
		full := part
		if parent != "" {
			full = parent + "/" + part
		}

		if isLeaf {
			sz := size
			parentNode.Children = append(parentNode.Children, &model.TreeNode{
				Name: part, Path: full, Type: model.TreeNodeFile, Size: &sz,
			})
			return
		}

		node, ok := dirs[full]
		if !ok {
			node = &model.TreeNode{Name: part, Path: full, Type: model.TreeNodeDir}
			dirs[full] = node
			parentNode.Children = append(parentNode.Children, node)
		}
		parentNode = node
		parent = full
	}
}

func walkFiles(root string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if _, excluded := excludedDirs[d.Name()]; excluded && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
