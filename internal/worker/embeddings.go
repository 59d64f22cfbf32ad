// Copyright (c) 2025 Northbound System

package worker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/northbound/codewatch/internal/contentcache"
	"github.com/northbound/codewatch/internal/embeddings"
	"github.com/northbound/codewatch/internal/logger"
	"github.com/northbound/codewatch/internal/model"
	"github.com/northbound/codewatch/internal/processor"
	"github.com/northbound/codewatch/internal/statesvc"
	"github.com/northbound/codewatch/internal/vcs"
	"github.com/northbound/codewatch/internal/vectordb"
)

// embeddingsMaxFileSize is the skip threshold of this package's file walk:
// files larger than 512 KiB are not worth embedding chunk-by-chunk.
// aiscan.BuildDigest applies its own, smaller MaxFileSize.
const embeddingsMaxFileSize = 512 * 1024

// embeddingsExcludedDirs mirrors internal/contentcache's walk exclusions
// plus VCS/OS housekeeping files the embeddings worker has no reason to
// chunk.
var embeddingsExcludedDirs = map[string]struct{}{
	".git": {}, "node_modules": {}, "vendor": {}, ".venv": {}, "__pycache__": {},
}

var embeddingsExcludedFiles = map[string]struct{}{
	".DS_Store": {},
}

const embedBatchSize = 32

// EmbeddingsWorker implements spec.md §4.3: clone the commit, chunk every
// source file into symbol-level units, embed them in batches, upsert the
// result into the vector index, and mirror the raw bytes into the content
// cache, all while reporting progress through the state service.
type EmbeddingsWorker struct {
	state    *statesvc.Service
	cloner   vcs.Cloner
	chunker  *processor.Chunker
	embedder embeddings.Embedder
	index    vectordb.Index
	cache    *contentcache.Cache
}

// NewEmbeddingsWorker builds an EmbeddingsWorker from its collaborators.
func NewEmbeddingsWorker(state *statesvc.Service, cloner vcs.Cloner, embedder embeddings.Embedder, index vectordb.Index, cache *contentcache.Cache) *EmbeddingsWorker {
	return &EmbeddingsWorker{
		state:    state,
		cloner:   cloner,
		chunker:  processor.NewChunker(),
		embedder: embedder,
		index:    index,
		cache:    cache,
	}
}

// Run executes the embeddings track end to end for one analysis. A file
// that fails to read, chunk, embed or upsert is logged and skipped. A
// failure of the clone, the tree walk, a later progress update or the
// content-cache population transitions the embeddings track to failed with
// the error recorded; chunks already upserted are left in place rather than
// rolled back, since a subsequent re-trigger upserts over the same
// deterministic point ids.
func (w *EmbeddingsWorker) Run(ctx context.Context, analysisID, repositoryID, commitSHA string) error {
	if err := w.state.Transition(ctx, analysisID, model.TrackEmbeddings, "running", ""); err != nil {
		return fmt.Errorf("transition to running: %w", err)
	}
	if err := w.state.UpdateProgress(ctx, analysisID, model.TrackEmbeddings, 1); err != nil {
		return fmt.Errorf("report initial progress: %w", err)
	}

	if err := w.compute(ctx, analysisID, repositoryID, commitSHA); err != nil {
		_ = w.state.Transition(ctx, analysisID, model.TrackEmbeddings, "failed", err.Error())
		return err
	}

	if err := w.state.UpdateProgress(ctx, analysisID, model.TrackEmbeddings, 99); err != nil {
		_ = w.state.Transition(ctx, analysisID, model.TrackEmbeddings, "failed", err.Error())
		return err
	}
	return w.state.Transition(ctx, analysisID, model.TrackEmbeddings, "completed", "")
}

func (w *EmbeddingsWorker) compute(ctx context.Context, analysisID, repositoryID, commitSHA string) error {
	repoDir, cleanup, err := w.cloner.Clone(ctx, repositoryID, commitSHA)
	if err != nil {
		return fmt.Errorf("clone %s@%s: %w", repositoryID, commitSHA, err)
	}
	defer cleanup()

	cacheErrCh := make(chan error, 1)
	go func() {
		cacheErrCh <- w.cache.Ensure(ctx, repositoryID, commitSHA, repoDir)
	}()

	paths, err := walkEmbeddableFiles(repoDir)
	if err != nil {
		return fmt.Errorf("walk repo tree: %w", err)
	}

	log := logger.GetDefault()
	total := len(paths)
	for i, relPath := range paths {
		if err := w.processFile(ctx, repositoryID, commitSHA, repoDir, relPath); err != nil {
			log.Warn("embeddings: skipping file after chunk/embed failure",
				zap.String("path", relPath), zap.Error(err))
			continue
		}

		if total > 0 {
			progress := 1 + (i+1)*97/total // leave [1,98] for file progress, 99 for cache join
			if progress > 98 {
				progress = 98
			}
			if err := w.state.UpdateProgress(ctx, analysisID, model.TrackEmbeddings, progress); err != nil {
				return fmt.Errorf("report progress: %w", err)
			}
		}
	}

	if err := <-cacheErrCh; err != nil {
		return fmt.Errorf("populate content cache: %w", err)
	}
	return nil
}

func (w *EmbeddingsWorker) processFile(ctx context.Context, repositoryID, commitSHA, repoDir, relPath string) error {
	full := filepath.Join(repoDir, relPath)
	content, err := os.ReadFile(full)
	if err != nil {
		return fmt.Errorf("read %s: %w", relPath, err)
	}
	if !utf8.Valid(content) {
		return nil // binary file, nothing to chunk
	}

	chunks, err := w.chunker.ChunkFile(relPath, string(content))
	if err != nil {
		return fmt.Errorf("chunk %s: %w", relPath, err)
	}
	if len(chunks) == 0 {
		return nil
	}

	language := processor.LanguageForPath(relPath)
	payloads := make([]model.VectorIndexPayload, len(chunks))
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		payloads[i] = buildPayload(repositoryID, commitSHA, relPath, language, ch)
		texts[i] = ch.Content
	}

	for start := 0; start < len(texts); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		vectors, err := embedWithRetry(ctx, w.embedder, texts[start:end])
		if err != nil {
			return fmt.Errorf("embed %s: %w", relPath, err)
		}
		for j, vec := range vectors {
			payload := payloads[start+j]
			id := pointID(repositoryID, commitSHA, payload.FilePath, payload.Name, payload.ChunkType, payload.LineStart)
			if err := w.index.Upsert(ctx, id, vec, payload); err != nil {
				return fmt.Errorf("upsert %s:%d: %w", relPath, payload.LineStart, err)
			}
		}
	}
	return nil
}

func buildPayload(repositoryID, commitSHA, relPath, language string, ch processor.Chunk) model.VectorIndexPayload {
	content := ch.Content
	fullLen := len(content)
	truncated := false
	if fullLen > model.MaxContentLength {
		content = content[:model.MaxContentLength]
		truncated = true
	}

	qualifiedName := ch.Name
	level := 0
	if ch.ParentName != "" {
		qualifiedName = ch.ParentName + "." + ch.Name
		level = 1
	}

	return model.VectorIndexPayload{
		SchemaVersion:         model.CurrentSchemaVersion,
		RepositoryID:          repositoryID,
		CommitSHA:             commitSHA,
		FilePath:              relPath,
		Language:              language,
		ChunkType:             ch.Type,
		Name:                  ch.Name,
		LineStart:             ch.LineStart,
		LineEnd:               ch.LineEnd,
		ParentName:            ch.ParentName,
		Content:               content,
		ContentTruncated:      truncated,
		FullContentLength:     fullLen,
		TokenEstimate:         processor.EstimateTokens(ch.Content),
		Level:                 level,
		QualifiedName:         qualifiedName,
		CyclomaticComplexity:  processor.EstimateComplexity(ch.Content),
		LineCount:             ch.LineEnd - ch.LineStart + 1,
		ClusterID:             0,
	}
}

// pointID deterministically derives a vector-index point id from a chunk's
// identity so re-running the embeddings worker for the same commit
// upserts over the same points instead of duplicating them. It returns the
// first 16 bytes of the hash as 32 hex digits, the simple UUID form that
// QdrantIndex sends as the point's UUID.
func pointID(repositoryID, commitSHA, filePath, name string, chunkType model.ChunkType, lineStart int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%s|%s|%d", repositoryID, commitSHA, filePath, name, chunkType, lineStart)))
	return hex.EncodeToString(sum[:16])
}

// embedWithRetry calls EmbedBatch with exponential backoff, per spec.md
// §4.3's retry policy for embedder-provider failures.
func embedWithRetry(ctx context.Context, embedder embeddings.Embedder, texts []string) ([][]float32, error) {
	const maxAttempts = 4
	backoff := 250 * time.Millisecond

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		vectors, err := embedder.EmbedBatch(ctx, texts)
		if err == nil {
			return vectors, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("embed batch after %d attempts: %w", maxAttempts, lastErr)
}

func walkEmbeddableFiles(root string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if _, excluded := embeddingsExcludedDirs[d.Name()]; excluded && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if _, excluded := embeddingsExcludedFiles[d.Name()]; excluded {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Size() == 0 || info.Size() > embeddingsMaxFileSize {
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
