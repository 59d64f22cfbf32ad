// Copyright (c) 2025 Northbound System

// Package aiscan implements the AI Scan Worker (spec.md §4.5): a
// deterministic repository digest fanned out to N configured LLM models
// (Broad Scan), similarity-based deduplication of their findings (Merge),
// and a bounded tool-calling investigation loop for the highest-severity
// merged issues (Investigate).
package aiscan

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	// MaxFileSize is the largest file BuildDigest will read at all; larger
	// files are skipped entirely rather than partially excerpted.
	MaxFileSize = 256 * 1024
	// ExcerptSize bounds how much of one file's content reaches the
	// digest, per spec.md §4.5's EXCERPT_SIZE.
	ExcerptSize = 4000
	// maxDigestFiles bounds the digest's total file count so the prompt
	// stays within a model's context budget regardless of repo size.
	maxDigestFiles = 40
)

var excludedDirs = map[string]struct{}{
	".git": {}, "node_modules": {}, "vendor": {}, ".venv": {}, "__pycache__": {}, "dist": {}, "build": {},
}

var entryPointNames = map[string]bool{
	"main.go": true, "index.js": true, "index.ts": true, "app.py": true, "main.py": true, "server.go": true,
}

var configFileNames = map[string]bool{
	"go.mod": true, "package.json": true, "requirements.txt": true, "pyproject.toml": true,
	"Dockerfile": true, "docker-compose.yml": true, "Makefile": true,
}

// BuildDigest walks repoDir and produces a deterministic, size-bounded
// text view of the repository: entry points and config files first (in
// lexical order), then remaining files up to maxDigestFiles, each
// excerpted to at most ExcerptSize bytes. Two calls against the same tree
// produce byte-identical output, which the Merge phase's consensus
// reasoning depends on implicitly (every model sees the same view).
func BuildDigest(repoDir string) (string, error) {
	var priority, rest []string

	err := filepath.WalkDir(repoDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if _, skip := excludedDirs[d.Name()]; skip && path != repoDir {
				return filepath.SkipDir
			}
			return nil
		}
		rel, relErr := filepath.Rel(repoDir, path)
		if relErr != nil {
			return relErr
		}
		base := filepath.Base(rel)
		if entryPointNames[base] || configFileNames[base] {
			priority = append(priority, rel)
		} else {
			rest = append(rest, rel)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("walk repository: %w", err)
	}

	sort.Strings(priority)
	sort.Strings(rest)

	files := append(priority, rest...)
	if len(files) > maxDigestFiles {
		files = files[:maxDigestFiles]
	}

	var b strings.Builder
	for _, rel := range files {
		full := filepath.Join(repoDir, rel)
		info, statErr := os.Stat(full)
		if statErr != nil || info.Size() > MaxFileSize {
			continue
		}
		content, readErr := os.ReadFile(full)
		if readErr != nil {
			continue
		}
		excerpt := content
		truncated := false
		if len(excerpt) > ExcerptSize {
			excerpt = excerpt[:ExcerptSize]
			truncated = true
		}
		fmt.Fprintf(&b, "=== %s ===\n%s\n", rel, excerpt)
		if truncated {
			b.WriteString("...[truncated]\n")
		}
	}
	return b.String(), nil
}
