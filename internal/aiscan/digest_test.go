// Copyright (c) 2025 Northbound System
package aiscan

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func TestBuildDigest_PrioritizesEntryPointsAndConfigFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "internal/util/helpers.go", "package util\n")
	writeFile(t, root, "go.mod", "module example\n")
	writeFile(t, root, "cmd/app/main.go", "package main\n")

	digest, err := BuildDigest(root)
	require.NoError(t, err)

	goModIdx := strings.Index(digest, "go.mod")
	mainIdx := strings.Index(digest, "cmd/app/main.go")
	helperIdx := strings.Index(digest, "internal/util/helpers.go")
	require.NotEqual(t, -1, goModIdx)
	require.NotEqual(t, -1, mainIdx)
	require.NotEqual(t, -1, helperIdx)
	assert.Less(t, mainIdx, helperIdx, "entry points should precede ordinary files")
	assert.Less(t, goModIdx, helperIdx, "config files should precede ordinary files")
}

func TestBuildDigest_SkipsExcludedDirectories(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "vendor/dep/dep.go", "package dep\n")
	writeFile(t, root, "main.go", "package main\n")

	digest, err := BuildDigest(root)
	require.NoError(t, err)
	assert.NotContains(t, digest, "vendor/dep")
	assert.Contains(t, digest, "main.go")
}

func TestBuildDigest_TruncatesOversizedExcerpts(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "big.go", strings.Repeat("a", ExcerptSize+500))

	digest, err := BuildDigest(root)
	require.NoError(t, err)
	assert.Contains(t, digest, "...[truncated]")
	assert.Less(t, len(digest), ExcerptSize+500)
}

func TestBuildDigest_SkipsFilesOverMaxSize(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "huge.bin", strings.Repeat("x", MaxFileSize+10))

	digest, err := BuildDigest(root)
	require.NoError(t, err)
	assert.Empty(t, digest)
}
