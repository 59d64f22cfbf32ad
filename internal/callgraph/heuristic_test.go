package callgraph

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSource = `package sample

func main() {
	used()
}

func used() {
	println("called")
}

func unused() {
	println("never called")
}
`

func TestHeuristicAnalyzer_FindsUnreachableFunction(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sample.go"), []byte(sampleSource), 0644))

	results, err := NewHeuristicAnalyzer().Analyze(context.Background(), dir)
	require.NoError(t, err)

	byName := map[string]Reachability{}
	for _, r := range results {
		byName[r.Symbol.Name] = r
	}

	require.Contains(t, byName, "unused")
	assert.False(t, byName["unused"].Reachable)
	require.Contains(t, byName, "used")
	assert.True(t, byName["used"].Reachable)
	require.Contains(t, byName, "main")
	assert.True(t, byName["main"].Reachable)
	assert.Equal(t, 1.0, byName["main"].Confidence)
	assert.Less(t, byName["unused"].Confidence, 1.0)
}
