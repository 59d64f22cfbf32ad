// Copyright (c) 2025 Northbound System
package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubcommands_HaveUseAndRunE(t *testing.T) {
	assert.Equal(t, "serve", newServeCommand().Use)
	assert.NotNil(t, newServeCommand().RunE)

	assert.Equal(t, "gc", newGCCommand().Use)
	assert.NotNil(t, newGCCommand().RunE)

	assert.Equal(t, "migrate", newMigrateCommand().Use)
	assert.NotNil(t, newMigrateCommand().RunE)
}

func TestRunMigrate_AppliesSchemaAgainstInMemoryStore(t *testing.T) {
	t.Setenv("CODEWATCH_DB_PATH", ":memory:")
	require.NoError(t, runMigrate())
}
