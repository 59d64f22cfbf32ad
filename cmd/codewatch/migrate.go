// Copyright (c) 2025 Northbound System
package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/northbound/codewatch/internal/config"
	"github.com/northbound/codewatch/internal/logger"
	"github.com/northbound/codewatch/internal/store"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the persistence schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate()
		},
	}
}

// runMigrate applies the persistence schema. store.Open runs every
// CREATE TABLE IF NOT EXISTS statement on open, so migrating is just
// opening and closing the store once.
func runMigrate() error {
	log := logger.GetDefault()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	if err := st.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}

	log.Info("schema applied", zap.String("db_path", cfg.DBPath))
	return nil
}
