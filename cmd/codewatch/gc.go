// Copyright (c) 2025 Northbound System
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/northbound/codewatch/internal/config"
	"github.com/northbound/codewatch/internal/gc"
	"github.com/northbound/codewatch/internal/logger"
	"github.com/northbound/codewatch/internal/objectstorage"
	"github.com/northbound/codewatch/internal/store"
)

func newGCCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "gc",
		Short: "Run one content-cache garbage-collection sweep and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGC(cmd)
		},
	}
}

func runGC(cmd *cobra.Command) error {
	log := logger.GetDefault()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	blobs, err := objectstorage.NewAzureBlobStore(cmd.Context(), cfg.ObjectStorage.ConnectionString(), cfg.ObjectStorage.Container)
	if err != nil {
		return fmt.Errorf("build object storage: %w", err)
	}

	w := gc.New(st, blobs)
	if err := w.Sweep(cmd.Context()); err != nil {
		return fmt.Errorf("gc sweep: %w", err)
	}

	log.Info("gc sweep complete")
	return nil
}
