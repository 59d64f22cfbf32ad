// Copyright (c) 2025 Northbound System
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "codewatch",
		Short: "Analysis Execution Core",
		Long: "codewatch triggers and runs repository analyses: static metrics, " +
			"vector embeddings, architecture clustering, and multi-model AI scanning.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newGCCommand())
	rootCmd.AddCommand(newMigrateCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
