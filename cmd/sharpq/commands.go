// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"os"

	"github.com/AleutianAI/AleutianStats/cmd/sharpq/config"
	"github.com/AleutianAI/AleutianStats/pkg/ux"
	"github.com/spf13/cobra"
)

// --- Command Tree ---
var (
	personalityLevel string // Output style chosen via --personality

	runsLimit      int
	runsJSONOutput bool
	showJSONOutput bool

	reportThresholds string
	reportJSONOutput bool

	explainJSONOutput bool

	rootCmd = &cobra.Command{
		Use:   "sharpq",
		Short: "A cli for two-stage sharpened FDR q-values",
		Long: `Sharpq computes Benjamini-Krieger-Yekutieli two-stage sharpened
				q-values for multiple hypothesis testing, either locally or
				against a running sharpen service.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load ~/.aleutianstats/sharpq.yaml before any command runs.
			// init exists to rewrite a broken config; everyone else
			// needs a readable one.
			if err := config.Load(); err != nil && cmd.Name() != "init" {
				fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
				os.Exit(1)
			}
			// The flag wins over ALEUTIAN_PERSONALITY.
			if personalityLevel == "" {
				ux.InitPersonality()
			} else {
				ux.SetPersonalityLevel(ux.ParsePersonalityLevel(personalityLevel))
			}
		},
	}

	// --- Stored Runs ---
	runsCmd = &cobra.Command{
		Use:   "runs",
		Short: "Inspect and manage stored sharpening runs",
	}
	runsListCmd = &cobra.Command{
		Use:   "list",
		Short: "List stored runs, newest first",
		Run:   runRunsList, // Defined in cmd_runs.go
	}
	runsShowCmd = &cobra.Command{
		Use:   "show [run-id]",
		Short: "Show a stored run including its p- and q-values",
		Args:  cobra.ExactArgs(1),
		Run:   runRunsShow, // Defined in cmd_runs.go
	}
	runsDeleteCmd = &cobra.Command{
		Use:   "delete [run-id]",
		Short: "Delete a stored run",
		Args:  cobra.ExactArgs(1),
		Run:   runRunsDelete, // Defined in cmd_runs.go
	}
	runsBrowseCmd = &cobra.Command{
		Use:   "browse",
		Short: "Browse stored runs in an interactive terminal view",
		Run:   runRunsBrowse, // Defined in browse.go
	}

	// --- Reporting ---
	reportCmd = &cobra.Command{
		Use:   "report [run-id]",
		Short: "Summarize a stored run's discoveries per FDR level",
		Args:  cobra.ExactArgs(1),
		Run:   runReportCommand, // Defined in cmd_report.go
	}
	explainCmd = &cobra.Command{
		Use:   "explain [run-id]",
		Short: "Generate a plain-language narrative for a stored run",
		Args:  cobra.ExactArgs(1),
		Run:   runExplainCommand, // Defined in cmd_report.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&personalityLevel, "personality", "",
		"Output style: full, standard, minimal, or machine (plain output for scripts)")

	rootCmd.AddCommand(computeCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(simulateCmd)

	// stored run commands
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsListCmd)
	runsListCmd.Flags().IntVar(&runsLimit, "limit", 0,
		"Maximum number of runs to list (0 = server default)")
	runsListCmd.Flags().BoolVar(&runsJSONOutput, "json", false, "Output as JSON for scripting")
	runsCmd.AddCommand(runsShowCmd)
	runsShowCmd.Flags().BoolVar(&showJSONOutput, "json", false, "Output as JSON for scripting")
	runsCmd.AddCommand(runsDeleteCmd)
	runsCmd.AddCommand(runsBrowseCmd)

	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().StringVar(&reportThresholds, "thresholds", "",
		"Comma-separated FDR levels, e.g. 0.01,0.05,0.10 (default: configured thresholds)")
	reportCmd.Flags().BoolVar(&reportJSONOutput, "json", false, "Output as JSON for scripting")

	rootCmd.AddCommand(explainCmd)
	explainCmd.Flags().BoolVar(&explainJSONOutput, "json", false, "Output as JSON for scripting")

	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(initCmd)

	// backup commands
	rootCmd.AddCommand(backupCmd)
	backupCmd.AddCommand(backupCreateCmd)
	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupRestoreCmd)
}
