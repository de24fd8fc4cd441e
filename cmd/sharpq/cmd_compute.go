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
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianStats/cmd/sharpq/config"
	"github.com/AleutianAI/AleutianStats/pkg/ux"
	"github.com/AleutianAI/AleutianStats/services/sharpen/datatypes"
	"github.com/AleutianAI/AleutianStats/services/sharpen/fdr"
	"github.com/AleutianAI/AleutianStats/services/sharpen/watch"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	computeStep       float64 // Grid step override (0 = config default)
	computeJSONOutput bool    // Output as JSON
	computeOutput     string  // Write (p, q) pairs to this CSV path
	computeRemote     bool    // Compute on the sharpen service instead of locally
	computeLabel      string  // Label for the stored run (remote only)
	computeNoPersist  bool    // Ask the service not to store the run (remote only)
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// computeCmd sharpens one p-value vector.
//
// # Description
//
// Reads p-values from a file or stdin and computes two-stage sharpened
// q-values. By default the sweep runs locally in-process; --remote sends
// the vector to the sharpen service, which also stores the run for later
// reporting.
//
// # Examples
//
//	sharpq compute pvalues.csv              # Local, summary to stdout
//	sharpq compute pvalues.csv -o out.csv   # Write aligned (p, q) CSV
//	cat pvalues.txt | sharpq compute        # Read from stdin
//	sharpq compute pvalues.csv --json       # Full q-value vector as JSON
//	sharpq compute pvalues.csv --remote     # Compute and store on the service
//
// # Limitations
//
//   - Text mode prints a summary only; use --json or -o for the vector
//   - --label and --no-persist have no effect without --remote
var computeCmd = &cobra.Command{
	Use:   "compute [file]",
	Short: "Sharpen a p-value vector into BKY q-values",
	Long: `Computes two-stage sharpened q-values for a vector of p-values.

Input is a CSV (first column, optional header) or a plain list of numbers.
Pass "-" or no argument to read from stdin.

Examples:
  sharpq compute pvalues.csv              # Local compute, summary output
  sharpq compute pvalues.csv -o out.csv   # Also write (p, q) pairs as CSV
  sharpq compute pvalues.csv --step 0.01  # Coarser candidate grid
  sharpq compute pvalues.csv --remote     # Compute and store on the service`,
	Args: cobra.MaximumNArgs(1),
	Run:  runComputeCommand,
}

// =============================================================================
// COMMAND INITIALIZATION
// =============================================================================

func init() {
	computeCmd.Flags().Float64Var(&computeStep, "step", 0,
		"Candidate grid step in (0, 1] (0 = configured default)")
	computeCmd.Flags().BoolVar(&computeJSONOutput, "json", false,
		"Output the full result as JSON for scripting")
	computeCmd.Flags().StringVarP(&computeOutput, "output", "o", "",
		"Write aligned (p_value, q_value) pairs to this CSV file")
	computeCmd.Flags().BoolVar(&computeRemote, "remote", false,
		"Send the vector to the sharpen service instead of computing locally")
	computeCmd.Flags().StringVar(&computeLabel, "label", "",
		"Label for the stored run (remote only, defaults to the file name)")
	computeCmd.Flags().BoolVar(&computeNoPersist, "no-persist", false,
		"Ask the service not to store the run (remote only)")
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

// runComputeCommand reads the input vector and sharpens it.
func runComputeCommand(cmd *cobra.Command, args []string) {
	path := "-"
	if len(args) > 0 {
		path = args[0]
	}

	pvals, err := readPValuesArg(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read p-values: %v\n", err)
		os.Exit(1)
	}

	step := resolveStep(computeStep)

	if computeRemote {
		computeRemotely(pvals, step, path)
		return
	}

	start := time.Now()
	qvals, err := fdr.SharpenQValues(context.Background(), pvals, &fdr.Options{Step: step})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Sharpening failed: %v\n", err)
		os.Exit(1)
	}

	outputComputeResult(pvals, qvals, step, "", time.Since(start))
}

// computeRemotely sends the vector to the sharpen service.
func computeRemotely(pvals []float64, step float64, path string) {
	label := computeLabel
	if label == "" && path != "-" {
		label = filepath.Base(path)
	}

	req := datatypes.SharpenRequest{
		PValues: pvals,
		Step:    step,
		Label:   label,
	}
	if computeNoPersist {
		noPersist := false
		req.Persist = &noPersist
	}
	req.EnsureDefaults()

	var resp datatypes.SharpenResponse
	if err := apiPost("/v1/sharpen", &req, &resp); err != nil {
		fmt.Fprintf(os.Stderr, "Remote sharpening failed: %v\n", err)
		os.Exit(1)
	}

	outputComputeResult(pvals, resp.QValues, resp.Step, resp.RunID,
		time.Duration(resp.ProcessingTimeMs)*time.Millisecond)
}

// =============================================================================
// OUTPUT FORMATTING
// =============================================================================

// outputComputeResult writes the optional CSV, then the summary.
func outputComputeResult(pvals, qvals []float64, step float64, runID string, elapsed time.Duration) {
	if computeOutput != "" {
		if err := watch.WriteQValues(computeOutput, pvals, qvals); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write output: %v\n", err)
			os.Exit(1)
		}
	}

	if computeJSONOutput {
		printJSON(struct {
			Hypotheses    int       `json:"hypotheses"`
			Step          float64   `json:"step"`
			QValues       []float64 `json:"q_values"`
			Discoveries05 int       `json:"discoveries_at_0_05"`
			MinQ          float64   `json:"min_q"`
			RunID         string    `json:"run_id,omitempty"`
		}{
			Hypotheses:    len(qvals),
			Step:          step,
			QValues:       qvals,
			Discoveries05: countDiscoveries(qvals, 0.05),
			MinQ:          minQValue(qvals),
			RunID:         runID,
		})
		return
	}

	ux.Title(fmt.Sprintf("Sharpened %d hypotheses (step %g)", len(qvals), step))
	for _, threshold := range config.Global.Compute.GetThresholds() {
		ux.Discoveries(threshold, countDiscoveries(qvals, threshold), len(qvals))
	}
	ux.Info(fmt.Sprintf("Min q-value: %.4g", minQValue(qvals)))
	if runID != "" {
		ux.Info("Run ID: " + runID)
	}
	if computeOutput != "" {
		ux.Success("Wrote " + computeOutput)
	}
	ux.Muted(fmt.Sprintf("Completed in %v", elapsed.Round(time.Millisecond)))
}
