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
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianStats/pkg/ux"
	"github.com/AleutianAI/AleutianStats/services/sharpen/datatypes"
	"github.com/AleutianAI/AleutianStats/services/sharpen/fdr"
	"github.com/AleutianAI/AleutianStats/services/sharpen/simulate"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	simHypotheses  int     // Vector length m
	simAltFraction float64 // Fraction of true alternatives
	simAltShape    float64 // Beta shape for alternative p-values
	simSeed        uint64  // RNG seed (0 = time-derived)
	simStep        float64 // Grid step override (0 = config default)
	simJSONOutput  bool    // Output as JSON
	simRemote      bool    // Simulate on the sharpen service
	simPersist     bool    // Store the run on the service (remote only)
	simOutput      string  // Write (p, q, is_alternative) rows to this CSV
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// simulateCmd draws a labeled p-value mixture and sharpens it.
//
// # Description
//
// Generates p-values from a null/alternative mixture with known labels,
// sharpens them, and reports how many discoveries at q <= 0.05 are real.
// Because the ground truth is known, the realized false discovery
// proportion is exact. Identical seeds reproduce identical datasets.
//
// # Examples
//
//	sharpq simulate -m 1000                        # Default mixture
//	sharpq simulate -m 5000 --alt-fraction 0.2     # More signal
//	sharpq simulate -m 1000 --seed 42              # Reproducible
//	sharpq simulate -m 1000 --remote --persist     # Stored on the service
//
// # Limitations
//
//   - --persist requires --remote; local runs have nowhere to store
var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Generate a labeled p-value mixture and sharpen it",
	Long: `Draws p-values from a known null/alternative mixture and sharpens
them, so the false discovery proportion can be checked against ground
truth. Equal seeds reproduce equal datasets; seed 0 picks a fresh one
and prints it.

Examples:
  sharpq simulate -m 1000
  sharpq simulate -m 5000 --alt-fraction 0.2 --seed 42
  sharpq simulate -m 1000 -o sim.csv`,
	Run: runSimulateCommand,
}

// =============================================================================
// COMMAND INITIALIZATION
// =============================================================================

func init() {
	simulateCmd.Flags().IntVarP(&simHypotheses, "hypotheses", "m", 1000,
		"Number of hypotheses to simulate")
	simulateCmd.Flags().Float64Var(&simAltFraction, "alt-fraction", simulate.DefaultAltFraction,
		"Fraction of true alternatives in [0, 1]")
	simulateCmd.Flags().Float64Var(&simAltShape, "alt-shape", simulate.DefaultAltShape,
		"Beta shape for alternative p-values; smaller skews toward zero")
	simulateCmd.Flags().Uint64Var(&simSeed, "seed", 0,
		"RNG seed (0 = derive one from the clock and print it)")
	simulateCmd.Flags().Float64Var(&simStep, "step", 0,
		"Candidate grid step in (0, 1] (0 = configured default)")
	simulateCmd.Flags().BoolVar(&simJSONOutput, "json", false,
		"Output the full result as JSON for scripting")
	simulateCmd.Flags().BoolVar(&simRemote, "remote", false,
		"Simulate on the sharpen service instead of locally")
	simulateCmd.Flags().BoolVar(&simPersist, "persist", false,
		"Store the sharpened run on the service (requires --remote)")
	simulateCmd.Flags().StringVarP(&simOutput, "output", "o", "",
		"Write (p_value, q_value, is_alternative) rows to this CSV file")
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

// runSimulateCommand generates, sharpens, and tallies one mixture.
func runSimulateCommand(cmd *cobra.Command, args []string) {
	if simPersist && !simRemote {
		fmt.Fprintln(os.Stderr, "--persist requires --remote; local simulations have nowhere to store.")
		os.Exit(1)
	}

	// Resolve the seed up front so local and remote runs are equally
	// reproducible from the printed value.
	seed := simSeed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	step := resolveStep(simStep)

	if simRemote {
		simulateRemotely(seed, step)
		return
	}

	spec := simulate.Spec{
		Hypotheses:  simHypotheses,
		AltFraction: simAltFraction,
		AltShape:    simAltShape,
		Seed:        seed,
	}
	spec.EnsureDefaults()

	pvals, isAlt, err := simulate.Generate(spec)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Simulation failed: %v\n", err)
		os.Exit(1)
	}

	qvals, err := fdr.SharpenQValues(context.Background(), pvals, &fdr.Options{Step: step})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Sharpening failed: %v\n", err)
		os.Exit(1)
	}

	outputSimulateResult(spec, step, "", pvals, qvals, isAlt)
}

// simulateRemotely asks the sharpen service to generate and sharpen.
func simulateRemotely(seed uint64, step float64) {
	req := datatypes.SimulateRequest{
		Hypotheses:  simHypotheses,
		AltFraction: simAltFraction,
		AltShape:    simAltShape,
		Seed:        seed,
		Step:        step,
		Persist:     simPersist,
	}
	req.EnsureDefaults()

	var resp datatypes.SimulateResponse
	if err := apiPost("/v1/simulate", &req, &resp); err != nil {
		fmt.Fprintf(os.Stderr, "Remote simulation failed: %v\n", err)
		os.Exit(1)
	}

	spec := simulate.Spec{
		Hypotheses:  simHypotheses,
		AltFraction: simAltFraction,
		AltShape:    simAltShape,
		Seed:        resp.Seed,
	}
	outputSimulateResult(spec, step, resp.RunID, resp.PValues, resp.QValues, resp.IsAlternative)
}

// =============================================================================
// OUTPUT FORMATTING
// =============================================================================

// outputSimulateResult writes the optional CSV, then the tallies.
func outputSimulateResult(spec simulate.Spec, step float64, runID string, pvals, qvals []float64, isAlt []bool) {
	trueD, falseD := 0, 0
	for i, q := range qvals {
		if q > 0.05 {
			continue
		}
		if i < len(isAlt) && isAlt[i] {
			trueD++
		} else {
			falseD++
		}
	}

	if simOutput != "" {
		if err := writeSimulationCSV(simOutput, pvals, qvals, isAlt); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write output: %v\n", err)
			os.Exit(1)
		}
	}

	if simJSONOutput {
		printJSON(struct {
			Seed               uint64    `json:"seed"`
			Hypotheses         int       `json:"hypotheses"`
			AltFraction        float64   `json:"alt_fraction"`
			AltShape           float64   `json:"alt_shape"`
			Step               float64   `json:"step"`
			PValues            []float64 `json:"p_values"`
			QValues            []float64 `json:"q_values"`
			IsAlternative      []bool    `json:"is_alternative"`
			TrueDiscoveries05  int       `json:"true_discoveries_at_0_05"`
			FalseDiscoveries05 int       `json:"false_discoveries_at_0_05"`
			RunID              string    `json:"run_id,omitempty"`
		}{
			Seed:               spec.Seed,
			Hypotheses:         len(pvals),
			AltFraction:        spec.AltFraction,
			AltShape:           spec.AltShape,
			Step:               step,
			PValues:            pvals,
			QValues:            qvals,
			IsAlternative:      isAlt,
			TrueDiscoveries05:  trueD,
			FalseDiscoveries05: falseD,
			RunID:              runID,
		})
		return
	}

	ux.Title(fmt.Sprintf("Simulated %d hypotheses (%.0f%% alternatives, step %g)",
		len(pvals), spec.AltFraction*100, step))
	ux.Info(fmt.Sprintf("Seed: %d", spec.Seed))
	ux.Success(fmt.Sprintf("%d true discoveries at q <= 0.05", trueD))
	if falseD > 0 {
		ux.Warning(fmt.Sprintf("%d false discoveries at q <= 0.05", falseD))
	} else {
		ux.Info("0 false discoveries at q <= 0.05")
	}
	if trueD+falseD > 0 {
		ux.Muted(fmt.Sprintf("Realized false discovery proportion: %.3f",
			float64(falseD)/float64(trueD+falseD)))
	}
	if runID != "" {
		ux.Info("Run ID: " + runID)
	}
	if simOutput != "" {
		ux.Success("Wrote " + simOutput)
	}
}

// writeSimulationCSV writes aligned (p, q, label) rows with a header.
func writeSimulationCSV(path string, pvals, qvals []float64, isAlt []bool) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"p_value", "q_value", "is_alternative"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i := range pvals {
		alt := "false"
		if i < len(isAlt) && isAlt[i] {
			alt = "true"
		}
		record := []string{
			strconv.FormatFloat(pvals[i], 'g', -1, 64),
			strconv.FormatFloat(qvals[i], 'g', -1, 64),
			alt,
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return f.Close()
}
