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

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianStats/pkg/ux"
	"github.com/AleutianAI/AleutianStats/pkg/validation"
	"github.com/AleutianAI/AleutianStats/services/sharpen/batch"
	"github.com/AleutianAI/AleutianStats/services/sharpen/datatypes"
	"github.com/AleutianAI/AleutianStats/services/sharpen/watch"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	batchStep       float64 // Grid step override (0 = config default)
	batchWorkers    int     // Concurrent datasets (0 = one per CPU)
	batchJSONOutput bool    // Output as JSON
	batchRemote     bool    // Sharpen on the sharpen service instead of locally
	batchNoPersist  bool    // Ask the service not to store the runs (remote only)
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// batchCmd sharpens several datasets concurrently.
//
// # Description
//
// Each file is an independent dataset; one unreadable or invalid file
// never fails the batch. Local mode writes sharpened output beside each
// input as *.qvalues.csv. Remote mode sends all datasets in one request
// and the service stores each successful run.
//
// # Examples
//
//	sharpq batch trials/*.csv               # Sharpen each file locally
//	sharpq batch a.csv b.csv --workers 2    # Bound concurrency
//	sharpq batch trials/*.csv --remote      # One request, runs stored
//
// # Limitations
//
//   - Remote batches are capped at 32 datasets by the service
//   - Remote dataset names are file base names, so they can collide
var batchCmd = &cobra.Command{
	Use:   "batch [files...]",
	Short: "Sharpen several p-value datasets concurrently",
	Long: `Sharpens several datasets concurrently, one outcome per file.

Local mode writes each result beside its input as *.qvalues.csv.
A failing dataset is reported and skipped; the rest of the batch
completes. The exit code is non-zero when any dataset failed.

Examples:
  sharpq batch trials/*.csv
  sharpq batch a.csv b.csv --workers 2
  sharpq batch trials/*.csv --remote --json`,
	Args: cobra.MinimumNArgs(1),
	Run:  runBatchCommand,
}

// =============================================================================
// COMMAND INITIALIZATION
// =============================================================================

func init() {
	batchCmd.Flags().Float64Var(&batchStep, "step", 0,
		"Candidate grid step in (0, 1] (0 = configured default)")
	batchCmd.Flags().IntVar(&batchWorkers, "workers", 0,
		"Datasets sharpened concurrently (0 = one per CPU)")
	batchCmd.Flags().BoolVar(&batchJSONOutput, "json", false,
		"Output per-dataset results as JSON for scripting")
	batchCmd.Flags().BoolVar(&batchRemote, "remote", false,
		"Send all datasets to the sharpen service in one request")
	batchCmd.Flags().BoolVar(&batchNoPersist, "no-persist", false,
		"Ask the service not to store the runs (remote only)")
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

// batchFileResult is the per-file outcome reported by local batch runs.
type batchFileResult struct {
	Name          string `json:"name"`
	Output        string `json:"output,omitempty"`
	Hypotheses    int    `json:"hypotheses,omitempty"`
	Discoveries05 int    `json:"discoveries_at_0_05"`
	Error         string `json:"error,omitempty"`
}

// runBatchCommand fans the files out across the batch runner.
func runBatchCommand(cmd *cobra.Command, args []string) {
	step := resolveStep(batchStep)

	if batchRemote {
		runBatchRemotely(args, step)
		return
	}

	// Unreadable files become failed results up front; the rest go to
	// the runner. Outcomes line up positionally with datasets.
	var results []batchFileResult
	var datasets []batch.Dataset
	for _, path := range args {
		pvals, err := readPValuesArg(path)
		if err != nil {
			results = append(results, batchFileResult{Name: path, Error: err.Error()})
			continue
		}
		datasets = append(datasets, batch.Dataset{Name: path, PValues: pvals})
	}

	if len(datasets) > 0 {
		spinner := ux.NewProgressSpinner("Sharpening datasets", len(datasets))
		spinner.Start()

		runner := batch.NewRunner(&batch.Options{
			Workers: batchWorkers,
			Step:    step,
			OnProgress: func(completed, total int, name string) {
				spinner.SetProgress(completed)
			},
		})
		outcomes, err := runner.Run(context.Background(), datasets)
		if err != nil {
			spinner.StopWithError("Batch failed")
			fmt.Fprintf(os.Stderr, "Batch failed: %v\n", err)
			os.Exit(1)
		}
		spinner.Stop()

		for i, out := range outcomes {
			if out.Err != nil {
				results = append(results, batchFileResult{Name: out.Name, Error: out.Err.Error()})
				continue
			}
			outPath := watch.OutputPath(out.Name)
			if err := watch.WriteQValues(outPath, datasets[i].PValues, out.QValues); err != nil {
				results = append(results, batchFileResult{Name: out.Name, Error: err.Error()})
				continue
			}
			results = append(results, batchFileResult{
				Name:          out.Name,
				Output:        outPath,
				Hypotheses:    len(out.QValues),
				Discoveries05: countDiscoveries(out.QValues, 0.05),
			})
		}
	}

	outputBatchResults(results)
}

// runBatchRemotely sends all datasets in one request.
func runBatchRemotely(paths []string, step float64) {
	req := datatypes.BatchSharpenRequest{
		Step:    step,
		Workers: batchWorkers,
	}
	for _, path := range paths {
		pvals, err := readPValuesArg(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read %s: %v\n", path, err)
			os.Exit(1)
		}
		name := filepath.Base(path)
		if path == "-" {
			name = "stdin"
		}
		clean, err := validation.SanitizeDatasetName(name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Cannot use %q as a dataset name: %v\n", name, err)
			os.Exit(1)
		}
		req.Datasets = append(req.Datasets, datatypes.BatchDataset{
			Name:    clean,
			PValues: pvals,
		})
	}
	if batchNoPersist {
		noPersist := false
		req.Persist = &noPersist
	}
	req.EnsureDefaults()

	var resp datatypes.BatchSharpenResponse
	if err := apiPost("/v1/sharpen/batch", &req, &resp); err != nil {
		fmt.Fprintf(os.Stderr, "Remote batch failed: %v\n", err)
		os.Exit(1)
	}

	if batchJSONOutput {
		printJSON(resp)
		if resp.Failed > 0 {
			os.Exit(1)
		}
		return
	}

	for _, out := range resp.Outcomes {
		if out.Error != "" {
			ux.FileStatus(out.Name, ux.IconError, out.Error)
			continue
		}
		status := fmt.Sprintf("%d discoveries at q <= 0.05", out.Discoveries05)
		if out.RunID != "" {
			status += ", run " + out.RunID
		}
		ux.FileStatus(out.Name, ux.IconSuccess, status)
	}
	ux.Summary(resp.Completed, resp.Failed, len(resp.Outcomes))
	if resp.Failed > 0 {
		os.Exit(1)
	}
}

// =============================================================================
// OUTPUT FORMATTING
// =============================================================================

// outputBatchResults prints per-file outcomes and the summary line.
func outputBatchResults(results []batchFileResult) {
	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
		}
	}

	if batchJSONOutput {
		printJSON(results)
	} else {
		for _, r := range results {
			if r.Error != "" {
				ux.FileStatus(r.Name, ux.IconError, r.Error)
				continue
			}
			ux.FileStatus(r.Name, ux.IconSuccess,
				fmt.Sprintf("%d discoveries at q <= 0.05, wrote %s", r.Discoveries05, r.Output))
		}
		ux.Summary(len(results)-failed, failed, len(results))
	}

	if failed > 0 {
		os.Exit(1)
	}
}
