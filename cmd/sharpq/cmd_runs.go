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
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianStats/services/sharpen/store"
)

// runsListResponse mirrors GET /v1/runs.
type runsListResponse struct {
	Runs  []store.RunSummary `json:"runs"`
	Count int                `json:"count"`
}

func runRunsList(cmd *cobra.Command, args []string) {
	path := "/v1/runs"
	if runsLimit > 0 {
		path = fmt.Sprintf("/v1/runs?limit=%d", runsLimit)
	}

	var result runsListResponse
	if err := apiGet(path, &result); err != nil {
		log.Fatalf("Failed to list runs: %v", err)
	}

	if runsJSONOutput {
		printJSON(result)
		return
	}

	if len(result.Runs) == 0 {
		fmt.Println("No stored runs found.")
		return
	}

	fmt.Printf("Stored Runs (%d):\n", result.Count)
	fmt.Println("------------------------------------------------------------------")
	for _, r := range result.Runs {
		label := r.Label
		if label == "" {
			label = "(unlabeled)"
		}
		fmt.Printf("%s  %s\n", r.ID, label)
		fmt.Printf("  source=%s hypotheses=%d discoveries(0.05)=%d min_q=%.4g step=%g\n",
			r.Source, r.Hypotheses, r.Discoveries05, r.MinQ, r.Step)
		fmt.Printf("  created %s\n\n", r.CreatedAt.Format(time.RFC3339))
	}
}

func runRunsShow(cmd *cobra.Command, args []string) {
	id := args[0]

	var rec store.RunRecord
	if err := apiGet("/v1/runs/"+id, &rec); err != nil {
		log.Fatalf("Failed to fetch run %s: %v", id, err)
	}

	if showJSONOutput {
		printJSON(rec)
		return
	}

	fmt.Printf("Run:        %s\n", rec.ID)
	if rec.Label != "" {
		fmt.Printf("Label:      %s\n", rec.Label)
	}
	fmt.Printf("Source:     %s\n", rec.Source)
	fmt.Printf("Created:    %s\n", rec.CreatedAt.Format(time.RFC3339))
	fmt.Printf("Step:       %g\n", rec.Step)
	fmt.Printf("Hypotheses: %d\n", rec.Hypotheses)
	if rec.ContentHash != "" {
		fmt.Printf("Hash:       %s\n", rec.ContentHash)
	}

	// Preview the head of the vectors; --json has the full pair.
	const previewRows = 20
	fmt.Println("\n  p_value      q_value")
	fmt.Println("  ---------    ---------")
	for i := 0; i < len(rec.PValues) && i < previewRows; i++ {
		fmt.Printf("  %-10.4g   %-10.4g\n", rec.PValues[i], rec.QValues[i])
	}
	if len(rec.PValues) > previewRows {
		fmt.Printf("  ... and %d more rows (use --json for the full vectors)\n",
			len(rec.PValues)-previewRows)
	}
}

func runRunsDelete(cmd *cobra.Command, args []string) {
	id := args[0]

	var result struct {
		Status string `json:"status"`
		RunID  string `json:"run_id"`
	}
	if err := apiDelete("/v1/runs/"+id, &result); err != nil {
		log.Fatalf("Failed to delete run %s: %v", id, err)
	}

	fmt.Printf("Successfully deleted run: %s\n", result.RunID)
}
