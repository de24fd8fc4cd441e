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
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianStats/cmd/sharpq/config"
	"github.com/AleutianAI/AleutianStats/pkg/ux"
	"github.com/AleutianAI/AleutianStats/services/sharpen/datatypes"
	"github.com/AleutianAI/AleutianStats/services/sharpen/report"
)

// reportThresholdsParam returns the thresholds query value: the flag if
// set, otherwise the configured thresholds rendered as a CSV string.
func reportThresholdsParam() string {
	if reportThresholds != "" {
		return reportThresholds
	}
	thresholds := config.Global.Compute.Thresholds
	if len(thresholds) == 0 {
		return "" // Let the service apply its defaults.
	}
	parts := make([]string, len(thresholds))
	for i, t := range thresholds {
		parts[i] = strconv.FormatFloat(t, 'g', -1, 64)
	}
	return strings.Join(parts, ",")
}

func runReportCommand(cmd *cobra.Command, args []string) {
	id := args[0]
	thresholds := reportThresholdsParam()

	if reportJSONOutput {
		path := "/v1/runs/" + id + "/report"
		if thresholds != "" {
			path += "?thresholds=" + url.QueryEscape(thresholds)
		}
		var rep report.Report
		if err := apiGet(path, &rep); err != nil {
			log.Fatalf("Failed to fetch report for run %s: %v", id, err)
		}
		printJSON(rep)
		return
	}

	path := "/v1/runs/" + id + "/report?format=text"
	if thresholds != "" {
		path += "&thresholds=" + url.QueryEscape(thresholds)
	}
	text, err := apiGetText(path)
	if err != nil {
		log.Fatalf("Failed to fetch report for run %s: %v", id, err)
	}
	fmt.Print(text)
}

func runExplainCommand(cmd *cobra.Command, args []string) {
	id := args[0]

	var resp datatypes.ExplainResponse
	err := ux.WithSpinner("Generating narrative", func() error {
		return apiPost("/v1/runs/"+id+"/explain", nil, &resp)
	})
	if err != nil {
		log.Fatalf("Failed to explain run %s: %v", id, err)
	}

	if explainJSONOutput {
		printJSON(resp)
		return
	}

	ux.Box("Run "+resp.RunID, resp.Narrative)
}
