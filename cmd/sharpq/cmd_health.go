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

	"github.com/spf13/cobra"
	"golang.org/x/mod/semver"

	"github.com/AleutianAI/AleutianStats/cmd/sharpq/config"
	"github.com/AleutianAI/AleutianStats/pkg/ux"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var healthJSONOutput bool // Machine-readable output for scripts

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// healthCmd checks the sharpen service and its optional backends.
//
// # Description
//
// Probes the service's health endpoint and reports its version, stored
// run count, and whether run history (InfluxDB) and narratives (LLM)
// are enabled. The service version is checked against MinServerVersion;
// an older daemon fails the check unless server.insecure is set in the
// config.
//
// # Examples
//
//	sharpq health            # Human-readable status
//	sharpq health --json     # JSON for scripting
//
// # Limitations
//
//   - Exits with code 1 when the service is unreachable, unhealthy, or
//     older than the supported minimum
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the sharpen service's health and version",
	Long: `Probes the sharpen service and reports its status, version, and
which optional backends (run history, narratives) are enabled.

Examples:
  sharpq health
  sharpq health --json`,
	Run: runHealthCommand,
}

// =============================================================================
// COMMAND INITIALIZATION
// =============================================================================

func init() {
	healthCmd.Flags().BoolVar(&healthJSONOutput, "json", false,
		"Output as JSON for scripting")
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

// healthStatus mirrors GET /health plus CLI-side findings.
type healthStatus struct {
	Status           string `json:"status"`
	Version          string `json:"version"`
	HistoryEnabled   bool   `json:"history_enabled"`
	InterpretEnabled bool   `json:"interpret_enabled"`
	Runs             int    `json:"runs"`
	ServerURL        string `json:"server_url"`
	VersionSupported bool   `json:"version_supported"`
}

// runHealthCommand probes the service and applies the version gate.
func runHealthCommand(cmd *cobra.Command, args []string) {
	var health healthStatus
	if err := apiGet("/health", &health); err != nil {
		if healthJSONOutput {
			printJSON(struct {
				Status    string `json:"status"`
				ServerURL string `json:"server_url"`
				Error     string `json:"error"`
			}{"unreachable", getServerBaseURL(), err.Error()})
		} else {
			ux.Error("Sharpen service unreachable: " + err.Error())
		}
		os.Exit(1)
	}

	health.ServerURL = getServerBaseURL()
	health.VersionSupported = serverVersionSupported(health.Version)

	if healthJSONOutput {
		printJSON(health)
		if health.Status != "healthy" || (!health.VersionSupported && !config.Global.Server.Insecure) {
			os.Exit(1)
		}
		return
	}

	ux.Title("Sharpen service health")
	if health.Status == "healthy" {
		ux.Success(fmt.Sprintf("Service %s at %s is healthy", health.Version, health.ServerURL))
	} else {
		ux.Warning(fmt.Sprintf("Service %s at %s reports %q", health.Version, health.ServerURL, health.Status))
	}

	if !health.VersionSupported {
		msg := fmt.Sprintf("Service version %s is older than the supported minimum %s",
			health.Version, MinServerVersion)
		if config.Global.Server.Insecure {
			ux.Warning(msg + " (check skipped by server.insecure)")
		} else {
			ux.Error(msg)
			os.Exit(1)
		}
	}

	ux.Info(fmt.Sprintf("Stored runs: %d", health.Runs))
	reportBackend("Run history (InfluxDB)", health.HistoryEnabled)
	reportBackend("Narratives (LLM)", health.InterpretEnabled)

	if health.Status != "healthy" {
		os.Exit(1)
	}
}

// serverVersionSupported reports whether the daemon's version meets
// MinServerVersion. The service sends plain "0.1.0" strings while
// semver.Compare wants a leading "v".
func serverVersionSupported(version string) bool {
	v := version
	if v != "" && v[0] != 'v' {
		v = "v" + v
	}
	min := MinServerVersion
	if min != "" && min[0] != 'v' {
		min = "v" + min
	}
	if !semver.IsValid(v) {
		return false
	}
	return semver.Compare(v, min) >= 0
}

// =============================================================================
// OUTPUT FORMATTING
// =============================================================================

// reportBackend prints one optional-backend status line.
func reportBackend(name string, enabled bool) {
	if enabled {
		ux.Info(name + ": enabled")
	} else {
		ux.Muted(name + ": disabled")
	}
}
