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
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/AleutianAI/AleutianStats/cmd/sharpq/config"
	"github.com/AleutianAI/AleutianStats/services/sharpen/watch"
)

// Where the sharpen service listens when nothing overrides it.
const (
	DefaultServerPort = 12230
	DefaultServerHost = "localhost"
)

// CLIVersion is reported in the User-Agent of every request.
const CLIVersion = "0.1.0"

// MinServerVersion is the oldest sharpen service this CLI understands.
// The health command refuses older daemons unless server.insecure is set.
const MinServerVersion = "0.1.0"

// getServerBaseURL returns the address of the sharpen service.
// The environment beats the config file, so tests and containers can
// redirect a CLI without touching ~/.aleutianstats/sharpq.yaml.
func getServerBaseURL() string {
	if url := os.Getenv("ALEUTIAN_SHARPEN_URL"); url != "" {
		return url
	}
	if url := config.Global.Server.URL; url != "" {
		return url
	}
	return fmt.Sprintf("http://%s:%d", DefaultServerHost, DefaultServerPort)
}

// newAPIClient returns an HTTP client honoring the configured timeout.
func newAPIClient() *http.Client {
	return &http.Client{Timeout: config.Global.Server.GetTimeout()}
}

// doAPIRequest sends one authenticated request to the sharpen service and
// decodes the JSON response into out when out is non-nil.
func doAPIRequest(method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		jsonBody, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal the request body: %w", err)
		}
		body = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequest(method, getServerBaseURL()+path, body)
	if err != nil {
		return fmt.Errorf("failed to create the request: %w", err)
	}
	req.Header.Set("User-Agent", "sharpq/"+CLIVersion)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key := config.Global.Server.APIKey; key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := newAPIClient().Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach the sharpen service at %s: %w", getServerBaseURL(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return apiError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse the service response: %w", err)
	}
	return nil
}

func apiGet(path string, out any) error {
	return doAPIRequest(http.MethodGet, path, nil, out)
}

func apiPost(path string, payload, out any) error {
	return doAPIRequest(http.MethodPost, path, payload, out)
}

func apiDelete(path string, out any) error {
	return doAPIRequest(http.MethodDelete, path, nil, out)
}

// apiGetText performs a GET expecting a plain-text body.
func apiGetText(path string) (string, error) {
	req, err := http.NewRequest(http.MethodGet, getServerBaseURL()+path, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create the request: %w", err)
	}
	req.Header.Set("User-Agent", "sharpq/"+CLIVersion)
	if key := config.Global.Server.APIKey; key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := newAPIClient().Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to reach the sharpen service at %s: %w", getServerBaseURL(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", apiError(resp)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read the service response: %w", err)
	}
	return string(body), nil
}

// apiError extracts the service's {"error": ...} body, falling back to
// the raw body when it is not JSON.
func apiError(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("service returned %s", resp.Status)
	}
	var apiErr struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error != "" {
		return fmt.Errorf("service returned %s: %s", resp.Status, apiErr.Error)
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return fmt.Errorf("service returned %s", resp.Status)
	}
	return fmt.Errorf("service returned %s: %s", resp.Status, msg)
}

// readPValuesArg loads a p-value vector from a file path or stdin ("-").
//
// CSV files go through the dataset reader (first column, optional header
// row). Anything else is parsed as whitespace- or comma-separated
// numbers, which covers plain one-per-line lists.
func readPValuesArg(path string) ([]float64, error) {
	if path == "-" {
		return parsePValues(os.Stdin)
	}
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return watch.ReadPValues(path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open the dataset %s: %w", path, err)
	}
	defer f.Close()
	return parsePValues(f)
}

// parsePValues reads whitespace- or comma-separated floats from r.
func parsePValues(r io.Reader) ([]float64, error) {
	var pvals []float64
	scanner := bufio.NewScanner(r)
	scanner.Split(bufio.ScanWords)
	for scanner.Scan() {
		// A word may itself be comma-packed ("0.01,0.5,0.9").
		for _, tok := range strings.Split(scanner.Text(), ",") {
			if tok == "" {
				continue
			}
			v, err := strconv.ParseFloat(tok, 64)
			if err != nil {
				return nil, fmt.Errorf("%q is not a number", tok)
			}
			pvals = append(pvals, v)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read p-values: %w", err)
	}
	if len(pvals) == 0 {
		return nil, watch.ErrNoValues
	}
	return pvals, nil
}

// resolveStep picks the grid step: flag value first, then config.
func resolveStep(flagStep float64) float64 {
	if flagStep > 0 {
		return flagStep
	}
	return config.Global.Compute.GetStep()
}

// countDiscoveries tallies q-values at or below the threshold.
func countDiscoveries(qvals []float64, threshold float64) int {
	count := 0
	for _, q := range qvals {
		if q <= threshold {
			count++
		}
	}
	return count
}

// minQValue returns the smallest q-value, or 0 for an empty slice.
func minQValue(qvals []float64) float64 {
	if len(qvals) == 0 {
		return 0
	}
	min := qvals[0]
	for _, q := range qvals[1:] {
		if q < min {
			min = q
		}
	}
	return min
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
		os.Exit(1)
	}
}
