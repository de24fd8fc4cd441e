// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation screens user-supplied inputs before they are
// embedded anywhere that interprets them.
//
// Dataset names travel into Flux queries and output file stems, so the
// name validators reject anything that could smuggle in query fragments
// or path separators. Threshold parsing bounds the FDR reporting levels
// before the compute path sees them.
package validation

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// A dataset name starts with a letter or digit and may continue with
// dots, underscores, and hyphens, capped at the store's 128-byte label
// limit.
var datasetNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._\-]{0,127}$`)

// MaxThresholds bounds the number of reporting levels in one list.
const MaxThresholds = 16

// ValidateDatasetName rejects names that are unsafe to embed in a Flux
// query or to use as an output file stem.
//
// A valid name is 1-128 characters, starts with a letter or digit, and
// otherwise sticks to letters, digits, dots, underscores, and hyphens.
// That rules out quotes, path separators, and whitespace, so a name
// that passes cannot close a Flux string literal or climb out of the
// watch directory.
func ValidateDatasetName(name string) error {
	if name == "" {
		return fmt.Errorf("dataset name cannot be empty")
	}
	if !datasetNamePattern.MatchString(name) {
		return fmt.Errorf("dataset name %q may only use letters, digits, dots, underscores, and hyphens, starting with a letter or digit (max 128 chars)", name)
	}
	return nil
}

// ValidateDatasetNames applies ValidateDatasetName to each name and
// reports every offender at once.
func ValidateDatasetNames(names []string) error {
	var bad []string
	for _, n := range names {
		if ValidateDatasetName(n) != nil {
			bad = append(bad, n)
		}
	}
	if len(bad) == 0 {
		return nil
	}
	return fmt.Errorf("invalid dataset names: %v", bad)
}

// SanitizeDatasetName strips surrounding whitespace and then validates,
// returning the cleaned name.
func SanitizeDatasetName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if err := ValidateDatasetName(trimmed); err != nil {
		return "", err
	}
	return trimmed, nil
}

// ParseThresholds parses a comma-separated list of FDR reporting levels.
//
// Each level must be a finite number in (0, 1]. An empty string yields a
// nil slice so callers can fall back to their defaults.
//
// Example:
//
//	levels, err := validation.ParseThresholds("0.01,0.05,0.10")
func ParseThresholds(s string) ([]float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	parts := strings.Split(s, ",")
	if len(parts) > MaxThresholds {
		return nil, fmt.Errorf("too many thresholds: %d (max %d)", len(parts), MaxThresholds)
	}

	levels := make([]float64, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid threshold %q: %w", part, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 || v > 1 {
			return nil, fmt.Errorf("threshold %v not in (0, 1]", v)
		}
		levels = append(levels, v)
	}
	return levels, nil
}
