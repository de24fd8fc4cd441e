// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package report summarizes a sharpening result at conventional FDR levels.
package report

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// Sentinel errors for the report package.
var (
	// ErrNoData indicates empty input vectors.
	ErrNoData = errors.New("no data to summarize")

	// ErrLengthMismatch indicates p-value and q-value vectors of
	// different lengths.
	ErrLengthMismatch = errors.New("p-value and q-value lengths differ")

	// ErrInvalidThreshold indicates a reporting level outside (0, 1].
	ErrInvalidThreshold = errors.New("invalid reporting threshold")
)

// DefaultThresholds are the FDR levels reported when none are given.
var DefaultThresholds = []float64{0.01, 0.05, 0.10}

// LevelSummary counts discoveries at one FDR level.
type LevelSummary struct {
	// Level is the FDR threshold.
	Level float64 `json:"level"`

	// Discoveries is the number of hypotheses with q <= Level.
	Discoveries int `json:"discoveries"`
}

// Report summarizes one sharpening run.
type Report struct {
	// Hypotheses is the vector length m.
	Hypotheses int `json:"hypotheses"`

	// Levels holds discovery counts per threshold, ascending.
	Levels []LevelSummary `json:"levels"`

	// MinQ is the smallest sharpened q-value.
	MinQ float64 `json:"min_q"`

	// MedianQ is the empirical median of the sharpened q-values.
	MedianQ float64 `json:"median_q"`

	// MeanP is the mean of the input p-values. Uniform inputs sit near
	// 0.5; strong signal pulls this down.
	MeanP float64 `json:"mean_p"`

	// TieGroups is the number of p-values shared by more than one
	// hypothesis. Tied inputs always share a q-value.
	TieGroups int `json:"tie_groups"`
}

// Build summarizes a p-value/q-value pair at the given thresholds.
//
// Inputs:
//
//   - pvals: Original p-values.
//   - qvals: Sharpened q-values, positionally matching pvals.
//   - thresholds: Reporting levels in (0, 1]. If nil, DefaultThresholds.
//
// Outputs:
//
//   - *Report: Discovery counts and distribution summaries.
//   - error: ErrNoData, ErrLengthMismatch, or ErrInvalidThreshold.
func Build(pvals, qvals []float64, thresholds []float64) (*Report, error) {
	if len(pvals) == 0 {
		return nil, ErrNoData
	}
	if len(pvals) != len(qvals) {
		return nil, fmt.Errorf("%w: %d p-values, %d q-values", ErrLengthMismatch, len(pvals), len(qvals))
	}

	if thresholds == nil {
		thresholds = DefaultThresholds
	}
	levels := append([]float64(nil), thresholds...)
	sort.Float64s(levels)
	for _, level := range levels {
		if math.IsNaN(level) || level <= 0 || level > 1 {
			return nil, fmt.Errorf("%w: %v", ErrInvalidThreshold, level)
		}
	}

	rep := &Report{
		Hypotheses: len(pvals),
		Levels:     make([]LevelSummary, len(levels)),
		MeanP:      stat.Mean(pvals, nil),
	}

	for i, level := range levels {
		n := 0
		for _, q := range qvals {
			if q <= level {
				n++
			}
		}
		rep.Levels[i] = LevelSummary{Level: level, Discoveries: n}
	}

	sortedQ := append([]float64(nil), qvals...)
	sort.Float64s(sortedQ)
	rep.MinQ = sortedQ[0]
	rep.MedianQ = stat.Quantile(0.5, stat.Empirical, sortedQ, nil)

	sortedP := append([]float64(nil), pvals...)
	sort.Float64s(sortedP)
	for i := 0; i < len(sortedP); {
		j := i + 1
		for j < len(sortedP) && sortedP[j] == sortedP[i] {
			j++
		}
		if j-i > 1 {
			rep.TieGroups++
		}
		i = j
	}

	return rep, nil
}

// Render formats the report as a plain-text block for terminal output.
func (r *Report) Render() string {
	var b strings.Builder

	fmt.Fprintf(&b, "hypotheses: %d\n", r.Hypotheses)
	fmt.Fprintf(&b, "min q:      %.4f\n", r.MinQ)
	fmt.Fprintf(&b, "median q:   %.4f\n", r.MedianQ)
	fmt.Fprintf(&b, "mean p:     %.4f\n", r.MeanP)
	if r.TieGroups > 0 {
		fmt.Fprintf(&b, "tie groups: %d\n", r.TieGroups)
	}
	b.WriteString("discoveries:\n")
	for _, lvl := range r.Levels {
		fmt.Fprintf(&b, "  q <= %-5.3g %d\n", lvl.Level, lvl.Discoveries)
	}

	return b.String()
}
