// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package fdr

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"
)

// =============================================================================
// Sharpened Q-Value Sweep
// =============================================================================

// SharpenQValues computes sharpened two-stage FDR q-values for pvals.
//
// Description:
//
//	Validates the input, sorts a copy of the p-values ascending with a
//	stable permutation, then sweeps candidate FDR levels from 1.0 down to
//	the grid step. At each level a conservative BH pass estimates the
//	true-null count and an adaptive BH pass at the inflated level marks
//	rejected hypotheses significant. Each hypothesis records the smallest
//	level at which it was ever significant; that record, permuted back to
//	the caller's order, is the result.
//
//	The level grid is driven by an integer countdown multiplied by the
//	step so that repeated subtraction cannot drift the effective grid.
//
// Inputs:
//
//   - ctx: Context for tracing. The sweep itself is bounded and runs to
//     completion; it is not cancelable mid-flight.
//   - pvals: One p-value per hypothesis, each in [0, 1]. Never mutated.
//   - opts: Grid configuration. If nil, defaults are used.
//
// Outputs:
//
//   - []float64: Sharpened q-values, same length and order as pvals,
//     each in [0, 1]. Equal p-values receive equal q-values.
//   - error: ErrEmptyInput, ErrInvalidPValue, or ErrInvalidStep. On error
//     no partial result is returned.
//
// Example:
//
//	qvals, err := fdr.SharpenQValues(ctx, []float64{0.001, 0.02, 0.4}, nil)
//	if err != nil {
//	    return err
//	}
//	for i, q := range qvals {
//	    fmt.Printf("hypothesis %d: q = %.3f\n", i, q)
//	}
//
// Thread Safety: Safe for concurrent use; every call owns its buffers.
//
// Complexity: O(m/step) comparisons plus O(m log m) for the sort.
func SharpenQValues(ctx context.Context, pvals []float64, opts *Options) ([]float64, error) {
	start := time.Now()

	ctx, span := startSharpenSpan(ctx, len(pvals))
	defer span.End()

	m := len(pvals)
	if m == 0 {
		recordSharpenMetrics(ctx, time.Since(start), 0, false)
		return nil, ErrEmptyInput
	}
	for i, p := range pvals {
		if math.IsNaN(p) || p < 0 || p > 1 {
			recordSharpenMetrics(ctx, time.Since(start), m, false)
			return nil, fmt.Errorf("%w: element %d is %v", ErrInvalidPValue, i, p)
		}
	}

	if opts == nil {
		opts = DefaultOptions()
	}
	if err := opts.Validate(); err != nil {
		recordSharpenMetrics(ctx, time.Since(start), m, false)
		return nil, err
	}

	setSharpenSpanGrid(span, opts.Step, opts.gridLevels())

	// Stable ascending permutation; ties keep input order so equal
	// p-values land in adjacent ranks and collect identical levels.
	order := make([]int, m)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return pvals[order[a]] < pvals[order[b]]
	})

	sorted := make([]float64, m)
	for rank, idx := range order {
		sorted[rank] = pvals[idx]
	}

	// Worst case first; the sweep only ever lowers these.
	qSorted := make([]float64, m)
	for i := range qSorted {
		qSorted[i] = 1.0
	}

	// Integer countdown keeps every visited level an exact multiple of
	// the step.
	for k := opts.gridLevels(); k >= 1; k-- {
		q := float64(k) * opts.Step

		// Stage 1: conservative BH at the shrunken level.
		qPrime := q / (1 + q)
		r1 := bhRejectionCount(sorted, qPrime)

		// True-null estimate; the floor of 1 when stage 1 rejects
		// everything is required reference behavior.
		var m0 int
		switch {
		case r1 == 0:
			m0 = m
		case r1 >= m:
			m0 = 1
		default:
			m0 = m - r1
		}

		// Stage 2: adaptive BH at the inflated level, capped at 1.
		q2 := qPrime * float64(m) / float64(m0)
		if q2 > 1 {
			q2 = 1
		}
		r2 := bhRejectionCount(sorted, q2)

		// Ranks 1..r2 are significant at this level.
		for r := 0; r < r2; r++ {
			if q < qSorted[r] {
				qSorted[r] = q
			}
		}
	}

	// Pure reindexing back to the caller's order.
	qvals := make([]float64, m)
	for rank, idx := range order {
		qvals[idx] = qSorted[rank]
	}

	slog.Debug("sharpened q-values computed",
		slog.Int("hypotheses", m),
		slog.Float64("step", opts.Step),
		slog.Int("discoveries_at_0_05", countAtOrBelow(qvals, 0.05)),
		slog.Duration("elapsed", time.Since(start)),
	)

	setSharpenSpanResult(span, countAtOrBelow(qvals, 0.05), minOf(qvals))
	recordSharpenMetrics(ctx, time.Since(start), m, true)

	return qvals, nil
}

// =============================================================================
// BH Rejection Counter
// =============================================================================

// bhRejectionCount returns the number of hypotheses rejected by the
// standard BH step-up rule at level alpha.
//
// Description:
//
//	Given p-values sorted ascending, returns the largest rank r in 1..m
//	with sorted[r-1] <= alpha*r/m, or 0 when no rank qualifies. Every
//	rank is checked and the largest satisfying one kept: the satisfying
//	set need not be contiguous, so stopping at the first failure would
//	undercount.
//
//	alpha may exceed 1; callers cap the stage-two level before the count
//	matters statistically.
func bhRejectionCount(sorted []float64, alpha float64) int {
	m := len(sorted)
	largest := 0
	for r := 1; r <= m; r++ {
		if sorted[r-1] <= alpha*float64(r)/float64(m) {
			largest = r
		}
	}
	return largest
}

// =============================================================================
// Helper functions
// =============================================================================

// countAtOrBelow counts values <= threshold.
func countAtOrBelow(vals []float64, threshold float64) int {
	n := 0
	for _, v := range vals {
		if v <= threshold {
			n++
		}
	}
	return n
}

// minOf returns the smallest value, or 1.0 for an empty slice.
func minOf(vals []float64) float64 {
	min := 1.0
	for _, v := range vals {
		if v < min {
			min = v
		}
	}
	return min
}
