// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package fdr computes sharpened two-stage false-discovery-rate q-values.
//
// The implementation follows the Benjamini, Krieger, and Yekutieli (2006)
// two-stage step-up procedure as operationalized by Anderson (2008). For a
// vector of m hypothesis-test p-values, SharpenQValues returns, per
// hypothesis, the smallest FDR level q at which that hypothesis is rejected
// by the two-stage adaptive Benjamini-Hochberg procedure.
//
// For each candidate level q on a fixed descending grid, the procedure:
//
//  1. Shrinks the level to q' = q/(1+q) to compensate for estimating the
//     true-null count from the same data.
//  2. Runs a standard BH pass at q' to count stage-one rejections R1.
//  3. Estimates the true-null count m0 = m - R1 (m when R1 = 0, floored at
//     1 when R1 >= m).
//  4. Runs a second BH pass at min(q' * m/m0, 1) and marks every hypothesis
//     rejected there as significant at level q.
//
// The sharpened q-value of a hypothesis is the minimum level at which it
// was ever marked significant; hypotheses never rejected keep 1.0.
//
// The computation is deterministic, allocates its own working buffers, and
// never mutates the input, so independent calls are safe to run
// concurrently.
package fdr
