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

import "errors"

// Sentinel errors for the fdr package.
var (
	// ErrEmptyInput indicates the p-value vector has no elements.
	ErrEmptyInput = errors.New("empty p-value input")

	// ErrInvalidPValue indicates a p-value is NaN or outside [0, 1].
	ErrInvalidPValue = errors.New("invalid p-value")

	// ErrInvalidStep indicates the grid step is not in (0, 1] or does not
	// divide 1.0 into a whole number of levels.
	ErrInvalidStep = errors.New("invalid step size")
)
