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
	"fmt"
	"math"
)

// Grid configuration constants.
const (
	// DefaultStep is the spacing of the candidate FDR level grid.
	// The sweep visits 1.0, 1.0-step, ..., step.
	DefaultStep = 0.001

	// stepTolerance bounds how far levels*step may sit from 1.0 before the
	// step is considered not to divide the unit interval.
	stepTolerance = 1e-9
)

// Options configures a sharpened q-value computation.
type Options struct {
	// Step is the decrement of the candidate FDR level grid.
	// Must lie in (0, 1] and divide 1.0 into a whole number of levels.
	// Zero selects DefaultStep.
	Step float64
}

// DefaultOptions returns the reference grid configuration.
func DefaultOptions() *Options {
	return &Options{Step: DefaultStep}
}

// Validate applies defaults and rejects unusable grid steps.
//
// A zero Step selects DefaultStep. Any other value must be a finite number
// in (0, 1] for which round(1/Step) reproduces 1.0 within tolerance;
// otherwise the reference grid semantics cannot hold and ErrInvalidStep is
// returned.
func (o *Options) Validate() error {
	if o.Step == 0 {
		o.Step = DefaultStep
	}
	if math.IsNaN(o.Step) || o.Step < 0 || o.Step > 1 {
		return fmt.Errorf("%w: step %v not in (0, 1]", ErrInvalidStep, o.Step)
	}
	levels := int(math.Round(1 / o.Step))
	if levels < 1 || math.Abs(float64(levels)*o.Step-1.0) > stepTolerance {
		return fmt.Errorf("%w: step %v does not divide 1.0 evenly", ErrInvalidStep, o.Step)
	}
	return nil
}

// gridLevels returns the number of candidate levels the sweep visits.
// Validate must have accepted the options first.
func (o *Options) gridLevels() int {
	return int(math.Round(1 / o.Step))
}
