// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package simulate generates synthetic p-value vectors for exercising the
// sharpening procedure.
//
// Vectors are drawn from a two-component mixture: true nulls are
// Uniform(0, 1) and alternatives are Beta(shape, 1) with shape < 1, which
// concentrates mass near zero the way well-powered tests do. Generation is
// seeded and fully reproducible.
package simulate

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// ErrInvalidSpec indicates an unusable simulation specification.
var ErrInvalidSpec = errors.New("invalid simulation spec")

// Mixture defaults.
const (
	// DefaultAltFraction is the fraction of hypotheses drawn from the
	// alternative component.
	DefaultAltFraction = 0.2

	// DefaultAltShape is the Beta shape for alternatives. Values below 1
	// skew p-values toward zero.
	DefaultAltShape = 0.15
)

// Spec describes a synthetic p-value vector.
type Spec struct {
	// Hypotheses is the vector length m. Must be >= 1.
	Hypotheses int

	// AltFraction is the fraction of alternatives, in [0, 1].
	// Zero-value specs get DefaultAltFraction via EnsureDefaults.
	AltFraction float64

	// AltShape is the Beta(shape, 1) parameter for alternatives, in (0, 1].
	// Zero-value specs get DefaultAltShape via EnsureDefaults.
	AltShape float64

	// Seed drives the generator; equal specs produce equal vectors.
	Seed uint64
}

// EnsureDefaults fills zero mixture parameters with defaults.
func (s *Spec) EnsureDefaults() {
	if s.AltFraction == 0 {
		s.AltFraction = DefaultAltFraction
	}
	if s.AltShape == 0 {
		s.AltShape = DefaultAltShape
	}
}

// Validate rejects specs the generator cannot honor.
func (s *Spec) Validate() error {
	if s.Hypotheses < 1 {
		return fmt.Errorf("%w: hypotheses %d < 1", ErrInvalidSpec, s.Hypotheses)
	}
	if math.IsNaN(s.AltFraction) || s.AltFraction < 0 || s.AltFraction > 1 {
		return fmt.Errorf("%w: alt fraction %v not in [0, 1]", ErrInvalidSpec, s.AltFraction)
	}
	if math.IsNaN(s.AltShape) || s.AltShape <= 0 || s.AltShape > 1 {
		return fmt.Errorf("%w: alt shape %v not in (0, 1]", ErrInvalidSpec, s.AltShape)
	}
	return nil
}

// Generate draws a p-value vector from the mixture.
//
// Description:
//
//	Rounds Hypotheses*AltFraction to fix the alternative count, assigns
//	alternative positions by a seeded shuffle, then draws each p-value
//	from its component. The returned labels mark which positions are
//	alternatives, for power accounting against the sharpened output.
//
// Outputs:
//
//   - []float64: p-values, all in [0, 1].
//   - []bool: true where the hypothesis is an alternative.
//   - error: ErrInvalidSpec when the spec fails validation.
func Generate(spec Spec) ([]float64, []bool, error) {
	spec.EnsureDefaults()
	if err := spec.Validate(); err != nil {
		return nil, nil, err
	}

	m := spec.Hypotheses
	rng := rand.New(rand.NewPCG(spec.Seed, 0x9E3779B97F4A7C15))

	nullDist := distuv.Uniform{Min: 0, Max: 1, Src: rng}
	altDist := distuv.Beta{Alpha: spec.AltShape, Beta: 1, Src: rng}

	nAlt := int(math.Round(float64(m) * spec.AltFraction))
	isAlt := make([]bool, m)
	for i := 0; i < nAlt; i++ {
		isAlt[i] = true
	}
	rng.Shuffle(m, func(i, j int) {
		isAlt[i], isAlt[j] = isAlt[j], isAlt[i]
	})

	pvals := make([]float64, m)
	for i := range pvals {
		if isAlt[i] {
			pvals[i] = clamp01(altDist.Rand())
		} else {
			pvals[i] = clamp01(nullDist.Rand())
		}
	}

	return pvals, isAlt, nil
}

// clamp01 guards against boundary excursions from the samplers.
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
