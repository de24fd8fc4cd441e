// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides request and response structures for the
// sharpening service API.
package datatypes

import (
	"math"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// =============================================================================
// Request Limits
// =============================================================================

const (
	// MaxHypotheses is the maximum number of p-values in a single request.
	// Bounds worst-case sweep work per request.
	MaxHypotheses = 100000

	// MaxBatchDatasets is the maximum number of datasets per batch request.
	MaxBatchDatasets = 32

	// MaxLabelBytes is the maximum size of a run label.
	MaxLabelBytes = 256

	// stepDivisorTolerance matches the sweep's grid divisibility check.
	stepDivisorTolerance = 1e-9
)

// =============================================================================
// Request Validation
// =============================================================================

// statsValidate checks the `validate` tags on every request type in this
// package. Built once at package load; validator.New is too costly to call
// per request.
var statsValidate *validator.Validate

func init() {
	statsValidate = validator.New()

	// qstep guards the q-value grid step fields.
	_ = statsValidate.RegisterValidation("qstep", validateStep)
}

// validateStep accepts a zero step (server default) or a step in (0, 1]
// that divides 1.0 evenly within tolerance.
//
// # Inputs
//
//   - fl: Validator field level containing the float to validate
//
// # Outputs
//
//   - bool: true if the step can form a valid q-value grid
func validateStep(fl validator.FieldLevel) bool {
	step := fl.Field().Float()
	if step == 0 {
		return true
	}
	if math.IsNaN(step) || step < 0 || step > 1 {
		return false
	}
	levels := int(math.Round(1 / step))
	if levels < 1 {
		return false
	}
	return math.Abs(float64(levels)*step-1) <= stepDivisorTolerance
}

// generateUUID returns a new UUID v4 string for request/response IDs.
func generateUUID() string {
	return uuid.NewString()
}
