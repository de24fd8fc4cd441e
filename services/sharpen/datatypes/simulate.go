// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import "time"

// =============================================================================
// Simulation Types
// =============================================================================

// SimulateRequest asks the server to generate a synthetic p-value dataset
// and sharpen it, for exploring how the procedure behaves.
//
// # Fields
//
//   - Hypotheses: Required. Number of hypotheses to simulate (1-100000).
//   - AltFraction: Fraction of true alternatives in [0, 1]. Zero selects
//     the server default.
//   - AltShape: Beta shape for alternative p-values; smaller skews closer
//     to zero. Zero selects the server default.
//   - Seed: RNG seed; identical seeds reproduce identical datasets.
//   - Step: Optional q-value grid step (custom "qstep" validator).
//   - Persist: When true the sharpened run is stored with source
//     "simulate".
type SimulateRequest struct {
	RequestID   string  `json:"request_id" validate:"required,uuid4"`
	Timestamp   int64   `json:"timestamp" validate:"required,gt=0"`
	Hypotheses  int     `json:"hypotheses" validate:"required,gt=0,lte=100000"`
	AltFraction float64 `json:"alt_fraction" validate:"gte=0,lte=1"`
	AltShape    float64 `json:"alt_shape" validate:"gte=0,lte=1"`
	Seed        uint64  `json:"seed"`
	Step        float64 `json:"step" validate:"qstep"`
	Persist     bool    `json:"persist"`
}

// Validate validates the SimulateRequest fields.
func (r *SimulateRequest) Validate() error {
	return statsValidate.Struct(r)
}

// EnsureDefaults populates RequestID and Timestamp if not provided.
func (r *SimulateRequest) EnsureDefaults() {
	if r.RequestID == "" {
		r.RequestID = generateUUID()
	}
	if r.Timestamp == 0 {
		r.Timestamp = time.Now().UnixMilli()
	}
}

// SimulateResponse carries a simulated dataset and its sharpened q-values.
//
// TrueDiscoveries05 counts discoveries at q <= 0.05 that really are
// alternatives; FalseDiscoveries05 counts the ones that are nulls. The
// two together show the realized false discovery proportion.
type SimulateResponse struct {
	ResponseID         string    `json:"response_id"`
	RequestID          string    `json:"request_id"`
	Timestamp          int64     `json:"timestamp"`
	RunID              string    `json:"run_id,omitempty"`
	Seed               uint64    `json:"seed"`
	PValues            []float64 `json:"p_values"`
	QValues            []float64 `json:"q_values"`
	IsAlternative      []bool    `json:"is_alternative"`
	TrueDiscoveries05  int       `json:"true_discoveries_at_0_05"`
	FalseDiscoveries05 int       `json:"false_discoveries_at_0_05"`
	ProcessingTimeMs   int64     `json:"processing_time_ms,omitempty"`
}

// NewSimulateResponse creates a SimulateResponse with auto-generated ID,
// timestamp, and discovery tallies computed from the inputs.
func NewSimulateResponse(requestID string, seed uint64, pvals, qvals []float64, isAlt []bool) *SimulateResponse {
	resp := &SimulateResponse{
		ResponseID:    generateUUID(),
		RequestID:     requestID,
		Timestamp:     time.Now().UnixMilli(),
		Seed:          seed,
		PValues:       pvals,
		QValues:       qvals,
		IsAlternative: isAlt,
	}
	for i, q := range qvals {
		if q > 0.05 {
			continue
		}
		if i < len(isAlt) && isAlt[i] {
			resp.TrueDiscoveries05++
		} else {
			resp.FalseDiscoveries05++
		}
	}
	return resp
}
