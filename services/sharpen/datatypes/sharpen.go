// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file contains request and response types for the single and batch
// sharpening endpoints. For simulation types, see simulate.go; for
// interpretation types, see explain.go.

package datatypes

import (
	"fmt"
	"time"

	"github.com/AleutianAI/AleutianStats/pkg/validation"
)

// =============================================================================
// Sharpen Request Types
// =============================================================================

// SharpenRequest represents a single sharpening request body.
//
// # Description
//
// SharpenRequest carries the raw p-values for one dataset plus optional
// sweep parameters. This is used for the POST /v1/sharpen endpoint. Every
// request includes a unique ID and timestamp for audit trails and run
// correlation.
//
// # Fields
//
//   - RequestID: Required after EnsureDefaults. Unique identifier (UUID v4)
//     used for tracing and request-response correlation.
//   - Timestamp: Required after EnsureDefaults. Unix timestamp in
//     milliseconds (UTC) when the request was created.
//   - PValues: Required. 1 to 100000 p-values, each in [0, 1].
//   - Step: Optional. Q-value grid step in (0, 1] that divides 1.0 evenly;
//     zero selects the server default (0.001).
//   - Label: Optional. Display name stored with the run (max 256 bytes).
//   - Persist: Optional. When false the run is computed but not stored.
//
// # Validation
//
// Uses go-playground/validator:
//   - RequestID: required, must be valid UUID v4
//   - Timestamp: required, must be > 0
//   - PValues: required, 1-100000 elements, each in [0, 1]
//   - Step: zero or a grid-forming value (custom "qstep" validator)
//   - Label: max 256 bytes
//
// # Examples
//
//	req := SharpenRequest{
//	    PValues: []float64{0.02, 0.01, 0.03},
//	    Label:   "pilot study",
//	}
//	req.EnsureDefaults()
//	if err := req.Validate(); err != nil { ... }
type SharpenRequest struct {
	RequestID string    `json:"request_id" validate:"required,uuid4"`
	Timestamp int64     `json:"timestamp" validate:"required,gt=0"`
	PValues   []float64 `json:"p_values" validate:"required,min=1,max=100000,dive,gte=0,lte=1"`
	Step      float64   `json:"step" validate:"qstep"`
	Label     string    `json:"label,omitempty" validate:"max=256"`
	Persist   *bool     `json:"persist,omitempty"`
}

// Validate validates the SharpenRequest fields.
func (r *SharpenRequest) Validate() error {
	return statsValidate.Struct(r)
}

// EnsureDefaults populates RequestID and Timestamp if not provided.
func (r *SharpenRequest) EnsureDefaults() {
	if r.RequestID == "" {
		r.RequestID = generateUUID()
	}
	if r.Timestamp == 0 {
		r.Timestamp = time.Now().UnixMilli()
	}
}

// ShouldPersist reports whether the run should be stored.
// Defaults to true when the field is omitted.
func (r *SharpenRequest) ShouldPersist() bool {
	return r.Persist == nil || *r.Persist
}

// =============================================================================
// Sharpen Response Types
// =============================================================================

// SharpenResponse represents the response from a sharpening request.
//
// # Fields
//
//   - ResponseID: Unique identifier for this response (UUID v4).
//   - RequestID: Echo of the request ID for correlation.
//   - Timestamp: Unix timestamp in milliseconds (UTC).
//   - RunID: ID of the stored run; empty when Persist was false.
//   - Hypotheses: Number of tested hypotheses.
//   - Step: The grid step actually used.
//   - QValues: Sharpened q-values aligned with the request's PValues.
//   - Discoveries05: Count of q-values at or below 0.05.
//   - MinQ: Smallest sharpened q-value.
//   - ProcessingTimeMs: Server-side processing time in milliseconds.
type SharpenResponse struct {
	ResponseID       string    `json:"response_id"`
	RequestID        string    `json:"request_id"`
	Timestamp        int64     `json:"timestamp"`
	RunID            string    `json:"run_id,omitempty"`
	Hypotheses       int       `json:"hypotheses"`
	Step             float64   `json:"step"`
	QValues          []float64 `json:"q_values"`
	Discoveries05    int       `json:"discoveries_at_0_05"`
	MinQ             float64   `json:"min_q"`
	ProcessingTimeMs int64     `json:"processing_time_ms,omitempty"`
}

// NewSharpenResponse creates a SharpenResponse with auto-generated ID and
// timestamp, and summary fields derived from qvals.
func NewSharpenResponse(requestID string, qvals []float64) *SharpenResponse {
	resp := &SharpenResponse{
		ResponseID: generateUUID(),
		RequestID:  requestID,
		Timestamp:  time.Now().UnixMilli(),
		Hypotheses: len(qvals),
		QValues:    qvals,
		MinQ:       1.0,
	}
	for _, q := range qvals {
		if q < resp.MinQ {
			resp.MinQ = q
		}
		if q <= 0.05 {
			resp.Discoveries05++
		}
	}
	if len(qvals) == 0 {
		resp.MinQ = 0
	}
	return resp
}

// =============================================================================
// Batch Request Types
// =============================================================================

// BatchDataset is one named dataset inside a batch request.
type BatchDataset struct {
	Name    string    `json:"name" validate:"required,max=128"`
	PValues []float64 `json:"p_values" validate:"required,min=1,max=100000,dive,gte=0,lte=1"`
}

// BatchSharpenRequest represents a batch sharpening request body.
//
// # Description
//
// Carries up to 32 independent datasets sharpened concurrently. Each
// dataset succeeds or fails on its own; one bad dataset never fails the
// batch. Used for POST /v1/sharpen/batch and the batch websocket.
//
// # Validation
//
//   - Datasets: required, 1-32 elements, each element validated
//   - Step: zero or a grid-forming value (custom "qstep" validator)
//   - Workers: 0 (server default) to 64
type BatchSharpenRequest struct {
	RequestID string         `json:"request_id" validate:"required,uuid4"`
	Timestamp int64          `json:"timestamp" validate:"required,gt=0"`
	Datasets  []BatchDataset `json:"datasets" validate:"required,min=1,max=32,dive"`
	Step      float64        `json:"step" validate:"qstep"`
	Workers   int            `json:"workers" validate:"gte=0,lte=64"`
	Persist   *bool          `json:"persist,omitempty"`
}

// Validate validates the BatchSharpenRequest fields.
//
// Dataset names are additionally checked against the shared naming rules
// so they are safe to use as history tags and output file stems.
func (r *BatchSharpenRequest) Validate() error {
	if err := statsValidate.Struct(r); err != nil {
		return err
	}
	for i, ds := range r.Datasets {
		if err := validation.ValidateDatasetName(ds.Name); err != nil {
			return fmt.Errorf("dataset %d: %w", i, err)
		}
	}
	return nil
}

// EnsureDefaults populates RequestID and Timestamp if not provided.
func (r *BatchSharpenRequest) EnsureDefaults() {
	if r.RequestID == "" {
		r.RequestID = generateUUID()
	}
	if r.Timestamp == 0 {
		r.Timestamp = time.Now().UnixMilli()
	}
}

// ShouldPersist reports whether batch runs should be stored.
// Defaults to true when the field is omitted.
func (r *BatchSharpenRequest) ShouldPersist() bool {
	return r.Persist == nil || *r.Persist
}

// =============================================================================
// Batch Response Types
// =============================================================================

// BatchOutcome is the per-dataset result inside a batch response.
//
// Exactly one of QValues or Error is populated.
type BatchOutcome struct {
	Name          string    `json:"name"`
	RunID         string    `json:"run_id,omitempty"`
	QValues       []float64 `json:"q_values,omitempty"`
	Discoveries05 int       `json:"discoveries_at_0_05"`
	Error         string    `json:"error,omitempty"`
}

// BatchSharpenResponse represents the response from a batch request.
type BatchSharpenResponse struct {
	ResponseID       string         `json:"response_id"`
	RequestID        string         `json:"request_id"`
	Timestamp        int64          `json:"timestamp"`
	Outcomes         []BatchOutcome `json:"outcomes"`
	Completed        int            `json:"completed"`
	Failed           int            `json:"failed"`
	ProcessingTimeMs int64          `json:"processing_time_ms,omitempty"`
}

// NewBatchSharpenResponse creates a BatchSharpenResponse with
// auto-generated ID, timestamp, and completion counts.
func NewBatchSharpenResponse(requestID string, outcomes []BatchOutcome) *BatchSharpenResponse {
	resp := &BatchSharpenResponse{
		ResponseID: generateUUID(),
		RequestID:  requestID,
		Timestamp:  time.Now().UnixMilli(),
		Outcomes:   outcomes,
	}
	for _, out := range outcomes {
		if out.Error == "" {
			resp.Completed++
		} else {
			resp.Failed++
		}
	}
	return resp
}
