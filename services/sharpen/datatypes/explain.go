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
// Interpretation Types
// =============================================================================

// ExplainRequest asks for a plain-language narrative of a stored run.
// Used by clients that carry the run ID in a body (websocket actions);
// the REST endpoint takes the ID from the path instead.
type ExplainRequest struct {
	RequestID string `json:"request_id" validate:"required,uuid4"`
	Timestamp int64  `json:"timestamp" validate:"required,gt=0"`
	RunID     string `json:"run_id" validate:"required"`
}

// Validate validates the ExplainRequest fields.
func (r *ExplainRequest) Validate() error {
	return statsValidate.Struct(r)
}

// EnsureDefaults populates RequestID and Timestamp if not provided.
func (r *ExplainRequest) EnsureDefaults() {
	if r.RequestID == "" {
		r.RequestID = generateUUID()
	}
	if r.Timestamp == 0 {
		r.Timestamp = time.Now().UnixMilli()
	}
}

// ExplainResponse carries the generated narrative for a run.
type ExplainResponse struct {
	ResponseID       string `json:"response_id"`
	RequestID        string `json:"request_id"`
	Timestamp        int64  `json:"timestamp"`
	RunID            string `json:"run_id"`
	Narrative        string `json:"narrative"`
	ProcessingTimeMs int64  `json:"processing_time_ms,omitempty"`
}

// NewExplainResponse creates an ExplainResponse with auto-generated ID
// and timestamp.
func NewExplainResponse(requestID, runID, narrative string) *ExplainResponse {
	return &ExplainResponse{
		ResponseID: generateUUID(),
		RequestID:  requestID,
		Timestamp:  time.Now().UnixMilli(),
		RunID:      runID,
		Narrative:  narrative,
	}
}
