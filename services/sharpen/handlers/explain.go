// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianStats/services/sharpen/datatypes"
	"github.com/AleutianAI/AleutianStats/services/sharpen/interpret"
	"github.com/AleutianAI/AleutianStats/services/sharpen/middleware"
	"github.com/AleutianAI/AleutianStats/services/sharpen/observability"
	"github.com/AleutianAI/AleutianStats/services/sharpen/store"
)

// HandleExplainRun handles POST /v1/runs/:id/explain.
//
// # Description
//
// Generates a plain-language narrative of a stored run through the
// configured LLM backend. The narrative is advisory prose; the numbers in
// the stored run are authoritative.
//
// # Response
//
//	200 OK: datatypes.ExplainResponse
//	404 Not Found: No run with that ID
//	502 Bad Gateway: LLM backend failure
//	503 Service Unavailable: No LLM backend configured
func HandleExplainRun(st store.Store, interp *interpret.Interpreter) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := handlersTracer.Start(c.Request.Context(), "HandleExplainRun")
		defer span.End()

		logger := requestLogger(c, "HandleExplainRun")
		id := c.Param("id")
		start := time.Now()

		if interp == nil || !interp.Enabled() {
			logger.Warn("Explain requested but no LLM backend configured")
			if m := observability.DefaultMetrics; m != nil {
				m.RecordRequest(observability.EndpointExplain, false)
			}
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "interpretation requires an LLM backend"})
			return
		}

		rec, err := st.GetRun(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrRunNotFound) {
				logger.Warn("Run not found", "run_id", id)
				if m := observability.DefaultMetrics; m != nil {
					m.RecordError(observability.EndpointExplain, observability.ErrorCodeNotFound)
					m.RecordRequest(observability.EndpointExplain, false)
				}
				c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
				return
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.Error("Failed to load run", "run_id", id, "error", err)
			if m := observability.DefaultMetrics; m != nil {
				m.RecordError(observability.EndpointExplain, observability.ErrorCodeStoreError)
				m.RecordRequest(observability.EndpointExplain, false)
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		logger.Info("Generating narrative", "run_id", id, "hypotheses", rec.Hypotheses)

		narrative, err := interp.ExplainRun(ctx, rec)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.Error("Interpretation failed", "run_id", id, "error", err)
			if m := observability.DefaultMetrics; m != nil {
				m.RecordError(observability.EndpointExplain, observability.ErrorCodeLLMError)
				m.RecordRequest(observability.EndpointExplain, false)
			}
			if errors.Is(err, interpret.ErrNoClient) {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}

		resp := datatypes.NewExplainResponse(middleware.GetRequestID(c), id, narrative)
		resp.ProcessingTimeMs = time.Since(start).Milliseconds()

		if m := observability.DefaultMetrics; m != nil {
			m.RecordRequest(observability.EndpointExplain, true)
		}

		logger.Info("Narrative generated",
			"run_id", id,
			"narrative_len", len(narrative),
			"processing_time_ms", resp.ProcessingTimeMs)

		c.JSON(http.StatusOK, resp)
	}
}
