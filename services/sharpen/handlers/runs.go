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
	"strconv"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianStats/pkg/validation"
	"github.com/AleutianAI/AleutianStats/services/sharpen/observability"
	"github.com/AleutianAI/AleutianStats/services/sharpen/report"
	"github.com/AleutianAI/AleutianStats/services/sharpen/store"
)

// HandleGetRun handles GET /v1/runs/:id.
//
// # Response
//
//	200 OK: store.RunRecord
//	404 Not Found: No run with that ID
func HandleGetRun(st store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := handlersTracer.Start(c.Request.Context(), "HandleGetRun")
		defer span.End()

		logger := requestLogger(c, "HandleGetRun")
		id := c.Param("id")

		rec, err := st.GetRun(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrRunNotFound) {
				logger.Warn("Run not found", "run_id", id)
				if m := observability.DefaultMetrics; m != nil {
					m.RecordError(observability.EndpointRuns, observability.ErrorCodeNotFound)
					m.RecordRequest(observability.EndpointRuns, false)
				}
				c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
				return
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.Error("Failed to load run", "run_id", id, "error", err)
			if m := observability.DefaultMetrics; m != nil {
				m.RecordError(observability.EndpointRuns, observability.ErrorCodeStoreError)
				m.RecordRequest(observability.EndpointRuns, false)
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		if m := observability.DefaultMetrics; m != nil {
			m.RecordRequest(observability.EndpointRuns, true)
		}
		c.JSON(http.StatusOK, rec)
	}
}

// HandleListRuns handles GET /v1/runs.
//
// # Query Parameters
//
//	limit: Maximum number of summaries (optional, default store.DefaultListLimit)
//
// # Response
//
//	200 OK: {"runs": [store.RunSummary], "count": n}
func HandleListRuns(st store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := handlersTracer.Start(c.Request.Context(), "HandleListRuns")
		defer span.End()

		logger := requestLogger(c, "HandleListRuns")

		limit := 0
		if raw := c.Query("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 0 {
				logger.Warn("Invalid limit parameter", "limit", raw)
				if m := observability.DefaultMetrics; m != nil {
					m.RecordError(observability.EndpointRuns, observability.ErrorCodeValidation)
					m.RecordRequest(observability.EndpointRuns, false)
				}
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
				return
			}
			limit = parsed
		}

		runs, err := st.ListRuns(ctx, limit)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.Error("Failed to list runs", "error", err)
			if m := observability.DefaultMetrics; m != nil {
				m.RecordError(observability.EndpointRuns, observability.ErrorCodeStoreError)
				m.RecordRequest(observability.EndpointRuns, false)
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		if m := observability.DefaultMetrics; m != nil {
			m.RecordRequest(observability.EndpointRuns, true)
		}
		c.JSON(http.StatusOK, gin.H{"runs": runs, "count": len(runs)})
	}
}

// HandleDeleteRun handles DELETE /v1/runs/:id.
//
// # Response
//
//	200 OK: {"status": "deleted", "run_id": id}
//	404 Not Found: No run with that ID
func HandleDeleteRun(st store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := handlersTracer.Start(c.Request.Context(), "HandleDeleteRun")
		defer span.End()

		logger := requestLogger(c, "HandleDeleteRun")
		id := c.Param("id")

		if err := st.DeleteRun(ctx, id); err != nil {
			if errors.Is(err, store.ErrRunNotFound) {
				logger.Warn("Run not found", "run_id", id)
				if m := observability.DefaultMetrics; m != nil {
					m.RecordError(observability.EndpointRuns, observability.ErrorCodeNotFound)
					m.RecordRequest(observability.EndpointRuns, false)
				}
				c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
				return
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.Error("Failed to delete run", "run_id", id, "error", err)
			if m := observability.DefaultMetrics; m != nil {
				m.RecordError(observability.EndpointRuns, observability.ErrorCodeStoreError)
				m.RecordRequest(observability.EndpointRuns, false)
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		logger.Info("Run deleted", "run_id", id)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordRunDeleted()
			m.RecordRequest(observability.EndpointRuns, true)
		}
		c.JSON(http.StatusOK, gin.H{"status": "deleted", "run_id": id})
	}
}

// HandleRunReport handles GET /v1/runs/:id/report.
//
// # Query Parameters
//
//	thresholds: Comma-separated FDR levels in (0, 1] (optional,
//	            default 0.01,0.05,0.10)
//	format: "json" (default) or "text" for the rendered table
//
// # Response
//
//	200 OK: report.Report, or text/plain when format=text
//	400 Bad Request: Malformed thresholds
//	404 Not Found: No run with that ID
func HandleRunReport(st store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := handlersTracer.Start(c.Request.Context(), "HandleRunReport")
		defer span.End()

		logger := requestLogger(c, "HandleRunReport")
		id := c.Param("id")

		thresholds, err := validation.ParseThresholds(c.Query("thresholds"))
		if err != nil {
			logger.Warn("Invalid thresholds parameter", "error", err)
			if m := observability.DefaultMetrics; m != nil {
				m.RecordError(observability.EndpointReport, observability.ErrorCodeValidation)
				m.RecordRequest(observability.EndpointReport, false)
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		rec, err := st.GetRun(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrRunNotFound) {
				logger.Warn("Run not found", "run_id", id)
				if m := observability.DefaultMetrics; m != nil {
					m.RecordError(observability.EndpointReport, observability.ErrorCodeNotFound)
					m.RecordRequest(observability.EndpointReport, false)
				}
				c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
				return
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.Error("Failed to load run", "run_id", id, "error", err)
			if m := observability.DefaultMetrics; m != nil {
				m.RecordError(observability.EndpointReport, observability.ErrorCodeStoreError)
				m.RecordRequest(observability.EndpointReport, false)
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		rep, err := report.Build(rec.PValues, rec.QValues, thresholds)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.Error("Failed to build report", "run_id", id, "error", err)
			if m := observability.DefaultMetrics; m != nil {
				m.RecordError(observability.EndpointReport, observability.ErrorCodeInternal)
				m.RecordRequest(observability.EndpointReport, false)
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		if m := observability.DefaultMetrics; m != nil {
			m.RecordRequest(observability.EndpointReport, true)
		}

		if c.Query("format") == "text" {
			c.String(http.StatusOK, rep.Render())
			return
		}
		c.JSON(http.StatusOK, rep)
	}
}
