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
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianStats/services/sharpen/history"
	"github.com/AleutianAI/AleutianStats/services/sharpen/observability"
)

// HandleHistory handles GET /v1/history.
//
// # Description
//
// Queries the InfluxDB run history for recent sharpening runs. Returns
// 503 when no history backend is configured; the store endpoints keep
// working without one.
//
// # Query Parameters
//
//	window: Look-back period as a Go duration, e.g. "24h" (optional,
//	        default 720h)
//	limit: Maximum number of entries (optional, default 50)
//
// # Response
//
//	200 OK: {"entries": [history.Entry], "count": n}
//	400 Bad Request: Malformed window or limit
//	502 Bad Gateway: History backend failure
//	503 Service Unavailable: No history backend configured
func HandleHistory(rec *history.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := handlersTracer.Start(c.Request.Context(), "HandleHistory")
		defer span.End()

		logger := requestLogger(c, "HandleHistory")

		if rec == nil || !rec.Enabled() {
			logger.Warn("History requested but no InfluxDB endpoint configured")
			if m := observability.DefaultMetrics; m != nil {
				m.RecordRequest(observability.EndpointHistory, false)
			}
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "run history requires an InfluxDB endpoint"})
			return
		}

		var window time.Duration
		if raw := c.Query("window"); raw != "" {
			parsed, err := time.ParseDuration(raw)
			if err != nil || parsed <= 0 {
				logger.Warn("Invalid window parameter", "window", raw)
				if m := observability.DefaultMetrics; m != nil {
					m.RecordError(observability.EndpointHistory, observability.ErrorCodeValidation)
					m.RecordRequest(observability.EndpointHistory, false)
				}
				c.JSON(http.StatusBadRequest, gin.H{"error": "window must be a positive duration like 24h"})
				return
			}
			window = parsed
		}

		limit := 0
		if raw := c.Query("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 0 {
				logger.Warn("Invalid limit parameter", "limit", raw)
				if m := observability.DefaultMetrics; m != nil {
					m.RecordError(observability.EndpointHistory, observability.ErrorCodeValidation)
					m.RecordRequest(observability.EndpointHistory, false)
				}
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
				return
			}
			limit = parsed
		}

		entries, err := rec.RecentRuns(ctx, window, limit)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.Error("History query failed", "error", err)
			if m := observability.DefaultMetrics; m != nil {
				m.RecordError(observability.EndpointHistory, observability.ErrorCodeHistoryError)
				m.RecordRequest(observability.EndpointHistory, false)
			}
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}

		if m := observability.DefaultMetrics; m != nil {
			m.RecordRequest(observability.EndpointHistory, true)
		}
		c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
	}
}
