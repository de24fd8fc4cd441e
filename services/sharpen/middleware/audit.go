// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianStats/pkg/extensions"
)

// =============================================================================
// Audit Middleware
// =============================================================================

// auditRoute describes how a mutating endpoint is recorded in the audit
// trail.
type auditRoute struct {
	eventType    string
	action       string
	resourceType string
}

// auditRoutes maps "METHOD fullPath" to its audit classification.
// Routes not listed here fall back to a generic http.* event.
var auditRoutes = map[string]auditRoute{
	"POST /v1/sharpen":          {eventType: "sharpen.request", action: "compute", resourceType: "run"},
	"POST /v1/sharpen/batch":    {eventType: "sharpen.batch", action: "compute", resourceType: "run"},
	"POST /v1/simulate":         {eventType: "simulate.request", action: "simulate", resourceType: "simulation"},
	"DELETE /v1/runs/:id":       {eventType: "runs.delete", action: "delete", resourceType: "run"},
	"POST /v1/runs/:id/explain": {eventType: "runs.explain", action: "explain", resourceType: "run"},
}

// Audit creates a Gin middleware that records requests to the audit
// logger.
//
// # Description
//
// Runs the rest of the chain, then emits an AuditEvent describing the
// outcome. Mutating requests (POST, DELETE) are always recorded;
// requests rejected with 401 are recorded as auth.failed regardless of
// method. Successful reads are not audited.
//
// The middleware must be registered before the authentication
// middleware so that rejected requests still reach it on the way out.
//
// # Inputs
//
//   - auditor: Audit logger to record events. Must not be nil
//     (use extensions.NopAuditLogger to disable).
//
// # Outputs
//
//   - gin.HandlerFunc: Handler to mount before the identity middleware
//
// # Examples
//
//	v1 := router.Group("/v1",
//	    middleware.Audit(opts.AuditLogger),
//	    middleware.AuthMiddleware(opts.AuthProvider),
//	)
//
// # Limitations
//
//   - Request and response bodies are not captured
//   - Audit write failures are logged but do not fail the request
//
// # Thread Safety
//
// One instance serves all routes; the audit logger handles its own
// synchronization.
func Audit(auditor extensions.AuditLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		status := c.Writer.Status()
		method := c.Request.Method

		event := extensions.AuditEvent{
			Timestamp: time.Now().UTC(),
			UserID:    auditUserID(c),
			Outcome:   auditOutcome(status),
			Metadata: map[string]any{
				"status":      status,
				"request_id":  GetRequestID(c),
				"duration_ms": time.Since(start).Milliseconds(),
			},
		}

		switch {
		case status == http.StatusUnauthorized:
			event.EventType = "auth.failed"
			event.Action = strings.ToLower(method)
			event.ResourceType = "endpoint"
			event.ResourceID = c.FullPath()
		case method == http.MethodPost || method == http.MethodDelete:
			route, ok := auditRoutes[method+" "+c.FullPath()]
			if !ok {
				route = auditRoute{
					eventType:    "http." + strings.ToLower(method),
					action:       strings.ToLower(method),
					resourceType: "endpoint",
				}
			}
			event.EventType = route.eventType
			event.Action = route.action
			event.ResourceType = route.resourceType
			event.ResourceID = c.Param("id")
			if event.ResourceID == "" {
				event.ResourceID = c.FullPath()
			}
		default:
			// Successful read; nothing to record.
			return
		}

		if err := auditor.Log(c.Request.Context(), event); err != nil {
			slog.Warn("Audit log write failed",
				"eventType", event.EventType,
				"error", err,
			)
		}
	}
}

// =============================================================================
// Helper Functions
// =============================================================================

// auditUserID returns the authenticated user's ID, or "anonymous" when
// the request never passed authentication.
func auditUserID(c *gin.Context) string {
	if info := GetAuthInfo(c); info != nil {
		return info.UserID
	}
	return "anonymous"
}

// auditOutcome maps an HTTP status to an audit outcome string.
func auditOutcome(status int) string {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return "denied"
	case status >= 400:
		return "error"
	default:
		return "success"
	}
}
