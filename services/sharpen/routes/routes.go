// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package routes assembles the HTTP surface of the sharpening service:
// the public health probe plus the authenticated /v1 API.
package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianStats/pkg/extensions"
	"github.com/AleutianAI/AleutianStats/services/sharpen/handlers"
	"github.com/AleutianAI/AleutianStats/services/sharpen/history"
	"github.com/AleutianAI/AleutianStats/services/sharpen/interpret"
	"github.com/AleutianAI/AleutianStats/services/sharpen/middleware"
	"github.com/AleutianAI/AleutianStats/services/sharpen/secrets"
	"github.com/AleutianAI/AleutianStats/services/sharpen/store"
)

// SetupRoutes mounts every endpoint on router.
//
// The /v1 group runs the middleware chain in a fixed order: request IDs
// first so every later stage can tag its output, then the rate limiter,
// then audit, then the two auth layers. Audit sits ahead of auth on
// purpose - rejected requests must still land in the audit trail.
func SetupRoutes(router *gin.Engine, st store.Store, rec *history.Recorder,
	interp *interpret.Interpreter, vault secrets.Vault, opts extensions.ServiceOptions,
	rps float64, burst int) {

	// Load balancers probe /health without credentials; it stays outside
	// the group.
	router.GET("/health", handlers.HandleHealth(st, rec, interp))

	v1 := router.Group("/v1")
	v1.Use(
		middleware.RequestID(),
		middleware.RateLimit(rps, burst),
		middleware.Audit(opts.AuditLogger),
		middleware.AuthMiddleware(opts.AuthProvider),
		middleware.KeyAuth(vault),
	)

	v1.POST("/sharpen", handlers.HandleSharpen(st, rec))
	v1.POST("/sharpen/batch", handlers.HandleBatchSharpen(st, rec))
	v1.GET("/sharpen/ws", handlers.HandleBatchWebSocket(st, rec))
	v1.POST("/simulate", handlers.HandleSimulate(st, rec))
	v1.GET("/history", handlers.HandleHistory(rec))
	mountRunRoutes(v1, st, interp)
}

// mountRunRoutes wires the stored-run administration endpoints.
func mountRunRoutes(v1 *gin.RouterGroup, st store.Store, interp *interpret.Interpreter) {
	runs := v1.Group("/runs")
	runs.GET("", handlers.HandleListRuns(st))
	runs.GET("/:id", handlers.HandleGetRun(st))
	runs.DELETE("/:id", handlers.HandleDeleteRun(st))
	runs.GET("/:id/report", handlers.HandleRunReport(st))
	runs.POST("/:id/explain", handlers.HandleExplainRun(st, interp))
}
