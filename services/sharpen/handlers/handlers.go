// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers implements the HTTP surface of the sharpening service.
//
// Every handler is a factory returning a gin.HandlerFunc closed over its
// dependencies, so the route table stays a plain listing and tests can
// build routers from whatever fakes they need. Handlers validate with the
// datatypes request types, compute through the fdr/batch/simulate
// packages, persist through the run store, and report through the shared
// Prometheus metrics.
package handlers

import (
	"context"
	"log/slog"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"

	"github.com/AleutianAI/AleutianStats/services/sharpen/history"
	"github.com/AleutianAI/AleutianStats/services/sharpen/middleware"
	"github.com/AleutianAI/AleutianStats/services/sharpen/observability"
	"github.com/AleutianAI/AleutianStats/services/sharpen/store"
)

var handlersTracer = otel.Tracer("aleutian.stats.handlers")

// ServiceVersion is the sharpening service version.
const ServiceVersion = "0.1.0"

// sourceAPI tags runs persisted through the REST surface.
const sourceAPI = "api"

// requestLogger returns a logger annotated with the request ID and the
// handler name.
func requestLogger(c *gin.Context, handler string) *slog.Logger {
	return slog.With("request_id", middleware.GetRequestID(c), "handler", handler)
}

// recordRunHistory writes a run summary to the history recorder.
//
// History is best-effort: the run is already stored, so failures are
// logged and counted but never surfaced to the client.
func recordRunHistory(ctx context.Context, rec *history.Recorder, endpoint observability.Endpoint,
	run *store.RunRecord, logger *slog.Logger) {

	if rec == nil || !rec.Enabled() || run == nil {
		return
	}
	if err := rec.Record(ctx, history.EntryFromRun(run)); err != nil {
		logger.Warn("Failed to record run history", "run_id", run.ID, "error", err)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordError(endpoint, observability.ErrorCodeHistoryError)
		}
	}
}
