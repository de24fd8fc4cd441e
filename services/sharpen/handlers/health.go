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

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianStats/services/sharpen/history"
	"github.com/AleutianAI/AleutianStats/services/sharpen/interpret"
	"github.com/AleutianAI/AleutianStats/services/sharpen/store"
)

// HandleHealth handles GET /health.
//
// # Description
//
// Reports liveness plus which optional subsystems are wired. Always
// returns 200 while the process is serving; the version field feeds the
// CLI's compatibility gate.
//
// # Response
//
//	200 OK: {"status", "version", "runs", "history_enabled",
//	         "interpret_enabled"}
func HandleHealth(st store.Store, rec *history.Recorder, interp *interpret.Interpreter) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := gin.H{
			"status":            "healthy",
			"version":           ServiceVersion,
			"history_enabled":   rec != nil && rec.Enabled(),
			"interpret_enabled": interp != nil && interp.Enabled(),
		}
		if st != nil {
			if n, err := st.CountRuns(c.Request.Context()); err == nil {
				resp["runs"] = n
			}
		}
		c.JSON(http.StatusOK, resp)
	}
}
