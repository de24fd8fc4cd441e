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
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianStats/services/sharpen/datatypes"
	"github.com/AleutianAI/AleutianStats/services/sharpen/fdr"
	"github.com/AleutianAI/AleutianStats/services/sharpen/history"
	"github.com/AleutianAI/AleutianStats/services/sharpen/observability"
	"github.com/AleutianAI/AleutianStats/services/sharpen/simulate"
	"github.com/AleutianAI/AleutianStats/services/sharpen/store"
)

// sourceSimulate tags runs produced by the simulation endpoint.
const sourceSimulate = "simulate"

// HandleSimulate handles POST /v1/simulate.
//
// # Description
//
// Draws a synthetic p-value vector from a two-component mixture, sharpens
// it, and returns the q-values together with the ground-truth labels so
// callers can see which discoveries are real. Identical seeds reproduce
// identical datasets.
//
// # Response
//
//	200 OK: datatypes.SimulateResponse
//	400 Bad Request: Validation error or unusable mixture/step
func HandleSimulate(st store.Store, rec *history.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := handlersTracer.Start(c.Request.Context(), "HandleSimulate")
		defer span.End()

		logger := requestLogger(c, "HandleSimulate")
		start := time.Now()

		var req datatypes.SimulateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.Warn("Invalid request body", "error", err)
			if m := observability.DefaultMetrics; m != nil {
				m.RecordError(observability.EndpointSimulate, observability.ErrorCodeValidation)
				m.RecordRequest(observability.EndpointSimulate, false)
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		req.EnsureDefaults()
		if err := req.Validate(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.Warn("Request validation failed", "error", err)
			if m := observability.DefaultMetrics; m != nil {
				m.RecordError(observability.EndpointSimulate, observability.ErrorCodeValidation)
				m.RecordRequest(observability.EndpointSimulate, false)
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		logger.Info("Simulation request",
			"hypotheses", req.Hypotheses,
			"alt_fraction", req.AltFraction,
			"seed", req.Seed,
			"persist", req.Persist)

		spec := simulate.Spec{
			Hypotheses:  req.Hypotheses,
			AltFraction: req.AltFraction,
			AltShape:    req.AltShape,
			Seed:        req.Seed,
		}
		pvals, isAlt, err := simulate.Generate(spec)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.Warn("Simulation spec rejected", "error", err)
			if m := observability.DefaultMetrics; m != nil {
				m.RecordError(observability.EndpointSimulate, observability.ErrorCodeValidation)
				m.RecordRequest(observability.EndpointSimulate, false)
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		opts := &fdr.Options{Step: req.Step}

		var (
			qvals []float64
			runID string
		)
		if req.Persist && st != nil {
			label := fmt.Sprintf("sim-seed-%d", req.Seed)
			runRec, cerr := st.ComputeRun(ctx, pvals, opts, label, sourceSimulate)
			if cerr != nil {
				err = cerr
			} else {
				qvals = runRec.QValues
				runID = runRec.ID
				if m := observability.DefaultMetrics; m != nil {
					m.RecordRunStored(sourceSimulate)
				}
				recordRunHistory(ctx, rec, observability.EndpointSimulate, runRec, logger)
			}
		} else {
			qvals, err = fdr.SharpenQValues(ctx, pvals, opts)
		}
		if err != nil {
			status, code := sharpenErrorStatus(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.Error("Simulation sharpening failed", "error", err)
			if m := observability.DefaultMetrics; m != nil {
				m.RecordError(observability.EndpointSimulate, code)
				m.RecordRequest(observability.EndpointSimulate, false)
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		resp := datatypes.NewSimulateResponse(req.RequestID, req.Seed, pvals, qvals, isAlt)
		resp.RunID = runID
		resp.ProcessingTimeMs = time.Since(start).Milliseconds()

		if m := observability.DefaultMetrics; m != nil {
			m.RecordRequest(observability.EndpointSimulate, true)
			m.RecordSweep(observability.EndpointSimulate, len(pvals), time.Since(start).Seconds())
			m.RecordDiscoveries(observability.EndpointSimulate, resp.TrueDiscoveries05+resp.FalseDiscoveries05)
		}

		logger.Info("Simulation complete",
			"run_id", runID,
			"hypotheses", len(pvals),
			"true_discoveries", resp.TrueDiscoveries05,
			"false_discoveries", resp.FalseDiscoveries05)

		c.JSON(http.StatusOK, resp)
	}
}
