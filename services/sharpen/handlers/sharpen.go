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
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianStats/services/sharpen/batch"
	"github.com/AleutianAI/AleutianStats/services/sharpen/datatypes"
	"github.com/AleutianAI/AleutianStats/services/sharpen/fdr"
	"github.com/AleutianAI/AleutianStats/services/sharpen/history"
	"github.com/AleutianAI/AleutianStats/services/sharpen/observability"
	"github.com/AleutianAI/AleutianStats/services/sharpen/store"
)

// HandleSharpen handles POST /v1/sharpen.
//
// # Description
//
// Sharpens one p-value vector into BKY two-stage q-values. When the
// request asks for persistence (the default) the run goes through the
// store, which dedupes identical concurrent submissions; otherwise the
// computation runs directly and nothing is written.
//
// # Response
//
//	200 OK: datatypes.SharpenResponse
//	400 Bad Request: Validation error or unusable grid step
//	500 Internal Server Error: Storage failure
func HandleSharpen(st store.Store, rec *history.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := handlersTracer.Start(c.Request.Context(), "HandleSharpen")
		defer span.End()

		logger := requestLogger(c, "HandleSharpen")
		start := time.Now()

		var req datatypes.SharpenRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.Warn("Invalid request body", "error", err)
			if m := observability.DefaultMetrics; m != nil {
				m.RecordError(observability.EndpointSharpen, observability.ErrorCodeValidation)
				m.RecordRequest(observability.EndpointSharpen, false)
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
				m.RecordError(observability.EndpointSharpen, observability.ErrorCodeValidation)
				m.RecordRequest(observability.EndpointSharpen, false)
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		logger.Info("Sharpening request",
			"hypotheses", len(req.PValues),
			"step", req.Step,
			"persist", req.ShouldPersist())

		opts := &fdr.Options{Step: req.Step}

		var (
			qvals []float64
			runID string
			step  float64
			err   error
		)
		if req.ShouldPersist() && st != nil {
			var runRec *store.RunRecord
			runRec, err = st.ComputeRun(ctx, req.PValues, opts, req.Label, sourceAPI)
			if err == nil {
				qvals = runRec.QValues
				runID = runRec.ID
				step = runRec.Step
				if m := observability.DefaultMetrics; m != nil {
					m.RecordRunStored(sourceAPI)
				}
				recordRunHistory(ctx, rec, observability.EndpointSharpen, runRec, logger)
			}
		} else {
			qvals, err = fdr.SharpenQValues(ctx, req.PValues, opts)
			step = opts.Step
		}
		if err != nil {
			status, code := sharpenErrorStatus(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.Error("Sharpening failed", "error", err)
			if m := observability.DefaultMetrics; m != nil {
				m.RecordError(observability.EndpointSharpen, code)
				m.RecordRequest(observability.EndpointSharpen, false)
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		resp := datatypes.NewSharpenResponse(req.RequestID, qvals)
		resp.RunID = runID
		resp.Step = step
		resp.ProcessingTimeMs = time.Since(start).Milliseconds()

		if m := observability.DefaultMetrics; m != nil {
			m.RecordRequest(observability.EndpointSharpen, true)
			m.RecordSweep(observability.EndpointSharpen, resp.Hypotheses, time.Since(start).Seconds())
			m.RecordDiscoveries(observability.EndpointSharpen, resp.Discoveries05)
		}

		logger.Info("Sharpening complete",
			"run_id", runID,
			"hypotheses", resp.Hypotheses,
			"discoveries_at_0_05", resp.Discoveries05,
			"processing_time_ms", resp.ProcessingTimeMs)

		c.JSON(http.StatusOK, resp)
	}
}

// HandleBatchSharpen handles POST /v1/sharpen/batch.
//
// # Description
//
// Sharpens up to MaxBatchDatasets named vectors concurrently. Datasets
// fail individually; the batch itself only fails on a malformed request.
// Successful datasets are persisted unless the request opts out.
//
// # Response
//
//	200 OK: datatypes.BatchSharpenResponse (per-dataset errors inside)
//	400 Bad Request: Validation error
func HandleBatchSharpen(st store.Store, rec *history.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := handlersTracer.Start(c.Request.Context(), "HandleBatchSharpen")
		defer span.End()

		logger := requestLogger(c, "HandleBatchSharpen")
		start := time.Now()

		var req datatypes.BatchSharpenRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.Warn("Invalid request body", "error", err)
			if m := observability.DefaultMetrics; m != nil {
				m.RecordError(observability.EndpointBatch, observability.ErrorCodeValidation)
				m.RecordRequest(observability.EndpointBatch, false)
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
				m.RecordError(observability.EndpointBatch, observability.ErrorCodeValidation)
				m.RecordRequest(observability.EndpointBatch, false)
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		logger.Info("Batch sharpening request",
			"datasets", len(req.Datasets),
			"workers", req.Workers,
			"persist", req.ShouldPersist())

		datasets := make([]batch.Dataset, len(req.Datasets))
		for i, ds := range req.Datasets {
			datasets[i] = batch.Dataset{Name: ds.Name, PValues: ds.PValues}
		}

		runner := batch.NewRunner(&batch.Options{Workers: req.Workers, Step: req.Step})
		outcomes, err := runner.Run(ctx, datasets)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.Error("Batch run failed", "error", err)
			if m := observability.DefaultMetrics; m != nil {
				m.RecordError(observability.EndpointBatch, observability.ErrorCodeInternal)
				m.RecordRequest(observability.EndpointBatch, false)
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		outs := collectBatchOutcomes(ctx, st, rec, observability.EndpointBatch, req, datasets, outcomes, logger)

		resp := datatypes.NewBatchSharpenResponse(req.RequestID, outs)
		resp.ProcessingTimeMs = time.Since(start).Milliseconds()

		if m := observability.DefaultMetrics; m != nil {
			m.RecordRequest(observability.EndpointBatch, true)
		}

		logger.Info("Batch sharpening complete",
			"completed", resp.Completed,
			"failed", resp.Failed,
			"processing_time_ms", resp.ProcessingTimeMs)

		c.JSON(http.StatusOK, resp)
	}
}

// collectBatchOutcomes converts runner outcomes into response outcomes,
// persisting and recording the successful ones. The endpoint routes the
// metrics to either the REST or the WebSocket batch surface.
func collectBatchOutcomes(ctx context.Context, st store.Store, rec *history.Recorder,
	endpoint observability.Endpoint, req datatypes.BatchSharpenRequest,
	datasets []batch.Dataset, outcomes []batch.Outcome, logger *slog.Logger) []datatypes.BatchOutcome {

	effectiveStep := req.Step
	if effectiveStep == 0 {
		effectiveStep = fdr.DefaultStep
	}

	outs := make([]datatypes.BatchOutcome, len(outcomes))
	for i, out := range outcomes {
		entry := datatypes.BatchOutcome{Name: out.Name}
		if out.Err != nil {
			entry.Error = out.Err.Error()
			if m := observability.DefaultMetrics; m != nil {
				m.RecordError(endpoint, batchErrorCode(out.Err))
			}
			outs[i] = entry
			continue
		}

		entry.QValues = out.QValues
		entry.Discoveries05 = discoveriesAt05(out.QValues)

		if m := observability.DefaultMetrics; m != nil {
			m.RecordSweep(endpoint, len(datasets[i].PValues), out.Duration.Seconds())
			m.RecordDiscoveries(endpoint, entry.Discoveries05)
		}

		if req.ShouldPersist() && st != nil {
			runRec := &store.RunRecord{
				Label:   out.Name,
				Source:  sourceAPI,
				Step:    effectiveStep,
				PValues: datasets[i].PValues,
				QValues: out.QValues,
			}
			if err := st.SaveRun(ctx, runRec); err != nil {
				logger.Warn("Failed to persist batch dataset",
					"dataset", out.Name, "error", err)
				if m := observability.DefaultMetrics; m != nil {
					m.RecordError(endpoint, observability.ErrorCodeStoreError)
				}
			} else {
				entry.RunID = runRec.ID
				if m := observability.DefaultMetrics; m != nil {
					m.RecordRunStored(sourceAPI)
				}
				recordRunHistory(ctx, rec, endpoint, runRec, logger)
			}
		}

		outs[i] = entry
	}
	return outs
}

// sharpenErrorStatus maps a compute/store error onto an HTTP status and
// metric code.
func sharpenErrorStatus(err error) (int, observability.ErrorCode) {
	switch {
	case errors.Is(err, fdr.ErrInvalidStep):
		return http.StatusBadRequest, observability.ErrorCodeStepGrid
	case errors.Is(err, fdr.ErrEmptyInput), errors.Is(err, fdr.ErrInvalidPValue):
		return http.StatusBadRequest, observability.ErrorCodeValidation
	case errors.Is(err, store.ErrStoreClosed):
		return http.StatusInternalServerError, observability.ErrorCodeStoreError
	default:
		return http.StatusInternalServerError, observability.ErrorCodeInternal
	}
}

// batchErrorCode categorizes a per-dataset batch failure.
func batchErrorCode(err error) observability.ErrorCode {
	switch {
	case errors.Is(err, fdr.ErrInvalidStep):
		return observability.ErrorCodeStepGrid
	case errors.Is(err, fdr.ErrEmptyInput), errors.Is(err, fdr.ErrInvalidPValue):
		return observability.ErrorCodeValidation
	default:
		return observability.ErrorCodeInternal
	}
}

// discoveriesAt05 counts q-values at or below the 0.05 reporting level.
func discoveriesAt05(qvals []float64) int {
	n := 0
	for _, q := range qvals {
		if q <= 0.05 {
			n++
		}
	}
	return n
}
