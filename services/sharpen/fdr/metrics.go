// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package fdr

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for q-value computations.
var (
	tracer = otel.Tracer("aleutian.stats.fdr")
	meter  = otel.Meter("aleutian.stats.fdr")
)

// Metrics for q-value computations.
var (
	sharpenLatency    metric.Float64Histogram
	sharpenTotal      metric.Int64Counter
	sharpenHypotheses metric.Int64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics creates the instruments on first use; later calls return
// the cached result.
func initMetrics() error {
	metricsOnce.Do(func() {
		metricsErr = func() (err error) {
			sharpenLatency, err = meter.Float64Histogram(
				"fdr_sharpen_duration_seconds",
				metric.WithDescription("Duration of sharpened q-value computations"),
				metric.WithUnit("s"),
			)
			if err != nil {
				return err
			}

			sharpenTotal, err = meter.Int64Counter(
				"fdr_sharpen_total",
				metric.WithDescription("Total number of sharpened q-value computations"),
			)
			if err != nil {
				return err
			}

			sharpenHypotheses, err = meter.Int64Histogram(
				"fdr_sharpen_hypotheses",
				metric.WithDescription("Number of hypotheses per computation"),
			)
			return err
		}()
	})
	return metricsErr
}

// startSharpenSpan creates a span for a q-value computation.
func startSharpenSpan(ctx context.Context, hypotheses int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "fdr.SharpenQValues",
		trace.WithAttributes(
			attribute.Int("fdr.hypotheses", hypotheses),
		),
	)
}

// setSharpenSpanGrid records the accepted grid on the span.
func setSharpenSpanGrid(span trace.Span, step float64, levels int) {
	span.SetAttributes(
		attribute.Float64("fdr.step", step),
		attribute.Int("fdr.grid_levels", levels),
	)
}

// setSharpenSpanResult sets the result attributes on a computation span.
func setSharpenSpanResult(span trace.Span, discoveries int, minQ float64) {
	span.SetAttributes(
		attribute.Int("fdr.discoveries_at_0_05", discoveries),
		attribute.Float64("fdr.min_q", minQ),
	)
}

// recordSharpenMetrics records metrics for one computation.
func recordSharpenMetrics(ctx context.Context, duration time.Duration, hypotheses int, success bool) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.Bool("success", success),
	)

	sharpenLatency.Record(ctx, duration.Seconds(), attrs)
	sharpenTotal.Add(ctx, 1, attrs)
	sharpenHypotheses.Record(ctx, int64(hypotheses))
}
