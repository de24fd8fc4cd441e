// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability carries the Prometheus instrumentation of the
// sharpening service.
//
// # Description
//
// Two metric pipelines coexist in the service: the OTel instruments owned
// by the fdr package, and the promauto collectors defined here. This
// package covers the HTTP surface: request and error counters labeled by
// endpoint, sweep latency and dataset-size histograms, discovery and
// stored-run counters, and a gauge of open batch WebSockets. Everything
// lands in the same scrape, served by the /metrics route.
//
// Handlers reach the collectors through DefaultMetrics and the Record*
// helpers rather than touching collector fields directly; the helpers pin
// down the label vocabulary so a typo in a label value cannot split a
// series.
//
// # Thread Safety
//
// Safe for concurrent use. Collectors synchronize internally.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Label Vocabulary
// =============================================================================

// Endpoint names the service surface a sample came from. Values feed the
// endpoint label; dashboards and alert rules select on them, so treat the
// strings as frozen.
type Endpoint string

const (
	// EndpointSharpen is the single-dataset sharpening endpoint.
	EndpointSharpen Endpoint = "sharpen"

	// EndpointBatch is the multi-dataset sharpening endpoint.
	EndpointBatch Endpoint = "batch"

	// EndpointBatchWS is the batch progress WebSocket endpoint.
	EndpointBatchWS Endpoint = "batch_ws"

	// EndpointSimulate is the synthetic dataset endpoint.
	EndpointSimulate Endpoint = "simulate"

	// EndpointExplain is the narrative interpretation endpoint.
	EndpointExplain Endpoint = "explain"

	// EndpointReport is the threshold report endpoint.
	EndpointReport Endpoint = "report"

	// EndpointRuns covers the stored-run CRUD endpoints.
	EndpointRuns Endpoint = "runs"

	// EndpointHistory is the InfluxDB history endpoint.
	EndpointHistory Endpoint = "history"

	// EndpointWatch is the dataset directory watcher.
	EndpointWatch Endpoint = "watch"
)

// ErrorCode classifies a failure for the error_code label. Codes are
// coarse on purpose: the label space has to stay small.
type ErrorCode string

const (
	// ErrorCodeValidation marks input rejected by request validation.
	ErrorCodeValidation ErrorCode = "validation"

	// ErrorCodeStepGrid indicates a step that cannot form a q-value grid.
	ErrorCodeStepGrid ErrorCode = "step_grid"

	// ErrorCodeNotFound indicates a run ID with no stored record.
	ErrorCodeNotFound ErrorCode = "not_found"

	// ErrorCodeStoreError indicates a storage layer failure.
	ErrorCodeStoreError ErrorCode = "store_error"

	// ErrorCodeHistoryError indicates an InfluxDB history failure.
	ErrorCodeHistoryError ErrorCode = "history_error"

	// ErrorCodeLLMError indicates interpretation backend failure.
	ErrorCodeLLMError ErrorCode = "llm_error"

	// ErrorCodeUnauthorized indicates a missing or wrong API key.
	ErrorCodeUnauthorized ErrorCode = "unauthorized"

	// ErrorCodeRateLimited indicates a rejected request at the rate limit.
	ErrorCodeRateLimited ErrorCode = "rate_limited"

	// ErrorCodeTimeout marks work cut off by a deadline.
	ErrorCodeTimeout ErrorCode = "timeout"

	// ErrorCodeInternal is the catch-all for unexpected failures.
	ErrorCodeInternal ErrorCode = "internal"
)

// =============================================================================
// Collector Set
// =============================================================================

// Every series shares the aleutian_stats prefix.
const (
	metricsNamespace = "aleutian"
	statsSubsystem   = "stats"
)

// Sweep compute is usually sub-millisecond for small panels and grows with
// m log m; the top buckets catch pathological inputs, not normal load.
var sweepBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30}

// Dataset sizes range from toy panels of tens of p-values up to
// genome-scale inputs around one hundred thousand.
var hypothesisBuckets = []float64{10, 50, 100, 500, 1000, 5000, 10000, 50000, 100000}

// SharpenMetrics bundles every collector the service exports. One instance
// exists per process under normal operation; tests build private instances
// against throwaway registries.
//
// Prefer the Record* helpers over the fields. The fields stay exported so
// the scrape wiring and the package tests can reach the raw collectors.
type SharpenMetrics struct {
	// RequestsTotal counts finished requests.
	// Labels: endpoint, status (success or error).
	RequestsTotal *prometheus.CounterVec

	// ErrorsTotal counts failures.
	// Labels: endpoint, error_code.
	ErrorsTotal *prometheus.CounterVec

	// SweepDurationSeconds tracks q-value sweep compute time per endpoint.
	SweepDurationSeconds *prometheus.HistogramVec

	// HypothesesPerRequest tracks dataset sizes per endpoint.
	HypothesesPerRequest *prometheus.HistogramVec

	// DiscoveriesTotal accumulates hypotheses significant at q <= 0.05.
	DiscoveriesTotal *prometheus.CounterVec

	// RunsStoredTotal counts persisted runs.
	// Labels: source (api, watch, simulate).
	RunsStoredTotal *prometheus.CounterVec

	// RunsDeletedTotal counts runs removed from the store.
	RunsDeletedTotal prometheus.Counter

	// ActiveWebSockets is the number of open batch progress connections.
	ActiveWebSockets prometheus.Gauge
}

// =============================================================================
// Registration
// =============================================================================

// DefaultMetrics is the process-wide metric set, nil until InitMetrics runs.
var DefaultMetrics *SharpenMetrics

// InitMetrics registers the metric set with the default Prometheus registry
// and installs it as DefaultMetrics.
//
// # Description
//
// Call exactly once during startup, before the router begins serving. The
// /metrics route scrapes the default registry, so the collectors must land
// there. A second call panics on duplicate registration.
//
// # Outputs
//
//   - *SharpenMetrics: the registered set, identical to DefaultMetrics.
func InitMetrics() *SharpenMetrics {
	DefaultMetrics = registerOn(prometheus.DefaultRegisterer)
	return DefaultMetrics
}

// registerOn builds the full collector set against reg. Split out from
// InitMetrics so tests can register on a private registry instead of the
// process-wide default.
func registerOn(reg prometheus.Registerer) *SharpenMetrics {
	f := promauto.With(reg)
	return &SharpenMetrics{
		RequestsTotal: f.NewCounterVec(counterOpts("requests_total",
			"Requests handled, by endpoint and status"),
			[]string{"endpoint", "status"}),

		ErrorsTotal: f.NewCounterVec(counterOpts("errors_total",
			"Failures by endpoint and error code"),
			[]string{"endpoint", "error_code"}),

		SweepDurationSeconds: f.NewHistogramVec(histogramOpts("sweep_duration_seconds",
			"Q-value sweep compute time in seconds", sweepBuckets),
			[]string{"endpoint"}),

		HypothesesPerRequest: f.NewHistogramVec(histogramOpts("hypotheses_per_request",
			"Number of p-values in each sweep", hypothesisBuckets),
			[]string{"endpoint"}),

		DiscoveriesTotal: f.NewCounterVec(counterOpts("discoveries_total",
			"Hypotheses significant at q <= 0.05"),
			[]string{"endpoint"}),

		RunsStoredTotal: f.NewCounterVec(counterOpts("runs_stored_total",
			"Runs persisted to the store, by source"),
			[]string{"source"}),

		RunsDeletedTotal: f.NewCounter(counterOpts("runs_deleted_total",
			"Runs removed from the store")),

		ActiveWebSockets: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: statsSubsystem,
			Name:      "active_websockets",
			Help:      "Open batch progress WebSocket connections",
		}),
	}
}

func counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: statsSubsystem,
		Name:      name,
		Help:      help,
	}
}

func histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: statsSubsystem,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	}
}

// =============================================================================
// Recording Helpers
// =============================================================================

// RecordRequest counts one finished request as success or error.
func (m *SharpenMetrics) RecordRequest(endpoint Endpoint, success bool) {
	m.RequestsTotal.WithLabelValues(string(endpoint), statusLabel(success)).Inc()
}

// RecordError counts one failure under its error_code bucket.
func (m *SharpenMetrics) RecordError(endpoint Endpoint, code ErrorCode) {
	m.ErrorsTotal.WithLabelValues(string(endpoint), string(code)).Inc()
}

// RecordSweep feeds the latency and dataset-size histograms for one
// completed q-value sweep.
func (m *SharpenMetrics) RecordSweep(endpoint Endpoint, hypotheses int, seconds float64) {
	ep := string(endpoint)
	m.SweepDurationSeconds.WithLabelValues(ep).Observe(seconds)
	m.HypothesesPerRequest.WithLabelValues(ep).Observe(float64(hypotheses))
}

// RecordDiscoveries adds the hypotheses a sweep found significant at the
// 0.05 level.
func (m *SharpenMetrics) RecordDiscoveries(endpoint Endpoint, count int) {
	m.DiscoveriesTotal.WithLabelValues(string(endpoint)).Add(float64(count))
}

// RecordRunStored counts a run persisted to the store. Source is one of
// api, watch, or simulate.
func (m *SharpenMetrics) RecordRunStored(source string) {
	m.RunsStoredTotal.WithLabelValues(source).Inc()
}

// RecordRunDeleted counts a run removed from the store.
func (m *SharpenMetrics) RecordRunDeleted() {
	m.RunsDeletedTotal.Inc()
}

// WebSocketOpened marks the start of one batch progress connection.
func (m *SharpenMetrics) WebSocketOpened() {
	m.ActiveWebSockets.Inc()
}

// WebSocketClosed undoes WebSocketOpened.
func (m *SharpenMetrics) WebSocketClosed() {
	m.ActiveWebSockets.Dec()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
