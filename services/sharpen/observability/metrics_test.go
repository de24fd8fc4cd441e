// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package observability

import (
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestMetrics registers a private collector set so tests stay
// independent of the process-wide registry and of each other.
func newTestMetrics(t *testing.T) *SharpenMetrics {
	t.Helper()
	return registerOn(prometheus.NewRegistry())
}

// InitMetrics targets the default registry, and promauto panics on
// duplicate collectors, so only one test in the binary may call it.
var defaultRegistryUsed bool

func TestInitMetricsInstallsDefault(t *testing.T) {
	if defaultRegistryUsed {
		t.Skip("default registry already holds the collectors")
	}
	defaultRegistryUsed = true

	got := InitMetrics()
	require.NotNil(t, got)
	assert.Same(t, DefaultMetrics, got)

	// One pass over every helper proves the collectors are live; a nil
	// field would panic here.
	got.RecordRequest(EndpointSharpen, true)
	got.RecordError(EndpointBatch, ErrorCodeValidation)
	got.RecordSweep(EndpointSharpen, 1000, 0.02)
	got.RecordDiscoveries(EndpointSharpen, 3)
	got.RecordRunStored("api")
	got.RecordRunDeleted()
	got.WebSocketOpened()
	got.WebSocketClosed()
}

func TestPrivateRegistriesAreIndependent(t *testing.T) {
	// Registering twice would panic if registerOn leaked collectors onto
	// a shared registry.
	a := newTestMetrics(t)
	b := newTestMetrics(t)

	a.RecordRequest(EndpointSharpen, true)

	assert.Equal(t, 1.0, testutil.ToFloat64(a.RequestsTotal.WithLabelValues("sharpen", "success")))
	assert.Zero(t, testutil.ToFloat64(b.RequestsTotal.WithLabelValues("sharpen", "success")))
}

// Dashboards select on these strings; a changed value silently empties
// every panel that uses it.
func TestLabelVocabulary(t *testing.T) {
	endpoints := map[Endpoint]string{
		EndpointSharpen:  "sharpen",
		EndpointBatch:    "batch",
		EndpointBatchWS:  "batch_ws",
		EndpointSimulate: "simulate",
		EndpointExplain:  "explain",
		EndpointReport:   "report",
		EndpointRuns:     "runs",
		EndpointHistory:  "history",
		EndpointWatch:    "watch",
	}
	for ep, want := range endpoints {
		assert.Equal(t, want, string(ep))
	}

	codes := map[ErrorCode]string{
		ErrorCodeValidation:   "validation",
		ErrorCodeStepGrid:     "step_grid",
		ErrorCodeNotFound:     "not_found",
		ErrorCodeStoreError:   "store_error",
		ErrorCodeHistoryError: "history_error",
		ErrorCodeLLMError:     "llm_error",
		ErrorCodeUnauthorized: "unauthorized",
		ErrorCodeRateLimited:  "rate_limited",
		ErrorCodeTimeout:      "timeout",
		ErrorCodeInternal:     "internal",
	}
	for code, want := range codes {
		assert.Equal(t, want, string(code))
	}
}

// TestScrapeRendering pins the assembled metric name, help text, and
// label set as they appear to Prometheus.
func TestScrapeRendering(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordRequest(EndpointSharpen, true)

	expected := `# HELP aleutian_stats_requests_total Requests handled, by endpoint and status
# TYPE aleutian_stats_requests_total counter
aleutian_stats_requests_total{endpoint="sharpen",status="success"} 1
`
	err := testutil.CollectAndCompare(m.RequestsTotal, strings.NewReader(expected))
	require.NoError(t, err)
}

func TestCollectorsPassLint(t *testing.T) {
	m := newTestMetrics(t)
	m.RecordRequest(EndpointSharpen, true)
	m.RecordError(EndpointRuns, ErrorCodeNotFound)
	m.RecordSweep(EndpointSharpen, 100, 0.01)
	m.RecordDiscoveries(EndpointSharpen, 1)
	m.RecordRunStored("api")
	m.RecordRunDeleted()
	m.WebSocketOpened()

	collectors := map[string]prometheus.Collector{
		"requests":    m.RequestsTotal,
		"errors":      m.ErrorsTotal,
		"durations":   m.SweepDurationSeconds,
		"hypotheses":  m.HypothesesPerRequest,
		"discoveries": m.DiscoveriesTotal,
		"stored":      m.RunsStoredTotal,
		"deleted":     m.RunsDeletedTotal,
		"websockets":  m.ActiveWebSockets,
	}
	for name, c := range collectors {
		problems, err := testutil.CollectAndLint(c)
		require.NoError(t, err, name)
		assert.Empty(t, problems, name)
	}
}

func TestRecordRequestSplitsByStatus(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordRequest(EndpointSharpen, true)
	m.RecordRequest(EndpointSharpen, true)
	m.RecordRequest(EndpointSharpen, false)
	m.RecordRequest(EndpointSimulate, true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("sharpen", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("sharpen", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("simulate", "success")))
}

func TestRecordErrorSplitsByCode(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordError(EndpointRuns, ErrorCodeNotFound)
	m.RecordError(EndpointRuns, ErrorCodeStoreError)
	m.RecordError(EndpointRuns, ErrorCodeNotFound)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("runs", "not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("runs", "store_error")))

	// Codes never recorded stay absent instead of reporting zero.
	assert.Equal(t, 2, testutil.CollectAndCount(m.ErrorsTotal))
}

func TestRecordSweepFeedsBothHistograms(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordSweep(EndpointSharpen, 1000, 0.02)
	m.RecordSweep(EndpointBatch, 50, 0.0004)

	// One series per endpoint in each histogram.
	assert.Equal(t, 2, testutil.CollectAndCount(m.SweepDurationSeconds))
	assert.Equal(t, 2, testutil.CollectAndCount(m.HypothesesPerRequest))
}

func TestRecordDiscoveriesAccumulates(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordDiscoveries(EndpointSharpen, 4)
	m.RecordDiscoveries(EndpointSharpen, 3)
	m.RecordDiscoveries(EndpointBatch, 0)

	assert.Equal(t, 7.0, testutil.ToFloat64(m.DiscoveriesTotal.WithLabelValues("sharpen")))
	assert.Zero(t, testutil.ToFloat64(m.DiscoveriesTotal.WithLabelValues("batch")))
}

func TestRunCounters(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordRunStored("api")
	m.RecordRunStored("api")
	m.RecordRunStored("watch")
	m.RecordRunDeleted()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RunsStoredTotal.WithLabelValues("api")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsStoredTotal.WithLabelValues("watch")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsDeletedTotal))
}

func TestWebSocketGaugeTracksOpenConnections(t *testing.T) {
	m := newTestMetrics(t)

	for i := 0; i < 3; i++ {
		m.WebSocketOpened()
	}
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ActiveWebSockets))

	m.WebSocketClosed()
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ActiveWebSockets))

	m.WebSocketClosed()
	m.WebSocketClosed()
	assert.Zero(t, testutil.ToFloat64(m.ActiveWebSockets))
}

func TestConcurrentRecording(t *testing.T) {
	m := newTestMetrics(t)

	const workers = 25
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.RecordRequest(EndpointSharpen, true)
			m.RecordError(EndpointBatch, ErrorCodeInternal)
			m.RecordSweep(EndpointSharpen, 200, 0.004)
			m.RecordDiscoveries(EndpointSharpen, 2)
			m.RecordRunStored("simulate")
			m.RecordRunDeleted()
			m.WebSocketOpened()
			m.WebSocketClosed()
		}()
	}
	wg.Wait()

	assert.Equal(t, float64(workers), testutil.ToFloat64(m.RequestsTotal.WithLabelValues("sharpen", "success")))
	assert.Equal(t, float64(workers), testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("batch", "internal")))
	assert.Equal(t, float64(2*workers), testutil.ToFloat64(m.DiscoveriesTotal.WithLabelValues("sharpen")))
	assert.Equal(t, float64(workers), testutil.ToFloat64(m.RunsStoredTotal.WithLabelValues("simulate")))
	assert.Equal(t, float64(workers), testutil.ToFloat64(m.RunsDeletedTotal))
	assert.Zero(t, testutil.ToFloat64(m.ActiveWebSockets))
}
