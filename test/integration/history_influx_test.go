// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// Integration test for the InfluxDB run history recorder
//
// This test validates that recorded run summaries become queryable, which
// needs a reachable InfluxDB (INFLUXDB_URL/INFLUXDB_TOKEN).

package integration

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianStats/services/sharpen/history"
)

// TestHistoryInfluxRoundTrip writes a run summary and polls until it is
// queryable again.
func TestHistoryInfluxRoundTrip(t *testing.T) {
	if os.Getenv("RUN_INTEGRATION_TESTS") == "" {
		t.Skip("Set RUN_INTEGRATION_TESTS=1 to run this test")
	}

	cfg := history.ConfigFromEnv()
	if cfg.URL == "" || cfg.Token == "" {
		t.Skip("INFLUXDB_URL and INFLUXDB_TOKEN must be set")
	}

	rec := history.NewRecorder(cfg, nil)
	require.True(t, rec.Enabled())
	defer rec.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	require.NoError(t, rec.Ready(ctx), "InfluxDB should answer the readiness ping")

	runID := uuid.NewString()
	entry := history.Entry{
		RunID:         runID,
		Label:         "integration-round-trip",
		Source:        "test",
		CreatedAt:     time.Now().UTC(),
		Hypotheses:    100,
		Step:          0.001,
		MinQ:          0.004,
		Discoveries05: 7,
	}
	require.NoError(t, rec.Record(ctx, entry))

	// The write is accepted before the point is indexed; poll briefly.
	var got *history.Entry
	deadline := time.Now().Add(15 * time.Second)
	for got == nil {
		entries, err := rec.RecentRuns(ctx, time.Hour, 0)
		require.NoError(t, err)
		for i := range entries {
			if entries[i].RunID == runID {
				got = &entries[i]
				break
			}
		}
		if got == nil {
			if time.Now().After(deadline) {
				t.Fatalf("Run %s did not appear in history within 15s", runID)
			}
			time.Sleep(time.Second)
		}
	}

	assert.Equal(t, "integration-round-trip", got.Label)
	assert.Equal(t, "test", got.Source)
	assert.Equal(t, 100, got.Hypotheses)
	assert.Equal(t, 7, got.Discoveries05)
	assert.InDelta(t, 0.001, got.Step, 1e-12)
	assert.InDelta(t, 0.004, got.MinQ, 1e-12)
}

// TestHistoryRecentRunsWindow verifies the query window excludes a run
// recorded with an old timestamp.
func TestHistoryRecentRunsWindow(t *testing.T) {
	if os.Getenv("RUN_INTEGRATION_TESTS") == "" {
		t.Skip("Set RUN_INTEGRATION_TESTS=1 to run this test")
	}

	cfg := history.ConfigFromEnv()
	if cfg.URL == "" || cfg.Token == "" {
		t.Skip("INFLUXDB_URL and INFLUXDB_TOKEN must be set")
	}

	rec := history.NewRecorder(cfg, nil)
	require.True(t, rec.Enabled())
	defer rec.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	runID := uuid.NewString()
	entry := history.Entry{
		RunID:      runID,
		Source:     "test",
		CreatedAt:  time.Now().UTC().Add(-48 * time.Hour),
		Hypotheses: 10,
		Step:       0.001,
		MinQ:       0.5,
	}
	require.NoError(t, rec.Record(ctx, entry))

	// A one-hour window must not include the 48h-old point.
	entries, err := rec.RecentRuns(ctx, time.Hour, 0)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotEqual(t, runID, e.RunID, "48h-old run should fall outside a 1h window")
	}
}
