// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package history records sharpening runs as an InfluxDB time series.
//
// The recorder is optional: when no InfluxDB endpoint is configured it
// degrades to a no-op so the rest of the service keeps working without a
// history backend.
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/AleutianAI/AleutianStats/services/sharpen/store"
)

// measurement is the InfluxDB measurement name for run history points.
const measurement = "sharpen_runs"

const (
	defaultOrg    = "aleutian-stats"
	defaultBucket = "sharpen-runs"

	// DefaultWindow bounds RecentRuns when the caller passes no window.
	DefaultWindow = 30 * 24 * time.Hour

	// DefaultRecentLimit bounds RecentRuns when the caller passes no limit.
	DefaultRecentLimit = 50
)

// ErrEmptyRunID is returned when an entry has no run ID.
var ErrEmptyRunID = errors.New("history entry requires a run id")

// --- Configuration ---

// Config holds InfluxDB connection settings.
type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// ConfigFromEnv reads InfluxDB settings from the environment.
//
// An empty INFLUXDB_URL or INFLUXDB_TOKEN leaves history disabled.
func ConfigFromEnv() Config {
	return Config{
		URL:    os.Getenv("INFLUXDB_URL"),
		Token:  os.Getenv("INFLUXDB_TOKEN"),
		Org:    os.Getenv("INFLUXDB_ORG"),
		Bucket: os.Getenv("INFLUXDB_BUCKET"),
	}
}

// --- Entry Type ---

// Entry is one run history data point.
type Entry struct {
	RunID         string    `json:"run_id"`
	Label         string    `json:"label,omitempty"`
	Source        string    `json:"source,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	Hypotheses    int       `json:"hypotheses"`
	Step          float64   `json:"step"`
	MinQ          float64   `json:"min_q"`
	Discoveries05 int       `json:"discoveries_at_0_05"`
}

// EntryFromRun projects a stored run onto a history entry.
func EntryFromRun(run *store.RunRecord) Entry {
	e := Entry{
		RunID:      run.ID,
		Label:      run.Label,
		Source:     run.Source,
		CreatedAt:  run.CreatedAt,
		Hypotheses: run.Hypotheses,
		Step:       run.Step,
	}
	if len(run.QValues) > 0 {
		e.MinQ = 1.0
	}
	for _, q := range run.QValues {
		if q < e.MinQ {
			e.MinQ = q
		}
		if q <= 0.05 {
			e.Discoveries05++
		}
	}
	return e
}

// --- Recorder ---

// Recorder writes run summaries to InfluxDB and queries them back.
//
// Thread Safety: Safe for concurrent use; the underlying client APIs are
// concurrency-safe.
type Recorder struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	queryAPI api.QueryAPI
	bucket   string
	logger   *slog.Logger
	enabled  bool
}

// NewRecorder creates a recorder from cfg.
//
// When cfg.URL or cfg.Token is empty the recorder is disabled: Record and
// RecentRuns become no-ops. This is not an error.
func NewRecorder(cfg Config, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "history"))

	if cfg.URL == "" || cfg.Token == "" {
		logger.Info("run history disabled, no InfluxDB endpoint configured")
		return &Recorder{logger: logger}
	}

	if cfg.Org == "" {
		cfg.Org = defaultOrg
	}
	if cfg.Bucket == "" {
		cfg.Bucket = defaultBucket
	}

	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	logger.Info("run history enabled",
		slog.String("url", cfg.URL),
		slog.String("org", cfg.Org),
		slog.String("bucket", cfg.Bucket))

	return &Recorder{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		queryAPI: client.QueryAPI(cfg.Org),
		bucket:   cfg.Bucket,
		logger:   logger,
		enabled:  true,
	}
}

// Enabled reports whether the recorder has a backend.
func (r *Recorder) Enabled() bool {
	return r.enabled
}

// Ready checks that the InfluxDB backend answers its health probe.
//
// A disabled recorder is always ready.
func (r *Recorder) Ready(ctx context.Context) error {
	if !r.enabled {
		return nil
	}
	health, err := r.client.Health(ctx)
	if err != nil {
		return fmt.Errorf("influxdb health: %w", err)
	}
	if health.Status != "pass" {
		msg := string(health.Status)
		if health.Message != nil {
			msg = *health.Message
		}
		return fmt.Errorf("influxdb not ready: %s", msg)
	}
	return nil
}

// Record writes one run history point.
//
// No-op when the recorder is disabled.
func (r *Recorder) Record(ctx context.Context, e Entry) error {
	if !r.enabled {
		return nil
	}
	if e.RunID == "" {
		return ErrEmptyRunID
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	tags := map[string]string{}
	if e.Source != "" {
		tags["source"] = e.Source
	}

	point := influxdb2.NewPoint(
		measurement,
		tags,
		map[string]interface{}{
			"run_id":              e.RunID,
			"label":               e.Label,
			"hypotheses":          e.Hypotheses,
			"step":                e.Step,
			"min_q":               e.MinQ,
			"discoveries_at_0_05": e.Discoveries05,
		},
		e.CreatedAt,
	)

	if err := r.writeAPI.WritePoint(ctx, point); err != nil {
		r.logger.Error("failed to write history point",
			slog.String("run_id", e.RunID),
			slog.String("error", err.Error()))
		return fmt.Errorf("write history point: %w", err)
	}

	r.logger.Debug("history point written", slog.String("run_id", e.RunID))
	return nil
}

// RecentRuns returns history entries inside the window, newest first.
//
// Returns an empty slice when the recorder is disabled. Non-positive
// window and limit select DefaultWindow and DefaultRecentLimit.
func (r *Recorder) RecentRuns(ctx context.Context, window time.Duration, limit int) ([]Entry, error) {
	if !r.enabled {
		return []Entry{}, nil
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	query := fmt.Sprintf(`
        from(bucket: "%s")
          |> range(start: -%ds)
          |> filter(fn: (r) => r._measurement == "%s")
          |> pivot(rowKey:["_time"], columnKey: ["_field"], valueColumn: "_value")
          |> sort(columns: ["_time"], desc: true)
          |> limit(n: %d)
    `, r.bucket, int(window.Seconds()), measurement, limit)

	result, err := r.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}

	// Guard against nil result (can happen with empty query results)
	if result == nil {
		return []Entry{}, nil
	}

	entries := []Entry{}
	for result.Next() {
		record := result.Record()

		e := Entry{CreatedAt: record.Time()}
		if v, ok := record.ValueByKey("run_id").(string); ok {
			e.RunID = v
		}
		if v, ok := record.ValueByKey("label").(string); ok {
			e.Label = v
		}
		if v, ok := record.ValueByKey("source").(string); ok {
			e.Source = v
		}
		if v, ok := record.ValueByKey("hypotheses").(int64); ok {
			e.Hypotheses = int(v)
		}
		if v, ok := record.ValueByKey("step").(float64); ok {
			e.Step = v
		}
		if v, ok := record.ValueByKey("min_q").(float64); ok {
			e.MinQ = v
		}
		if v, ok := record.ValueByKey("discoveries_at_0_05").(int64); ok {
			e.Discoveries05 = int(v)
		}

		entries = append(entries, e)
	}
	if result.Err() != nil {
		return nil, fmt.Errorf("iterate history: %w", result.Err())
	}

	return entries, nil
}

// Close releases the InfluxDB client.
func (r *Recorder) Close() {
	if r.client != nil {
		r.client.Close()
	}
}
