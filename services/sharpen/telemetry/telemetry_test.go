// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
)

// clearOTelEnv blanks the environment variables DefaultConfig reads, so
// defaults are observable regardless of the host environment.
func clearOTelEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"ALEUTIAN_ENV",
		"OTEL_TRACES_EXPORTER",
		"OTEL_METRICS_EXPORTER",
		"OTEL_EXPORTER_OTLP_ENDPOINT",
	} {
		t.Setenv(key, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	clearOTelEnv(t)
	cfg := DefaultConfig()

	if cfg.ServiceName != "sharpen" || cfg.ServiceVersion != "0.1.0" {
		t.Errorf("service identity = %q %q", cfg.ServiceName, cfg.ServiceVersion)
	}
	if cfg.Environment != "development" {
		t.Errorf("Environment = %q", cfg.Environment)
	}
	if cfg.TraceExporter != "otlp" || cfg.MetricExporter != "prometheus" {
		t.Errorf("exporters = %q %q", cfg.TraceExporter, cfg.MetricExporter)
	}
	if cfg.OTLPEndpoint != "localhost:4317" || !cfg.OTLPInsecure {
		t.Errorf("OTLP settings = %q insecure=%v", cfg.OTLPEndpoint, cfg.OTLPInsecure)
	}
}

func TestDefaultConfigHonorsEnv(t *testing.T) {
	t.Setenv("OTEL_TRACES_EXPORTER", "stdout")
	t.Setenv("ALEUTIAN_ENV", "staging")

	cfg := DefaultConfig()
	if cfg.TraceExporter != "stdout" {
		t.Errorf("TraceExporter = %q", cfg.TraceExporter)
	}
	if cfg.Environment != "staging" {
		t.Errorf("Environment = %q", cfg.Environment)
	}
}

func TestInitNilContext(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = "none"
	cfg.MetricExporter = "none"

	if _, err := Init(nil, cfg); !errors.Is(err, ErrNilContext) {
		t.Errorf("Init(nil) error = %v", err)
	}
}

func TestInitEverythingDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = "none"
	cfg.MetricExporter = "none"

	shutdown, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if shutdown == nil {
		t.Fatal("shutdown is nil")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestInitUnknownExporters(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"trace", func(c *Config) { c.TraceExporter = "zipkin" }},
		{"metric", func(c *Config) { c.TraceExporter = "none"; c.MetricExporter = "statsd" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.MetricExporter = "none"
			tc.mutate(&cfg)

			if _, err := Init(context.Background(), cfg); !errors.Is(err, ErrUnknownExporter) {
				t.Errorf("Init error = %v, want ErrUnknownExporter", err)
			}
		})
	}
}

func TestInitStdoutTraceSetsGlobals(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = "stdout"
	cfg.MetricExporter = "none"

	shutdown, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer shutdown(context.Background())

	if otel.Tracer("sharpen-test") == nil {
		t.Error("global tracer not set")
	}

	fields := otel.GetTextMapPropagator().Fields()
	var hasTraceParent, hasBaggage bool
	for _, f := range fields {
		switch f {
		case "traceparent":
			hasTraceParent = true
		case "baggage":
			hasBaggage = true
		}
	}
	if !hasTraceParent || !hasBaggage {
		t.Errorf("propagator fields = %v, want traceparent and baggage", fields)
	}
}

func TestPrometheusMetricsEndpoint(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = "none"
	cfg.MetricExporter = "prometheus"

	shutdown, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer shutdown(context.Background())

	meter := otel.Meter("sharpen-telemetry-test")
	counter, err := meter.Int64Counter("sharpen_telemetry_checks_total")
	if err != nil {
		t.Fatalf("create counter: %v", err)
	}
	counter.Add(context.Background(), 7)

	handler := MetricsHandler()
	if handler == nil {
		t.Fatal("MetricsHandler is nil after prometheus init")
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	resp := rec.Result()
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	text := string(body)
	if !strings.Contains(text, "# HELP") && !strings.Contains(text, "# TYPE") {
		t.Errorf("scrape is not Prometheus text format:\n%.200s", text)
	}
	if !strings.Contains(text, "sharpen_telemetry_checks_total") {
		t.Errorf("scrape missing the test counter:\n%.400s", text)
	}
}

func TestMetricsHandlerNilWhenUnset(t *testing.T) {
	promHandlerMu.Lock()
	saved := promHandler
	promHandler = nil
	promHandlerMu.Unlock()
	defer func() {
		promHandlerMu.Lock()
		promHandler = saved
		promHandlerMu.Unlock()
	}()

	if MetricsHandler() != nil {
		t.Error("MetricsHandler should be nil before prometheus init")
	}
}

func TestEnvOr(t *testing.T) {
	if got := envOr("SHARPEN_TELEMETRY_UNSET_VAR", "fallback"); got != "fallback" {
		t.Errorf("envOr = %q", got)
	}

	t.Setenv("SHARPEN_TELEMETRY_SET_VAR", "value")
	if got := envOr("SHARPEN_TELEMETRY_SET_VAR", "fallback"); got != "value" {
		t.Errorf("envOr = %q", got)
	}
}
