// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command sharpend runs the q-value sharpening daemon.
//
// The daemon is configured entirely through environment variables so the
// same image works in compose files and on bare metal:
//
//   - SHARPEN_PORT: listen port (default 12230)
//   - SHARPEN_STORE_PATH: Badger directory for persisted runs (default ./data/sharpen)
//   - SHARPEN_STORE_INMEM: set "true" to keep runs in memory only
//   - SHARPEN_RATE_RPS, SHARPEN_RATE_BURST: per-client rate limit (defaults 50, 100)
//   - ALEUTIAN_API_KEY: Bearer token for /v1; auth runs open when unset
//   - INFLUXDB_URL, INFLUXDB_TOKEN: enable run history recording
//   - OPENAI_API_KEY, OPENAI_MODEL: enable LLM run interpretation
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP trace collector (default localhost:4317)
//   - ALEUTIAN_ENV: deployment tag on telemetry (default dev)
//
// Build with "go build -o sharpend ./cmd/sharpend" and run the binary
// directly, or start it as the sharpend service in the compose stack.
package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"

	"github.com/AleutianAI/AleutianStats/services/sharpen"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg := configFromEnv()
	slog.Info("Starting sharpen service",
		"port", cfg.Port,
		"store_path", cfg.StorePath,
		"store_inmem", cfg.StoreInMemory,
	)

	// nil options select the open-source no-op extensions.
	svc, err := sharpen.New(cfg, nil)
	if err != nil {
		log.Fatalf("sharpend: create service: %v", err)
	}

	// Run blocks until shutdown.
	if err := svc.Run(); err != nil {
		log.Fatalf("sharpend: %v", err)
	}
}

// configFromEnv assembles the service configuration. Unset or unparseable
// variables fall back to their defaults.
func configFromEnv() sharpen.Config {
	return sharpen.Config{
		Port:          envInt("SHARPEN_PORT", 12230),
		StorePath:     envString("SHARPEN_STORE_PATH", "./data/sharpen"),
		StoreInMemory: envBool("SHARPEN_STORE_INMEM", false),
		RateRPS:       envFloat("SHARPEN_RATE_RPS", 50),
		RateBurst:     envInt("SHARPEN_RATE_BURST", 100),
		OTelEndpoint:  os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		Environment:   envString("ALEUTIAN_ENV", "dev"),
	}
}

func envString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func envFloat(key string, fallback float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return fallback
	}
	return v
}

func envBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}
