// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sharpen

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	// Keep Gin quiet while tests run.
	gin.SetMode(gin.TestMode)
}

// =============================================================================
// Configuration
// =============================================================================

// TestConfigDefaults pins the zero-value contract: an empty Config must
// come out of applyConfigDefaults as a runnable development setup, and
// anything the caller set must come out untouched.
func TestConfigDefaults(t *testing.T) {
	devDefaults := Config{
		Port:        12230,
		StorePath:   "./data/sharpen",
		RateRPS:     50,
		RateBurst:   100,
		Environment: "dev",
	}

	cases := []struct {
		name string
		in   Config
		want Config
	}{
		{
			name: "zero value fills every default",
			in:   Config{},
			want: devDefaults,
		},
		{
			name: "populated fields survive",
			in: Config{
				Port:         8080,
				StorePath:    "/var/lib/sharpen",
				RateRPS:      5,
				RateBurst:    10,
				OTelEndpoint: "collector:4317",
				Environment:  "prod",
			},
			want: Config{
				Port:         8080,
				StorePath:    "/var/lib/sharpen",
				RateRPS:      5,
				RateBurst:    10,
				OTelEndpoint: "collector:4317",
				Environment:  "prod",
			},
		},
		{
			name: "in-memory flag survives alongside defaults",
			in:   Config{StoreInMemory: true},
			want: Config{
				Port:          12230,
				StorePath:     "./data/sharpen",
				StoreInMemory: true,
				RateRPS:       50,
				RateBurst:     100,
				Environment:   "dev",
			},
		},
		{
			// A limiter admitting zero requests per second would reject
			// everything, so non-positive settings mean "use the default".
			name: "non-positive limiter settings fall back",
			in:   Config{RateRPS: -3, RateBurst: -1},
			want: devDefaults,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, applyConfigDefaults(tc.in))
		})
	}
}

// TestConfigDefaultsKeepInvalidPort documents that defaulting is not
// validation: only a zero port is replaced, and a nonsense port surfaces
// later when the listener fails to bind.
func TestConfigDefaultsKeepInvalidPort(t *testing.T) {
	got := applyConfigDefaults(Config{Port: -1})
	assert.Equal(t, -1, got.Port)
}

// =============================================================================
// Constructor
// =============================================================================

// TestNewInMemoryService runs the full constructor with no external
// backends: telemetry exporters off, store in memory, nil extension
// options. The router must serve /health, and /metrics must stay
// unmounted because no Prometheus exporter was installed.
func TestNewInMemoryService(t *testing.T) {
	t.Setenv("OTEL_TRACES_EXPORTER", "none")
	t.Setenv("OTEL_METRICS_EXPORTER", "none")

	svc, err := New(Config{StoreInMemory: true, GinMode: gin.TestMode}, nil)
	require.NoError(t, err)
	require.NotNil(t, svc)
	t.Cleanup(svc.(*service).cleanup)

	router := svc.Router()
	require.NotNil(t, router)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code,
		"metrics route must stay unmounted without a Prometheus exporter")
}
