// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import "time"

const (
	// DefaultServerURL is the sharpen service address used when the
	// config and the ALEUTIAN_SHARPEN_URL environment variable are both
	// silent.
	DefaultServerURL = "http://localhost:12230"

	// DefaultTimeoutSeconds bounds every request the CLI sends to the
	// sharpen service.
	DefaultTimeoutSeconds = 30

	// DefaultStep is the q-value grid spacing used for local compute
	// when the config does not override it. Matches the sharpen
	// service's reference grid so local and remote runs agree.
	DefaultStep = 0.001

	// DefaultStorePath is where the sharpen service keeps its Badger
	// database. Backup commands read from here unless overridden.
	DefaultStorePath = "./data/sharpen"
)

// DefaultThresholds are the significance levels reported by compute and
// report commands when the config does not override them.
var DefaultThresholds = []float64{0.01, 0.05, 0.10}

type SharpqConfig struct {
	// Server: where the sharpen service lives and how to talk to it
	Server ServerConfig `yaml:"server"`

	// Compute: local sweep defaults shared by compute, batch, and watch
	Compute ComputeConfig `yaml:"compute"`

	// Watch: directory watching defaults
	Watch WatchConfig `yaml:"watch"`

	// Backup: local store location and GCS destination for backups
	Backup BackupConfig `yaml:"backup"`
}

type ServerConfig struct {
	URL            string `yaml:"url"`                // e.g. http://localhost:12230
	APIKey         string `yaml:"api_key,omitempty"`  // sent as Bearer token when set
	TimeoutSeconds int    `yaml:"timeout_seconds"`    // per-request budget
	Insecure       bool   `yaml:"insecure,omitempty"` // skip the health version gate
}

type ComputeConfig struct {
	Step       float64   `yaml:"step"`       // q-value grid spacing, e.g. 0.001
	Thresholds []float64 `yaml:"thresholds"` // report cut-offs, e.g. [0.01, 0.05, 0.10]
}

type WatchConfig struct {
	Dir        string `yaml:"dir"`         // default directory for sharpq watch
	DebounceMs int    `yaml:"debounce_ms"` // event coalescing window
}

type BackupConfig struct {
	StorePath string    `yaml:"store_path"` // Badger directory of the sharpen service
	GCS       GCSConfig `yaml:"gcs"`
}

type GCSConfig struct {
	Project string `yaml:"project"`
	Bucket  string `yaml:"bucket"`
	KeyPath string `yaml:"key_path"` // service account JSON
	Prefix  string `yaml:"prefix"`   // object prefix, e.g. sharpen-backups
}

// GetURL returns the configured server URL or the default.
func (s ServerConfig) GetURL() string {
	if s.URL != "" {
		return s.URL
	}
	return DefaultServerURL
}

// GetTimeout returns the configured request timeout or the default.
func (s ServerConfig) GetTimeout() time.Duration {
	if s.TimeoutSeconds > 0 {
		return time.Duration(s.TimeoutSeconds) * time.Second
	}
	return DefaultTimeoutSeconds * time.Second
}

// GetStep returns the configured grid step or the default.
func (c ComputeConfig) GetStep() float64 {
	if c.Step > 0 && c.Step < 1 {
		return c.Step
	}
	return DefaultStep
}

// GetThresholds returns the configured thresholds or the defaults.
//
// The returned slice is shared; callers must not mutate it.
func (c ComputeConfig) GetThresholds() []float64 {
	if len(c.Thresholds) > 0 {
		return c.Thresholds
	}
	return DefaultThresholds
}

// GetStorePath returns the configured store path or the default.
func (b BackupConfig) GetStorePath() string {
	if b.StorePath != "" {
		return b.StorePath
	}
	return DefaultStorePath
}

// GetPrefix returns the configured object prefix or the default.
func (g GCSConfig) GetPrefix() string {
	if g.Prefix != "" {
		return g.Prefix
	}
	return "sharpen-backups"
}

func DefaultConfig() SharpqConfig {
	return SharpqConfig{
		Server: ServerConfig{
			URL:            DefaultServerURL,
			TimeoutSeconds: DefaultTimeoutSeconds,
		},
		Compute: ComputeConfig{
			Step:       DefaultStep,
			Thresholds: append([]float64(nil), DefaultThresholds...),
		},
		Watch: WatchConfig{
			Dir:        "./datasets",
			DebounceMs: 500,
		},
		Backup: BackupConfig{
			StorePath: DefaultStorePath,
			GCS: GCSConfig{
				Prefix: "sharpen-backups",
			},
		},
	}
}
