// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package report

import (
	"errors"
	"math"
	"strings"
	"testing"
)

func TestBuild_CountsAndSummaries(t *testing.T) {
	pvals := []float64{0.02, 0.01, 0.03, 0.08, 0.168, 0.168, 0.168}
	qvals := []float64{0.076, 0.076, 0.076, 0.087, 0.107, 0.107, 0.107}

	rep, err := Build(pvals, qvals, []float64{0.05, 0.10, 0.50})
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	if rep.Hypotheses != 7 {
		t.Errorf("Hypotheses = %d, want 7", rep.Hypotheses)
	}

	wantCounts := []int{0, 4, 7}
	for i, lvl := range rep.Levels {
		if lvl.Discoveries != wantCounts[i] {
			t.Errorf("Levels[%d] (q<=%v) = %d, want %d", i, lvl.Level, lvl.Discoveries, wantCounts[i])
		}
	}

	if math.Abs(rep.MinQ-0.076) > 1e-12 {
		t.Errorf("MinQ = %v, want 0.076", rep.MinQ)
	}
	if math.Abs(rep.MedianQ-0.087) > 1e-12 {
		t.Errorf("MedianQ = %v, want 0.087", rep.MedianQ)
	}
	if rep.TieGroups != 1 {
		t.Errorf("TieGroups = %d, want 1 (the 0.168 trio)", rep.TieGroups)
	}

	wantMeanP := (0.02 + 0.01 + 0.03 + 0.08 + 0.168*3) / 7
	if math.Abs(rep.MeanP-wantMeanP) > 1e-12 {
		t.Errorf("MeanP = %v, want %v", rep.MeanP, wantMeanP)
	}
}

func TestBuild_DefaultThresholds(t *testing.T) {
	rep, err := Build([]float64{0.5}, []float64{1.0}, nil)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if len(rep.Levels) != len(DefaultThresholds) {
		t.Fatalf("Levels = %d, want %d", len(rep.Levels), len(DefaultThresholds))
	}
	for i, lvl := range rep.Levels {
		if lvl.Level != DefaultThresholds[i] {
			t.Errorf("Levels[%d].Level = %v, want %v", i, lvl.Level, DefaultThresholds[i])
		}
	}
}

func TestBuild_SortsThresholds(t *testing.T) {
	rep, err := Build([]float64{0.5, 0.6}, []float64{1.0, 1.0}, []float64{0.10, 0.01})
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if rep.Levels[0].Level != 0.01 || rep.Levels[1].Level != 0.10 {
		t.Errorf("levels not ascending: %+v", rep.Levels)
	}
}

func TestBuild_Errors(t *testing.T) {
	if _, err := Build(nil, nil, nil); !errors.Is(err, ErrNoData) {
		t.Errorf("error = %v, want ErrNoData", err)
	}
	if _, err := Build([]float64{0.1}, []float64{0.1, 0.2}, nil); !errors.Is(err, ErrLengthMismatch) {
		t.Errorf("error = %v, want ErrLengthMismatch", err)
	}
	if _, err := Build([]float64{0.1}, []float64{0.1}, []float64{0}); !errors.Is(err, ErrInvalidThreshold) {
		t.Errorf("error = %v, want ErrInvalidThreshold", err)
	}
	if _, err := Build([]float64{0.1}, []float64{0.1}, []float64{1.5}); !errors.Is(err, ErrInvalidThreshold) {
		t.Errorf("error = %v, want ErrInvalidThreshold", err)
	}
}

func TestReport_Render(t *testing.T) {
	rep, err := Build(
		[]float64{0.001, 0.04, 0.9},
		[]float64{0.004, 0.06, 1.0},
		[]float64{0.05},
	)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	out := rep.Render()
	for _, want := range []string{"hypotheses: 3", "min q:", "discoveries:", "q <= 0.05"} {
		if !strings.Contains(out, want) {
			t.Errorf("Render() missing %q in:\n%s", want, out)
		}
	}
}
