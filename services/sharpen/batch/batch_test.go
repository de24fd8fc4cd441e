// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package batch

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/AleutianAI/AleutianStats/services/sharpen/fdr"
)

func TestOptions_Validate(t *testing.T) {
	opts := Options{Workers: 0}
	opts.Validate()
	if opts.Workers != DefaultWorkers() {
		t.Errorf("Workers = %d, want %d", opts.Workers, DefaultWorkers())
	}

	opts = Options{Workers: -3}
	opts.Validate()
	if opts.Workers != DefaultWorkers() {
		t.Errorf("Workers = %d, want %d", opts.Workers, DefaultWorkers())
	}

	opts = Options{Workers: 2}
	opts.Validate()
	if opts.Workers != 2 {
		t.Errorf("Workers = %d, want 2", opts.Workers)
	}
}

func TestRunner_Run_EmptyBatch(t *testing.T) {
	r := NewRunner(nil)

	_, err := r.Run(context.Background(), nil)
	if !errors.Is(err, ErrNoDatasets) {
		t.Fatalf("error = %v, want ErrNoDatasets", err)
	}
}

func TestRunner_Run_MatchesDirectComputation(t *testing.T) {
	pvals := []float64{0.02, 0.01, 0.03, 0.08, 0.168, 0.168, 0.168}

	want, err := fdr.SharpenQValues(context.Background(), pvals, nil)
	if err != nil {
		t.Fatalf("direct computation failed: %v", err)
	}

	r := NewRunner(&Options{Workers: 2})
	outcomes, err := r.Run(context.Background(), []Dataset{{Name: "only", PValues: pvals}})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if len(outcomes) != 1 {
		t.Fatalf("outcomes = %d, want 1", len(outcomes))
	}
	if outcomes[0].Err != nil {
		t.Fatalf("outcome error: %v", outcomes[0].Err)
	}
	for i := range want {
		if math.Abs(outcomes[0].QValues[i]-want[i]) > 1e-12 {
			t.Errorf("qvals[%d] = %v, want %v", i, outcomes[0].QValues[i], want[i])
		}
	}
}

func TestRunner_Run_IsolatesFailures(t *testing.T) {
	datasets := []Dataset{
		{Name: "good", PValues: []float64{0.001, 0.05}},
		{Name: "bad", PValues: []float64{0.001, 1.7}},
		{Name: "empty", PValues: nil},
		{Name: "also-good", PValues: []float64{0.9, 0.8}},
	}

	r := NewRunner(&Options{Workers: 4})
	outcomes, err := r.Run(context.Background(), datasets)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if outcomes[0].Err != nil {
		t.Errorf("dataset %q failed: %v", outcomes[0].Name, outcomes[0].Err)
	}
	if !errors.Is(outcomes[1].Err, fdr.ErrInvalidPValue) {
		t.Errorf("dataset %q error = %v, want ErrInvalidPValue", outcomes[1].Name, outcomes[1].Err)
	}
	if !errors.Is(outcomes[2].Err, fdr.ErrEmptyInput) {
		t.Errorf("dataset %q error = %v, want ErrEmptyInput", outcomes[2].Name, outcomes[2].Err)
	}
	if outcomes[3].Err != nil {
		t.Errorf("dataset %q failed: %v", outcomes[3].Name, outcomes[3].Err)
	}
}

func TestRunner_Run_PreservesOrder(t *testing.T) {
	datasets := make([]Dataset, 16)
	for i := range datasets {
		datasets[i] = Dataset{
			Name:    string(rune('a' + i)),
			PValues: []float64{0.01 * float64(i+1)},
		}
	}

	r := NewRunner(&Options{Workers: 4})
	outcomes, err := r.Run(context.Background(), datasets)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	for i, out := range outcomes {
		if out.Name != datasets[i].Name {
			t.Errorf("outcomes[%d].Name = %q, want %q", i, out.Name, datasets[i].Name)
		}
	}
}

func TestRunner_Run_ReportsProgress(t *testing.T) {
	var mu sync.Mutex
	var events []int

	opts := &Options{
		Workers: 3,
		OnProgress: func(completed, total int, name string) {
			mu.Lock()
			events = append(events, completed)
			mu.Unlock()
		},
	}

	datasets := []Dataset{
		{Name: "a", PValues: []float64{0.01}},
		{Name: "b", PValues: []float64{0.02}},
		{Name: "c", PValues: []float64{0.03}},
	}

	if _, err := NewRunner(opts).Run(context.Background(), datasets); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(events) != len(datasets) {
		t.Fatalf("progress events = %d, want %d", len(events), len(datasets))
	}
	seen := map[int]bool{}
	for _, e := range events {
		if e < 1 || e > len(datasets) || seen[e] {
			t.Errorf("unexpected completion counter %d in %v", e, events)
		}
		seen[e] = true
	}
}

func TestRunner_Run_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	datasets := []Dataset{
		{Name: "a", PValues: []float64{0.01}},
		{Name: "b", PValues: []float64{0.02}},
	}

	outcomes, err := NewRunner(nil).Run(ctx, datasets)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	for _, out := range outcomes {
		if !errors.Is(out.Err, context.Canceled) {
			t.Errorf("dataset %q error = %v, want context.Canceled", out.Name, out.Err)
		}
	}
}

func BenchmarkRunner_Run_8x500(b *testing.B) {
	datasets := make([]Dataset, 8)
	for i := range datasets {
		pvals := make([]float64, 500)
		for j := range pvals {
			pvals[j] = float64(j%499)/499.0*0.97 + 0.001
		}
		datasets[i] = Dataset{Name: "bench", PValues: pvals}
	}
	r := NewRunner(&Options{Workers: 4, Step: 0.01})
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := r.Run(ctx, datasets); err != nil {
			b.Fatal(err)
		}
	}
}
