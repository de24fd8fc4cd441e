// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package batch computes sharpened q-values for many independent p-value
// vectors in parallel.
//
// The underlying computation is side-effect-free and owns its buffers, so
// datasets are fanned out across a bounded worker group with no shared
// state beyond the disjoint result slots.
package batch

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianStats/services/sharpen/fdr"
)

var batchTracer = otel.Tracer("aleutian.stats.batch")

// ErrNoDatasets indicates an empty batch.
var ErrNoDatasets = errors.New("no datasets")

// DefaultWorkers is the worker bound applied when Options.Workers is zero.
// GOMAXPROCS-sized: the work is CPU-bound arithmetic.
func DefaultWorkers() int {
	return runtime.GOMAXPROCS(0)
}

// Dataset is one named p-value vector in a batch.
type Dataset struct {
	// Name identifies the dataset in outcomes and progress events.
	Name string

	// PValues is the vector handed to the sharpening procedure.
	PValues []float64
}

// Outcome is the per-dataset result of a batch run.
type Outcome struct {
	// Name echoes the dataset name.
	Name string

	// QValues holds the sharpened q-values; nil when Err is set.
	QValues []float64

	// Err is the per-dataset failure, if any. One failing dataset does
	// not fail the batch.
	Err error

	// Duration is how long this dataset took.
	Duration time.Duration
}

// ProgressFunc receives completion events during a run.
// Called from worker goroutines; implementations must be safe for
// concurrent use.
type ProgressFunc func(completed, total int, name string)

// Options configures a batch run.
type Options struct {
	// Workers bounds the number of datasets sharpened concurrently.
	// Zero selects DefaultWorkers().
	Workers int

	// Step is the grid step forwarded to every dataset.
	// Zero selects the fdr default.
	Step float64

	// OnProgress, when non-nil, is invoked after each dataset completes.
	OnProgress ProgressFunc
}

// Validate applies defaults for unusable values.
func (o *Options) Validate() {
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers()
	}
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() *Options {
	return &Options{Workers: DefaultWorkers()}
}

// Runner fans datasets out across a bounded worker group.
type Runner struct {
	opts Options
}

// NewRunner creates a Runner. If opts is nil, defaults are used.
func NewRunner(opts *Options) *Runner {
	if opts == nil {
		opts = DefaultOptions()
	} else {
		opts.Validate()
	}
	return &Runner{opts: *opts}
}

// Run sharpens every dataset and returns one outcome per dataset, in
// input order.
//
// Description:
//
//	Datasets run concurrently up to the worker bound. Each outcome slot
//	is written by exactly one goroutine, so no locking is needed for the
//	results. A canceled context stops unstarted datasets; their outcomes
//	carry the context error. Started datasets run to completion.
//
// Outputs:
//
//   - []Outcome: One per dataset, positionally matching the input.
//   - error: ErrNoDatasets for an empty batch; otherwise nil. Per-dataset
//     failures are reported in the outcomes, never here.
//
// Thread Safety: Safe for concurrent use.
func (r *Runner) Run(ctx context.Context, datasets []Dataset) ([]Outcome, error) {
	ctx, span := batchTracer.Start(ctx, "batch.Runner.Run",
		trace.WithAttributes(
			attribute.Int("batch.datasets", len(datasets)),
			attribute.Int("batch.workers", r.opts.Workers),
		),
	)
	defer span.End()

	if len(datasets) == 0 {
		return nil, ErrNoDatasets
	}

	fdrOpts := &fdr.Options{Step: r.opts.Step}

	outcomes := make([]Outcome, len(datasets))
	var completed atomic.Int64

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)

	for i, ds := range datasets {
		i, ds := i, ds

		g.Go(func() error {
			start := time.Now()

			if err := gCtx.Err(); err != nil {
				outcomes[i] = Outcome{Name: ds.Name, Err: err}
				return nil
			}

			opts := *fdrOpts
			qvals, err := fdr.SharpenQValues(gCtx, ds.PValues, &opts)
			outcomes[i] = Outcome{
				Name:     ds.Name,
				QValues:  qvals,
				Err:      err,
				Duration: time.Since(start),
			}

			done := int(completed.Add(1))
			if r.opts.OnProgress != nil {
				r.opts.OnProgress(done, len(datasets), ds.Name)
			}
			return nil
		})
	}

	// Worker errors are captured per outcome; Wait only flushes the group.
	_ = g.Wait()

	failures := 0
	for _, out := range outcomes {
		if out.Err != nil {
			failures++
		}
	}
	slog.Debug("batch sharpening finished",
		slog.Int("datasets", len(datasets)),
		slog.Int("failures", failures),
		slog.Int("workers", r.opts.Workers),
	)
	span.SetAttributes(attribute.Int("batch.failures", failures))

	return outcomes, nil
}
