// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package watch

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/AleutianAI/AleutianStats/services/sharpen/fdr"
	"github.com/AleutianAI/AleutianStats/services/sharpen/history"
	"github.com/AleutianAI/AleutianStats/services/sharpen/store"
)

// Processor sharpens datasets as the watcher reports changes.
//
// When a run store is configured each sharpened dataset is also persisted
// as a run with source "watch"; without one the processor computes
// q-values directly and only writes the output file.
type Processor struct {
	ctx      context.Context
	st       store.Store
	opts     fdr.Options
	recorder *history.Recorder
	logger   *slog.Logger
}

// NewProcessor builds a processor bound to a lifecycle context.
//
// Inputs:
//   - ctx: Lifecycle context; processing stops failing softly once done.
//   - st: Optional run store. Nil disables persistence.
//   - opts: Sweep options. Nil selects defaults.
//   - logger: Optional logger. Nil selects slog.Default().
func NewProcessor(ctx context.Context, st store.Store, opts *fdr.Options, logger *slog.Logger) *Processor {
	o := *fdr.DefaultOptions()
	if opts != nil {
		o = *opts
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		ctx:    ctx,
		st:     st,
		opts:   o,
		logger: logger.With(slog.String("component", "watch")),
	}
}

// SetRecorder attaches a history recorder for persisted runs.
//
// Only runs that go through the store are recorded; compute-only
// processing has no run record to report. Recording is best-effort and
// never fails a dataset.
func (p *Processor) SetRecorder(rec *history.Recorder) {
	p.recorder = rec
}

// Handle sharpens every created or modified dataset in the batch.
//
// Matches the DatasetHandler signature. Failures are logged per dataset
// and never stop the rest of the batch.
func (p *Processor) Handle(changes []DatasetChange) {
	for _, change := range changes {
		if p.ctx.Err() != nil {
			return
		}
		if change.Op != DatasetOpCreate && change.Op != DatasetOpWrite {
			continue
		}
		p.processDataset(change.Path)
	}
}

// processDataset reads, sharpens, and writes one dataset.
func (p *Processor) processDataset(path string) {
	pvals, err := ReadPValues(path)
	if err != nil {
		p.logger.Error("failed to read dataset",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return
	}

	var qvals []float64
	if p.st != nil {
		opts := p.opts
		rec, err := p.st.ComputeRun(p.ctx, pvals, &opts, filepath.Base(path), "watch")
		if err != nil {
			p.logger.Error("failed to sharpen dataset",
				slog.String("path", path),
				slog.String("error", err.Error()))
			return
		}
		qvals = rec.QValues
		if p.recorder != nil && p.recorder.Enabled() {
			if err := p.recorder.Record(p.ctx, history.EntryFromRun(rec)); err != nil {
				p.logger.Warn("failed to record run history",
					slog.String("run_id", rec.ID),
					slog.String("error", err.Error()))
			}
		}
	} else {
		opts := p.opts
		qvals, err = fdr.SharpenQValues(p.ctx, pvals, &opts)
		if err != nil {
			p.logger.Error("failed to sharpen dataset",
				slog.String("path", path),
				slog.String("error", err.Error()))
			return
		}
	}

	out := OutputPath(path)
	if err := WriteQValues(out, pvals, qvals); err != nil {
		p.logger.Error("failed to write q-values",
			slog.String("path", out),
			slog.String("error", err.Error()))
		return
	}

	p.logger.Info("dataset sharpened",
		slog.String("dataset", path),
		slog.String("output", out),
		slog.Int("hypotheses", len(pvals)))
}
