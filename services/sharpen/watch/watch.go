// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package watch monitors a directory tree for p-value datasets and
// sharpens them as they change.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DatasetChange is one observed change to a dataset file.
type DatasetChange struct {
	// Path of the dataset file that changed.
	Path string

	// Op classifies the change.
	Op DatasetOp

	// Time the event was observed, not the file's mtime.
	Time time.Time
}

// DatasetOp classifies a dataset file event.
type DatasetOp int

const (
	// DatasetOpCreate indicates a dataset was created.
	DatasetOpCreate DatasetOp = iota

	// DatasetOpWrite indicates a dataset was modified.
	DatasetOpWrite

	// DatasetOpRemove indicates a dataset was deleted.
	DatasetOpRemove

	// DatasetOpRename indicates a dataset was renamed.
	DatasetOpRename
)

func (op DatasetOp) String() string {
	switch op {
	case DatasetOpCreate:
		return "create"
	case DatasetOpWrite:
		return "write"
	case DatasetOpRemove:
		return "remove"
	case DatasetOpRename:
		return "rename"
	default:
		return "unknown"
	}
}

// DatasetHandler receives each debounced batch of changes.
type DatasetHandler func(changes []DatasetChange)

// Watcher reports dataset changes under a directory tree, batched by a
// quiet-period debounce so a file written in several chunks triggers one
// sharpening pass instead of one per chunk.
//
// Only *.csv paths are reported, and our own *.qvalues.csv outputs are
// filtered out so writing results next to a dataset cannot re-trigger it.
//
// Safe for concurrent use; the handler always runs on one goroutine.
type Watcher struct {
	root     string
	fsw      *fsnotify.Watcher
	handler  DatasetHandler
	debounce time.Duration
	logger   *slog.Logger

	// changes carries raw events from the fsnotify reader to the
	// debouncer so the Events channel is never blocked.
	changes  chan DatasetChange
	done     chan struct{}
	stopOnce sync.Once

	mu       sync.RWMutex
	watching bool
}

// Options configures a Watcher.
type Options struct {
	// DebounceWindow is the quiet period that has to pass after the last
	// event before a batch is delivered. Default: 250ms.
	DebounceWindow time.Duration

	// BufferSize caps how many undelivered events queue between the
	// filesystem reader and the debouncer. Default: 256.
	BufferSize int

	// Logger for watcher diagnostics. Default: slog.Default().
	Logger *slog.Logger
}

// DefaultOptions returns the stock watcher configuration.
func DefaultOptions() Options {
	return Options{
		DebounceWindow: 250 * time.Millisecond,
		BufferSize:     256,
	}
}

// NewWatcher prepares a watcher rooted at root. Nothing is observed
// until Start runs; a nil opts selects DefaultOptions.
//
// # Inputs
//
//   - root: Directory whose tree should be observed.
//   - handler: Receives each debounced batch of changes.
//   - opts: Optional tuning; nil selects DefaultOptions.
//
// # Outputs
//
//   - *Watcher: The prepared watcher.
//   - error: Non-nil when the OS notification facility is unavailable.
func NewWatcher(root string, handler DatasetHandler, opts *Options) (*Watcher, error) {
	cfg := DefaultOptions()
	if opts != nil {
		cfg = *opts
	}
	if cfg.DebounceWindow <= 0 {
		cfg.DebounceWindow = 250 * time.Millisecond
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		root:     root,
		fsw:      fsw,
		handler:  handler,
		debounce: cfg.DebounceWindow,
		logger:   cfg.Logger.With(slog.String("component", "watch")),
		changes:  make(chan DatasetChange, cfg.BufferSize),
		done:     make(chan struct{}),
	}, nil
}

// Start registers the whole tree under root and launches the reader and
// debouncer goroutines. Both exit on Stop or when ctx is canceled.
// Calling Start on a running watcher does nothing.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.watching {
		w.mu.Unlock()
		return nil
	}
	w.watching = true
	w.mu.Unlock()

	if err := w.watchTree(w.root); err != nil {
		return err
	}

	go w.readEvents(ctx)
	go w.debounceLoop(ctx)

	w.logger.Info("watching for datasets",
		slog.String("root", w.root),
		slog.Duration("debounce", w.debounce))

	return nil
}

// Stop ends watching. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.fsw.Close()

		w.mu.Lock()
		w.watching = false
		w.mu.Unlock()
	})
}

// IsWatching reports whether Start has run and Stop has not.
func (w *Watcher) IsWatching() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.watching
}

// watchTree registers root and every non-hidden directory below it.
// Unreadable entries are skipped; a partially watched tree beats none.
func (w *Watcher) watchTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		switch {
		case err != nil:
			return nil
		case !d.IsDir():
			return nil
		case path != root && strings.HasPrefix(filepath.Base(path), "."):
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

// IsDataset reports whether path names an input dataset.
//
// Input datasets end in .csv; our own output files end in .qvalues.csv
// and are excluded so sharpening a dataset does not re-trigger itself.
func IsDataset(path string) bool {
	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, OutputSuffix) {
		return false
	}
	return strings.HasSuffix(lower, ".csv")
}

// readEvents drains the fsnotify channels, keeps the directory set
// current, and forwards dataset events to the debouncer.
func (w *Watcher) readEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	// A directory appearing under the tree has to be registered before
	// anything written inside it can be seen.
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.fsw.Add(event.Name); err != nil {
				w.logger.Warn("failed to watch new directory",
					slog.String("path", event.Name),
					slog.String("error", err.Error()))
			}
			return
		}
	}

	if !IsDataset(event.Name) {
		return
	}

	change := DatasetChange{
		Path: event.Name,
		Op:   datasetOp(event.Op),
		Time: time.Now(),
	}

	select {
	case w.changes <- change:
	default:
		// A full queue means the debouncer is far behind; shedding one
		// event is better than stalling the fsnotify reader.
		w.logger.Warn("change buffer full, dropping event",
			slog.String("path", event.Name))
	}
}

// datasetOp maps an fsnotify op bitmask onto the dataset vocabulary.
func datasetOp(op fsnotify.Op) DatasetOp {
	switch {
	case op.Has(fsnotify.Create):
		return DatasetOpCreate
	case op.Has(fsnotify.Write):
		return DatasetOpWrite
	case op.Has(fsnotify.Remove):
		return DatasetOpRemove
	case op.Has(fsnotify.Rename):
		return DatasetOpRename
	default:
		return DatasetOpWrite
	}
}

// debounceLoop accumulates forwarded changes and delivers a deduplicated
// batch once the quiet period passes with nothing new.
func (w *Watcher) debounceLoop(ctx context.Context) {
	var pending []DatasetChange
	var quiet <-chan time.Time

	deliver := func() {
		quiet = nil
		if len(pending) == 0 {
			return
		}
		batch := DeduplicateChanges(pending)
		pending = nil
		if w.handler != nil && len(batch) > 0 {
			w.handler(batch)
		}
	}

	for {
		select {
		case <-ctx.Done():
			deliver()
			return
		case <-w.done:
			deliver()
			return
		case change := <-w.changes:
			pending = append(pending, change)
			// Each arrival pushes the deadline out again.
			quiet = time.After(w.debounce)
		case <-quiet:
			deliver()
		}
	}
}

// DeduplicateChanges collapses repeated events for the same path into
// the most recent one, preserving first-appearance order.
func DeduplicateChanges(changes []DatasetChange) []DatasetChange {
	order := make([]string, 0, len(changes))
	latest := make(map[string]DatasetChange, len(changes))
	for _, c := range changes {
		if _, ok := latest[c.Path]; !ok {
			order = append(order, c.Path)
		}
		latest[c.Path] = c
	}

	out := make([]DatasetChange, len(order))
	for i, path := range order {
		out[i] = latest[path]
	}
	return out
}
