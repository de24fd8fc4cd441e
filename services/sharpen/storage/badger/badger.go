// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package badger wraps the embedded BadgerDB engine behind the small
// factory and lifecycle surface the run archive needs.
//
// A completed run is a few kilobytes of JSON looked up by ID or scanned
// by prefix, which sits squarely in BadgerDB's sweet spot: an embedded
// LSM store with no server to operate. The wrapper owns directory
// creation, value log garbage collection, and backup streaming, so the
// store layer above it only thinks about keys.
//
// The embedded engine (github.com/dgraph-io/badger) carries its own
// Apache 2.0 license.
package badger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Load rebuilds key order from this many pending writes at a time.
const restoreMaxPending = 256

// Config selects where and how the database runs.
type Config struct {
	// Path is the directory holding the database files. Required unless
	// InMemory is set, in which case it is ignored.
	Path string

	// InMemory keeps everything in RAM. Nothing survives Close.
	InMemory bool

	// SyncWrites fsyncs every write before acknowledging it.
	SyncWrites bool

	// Logger receives Badger's internal output. Nil silences it.
	Logger *slog.Logger

	// NumVersionsToKeep bounds version retention per key. Values below 1
	// are treated as 1; the archive never rewrites a run in place.
	NumVersionsToKeep int

	// GCInterval schedules value log garbage collection. Zero disables
	// the collector entirely.
	GCInterval time.Duration

	// GCDiscardRatio is the reclaimable fraction a value log file must
	// reach before collection rewrites it. Must be inside (0, 1) when
	// GCInterval is set.
	GCDiscardRatio float64
}

// DefaultConfig returns the production profile: durable writes, one
// version per key, collection every five minutes.
func DefaultConfig() Config {
	return Config{
		SyncWrites:        true,
		NumVersionsToKeep: 1,
		GCInterval:        5 * time.Minute,
		GCDiscardRatio:    0.5,
	}
}

// InMemoryConfig returns the test profile: RAM only, no fsync, no GC.
func InMemoryConfig() Config {
	return Config{
		InMemory:          true,
		NumVersionsToKeep: 1,
	}
}

func (cfg Config) validate() error {
	if !cfg.InMemory && cfg.Path == "" {
		return errors.New("badger: Path is required unless InMemory is set")
	}
	if cfg.GCInterval > 0 && (cfg.GCDiscardRatio <= 0 || cfg.GCDiscardRatio >= 1) {
		return fmt.Errorf("badger: GCDiscardRatio %v outside (0, 1)", cfg.GCDiscardRatio)
	}
	return nil
}

func (cfg Config) options() badger.Options {
	dir := cfg.Path
	if cfg.InMemory {
		dir = ""
	}

	versions := cfg.NumVersionsToKeep
	if versions < 1 {
		versions = 1
	}

	opts := badger.DefaultOptions(dir).
		WithInMemory(cfg.InMemory).
		WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(versions)

	if cfg.Logger == nil {
		return opts.WithLogger(nil)
	}
	return opts.WithLogger(slogAdapter{base: cfg.Logger})
}

// slogAdapter bridges Badger's printf-style logger onto slog. Badger
// terminates its messages with newlines, which slog does not want.
type slogAdapter struct {
	base *slog.Logger
}

func (a slogAdapter) log(level slog.Level, format string, args []any) {
	msg := strings.TrimSuffix(fmt.Sprintf(format, args...), "\n")
	a.base.Log(context.Background(), level, msg)
}

func (a slogAdapter) Errorf(format string, args ...any)   { a.log(slog.LevelError, format, args) }
func (a slogAdapter) Warningf(format string, args ...any) { a.log(slog.LevelWarn, format, args) }
func (a slogAdapter) Infof(format string, args ...any)    { a.log(slog.LevelInfo, format, args) }
func (a slogAdapter) Debugf(format string, args ...any)   { a.log(slog.LevelDebug, format, args) }

// DB is an open database plus the background collector attached to it.
// All methods are safe for concurrent use; Close must be called exactly
// once when the database is no longer needed.
type DB struct {
	raw      *badger.DB
	inMemory bool
	gcStop   context.CancelFunc
	gcDone   chan struct{}
}

// OpenDB validates cfg, opens the database, and starts the value log
// collector when the configuration asks for one.
func OpenDB(cfg Config) (*DB, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if !cfg.InMemory {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create data directory %s: %w", cfg.Path, err)
		}
	}

	raw, err := badger.Open(cfg.options())
	if err != nil {
		return nil, fmt.Errorf("badger open: %w", err)
	}

	d := &DB{raw: raw, inMemory: cfg.InMemory}
	if !cfg.InMemory && cfg.GCInterval > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		d.gcStop = cancel
		d.gcDone = make(chan struct{})
		go d.gcLoop(ctx, cfg.GCInterval, cfg.GCDiscardRatio, cfg.Logger)
	}
	return d, nil
}

func (d *DB) gcLoop(ctx context.Context, every time.Duration, ratio float64, logger *slog.Logger) {
	defer close(d.gcDone)

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.collectValueLog(ratio, logger)
		}
	}
}

// collectValueLog reclaims value log files until Badger reports nothing
// left to rewrite. Each RunValueLogGC call rewrites at most one file.
func (d *DB) collectValueLog(ratio float64, logger *slog.Logger) {
	for {
		err := d.raw.RunValueLogGC(ratio)
		if errors.Is(err, badger.ErrNoRewrite) {
			return
		}
		if err != nil {
			if logger != nil {
				logger.Warn("value log GC failed", slog.String("error", err.Error()))
			}
			return
		}
		if logger != nil {
			logger.Debug("value log file reclaimed")
		}
	}
}

// Close stops the collector and releases the database.
func (d *DB) Close() error {
	if d.gcStop != nil {
		d.gcStop()
		<-d.gcDone
	}
	return d.raw.Close()
}

// Sync flushes acknowledged writes to disk. In-memory databases have
// nothing to flush.
func (d *DB) Sync() error {
	if d.inMemory {
		return nil
	}
	return d.raw.Sync()
}

// Backup streams the whole database to w in Badger's backup format and
// returns the version timestamp the stream covers. The database is
// synced first so the stream includes every acknowledged write.
func (d *DB) Backup(ctx context.Context, w io.Writer) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := d.Sync(); err != nil {
		return 0, fmt.Errorf("sync before backup: %w", err)
	}

	since, err := d.raw.Backup(w, 0)
	if err != nil {
		return 0, fmt.Errorf("stream backup: %w", err)
	}
	return since, nil
}

// Restore loads a stream produced by Backup, overwriting any keys the
// stream also contains.
func (d *DB) Restore(ctx context.Context, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := d.raw.Load(r, restoreMaxPending); err != nil {
		return fmt.Errorf("load backup: %w", err)
	}
	return d.Sync()
}

func (d *DB) runTxn(ctx context.Context, update bool, fn func(*badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	txn := d.raw.NewTransaction(update)
	defer txn.Discard()

	if err := fn(txn); err != nil {
		return err
	}
	if !update {
		return nil
	}
	return txn.Commit()
}

// WithTxn runs fn inside a read-write transaction, committing when fn
// returns nil and discarding otherwise.
func (d *DB) WithTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	return d.runTxn(ctx, true, fn)
}

// WithReadTxn runs fn inside a read-only transaction.
func (d *DB) WithReadTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	return d.runTxn(ctx, false, fn)
}
