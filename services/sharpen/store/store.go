// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store persists sharpened runs in BadgerDB and deduplicates
// concurrent identical computations.
//
// A run is one invocation of the two-stage sharpening procedure: the input
// p-values, the resulting q-values, and bookkeeping metadata. Records are
// stored as JSON alongside a time-ordered index so listings return the
// newest runs first without a full scan.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/AleutianAI/AleutianStats/services/sharpen/fdr"
	"github.com/AleutianAI/AleutianStats/services/sharpen/storage/badger"
	dgbadger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

// -----------------------------------------------------------------------------
// Store Errors
// -----------------------------------------------------------------------------

var (
	// ErrRunNotFound is returned when no run exists for the requested ID.
	ErrRunNotFound = errors.New("run not found")

	// ErrNilRecord is returned when a nil record is passed to SaveRun.
	ErrNilRecord = errors.New("run record must not be nil")

	// ErrRecordInvalid is returned when a record fails consistency checks.
	ErrRecordInvalid = errors.New("run record invalid")

	// ErrStoreClosed is returned when operations are called on a closed store.
	ErrStoreClosed = errors.New("run store is closed")

	// ErrNilContext is returned when a nil context is passed to an operation.
	ErrNilContext = errors.New("context must not be nil")

	// ErrEmptyRunID is returned when an operation requires a non-empty run ID.
	ErrEmptyRunID = errors.New("run id must not be empty")
)

// -----------------------------------------------------------------------------
// Record Types
// -----------------------------------------------------------------------------

// summaryThreshold is the q-value level reported in listing summaries.
const summaryThreshold = 0.05

// DefaultListLimit bounds ListRuns when the caller passes a non-positive limit.
const DefaultListLimit = 50

// RunRecord is one persisted sharpening run.
//
// Description:
//
//	Holds the full input and output vectors plus metadata. PValues and
//	QValues are index-aligned: QValues[i] is the sharpened q-value for
//	PValues[i].
type RunRecord struct {
	// ID uniquely identifies the run. Assigned on save when empty.
	ID string `json:"id"`

	// Label is an optional caller-supplied name for the run.
	Label string `json:"label,omitempty"`

	// Source records where the run originated ("api", "cli", "watch", ...).
	Source string `json:"source,omitempty"`

	// CreatedAt is when the run was computed. Assigned on save when zero.
	CreatedAt time.Time `json:"created_at"`

	// Step is the q-value grid step used for the sweep.
	Step float64 `json:"step"`

	// Hypotheses is the number of tested hypotheses, len(PValues).
	Hypotheses int `json:"hypotheses"`

	// ContentHash fingerprints (PValues, Step) for deduplication.
	ContentHash string `json:"content_hash,omitempty"`

	// PValues are the input p-values in caller order.
	PValues []float64 `json:"p_values"`

	// QValues are the sharpened q-values, aligned with PValues.
	QValues []float64 `json:"q_values"`
}

// RunSummary is the listing projection of a run.
type RunSummary struct {
	ID            string    `json:"id"`
	Label         string    `json:"label,omitempty"`
	Source        string    `json:"source,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	Step          float64   `json:"step"`
	Hypotheses    int       `json:"hypotheses"`
	MinQ          float64   `json:"min_q"`
	Discoveries05 int       `json:"discoveries_at_0_05"`
}

// -----------------------------------------------------------------------------
// Store Interface
// -----------------------------------------------------------------------------

// Store persists and retrieves sharpening runs.
//
// Thread Safety: Implementations must be safe for concurrent use.
type Store interface {
	// ComputeRun sharpens pvals and persists the result as a new run.
	//
	// Inputs:
	//   - ctx: Context for cancellation and tracing. Must not be nil.
	//   - pvals: Raw p-values in caller order. Must not be empty.
	//   - opts: Sweep options. Nil selects defaults.
	//   - label: Optional display name stored on the record.
	//   - source: Origin tag stored on the record.
	//
	// Outputs:
	//   - *RunRecord: The persisted run, including assigned ID.
	//   - error: Non-nil on invalid input or storage failure.
	//
	// Concurrent calls with identical (pvals, step) share a single
	// computation and a single stored record.
	ComputeRun(ctx context.Context, pvals []float64, opts *fdr.Options, label, source string) (*RunRecord, error)

	// SaveRun persists an already-computed record.
	//
	// Assigns ID, CreatedAt, Hypotheses, and ContentHash when unset.
	SaveRun(ctx context.Context, rec *RunRecord) error

	// GetRun returns the run with the given ID.
	//
	// Outputs:
	//   - *RunRecord: The stored run.
	//   - error: ErrRunNotFound if no such run exists.
	GetRun(ctx context.Context, id string) (*RunRecord, error)

	// ListRuns returns up to limit summaries, newest first.
	// A non-positive limit selects DefaultListLimit.
	ListRuns(ctx context.Context, limit int) ([]RunSummary, error)

	// DeleteRun removes the run with the given ID.
	//
	// Outputs:
	//   - error: ErrRunNotFound if no such run exists.
	DeleteRun(ctx context.Context, id string) error

	// CountRuns returns the number of stored runs.
	CountRuns(ctx context.Context) (int, error)

	// Backup streams a full backup of the underlying database to w.
	Backup(ctx context.Context, w io.Writer) (uint64, error)

	// Restore loads a backup stream previously produced by Backup.
	Restore(ctx context.Context, r io.Reader) error

	// Close syncs and releases the underlying database.
	Close() error
}

// -----------------------------------------------------------------------------
// BadgerStore Implementation
// -----------------------------------------------------------------------------

// Config configures a badger-backed run store.
type Config struct {
	// Path is the directory for BadgerDB files. Required for persistent mode.
	Path string

	// InMemory uses an in-memory BadgerDB (for testing).
	InMemory bool

	// SyncWrites enables synchronous writes for durability. Default: true.
	SyncWrites bool

	// Logger for store operations. Default: slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns a production configuration rooted at path.
func DefaultConfig(path string) Config {
	return Config{
		Path:       path,
		SyncWrites: true,
	}
}

// InMemoryConfig returns a configuration for tests.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// BadgerStore implements Store on BadgerDB.
//
// Key format:
//
//	"run:{id}"                          -> RunRecord JSON
//	"runidx:{created_unix_nano:020d}:{id}" -> RunSummary JSON
//
// The index keys sort lexicographically by creation time, so a reverse
// prefix scan yields runs newest first.
//
// Thread Safety: Safe for concurrent use.
type BadgerStore struct {
	db     *badger.DB
	logger *slog.Logger
	flight singleflight.Group
	closed atomic.Bool
}

// NewBadgerStore opens (or creates) a run store at the configured path.
//
// Inputs:
//
//	cfg - Store configuration.
//
// Outputs:
//
//	*BadgerStore - Ready-to-use store with background GC running.
//	error - Non-nil if BadgerDB initialization fails.
func NewBadgerStore(cfg Config) (*BadgerStore, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	dbConfig := badger.DefaultConfig()
	dbConfig.Path = cfg.Path
	dbConfig.InMemory = cfg.InMemory
	dbConfig.SyncWrites = cfg.SyncWrites
	dbConfig.Logger = cfg.Logger

	db, err := badger.OpenDB(dbConfig)
	if err != nil {
		return nil, fmt.Errorf("open run database: %w", err)
	}

	s := &BadgerStore{
		db:     db,
		logger: cfg.Logger.With(slog.String("component", "runstore")),
	}

	s.logger.Info("run store opened",
		slog.String("path", cfg.Path),
		slog.Bool("in_memory", cfg.InMemory),
		slog.Bool("sync_writes", cfg.SyncWrites))

	return s, nil
}

const (
	runKeyPrefix   = "run:"
	indexKeyPrefix = "runidx:"
)

// runKey returns the primary key for a run ID.
func runKey(id string) []byte {
	return []byte(runKeyPrefix + id)
}

// indexKey returns the time-ordered index key for a run.
func indexKey(createdAt time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", indexKeyPrefix, createdAt.UnixNano(), id))
}

// ContentHash fingerprints a (pvals, step) pair for deduplication.
//
// The hash covers the exact float64 bit patterns in order, so two inputs
// collide only when they are identical vectors sharpened at the same step.
func ContentHash(pvals []float64, step float64) string {
	h := sha256.New()
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], math.Float64bits(step))
	h.Write(buf[:])
	for _, p := range pvals {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(p))
		h.Write(buf[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// summarize projects a record onto its listing summary.
func summarize(rec *RunRecord) RunSummary {
	sum := RunSummary{
		ID:         rec.ID,
		Label:      rec.Label,
		Source:     rec.Source,
		CreatedAt:  rec.CreatedAt,
		Step:       rec.Step,
		Hypotheses: rec.Hypotheses,
		MinQ:       1.0,
	}
	for _, q := range rec.QValues {
		if q < sum.MinQ {
			sum.MinQ = q
		}
		if q <= summaryThreshold {
			sum.Discoveries05++
		}
	}
	if len(rec.QValues) == 0 {
		sum.MinQ = 0
	}
	return sum
}

// checkOp validates the common preconditions for a store operation.
func (s *BadgerStore) checkOp(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	if s.closed.Load() {
		return ErrStoreClosed
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// -----------------------------------------------------------------------------
// Store Interface Implementation
// -----------------------------------------------------------------------------

// ComputeRun sharpens pvals and persists the result as a new run.
func (s *BadgerStore) ComputeRun(ctx context.Context, pvals []float64, opts *fdr.Options, label, source string) (*RunRecord, error) {
	if err := s.checkOp(ctx); err != nil {
		return nil, err
	}

	ctx, span := otel.Tracer("aleutian.stats.store").Start(ctx, "store.ComputeRun",
		trace.WithAttributes(
			attribute.Int("store.hypotheses", len(pvals)),
			attribute.String("store.source", source),
		),
	)
	defer span.End()

	o := *fdr.DefaultOptions()
	if opts != nil {
		o = *opts
	}
	if err := o.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid options")
		return nil, err
	}

	hash := ContentHash(pvals, o.Step)

	v, err, shared := s.flight.Do(hash, func() (any, error) {
		qvals, err := fdr.SharpenQValues(ctx, pvals, &o)
		if err != nil {
			return nil, err
		}

		rec := &RunRecord{
			ID:          uuid.NewString(),
			Label:       label,
			Source:      source,
			CreatedAt:   time.Now().UTC(),
			Step:        o.Step,
			Hypotheses:  len(pvals),
			ContentHash: hash,
			PValues:     append([]float64(nil), pvals...),
			QValues:     qvals,
		}
		if err := s.SaveRun(ctx, rec); err != nil {
			return nil, err
		}
		return rec, nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "compute failed")
		return nil, err
	}

	rec := v.(*RunRecord)
	span.SetAttributes(
		attribute.String("store.run_id", rec.ID),
		attribute.Bool("store.deduped", shared),
	)

	s.logger.Debug("run computed",
		slog.String("run_id", rec.ID),
		slog.Int("hypotheses", rec.Hypotheses),
		slog.Bool("deduped", shared))

	return rec, nil
}

// SaveRun persists an already-computed record.
func (s *BadgerStore) SaveRun(ctx context.Context, rec *RunRecord) error {
	if rec == nil {
		return ErrNilRecord
	}
	if err := s.checkOp(ctx); err != nil {
		return err
	}
	if len(rec.PValues) == 0 {
		return fmt.Errorf("%w: no p-values", ErrRecordInvalid)
	}
	if len(rec.QValues) != len(rec.PValues) {
		return fmt.Errorf("%w: %d q-values for %d p-values",
			ErrRecordInvalid, len(rec.QValues), len(rec.PValues))
	}

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.Hypotheses == 0 {
		rec.Hypotheses = len(rec.PValues)
	}
	if rec.ContentHash == "" {
		rec.ContentHash = ContentHash(rec.PValues, rec.Step)
	}

	ctx, span := otel.Tracer("aleutian.stats.store").Start(ctx, "store.SaveRun",
		trace.WithAttributes(
			attribute.String("store.run_id", rec.ID),
			attribute.Int("store.hypotheses", rec.Hypotheses),
		),
	)
	defer span.End()

	recData, err := json.Marshal(rec)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("marshal record: %w", err)
	}
	sumData, err := json.Marshal(summarize(rec))
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("marshal summary: %w", err)
	}

	err = s.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		if err := txn.Set(runKey(rec.ID), recData); err != nil {
			return err
		}
		return txn.Set(indexKey(rec.CreatedAt, rec.ID), sumData)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "run write failed")
		return fmt.Errorf("write run: %w", err)
	}

	s.logger.Debug("run saved",
		slog.String("run_id", rec.ID),
		slog.Int("bytes", len(recData)))

	return nil
}

// GetRun returns the run with the given ID.
func (s *BadgerStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	if id == "" {
		return nil, ErrEmptyRunID
	}
	if err := s.checkOp(ctx); err != nil {
		return nil, err
	}

	ctx, span := otel.Tracer("aleutian.stats.store").Start(ctx, "store.GetRun",
		trace.WithAttributes(attribute.String("store.run_id", id)),
	)
	defer span.End()

	var rec RunRecord
	err := s.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		item, err := txn.Get(runKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, dgbadger.ErrKeyNotFound) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read failed")
		return nil, fmt.Errorf("read run: %w", err)
	}

	return &rec, nil
}

// ListRuns returns up to limit summaries, newest first.
func (s *BadgerStore) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if err := s.checkOp(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}

	ctx, span := otel.Tracer("aleutian.stats.store").Start(ctx, "store.ListRuns",
		trace.WithAttributes(attribute.Int("store.limit", limit)),
	)
	defer span.End()

	summaries := make([]RunSummary, 0, limit)
	prefix := []byte(indexKeyPrefix)

	err := s.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		opts := dgbadger.DefaultIteratorOptions
		opts.PrefetchValues = true
		opts.Reverse = true

		it := txn.NewIterator(opts)
		defer it.Close()

		// Seek past the highest possible index key, then walk backwards.
		seekKey := append([]byte(indexKeyPrefix), 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF)
		for it.Seek(seekKey); it.ValidForPrefix(prefix) && len(summaries) < limit; it.Next() {
			var sum RunSummary
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &sum)
			})
			if err != nil {
				return err
			}
			summaries = append(summaries, sum)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "scan failed")
		return nil, fmt.Errorf("list runs: %w", err)
	}

	span.SetAttributes(attribute.Int("store.returned", len(summaries)))
	return summaries, nil
}

// DeleteRun removes the run with the given ID and its index entry.
func (s *BadgerStore) DeleteRun(ctx context.Context, id string) error {
	if id == "" {
		return ErrEmptyRunID
	}
	if err := s.checkOp(ctx); err != nil {
		return err
	}

	ctx, span := otel.Tracer("aleutian.stats.store").Start(ctx, "store.DeleteRun",
		trace.WithAttributes(attribute.String("store.run_id", id)),
	)
	defer span.End()

	err := s.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		item, err := txn.Get(runKey(id))
		if err != nil {
			return err
		}

		var rec RunRecord
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		}); err != nil {
			return err
		}

		if err := txn.Delete(indexKey(rec.CreatedAt, rec.ID)); err != nil {
			return err
		}
		return txn.Delete(runKey(id))
	})
	if errors.Is(err, dgbadger.ErrKeyNotFound) {
		return ErrRunNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete failed")
		return fmt.Errorf("delete run: %w", err)
	}

	s.logger.Debug("run deleted", slog.String("run_id", id))
	return nil
}

// CountRuns returns the number of stored runs.
func (s *BadgerStore) CountRuns(ctx context.Context) (int, error) {
	if err := s.checkOp(ctx); err != nil {
		return 0, err
	}

	count := 0
	prefix := []byte(runKeyPrefix)
	err := s.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		opts := dgbadger.DefaultIteratorOptions
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count runs: %w", err)
	}
	return count, nil
}

// Backup streams a full backup of the underlying database to w.
func (s *BadgerStore) Backup(ctx context.Context, w io.Writer) (uint64, error) {
	if err := s.checkOp(ctx); err != nil {
		return 0, err
	}
	return s.db.Backup(ctx, w)
}

// Restore loads a backup stream previously produced by Backup.
func (s *BadgerStore) Restore(ctx context.Context, r io.Reader) error {
	if err := s.checkOp(ctx); err != nil {
		return err
	}
	return s.db.Restore(ctx, r)
}

// Close syncs and releases the underlying database.
func (s *BadgerStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.logger.Debug("closing run store")
	return s.db.Close()
}
