// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging wraps slog with the output plumbing AleutianStats
// tools share: a console stream on stderr, an optional per-day JSON log
// file, and a pluggable Exporter for shipping entries elsewhere. All
// three destinations hang off one slog pipeline, so callers log through
// the usual slog API and every destination sees the same records.
//
//	logger := logging.New(logging.Config{
//	    Service: "watch",
//	    LogDir:  "~/.aleutianstats/logs",
//	    Level:   logging.LevelInfo,
//	})
//	defer logger.Close()
//
// Close flushes the exporter and releases the log file; only the Logger
// returned by New should be closed, not its With children.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level aliases slog's numeric levels; the zero value is LevelInfo.
type Level slog.Level

const (
	LevelDebug = Level(slog.LevelDebug)
	LevelInfo  = Level(slog.LevelInfo)
	LevelWarn  = Level(slog.LevelWarn)
	LevelError = Level(slog.LevelError)
)

func (l Level) String() string { return slog.Level(l).String() }

// Config controls where log records go.
type Config struct {
	// Service tags every record and names the log file.
	Service string

	// Level is the minimum level written anywhere.
	Level Level

	// LogDir enables a JSON file named {service}_{date}.log under this
	// directory. Supports ~ expansion. Empty disables file logging.
	LogDir string

	// JSON switches the stderr stream from text to JSON lines.
	JSON bool

	// Quiet drops the stderr stream entirely.
	Quiet bool

	// Exporter receives a copy of every record when non-nil.
	Exporter Exporter
}

// Entry is one log record as handed to an Exporter.
type Entry struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Service string         `json:"service"`
	Attrs   map[string]any `json:"attrs,omitempty"`
}

// Exporter ships log entries to an external sink. Export must not
// block; slow sinks should buffer and drain on Flush.
type Exporter interface {
	Export(ctx context.Context, e Entry) error
	Flush(ctx context.Context) error
	Close() error
}

// Logger is a slog.Logger bound to the destinations in its Config.
type Logger struct {
	slog *slog.Logger
	file *os.File
	pump *exportPump
	once sync.Once
}

// New builds a Logger for cfg. It never fails: an unwritable LogDir is
// reported on stderr and file logging is skipped.
func New(cfg Config) *Logger {
	if cfg.Service == "" {
		cfg.Service = "aleutianstats"
	}
	opts := &slog.HandlerOptions{Level: slog.Level(cfg.Level)}

	var handlers []slog.Handler
	if !cfg.Quiet {
		if cfg.JSON {
			handlers = append(handlers, slog.NewJSONHandler(os.Stderr, opts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(os.Stderr, opts))
		}
	}

	logger := &Logger{}
	if cfg.LogDir != "" {
		file, err := openLogFile(cfg.LogDir, cfg.Service)
		if err != nil {
			fmt.Fprintf(os.Stderr, "logging: file output disabled: %v\n", err)
		} else {
			logger.file = file
			handlers = append(handlers, slog.NewJSONHandler(file, opts))
		}
	}

	if cfg.Exporter != nil {
		logger.pump = startExportPump(cfg.Exporter)
		handlers = append(handlers, &exportHandler{
			service: cfg.Service,
			min:     slog.Level(cfg.Level),
			pump:    logger.pump,
		})
	}

	var h slog.Handler
	switch len(handlers) {
	case 0:
		h = slog.NewTextHandler(io.Discard, opts)
	case 1:
		h = handlers[0]
	default:
		h = fanHandler(handlers)
	}
	logger.slog = slog.New(h).With("service", cfg.Service)
	return logger
}

// Slog exposes the underlying slog.Logger for APIs that want one.
func (l *Logger) Slog() *slog.Logger { return l.slog }

func (l *Logger) Debug(msg string, args ...any) { l.slog.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.slog.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.slog.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.slog.Error(msg, args...) }

// With returns a child logger carrying extra attributes. Children share
// the parent's file and exporter; close only the parent.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{slog: l.slog.With(args...), file: l.file, pump: l.pump}
}

// Close drains the exporter and closes the log file. Safe to call more
// than once.
func (l *Logger) Close() error {
	var errs []error
	l.once.Do(func() {
		if l.pump != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := l.pump.shutdown(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		if l.file != nil {
			if err := l.file.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}

// openLogFile creates dir if needed and opens today's log file for
// appending. Directories are 0750 and files 0640; logs can carry
// dataset names.
func openLogFile(dir, service string) (*os.File, error) {
	dir = expandHome(dir)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create log dir %s: %w", dir, err)
	}
	name := fmt.Sprintf("%s_%s.log", service, time.Now().Format("2006-01-02"))
	file, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", name, err)
	}
	return file, nil
}

// expandHome resolves a leading ~ against the current user's home
// directory, returning the path unchanged when that fails.
func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// =============================================================================
// MULTI-DESTINATION HANDLER
// =============================================================================

// fanHandler forwards each record to every child handler that accepts
// its level.
type fanHandler []slog.Handler

func (f fanHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanHandler) Handle(ctx context.Context, rec slog.Record) error {
	var errs []error
	for _, h := range f {
		if !h.Enabled(ctx, rec.Level) {
			continue
		}
		if err := h.Handle(ctx, rec.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f fanHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	children := make(fanHandler, len(f))
	for i, h := range f {
		children[i] = h.WithAttrs(attrs)
	}
	return children
}

func (f fanHandler) WithGroup(name string) slog.Handler {
	children := make(fanHandler, len(f))
	for i, h := range f {
		children[i] = h.WithGroup(name)
	}
	return children
}

// =============================================================================
// EXPORT PIPELINE
// =============================================================================

// exportHandler converts slog records into Entries and enqueues them on
// the pump. Group nesting is flattened into plain attribute keys.
type exportHandler struct {
	service string
	min     slog.Level
	pump    *exportPump
	preset  []slog.Attr
}

func (h *exportHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.min
}

func (h *exportHandler) Handle(_ context.Context, rec slog.Record) error {
	attrs := make(map[string]any, rec.NumAttrs()+len(h.preset))
	for _, a := range h.preset {
		attrs[a.Key] = a.Value.Resolve().Any()
	}
	rec.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.Resolve().Any()
		return true
	})
	h.pump.enqueue(Entry{
		Time:    rec.Time,
		Level:   rec.Level.String(),
		Message: rec.Message,
		Service: h.service,
		Attrs:   attrs,
	})
	return nil
}

func (h *exportHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	child := *h
	child.preset = append(append([]slog.Attr{}, h.preset...), attrs...)
	return &child
}

func (h *exportHandler) WithGroup(string) slog.Handler { return h }

// exportPump decouples logging from the exporter: enqueue never blocks,
// and a full buffer drops entries rather than stalling the caller.
type exportPump struct {
	mu     sync.Mutex
	closed bool
	ch     chan Entry
	done   chan struct{}
	exp    Exporter
}

const exportBuffer = 256

func startExportPump(exp Exporter) *exportPump {
	p := &exportPump{
		ch:   make(chan Entry, exportBuffer),
		done: make(chan struct{}),
		exp:  exp,
	}
	go func() {
		defer close(p.done)
		for e := range p.ch {
			_ = p.exp.Export(context.Background(), e)
		}
	}()
	return p
}

func (p *exportPump) enqueue(e Entry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.ch <- e:
	default:
	}
}

// shutdown stops intake, waits for the drain goroutine, then flushes
// and closes the exporter.
func (p *exportPump) shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.ch)
	p.mu.Unlock()

	select {
	case <-p.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	var errs []error
	if err := p.exp.Flush(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := p.exp.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// =============================================================================
// EXPORTERS
// =============================================================================

// BufferedExporter retains entries in memory, mostly for tests and for
// inspecting what a service logged. Beyond its capacity the oldest
// entries are discarded first.
type BufferedExporter struct {
	mu      sync.Mutex
	cap     int
	entries []Entry
}

// NewBufferedExporter returns an exporter retaining up to capacity
// entries; capacity <= 0 means unbounded.
func NewBufferedExporter(capacity int) *BufferedExporter {
	return &BufferedExporter{cap: capacity}
}

func (b *BufferedExporter) Export(_ context.Context, e Entry) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, e)
	if b.cap > 0 && len(b.entries) > b.cap {
		b.entries = b.entries[len(b.entries)-b.cap:]
	}
	return nil
}

func (b *BufferedExporter) Flush(context.Context) error { return nil }
func (b *BufferedExporter) Close() error                { return nil }

// Entries returns a snapshot of the retained entries.
func (b *BufferedExporter) Entries() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Entry, len(b.entries))
	copy(out, b.entries)
	return out
}
