// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianStats/cmd/sharpq/config"
	"github.com/AleutianAI/AleutianStats/pkg/logging"
	"github.com/AleutianAI/AleutianStats/pkg/ux"
	"github.com/AleutianAI/AleutianStats/services/sharpen/fdr"
	"github.com/AleutianAI/AleutianStats/services/sharpen/history"
	"github.com/AleutianAI/AleutianStats/services/sharpen/store"
	"github.com/AleutianAI/AleutianStats/services/sharpen/watch"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	watchStep       float64 // Grid step override (0 = config default)
	watchDebounceMs int     // Debounce window override in milliseconds
	watchPersist    bool    // Store each sharpened run in the Badger store
	watchStorePath  string  // Badger path override for --persist
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// watchCmd sharpens CSV datasets as they land in a directory.
//
// # Description
//
// Watches a directory tree for *.csv dataset files and sharpens each one
// as it appears or changes, writing the result beside it as
// *.qvalues.csv. Changes are debounced so a file being written in chunks
// triggers one pass. With --persist each run is also recorded in the
// Badger run store (and in InfluxDB history when configured).
//
// # Examples
//
//	sharpq watch                       # Watch the configured directory
//	sharpq watch ./incoming            # Watch a specific directory
//	sharpq watch --persist             # Also store runs for reporting
//	sharpq watch --debounce 1000       # Slower writers, wider window
//
// # Limitations
//
//   - --persist opens the Badger store exclusively; stop the sharpen
//     service first if it uses the same path
//
// # Assumptions
//
//   - Datasets are CSV with p-values in the first column
var watchCmd = &cobra.Command{
	Use:   "watch [directory]",
	Short: "Sharpen CSV datasets as they land in a directory",
	Long: `Watches a directory tree and sharpens every *.csv dataset that
appears or changes, writing output beside each input as *.qvalues.csv.

Runs until interrupted. With --persist each sharpened run is also
recorded in the run store, so it shows up in 'sharpq runs list' once
the sharpen service is pointed at the same store path.

Examples:
  sharpq watch
  sharpq watch ./incoming --step 0.01
  sharpq watch --persist --store ./data/sharpen`,
	Args: cobra.MaximumNArgs(1),
	Run:  runWatchCommand,
}

// =============================================================================
// COMMAND INITIALIZATION
// =============================================================================

func init() {
	watchCmd.Flags().Float64Var(&watchStep, "step", 0,
		"Candidate grid step in (0, 1] (0 = configured default)")
	watchCmd.Flags().IntVar(&watchDebounceMs, "debounce", 0,
		"Debounce window in milliseconds (0 = configured default)")
	watchCmd.Flags().BoolVar(&watchPersist, "persist", false,
		"Record each sharpened run in the Badger run store")
	watchCmd.Flags().StringVar(&watchStorePath, "store", "",
		"Badger store path for --persist (default: configured store path)")
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

// runWatchCommand wires the watcher to the processor and blocks until
// interrupted.
func runWatchCommand(cmd *cobra.Command, args []string) {
	dir := config.Global.Watch.Dir
	if len(args) > 0 {
		dir = args[0]
	}
	if dir == "" {
		dir = "./datasets"
	}

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		fmt.Fprintf(os.Stderr, "%s is not a watchable directory\n", dir)
		os.Exit(1)
	}

	logger := logging.New(logging.Config{
		Service: "watch",
		LogDir:  "~/.aleutianstats/logs",
		Level:   logging.LevelInfo,
	})
	defer logger.Close()
	slogger := logger.Slog()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	storePath := ""
	var st store.Store
	if watchPersist {
		storePath = watchStorePath
		if storePath == "" {
			storePath = config.Global.Backup.GetStorePath()
		}
		badgerStore, err := store.NewBadgerStore(store.DefaultConfig(storePath))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open the run store at %s: %v\n", storePath, err)
			fmt.Fprintln(os.Stderr, "Badger locks its directory; stop the sharpen service if it uses the same path.")
			os.Exit(1)
		}
		defer badgerStore.Close()
		st = badgerStore
	}

	processor := watch.NewProcessor(ctx, st, &fdr.Options{Step: resolveStep(watchStep)}, slogger)
	if watchPersist {
		// History is env-driven; a recorder without InfluxDB settings
		// stays disabled and records nothing.
		recorder := history.NewRecorder(history.ConfigFromEnv(), slogger)
		defer recorder.Close()
		processor.SetRecorder(recorder)
	}

	wopts := watch.DefaultOptions()
	wopts.Logger = slogger
	if watchDebounceMs > 0 {
		wopts.DebounceWindow = time.Duration(watchDebounceMs) * time.Millisecond
	} else if config.Global.Watch.DebounceMs > 0 {
		wopts.DebounceWindow = time.Duration(config.Global.Watch.DebounceMs) * time.Millisecond
	}

	watcher, err := watch.NewWatcher(dir, processor.Handle, &wopts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create the watcher: %v\n", err)
		os.Exit(1)
	}
	if err := watcher.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start watching %s: %v\n", dir, err)
		os.Exit(1)
	}
	defer watcher.Stop()

	ux.Success(fmt.Sprintf("Watching %s for CSV datasets", dir))
	ux.Muted("Sharpened output lands beside each dataset as *" + watch.OutputSuffix)
	if st != nil {
		ux.Info("Persisting runs to " + storePath)
	}
	ux.Muted("Press Ctrl+C to stop")

	<-ctx.Done()
	ux.Info("Shutting down watcher")
}
