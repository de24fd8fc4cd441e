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
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianStats/cmd/sharpq/config"
	"github.com/AleutianAI/AleutianStats/cmd/sharpq/gcs"
	"github.com/AleutianAI/AleutianStats/pkg/ux"
	"github.com/AleutianAI/AleutianStats/services/sharpen/store"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	backupStorePath string // Badger directory to back up (overrides config)
	backupOutputDir string // Where to write the backup file
	backupUpload    bool   // Upload the backup to GCS after writing it
	backupListJSON  bool   // List backups as JSON
)

// backupTimeFormat names backup files so they sort chronologically.
const backupTimeFormat = "2006-01-02_150405"

// =============================================================================
// COMMAND DEFINITIONS
// =============================================================================

// backupCmd groups the run store backup operations.
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Back up and restore the sharpen run store",
	Long: `Backup operates directly on the sharpen service's Badger database.
	Badger holds an exclusive lock on its directory, so stop the service
	before running create or restore against its store path.`,
}

// backupCreateCmd writes a timestamped backup file, optionally uploading
// it to Google Cloud Storage.
//
// # Examples
//
//	sharpq backup create
//	sharpq backup create --output-dir /var/backups --upload
//	sharpq backup create --store /srv/sharpen/data
//
// # Limitations
//
//   - The store directory must not be held open by the sharpen service.
//   - Uploads require a GCS bucket and service account key in the config
//     (run 'sharpq init' to set them).
var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Write a timestamped backup of the run store",
	Run:   runBackupCreate,
}

// backupListCmd lists the backups stored in the configured GCS bucket.
var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List backups in the configured GCS bucket",
	Run:   runBackupList,
}

// backupRestoreCmd loads a backup file into the run store.
var backupRestoreCmd = &cobra.Command{
	Use:   "restore [backup-file]",
	Short: "Restore a backup file into the run store",
	Args:  cobra.ExactArgs(1),
	Run:   runBackupRestore,
}

// =============================================================================
// COMMAND INITIALIZATION
// =============================================================================

func init() {
	backupCreateCmd.Flags().StringVar(&backupStorePath, "store", "",
		"Badger store directory (default: configured backup.store_path)")
	backupCreateCmd.Flags().StringVar(&backupOutputDir, "output-dir", ".",
		"Directory to write the backup file into")
	backupCreateCmd.Flags().BoolVar(&backupUpload, "upload", false,
		"Upload the backup to the configured GCS bucket")

	backupListCmd.Flags().BoolVar(&backupListJSON, "json", false, "Output as JSON for scripting")

	backupRestoreCmd.Flags().StringVar(&backupStorePath, "store", "",
		"Badger store directory (default: configured backup.store_path)")
}

// =============================================================================
// COMMAND IMPLEMENTATIONS
// =============================================================================

// runBackupCreate streams the run store into a local file and optionally
// uploads it.
func runBackupCreate(cmd *cobra.Command, args []string) {
	ctx := context.Background()

	storePath := resolveStorePath()
	st := openBackupStore(storePath)
	defer st.Close()

	if err := os.MkdirAll(backupOutputDir, 0o755); err != nil {
		ux.Error("Failed to create output directory: %v", err)
		os.Exit(1)
	}

	name := fmt.Sprintf("sharpen-backup-%s.badger", time.Now().Format(backupTimeFormat))
	path := filepath.Join(backupOutputDir, name)

	f, err := os.Create(path)
	if err != nil {
		ux.Error("Failed to create backup file: %v", err)
		os.Exit(1)
	}

	var version uint64
	err = ux.WithSpinner("Backing up run store", func() error {
		v, berr := st.Backup(ctx, f)
		version = v
		return berr
	})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path) // don't leave a truncated backup behind
		ux.Error("Backup failed: %v", err)
		os.Exit(1)
	}

	info, statErr := os.Stat(path)
	if statErr != nil {
		ux.Error("Backup written but unreadable: %v", statErr)
		os.Exit(1)
	}
	ux.Success("Backup written to %s (%s, version %d)", path, formatBytes(info.Size()), version)

	if backupUpload {
		uploadBackup(ctx, path, name)
	}
}

// runBackupList prints the backups under the configured bucket prefix.
func runBackupList(cmd *cobra.Command, args []string) {
	ctx := context.Background()

	client := newGCSClient(ctx)
	defer client.Close()

	g := config.Global.Backup.GCS
	prefix := g.GetPrefix() + "/"

	objects, err := client.ListObjects(ctx, prefix)
	if err != nil {
		ux.Error("Failed to list backups: %v", err)
		os.Exit(1)
	}

	if backupListJSON {
		printJSON(objects)
		return
	}
	outputBackupList(g.Bucket, prefix, objects)
}

// runBackupRestore loads a backup stream into the run store.
func runBackupRestore(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	path := args[0]

	f, err := os.Open(path)
	if err != nil {
		ux.Error("Failed to open backup file: %v", err)
		os.Exit(1)
	}
	defer f.Close()

	storePath := resolveStorePath()
	ux.Warning("Restoring into %s; existing runs with the same IDs are overwritten", storePath)

	st := openBackupStore(storePath)
	defer st.Close()

	err = ux.WithSpinner("Restoring run store", func() error {
		return st.Restore(ctx, f)
	})
	if err != nil {
		ux.Error("Restore failed: %v", err)
		os.Exit(1)
	}
	ux.Success("Restored %s into %s", filepath.Base(path), storePath)
}

// =============================================================================
// OUTPUT FORMATTING
// =============================================================================

// outputBackupList renders the bucket listing as text.
func outputBackupList(bucket, prefix string, objects []gcs.ObjectInfo) {
	if len(objects) == 0 {
		ux.Info("No backups under gs://%s/%s", bucket, prefix)
		return
	}

	fmt.Printf("Backups in gs://%s/%s (%d):\n", bucket, prefix, len(objects))
	fmt.Println("--------------------------------------------------")
	for _, obj := range objects {
		fmt.Printf("  %s  %10s  %s\n",
			obj.Created.Format(time.RFC3339), formatBytes(obj.Size), obj.Name)
	}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// resolveStorePath picks the store directory: flag first, then config.
func resolveStorePath() string {
	if backupStorePath != "" {
		return backupStorePath
	}
	return config.Global.Backup.GetStorePath()
}

// openBackupStore opens the Badger run store or exits with a hint about
// the directory lock.
func openBackupStore(storePath string) *store.BadgerStore {
	cfg := store.DefaultConfig(storePath)
	// Keep Badger's operational logging out of the CLI output.
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := store.NewBadgerStore(cfg)
	if err != nil {
		ux.Error("Failed to open run store at %s: %v", storePath, err)
		ux.Muted("Badger locks its directory; stop the sharpen service if it uses the same path.")
		os.Exit(1)
	}
	return st
}

// newGCSClient builds a storage client from the configured GCS settings
// or exits when they are missing.
func newGCSClient(ctx context.Context) *gcs.Client {
	g := config.Global.Backup.GCS
	if g.Bucket == "" {
		ux.Error("GCS is not configured; run 'sharpq init' to set a bucket")
		os.Exit(1)
	}

	client, err := gcs.NewClient(ctx, g.Project, g.Bucket, g.KeyPath)
	if err != nil {
		ux.Error("Failed to create GCS client: %v", err)
		os.Exit(1)
	}
	return client
}

// uploadBackup pushes a backup file to the configured bucket.
func uploadBackup(ctx context.Context, path, name string) {
	client := newGCSClient(ctx)
	defer client.Close()

	g := config.Global.Backup.GCS
	object := g.GetPrefix() + "/" + name

	err := ux.WithSpinner("Uploading to gs://"+g.Bucket, func() error {
		return client.UploadFile(ctx, path, object)
	})
	if err != nil {
		ux.Error("Upload failed: %v", err)
		os.Exit(1)
	}
	ux.Success("Uploaded gs://%s/%s", g.Bucket, object)
}

// formatBytes renders a byte count with a binary unit suffix.
func formatBytes(n int64) string {
	const (
		kib = 1 << 10
		mib = 1 << 20
		gib = 1 << 30
	)
	switch {
	case n >= gib:
		return fmt.Sprintf("%.2f GiB", float64(n)/gib)
	case n >= mib:
		return fmt.Sprintf("%.2f MiB", float64(n)/mib)
	case n >= kib:
		return fmt.Sprintf("%.2f KiB", float64(n)/kib)
	default:
		return fmt.Sprintf("%d B", n)
	}
}
