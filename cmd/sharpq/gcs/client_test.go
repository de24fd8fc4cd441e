// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package gcs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewClientRejectsMissingKey(t *testing.T) {
	for _, keyPath := range []string{"", "/nonexistent/path/to/key.json"} {
		t.Run("path="+keyPath, func(t *testing.T) {
			_, err := NewClient(context.Background(), "proj", "bucket", keyPath)
			if err == nil {
				t.Fatal("expected an error for an unreadable key path")
			}
			if !strings.Contains(err.Error(), "service account key") {
				t.Errorf("error = %v, want mention of the service account key", err)
			}
			if keyPath != "" && !strings.Contains(err.Error(), keyPath) {
				t.Errorf("error = %v, want the offending path included", err)
			}
		})
	}
}

func TestNewClientRejectsMalformedKey(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "key.json")
	if err := os.WriteFile(keyPath, []byte("not valid json"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := NewClient(context.Background(), "proj", "bucket", keyPath)
	if err == nil {
		t.Fatal("expected an error for a malformed credentials file")
	}
	if !strings.Contains(err.Error(), "create storage client") {
		t.Errorf("error = %v, want the client-creation wrap", err)
	}
}

// UploadFile validates the local file before opening a bucket writer, so
// these paths are testable without credentials.
func TestUploadFileRejectsUnreadableLocalFile(t *testing.T) {
	client := &Client{Project: "proj", Bucket: "bucket"}

	for _, localPath := range []string{"", "/nonexistent/backup.badger"} {
		err := client.UploadFile(context.Background(), localPath, "backups/backup.badger")
		if err == nil {
			t.Fatalf("UploadFile(%q) should fail before any network use", localPath)
		}
		if !strings.Contains(err.Error(), "open backup file") {
			t.Errorf("error = %v, want the open wrap", err)
		}
	}
}

func TestCloseWithoutConnection(t *testing.T) {
	client := &Client{Project: "proj", Bucket: "bucket"}
	if err := client.Close(); err != nil {
		t.Errorf("Close on an unconnected client: %v", err)
	}
}

// TestBucketRoundTrip needs real credentials; set the three GCS_TEST_*
// variables to run it against a scratch bucket.
func TestBucketRoundTrip(t *testing.T) {
	keyPath := os.Getenv("GCS_TEST_SA_KEY_PATH")
	project := os.Getenv("GCS_TEST_PROJECT_ID")
	bucket := os.Getenv("GCS_TEST_BUCKET_NAME")
	if keyPath == "" || project == "" || bucket == "" {
		t.Skip("GCS_TEST_SA_KEY_PATH, GCS_TEST_PROJECT_ID, GCS_TEST_BUCKET_NAME not set")
	}

	ctx := context.Background()
	client, err := NewClient(ctx, project, bucket, keyPath)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer client.Close()

	local := filepath.Join(t.TempDir(), "roundtrip.badger")
	if err := os.WriteFile(local, []byte("backup stream"), 0o600); err != nil {
		t.Fatal(err)
	}
	const object = "test/roundtrip.badger"
	if err := client.UploadFile(ctx, local, object); err != nil {
		t.Fatalf("UploadFile: %v", err)
	}

	objects, err := client.ListObjects(ctx, "test/")
	if err != nil {
		t.Fatalf("ListObjects: %v", err)
	}
	for _, obj := range objects {
		if obj.Name == object {
			if obj.Size == 0 {
				t.Error("listed backup has zero size")
			}
			return
		}
	}
	t.Errorf("uploaded object %s missing from listing", object)
}
