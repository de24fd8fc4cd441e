// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gcs pushes run-store backups to Google Cloud Storage and lists
// what is already there.
package gcs

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// Backup objects are opaque Badger streams; nothing should cache or
// content-sniff them.
const (
	backupContentType  = "application/octet-stream"
	backupCacheControl = "no-cache, no-store, must-revalidate"
)

// Client talks to a single backup bucket.
type Client struct {
	raw     *storage.Client
	Project string
	Bucket  string
}

// ObjectInfo describes one stored backup object.
type ObjectInfo struct {
	Name    string
	Size    int64
	Created time.Time
}

// NewClient authenticates with the service account key at keyPath and
// returns a client bound to the given bucket. The key file is checked
// up front so a bad path fails before any network traffic.
func NewClient(ctx context.Context, project, bucket, keyPath string) (*Client, error) {
	if _, err := os.Stat(keyPath); err != nil {
		return nil, fmt.Errorf("service account key %s is not readable: %w", keyPath, err)
	}

	raw, err := storage.NewClient(ctx, option.WithCredentialsFile(keyPath))
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	return &Client{raw: raw, Project: project, Bucket: bucket}, nil
}

// UploadFile copies the file at localPath to the named object. The
// object only becomes visible once the writer closes cleanly, so a
// failed upload never leaves a partial backup in the bucket.
func (c *Client) UploadFile(ctx context.Context, localPath, objectPath string) error {
	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open backup file %s: %w", localPath, err)
	}
	defer src.Close()

	w := c.raw.Bucket(c.Bucket).Object(objectPath).NewWriter(ctx)
	w.ContentType = backupContentType
	w.CacheControl = backupCacheControl

	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("upload %s to gs://%s/%s: %w", localPath, c.Bucket, objectPath, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize gs://%s/%s: %w", c.Bucket, objectPath, err)
	}
	return nil
}

// ListObjects returns every object under the given prefix, newest first
// so the most recent backup leads the listing.
func (c *Client) ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	it := c.raw.Bucket(c.Bucket).Objects(ctx, &storage.Query{Prefix: prefix})

	var objects []ObjectInfo
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list gs://%s/%s: %w", c.Bucket, prefix, err)
		}
		objects = append(objects, ObjectInfo{
			Name:    attrs.Name,
			Size:    attrs.Size,
			Created: attrs.Created,
		})
	}

	slices.Reverse(objects)
	return objects, nil
}

// Close releases the underlying storage client.
func (c *Client) Close() error {
	if c.raw == nil {
		return nil
	}
	return c.raw.Close()
}
