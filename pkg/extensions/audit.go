// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"context"
	"time"
)

// AuditEvent is one security-relevant action, recorded for compliance
// review and incident investigation.
//
// EventType uses a "category.action" vocabulary. The service emits:
//
//	auth.failed                           rejected requests
//	sharpen.request, sharpen.batch        q-value computations
//	simulate.request                      simulation runs
//	runs.delete, runs.explain             stored-run mutations
//	http.post, http.delete                unclassified mutations
type AuditEvent struct {
	// EventType categorizes the event, e.g. "runs.delete".
	EventType string

	// Timestamp of the event in UTC. Implementations fill a zero value
	// with the current time.
	Timestamp time.Time

	// UserID is who acted: an authenticated user, "anonymous" for
	// rejected requests, or "system" for internal actions.
	UserID string

	// Action is the verb attempted: "compute", "delete", "explain".
	Action string

	// ResourceType names the kind of resource touched, e.g. "run".
	ResourceType string

	// ResourceID pins the specific resource when one exists, such as a
	// stored run's UUID.
	ResourceID string

	// Outcome is "success", "denied", or "error".
	Outcome string

	// Metadata carries event detail: "status", "request_id",
	// "duration_ms", and "error" when something failed.
	Metadata map[string]any
}

// AuditFilter selects events in Query. Zero fields do not filter;
// populated fields combine with AND.
type AuditFilter struct {
	// EventTypes restricts to the listed types.
	EventTypes []string

	// UserID restricts to one user's events.
	UserID string

	// StartTime is the inclusive lower bound on Timestamp.
	StartTime time.Time

	// EndTime is the exclusive upper bound on Timestamp.
	EndTime time.Time

	// ResourceType and ResourceID restrict by resource.
	ResourceType string
	ResourceID   string

	// Outcome restricts to one outcome value.
	Outcome string

	// Limit caps the result count; zero means the implementation's
	// default. Offset skips events for pagination.
	Limit  int
	Offset int
}

// AuditLogger persists audit events. Log is called on the request path,
// so implementations should buffer rather than block; Flush drains any
// buffer and belongs in shutdown paths. Query returns matching events
// newest first.
type AuditLogger interface {
	Log(ctx context.Context, event AuditEvent) error
	Query(ctx context.Context, filter AuditFilter) ([]AuditEvent, error)
	Flush(ctx context.Context) error
}

// NopAuditLogger drops every event. It is the open source default:
// local single-user runs do not keep an audit trail.
type NopAuditLogger struct{}

// Log discards the event.
func (l *NopAuditLogger) Log(context.Context, AuditEvent) error { return nil }

// Query reports no events.
func (l *NopAuditLogger) Query(context.Context, AuditFilter) ([]AuditEvent, error) {
	return []AuditEvent{}, nil
}

// Flush has nothing to drain.
func (l *NopAuditLogger) Flush(context.Context) error { return nil }

var _ AuditLogger = (*NopAuditLogger)(nil)
