// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package extensions is the seam between the open source sharpen
// service and enterprise builds. It declares the interfaces an
// enterprise distribution can implement without touching the core
// service code: identity validation and compliance audit logging.
//
// The open source build runs entirely on the no-op implementations:
// every request is treated as the local user and no audit trail is
// kept. Enterprise builds inject real implementations through
// ServiceOptions:
//
//	opts := extensions.ServiceOptions{
//	    AuthProvider: oidcProvider,
//	    AuditLogger:  siemAuditor,
//	}
//	svc, err := sharpen.New(cfg, &opts)
//
// Implementations must be safe for concurrent use; the service calls
// them from every request goroutine.
package extensions

// ServiceOptions carries the pluggable extension points into service
// construction. Nil fields are filled with no-op defaults.
type ServiceOptions struct {
	// AuthProvider turns bearer tokens into identities.
	AuthProvider AuthProvider

	// AuditLogger receives one event per authenticated API request.
	AuditLogger AuditLogger
}

// DefaultOptions is the open source configuration: every token is the
// local admin user and audit events are discarded.
func DefaultOptions() ServiceOptions {
	return ServiceOptions{
		AuthProvider: &NopAuthProvider{},
		AuditLogger:  &NopAuditLogger{},
	}
}

// WithAuth returns a copy of opts using the given provider.
func (opts ServiceOptions) WithAuth(provider AuthProvider) ServiceOptions {
	opts.AuthProvider = provider
	return opts
}

// WithAudit returns a copy of opts using the given audit logger.
func (opts ServiceOptions) WithAudit(logger AuditLogger) ServiceOptions {
	opts.AuditLogger = logger
	return opts
}
