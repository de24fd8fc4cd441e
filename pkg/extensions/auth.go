// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"context"
	"errors"
	"slices"
)

// ErrUnauthorized signals a failed validation. Providers should wrap it
// so callers can test with errors.Is while keeping the provider's
// detail:
//
//	return nil, fmt.Errorf("token expired: %w", extensions.ErrUnauthorized)
var ErrUnauthorized = errors.New("unauthorized")

// AuthInfo is the identity a provider resolved from a token. UserID is
// the only field a provider must populate.
type AuthInfo struct {
	// UserID uniquely identifies the authenticated user. Never empty.
	UserID string

	// Email of the user, when the identity provider supplies one.
	Email string

	// Roles lists the user's memberships for authorization decisions.
	Roles []string

	// Metadata carries provider-specific claims (groups, department,
	// MFA state) without extending this struct.
	Metadata map[string]any
}

// HasRole reports whether role appears in the user's memberships.
func (a *AuthInfo) HasRole(role string) bool {
	return slices.Contains(a.Roles, role)
}

// AuthProvider resolves bearer tokens to identities. Validate returns
// an error wrapping ErrUnauthorized for bad tokens; any other error is
// treated as a provider failure, not a rejection.
//
// The token may be a JWT, a session ID, or whatever the deployment's
// identity provider issues. The shared API key gate in the middleware
// package is separate and stays in effect regardless of the provider.
type AuthProvider interface {
	Validate(ctx context.Context, token string) (*AuthInfo, error)
}

// NopAuthProvider accepts every token (including none) as the local
// admin user. It is the open source default: a single-user tool on a
// loopback address has no identities to check.
type NopAuthProvider struct{}

// Validate ignores the token and returns the local user.
func (p *NopAuthProvider) Validate(context.Context, string) (*AuthInfo, error) {
	return &AuthInfo{
		UserID: "local-user",
		Roles:  []string{"admin"},
	}, nil
}

var _ AuthProvider = (*NopAuthProvider)(nil)
