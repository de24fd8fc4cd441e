// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware is the HTTP middleware chain of the sharpening
// service: authentication, audit logging, rate limiting, and request ID
// propagation, wired to the extensions package for enterprise variants.
//
// # Authentication Flow
//
// Two independent layers inspect the same bearer token. The identity
// layer asks the configured AuthProvider who the caller is and parks the
// answer in the Gin context; the shared-key layer compares the token in
// constant time against the api_key held in the secrets vault.
//
//	Authorization: Bearer <token>
//	   │
//	   ├─ AuthMiddleware ── provider.Validate ──► AuthInfo in context
//	   │
//	   └─ KeyAuth ──────── vault.Equal ─────────► 401 on mismatch
//
// # Open Source Behavior
//
// Out of the box both layers wave everything through: NopAuthProvider
// answers "local-user" for any token, and an empty vault disables the
// key check. A single-user deployment needs no auth setup at all.
//
// # Enterprise Behavior
//
// Enterprise builds swap in AuthProvider implementations backed by real
// identity providers (Okta, Auth0, Azure AD) and get per-user identity
// plus role checks for free.
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianStats/pkg/extensions"
	"github.com/AleutianAI/AleutianStats/services/sharpen/observability"
	"github.com/AleutianAI/AleutianStats/services/sharpen/secrets"
)

// =============================================================================
// Context Helpers
// =============================================================================

// authInfoKey keys the AuthInfo entry in the Gin context.
const authInfoKey = "aleutian_auth_info"

// SetAuthInfo parks the authenticated identity in the Gin context for
// downstream handlers. Called by AuthMiddleware; handlers read it back
// through GetAuthInfo.
func SetAuthInfo(c *gin.Context, info *extensions.AuthInfo) {
	c.Set(authInfoKey, info)
}

// GetAuthInfo returns the caller's identity, or nil when the request
// never passed authentication (or something else was stored under the
// key).
//
//	if info := middleware.GetAuthInfo(c); info == nil || !info.HasRole("admin") {
//	    c.JSON(403, gin.H{"error": "forbidden"})
//	    return
//	}
func GetAuthInfo(c *gin.Context) *extensions.AuthInfo {
	v, ok := c.Get(authInfoKey)
	if !ok {
		return nil
	}
	info, _ := v.(*extensions.AuthInfo)
	return info
}

// =============================================================================
// Auth Middleware
// =============================================================================

// AuthMiddleware creates a Gin middleware that resolves the caller's
// identity.
//
// # Description
//
// Pulls the bearer token out of the Authorization header, hands it to
// the provider, and stores the resulting AuthInfo in the context. A
// missing or malformed header validates the empty string, which
// NopAuthProvider accepts as local-user.
//
// A rejection (ErrUnauthorized) and a provider failure both abort with
// 401; the response body distinguishes them so operators can tell a bad
// token from a broken identity backend.
//
// # Inputs
//
//   - provider: Identity backend consulted on every request; never nil
//
// # Outputs
//
//   - gin.HandlerFunc: Handler to mount ahead of the /v1 routes
//
// # Examples
//
//	v1 := router.Group("/v1", middleware.AuthMiddleware(opts.AuthProvider))
//
// # Limitations
//
//   - Bearer tokens only
//   - Every request hits the provider; results are not cached
//
// # Thread Safety
//
// The returned handler is stateless; one instance serves all routes.
func AuthMiddleware(provider extensions.AuthProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		info, err := provider.Validate(c.Request.Context(), extractBearerToken(c))
		if err != nil {
			msg := "authentication failed"
			if errors.Is(err, extensions.ErrUnauthorized) {
				msg = "unauthorized"
			}
			rejectUnauthorized(c, msg)
			return
		}

		SetAuthInfo(c, info)
		c.Next()
	}
}

// KeyAuth creates a Gin middleware that gates requests on the shared
// API key.
//
// # Description
//
// Compares the bearer token in constant time against the vault's
// api_key secret and aborts with 401 on a mismatch. When the vault is
// nil or holds no api_key the service runs open and every request
// passes.
//
// # Inputs
//
//   - vault: Secrets vault holding the api_key, or nil for open mode.
//
// # Outputs
//
//   - gin.HandlerFunc: Handler to mount on any group that needs the key check
//
// # Examples
//
//	v1 := router.Group("/v1", middleware.KeyAuth(vault))
//
// # Limitations
//
//   - One shared key for the whole service; no per-user identity
//
// # Thread Safety
//
// Safe for concurrent requests; the vault does its own locking.
func KeyAuth(vault secrets.Vault) gin.HandlerFunc {
	return func(c *gin.Context) {
		if vault == nil || !vault.Has(secrets.KeyAPIKey) {
			c.Next()
			return
		}

		if !vault.Equal(secrets.KeyAPIKey, []byte(extractBearerToken(c))) {
			rejectUnauthorized(c, "unauthorized")
			return
		}
		c.Next()
	}
}

// =============================================================================
// Helper Functions
// =============================================================================

// rejectUnauthorized counts the failure and aborts the request with 401.
func rejectUnauthorized(c *gin.Context, msg string) {
	if m := observability.DefaultMetrics; m != nil {
		m.RecordError(observability.Endpoint(c.FullPath()), observability.ErrorCodeUnauthorized)
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
}

// extractBearerToken returns the token from an "Authorization: Bearer"
// header, or "" when the header is absent or malformed. The scheme is
// matched case-insensitively per RFC 7235.
func extractBearerToken(c *gin.Context) string {
	scheme, token, found := strings.Cut(c.GetHeader("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
