// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/AleutianStats/services/sharpen/observability"
)

// =============================================================================
// Rate Limit Middleware
// =============================================================================

// RateLimit creates a Gin middleware enforcing a token-bucket limit on
// the routes it guards.
//
// # Description
//
// Uses a single shared rate.Limiter: requests draw one token each and
// are rejected with 429 when the bucket is empty. The service is single
// tenant, so one bucket guards total compute load rather than tracking
// clients individually.
//
// # Inputs
//
//   - rps: Sustained requests per second allowed. Values <= 0 disable
//     limiting.
//   - burst: Bucket capacity; peak requests absorbed above the
//     sustained rate.
//
// # Outputs
//
//   - gin.HandlerFunc: Handler to mount on the compute routes
//
// # Examples
//
//	compute := v1.Group("", middleware.RateLimit(10, 20))
//
// # Thread Safety
//
// Safe for concurrent requests; rate.Limiter handles its own locking.
func RateLimit(rps float64, burst int) gin.HandlerFunc {
	if rps <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if burst < 1 {
		burst = 1
	}

	limiter := rate.NewLimiter(rate.Limit(rps), burst)

	return func(c *gin.Context) {
		if !limiter.Allow() {
			if m := observability.DefaultMetrics; m != nil {
				m.RecordError(observability.Endpoint(c.FullPath()), observability.ErrorCodeRateLimited)
			}
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}

		c.Next()
	}
}
