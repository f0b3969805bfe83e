// Copyright (C) 2025 StandardGPT
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package middleware provides the HTTP middleware for the service: user
// identity resolution, per-IP rate limiting, and security headers.
package middleware

import (
	"github.com/gin-gonic/gin"
)

// userIDKey is the context key for the resolved user id. A typed constant
// avoids collisions with other context values.
const userIDKey = "standardgpt_user_id"

// AnonymousUser is the identity assigned when no cookie or header carries
// one. All anonymous requests share one conversation scope.
const AnonymousUser = "anonymous"

// SetUserID stores the resolved user identity in the Gin context.
func SetUserID(c *gin.Context, userID string) {
	c.Set(userIDKey, userID)
}

// GetUserID returns the user identity resolved by Identity, or
// AnonymousUser when the middleware did not run.
func GetUserID(c *gin.Context) string {
	if v, ok := c.Get(userIDKey); ok {
		if id, ok := v.(string); ok && id != "" {
			return id
		}
	}
	return AnonymousUser
}

// Identity resolves the requesting user from the auth cookie, falling back
// to the X-User-ID header for API clients without cookies. Requests are
// never rejected here; per-user scoping of conversation data is the point,
// not access control.
func Identity(cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := AnonymousUser
		if v, err := c.Cookie(cookieName); err == nil && v != "" {
			userID = v
		} else if v := c.GetHeader("X-User-ID"); v != "" {
			userID = v
		}
		SetUserID(c, userID)
		c.Next()
	}
}
