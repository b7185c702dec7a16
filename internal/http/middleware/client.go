// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file resolves the caller's client identity from a trusted forwarded
// address header and stores it in the Gin context. Admission control and
// idempotency both key their state on this value.
package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-items-api/internal/ratelimit"
)

// clientIDKey is the Gin context key under which the client identity is stored.
const clientIDKey = "clientID"

// ClientIdentity reads header (e.g. X-Forwarded-For), keeps its first hop and
// stores it under "clientID". Requests without the header share the
// "anonymous" identity.
//
// Only trust this header when a proxy you control sets it.
func ClientIdentity(header string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(clientIDKey, ratelimit.ClientFromHeader(c.GetHeader(header)))
		c.Next()
	}
}

// ClientIDFrom returns the identity set by ClientIdentity, or "anonymous".
func ClientIDFrom(c *gin.Context) string {
	if s := asString(c.Value(clientIDKey)); s != "" {
		return s
	}
	return ratelimit.AnonymousClient
}
