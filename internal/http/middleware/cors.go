// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements the CORS header merge applied to every response,
// errors included, and the preflight short-circuit: any OPTIONS request is
// answered with 204 and the CORS headers, whatever its path.
package middleware

import (
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
)

// Defaults advertised when CORSOptions leaves a list empty.
var (
	DefaultCORSMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	DefaultCORSHeaders = []string{"Content-Type", "Authorization", "Idempotency-Key", "X-Request-ID"}
)

// CORSOptions configures CORSHeaders.
//
// AllowedOrigins empty means any origin ("*"). Otherwise the request Origin
// is echoed back only when listed.
type CORSOptions struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// CORSHeaders sets Access-Control-Allow-* on every response and aborts OPTIONS
// requests with 204 No Content.
func CORSHeaders(opt CORSOptions) gin.HandlerFunc {
	methods := opt.AllowedMethods
	if len(methods) == 0 {
		methods = DefaultCORSMethods
	}
	headers := opt.AllowedHeaders
	if len(headers) == 0 {
		headers = DefaultCORSHeaders
	}
	allowMethods := strings.Join(methods, ", ")
	allowHeaders := strings.Join(headers, ", ")
	wildcard := len(opt.AllowedOrigins) == 0 || slices.Contains(opt.AllowedOrigins, "*")

	return func(c *gin.Context) {
		h := c.Writer.Header()
		switch {
		case wildcard:
			h.Set("Access-Control-Allow-Origin", "*")
		default:
			if origin := c.GetHeader("Origin"); origin != "" && slices.Contains(opt.AllowedOrigins, origin) {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
			}
		}
		h.Set("Access-Control-Allow-Methods", allowMethods)
		h.Set("Access-Control-Allow-Headers", allowHeaders)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
