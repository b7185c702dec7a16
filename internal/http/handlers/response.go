// Package handlers provides HTTP handler implementations for the public API.
//
// This file defines the standard response utilities used across all endpoints,
// including structured error envelopes, consistent JSON serialization, and
// helpers for common HTTP patterns. The goal is to guarantee uniform responses
// for both success and failure cases, making the API predictable and
// machine-friendly.
//
// Conventions:
//   - All error responses return an ErrorResponse with a short `error` title
//     and a stable `code`.
//   - `fail()` centralizes error logging and formatting, ensuring 5xx responses
//     are logged with request context for observability.
//   - `ok()` writes success responses in a consistent shape across handlers.
//
// Example error response:
//
//	HTTP/1.1 404 Not Found
//	{
//	  "error": "Item not found",
//	  "message": "item 42 not found",
//	  "code": "not_found",
//	  "id": 42,
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000"
//	}
//
// Example success response:
//
//	HTTP/1.1 201 Created
//	{ "success": true, "message": "Item created successfully", "item": {...} }
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-items-api/internal/http/middleware"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
//
// Fields:
//   - Error: short human-readable title ("Item not found", "Validation failed").
//   - Message: detail, safe for display; storage faults pass their message through.
//   - Code: a stable, machine-readable string (see errors.go constants).
//   - RequestID: correlation ID echoed from X-Request-ID.
//   - ID: the offending item id on not-found errors.
//   - Field: the offending input field on validation errors.
//   - Allowed: the methods accepted by the path on 405 errors.
//
// This struct is used in OpenAPI documentation via Swagger annotations.
type ErrorResponse struct {
	Error   string `json:"error"   example:"Item not found"`
	Message string `json:"message" example:"item 42 not found"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"not_found"`
	// Correlates server logs and client errors
	RequestID string   `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	ID        *int64   `json:"id,omitempty" example:"42"`
	Field     string   `json:"field,omitempty" example:"name"`
	Allowed   []string `json:"allowed,omitempty"`
}

// fail aborts the request with a structured error and logs server-side errors.
//
// Server errors (>=500) are logged using the request-scoped logger from middleware.
func fail(c *gin.Context, status int, code, msg string) {
	failWith(c, status, ErrorResponse{Code: code, Message: msg})
}

// failWith completes resp (title, request id) and aborts with it.
func failWith(c *gin.Context, status int, resp ErrorResponse) {
	if resp.Error == "" {
		resp.Error = errorTitle(status)
	}
	resp.RequestID = c.Writer.Header().Get("X-Request-ID")

	// Log 5xx (server-side) with request-scoped logger
	if status >= http.StatusInternalServerError {
		lg := middleware.LoggerFrom(c)
		lg.Error().
			Int("status", status).
			Str("code", resp.Code).
			Str("message", resp.Message).
			Msg("api error")
	}

	c.AbortWithStatusJSON(status, resp)
}

// Fail is the exported variant of fail().
//
// External packages (e.g., router setup) should call Fail to return
// consistent error envelopes without directly depending on unexported helpers.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// MethodNotAllowed answers 405 and lists allowed in both the Allow header and
// the body.
func MethodNotAllowed(c *gin.Context, allowed []string) {
	if len(allowed) > 0 {
		c.Header("Allow", strings.Join(allowed, ", "))
	}
	failWith(c, http.StatusMethodNotAllowed, ErrorResponse{
		Code:    ErrCodeMethodNotAllowed,
		Message: "method " + c.Request.Method + " not allowed",
		Allowed: allowed,
	})
}

// ok writes a success JSON response.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

func errorTitle(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "Validation failed"
	case http.StatusNotFound:
		return "Not found"
	case http.StatusInternalServerError:
		return "Internal server error"
	}
	return http.StatusText(status)
}
