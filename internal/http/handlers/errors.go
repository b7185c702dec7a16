// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// These codes give clients a stable, machine-readable error taxonomy that
// supplements the human-readable title and message.
//
// Conventions:
//   - Codes are lowercase, snake_case.
//   - Generic codes mirror common HTTP status semantics.
//   - All error responses include both an HTTP status and one of these codes.
//
// Example response:
//
//	{
//	  "error": "Validation failed",
//	  "message": "name is required",
//	  "code": "bad_request",
//	  "field": "name"
//	}
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-items-api/internal/http/middleware"
	"github.com/tbourn/go-items-api/internal/services"
)

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodePayloadTooLarge  = "payload_too_large"
	ErrCodeRateLimited      = middleware.CodeRateLimited
	ErrCodeInternal         = "internal_error"
)

// failErr maps a service error onto the response taxonomy: validation → 400,
// not found → 404, anything else → 500 with the message passed through.
func failErr(c *gin.Context, err error) {
	var verr *services.ValidationError
	var nf *services.NotFoundError
	switch {
	case errors.As(err, &verr):
		failWith(c, http.StatusBadRequest, ErrorResponse{
			Code:    ErrCodeBadRequest,
			Message: verr.Message,
			Field:   verr.Field,
		})
	case errors.As(err, &nf):
		id := nf.ID
		failWith(c, http.StatusNotFound, ErrorResponse{
			Error:   "Item not found",
			Code:    ErrCodeNotFound,
			Message: nf.Error(),
			ID:      &id,
		})
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}
