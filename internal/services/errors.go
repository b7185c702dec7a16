// Package services defines the business logic for items. This file
// centralizes service-level error values so that they can be consistently
// returned by service methods and checked by callers.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation matches every input validation failure.
	ErrValidation = errors.New("validation failed")

	// ErrItemNotFound matches lookups for an id that has no row.
	ErrItemNotFound = errors.New("item not found")
)

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Is makes errors.Is(err, ErrValidation) true.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NotFoundError carries the id that could not be found.
type NotFoundError struct {
	ID int64
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("item %d not found", e.ID) }

// Is makes errors.Is(err, ErrItemNotFound) true.
func (e *NotFoundError) Is(target error) bool { return target == ErrItemNotFound }

// Invalid builds a ValidationError for field.
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
